package models

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// Severity classifies how urgent an alert is.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
)

// Comparator is the comparison operator of a rule condition.
type Comparator string

const (
	ComparatorGT  Comparator = "gt"
	ComparatorGTE Comparator = "gte"
	ComparatorLT  Comparator = "lt"
	ComparatorLTE Comparator = "lte"
)

// Metric selects which value of a composite signal a rule tests.
type Metric string

const (
	MetricPrice     Metric = "price"
	MetricSentiment Metric = "sentiment"
	MetricComposite Metric = "composite"
)

// WildcardScope matches every instrument in the configured universe.
const WildcardScope = "*"

// AlertRule is a configured alert condition. Rules are loaded once per
// cycle and immutable while the cycle runs.
type AlertRule struct {
	ID              string
	InstrumentScope string // single instrument, or WildcardScope
	Metric          Metric
	Comparator      Comparator
	Threshold       float64
	Absolute        bool // compare |value| instead of value (price spikes in either direction)
	Cooldown        time.Duration
	Severity        Severity
	Channels        []string
}

// Matches reports whether the rule applies to the given instrument.
func (r *AlertRule) Matches(instrument string) bool {
	return r.InstrumentScope == WildcardScope || r.InstrumentScope == instrument
}

// AlertStatus is the dedup state of a (instrument, rule) pair.
type AlertStatus string

const (
	// StatusInactive means the condition was not met last time it was evaluated.
	StatusInactive AlertStatus = "INACTIVE"
	// StatusTriggered is a transient marker held only within the cycle that
	// raised an event. It is never observed across cycles.
	StatusTriggered AlertStatus = "TRIGGERED"
	// StatusCooldown suppresses re-triggering until the cooldown window elapses.
	StatusCooldown AlertStatus = "COOLDOWN"
)

// AlertState is the per-(instrument, rule) dedup state. It is the single
// source of truth for whether a condition crossing becomes a new event.
type AlertState struct {
	Instrument       string
	RuleID           string
	Status           AlertStatus
	LastTriggeredAt  time.Time
	LastTransitionAt time.Time
}

// AlertEvent records that a rule condition fired. Immutable once created.
type AlertEvent struct {
	EventID    string    `json:"event_id"`
	Instrument string    `json:"instrument"`
	RuleID     string    `json:"rule_id"`
	Severity   Severity  `json:"severity"`
	Message    string    `json:"message"`
	RaisedAt   time.Time `json:"raised_at"`
}

// NewEventID derives the idempotency key for a trigger. It is a pure
// function of (instrument, rule, cycle timestamp), so re-deriving the same
// trigger can never produce a second event.
func NewEventID(instrument, ruleID string, cycleTS time.Time) string {
	seed := fmt.Sprintf("%s|%s|%s", instrument, ruleID, cycleTS.UTC().Format(time.RFC3339Nano))
	sum := sha256.Sum256([]byte(seed))
	return hex.EncodeToString(sum[:8])
}

// AttemptOutcome is the result of a single notification delivery attempt.
type AttemptOutcome string

const (
	OutcomeSuccess          AttemptOutcome = "SUCCESS"
	OutcomeTransientFailure AttemptOutcome = "TRANSIENT_FAILURE"
	OutcomePermanentFailure AttemptOutcome = "PERMANENT_FAILURE"
)

// NotificationAttempt is one delivery attempt for an event on a channel.
// Attempts are append-only.
type NotificationAttempt struct {
	EventID       string         `json:"event_id"`
	Channel       string         `json:"channel"`
	AttemptNumber int            `json:"attempt_number"`
	Outcome       AttemptOutcome `json:"outcome"`
	Error         string         `json:"error,omitempty"`
	AttemptedAt   time.Time      `json:"attempted_at"`
}

// EventWithAttempts is an alert event annotated with its recorded delivery
// attempts, newest attempt last.
type EventWithAttempts struct {
	Event    AlertEvent            `json:"event"`
	Attempts []NotificationAttempt `json:"attempts,omitempty"`
}
