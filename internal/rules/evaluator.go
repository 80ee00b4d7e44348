// Package rules applies configured alert rules to composite signals and
// owns the per-(instrument, rule) dedup state machine.
package rules

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	apperrors "market-sentinel/internal/errors"
	"market-sentinel/internal/logging"
	"market-sentinel/internal/models"
	"market-sentinel/internal/store"
)

// Evaluator decides whether a condition crossing becomes a user-visible
// alert. State transitions:
//
//	INACTIVE  --condition true-->  TRIGGERED (one event) --> COOLDOWN
//	COOLDOWN  --window elapsed-->  INACTIVE (re-triggers immediately if
//	                               the condition still holds)
//
// TRIGGERED never survives a cycle; COOLDOWN bounds duplicate noise to one
// event per cooldown window no matter how many cycles re-detect the
// condition.
type Evaluator struct {
	store store.Store
	locks *lockTable
	log   zerolog.Logger

	now func() time.Time
}

// NewEvaluator creates an evaluator backed by the given state store.
func NewEvaluator(st store.Store, logger zerolog.Logger) *Evaluator {
	return &Evaluator{
		store: st,
		locks: newLockTable(),
		log:   logger,
		now:   time.Now,
	}
}

// WithClock overrides the evaluator's clock. Used in tests.
func (e *Evaluator) WithClock(now func() time.Time) *Evaluator {
	e.now = now
	return e
}

// Evaluate applies one rule to one instrument's signal for the cycle that
// started at cycleTS. It returns a new AlertEvent on an INACTIVE→TRIGGERED
// transition and nil otherwise. The read-modify-write of the stored state
// is serialized per (instrument, rule) key.
func (e *Evaluator) Evaluate(ctx context.Context, cycleTS time.Time, rule models.AlertRule, sig *models.CompositeSignal) (*models.AlertEvent, error) {
	condition := e.conditionMet(rule, sig)
	instrument := sig.Instrument

	lock := e.locks.get(instrument + "\x00" + rule.ID)
	lock.Lock()
	defer lock.Unlock()

	state, err := e.store.GetState(ctx, instrument, rule.ID)
	if err != nil {
		return nil, apperrors.Wrapf(err, "loading state for %s/%s", instrument, rule.ID)
	}
	if state == nil {
		state = &models.AlertState{
			Instrument: instrument,
			RuleID:     rule.ID,
			Status:     models.StatusInactive,
		}
	}

	now := e.now()
	dirty := false

	// COOLDOWN exits automatically once the window elapses; the pair is
	// then evaluated as INACTIVE within the same cycle.
	if state.Status == models.StatusCooldown && now.Sub(state.LastTriggeredAt) >= rule.Cooldown {
		state.Status = models.StatusInactive
		state.LastTransitionAt = now
		dirty = true
	}

	switch state.Status {
	case models.StatusCooldown:
		// Suppressed: no event regardless of the condition value.
		return nil, nil

	case models.StatusInactive:
		if !condition {
			if dirty {
				return nil, e.store.PutState(ctx, state)
			}
			return nil, nil
		}

		event := &models.AlertEvent{
			EventID:    models.NewEventID(instrument, rule.ID, cycleTS),
			Instrument: instrument,
			RuleID:     rule.ID,
			Severity:   rule.Severity,
			Message:    formatMessage(rule, sig),
			RaisedAt:   cycleTS,
		}

		inserted, err := e.store.SaveEvent(ctx, event)
		if err != nil {
			return nil, apperrors.Wrapf(err, "recording event for %s/%s", instrument, rule.ID)
		}

		// TRIGGERED is a transient marker: it advances to COOLDOWN before
		// the state is persisted, so it is never observed across cycles.
		state.Status = models.StatusCooldown
		state.LastTriggeredAt = cycleTS
		state.LastTransitionAt = now
		if err := e.store.PutState(ctx, state); err != nil {
			return nil, apperrors.Wrapf(err, "persisting state for %s/%s", instrument, rule.ID)
		}

		if !inserted {
			// The same trigger was already derived (deterministic event ID):
			// nothing new to dispatch.
			return nil, nil
		}

		logging.LogAlert(e.log, event.EventID, instrument, rule.ID, string(rule.Severity))
		return event, nil

	default:
		// TRIGGERED is never persisted; finding it stored means a corrupt
		// row. Reset to INACTIVE rather than wedge the pair forever.
		state.Status = models.StatusInactive
		state.LastTransitionAt = now
		return nil, e.store.PutState(ctx, state)
	}
}

// conditionMet re-derives the condition truth value from the signal.
func (e *Evaluator) conditionMet(rule models.AlertRule, sig *models.CompositeSignal) bool {
	var value float64
	switch rule.Metric {
	case models.MetricPrice:
		value = sig.PriceComponent
	case models.MetricSentiment:
		value = sig.SentimentComponent
	case models.MetricComposite:
		value = sig.Score
	}
	if rule.Absolute {
		value = math.Abs(value)
	}

	switch rule.Comparator {
	case models.ComparatorGT:
		return value > rule.Threshold
	case models.ComparatorGTE:
		return value >= rule.Threshold
	case models.ComparatorLT:
		return value < rule.Threshold
	case models.ComparatorLTE:
		return value <= rule.Threshold
	}
	return false
}

func formatMessage(rule models.AlertRule, sig *models.CompositeSignal) string {
	switch rule.Metric {
	case models.MetricPrice:
		direction := "increased"
		if sig.PriceComponent < 0 {
			direction = "decreased"
		}
		return fmt.Sprintf("%s %s by %.2f%% (rule %s)",
			sig.Instrument, direction, math.Abs(sig.PriceComponent)*100, rule.ID)
	case models.MetricSentiment:
		return fmt.Sprintf("%s sentiment at %.2f across %d samples (rule %s)",
			sig.Instrument, sig.SentimentComponent, sig.SentimentSamples, rule.ID)
	default:
		return fmt.Sprintf("%s composite score %.2f [%s] (rule %s)",
			sig.Instrument, sig.Score, sig.Label(), rule.ID)
	}
}
