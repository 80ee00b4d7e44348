// Package resilience provides health reporting for the alerting engine.
package resilience

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// HealthStatus represents the overall engine health.
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "HEALTHY"
	HealthStatusDegraded  HealthStatus = "DEGRADED"
	HealthStatusUnhealthy HealthStatus = "UNHEALTHY"
	HealthStatusUnknown   HealthStatus = "UNKNOWN"
)

// LeaseStatusFunc reports whether the evaluation lease is held and since
// when. Wired to the coordinator's lease.
type LeaseStatusFunc func() (bool, time.Time)

// Probe tracks cycle outcomes and detects stuck leases.
type Probe struct {
	mu sync.RWMutex

	cycleDeadline time.Duration
	leaseStatus   LeaseStatusFunc

	lastCycleAt        time.Time
	lastCycleDuration  time.Duration
	lastWithinDeadline bool
	cyclesRecorded     int64
}

// NewProbe creates a probe. cycleDeadline is used both to judge the last
// cycle's duration and to decide when a held lease counts as stuck.
func NewProbe(cycleDeadline time.Duration, leaseStatus LeaseStatusFunc) *Probe {
	return &Probe{
		cycleDeadline: cycleDeadline,
		leaseStatus:   leaseStatus,
	}
}

// RecordCycle records a completed (non-skipped) cycle.
func (p *Probe) RecordCycle(completedAt time.Time, duration time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastCycleAt = completedAt
	p.lastCycleDuration = duration
	p.lastWithinDeadline = p.cycleDeadline <= 0 || duration <= p.cycleDeadline
	p.cyclesRecorded++
}

// Snapshot is the externally visible health report.
type Snapshot struct {
	Status            HealthStatus  `json:"status"`
	LastCycleAt       time.Time     `json:"last_cycle_at"`
	LastCycleDuration time.Duration `json:"last_cycle_duration"`
	WithinDeadline    bool          `json:"within_deadline"`
	LeaseHeld         bool          `json:"lease_held"`
	LeaseHeldSince    time.Time     `json:"lease_held_since,omitempty"`
	StuckLease        bool          `json:"stuck_lease"`
}

// Snapshot reports current health. A lease held longer than the cycle
// deadline is flagged as stuck and makes the engine unhealthy.
func (p *Probe) Snapshot() Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()

	snap := Snapshot{
		LastCycleAt:       p.lastCycleAt,
		LastCycleDuration: p.lastCycleDuration,
		WithinDeadline:    p.lastWithinDeadline,
	}

	if p.leaseStatus != nil {
		held, since := p.leaseStatus()
		snap.LeaseHeld = held
		snap.LeaseHeldSince = since
		if held && p.cycleDeadline > 0 && time.Since(since) > p.cycleDeadline {
			snap.StuckLease = true
		}
	}

	switch {
	case snap.StuckLease:
		snap.Status = HealthStatusUnhealthy
	case p.cyclesRecorded == 0:
		snap.Status = HealthStatusUnknown
	case !snap.WithinDeadline:
		snap.Status = HealthStatusDegraded
	default:
		snap.Status = HealthStatusHealthy
	}

	return snap
}

// Handler returns an HTTP handler serving the health snapshot as JSON.
// Unhealthy reports get a 503 so load balancers can act on it.
func (p *Probe) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		snap := p.Snapshot()

		w.Header().Set("Content-Type", "application/json")
		if snap.Status == HealthStatusUnhealthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(snap)
	})
}
