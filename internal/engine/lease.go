package engine

import (
	"sync"
	"time"
)

// Lease is the single mutual-exclusion point for evaluation cycles. A
// cycle that finds the lease held returns a SkippedOverlap report
// immediately instead of queueing, which keeps the engine safe even when
// the external scheduler's non-overlap guarantee is violated.
type Lease struct {
	mu    sync.Mutex
	held  bool
	since time.Time
}

// NewLease creates a released lease.
func NewLease() *Lease {
	return &Lease{}
}

// TryAcquire attempts to take the lease without blocking.
func (l *Lease) TryAcquire() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held {
		return false
	}
	l.held = true
	l.since = time.Now()
	return true
}

// Release releases the lease.
func (l *Lease) Release() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.held = false
	l.since = time.Time{}
}

// Status reports whether the lease is held and since when.
func (l *Lease) Status() (bool, time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.held, l.since
}
