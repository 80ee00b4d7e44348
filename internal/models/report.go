package models

import "time"

// CycleReport summarises one evaluation cycle for observability.
type CycleReport struct {
	CycleID        string        `json:"cycle_id"`
	StartedAt      time.Time     `json:"started_at"`
	Duration       time.Duration `json:"duration"`
	Evaluated      int           `json:"evaluated"`
	Skipped        int           `json:"skipped"`
	AlertsRaised   int           `json:"alerts_raised"`
	Errors         []string      `json:"errors,omitempty"`
	SkippedOverlap bool          `json:"skipped_overlap"`
}
