// Package models defines the core domain entities for the alerting engine.
package models

import "time"

// ObservationKind identifies the type of a recorded observation.
type ObservationKind string

const (
	// ObservationPrice is a price-movement observation. Value holds the
	// fractional change since the previous close (0.05 == +5%).
	ObservationPrice ObservationKind = "price"
	// ObservationSentiment is a news sentiment observation. Value is the
	// score produced by the upstream sentiment provider, bounded to [-1, 1].
	ObservationSentiment ObservationKind = "sentiment"
)

// Observation is a single immutable data point recorded by the ingestion
// collaborator. The engine only ever reads observations.
type Observation struct {
	Instrument string
	Kind       ObservationKind
	Value      float64
	ObservedAt time.Time
}
