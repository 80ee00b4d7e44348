// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"

	"market-sentinel/internal/models"
)

// Store defines persistence for alert state, the alert ledger, and
// delivery attempt records. AlertState mutation happens through
// GetState/PutState under the evaluator's per-key serialization; events
// and attempts are append-only.
type Store interface {
	// Alert state (dedup truth)
	GetState(ctx context.Context, instrument, ruleID string) (*models.AlertState, error)
	PutState(ctx context.Context, state *models.AlertState) error

	// Alert ledger
	// SaveEvent records the event; it returns false when an event with the
	// same ID is already recorded, which makes trigger re-derivation
	// idempotent.
	SaveEvent(ctx context.Context, event *models.AlertEvent) (bool, error)
	RecordAttempt(ctx context.Context, attempt *models.NotificationAttempt) error
	// RecentEvents returns events newest-first, each annotated with its
	// delivery attempts. instrument may be empty to query all instruments.
	RecentEvents(ctx context.Context, instrument string, limit int) ([]models.EventWithAttempts, error)

	// Observations (written by the ingestion collaborator; the engine only
	// seeds them in tests)
	SaveObservation(ctx context.Context, obs *models.Observation) error

	// Lifecycle
	Close() error
}
