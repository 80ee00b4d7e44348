// Package market provides read-only access to the observations recorded by
// the external ingestion collaborator.
package market

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"market-sentinel/internal/models"
)

// Source is the observation store adapter consumed by the signal
// aggregator. Implementations are read-only.
type Source interface {
	// LatestPrice returns the most recent price observation for the
	// instrument, or nil when none exists.
	LatestPrice(ctx context.Context, instrument string) (*models.Observation, error)
	// SentimentWindow returns sentiment observations newer than since,
	// oldest first.
	SentimentWindow(ctx context.Context, instrument string, since time.Time) ([]models.Observation, error)
}

// SQLiteSource reads observations from the SQLite database shared with the
// ingestion collaborator.
type SQLiteSource struct {
	db *sql.DB
}

// NewSQLiteSource creates a source over an existing database handle.
func NewSQLiteSource(db *sql.DB) *SQLiteSource {
	return &SQLiteSource{db: db}
}

// LatestPrice returns the newest price observation, or nil when the
// instrument has no price data at all.
func (s *SQLiteSource) LatestPrice(ctx context.Context, instrument string) (*models.Observation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT instrument, kind, value, observed_at
		FROM observations
		WHERE instrument = ? AND kind = ?
		ORDER BY observed_at DESC LIMIT 1
	`, instrument, string(models.ObservationPrice))

	var obs models.Observation
	var kind string
	err := row.Scan(&obs.Instrument, &kind, &obs.Value, &obs.ObservedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query latest price: %w", err)
	}
	obs.Kind = models.ObservationKind(kind)
	return &obs, nil
}

// SentimentWindow returns sentiment observations within the lookback
// window, oldest first.
func (s *SQLiteSource) SentimentWindow(ctx context.Context, instrument string, since time.Time) ([]models.Observation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT instrument, kind, value, observed_at
		FROM observations
		WHERE instrument = ? AND kind = ? AND observed_at >= ?
		ORDER BY observed_at ASC
	`, instrument, string(models.ObservationSentiment), since)
	if err != nil {
		return nil, fmt.Errorf("failed to query sentiment window: %w", err)
	}
	defer rows.Close()

	var observations []models.Observation
	for rows.Next() {
		var obs models.Observation
		var kind string
		if err := rows.Scan(&obs.Instrument, &kind, &obs.Value, &obs.ObservedAt); err != nil {
			return nil, fmt.Errorf("failed to scan observation: %w", err)
		}
		obs.Kind = models.ObservationKind(kind)
		observations = append(observations, obs)
	}
	return observations, rows.Err()
}
