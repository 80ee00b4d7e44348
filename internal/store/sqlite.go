package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/samber/lo"

	"market-sentinel/internal/models"
)

// SQLiteStore implements Store using SQLite. The database file is shared
// with the ingestion collaborator, which writes the observations table.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite-based store.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool for concurrent access
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	store := &SQLiteStore{db: db}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// initSchema creates all required tables and indexes.
func (s *SQLiteStore) initSchema() error {
	schema := `
	-- Observations written by the ingestion collaborator
	CREATE TABLE IF NOT EXISTS observations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		instrument TEXT NOT NULL,
		kind TEXT NOT NULL,
		value REAL NOT NULL,
		observed_at DATETIME NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_obs_instrument_kind_time
		ON observations(instrument, kind, observed_at DESC);

	-- Per-(instrument, rule) dedup state
	CREATE TABLE IF NOT EXISTS alert_state (
		instrument TEXT NOT NULL,
		rule_id TEXT NOT NULL,
		status TEXT NOT NULL,
		last_triggered_at DATETIME,
		last_transition_at DATETIME,
		PRIMARY KEY (instrument, rule_id)
	);

	-- Append-only alert ledger
	CREATE TABLE IF NOT EXISTS alert_events (
		event_id TEXT PRIMARY KEY,
		instrument TEXT NOT NULL,
		rule_id TEXT NOT NULL,
		severity TEXT NOT NULL,
		message TEXT NOT NULL,
		raised_at DATETIME NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_events_instrument_time
		ON alert_events(instrument, raised_at DESC);
	CREATE INDEX IF NOT EXISTS idx_events_time ON alert_events(raised_at DESC);

	-- Delivery attempt records, append-only
	CREATE TABLE IF NOT EXISTS notification_attempts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		event_id TEXT NOT NULL,
		channel TEXT NOT NULL,
		attempt_number INTEGER NOT NULL,
		outcome TEXT NOT NULL,
		error TEXT,
		attempted_at DATETIME NOT NULL,
		FOREIGN KEY (event_id) REFERENCES alert_events(event_id)
	);
	CREATE INDEX IF NOT EXISTS idx_attempts_event ON notification_attempts(event_id, attempt_number);
	`

	_, err := s.db.Exec(schema)
	return err
}

// DB exposes the underlying handle so the observation adapter can share
// the connection pool.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ============================================================================
// Alert State Methods
// ============================================================================

// GetState returns the stored state for a (instrument, rule) pair, or nil
// when the pair has never transitioned.
func (s *SQLiteStore) GetState(ctx context.Context, instrument, ruleID string) (*models.AlertState, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT instrument, rule_id, status, last_triggered_at, last_transition_at
		FROM alert_state WHERE instrument = ? AND rule_id = ?
	`, instrument, ruleID)

	var state models.AlertState
	var triggeredAt, transitionAt sql.NullTime
	err := row.Scan(&state.Instrument, &state.RuleID, &state.Status, &triggeredAt, &transitionAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query alert state: %w", err)
	}
	if triggeredAt.Valid {
		state.LastTriggeredAt = triggeredAt.Time
	}
	if transitionAt.Valid {
		state.LastTransitionAt = transitionAt.Time
	}
	return &state, nil
}

// PutState upserts the state for a (instrument, rule) pair.
func (s *SQLiteStore) PutState(ctx context.Context, state *models.AlertState) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO alert_state (instrument, rule_id, status, last_triggered_at, last_transition_at)
		VALUES (?, ?, ?, ?, ?)
	`, state.Instrument, state.RuleID, string(state.Status), state.LastTriggeredAt, state.LastTransitionAt)
	if err != nil {
		return fmt.Errorf("failed to save alert state: %w", err)
	}
	return nil
}

// ============================================================================
// Alert Ledger Methods
// ============================================================================

// SaveEvent appends an event to the ledger. The deterministic event ID
// doubles as the dedup key: re-deriving the same trigger is a no-op and
// returns false.
func (s *SQLiteStore) SaveEvent(ctx context.Context, event *models.AlertEvent) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO alert_events (event_id, instrument, rule_id, severity, message, raised_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, event.EventID, event.Instrument, event.RuleID, string(event.Severity), event.Message, event.RaisedAt)
	if err != nil {
		return false, fmt.Errorf("failed to save alert event: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to save alert event: %w", err)
	}
	return rows > 0, nil
}

// RecordAttempt appends a delivery attempt record.
func (s *SQLiteStore) RecordAttempt(ctx context.Context, attempt *models.NotificationAttempt) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notification_attempts (event_id, channel, attempt_number, outcome, error, attempted_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, attempt.EventID, attempt.Channel, attempt.AttemptNumber, string(attempt.Outcome), attempt.Error, attempt.AttemptedAt)
	if err != nil {
		return fmt.Errorf("failed to record attempt: %w", err)
	}
	return nil
}

// RecentEvents returns events newest-first with their delivery attempts.
func (s *SQLiteStore) RecentEvents(ctx context.Context, instrument string, limit int) ([]models.EventWithAttempts, error) {
	if limit <= 0 {
		limit = 10
	}

	query := `
		SELECT event_id, instrument, rule_id, severity, message, raised_at
		FROM alert_events
	`
	args := []interface{}{}
	if instrument != "" {
		query += " WHERE instrument = ?"
		args = append(args, instrument)
	}
	query += " ORDER BY raised_at DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []models.AlertEvent
	for rows.Next() {
		var e models.AlertEvent
		var severity string
		if err := rows.Scan(&e.EventID, &e.Instrument, &e.RuleID, &severity, &e.Message, &e.RaisedAt); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		e.Severity = models.Severity(severity)
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, nil
	}

	attempts, err := s.attemptsForEvents(ctx, lo.Map(events, func(e models.AlertEvent, _ int) string {
		return e.EventID
	}))
	if err != nil {
		return nil, err
	}
	byEvent := lo.GroupBy(attempts, func(a models.NotificationAttempt) string {
		return a.EventID
	})

	result := make([]models.EventWithAttempts, 0, len(events))
	for _, e := range events {
		result = append(result, models.EventWithAttempts{
			Event:    e,
			Attempts: byEvent[e.EventID],
		})
	}
	return result, nil
}

func (s *SQLiteStore) attemptsForEvents(ctx context.Context, eventIDs []string) ([]models.NotificationAttempt, error) {
	placeholders := make([]string, len(eventIDs))
	args := make([]interface{}, len(eventIDs))
	for i, id := range eventIDs {
		placeholders[i] = "?"
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT event_id, channel, attempt_number, outcome, error, attempted_at
		FROM notification_attempts
		WHERE event_id IN (`+strings.Join(placeholders, ",")+`)
		ORDER BY event_id, channel, attempt_number ASC
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query attempts: %w", err)
	}
	defer rows.Close()

	var attempts []models.NotificationAttempt
	for rows.Next() {
		var a models.NotificationAttempt
		var outcome string
		var errMsg sql.NullString
		if err := rows.Scan(&a.EventID, &a.Channel, &a.AttemptNumber, &outcome, &errMsg, &a.AttemptedAt); err != nil {
			return nil, fmt.Errorf("failed to scan attempt: %w", err)
		}
		a.Outcome = models.AttemptOutcome(outcome)
		a.Error = errMsg.String
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}

// ============================================================================
// Observation Methods
// ============================================================================

// SaveObservation appends an observation. In production the ingestion
// collaborator owns these rows; the engine uses this for test seeding.
func (s *SQLiteStore) SaveObservation(ctx context.Context, obs *models.Observation) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO observations (instrument, kind, value, observed_at)
		VALUES (?, ?, ?, ?)
	`, obs.Instrument, string(obs.Kind), obs.Value, obs.ObservedAt)
	if err != nil {
		return fmt.Errorf("failed to save observation: %w", err)
	}
	return nil
}
