package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"market-sentinel/internal/models"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	st, err := NewSQLiteStore(filepath.Join(t.TempDir(), "sentinel.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func TestAlertStateRoundtrip(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	// A pair that never transitioned has no row.
	state, err := st.GetState(ctx, "AAPL", "price-spike")
	require.NoError(t, err)
	assert.Nil(t, state)

	triggered := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	require.NoError(t, st.PutState(ctx, &models.AlertState{
		Instrument:       "AAPL",
		RuleID:           "price-spike",
		Status:           models.StatusCooldown,
		LastTriggeredAt:  triggered,
		LastTransitionAt: triggered,
	}))

	state, err = st.GetState(ctx, "AAPL", "price-spike")
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, models.StatusCooldown, state.Status)
	assert.True(t, state.LastTriggeredAt.Equal(triggered))

	// Upsert replaces, not duplicates.
	state.Status = models.StatusInactive
	require.NoError(t, st.PutState(ctx, state))

	state, err = st.GetState(ctx, "AAPL", "price-spike")
	require.NoError(t, err)
	assert.Equal(t, models.StatusInactive, state.Status)
}

func TestSaveEventIsIdempotent(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	raisedAt := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	event := &models.AlertEvent{
		EventID:    models.NewEventID("AAPL", "price-spike", raisedAt),
		Instrument: "AAPL",
		RuleID:     "price-spike",
		Severity:   models.SeverityCritical,
		Message:    "AAPL increased by 7.00% (rule price-spike)",
		RaisedAt:   raisedAt,
	}

	inserted, err := st.SaveEvent(ctx, event)
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = st.SaveEvent(ctx, event)
	require.NoError(t, err)
	assert.False(t, inserted)

	events, err := st.RecentEvents(ctx, "AAPL", 10)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestRecentEventsOrderingAndAttempts(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	base := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	instruments := []string{"AAPL", "TSLA", "AAPL"}
	var ids []string
	for i, instrument := range instruments {
		raisedAt := base.Add(time.Duration(i) * time.Minute)
		id := models.NewEventID(instrument, "price-spike", raisedAt)
		ids = append(ids, id)
		_, err := st.SaveEvent(ctx, &models.AlertEvent{
			EventID:    id,
			Instrument: instrument,
			RuleID:     "price-spike",
			Severity:   models.SeverityWarning,
			Message:    "spike",
			RaisedAt:   raisedAt,
		})
		require.NoError(t, err)
	}

	require.NoError(t, st.RecordAttempt(ctx, &models.NotificationAttempt{
		EventID:       ids[0],
		Channel:       "webhook",
		AttemptNumber: 1,
		Outcome:       models.OutcomeTransientFailure,
		Error:         "unexpected status 503",
		AttemptedAt:   base,
	}))
	require.NoError(t, st.RecordAttempt(ctx, &models.NotificationAttempt{
		EventID:       ids[0],
		Channel:       "webhook",
		AttemptNumber: 2,
		Outcome:       models.OutcomeSuccess,
		AttemptedAt:   base.Add(time.Second),
	}))

	// Newest first, all instruments.
	events, err := st.RecentEvents(ctx, "", 10)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, ids[2], events[0].Event.EventID)
	assert.Equal(t, ids[0], events[2].Event.EventID)

	// Attempts ride along in attempt order.
	require.Len(t, events[2].Attempts, 2)
	assert.Equal(t, 1, events[2].Attempts[0].AttemptNumber)
	assert.Equal(t, models.OutcomeTransientFailure, events[2].Attempts[0].Outcome)
	assert.Equal(t, "unexpected status 503", events[2].Attempts[0].Error)
	assert.Equal(t, models.OutcomeSuccess, events[2].Attempts[1].Outcome)
	assert.Empty(t, events[1].Attempts)

	// Instrument filter.
	events, err = st.RecentEvents(ctx, "TSLA", 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "TSLA", events[0].Event.Instrument)

	// Limit caps the page.
	events, err = st.RecentEvents(ctx, "", 2)
	require.NoError(t, err)
	assert.Len(t, events, 2)

	// Non-positive limit falls back to the default page size.
	events, err = st.RecentEvents(ctx, "", 0)
	require.NoError(t, err)
	assert.Len(t, events, 3)
}

func TestRecentEventsEmpty(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	events, err := st.RecentEvents(ctx, "", 10)
	require.NoError(t, err)
	assert.Empty(t, events)
}
