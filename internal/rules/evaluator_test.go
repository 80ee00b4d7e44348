package rules

import (
	"context"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"market-sentinel/internal/models"
)

// memoryStore is an in-memory store.Store for evaluator tests.
type memoryStore struct {
	states   map[string]models.AlertState
	events   map[string]models.AlertEvent
	attempts []models.NotificationAttempt
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		states: make(map[string]models.AlertState),
		events: make(map[string]models.AlertEvent),
	}
}

func stateKey(instrument, ruleID string) string {
	return instrument + "/" + ruleID
}

func (m *memoryStore) GetState(ctx context.Context, instrument, ruleID string) (*models.AlertState, error) {
	if st, ok := m.states[stateKey(instrument, ruleID)]; ok {
		copied := st
		return &copied, nil
	}
	return nil, nil
}

func (m *memoryStore) PutState(ctx context.Context, state *models.AlertState) error {
	m.states[stateKey(state.Instrument, state.RuleID)] = *state
	return nil
}

func (m *memoryStore) SaveEvent(ctx context.Context, event *models.AlertEvent) (bool, error) {
	if _, ok := m.events[event.EventID]; ok {
		return false, nil
	}
	m.events[event.EventID] = *event
	return true, nil
}

func (m *memoryStore) RecordAttempt(ctx context.Context, attempt *models.NotificationAttempt) error {
	m.attempts = append(m.attempts, *attempt)
	return nil
}

func (m *memoryStore) RecentEvents(ctx context.Context, instrument string, limit int) ([]models.EventWithAttempts, error) {
	return nil, nil
}

func (m *memoryStore) SaveObservation(ctx context.Context, obs *models.Observation) error {
	return nil
}

func (m *memoryStore) Close() error { return nil }

func priceRule(threshold float64, cooldown time.Duration) models.AlertRule {
	return models.AlertRule{
		ID:              "price-spike",
		InstrumentScope: models.WildcardScope,
		Metric:          models.MetricPrice,
		Comparator:      models.ComparatorGTE,
		Threshold:       threshold,
		Absolute:        true,
		Cooldown:        cooldown,
		Severity:        models.SeverityCritical,
	}
}

func priceSignal(instrument string, change float64, at time.Time) *models.CompositeSignal {
	return &models.CompositeSignal{
		Instrument:     instrument,
		Score:          change,
		PriceComponent: change,
		ComputedAt:     at,
	}
}

func TestEvaluateCooldownSuppressesRepeats(t *testing.T) {
	ctx := context.Background()
	st := newMemoryStore()
	rule := priceRule(0.05, 10*time.Minute)
	t0 := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	ev := NewEvaluator(st, zerolog.Nop())

	// First crossing raises an event and enters cooldown.
	ev.WithClock(fixedClock(t0))
	event, err := ev.Evaluate(ctx, t0, rule, priceSignal("AAPL", 0.07, t0))
	require.NoError(t, err)
	require.NotNil(t, event)
	assert.Equal(t, "AAPL", event.Instrument)
	assert.Equal(t, models.SeverityCritical, event.Severity)
	assert.Equal(t, t0, event.RaisedAt)

	// Two minutes later the condition still holds but the window has not
	// elapsed: suppressed.
	t1 := t0.Add(2 * time.Minute)
	ev.WithClock(fixedClock(t1))
	event, err = ev.Evaluate(ctx, t1, rule, priceSignal("AAPL", 0.09, t1))
	require.NoError(t, err)
	assert.Nil(t, event)

	// After the window the condition no longer holds: the pair quietly
	// returns to rest, no event.
	t2 := t0.Add(11 * time.Minute)
	ev.WithClock(fixedClock(t2))
	event, err = ev.Evaluate(ctx, t2, rule, priceSignal("AAPL", 0.02, t2))
	require.NoError(t, err)
	assert.Nil(t, event)

	state, err := st.GetState(ctx, "AAPL", rule.ID)
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, models.StatusInactive, state.Status)

	// A fresh crossing after the reset raises again.
	t3 := t0.Add(12 * time.Minute)
	ev.WithClock(fixedClock(t3))
	event, err = ev.Evaluate(ctx, t3, rule, priceSignal("AAPL", 0.06, t3))
	require.NoError(t, err)
	require.NotNil(t, event)
}

func TestEvaluateRetriggersInSameCycleAfterCooldown(t *testing.T) {
	ctx := context.Background()
	st := newMemoryStore()
	rule := priceRule(0.05, 10*time.Minute)
	t0 := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	ev := NewEvaluator(st, zerolog.Nop()).WithClock(fixedClock(t0))
	event, err := ev.Evaluate(ctx, t0, rule, priceSignal("AAPL", 0.07, t0))
	require.NoError(t, err)
	require.NotNil(t, event)

	// The condition holds continuously. Once the window elapses the pair
	// exits cooldown and re-triggers within the same evaluation.
	t1 := t0.Add(10 * time.Minute)
	ev.WithClock(fixedClock(t1))
	event, err = ev.Evaluate(ctx, t1, rule, priceSignal("AAPL", 0.07, t1))
	require.NoError(t, err)
	require.NotNil(t, event)
	assert.Equal(t, t1, event.RaisedAt)
}

func TestEvaluateDuplicateDerivationIsSuppressed(t *testing.T) {
	ctx := context.Background()
	st := newMemoryStore()
	rule := priceRule(0.05, 10*time.Minute)
	t0 := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	ev := NewEvaluator(st, zerolog.Nop()).WithClock(fixedClock(t0))
	first, err := ev.Evaluate(ctx, t0, rule, priceSignal("AAPL", 0.07, t0))
	require.NoError(t, err)
	require.NotNil(t, first)

	// Re-deriving the same trigger (same instrument, rule, cycle) after a
	// crash-and-retry produces the same event ID and must not dispatch
	// twice.
	delete(st.states, stateKey("AAPL", rule.ID))
	second, err := ev.Evaluate(ctx, t0, rule, priceSignal("AAPL", 0.07, t0))
	require.NoError(t, err)
	assert.Nil(t, second)
	assert.Len(t, st.events, 1)
}

func TestEvaluateStateIsPerInstrumentAndRule(t *testing.T) {
	ctx := context.Background()
	st := newMemoryStore()
	rule := priceRule(0.05, 10*time.Minute)
	t0 := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	ev := NewEvaluator(st, zerolog.Nop()).WithClock(fixedClock(t0))
	event, err := ev.Evaluate(ctx, t0, rule, priceSignal("AAPL", 0.07, t0))
	require.NoError(t, err)
	require.NotNil(t, event)

	// AAPL being in cooldown does not suppress TSLA.
	event, err = ev.Evaluate(ctx, t0, rule, priceSignal("TSLA", 0.08, t0))
	require.NoError(t, err)
	require.NotNil(t, event)
	assert.Equal(t, "TSLA", event.Instrument)
}

func TestConditionComparators(t *testing.T) {
	ev := NewEvaluator(newMemoryStore(), zerolog.Nop())
	sig := &models.CompositeSignal{
		Instrument:         "AAPL",
		Score:              -0.2,
		PriceComponent:     -0.06,
		SentimentComponent: -0.4,
	}

	cases := []struct {
		name       string
		metric     models.Metric
		comparator models.Comparator
		threshold  float64
		absolute   bool
		want       bool
	}{
		{"abs price above", models.MetricPrice, models.ComparatorGTE, 0.05, true, true},
		{"signed price above", models.MetricPrice, models.ComparatorGTE, 0.05, false, false},
		{"sentiment below", models.MetricSentiment, models.ComparatorLTE, -0.3, false, true},
		{"sentiment strict below", models.MetricSentiment, models.ComparatorLT, -0.4, false, false},
		{"composite above", models.MetricComposite, models.ComparatorGT, -0.3, false, true},
		{"composite below", models.MetricComposite, models.ComparatorLT, -0.1, false, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rule := models.AlertRule{
				ID:         "r",
				Metric:     tc.metric,
				Comparator: tc.comparator,
				Threshold:  tc.threshold,
				Absolute:   tc.absolute,
			}
			assert.Equal(t, tc.want, ev.conditionMet(rule, sig))
		})
	}
}

// Property: with the condition continuously true, a cooldown window of W
// minutes never yields two events closer than W apart.
func TestPropertyCooldownBoundsEventRate(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("events are at least one cooldown apart", prop.ForAll(
		func(cooldownMin int, stepMin []int) bool {
			ctx := context.Background()
			st := newMemoryStore()
			cooldown := time.Duration(cooldownMin) * time.Minute
			rule := priceRule(0.05, cooldown)
			ev := NewEvaluator(st, zerolog.Nop())

			now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
			var raised []time.Time
			for _, step := range stepMin {
				now = now.Add(time.Duration(step) * time.Minute)
				ev.WithClock(fixedClock(now))
				event, err := ev.Evaluate(ctx, now, rule, priceSignal("AAPL", 0.10, now))
				if err != nil {
					t.Logf("unexpected error: %v", err)
					return false
				}
				if event != nil {
					raised = append(raised, event.RaisedAt)
				}
			}

			for i := 1; i < len(raised); i++ {
				if raised[i].Sub(raised[i-1]) < cooldown {
					t.Logf("events %v and %v within cooldown %v", raised[i-1], raised[i], cooldown)
					return false
				}
			}
			return true
		},
		gen.IntRange(1, 120),
		gen.SliceOf(gen.IntRange(1, 30)),
	))

	properties.TestingRun(t)
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}
