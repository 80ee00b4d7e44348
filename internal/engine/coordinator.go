// Package engine owns the evaluation cycle: lease acquisition, instrument
// fan-out, and the cycle report.
package engine

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"market-sentinel/internal/config"
	apperrors "market-sentinel/internal/errors"
	"market-sentinel/internal/logging"
	"market-sentinel/internal/models"
	"market-sentinel/internal/notify"
	"market-sentinel/internal/resilience"
	"market-sentinel/internal/rules"
	"market-sentinel/internal/signal"
)

// Coordinator runs evaluation cycles. At most one cycle runs at a time;
// overlapping invocations return a SkippedOverlap report instead of
// queueing.
type Coordinator struct {
	cfg        *config.Config
	aggregator *signal.Aggregator
	evaluator  *rules.Evaluator
	dispatcher *notify.Dispatcher
	lease      *Lease
	probe      *resilience.Probe
	log        zerolog.Logger

	now func() time.Time
}

// NewCoordinator wires a coordinator from its collaborators. The health
// probe observes the coordinator's lease, so it is attached afterwards via
// AttachProbe.
func NewCoordinator(
	cfg *config.Config,
	aggregator *signal.Aggregator,
	evaluator *rules.Evaluator,
	dispatcher *notify.Dispatcher,
	logger zerolog.Logger,
) *Coordinator {
	return &Coordinator{
		cfg:        cfg,
		aggregator: aggregator,
		evaluator:  evaluator,
		dispatcher: dispatcher,
		lease:      NewLease(),
		log:        logger,
		now:        time.Now,
	}
}

// Lease exposes the cycle lease for health probing.
func (c *Coordinator) Lease() *Lease {
	return c.lease
}

// AttachProbe sets the health probe fed by completed cycles.
func (c *Coordinator) AttachProbe(probe *resilience.Probe) {
	c.probe = probe
}

// WithClock overrides the coordinator's clock. Used in tests.
func (c *Coordinator) WithClock(now func() time.Time) *Coordinator {
	c.now = now
	return c
}

// RunCycle performs one evaluation pass over the configured instrument
// universe. Per-instrument failures are contained in the report; only
// configuration errors abort the cycle, before any instrument runs.
func (c *Coordinator) RunCycle(ctx context.Context) (*models.CycleReport, error) {
	report := &models.CycleReport{
		CycleID:   uuid.NewString(),
		StartedAt: c.now(),
	}
	log := logging.WithCycle(c.log, report.CycleID)

	// A corrupt rule set aborts before any instrument is touched; better
	// no cycle than a cycle under half a rule set.
	ruleSet, err := c.cfg.AlertRules()
	if err != nil {
		return nil, err
	}

	if !c.lease.TryAcquire() {
		report.SkippedOverlap = true
		log.Warn().Msg(apperrors.ErrOverlapSkipped.Error())
		return report, nil
	}
	defer c.lease.Release()

	if c.cfg.Engine.CycleDeadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Engine.CycleDeadline)
		defer cancel()
	}

	c.fanOut(ctx, log, ruleSet, report)

	report.Duration = c.now().Sub(report.StartedAt)
	logging.LogCycle(log, report.CycleID, report.Evaluated, report.Skipped, report.AlertsRaised, report.Duration)
	if c.probe != nil {
		c.probe.RecordCycle(c.now(), report.Duration)
	}

	return report, nil
}

// fanOut evaluates instruments on a bounded worker pool, serializing
// report mutation. Cancellation is honored between instruments; completed
// instruments keep their persisted state and events.
func (c *Coordinator) fanOut(ctx context.Context, log zerolog.Logger, ruleSet []models.AlertRule, report *models.CycleReport) {
	workers := c.cfg.Engine.Workers
	if workers < 1 {
		workers = 1
	}

	jobs := make(chan string)
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for instrument := range jobs {
				evaluated, skipped, raised, errs := c.evaluateInstrument(ctx, log, instrument, ruleSet, report.StartedAt)
				mu.Lock()
				report.Evaluated += evaluated
				report.Skipped += skipped
				report.AlertsRaised += raised
				report.Errors = append(report.Errors, errs...)
				mu.Unlock()
			}
		}()
	}

feed:
	for _, instrument := range c.cfg.Engine.Instruments {
		select {
		case <-ctx.Done():
			mu.Lock()
			report.Errors = append(report.Errors, "cycle cancelled: "+ctx.Err().Error())
			mu.Unlock()
			break feed
		case jobs <- instrument:
		}
	}
	close(jobs)
	wg.Wait()
}

// evaluateInstrument aggregates one instrument and applies every matching
// rule. Returned counts feed the cycle report.
func (c *Coordinator) evaluateInstrument(ctx context.Context, log zerolog.Logger, instrument string, ruleSet []models.AlertRule, cycleTS time.Time) (evaluated, skipped, raised int, errs []string) {
	ilog := logging.WithInstrument(log, instrument)

	sig, err := c.aggregator.Aggregate(ctx, instrument)
	if err != nil {
		if apperrors.IsDataGap(err) {
			ilog.Warn().Err(err).Msg("Skipping instrument")
			return 0, 1, 0, nil
		}
		ilog.Error().Err(err).Msg("Aggregation failed")
		return 0, 0, 0, []string{err.Error()}
	}
	evaluated = 1

	for _, rule := range ruleSet {
		if !rule.Matches(instrument) {
			continue
		}

		event, err := c.evaluator.Evaluate(ctx, cycleTS, rule, sig)
		if err != nil {
			errs = append(errs, err.Error())
			continue
		}
		if event == nil {
			continue
		}
		raised++

		if c.cfg.Notifications.Enabled && c.dispatcher != nil {
			c.dispatcher.Dispatch(ctx, event, rule.Channels)
		}
	}

	return evaluated, skipped, raised, errs
}
