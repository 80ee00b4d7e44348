package notify

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"market-sentinel/internal/config"
	apperrors "market-sentinel/internal/errors"
	"market-sentinel/internal/logging"
	"market-sentinel/internal/models"
	"market-sentinel/internal/store"
	"market-sentinel/pkg/utils"
)

// Dispatcher fans an alert event out to every configured channel with
// retry and exponential backoff. Delivery failure never un-raises the
// event: exhausting retries leaves the event in the ledger with its failed
// attempts recorded.
type Dispatcher struct {
	channels    []Channel
	ledger      store.Store
	maxAttempts int
	backoffBase time.Duration
	backoffCap  time.Duration
	sendTimeout time.Duration
	log         zerolog.Logger

	sleep func(time.Duration)
	now   func() time.Time
}

// NewDispatcher creates a dispatcher over the given channels.
func NewDispatcher(channels []Channel, ledger store.Store, cfg config.NotificationConfig, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		channels:    channels,
		ledger:      ledger,
		maxAttempts: cfg.MaxAttempts,
		backoffBase: cfg.BackoffBase,
		backoffCap:  cfg.BackoffCap,
		sendTimeout: cfg.SendTimeout,
		log:         logger,
		sleep:       time.Sleep,
		now:         time.Now,
	}
}

// WithSleep overrides the backoff sleep. Used in tests.
func (d *Dispatcher) WithSleep(sleep func(time.Duration)) *Dispatcher {
	d.sleep = sleep
	return d
}

// Dispatch delivers the event on channels, restricted to the rule's
// channel names when the list is non-empty. Every attempt is recorded in
// the ledger.
func (d *Dispatcher) Dispatch(ctx context.Context, event *models.AlertEvent, channelNames []string) []models.NotificationAttempt {
	var attempts []models.NotificationAttempt

	for _, ch := range d.channels {
		if !channelSelected(ch.Name(), channelNames) {
			continue
		}
		attempts = append(attempts, d.deliver(ctx, ch, event)...)
	}

	return attempts
}

// deliver runs the retry loop for one channel.
func (d *Dispatcher) deliver(ctx context.Context, ch Channel, event *models.AlertEvent) []models.NotificationAttempt {
	var attempts []models.NotificationAttempt

	for attempt := 1; attempt <= d.maxAttempts; attempt++ {
		sendCtx, cancel := context.WithTimeout(ctx, d.sendTimeout)
		err := ch.Send(sendCtx, event)
		cancel()

		outcome := classifyOutcome(err)
		record := models.NotificationAttempt{
			EventID:       event.EventID,
			Channel:       ch.Name(),
			AttemptNumber: attempt,
			Outcome:       outcome,
			AttemptedAt:   d.now(),
		}
		if err != nil {
			record.Error = err.Error()
		}
		attempts = append(attempts, record)

		if recErr := d.ledger.RecordAttempt(ctx, &record); recErr != nil {
			d.log.Error().Err(recErr).
				Str("event_id", event.EventID).
				Str("channel", ch.Name()).
				Msg("Failed to record delivery attempt")
		}
		logging.LogDispatch(d.log, event.EventID, ch.Name(), attempt, string(outcome), err)

		if outcome == models.OutcomeSuccess || outcome == models.OutcomePermanentFailure {
			break
		}
		// Transient failure: back off before the next attempt.
		if attempt < d.maxAttempts {
			d.sleep(utils.CalculateBackoff(attempt, d.backoffBase, d.backoffCap, 2.0))
		}
	}

	return attempts
}

func classifyOutcome(err error) models.AttemptOutcome {
	switch {
	case err == nil:
		return models.OutcomeSuccess
	case apperrors.IsPermanent(err):
		return models.OutcomePermanentFailure
	default:
		// Unknown errors and timeouts are treated as transient: retrying a
		// dead provider is cheap, dropping a live alert is not.
		return models.OutcomeTransientFailure
	}
}

func channelSelected(name string, selected []string) bool {
	if len(selected) == 0 {
		return true
	}
	for _, s := range selected {
		if s == name {
			return true
		}
	}
	return false
}
