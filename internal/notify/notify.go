// Package notify delivers alert events through the configured channels
// with retry, backoff, and idempotent sends.
package notify

import (
	"context"
	"fmt"
	"net/http"

	"market-sentinel/internal/config"
	apperrors "market-sentinel/internal/errors"
	"market-sentinel/internal/models"
)

// Channel is a single notification transport. The set of variants is
// closed and selected by configuration: adding a transport means adding a
// variant, not branching inside the dispatcher. Send must be safe to
// repeat: every payload carries the event ID so the provider can
// deduplicate overlapping attempts.
type Channel interface {
	Name() string
	Send(ctx context.Context, event *models.AlertEvent) error
}

// IdempotencyHeader carries the event ID on HTTP-based channels.
const IdempotencyHeader = "X-Idempotency-Key"

// Channels builds the enabled channel set from configuration.
func Channels(cfg config.NotificationConfig) []Channel {
	var channels []Channel
	if cfg.Email.Enabled {
		channels = append(channels, NewEmailChannel(cfg.Email))
	}
	if cfg.SMS.Enabled {
		channels = append(channels, NewSMSChannel(cfg.SMS))
	}
	if cfg.Webhook.Enabled {
		channels = append(channels, NewWebhookChannel(cfg.Webhook))
	}
	return channels
}

// classifyStatus maps an HTTP response code onto the retry taxonomy:
// timeouts, rate limits and server errors are transient; other client
// errors mean the request itself is bad and retrying cannot help.
func classifyStatus(channel string, code int) error {
	if code >= 200 && code < 300 {
		return nil
	}
	err := fmt.Errorf("unexpected status %d", code)
	if code == http.StatusRequestTimeout || code == http.StatusTooManyRequests || code >= 500 {
		return apperrors.NewTransientError(channel, err)
	}
	return apperrors.NewPermanentError(channel, err)
}
