package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"market-sentinel/internal/config"
	apperrors "market-sentinel/internal/errors"
	"market-sentinel/internal/models"
)

// WebhookChannel delivers alerts as JSON posts to a configured endpoint.
type WebhookChannel struct {
	url    string
	client *http.Client
}

// NewWebhookChannel creates a new WebhookChannel.
func NewWebhookChannel(cfg config.WebhookConfig) *WebhookChannel {
	return &WebhookChannel{
		url: cfg.URL,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Name returns the channel name.
func (w *WebhookChannel) Name() string {
	return "webhook"
}

// Send posts the event payload. The idempotency header lets the receiver
// deduplicate overlapping deliveries.
func (w *WebhookChannel) Send(ctx context.Context, event *models.AlertEvent) error {
	if w.url == "" {
		return apperrors.NewPermanentError("webhook", fmt.Errorf("missing webhook URL"))
	}

	payload := map[string]interface{}{
		"event_id":   event.EventID,
		"instrument": event.Instrument,
		"rule_id":    event.RuleID,
		"severity":   event.Severity,
		"message":    event.Message,
		"raised_at":  event.RaisedAt.Format(time.RFC3339),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return apperrors.NewPermanentError("webhook", fmt.Errorf("marshaling payload: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return apperrors.NewPermanentError("webhook", fmt.Errorf("creating request: %w", err))
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "MarketSentinel/1.0")
	req.Header.Set(IdempotencyHeader, event.EventID)

	resp, err := w.client.Do(req)
	if err != nil {
		return apperrors.NewTransientError("webhook", err)
	}
	defer resp.Body.Close()

	return classifyStatus("webhook", resp.StatusCode)
}
