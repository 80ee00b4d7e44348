package notify

import (
	"context"
	"fmt"

	"github.com/go-resty/resty/v2"

	"market-sentinel/internal/config"
	apperrors "market-sentinel/internal/errors"
	"market-sentinel/internal/models"
)

// smsMaxLength is the single-segment SMS limit; longer messages are
// truncated rather than split.
const smsMaxLength = 160

// SMSChannel delivers alerts through a Twilio-style messaging API.
type SMSChannel struct {
	client *resty.Client
	sid    string
	from   string
	to     string
}

// NewSMSChannel creates a new SMSChannel.
func NewSMSChannel(cfg config.SMSConfig) *SMSChannel {
	client := resty.New().
		SetBaseURL(cfg.APIBaseURL).
		SetBasicAuth(cfg.AccountSID, cfg.AuthToken)

	return &SMSChannel{
		client: client,
		sid:    cfg.AccountSID,
		from:   cfg.From,
		to:     cfg.To,
	}
}

// Name returns the channel name.
func (s *SMSChannel) Name() string {
	return "sms"
}

// Send posts the message to the provider. The event ID is sent as the
// provider-side idempotency key so overlapping attempts collapse into one
// delivered message.
func (s *SMSChannel) Send(ctx context.Context, event *models.AlertEvent) error {
	if s.to == "" || s.from == "" {
		return apperrors.NewPermanentError("sms", fmt.Errorf("missing sender or recipient number"))
	}

	body := "ALERT: " + event.Message
	if len(body) > smsMaxLength {
		body = body[:smsMaxLength]
	}

	resp, err := s.client.R().
		SetContext(ctx).
		SetHeader(IdempotencyHeader, event.EventID).
		SetFormData(map[string]string{
			"To":   s.to,
			"From": s.from,
			"Body": body,
		}).
		Post(fmt.Sprintf("/Accounts/%s/Messages.json", s.sid))
	if err != nil {
		return apperrors.NewTransientError("sms", err)
	}

	return classifyStatus("sms", resp.StatusCode())
}
