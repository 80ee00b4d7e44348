package notify

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strings"

	"market-sentinel/internal/config"
	apperrors "market-sentinel/internal/errors"
	"market-sentinel/internal/models"
)

// EmailChannel delivers alerts via SMTP.
type EmailChannel struct {
	smtpHost string
	smtpPort int
	username string
	password string
	from     string
	to       string
}

// NewEmailChannel creates a new EmailChannel.
func NewEmailChannel(cfg config.EmailConfig) *EmailChannel {
	return &EmailChannel{
		smtpHost: cfg.SMTPHost,
		smtpPort: cfg.SMTPPort,
		username: cfg.Username,
		password: cfg.Password,
		from:     cfg.From,
		to:       cfg.To,
	}
}

// Name returns the channel name.
func (e *EmailChannel) Name() string {
	return "email"
}

// Send delivers the event by email. The event ID rides along as an entity
// reference header so a provider can collapse duplicate sends.
func (e *EmailChannel) Send(ctx context.Context, event *models.AlertEvent) error {
	if e.to == "" || e.from == "" {
		return apperrors.NewPermanentError("email", fmt.Errorf("missing sender or recipient"))
	}

	subject := fmt.Sprintf("[%s] Market alert: %s", strings.ToUpper(string(event.Severity)), event.Instrument)
	body := fmt.Sprintf("%s\n\nRule: %s\nRaised: %s\nEvent: %s\n",
		event.Message, event.RuleID, event.RaisedAt.Format("2006-01-02 15:04:05 MST"), event.EventID)

	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nX-Entity-Ref-ID: %s\r\nContent-Type: text/plain; charset=UTF-8\r\n\r\n%s",
		e.from, e.to, subject, event.EventID, body)

	addr := fmt.Sprintf("%s:%d", e.smtpHost, e.smtpPort)

	var auth smtp.Auth
	if e.username != "" && e.password != "" {
		auth = smtp.PlainAuth("", e.username, e.password, e.smtpHost)
	}

	done := make(chan error, 1)
	go func() {
		done <- smtp.SendMail(addr, auth, e.from, []string{e.to}, []byte(msg))
	}()

	select {
	case <-ctx.Done():
		return apperrors.NewTransientError("email", ctx.Err())
	case err := <-done:
		if err != nil {
			return classifySMTPError(err)
		}
		return nil
	}
}

// classifySMTPError sorts SMTP failures into the retry taxonomy. Network
// trouble is transient; an address the server rejects outright is not.
func classifySMTPError(err error) error {
	var netErr net.Error
	if apperrors.As(err, &netErr) {
		return apperrors.NewTransientError("email", err)
	}

	msg := err.Error()
	// 5xx SMTP replies other than transient 4xx mean the message or
	// recipient is unacceptable.
	if strings.HasPrefix(msg, "550") || strings.HasPrefix(msg, "553") || strings.Contains(msg, "invalid address") {
		return apperrors.NewPermanentError("email", err)
	}
	return apperrors.NewTransientError("email", err)
}
