package notify

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"market-sentinel/internal/config"
	apperrors "market-sentinel/internal/errors"
)

func TestWebhookSendCarriesIdempotencyKey(t *testing.T) {
	var gotKey, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get(IdempotencyHeader)
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ch := NewWebhookChannel(config.WebhookConfig{Enabled: true, URL: srv.URL})
	event := testEvent()

	require.NoError(t, ch.Send(context.Background(), event))
	assert.Equal(t, event.EventID, gotKey)
	assert.Contains(t, gotBody, `"instrument":"AAPL"`)
	assert.Contains(t, gotBody, `"rule_id":"price-spike"`)
}

func TestWebhookSendClassifiesStatus(t *testing.T) {
	status := http.StatusServiceUnavailable
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}))
	defer srv.Close()

	ch := NewWebhookChannel(config.WebhookConfig{Enabled: true, URL: srv.URL})

	err := ch.Send(context.Background(), testEvent())
	assert.True(t, apperrors.IsTransient(err))

	status = http.StatusBadRequest
	err = ch.Send(context.Background(), testEvent())
	assert.True(t, apperrors.IsPermanent(err))
}

func TestWebhookMissingURLIsPermanent(t *testing.T) {
	ch := NewWebhookChannel(config.WebhookConfig{Enabled: true})
	err := ch.Send(context.Background(), testEvent())
	assert.True(t, apperrors.IsPermanent(err))
}

func TestSMSSendTruncatesBody(t *testing.T) {
	var gotBody, gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		gotBody = r.PostFormValue("Body")
		gotKey = r.Header.Get(IdempotencyHeader)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	ch := NewSMSChannel(config.SMSConfig{
		Enabled:    true,
		APIBaseURL: srv.URL,
		AccountSID: "AC123",
		AuthToken:  "token",
		From:       "+15550001",
		To:         "+15550002",
	})

	event := testEvent()
	event.Message = strings.Repeat("x", 300)

	require.NoError(t, ch.Send(context.Background(), event))
	assert.Len(t, gotBody, smsMaxLength)
	assert.True(t, strings.HasPrefix(gotBody, "ALERT: "))
	assert.Equal(t, event.EventID, gotKey)
}

func TestSMSMissingRecipientIsPermanent(t *testing.T) {
	ch := NewSMSChannel(config.SMSConfig{Enabled: true, AccountSID: "AC123"})
	err := ch.Send(context.Background(), testEvent())
	assert.True(t, apperrors.IsPermanent(err))
}

func TestSMSRateLimitIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	ch := NewSMSChannel(config.SMSConfig{
		Enabled:    true,
		APIBaseURL: srv.URL,
		AccountSID: "AC123",
		AuthToken:  "token",
		From:       "+15550001",
		To:         "+15550002",
	})

	err := ch.Send(context.Background(), testEvent())
	assert.True(t, apperrors.IsTransient(err))
}

func TestEmailMissingRecipientIsPermanent(t *testing.T) {
	ch := NewEmailChannel(config.EmailConfig{Enabled: true, SMTPHost: "smtp.example.com", SMTPPort: 587})
	err := ch.Send(context.Background(), testEvent())
	assert.True(t, apperrors.IsPermanent(err))
}

func TestClassifySMTPError(t *testing.T) {
	assert.True(t, apperrors.IsPermanent(classifySMTPError(errors.New("550 5.1.1 user unknown"))))
	assert.True(t, apperrors.IsPermanent(classifySMTPError(errors.New("553 mailbox name invalid"))))
	assert.True(t, apperrors.IsTransient(classifySMTPError(errors.New("421 service not available"))))
	assert.True(t, apperrors.IsTransient(classifySMTPError(&net.OpError{Op: "dial", Err: errors.New("connection refused")})))
}

func TestChannelsBuildsEnabledSet(t *testing.T) {
	cfg := config.NotificationConfig{
		Email:   config.EmailConfig{Enabled: true},
		Webhook: config.WebhookConfig{Enabled: true},
	}

	channels := Channels(cfg)
	require.Len(t, channels, 2)

	names := []string{channels[0].Name(), channels[1].Name()}
	assert.Contains(t, names, "email")
	assert.Contains(t, names, "webhook")
}

func TestChannelsEmptyWhenNoneEnabled(t *testing.T) {
	assert.Empty(t, Channels(config.NotificationConfig{}))
}

// Event message formatting is verified in the rules package; here only
// that the SMS body prefixes the severity marker once.
func TestSMSBodyPrefix(t *testing.T) {
	var gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		gotBody = r.PostFormValue("Body")
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	ch := NewSMSChannel(config.SMSConfig{
		Enabled:    true,
		APIBaseURL: srv.URL,
		AccountSID: "AC123",
		AuthToken:  "token",
		From:       "+15550001",
		To:         "+15550002",
	})

	require.NoError(t, ch.Send(context.Background(), testEvent()))
	assert.Equal(t, "ALERT: "+testEvent().Message, gotBody)
}
