package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/slack-go/slack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"

	"stock-pattern/internal/config"
	apperrors "stock-pattern/internal/errors"
	"stock-pattern/internal/models"
)

type recordingChannel struct {
	name    string
	enabled bool
	err     error
	got     []Notification
}

func (r *recordingChannel) Name() string    { return r.name }
func (r *recordingChannel) IsEnabled() bool { return r.enabled }

func (r *recordingChannel) Send(_ context.Context, n Notification) error {
	r.got = append(r.got, n)
	return r.err
}

func sampleSetups() []models.Setup {
	day := time.Date(2024, 3, 8, 0, 0, 0, 0, time.UTC)
	return []models.Setup{
		{Ticker: "AAPL", Date: day, Signal: "A+ Wedge Breakout", BrokeOut: true, BreakoutPrice: 146.09, StopLoss: 142.51, TakeProfit: 151.97, RewardToRisk: 1.6423},
		{Ticker: "NVDA", Date: day, Signal: "Good Flag Setup (Low RR)", BreakoutPrice: 88.1, StopLoss: 85, TakeProfit: 90, RewardToRisk: 0.61},
	}
}

func TestSetupsSubjectAndBody(t *testing.T) {
	assert.Equal(t, "Set Ups for 3/8/2024", SetupsSubject(time.Date(2024, 3, 8, 9, 0, 0, 0, time.UTC)))

	body, err := SetupsBody(sampleSetups())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(body, "[\n  {\n    \"ticker\": \"AAPL\""), body)

	var decoded []TickerSetup
	require.NoError(t, json.Unmarshal([]byte(body), &decoded))
	require.Len(t, decoded, 2)
	assert.Equal(t, "Good Flag Setup (Low RR)", decoded[1].Setup.Signal)
}

func TestMultiNotifierLevels(t *testing.T) {
	tests := []struct {
		level      NotificationLevel
		wantSetups int
		wantErrors int
	}{
		{LevelAll, 1, 1},
		{LevelSetupsOnly, 1, 0},
		{LevelErrorsOnly, 0, 1},
	}

	for _, tt := range tests {
		t.Run(string(tt.level), func(t *testing.T) {
			ch := &recordingChannel{name: "rec", enabled: true}
			mn := NewMultiNotifier(config.NotificationConfig{Level: string(tt.level)})
			mn.AddChannel(ch)

			ctx := context.Background()
			require.NoError(t, mn.SendSetups(ctx, time.Now(), sampleSetups()))
			require.NoError(t, mn.SendError(ctx, errors.New("boom"), "scan"))

			var setups, errs int
			for _, n := range ch.got {
				switch n.Type {
				case NotificationSetups:
					setups++
				case NotificationError:
					errs++
				}
			}
			assert.Equal(t, tt.wantSetups, setups)
			assert.Equal(t, tt.wantErrors, errs)
		})
	}
}

func TestMultiNotifierSkipsEmptyDigest(t *testing.T) {
	ch := &recordingChannel{name: "rec", enabled: true}
	mn := NewMultiNotifier(config.NotificationConfig{})
	mn.AddChannel(ch)

	require.NoError(t, mn.SendSetups(context.Background(), time.Now(), nil))
	assert.Empty(t, ch.got)
}

func TestMultiNotifierCombinesFailures(t *testing.T) {
	bad1 := &recordingChannel{name: "one", enabled: true, err: errors.New("down")}
	bad2 := &recordingChannel{name: "two", enabled: true, err: errors.New("refused")}
	good := &recordingChannel{name: "three", enabled: true}
	off := &recordingChannel{name: "four", enabled: false}

	mn := NewMultiNotifier(config.NotificationConfig{})
	for _, ch := range []NotificationChannel{bad1, bad2, good, off} {
		mn.AddChannel(ch)
	}
	assert.Equal(t, []string{"one", "two", "three"}, mn.Channels())

	err := mn.Send(context.Background(), Notification{Type: NotificationInfo, Title: "hi"})
	require.Error(t, err)
	assert.Len(t, multierr.Errors(err), 2)
	assert.ErrorIs(t, err, apperrors.ErrNotifierFailed)
	assert.Len(t, good.got, 1)
	assert.Empty(t, off.got)
}

func TestNewMultiNotifierHonoursEnabled(t *testing.T) {
	cfg := config.NotificationConfig{
		Slack:   config.SlackConfig{Enabled: true, WebhookURL: "http://example.invalid"},
		Webhook: config.WebhookConfig{Enabled: true, URL: "http://example.invalid"},
	}
	assert.Empty(t, NewMultiNotifier(cfg).Channels())

	cfg.Enabled = true
	assert.Equal(t, []string{"webhook", "slack"}, NewMultiNotifier(cfg).Channels())
}

func TestWebhookNotifier(t *testing.T) {
	var payload map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
	}))
	defer srv.Close()

	wh := NewWebhookNotifier(config.WebhookConfig{Enabled: true, URL: srv.URL})
	err := wh.Send(context.Background(), Notification{
		Type: NotificationSetups, Title: "Set Ups for 3/8/2024", Setups: sampleSetups(), Timestamp: time.Now(),
	})
	require.NoError(t, err)
	assert.Equal(t, "setups", payload["type"])
	assert.Len(t, payload["setups"], 2)
}

func TestWebhookNotifierStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	wh := NewWebhookNotifier(config.WebhookConfig{Enabled: true, URL: srv.URL})
	assert.Error(t, wh.Send(context.Background(), Notification{Title: "x"}))
}

func TestSlackNotifierPostsAttachments(t *testing.T) {
	var msg slack.WebhookMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &msg))
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	sn := NewSlackNotifier(config.SlackConfig{Enabled: true, WebhookURL: srv.URL, Channel: "#setups"})
	require.True(t, sn.IsEnabled())

	err := sn.Send(context.Background(), Notification{Type: NotificationSetups, Title: "Set Ups for 3/8/2024", Setups: sampleSetups()})
	require.NoError(t, err)
	assert.Equal(t, "#setups", msg.Channel)
	require.Len(t, msg.Attachments, 2)
	assert.Equal(t, "AAPL A+ Wedge Breakout", msg.Attachments[0].Title)
	assert.Equal(t, "good", msg.Attachments[0].Color)
	assert.Equal(t, "warning", msg.Attachments[1].Color)
}

func TestSlackMessageTruncatesLargeDigests(t *testing.T) {
	setups := make([]models.Setup, maxSlackAttachments+5)
	sn := NewSlackNotifier(config.SlackConfig{Enabled: true, WebhookURL: "http://unused"})
	msg := sn.buildMessage(Notification{Type: NotificationSetups, Title: "t", Setups: setups})
	assert.Len(t, msg.Attachments, maxSlackAttachments)
	assert.Contains(t, msg.Text, "(5 not shown)")
}

func TestEmailMessage(t *testing.T) {
	en := NewEmailNotifier(config.EmailConfig{
		Enabled: true, SMTPHost: "smtp.example.com", SMTPPort: 465,
		From: "scanner@example.com", To: "a@example.com, b@example.com",
	})
	require.True(t, en.IsEnabled())
	assert.Equal(t, "scanner@example.com", en.username)

	body, err := SetupsBody(sampleSetups())
	require.NoError(t, err)
	msg := en.buildMessage(Notification{
		Type: NotificationSetups, Title: "Set Ups for 3/8/2024", Message: body,
		Data: map[string]interface{}{"count": 2},
	})
	assert.Contains(t, msg, "To: a@example.com, b@example.com\r\n")
	assert.Contains(t, msg, "Subject: Set Ups for 3/8/2024\r\n")
	assert.True(t, strings.HasSuffix(msg, "\r\n\r\n"+body))

	errMsg := en.buildMessage(Notification{Type: NotificationError, Title: "Scan Error", Message: "m", Data: map[string]interface{}{"error": "x"}})
	assert.Contains(t, errMsg, "---\nData:\n")
}

func TestEmailNotifierDisabledWithoutRecipients(t *testing.T) {
	en := NewEmailNotifier(config.EmailConfig{Enabled: true, SMTPHost: "smtp.example.com", From: "x@example.com"})
	assert.False(t, en.IsEnabled())
	assert.NoError(t, en.Send(context.Background(), Notification{}))
}

func TestTerminalNotifier(t *testing.T) {
	var buf bytes.Buffer
	tn := NewTerminalNotifier(&buf, false)
	tn.SetBellEnabled(true)

	ts := time.Date(2024, 3, 8, 16, 30, 0, 0, time.UTC)
	require.NoError(t, tn.Send(context.Background(), Notification{
		Type: NotificationSetups, Title: "Set Ups for 3/8/2024", Setups: sampleSetups(), Timestamp: ts,
	}))

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "\a[16:30:00] Set Ups for 3/8/2024"), out)
	assert.Contains(t, out, "AAPL   A+ Wedge Breakout | entry $146.09 stop $142.51 target $151.97 | R:R 1.64")

	tn.SetEnabled(false)
	buf.Reset()
	require.NoError(t, tn.Send(context.Background(), Notification{Type: NotificationInfo, Title: "x"}))
	assert.Empty(t, buf.String())
}
