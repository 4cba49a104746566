// Package notify delivers scan results and errors to email, Slack, webhooks
// and the terminal.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/multierr"

	"stock-pattern/internal/config"
	apperrors "stock-pattern/internal/errors"
	"stock-pattern/internal/models"
	"stock-pattern/pkg/utils"
)

// Notifier defines the interface for sending notifications.
type Notifier interface {
	Send(ctx context.Context, n Notification) error
	SendSetups(ctx context.Context, date time.Time, setups []models.Setup) error
	SendError(ctx context.Context, err error, where string) error
}

// NotificationChannel defines the interface for a notification channel.
type NotificationChannel interface {
	Name() string
	Send(ctx context.Context, n Notification) error
	IsEnabled() bool
}

// Notification represents a notification message.
type Notification struct {
	Type      NotificationType
	Title     string
	Message   string
	Setups    []models.Setup
	Data      map[string]interface{}
	Timestamp time.Time
}

// NotificationType represents the type of notification.
type NotificationType string

const (
	NotificationSetups NotificationType = "setups"
	NotificationError  NotificationType = "error"
	NotificationInfo   NotificationType = "info"
)

// NotificationLevel represents the notification level filter.
type NotificationLevel string

const (
	LevelAll        NotificationLevel = "all"
	LevelSetupsOnly NotificationLevel = "setups_only"
	LevelErrorsOnly NotificationLevel = "errors_only"
)

// TickerSetup is the per-setup element of a setups digest.
type TickerSetup struct {
	Ticker string       `json:"ticker"`
	Setup  models.Setup `json:"setup"`
}

// SetupsSubject is the digest title for a scan day.
func SetupsSubject(date time.Time) string {
	return "Set Ups for " + utils.FormatMDY(date)
}

// SetupsBody renders setups as indented JSON.
func SetupsBody(setups []models.Setup) (string, error) {
	items := make([]TickerSetup, len(setups))
	for i, s := range setups {
		items[i] = TickerSetup{Ticker: s.Ticker, Setup: s}
	}
	body, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshaling setups: %w", err)
	}
	return string(body), nil
}

// MultiNotifier fans a notification out to its channels, subject to the
// level filter.
type MultiNotifier struct {
	mu       sync.RWMutex
	level    NotificationLevel
	channels []NotificationChannel
}

// NewMultiNotifier builds the configured channels. Nothing is built when
// notifications are disabled; AddChannel still works.
func NewMultiNotifier(cfg config.NotificationConfig) *MultiNotifier {
	level := NotificationLevel(cfg.Level)
	if level == "" {
		level = LevelAll
	}
	mn := &MultiNotifier{level: level}
	if !cfg.Enabled {
		return mn
	}

	builders := []struct {
		enabled bool
		build   func() NotificationChannel
	}{
		{cfg.Webhook.Enabled, func() NotificationChannel { return NewWebhookNotifier(cfg.Webhook) }},
		{cfg.Slack.Enabled, func() NotificationChannel { return NewSlackNotifier(cfg.Slack) }},
		{cfg.Email.Enabled, func() NotificationChannel { return NewEmailNotifier(cfg.Email) }},
	}
	for _, b := range builders {
		if b.enabled {
			mn.channels = append(mn.channels, b.build())
		}
	}
	return mn
}

// AddChannel registers another channel.
func (mn *MultiNotifier) AddChannel(ch NotificationChannel) {
	mn.mu.Lock()
	mn.channels = append(mn.channels, ch)
	mn.mu.Unlock()
}

// Channels returns the names of the enabled channels.
func (mn *MultiNotifier) Channels() []string {
	var names []string
	for _, ch := range mn.enabled() {
		names = append(names, ch.Name())
	}
	if names == nil {
		names = []string{}
	}
	return names
}

func (mn *MultiNotifier) enabled() []NotificationChannel {
	mn.mu.RLock()
	defer mn.mu.RUnlock()
	out := make([]NotificationChannel, 0, len(mn.channels))
	for _, ch := range mn.channels {
		if ch.IsEnabled() {
			out = append(out, ch)
		}
	}
	return out
}

func (mn *MultiNotifier) accepts(t NotificationType) bool {
	switch mn.level {
	case LevelSetupsOnly:
		return t == NotificationSetups
	case LevelErrorsOnly:
		return t == NotificationError
	}
	return true
}

// Send delivers n to every enabled channel. A failing channel does not stop
// the others; failures are combined and wrap ErrNotifierFailed.
func (mn *MultiNotifier) Send(ctx context.Context, n Notification) error {
	if !mn.accepts(n.Type) {
		return nil
	}
	if n.Timestamp.IsZero() {
		n.Timestamp = time.Now()
	}

	var errs error
	for _, ch := range mn.enabled() {
		if err := ch.Send(ctx, n); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%w: %s: %v", apperrors.ErrNotifierFailed, ch.Name(), err))
		}
	}
	return errs
}

// SendSetups sends the day's setups digest. An empty list sends nothing.
func (mn *MultiNotifier) SendSetups(ctx context.Context, date time.Time, setups []models.Setup) error {
	if len(setups) == 0 {
		return nil
	}
	body, err := SetupsBody(setups)
	if err != nil {
		return err
	}
	return mn.Send(ctx, Notification{
		Type:    NotificationSetups,
		Title:   SetupsSubject(date),
		Message: body,
		Setups:  setups,
		Data:    map[string]interface{}{"count": len(setups), "date": date.Format("2006-01-02")},
	})
}

// SendError reports a failed operation. where names the operation, such as
// "scan <run id>".
func (mn *MultiNotifier) SendError(ctx context.Context, err error, where string) error {
	now := time.Now()
	return mn.Send(ctx, Notification{
		Type:      NotificationError,
		Title:     "Scan Error",
		Message:   fmt.Sprintf("%s failed at %s: %v", where, now.Format("15:04:05"), err),
		Data:      map[string]interface{}{"context": where, "error": err.Error()},
		Timestamp: now,
	})
}

// NoOpNotifier discards everything.
type NoOpNotifier struct{}

func NewNoOpNotifier() *NoOpNotifier { return &NoOpNotifier{} }

func (NoOpNotifier) Send(context.Context, Notification) error { return nil }

func (NoOpNotifier) SendSetups(context.Context, time.Time, []models.Setup) error { return nil }

func (NoOpNotifier) SendError(context.Context, error, string) error { return nil }
