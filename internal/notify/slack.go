package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/slack-go/slack"

	"stock-pattern/internal/config"
	"stock-pattern/internal/models"
)

// maxSlackAttachments bounds a digest; the rest are summarised in the text.
const maxSlackAttachments = 20

// SlackNotifier posts to a Slack incoming webhook.
type SlackNotifier struct {
	webhookURL string
	channel    string
	enabled    bool
	post       func(ctx context.Context, url string, msg *slack.WebhookMessage) error
}

// NewSlackNotifier creates a new SlackNotifier.
func NewSlackNotifier(cfg config.SlackConfig) *SlackNotifier {
	return &SlackNotifier{
		webhookURL: cfg.WebhookURL,
		channel:    cfg.Channel,
		enabled:    cfg.Enabled && cfg.WebhookURL != "",
		post:       slack.PostWebhookContext,
	}
}

// Name returns the name of the notifier.
func (s *SlackNotifier) Name() string {
	return "slack"
}

// IsEnabled returns whether the notifier is enabled.
func (s *SlackNotifier) IsEnabled() bool {
	return s.enabled
}

// Send posts the notification. Setups become one attachment each.
func (s *SlackNotifier) Send(ctx context.Context, n Notification) error {
	if !s.enabled {
		return nil
	}
	if err := s.post(ctx, s.webhookURL, s.buildMessage(n)); err != nil {
		return fmt.Errorf("posting to slack: %w", err)
	}
	return nil
}

func (s *SlackNotifier) buildMessage(n Notification) *slack.WebhookMessage {
	msg := &slack.WebhookMessage{Channel: s.channel}

	if n.Type != NotificationSetups {
		msg.Text = fmt.Sprintf("*%s*\n%s", n.Title, n.Message)
		return msg
	}

	msg.Text = fmt.Sprintf("*%s*: %d setup(s)", n.Title, len(n.Setups))
	for i, setup := range n.Setups {
		if i == maxSlackAttachments {
			msg.Text += fmt.Sprintf(" (%d not shown)", len(n.Setups)-maxSlackAttachments)
			break
		}
		msg.Attachments = append(msg.Attachments, setupAttachment(setup))
	}
	return msg
}

// setupAttachment renders one setup as a Slack attachment.
func setupAttachment(s models.Setup) slack.Attachment {
	color := "#439FE0"
	if s.BrokeOut && !strings.Contains(s.Signal, "Low RR") {
		color = "good"
	} else if strings.Contains(s.Signal, "Low RR") {
		color = "warning"
	}

	return slack.Attachment{
		Title: fmt.Sprintf("%s %s", s.Ticker, s.Signal),
		Color: color,
		Fields: []slack.AttachmentField{
			{Title: "Date", Value: s.Date.Format("2006-01-02"), Short: true},
			{Title: "Close", Value: fmt.Sprintf("%.2f", s.Close), Short: true},
			{Title: "Entry", Value: fmt.Sprintf("%.2f", s.BreakoutPrice), Short: true},
			{Title: "Stop", Value: fmt.Sprintf("%.2f", s.StopLoss), Short: true},
			{Title: "Target", Value: fmt.Sprintf("%.2f", s.TakeProfit), Short: true},
			{Title: "R:R", Value: fmt.Sprintf("%.2f", s.RewardToRisk), Short: true},
			{Title: "Compression", Value: fmt.Sprintf("%.1f%%", s.Compression*100), Short: true},
		},
		Footer: "stock-pattern",
	}
}
