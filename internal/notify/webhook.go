package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"stock-pattern/internal/config"
	"stock-pattern/internal/models"
)

// webhookPayload is the JSON body posted to a webhook.
type webhookPayload struct {
	Type      NotificationType       `json:"type"`
	Title     string                 `json:"title"`
	Message   string                 `json:"message,omitempty"`
	Setups    []models.Setup         `json:"setups,omitempty"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Timestamp string                 `json:"timestamp"`
}

// WebhookNotifier posts notifications as JSON to a URL.
type WebhookNotifier struct {
	url    string
	client *http.Client
}

// NewWebhookNotifier creates a WebhookNotifier. It is disabled unless the
// config is enabled and names a URL.
func NewWebhookNotifier(cfg config.WebhookConfig) *WebhookNotifier {
	w := &WebhookNotifier{client: &http.Client{Timeout: 10 * time.Second}}
	if cfg.Enabled {
		w.url = cfg.URL
	}
	return w
}

func (w *WebhookNotifier) Name() string { return "webhook" }

func (w *WebhookNotifier) IsEnabled() bool { return w.url != "" }

// Send posts n. Any non-2xx response is an error.
func (w *WebhookNotifier) Send(ctx context.Context, n Notification) error {
	if !w.IsEnabled() {
		return nil
	}

	body, err := json.Marshal(webhookPayload{
		Type:      n.Type,
		Title:     n.Title,
		Message:   n.Message,
		Setups:    n.Setups,
		Data:      n.Data,
		Timestamp: n.Timestamp.Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("encoding webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "stockpattern/"+userAgentVersion)

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("posting webhook: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))

	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("webhook responded %s", resp.Status)
	}
	return nil
}

const userAgentVersion = "1.0"
