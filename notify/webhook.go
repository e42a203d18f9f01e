package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// webhookChannel delivers a generic JSON POST with custom headers merged
// from channel config. No automatic retry.
type webhookChannel struct {
	url     string
	headers map[string]string
	client  *http.Client
}

func newWebhookChannel(config map[string]interface{}, client *http.Client) (*webhookChannel, error) {
	url := configString(config, "url")
	if url == "" {
		return nil, fmt.Errorf("webhook channel requires a url")
	}
	return &webhookChannel{
		url:     url,
		headers: configHeaders(config, "headers"),
		client:  client,
	}, nil
}

func (w *webhookChannel) target() string {
	return w.url
}

func (w *webhookChannel) send(ctx context.Context, n *Notification) error {
	payload := map[string]interface{}{
		"alert": n.Alert,
		"triggeringEvent": map[string]interface{}{
			"eventId":   n.Event.EventID,
			"action":    n.Event.Action,
			"actor":     n.Event.Actor,
			"resource":  n.Event.Resource,
			"timestamp": n.Event.Timestamp.Format(time.RFC3339),
			"riskLevel": n.Event.RiskLevel,
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Argus/1.0")
	for key, value := range w.headers {
		req.Header.Set(key, value)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned non-2xx status: %d", resp.StatusCode)
	}
	return nil
}
