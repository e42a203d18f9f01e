package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"argus/core"
)

// severityColor maps alert severity to the attachment color bar
var severityColor = map[string]string{
	core.SeverityCritical: "#dc2626",
	core.SeverityHigh:     "#ea580c",
	core.SeverityMedium:   "#ca8a04",
	core.SeverityLow:      "#16a34a",
}

// chatChannel posts a single attachment object to a chat webhook URL
type chatChannel struct {
	url    string
	footer string
	client *http.Client
}

func newChatChannel(config map[string]interface{}, client *http.Client) (*chatChannel, error) {
	url := configString(config, "webhook_url")
	if url == "" {
		url = configString(config, "url")
	}
	if url == "" {
		return nil, fmt.Errorf("chat channel requires a webhook_url")
	}
	footer := configString(config, "footer")
	if footer == "" {
		footer = "Argus Alerting"
	}
	return &chatChannel{url: url, footer: footer, client: client}, nil
}

func (c *chatChannel) target() string {
	return c.url
}

func (c *chatChannel) send(ctx context.Context, n *Notification) error {
	color := severityColor[n.Severity]
	if color == "" {
		color = "#6b7280"
	}

	payload := map[string]interface{}{
		"color": color,
		"title": fmt.Sprintf("Alert: %s", n.RuleName),
		"text": fmt.Sprintf("[%s] action=%s actor=%s resource=%s",
			n.Severity, n.Event.Action, n.Event.Actor, n.Event.Resource),
		"footer": c.footer,
		"ts":     time.Now().Unix(),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal chat payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send chat notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("chat webhook returned non-OK status: %d", resp.StatusCode)
	}
	return nil
}
