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

// defaultPagerEndpoint is the fixed events-ingestion endpoint; overridable
// via channel config for testing.
const defaultPagerEndpoint = "https://events.pagerduty.com/v2/enqueue"

// pagerChannel triggers an incident through a pager events API.
// The alert ID doubles as the dedup key so repeat triggers for the same
// alert collapse on the pager side.
type pagerChannel struct {
	endpoint   string
	routingKey string
	client     *http.Client
}

func newPagerChannel(config map[string]interface{}, client *http.Client) (*pagerChannel, error) {
	routingKey := configString(config, "routing_key")
	if routingKey == "" {
		return nil, fmt.Errorf("pager channel requires a routing_key")
	}
	endpoint := configString(config, "endpoint")
	if endpoint == "" {
		endpoint = defaultPagerEndpoint
	}
	return &pagerChannel{endpoint: endpoint, routingKey: routingKey, client: client}, nil
}

func (p *pagerChannel) target() string {
	return p.endpoint
}

// pagerSeverity maps alert severity onto the pager's three-level scale
func pagerSeverity(severity string) string {
	switch severity {
	case core.SeverityCritical:
		return "critical"
	case core.SeverityHigh:
		return "error"
	default:
		return "warning"
	}
}

func (p *pagerChannel) send(ctx context.Context, n *Notification) error {
	payload := map[string]interface{}{
		"routing_key":  p.routingKey,
		"event_action": "trigger",
		"dedup_key":    n.Alert.AlertID,
		"payload": map[string]interface{}{
			"summary":   fmt.Sprintf("%s: %s", n.RuleName, n.Event.Action),
			"severity":  pagerSeverity(n.Severity),
			"source":    n.Event.Source,
			"timestamp": n.Event.Timestamp.Format(time.RFC3339),
			"custom_details": map[string]interface{}{
				"alert_id":         n.Alert.AlertID,
				"rule_id":          n.Alert.RuleID,
				"actor":            n.Event.Actor,
				"resource":         n.Event.Resource,
				"occurrence_count": n.Alert.OccurrenceCount,
			},
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal pager payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create pager request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send pager event: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("pager endpoint returned non-2xx status: %d", resp.StatusCode)
	}
	return nil
}
