package notify

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"sync"
	"time"

	"argus/core"
	"argus/metrics"
	"argus/util/goroutine"

	"go.uber.org/zap"
)

// Channel types understood by the dispatcher
const (
	ChannelWebhook = "webhook"
	ChannelEmail   = "email"
	ChannelChat    = "chat"
	ChannelPager   = "pager"
	ChannelLog     = "log"
)

// DefaultChannelTimeout bounds each channel delivery attempt. A channel
// that times out is recorded as failed and not retried; retry policy, if
// any, belongs to the receiving side.
const DefaultChannelTimeout = 10 * time.Second

// Notification is the normalized payload handed to every channel adapter.
// Each adapter owns its own wire format.
type Notification struct {
	Alert    *core.Alert
	RuleName string
	Severity string
	Event    core.EventSummary
}

// channel is a single notification destination
type channel interface {
	// send delivers the notification; the context carries the per-channel
	// timeout
	send(ctx context.Context, n *Notification) error
	// target identifies the destination for logs and delivery records
	target() string
}

// Dispatcher fans alerts out to the channels configured on a rule's
// actions. Channels run as independent concurrent tasks joined with a
// settle-all collection - one failing channel never blocks or fails the
// others, and never fails the alert-creation path.
type Dispatcher struct {
	client  *http.Client
	logger  *zap.SugaredLogger
	timeout time.Duration
}

// NewDispatcher creates a Dispatcher with the given per-channel timeout
// (DefaultChannelTimeout when zero)
func NewDispatcher(timeout time.Duration, logger *zap.SugaredLogger) *Dispatcher {
	if timeout <= 0 {
		timeout = DefaultChannelTimeout
	}
	return &Dispatcher{
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{
					MinVersion: tls.VersionTLS12,
				},
			},
		},
		logger:  logger,
		timeout: timeout,
	}
}

// Dispatch delivers the alert to every configured action in parallel and
// returns the per-channel outcomes once all have settled.
func (d *Dispatcher) Dispatch(ctx context.Context, alert *core.Alert, rule *core.Rule) []core.NotificationRecord {
	if alert == nil || rule == nil || len(rule.Actions) == 0 {
		return nil
	}

	n := &Notification{
		Alert:    alert,
		RuleName: rule.Name,
		Severity: alert.Severity,
		Event:    alert.TriggerEvent,
	}

	type slot struct {
		record core.NotificationRecord
		used   bool
	}
	results := make([]slot, len(rule.Actions))

	var wg sync.WaitGroup
	for i, action := range rule.Actions {
		if skip, reason := d.shouldSkip(action, alert); skip {
			d.logger.Debugw("Skipping notification channel",
				"channel", action.Type,
				"alert_id", alert.AlertID,
				"reason", reason)
			continue
		}

		ch, err := d.channelFor(action)
		if err != nil {
			// Rule-authoring error: record the failure, keep going
			results[i] = slot{used: true, record: core.NotificationRecord{
				Channel:    action.Type,
				Success:    false,
				Error:      err.Error(),
				Dispatched: time.Now().UTC(),
			}}
			metrics.NotificationsSent.WithLabelValues(action.Type, "config_error").Inc()
			d.logger.Errorw("Invalid notification channel config",
				"channel", action.Type,
				"alert_id", alert.AlertID,
				"error", err)
			continue
		}

		wg.Add(1)
		go func(idx int, chType string, ch channel) {
			defer wg.Done()
			defer goroutine.Recover("notify-"+chType, d.logger)

			sendCtx, cancel := context.WithTimeout(ctx, d.timeout)
			defer cancel()

			start := time.Now()
			sendErr := ch.send(sendCtx, n)
			record := core.NotificationRecord{
				Channel:    chType,
				Target:     ch.target(),
				Success:    sendErr == nil,
				Duration:   time.Since(start),
				Dispatched: start.UTC(),
			}
			if sendErr != nil {
				record.Error = sendErr.Error()
				metrics.NotificationsSent.WithLabelValues(chType, "failure").Inc()
				d.logger.Errorw("Notification delivery failed",
					"channel", chType,
					"target", ch.target(),
					"alert_id", n.Alert.AlertID,
					"error", sendErr)
			} else {
				metrics.NotificationsSent.WithLabelValues(chType, "success").Inc()
				d.logger.Infow("Notification delivered",
					"channel", chType,
					"alert_id", n.Alert.AlertID)
			}
			results[idx] = slot{used: true, record: record}
		}(i, action.Type, ch)
	}
	wg.Wait()

	records := make([]core.NotificationRecord, 0, len(results))
	for _, s := range results {
		if s.used {
			records = append(records, s.record)
		}
	}
	return records
}

// shouldSkip applies per-channel filters (min_severity) from action config
func (d *Dispatcher) shouldSkip(action core.Action, alert *core.Alert) (bool, string) {
	minSeverity := configString(action.Config, "min_severity")
	if minSeverity == "" {
		return false, ""
	}
	if core.SeverityRank(alert.Severity) < core.SeverityRank(minSeverity) {
		return true, fmt.Sprintf("severity %s below channel minimum %s", alert.Severity, minSeverity)
	}
	return false, ""
}

// channelFor builds the adapter for an action. Unknown channel types are a
// rule-authoring error.
func (d *Dispatcher) channelFor(action core.Action) (channel, error) {
	switch action.Type {
	case ChannelWebhook:
		return newWebhookChannel(action.Config, d.client)
	case ChannelChat:
		return newChatChannel(action.Config, d.client)
	case ChannelPager:
		return newPagerChannel(action.Config, d.client)
	case ChannelEmail:
		return newEmailChannel(action.Config)
	case ChannelLog:
		return newLogChannel(d.logger), nil
	default:
		return nil, fmt.Errorf("unknown notification channel type: %s", action.Type)
	}
}

// configString reads a string key from an action config map
func configString(config map[string]interface{}, key string) string {
	if config == nil {
		return ""
	}
	if s, ok := config[key].(string); ok {
		return s
	}
	return ""
}

// configHeaders reads a string-to-string map from an action config map
func configHeaders(config map[string]interface{}, key string) map[string]string {
	headers := make(map[string]string)
	if config == nil {
		return headers
	}
	switch raw := config[key].(type) {
	case map[string]interface{}:
		for k, v := range raw {
			if s, ok := v.(string); ok {
				headers[k] = s
			}
		}
	case map[string]string:
		for k, v := range raw {
			headers[k] = v
		}
	}
	return headers
}

// configStrings reads a string list from an action config map
func configStrings(config map[string]interface{}, key string) []string {
	if config == nil {
		return nil
	}
	switch raw := config[key].(type) {
	case []string:
		return raw
	case []interface{}:
		out := make([]string, 0, len(raw))
		for _, v := range raw {
			if s, ok := v.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
