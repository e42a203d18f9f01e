package notify

import (
	"context"

	"go.uber.org/zap"
)

// logChannel writes the alert locally and always succeeds. Useful as a
// no-op side-effect channel during rule development.
type logChannel struct {
	logger *zap.SugaredLogger
}

func newLogChannel(logger *zap.SugaredLogger) *logChannel {
	return &logChannel{logger: logger}
}

func (l *logChannel) target() string {
	return "log"
}

func (l *logChannel) send(_ context.Context, n *Notification) error {
	l.logger.Infow("ALERT",
		"alert_id", n.Alert.AlertID,
		"rule", n.RuleName,
		"severity", n.Severity,
		"action", n.Event.Action,
		"actor", n.Event.Actor,
		"resource", n.Event.Resource,
		"occurrences", n.Alert.OccurrenceCount)
	return nil
}
