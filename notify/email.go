package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
	"time"
)

// emailChannel delivers alert summaries over SMTP. Delivery transport is
// the upstream mail relay's job; this adapter only speaks the protocol.
type emailChannel struct {
	host     string
	port     string
	username string
	password string
	from     string
	to       []string
}

func newEmailChannel(config map[string]interface{}) (*emailChannel, error) {
	host := configString(config, "smtp_host")
	if host == "" {
		return nil, fmt.Errorf("email channel requires smtp_host")
	}
	to := configStrings(config, "to")
	if len(to) == 0 {
		return nil, fmt.Errorf("email channel requires at least one recipient")
	}
	port := configString(config, "smtp_port")
	if port == "" {
		port = "587"
	}
	from := configString(config, "from")
	if from == "" {
		from = "argus@localhost"
	}
	return &emailChannel{
		host:     host,
		port:     port,
		username: configString(config, "username"),
		password: configString(config, "password"),
		from:     from,
		to:       to,
	}, nil
}

func (e *emailChannel) target() string {
	return e.host + ":" + e.port
}

func (e *emailChannel) send(ctx context.Context, n *Notification) error {
	subject := fmt.Sprintf("[%s] Alert: %s", strings.ToUpper(n.Severity), n.RuleName)
	body := fmt.Sprintf(
		"Alert %s fired for rule %s.\r\n\r\n"+
			"Severity: %s\r\n"+
			"Action: %s\r\n"+
			"Actor: %s\r\n"+
			"Resource: %s\r\n"+
			"Source: %s\r\n"+
			"Occurrences: %d\r\n"+
			"Time: %s\r\n",
		n.Alert.AlertID, n.RuleName,
		n.Severity, n.Event.Action, n.Event.Actor, n.Event.Resource,
		n.Event.Source, n.Alert.OccurrenceCount,
		n.Event.Timestamp.Format(time.RFC3339))

	var msg strings.Builder
	msg.WriteString(fmt.Sprintf("From: %s\r\n", e.from))
	msg.WriteString(fmt.Sprintf("To: %s\r\n", strings.Join(e.to, ", ")))
	msg.WriteString(fmt.Sprintf("Subject: %s\r\n", subject))
	msg.WriteString("\r\n")
	msg.WriteString(body)

	var auth smtp.Auth
	if e.username != "" {
		auth = smtp.PlainAuth("", e.username, e.password, e.host)
	}

	// smtp.SendMail has no context support; run it in a goroutine so the
	// per-channel timeout still bounds the attempt
	errCh := make(chan error, 1)
	go func() {
		errCh <- smtp.SendMail(e.host+":"+e.port, auth, e.from, e.to, []byte(msg.String()))
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("failed to send email: %w", err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("email delivery timed out: %w", ctx.Err())
	}
}
