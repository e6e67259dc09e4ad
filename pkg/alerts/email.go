package alerts

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
	"time"

	"github.com/keralanet/floodwatch/pkg/model"
)

// sendMailFunc matches smtp.SendMail, split out so tests can stub delivery.
type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// EmailNotifier sends alerts to a recipient list over SMTP with STARTTLS.
type EmailNotifier struct {
	addr       string
	auth       smtp.Auth
	from       string
	recipients []string
	send       sendMailFunc
}

// NewEmailNotifier creates an SMTP notifier. Username and password are used
// for PLAIN auth against the given host; pass them empty for an open relay.
func NewEmailNotifier(host string, port int, username, password, from string, recipients []string) *EmailNotifier {
	var auth smtp.Auth
	if username != "" {
		auth = smtp.PlainAuth("", username, password, host)
	}
	return &EmailNotifier{
		addr:       fmt.Sprintf("%s:%d", host, port),
		auth:       auth,
		from:       from,
		recipients: recipients,
		send:       smtp.SendMail,
	}
}

func (e *EmailNotifier) Name() string { return "email" }

func (e *EmailNotifier) Send(ctx context.Context, alert model.Alert) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	subject := fmt.Sprintf("FLOOD ALERT: %s - %s", alert.Level, alert.District)
	body := fmt.Sprintf(
		"FLOOD ALERT NOTIFICATION\r\n"+
			"========================\r\n"+
			"\r\n"+
			"Alert Level: %s\r\n"+
			"District: %s\r\n"+
			"Coordinates: %.4f, %.4f\r\n"+
			"Confidence: %.1f%%\r\n"+
			"As Of: %s\r\n"+
			"Issued: %s\r\n"+
			"\r\n"+
			"IMMEDIATE ACTION REQUIRED\r\n"+
			"\r\n"+
			"Please take necessary precautionary measures and alert local authorities.\r\n"+
			"\r\n"+
			"This is an automated alert from the Kerala flood monitoring system.\r\n",
		alert.Level,
		alert.District,
		alert.Latitude,
		alert.Longitude,
		alert.Confidence*100,
		alert.AsOfDate.Format("2006-01-02"),
		alert.CreatedAt.Format(time.RFC3339),
	)

	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s\r\n", e.from)
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(e.recipients, ", "))
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(body)

	if err := e.send(e.addr, e.auth, e.from, e.recipients, []byte(msg.String())); err != nil {
		return fmt.Errorf("send email alert: %w", err)
	}
	return nil
}
