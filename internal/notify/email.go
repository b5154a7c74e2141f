package notify

import (
	"bytes"
	"context"
	"fmt"
	"net/smtp"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/dakiwatch/dakiwatch/internal/config"
	"github.com/dakiwatch/dakiwatch/internal/model"
	"github.com/dakiwatch/dakiwatch/internal/report"
)

// sendFunc matches smtp.SendMail; tests swap it out.
type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// EmailNotifier sends one HTML digest per cycle over SMTP.
type EmailNotifier struct {
	cfg  config.EmailConfig
	send sendFunc
}

// NewEmail builds an EmailNotifier from the email section of the config.
func NewEmail(cfg config.EmailConfig) *EmailNotifier {
	return &EmailNotifier{cfg: cfg, send: smtp.SendMail}
}

func (n *EmailNotifier) Name() string { return "email" }

// Notify sends nothing when the batch is empty; a quiet cycle should not
// produce mail.
func (n *EmailNotifier) Notify(ctx context.Context, events []model.ChangeEvent, summary *model.CycleSummary) error {
	if len(events) == 0 {
		return nil
	}
	subject := fmt.Sprintf("dakiwatch: %d change(s) detected", len(events))
	var body bytes.Buffer
	if err := report.New(nil, events, summary).WriteHTML(&body); err != nil {
		return err
	}
	return n.Send(ctx, subject, body.Bytes())
}

// SendTest delivers a short fixed message so SMTP settings can be verified
// without waiting for a real change.
func (n *EmailNotifier) SendTest(ctx context.Context) error {
	body := fmt.Sprintf("<p>dakiwatch test message sent at %s.</p>",
		time.Now().UTC().Format(time.RFC3339))
	return n.Send(ctx, "dakiwatch: test message", []byte(body))
}

// Send delivers one HTML message with the given subject.
func (n *EmailNotifier) Send(ctx context.Context, subject string, htmlBody []byte) error {
	if err := ctx.Err(); err != nil {
		return eris.Wrap(err, "email: context done")
	}
	if n.cfg.SMTPHost == "" || len(n.cfg.To) == 0 {
		return eris.New("email: smtp host and at least one recipient are required")
	}

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "From: %s\r\n", n.cfg.From)
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(n.cfg.To, ", "))
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/html; charset=utf-8\r\n")
	msg.WriteString("\r\n")
	msg.Write(htmlBody)

	var auth smtp.Auth
	if n.cfg.Username != "" {
		auth = smtp.PlainAuth("", n.cfg.Username, n.cfg.Password, n.cfg.SMTPHost)
	}
	addr := fmt.Sprintf("%s:%d", n.cfg.SMTPHost, n.cfg.SMTPPort)
	if err := n.send(addr, auth, n.cfg.From, n.cfg.To, msg.Bytes()); err != nil {
		return eris.Wrapf(err, "email: send via %s", addr)
	}
	return nil
}
