package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/Bhavik-SSBDigital/docflow/internal/config"
)

// SMTPDispatcher sends mail through a plain SMTP relay.
type SMTPDispatcher struct {
	addr     string
	from     string
	auth     smtp.Auth
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewSMTPDispatcher creates a dispatcher from mail configuration. The
// password is read from the environment variable named by cfg.PasswordEnv.
func NewSMTPDispatcher(cfg config.MailConfig, password string) *SMTPDispatcher {
	var auth smtp.Auth
	if password != "" {
		auth = smtp.PlainAuth("", cfg.From, password, cfg.Host)
	}
	return &SMTPDispatcher{
		addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		from:     cfg.From,
		auth:     auth,
		sendMail: smtp.SendMail,
	}
}

// Send delivers the message. The context is checked before dialing; net/smtp
// has no context support of its own.
func (d *SMTPDispatcher) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(msg.To) == 0 {
		return nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", d.from)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(msg.To, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", msg.Subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(msg.Body)

	if err := d.sendMail(d.addr, d.auth, d.from, msg.To, []byte(b.String())); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}
