// Package mail sends candidate-facing email over SMTP. Deployments without an
// SMTP host get a console mailer that logs instead of sending, which keeps dev
// and test flows alive without infrastructure.
package mail

import (
	"fmt"
	"log/slog"
	"net/smtp"
	"strings"

	"github.com/fairyhunter13/ai-assessment-engine/internal/config"
	"github.com/fairyhunter13/ai-assessment-engine/internal/domain"
)

// New returns the SMTP mailer when configured, console mailer otherwise.
func New(cfg config.Config) domain.Mailer {
	if cfg.SMTPHost == "" {
		return &Console{}
	}
	return &SMTP{
		addr: fmt.Sprintf("%s:%d", cfg.SMTPHost, cfg.SMTPPort),
		host: cfg.SMTPHost,
		user: cfg.SMTPUser,
		pass: cfg.SMTPPass,
		from: cfg.MailFrom,
	}
}

// SMTP sends mail through a single SMTP relay with PLAIN auth.
type SMTP struct {
	addr string
	host string
	user string
	pass string
	from string
}

// Send delivers one plain-text message.
func (m *SMTP) Send(ctx domain.Context, to, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := strings.Join([]string{
		"From: " + m.from,
		"To: " + to,
		"Subject: " + subject,
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=utf-8",
		"",
		body,
	}, "\r\n")
	var auth smtp.Auth
	if m.user != "" {
		auth = smtp.PlainAuth("", m.user, m.pass, m.host)
	}
	if err := smtp.SendMail(m.addr, auth, m.from, []string{to}, []byte(msg)); err != nil {
		return fmt.Errorf("op=mail.send: %w", err)
	}
	return nil
}

// Console logs the message instead of sending it.
type Console struct{}

// Send logs the would-be message. Bodies may contain one-time codes, so only
// the subject is logged.
func (m *Console) Send(_ domain.Context, to, subject, _ string) error {
	slog.Info("console mailer: message suppressed", slog.String("to", to), slog.String("subject", subject))
	return nil
}
