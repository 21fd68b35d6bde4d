// Package mailer delivers rendered reminder emails over SMTP. Delivery
// is best-effort by contract: callers log failures and move on.
package mailer

import (
	"crypto/tls"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/sony/gobreaker"

	"github.com/studyloop/reminder-service/internal/config"
	"github.com/studyloop/reminder-service/internal/models"
	"github.com/studyloop/reminder-service/pkg/circuitbreaker"
)

// Mailer sends reminder emails through one SMTP endpoint, guarded by a
// circuit breaker so a dead provider fails fast instead of hanging the
// worker.
type Mailer struct {
	cfg config.SMTPConfig
	cb  *gobreaker.CircuitBreaker
}

// New builds a mailer for the configured SMTP endpoint.
func New(cfg config.SMTPConfig) *Mailer {
	return &Mailer{
		cfg: cfg,
		cb:  circuitbreaker.New("smtp"),
	}
}

// Send delivers one rendered reminder email.
func (m *Mailer) Send(job *models.EmailJob) error {
	_, err := m.cb.Execute(func() (any, error) {
		return nil, m.send(job)
	})
	return err
}

func (m *Mailer) send(job *models.EmailJob) error {
	addr := m.cfg.Host + ":" + m.cfg.Port
	client, err := smtp.Dial(addr)
	if err != nil {
		return fmt.Errorf("smtp dial: %w", err)
	}
	defer client.Close()

	if err := client.StartTLS(&tls.Config{ServerName: m.cfg.Host}); err != nil {
		return fmt.Errorf("starttls: %w", err)
	}
	auth := smtp.PlainAuth("", m.cfg.From, m.cfg.Password, m.cfg.Host)
	if err := client.Auth(auth); err != nil {
		return fmt.Errorf("smtp auth: %w", err)
	}

	if err := client.Mail(m.cfg.From); err != nil {
		return fmt.Errorf("mail from: %w", err)
	}
	if err := client.Rcpt(job.To); err != nil {
		return fmt.Errorf("rcpt to: %w", err)
	}
	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	if _, err := w.Write([]byte(Render(m.cfg.From, job))); err != nil {
		_ = w.Close()
		return fmt.Errorf("write body: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close body: %w", err)
	}
	return client.Quit()
}

// Render produces the full RFC 822 message for a reminder email.
func Render(from string, job *models.EmailJob) string {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", job.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", job.Subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("\r\n")
	fmt.Fprintf(&b, "%s\r\n\r\n%s\r\n", job.Title, job.Message)
	if job.StreakCount > 0 {
		fmt.Fprintf(&b, "\r\nCurrent streak: %d days\r\n", job.StreakCount)
	}
	fmt.Fprintf(&b, "\r\nOpen: %s\r\n", job.ActionURL)
	return b.String()
}
