package notify

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/filegate/internal/server/config"
	"gopkg.in/gomail.v2"
)

const emailSubject = "Your OTP"

// MailDialer is satisfied by *gomail.Dialer.
type MailDialer interface {
	DialAndSend(m ...*gomail.Message) error
}

// EmailSender sends codes over SMTP.
type EmailSender struct {
	from   string
	dialer MailDialer
}

func NewEmailSender(from string, d MailDialer) *EmailSender {
	return &EmailSender{from: from, dialer: d}
}

// NewSMTPDialer builds a gomail dialer from the SMTP settings. Encryption
// "ssl" uses implicit TLS; "tls"/"starttls" upgrade the plain connection.
func NewSMTPDialer(cfg *config.Config) (*gomail.Dialer, error) {
	if cfg.SMTPHost == "" || cfg.SMTPPort == 0 || cfg.SMTPFrom == "" {
		return nil, fmt.Errorf("SMTP host, port and sender must be configured")
	}

	d := gomail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword)
	tlsCfg := &tls.Config{ServerName: cfg.SMTPHost, MinVersion: tls.VersionTLS12}

	switch strings.ToLower(cfg.SMTPEncryption) {
	case "ssl":
		d.SSL = true
		d.TLSConfig = tlsCfg
	case "tls", "starttls":
		d.TLSConfig = tlsCfg
	}

	return d, nil
}

// Send hands the message to the dialer in a goroutine so ctx can abandon a
// slow SMTP server.
//
// gomail has no per-call deadline, so an abandoned attempt keeps running and
// may still deliver the mail after Send has returned an error. The caller
// then reports a dispatch failure for a code that can arrive; a later resend
// replaces it. Nothing is dialled when ctx is already done.
func (s *EmailSender) Send(ctx context.Context, to, code string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("email sending cancelled: %w", err)
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", emailSubject)
	m.SetBody("text/plain", messageText(code))

	done := make(chan error, 1)
	go func() {
		done <- s.dialer.DialAndSend(m)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("email sending cancelled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("failed to send email: %w", err)
		}
		return nil
	}
}
