package email

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"
	"time"

	"gopkg.in/gomail.v2"
)

// SMTPSender envia correos via SMTP usando gomail.
type SMTPSender struct {
	dialer   *gomail.Dialer
	from     string
	fromName string
}

func NewSMTPSender(host string, port int, username, password, from, fromName string, useTLS bool) (*SMTPSender, error) {
	if strings.TrimSpace(host) == "" {
		return nil, fmt.Errorf("smtp host is required")
	}
	if strings.TrimSpace(from) == "" {
		return nil, fmt.Errorf("smtp from is required")
	}
	if port == 0 {
		port = 587
	}
	d := gomail.NewDialer(host, port, username, password)
	d.SSL = useTLS
	if useTLS {
		d.TLSConfig = &tls.Config{ServerName: host}
	}
	return &SMTPSender{
		dialer:   d,
		from:     from,
		fromName: fromName,
	}, nil
}

func (s *SMTPSender) SendPasswordReset(ctx context.Context, toEmail, resetURL string, expiresAt time.Time) error {
	if strings.TrimSpace(toEmail) == "" {
		return fmt.Errorf("to email is required")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	m := buildResetMessage(s.from, s.fromName, toEmail, resetURL, expiresAt)
	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("send password reset: %w", err)
	}
	return nil
}

const resetSubject = "Password reset token"

func resetBody(resetURL string, expiresAt time.Time) string {
	return fmt.Sprintf(
		"You are receiving this email because you (or someone else) has requested the reset of a password. "+
			"Please follow this link to reset your password: \n\n %s\n\nThe link expires at %s UTC.\n",
		resetURL,
		expiresAt.UTC().Format(time.RFC3339),
	)
}

func buildResetMessage(from, fromName, to, resetURL string, expiresAt time.Time) *gomail.Message {
	m := gomail.NewMessage()
	if strings.TrimSpace(fromName) != "" {
		m.SetAddressHeader("From", from, fromName)
	} else {
		m.SetHeader("From", from)
	}
	m.SetHeader("To", to)
	m.SetHeader("Subject", resetSubject)
	m.SetBody("text/plain", resetBody(resetURL, expiresAt))
	return m
}
