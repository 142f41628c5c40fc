package email

import (
	"context"
	"errors"
	"time"
)

// Sender define la interfaz para envio de correos transaccionales.
type Sender interface {
	SendPasswordReset(ctx context.Context, toEmail, resetURL string, expiresAt time.Time) error
}

type disabledSender struct {
	reason string
}

// NewDisabledSender devuelve un Sender que siempre falla; se usa cuando no hay SMTP configurado.
func NewDisabledSender(reason string) Sender {
	return &disabledSender{reason: reason}
}

func (s *disabledSender) SendPasswordReset(_ context.Context, _, _ string, _ time.Time) error {
	if s.reason == "" {
		return errors.New("email sender disabled")
	}
	return errors.New(s.reason)
}
