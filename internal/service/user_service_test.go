package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/harshit-ig/startup-genie/internal/repository"
)

type mockEmailSender struct {
	lastTo       string
	lastResetURL string
	lastExpires  time.Time
	calls        int
	err          error
}

func (m *mockEmailSender) SendPasswordReset(_ context.Context, toEmail, resetURL string, expiresAt time.Time) error {
	m.calls++
	m.lastTo = toEmail
	m.lastResetURL = resetURL
	m.lastExpires = expiresAt
	return m.err
}

type mockLimiter struct {
	allow bool
}

func (m *mockLimiter) Allow(_ string) bool {
	return m.allow
}

func newTestUserService(sender *mockEmailSender, limiter RateLimiter) (*UserService, *repository.MemoryUserRepository) {
	repo := repository.NewMemoryUserRepository()
	if limiter == nil {
		limiter = &mockLimiter{allow: true}
	}
	return NewUserService(zap.NewNop(), repo, sender, limiter), repo
}

func registerAda(t *testing.T, svc *UserService) {
	t.Helper()
	if _, err := svc.Register(context.Background(), RegisterInput{
		Name:     "Ada King Lovelace",
		Email:    "Ada@Example.com",
		Password: "secret1",
	}); err != nil {
		t.Fatalf("register failed: %v", err)
	}
}

func TestUserServiceRegister(t *testing.T) {
	svc, repo := newTestUserService(&mockEmailSender{}, nil)

	user, err := svc.Register(context.Background(), RegisterInput{
		Name:     " Ada King Lovelace ",
		Email:    "Ada@Example.com",
		Password: "secret1",
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if user.FirstName != "Ada" || user.LastName != "King Lovelace" {
		t.Fatalf("unexpected name split: %q / %q", user.FirstName, user.LastName)
	}
	if user.Email != "ada@example.com" {
		t.Fatalf("expected normalized email, got %s", user.Email)
	}
	if user.PasswordHash == "" || user.PasswordHash == "secret1" {
		t.Fatalf("expected hashed password")
	}
	if len(user.ID) != 24 {
		t.Fatalf("expected object id, got %q", user.ID)
	}

	stored, err := repo.GetByEmail(context.Background(), "ada@example.com")
	if err != nil || stored.ID != user.ID {
		t.Fatalf("expected user stored, got %v", err)
	}

	_, err = svc.Register(context.Background(), RegisterInput{Name: "Ada", Email: "ada@example.com", Password: "secret1"})
	if !errors.Is(err, ErrUserExists) {
		t.Fatalf("expected ErrUserExists, got %v", err)
	}
}

func TestUserServiceRegisterValidation(t *testing.T) {
	svc, _ := newTestUserService(&mockEmailSender{}, nil)

	cases := []struct {
		name  string
		input RegisterInput
		want  error
	}{
		{"missing name", RegisterInput{Email: "a@b.co", Password: "secret1"}, ErrNameRequired},
		{"bad email", RegisterInput{Name: "A", Email: "not-an-email", Password: "secret1"}, ErrInvalidEmail},
		{"short password", RegisterInput{Name: "A", Email: "a@b.co", Password: "123"}, ErrWeakPassword},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.Register(context.Background(), tc.input); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestUserServiceAuthenticate(t *testing.T) {
	svc, _ := newTestUserService(&mockEmailSender{}, nil)
	registerAda(t, svc)

	if _, err := svc.Authenticate(context.Background(), "ada@example.com", "secret1"); err != nil {
		t.Fatalf("expected login success, got %v", err)
	}
	if _, err := svc.Authenticate(context.Background(), "ada@example.com", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := svc.Authenticate(context.Background(), "nobody@example.com", "secret1"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown user, got %v", err)
	}
}

func TestUserServiceUpdateProfileKeepsEmptyFields(t *testing.T) {
	svc, repo := newTestUserService(&mockEmailSender{}, nil)
	registerAda(t, svc)
	stored, _ := repo.GetByEmail(context.Background(), "ada@example.com")

	updated, err := svc.UpdateProfile(context.Background(), stored.ID, "Augusta", "")
	if err != nil {
		t.Fatalf("expected update success, got %v", err)
	}
	if updated.FirstName != "Augusta" || updated.LastName != "King Lovelace" {
		t.Fatalf("unexpected profile: %+v", updated)
	}

	if _, err := svc.UpdateProfile(context.Background(), "65a1b2c3d4e5f60718293a4b", "X", ""); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestUserServiceForgotAndResetPassword(t *testing.T) {
	sender := &mockEmailSender{}
	svc, repo := newTestUserService(sender, nil)
	registerAda(t, svc)

	start := time.Now().UTC()
	if err := svc.ForgotPassword(context.Background(), "ada@example.com", "http://localhost:5000/"); err != nil {
		t.Fatalf("expected forgot password success, got %v", err)
	}
	if sender.lastTo != "ada@example.com" {
		t.Fatalf("expected mail to ada, got %s", sender.lastTo)
	}
	prefix := "http://localhost:5000/reset-password/"
	if !strings.HasPrefix(sender.lastResetURL, prefix) {
		t.Fatalf("unexpected reset url %q", sender.lastResetURL)
	}
	token := strings.TrimPrefix(sender.lastResetURL, prefix)
	if len(token) != 40 {
		t.Fatalf("expected 40 hex chars token, got %q", token)
	}
	if sender.lastExpires.Before(start.Add(9*time.Minute)) || sender.lastExpires.After(start.Add(11*time.Minute)) {
		t.Fatalf("expected expiry around 10 minutes, got %v", sender.lastExpires)
	}

	stored, _ := repo.GetByEmail(context.Background(), "ada@example.com")
	if stored.ResetPasswordToken == token || stored.ResetPasswordToken != hashResetToken(token) {
		t.Fatalf("expected only the token hash to be stored")
	}

	if _, err := svc.ResetPassword(context.Background(), "deadbeef", "newsecret"); !errors.Is(err, ErrResetTokenInvalid) {
		t.Fatalf("expected ErrResetTokenInvalid, got %v", err)
	}

	user, err := svc.ResetPassword(context.Background(), token, "newsecret")
	if err != nil {
		t.Fatalf("expected reset success, got %v", err)
	}
	if user.ResetPasswordToken != "" {
		t.Fatalf("expected token cleared")
	}
	if _, err := svc.Authenticate(context.Background(), "ada@example.com", "newsecret"); err != nil {
		t.Fatalf("expected login with new password, got %v", err)
	}
	if _, err := svc.ResetPassword(context.Background(), token, "another1"); !errors.Is(err, ErrResetTokenInvalid) {
		t.Fatalf("expected token to be single use, got %v", err)
	}
}

func TestUserServiceResetPasswordExpiredToken(t *testing.T) {
	svc, _ := newTestUserService(&mockEmailSender{}, nil)
	registerAda(t, svc)
	sender := svc.emailSender.(*mockEmailSender)

	if err := svc.ForgotPassword(context.Background(), "ada@example.com", "http://x"); err != nil {
		t.Fatalf("forgot password: %v", err)
	}
	token := strings.TrimPrefix(sender.lastResetURL, "http://x/reset-password/")

	svc.now = func() time.Time { return time.Now().UTC().Add(11 * time.Minute) }
	if _, err := svc.ResetPassword(context.Background(), token, "newsecret"); !errors.Is(err, ErrResetTokenInvalid) {
		t.Fatalf("expected expired token rejected, got %v", err)
	}
}

func TestUserServiceForgotPasswordUnknownUser(t *testing.T) {
	sender := &mockEmailSender{}
	svc, _ := newTestUserService(sender, nil)

	if err := svc.ForgotPassword(context.Background(), "ghost@example.com", "http://x"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
	if sender.calls != 0 {
		t.Fatalf("expected no mail sent")
	}
}

func TestUserServiceForgotPasswordEmailFailureClearsToken(t *testing.T) {
	sender := &mockEmailSender{err: errors.New("smtp down")}
	svc, repo := newTestUserService(sender, nil)
	registerAda(t, svc)

	err := svc.ForgotPassword(context.Background(), "ada@example.com", "http://x")
	if !errors.Is(err, ErrEmailSendFailure) {
		t.Fatalf("expected ErrEmailSendFailure, got %v", err)
	}
	stored, _ := repo.GetByEmail(context.Background(), "ada@example.com")
	if stored.ResetPasswordToken != "" || stored.ResetPasswordExpire != nil {
		t.Fatalf("expected reset token cleared after mail failure")
	}
}

func TestUserServiceForgotPasswordRateLimited(t *testing.T) {
	sender := &mockEmailSender{}
	svc, _ := newTestUserService(sender, &mockLimiter{allow: false})

	if err := svc.ForgotPassword(context.Background(), "ada@example.com", "http://x"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
}
