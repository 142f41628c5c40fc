package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/harshit-ig/startup-genie/internal/domain"
	"github.com/harshit-ig/startup-genie/internal/email"
	"github.com/harshit-ig/startup-genie/internal/repository"
)

// UserService coordina reglas de negocio para usuarios.
type UserService struct {
	logger       *zap.Logger
	users        repository.UserRepository
	emailSender  email.Sender
	resetLimiter RateLimiter
	now          func() time.Time
}

func NewUserService(logger *zap.Logger, users repository.UserRepository, emailSender email.Sender, resetLimiter RateLimiter) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if resetLimiter == nil {
		resetLimiter = NewMemoryRateLimiter(resetTokenTTL, 3)
	}
	return &UserService{
		logger:       logger,
		users:        users,
		emailSender:  emailSender,
		resetLimiter: resetLimiter,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrUserExists         = errors.New("user already exists")
	ErrNameRequired       = errors.New("name required")
	ErrWeakPassword       = errors.New("password too short")
	ErrEmailSendFailure   = errors.New("email send failed")
	ErrRateLimited        = errors.New("rate limited")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidEmail       = errors.New("invalid email")
	ErrResetTokenInvalid  = errors.New("reset token invalid")
)

const (
	resetTokenTTL     = 10 * time.Minute
	resetTokenBytes   = 20
	minPasswordLength = 6
)

var emailPattern = regexp.MustCompile(`^\w+([.-]?\w+)*@\w+([.-]?\w+)*(\.\w{2,3})+$`)

type RegisterInput struct {
	Name     string
	Email    string
	Password string
}

// Register crea una cuenta nueva. El nombre se divide en first/last por el primer espacio.
func (s *UserService) Register(ctx context.Context, input RegisterInput) (domain.User, error) {
	if s.users == nil {
		return domain.User{}, errors.New("user service not configured")
	}

	name := strings.TrimSpace(input.Name)
	if name == "" {
		return domain.User{}, ErrNameRequired
	}
	emailAddr := normalizeEmail(input.Email)
	if !emailPattern.MatchString(emailAddr) {
		return domain.User{}, ErrInvalidEmail
	}
	if len(input.Password) < minPasswordLength {
		return domain.User{}, ErrWeakPassword
	}

	if _, err := s.users.GetByEmail(ctx, emailAddr); err == nil {
		return domain.User{}, ErrUserExists
	} else if !errors.Is(err, repository.ErrNotFound) {
		return domain.User{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return domain.User{}, err
	}

	firstName, lastName := splitName(name)
	user := domain.User{
		ID:           domain.NewID(),
		Name:         name,
		FirstName:    firstName,
		LastName:     lastName,
		Email:        emailAddr,
		PasswordHash: string(hash),
		CreatedAt:    s.now(),
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return domain.User{}, ErrUserExists
		}
		return domain.User{}, err
	}
	return user, nil
}

func (s *UserService) Authenticate(ctx context.Context, emailAddr, password string) (domain.User, error) {
	if s.users == nil {
		return domain.User{}, errors.New("user service not configured")
	}

	emailAddr = normalizeEmail(emailAddr)
	if emailAddr == "" || password == "" {
		return domain.User{}, ErrInvalidCredentials
	}
	user, err := s.users.GetByEmail(ctx, emailAddr)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.User{}, ErrInvalidCredentials
		}
		return domain.User{}, err
	}
	if user.PasswordHash == "" {
		return domain.User{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return domain.User{}, ErrInvalidCredentials
	}
	return user, nil
}

func (s *UserService) GetByID(ctx context.Context, id string) (domain.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.User{}, ErrUserNotFound
		}
		return domain.User{}, err
	}
	return user, nil
}

// UpdateProfile cambia solo los campos no vacios.
func (s *UserService) UpdateProfile(ctx context.Context, id, firstName, lastName string) (domain.User, error) {
	user, err := s.users.UpdateProfile(ctx, id, strings.TrimSpace(firstName), strings.TrimSpace(lastName))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.User{}, ErrUserNotFound
		}
		return domain.User{}, err
	}
	return user, nil
}

// ForgotPassword genera un token de reseteo y lo envia por mail. Solo el hash
// del token queda guardado; si el mail falla el token se descarta.
func (s *UserService) ForgotPassword(ctx context.Context, emailAddr, resetURLBase string) error {
	emailAddr = normalizeEmail(emailAddr)
	if emailAddr == "" {
		return ErrInvalidEmail
	}
	if s.resetLimiter != nil && !s.resetLimiter.Allow(emailAddr) {
		return ErrRateLimited
	}

	user, err := s.users.GetByEmail(ctx, emailAddr)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrUserNotFound
		}
		return err
	}

	token, hash, err := generateResetToken()
	if err != nil {
		return err
	}
	expiresAt := s.now().Add(resetTokenTTL)
	if err := s.users.SetResetToken(ctx, user.ID, hash, &expiresAt); err != nil {
		return err
	}

	resetURL := strings.TrimRight(resetURLBase, "/") + "/reset-password/" + token
	if s.emailSender == nil {
		err = errors.New("email sender not configured")
	} else {
		err = s.emailSender.SendPasswordReset(ctx, user.Email, resetURL, expiresAt)
	}
	if err != nil {
		s.logger.Warn("send password reset failed", zap.Error(err), zap.String("email", emailAddr))
		if clearErr := s.users.SetResetToken(ctx, user.ID, "", nil); clearErr != nil {
			s.logger.Error("clear reset token failed", zap.Error(clearErr), zap.String("user_id", user.ID))
		}
		return ErrEmailSendFailure
	}
	return nil
}

// ResetPassword valida el token en claro contra el hash guardado y fija la nueva clave.
func (s *UserService) ResetPassword(ctx context.Context, token, newPassword string) (domain.User, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return domain.User{}, ErrResetTokenInvalid
	}
	if len(newPassword) < minPasswordLength {
		return domain.User{}, ErrWeakPassword
	}

	user, err := s.users.GetByResetToken(ctx, hashResetToken(token), s.now())
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.User{}, ErrResetTokenInvalid
		}
		return domain.User{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return domain.User{}, err
	}
	if err := s.users.UpdatePassword(ctx, user.ID, string(hash)); err != nil {
		return domain.User{}, err
	}
	user.PasswordHash = string(hash)
	user.ResetPasswordToken = ""
	user.ResetPasswordExpire = nil
	return user, nil
}

func generateResetToken() (string, string, error) {
	buf := make([]byte, resetTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("generate reset token: %w", err)
	}
	token := hex.EncodeToString(buf)
	return token, hashResetToken(token), nil
}

func hashResetToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func splitName(name string) (string, string) {
	first, rest, _ := strings.Cut(strings.TrimSpace(name), " ")
	return first, strings.TrimSpace(rest)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
