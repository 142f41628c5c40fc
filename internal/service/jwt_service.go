package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/harshit-ig/startup-genie/internal/domain"
)

// TokenKind separa los access tokens (header, cookie "token" o ?token= del
// stream) de los refresh tokens, que solo se aceptan en /api/auth/refresh.
type TokenKind string

const (
	TokenAccess  TokenKind = "access"
	TokenRefresh TokenKind = "refresh"
)

const tokenIssuer = "startup-genie"

var (
	ErrTokenInvalid = errors.New("token invalid")
	ErrTokenExpired = errors.New("token expired")
)

// Claims es lo que viaja dentro de cada token.
type Claims struct {
	UserID string    `json:"uid"`
	Email  string    `json:"email"`
	Name   string    `json:"name,omitempty"`
	Kind   TokenKind `json:"typ"`
	jwt.RegisteredClaims
}

// Session es lo que recibe el cliente al autenticarse. El access token va en
// el body y en la cookie de sesion; el refresh solo en el body.
type Session struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresIn    int64     `json:"expires_in"`
	ExpiresAt    time.Time `json:"-"`
}

// CookieMaxAge es la vida de la cookie "token" en segundos: la misma que el
// access token que lleva.
func (s Session) CookieMaxAge() int {
	return int(s.ExpiresIn)
}

// JWTService emite, rota y valida las sesiones de los usuarios.
type JWTService struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	store      RefreshTokenStore
	now        func() time.Time
}

// NewJWTService crea el servicio. Con store nil las sesiones viven en memoria.
func NewJWTService(secret string, accessTTL, refreshTTL time.Duration, store RefreshTokenStore) *JWTService {
	if accessTTL <= 0 {
		accessTTL = 15 * time.Minute
	}
	if refreshTTL <= 0 {
		refreshTTL = 30 * 24 * time.Hour
	}
	if store == nil {
		store = NewMemoryRefreshTokenStore()
	}
	return &JWTService{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		store:      store,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Issue abre una sesion nueva para el usuario.
func (s *JWTService) Issue(ctx context.Context, user domain.User) (Session, error) {
	if len(s.secret) == 0 {
		return Session{}, ErrTokenInvalid
	}
	now := s.now()
	access, _, err := s.sign(user, TokenAccess, now)
	if err != nil {
		return Session{}, err
	}
	refresh, jti, err := s.sign(user, TokenRefresh, now)
	if err != nil {
		return Session{}, err
	}
	if err := s.store.Store(ctx, jti, user.ID, s.refreshTTL); err != nil {
		return Session{}, err
	}
	return Session{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(s.accessTTL / time.Second),
		ExpiresAt:    now.Add(s.accessTTL),
	}, nil
}

// Rotate cambia un refresh token vigente por una sesion nueva. El token usado
// queda consumido.
func (s *JWTService) Rotate(ctx context.Context, refreshToken string) (Session, error) {
	claims, err := s.verify(refreshToken, TokenRefresh)
	if err != nil {
		return Session{}, err
	}
	owner, ok, err := s.store.Consume(ctx, claims.ID)
	if err != nil || !ok || owner != claims.UserID {
		return Session{}, ErrTokenInvalid
	}
	return s.Issue(ctx, domain.User{ID: claims.UserID, Email: claims.Email, Name: claims.Name})
}

// Revoke invalida el refresh token (logout).
func (s *JWTService) Revoke(ctx context.Context, refreshToken string) error {
	claims, err := s.verify(refreshToken, TokenRefresh)
	if err != nil {
		return err
	}
	return s.store.Revoke(ctx, claims.ID)
}

// Verify valida un access token venga de donde venga.
func (s *JWTService) Verify(accessToken string) (Claims, error) {
	return s.verify(accessToken, TokenAccess)
}

func (s *JWTService) sign(user domain.User, kind TokenKind, now time.Time) (string, string, error) {
	ttl := s.accessTTL
	if kind == TokenRefresh {
		ttl = s.refreshTTL
	}
	jti := uuid.NewString()
	claims := Claims{
		UserID: user.ID,
		Email:  user.Email,
		Name:   user.Name,
		Kind:   kind,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Issuer:    tokenIssuer,
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	return signed, jti, err
}

func (s *JWTService) verify(token string, kind TokenKind) (Claims, error) {
	token = strings.TrimSpace(token)
	if len(s.secret) == 0 || token == "" {
		return Claims{}, ErrTokenInvalid
	}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	var claims Claims
	if _, err := parser.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	}); err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, ErrTokenExpired
		}
		return Claims{}, ErrTokenInvalid
	}
	if claims.Kind != kind || claims.UserID == "" || claims.Subject != claims.UserID || claims.ID == "" {
		return Claims{}, ErrTokenInvalid
	}
	return claims, nil
}
