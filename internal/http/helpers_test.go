package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/harshit-ig/startup-genie/internal/relay"
	"github.com/harshit-ig/startup-genie/internal/repository"
	"github.com/harshit-ig/startup-genie/internal/service"
)

type mockEmailSender struct {
	lastTo       string
	lastResetURL string
	err          error
}

func (m *mockEmailSender) SendPasswordReset(_ context.Context, toEmail, resetURL string, _ time.Time) error {
	m.lastTo = toEmail
	m.lastResetURL = resetURL
	return m.err
}

type mockLimiter struct {
	allow bool
}

func (m *mockLimiter) Allow(_ string) bool {
	return m.allow
}

type testServer struct {
	router    *gin.Engine
	users     *repository.MemoryUserRepository
	prompts   *repository.MemoryPromptRepository
	responses *repository.MemoryResponseRepository
	histories *repository.MemoryChatHistoryRepository
	jwt       *service.JWTService
	sender    *mockEmailSender
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	return newTestServerWithLimiter(t, &mockLimiter{allow: true})
}

func newTestServerWithLimiter(t *testing.T, limiter service.RateLimiter) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	s := &testServer{
		users:     repository.NewMemoryUserRepository(),
		prompts:   repository.NewMemoryPromptRepository(),
		responses: repository.NewMemoryResponseRepository(),
		histories: repository.NewMemoryChatHistoryRepository(),
		jwt:       service.NewJWTService("secret", 15*time.Minute, 30*time.Minute, nil),
		sender:    &mockEmailSender{},
	}
	logger := zap.NewNop()
	userSvc := service.NewUserService(logger, s.users, s.sender, limiter)
	promptSvc := service.NewPromptService(logger, s.prompts, s.histories, nil)
	rl := relay.New(s.prompts, s.responses, relay.Config{
		PollInterval:      5 * time.Millisecond,
		MaxPromptAttempts: 20,
		ResponseGrace:     200 * time.Millisecond,
		InactivityTimeout: 2 * time.Second,
	}, logger)

	s.router = NewRouter(logger, s.jwt,
		NewUserHandler(logger, userSvc, s.jwt, UserHandlerOptions{ResetURLBase: "https://app.example.com"}),
		NewAIHandler(logger, promptSvc, rl),
		nil,
	)
	return s
}

func (s *testServer) do(method, path string, body any, token string) *httptest.ResponseRecorder {
	var payload []byte
	if body != nil {
		payload, _ = json.Marshal(body)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

// register crea un usuario y devuelve su access token.
func (s *testServer) register(t *testing.T, name, email string) string {
	t.Helper()
	rec := s.do(http.MethodPost, "/api/auth/register", map[string]string{
		"name":     name,
		"email":    email,
		"password": "secret1",
	}, "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("register: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	token, _ := body["token"].(string)
	if token == "" {
		t.Fatalf("register: missing token in %v", body)
	}
	return token
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
	return out
}
