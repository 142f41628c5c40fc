package streamclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"
)

// APIError es un error de la API REST con un mensaje apto para mostrar.
type APIError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *APIError) Error() string { return e.Message }

func (e *APIError) Unwrap() error { return e.Err }

const (
	msgAuthRequired       = "Authentication required"
	msgServiceUnavailable = "AI service unavailable"
	msgNoResponse         = "No response from server. Please check your connection."
	msgRequestFailed      = "Failed to create prompt request."
)

type authResponse struct {
	Success bool   `json:"success"`
	Token   string `json:"token"`
	Message string `json:"message"`
	Error   string `json:"error"`
}

// Login obtiene un access token y lo deja configurado en el cliente.
func (c *Client) Login(ctx context.Context, email, password string) (string, error) {
	return c.authenticate(ctx, "/api/auth/login", map[string]string{
		"email":    email,
		"password": password,
	})
}

// Register crea la cuenta y deja configurado el token devuelto.
func (c *Client) Register(ctx context.Context, name, email, password string) (string, error) {
	return c.authenticate(ctx, "/api/auth/register", map[string]string{
		"name":     name,
		"email":    email,
		"password": password,
	})
}

func (c *Client) authenticate(ctx context.Context, path string, body any) (string, error) {
	status, data, err := c.postJSON(ctx, path, body)
	if err != nil {
		return "", err
	}
	var out authResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return "", fmt.Errorf("decode auth response: %w", err)
	}
	if status >= 400 || out.Token == "" {
		msg := out.Message
		if msg == "" {
			msg = out.Error
		}
		if msg == "" {
			msg = http.StatusText(status)
		}
		return "", &APIError{StatusCode: status, Message: msg}
	}
	c.SetToken(out.Token)
	return out.Token, nil
}

// CreatePrompt envia un mensaje y devuelve el id del prompt creado.
func (c *Client) CreatePrompt(ctx context.Context, message string) (string, error) {
	status, data, err := c.postJSON(ctx, "/api/ai/prompt", map[string]string{"message": message})
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			return "", err
		}
		return "", &APIError{Message: msgNoResponse, Err: err}
	}

	var out struct {
		Success  bool   `json:"success"`
		PromptID string `json:"promptId"`
		Error    string `json:"error"`
	}
	_ = json.Unmarshal(data, &out)

	switch {
	case status == http.StatusUnauthorized:
		return "", &APIError{StatusCode: status, Message: msgAuthRequired}
	case status == http.StatusServiceUnavailable:
		return "", &APIError{StatusCode: status, Message: msgServiceUnavailable}
	case status >= 400:
		detail := out.Error
		if detail == "" {
			detail = "Unknown server error"
		}
		return "", &APIError{StatusCode: status, Message: "Server error: " + detail}
	}
	if out.PromptID == "" {
		return "", &APIError{StatusCode: status, Message: "Server error: missing prompt id"}
	}
	return out.PromptID, nil
}

func (c *Client) postJSON(ctx context.Context, path string, body any) (int, []byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return 0, nil, &APIError{Message: msgRequestFailed, Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return 0, nil, &APIError{Message: msgRequestFailed, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("api request failed", zap.String("path", path), zap.Error(err))
		return 0, nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return 0, nil, fmt.Errorf("read response: %w", err)
	}
	return resp.StatusCode, data, nil
}
