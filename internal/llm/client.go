package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Message es un mensaje con rol en formato chat completions.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// LLMClient define la interfaz para generar respuestas con un LLM.
type LLMClient interface {
	// StreamChat invoca onDelta por cada fragmento recibido y devuelve el texto completo.
	StreamChat(ctx context.Context, messages []Message, onDelta func(string) error) (string, error)
}

var ErrEmptyResponse = errors.New("llm empty response")

// Options ajusta los parametros de generacion. Los valores cero se omiten del request.
type Options struct {
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

// HTTPClient implementa LLMClient usando la API de OpenAI-compatible.
type HTTPClient struct {
	baseURL string
	apiKey  string
	model   string
	opts    Options
	client  *http.Client
	logger  *zap.Logger
}

// NewHTTPClient construye un cliente HTTP apuntando a la API de chat completions.
func NewHTTPClient(baseURL, apiKey, model string, opts Options, logger *zap.Logger) *HTTPClient {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	// Sin timeout global: un stream largo puede durar minutos; el corte lo da ctx.
	hc := &http.Client{}
	if opts.Timeout > 0 {
		hc.Timeout = opts.Timeout
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
		opts:    opts,
		client:  hc,
		logger:  logger,
	}
}

func (c *HTTPClient) StreamChat(ctx context.Context, messages []Message, onDelta func(string) error) (string, error) {
	resp, err := c.do(ctx, messages, true)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var full strings.Builder
	reader := bufio.NewReader(resp.Body)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				break
			}
			return full.String(), fmt.Errorf("read stream: %w", err)
		}

		line = strings.TrimRight(line, "\r\n")
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "[DONE]" {
			break
		}

		var chunk streamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			c.logger.Debug("skipping malformed llm chunk", zap.Error(err))
			continue
		}
		if chunk.Error != nil {
			return full.String(), fmt.Errorf("llm api error: %s", chunk.Error.Message)
		}
		if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == "" {
			continue
		}

		delta := chunk.Choices[0].Delta.Content
		full.WriteString(delta)
		if onDelta != nil {
			if err := onDelta(delta); err != nil {
				return full.String(), err
			}
		}
	}

	if full.Len() == 0 {
		return "", ErrEmptyResponse
	}
	return full.String(), nil
}

func (c *HTTPClient) do(ctx context.Context, messages []Message, stream bool) (*http.Response, error) {
	reqBody := chatRequest{
		Model:    c.model,
		Messages: messages,
		Stream:   stream,
	}
	if c.opts.Temperature != 0 {
		t := c.opts.Temperature
		reqBody.Temperature = &t
	}
	if c.opts.MaxTokens != 0 {
		m := c.opts.MaxTokens
		reqBody.MaxTokens = &m
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	if stream {
		req.Header.Set("Accept", "text/event-stream")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}

	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		c.logger.Warn("llm error status", zap.Int("status", resp.StatusCode), zap.String("body", string(errBody)))
		return nil, fmt.Errorf("llm http error: status=%d", resp.StatusCode)
	}
	return resp, nil
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Stream      bool      `json:"stream,omitempty"`
	Temperature *float64  `json:"temperature,omitempty"`
	MaxTokens   *int      `json:"max_tokens,omitempty"`
}

type apiError struct {
	Message string `json:"message"`
}

type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
	Error *apiError `json:"error,omitempty"`
}
