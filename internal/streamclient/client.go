package streamclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultHardTimeout es el techo de duracion de un stream.
const DefaultHardTimeout = 5 * time.Minute

var (
	// ErrCanceled envuelve el error del contexto cuando el caller cancela.
	ErrCanceled = errors.New("stream canceled")
	// ErrStreamClosed indica que el servidor cerro antes de un evento terminal.
	ErrStreamClosed = errors.New("stream closed before completion")
)

// ServerError es un error informado por el servidor dentro del stream.
type ServerError struct {
	Message string
}

func (e *ServerError) Error() string { return e.Message }

// Outcome describe como se resolvio un stream sin error de transporte.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeFailed    Outcome = "failed"
	OutcomeTimedOut  Outcome = "timed_out"
)

// Handlers son los callbacks de un stream. Todos son opcionales.
type Handlers struct {
	OnToken    func(tokens []string)
	OnComplete func()
	OnError    func(err error)
}

func (h Handlers) token(tokens []string) {
	if h.OnToken != nil {
		h.OnToken(tokens)
	}
}

func (h Handlers) complete() {
	if h.OnComplete != nil {
		h.OnComplete()
	}
}

func (h Handlers) fail(err error) {
	if h.OnError != nil {
		h.OnError(err)
	}
}

// Result acumula lo recibido en un stream.
type Result struct {
	Text           string
	TokensReceived int
	Outcome        Outcome
}

// Client habla con la API HTTP de Startup Genie.
type Client struct {
	baseURL     string
	token       string
	httpClient  *http.Client
	hardTimeout time.Duration
	logger      *zap.Logger
	mu          sync.RWMutex
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithToken fija el access token usado en cada request.
func WithToken(token string) Option {
	return func(c *Client) {
		c.token = token
	}
}

func WithHardTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.hardTimeout = d
		}
	}
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		httpClient:  &http.Client{},
		hardTimeout: DefaultHardTimeout,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetToken reemplaza el access token.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

func (c *Client) authorize(req *http.Request) {
	c.mu.RLock()
	token := c.token
	c.mu.RUnlock()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}

type streamPayload struct {
	Tokens      []string `json:"tokens"`
	Partial     bool     `json:"partial"`
	TotalTokens int      `json:"totalTokens"`
	Complete    bool     `json:"complete"`
	Error       bool     `json:"error"`
}

// Stream abre una conexion por promptID y entrega los tokens a medida que
// llegan. Devuelve nil cuando el stream termina por completion, por error
// informado por el servidor o por el techo de duracion; devuelve error ante
// fallas de transporte o cancelacion. Ningun callback corre despues de que
// Stream retorna.
func (c *Client) Stream(ctx context.Context, promptID string, h Handlers) (Result, error) {
	var res Result
	logger := c.logger.With(zap.String("prompt_id", promptID))

	// El techo corre desde antes de conectar: un servidor que acepta la
	// conexion y nunca manda headers tambien queda cubierto.
	connCtx, cancelConn := context.WithCancel(ctx)
	defer cancelConn()
	ceilingHit := make(chan struct{})
	ceiling := time.AfterFunc(c.hardTimeout, func() {
		close(ceilingHit)
		cancelConn()
	})
	defer ceiling.Stop()
	timedOut := func() bool {
		select {
		case <-ceilingHit:
			return true
		default:
			return false
		}
	}

	var text strings.Builder
	finish := func(outcome Outcome) (Result, error) {
		res.Text = text.String()
		res.Outcome = outcome
		return res, nil
	}
	canceled := func() (Result, error) {
		res.Text = text.String()
		logger.Debug("stream canceled", zap.Int("tokens", res.TokensReceived))
		return res, fmt.Errorf("%w: %w", ErrCanceled, ctx.Err())
	}
	hardTimeout := func() (Result, error) {
		logger.Warn("stream hard timeout reached", zap.Duration("timeout", c.hardTimeout))
		h.complete()
		return finish(OutcomeTimedOut)
	}

	endpoint := c.baseURL + "/api/ai/stream/" + url.PathEscape(promptID)
	req, err := http.NewRequestWithContext(connCtx, http.MethodGet, endpoint, nil)
	if err != nil {
		err = fmt.Errorf("create stream request: %w", err)
		h.fail(err)
		return res, err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return canceled()
		}
		if timedOut() {
			return hardTimeout()
		}
		err = fmt.Errorf("connect stream: %w", err)
		h.fail(err)
		return res, err
	}

	var once sync.Once
	stop := make(chan struct{})
	closeStream := func() {
		once.Do(func() {
			close(stop)
			_ = resp.Body.Close()
		})
	}
	defer closeStream()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		err := decodeStatusError(resp)
		if ctx.Err() != nil {
			return canceled()
		}
		if timedOut() {
			return hardTimeout()
		}
		h.fail(err)
		return res, err
	}

	events := make(chan sseEvent)
	readErr := make(chan error, 1)
	go func() {
		r := newSSEReader(resp.Body)
		for {
			ev, err := r.Next()
			if err != nil {
				readErr <- err
				return
			}
			select {
			case events <- ev:
			case <-stop:
				return
			}
		}
	}()

	abort := func(err error) (Result, error) {
		closeStream()
		if ctx.Err() != nil {
			return canceled()
		}
		if timedOut() {
			return hardTimeout()
		}
		res.Text = text.String()
		h.fail(err)
		return res, err
	}

	for {
		select {
		case <-ctx.Done():
			closeStream()
			return canceled()

		case <-ceilingHit:
			closeStream()
			if ctx.Err() != nil {
				return canceled()
			}
			return hardTimeout()

		case err := <-readErr:
			if errors.Is(err, io.EOF) {
				return abort(ErrStreamClosed)
			}
			return abort(fmt.Errorf("read stream: %w", err))

		case ev := <-events:
			if ctx.Err() != nil || timedOut() {
				return abort(context.Canceled)
			}
			var p streamPayload
			if err := json.Unmarshal([]byte(ev.Data), &p); err != nil {
				return abort(fmt.Errorf("decode stream event: %w", err))
			}

			if p.Error {
				msg := strings.Join(p.Tokens, "")
				logger.Debug("stream error event", zap.String("message", msg))
				closeStream()
				h.fail(&ServerError{Message: msg})
				return finish(OutcomeFailed)
			}
			if p.Complete {
				closeStream()
				h.complete()
				return finish(OutcomeCompleted)
			}

			if len(p.Tokens) > 0 {
				res.TokensReceived += len(p.Tokens)
				for _, t := range p.Tokens {
					text.WriteString(t)
				}
				h.token(p.Tokens)
			}
			// Completion implicita por conteo, por si el evento explicito no llega.
			if !p.Partial && p.TotalTokens > 0 && len(p.Tokens) > 0 && res.TokensReceived >= p.TotalTokens {
				closeStream()
				h.complete()
				return finish(OutcomeCompleted)
			}
		}
	}
}

// StatusError es una respuesta HTTP no exitosa.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("unexpected status %d", e.StatusCode)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Message)
}

func decodeStatusError(resp *http.Response) *StatusError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	msg := strings.TrimSpace(string(body))
	if json.Unmarshal(body, &payload) == nil {
		switch {
		case payload.Error != "":
			msg = payload.Error
		case payload.Message != "":
			msg = payload.Message
		}
	}
	return &StatusError{StatusCode: resp.StatusCode, Message: msg}
}
