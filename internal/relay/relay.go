package relay

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/harshit-ig/startup-genie/internal/domain"
	"github.com/harshit-ig/startup-genie/internal/repository"
)

// State es la fase de una sesion de stream.
type State string

const (
	StateAwaitingPrompt      State = "awaiting_prompt"
	StateAwaitingResponseID  State = "awaiting_response_id"
	StateAwaitingResponseDoc State = "awaiting_response_doc"
	StateStreaming           State = "streaming"
	StateComplete            State = "complete"
	StateError               State = "error"
	StateTimedOut            State = "timed_out"
	// StateDisconnected indica que el cliente se fue o el canal dejo de aceptar
	// escrituras; no se envia evento terminal.
	StateDisconnected State = "disconnected"
)

// Terminal indica si la sesion ya termino.
func (s State) Terminal() bool {
	switch s {
	case StateComplete, StateError, StateTimedOut, StateDisconnected:
		return true
	default:
		return false
	}
}

// PromptReader es la vista de solo lectura del store de prompts.
type PromptReader interface {
	GetByID(ctx context.Context, id string) (domain.Prompt, error)
}

// ResponseReader es la vista de solo lectura del store de respuestas.
type ResponseReader interface {
	GetByID(ctx context.Context, id string) (domain.Response, error)
}

// Sink recibe los eventos de una sesion, en orden.
type Sink interface {
	Send(ev Event) error
}

// Config agrupa los tiempos del relay. Los valores cero toman el default.
type Config struct {
	PollInterval      time.Duration
	MaxPromptAttempts int
	ResponseGrace     time.Duration
	InactivityTimeout time.Duration
}

// DefaultConfig devuelve los valores de produccion.
func DefaultConfig() Config {
	return Config{
		PollInterval:      500 * time.Millisecond,
		MaxPromptAttempts: 20,
		ResponseGrace:     5 * time.Second,
		InactivityTimeout: 60 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.PollInterval <= 0 {
		c.PollInterval = d.PollInterval
	}
	if c.MaxPromptAttempts <= 0 {
		c.MaxPromptAttempts = d.MaxPromptAttempts
	}
	if c.ResponseGrace <= 0 {
		c.ResponseGrace = d.ResponseGrace
	}
	if c.InactivityTimeout <= 0 {
		c.InactivityTimeout = d.InactivityTimeout
	}
	return c
}

// Request identifica el prompt a seguir. UserID vacio omite el chequeo de dueño.
type Request struct {
	PromptID string
	UserID   string
}

// Result resume como termino una sesion.
type Result struct {
	State      State
	TokensSent int
}

// Relay convierte el polling de los stores en un stream de eventos por cliente.
// Cada llamada a Run es independiente; Relay no guarda estado entre sesiones.
type Relay struct {
	prompts   PromptReader
	responses ResponseReader
	cfg       Config
	clock     Clock
	logger    *zap.Logger
}

type Option func(*Relay)

// WithClock reemplaza el reloj real.
func WithClock(c Clock) Option {
	return func(r *Relay) {
		if c != nil {
			r.clock = c
		}
	}
}

func New(prompts PromptReader, responses ResponseReader, cfg Config, logger *zap.Logger, opts ...Option) *Relay {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Relay{
		prompts:   prompts,
		responses: responses,
		cfg:       cfg.withDefaults(),
		clock:     realClock{},
		logger:    logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run atiende una sesion hasta un estado terminal. Escribe a lo sumo un evento
// terminal y deja de leer los stores apenas ctx se cancela.
func (r *Relay) Run(ctx context.Context, req Request, sink Sink) Result {
	s := &session{
		relay:  r,
		req:    req,
		sink:   sink,
		state:  StateAwaitingPrompt,
		logger: r.logger.With(zap.String("prompt_id", req.PromptID)),
	}

	immediate := true
	for !s.state.Terminal() {
		if !immediate && !r.wait(ctx) {
			s.state = StateDisconnected
			break
		}
		if ctx.Err() != nil {
			s.state = StateDisconnected
			break
		}
		immediate = s.step(ctx)
	}

	s.logger.Debug("stream session finished",
		zap.String("state", string(s.state)),
		zap.Int("tokens_sent", s.sent),
	)
	return Result{State: s.state, TokensSent: s.sent}
}

// wait bloquea un intervalo de polling. Devuelve false si ctx se cancela,
// en cuyo caso el timer queda detenido.
func (r *Relay) wait(ctx context.Context) bool {
	t := r.clock.NewTimer(r.cfg.PollInterval)
	select {
	case <-ctx.Done():
		t.Stop()
		return false
	case <-t.C():
		return true
	}
}

type session struct {
	relay  *Relay
	req    Request
	sink   Sink
	logger *zap.Logger

	state        State
	attempts     int
	responseID   string
	graceStart   time.Time
	sent         int
	lastActivity time.Time
}

// step hace una lectura segun el estado actual. Devuelve true cuando la sesion
// paso a una fase nueva que debe leerse sin esperar otro intervalo.
func (s *session) step(ctx context.Context) bool {
	switch s.state {
	case StateAwaitingPrompt, StateAwaitingResponseID:
		return s.pollPrompt(ctx)
	case StateAwaitingResponseDoc, StateStreaming:
		s.pollResponse(ctx)
		return false
	default:
		return false
	}
}

func (s *session) pollPrompt(ctx context.Context) bool {
	cfg := s.relay.cfg
	prompt, err := s.relay.prompts.GetByID(ctx, s.req.PromptID)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			s.readFailed(ctx, err, msgSetupFailed)
			return false
		}
		s.attempts++
		if s.attempts >= cfg.MaxPromptAttempts {
			s.fail(StateError, msgPromptNotFound)
		}
		return false
	}

	if s.req.UserID != "" && prompt.UserID != s.req.UserID {
		s.logger.Warn("prompt owner mismatch", zap.String("user_id", s.req.UserID))
		s.fail(StateError, msgPromptNotFound)
		return false
	}

	s.state = StateAwaitingResponseID
	if !prompt.Linked() {
		s.attempts++
		if s.attempts >= cfg.MaxPromptAttempts {
			s.fail(StateError, msgNoResponse)
		}
		return false
	}
	if !domain.IsValidID(prompt.ResponseID) {
		s.logger.Error("invalid response id on prompt", zap.String("response_id", prompt.ResponseID))
		s.fail(StateError, msgInvalidResponseID)
		return false
	}

	s.responseID = prompt.ResponseID
	s.graceStart = s.relay.clock.Now()
	s.state = StateAwaitingResponseDoc
	return true
}

func (s *session) pollResponse(ctx context.Context) {
	now := s.relay.clock.Now()
	resp, err := s.relay.responses.GetByID(ctx, s.responseID)
	if err != nil {
		if s.state == StateAwaitingResponseDoc && errors.Is(err, repository.ErrNotFound) {
			if now.Sub(s.graceStart) > s.relay.cfg.ResponseGrace {
				s.logger.Warn("response not found after waiting", zap.String("response_id", s.responseID))
				s.fail(StateError, msgResponseNotFound)
			}
			return
		}
		msg := msgServerError
		if s.state == StateAwaitingResponseDoc {
			msg = msgSetupFailed
		}
		s.readFailed(ctx, err, msg)
		return
	}

	if s.state == StateAwaitingResponseDoc {
		s.state = StateStreaming
		s.lastActivity = now
	}

	total := len(resp.Tokens)
	if total > s.sent {
		// Un lote con error pendiente sigue siendo parcial: el evento terminal
		// es el error, no una completion implicita.
		partial := !resp.Complete || resp.Failed()
		if !s.send(tokenEvent(resp.Tokens[s.sent:], total, partial)) {
			return
		}
		s.sent = total
		s.lastActivity = now
	}

	// Solo se cierra cuando todo lo observado ya fue enviado.
	if (resp.Complete || resp.Failed()) && s.sent >= total {
		if resp.Failed() {
			s.logger.Warn("response generation failed", zap.String("response_id", s.responseID), zap.String("error", resp.Error))
			s.fail(StateError, msgGenerationFailed)
			return
		}
		if s.send(completeEvent(total)) {
			s.state = StateComplete
			s.logger.Info("stream complete", zap.String("response_id", s.responseID), zap.Int("tokens", total))
		}
		return
	}

	if now.Sub(s.lastActivity) > s.relay.cfg.InactivityTimeout {
		s.logger.Warn("stream inactive", zap.String("response_id", s.responseID), zap.Int("tokens_sent", s.sent))
		s.fail(StateTimedOut, msgInactivity)
	}
}

// readFailed trata un error de lectura. Si el contexto ya se cancelo el error
// es consecuencia de la desconexion y no se notifica nada.
func (s *session) readFailed(ctx context.Context, err error, msg string) {
	if ctx.Err() != nil {
		s.state = StateDisconnected
		return
	}
	s.logger.Error("stream store read failed", zap.String("state", string(s.state)), zap.Error(err))
	s.fail(StateError, msg)
}

func (s *session) fail(state State, msg string) {
	if s.send(errorEvent(msg)) {
		s.state = state
	}
}

func (s *session) send(ev Event) bool {
	if err := s.sink.Send(ev); err != nil {
		s.logger.Warn("stream write failed", zap.Error(err))
		s.state = StateDisconnected
		return false
	}
	return true
}
