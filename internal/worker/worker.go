package worker

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/harshit-ig/startup-genie/internal/domain"
	"github.com/harshit-ig/startup-genie/internal/llm"
	"github.com/harshit-ig/startup-genie/internal/repository"
)

// Generator produce la respuesta en fragmentos.
type Generator interface {
	StreamChat(ctx context.Context, messages []llm.Message, onDelta func(string) error) (string, error)
}

type Config struct {
	PollInterval   time.Duration
	Concurrency    int
	HistoryContext int
	HistoryLimit   int
}

func DefaultConfig() Config {
	return Config{
		PollInterval:   time.Second,
		Concurrency:    2,
		HistoryContext: 4,
		HistoryLimit:   10,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.PollInterval <= 0 {
		c.PollInterval = d.PollInterval
	}
	if c.Concurrency <= 0 {
		c.Concurrency = d.Concurrency
	}
	if c.HistoryContext <= 0 {
		c.HistoryContext = d.HistoryContext
	}
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = d.HistoryLimit
	}
	return c
}

var errStopSequence = errors.New("stop sequence reached")

// Worker toma prompts pendientes, genera la respuesta y la va escribiendo token
// por token en el store para que el relay la transmita.
type Worker struct {
	prompts   repository.PromptRepository
	responses repository.ResponseRepository
	histories repository.ChatHistoryRepository
	gen       Generator
	cfg       Config
	logger    *zap.Logger
	wake      chan struct{}
	now       func() time.Time
}

func New(
	prompts repository.PromptRepository,
	responses repository.ResponseRepository,
	histories repository.ChatHistoryRepository,
	gen Generator,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		prompts:   prompts,
		responses: responses,
		histories: histories,
		gen:       gen,
		cfg:       cfg.withDefaults(),
		logger:    logger,
		wake:      make(chan struct{}, 1),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Notify pide un poll inmediato. No bloquea.
func (w *Worker) Notify() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// Run hace polling hasta que ctx se cancele y espera las generaciones en curso.
func (w *Worker) Run(ctx context.Context) error {
	sem := make(chan struct{}, w.cfg.Concurrency)
	var wg sync.WaitGroup
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	w.logger.Info("worker started",
		zap.Duration("poll_interval", w.cfg.PollInterval),
		zap.Int("concurrency", w.cfg.Concurrency),
	)
	for {
		w.dispatch(ctx, sem, &wg)
		select {
		case <-ctx.Done():
			wg.Wait()
			w.logger.Info("worker stopped")
			return nil
		case <-ticker.C:
		case <-w.wake:
		}
	}
}

// dispatch reclama prompts mientras haya cupo libre.
func (w *Worker) dispatch(ctx context.Context, sem chan struct{}, wg *sync.WaitGroup) {
	for ctx.Err() == nil {
		select {
		case sem <- struct{}{}:
		default:
			return
		}
		job, ok, err := w.claim(ctx)
		if err != nil || !ok {
			<-sem
			if err != nil && ctx.Err() == nil {
				w.logger.Error("claim prompt failed", zap.Error(err))
			}
			return
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			w.process(ctx, job)
			w.Notify()
		}()
	}
}

// ProcessNext reclama y procesa un prompt de forma sincronica. Devuelve false
// si no habia prompts pendientes.
func (w *Worker) ProcessNext(ctx context.Context) (bool, error) {
	job, ok, err := w.claim(ctx)
	if err != nil || !ok {
		return false, err
	}
	w.process(ctx, job)
	return true, nil
}

type job struct {
	prompt     domain.Prompt
	responseID string
}

func (w *Worker) claim(ctx context.Context) (job, bool, error) {
	responseID := domain.NewID()
	now := w.now()
	prompt, ok, err := w.prompts.ClaimNextPending(ctx, responseID, now)
	if err != nil || !ok {
		return job{}, false, err
	}
	if err := w.responses.Create(ctx, domain.Response{
		ID:        responseID,
		UserID:    prompt.UserID,
		Tokens:    []string{},
		CreatedAt: now,
		UpdatedAt: now,
	}); err != nil {
		// El prompt ya quedo enlazado y en processing: se cierra para que no
		// quede pendiente para siempre. El relay informa "response not found".
		w.logger.Error("create response failed", zap.String("prompt_id", prompt.ID), zap.Error(err))
		if markErr := w.prompts.MarkProcessed(context.WithoutCancel(ctx), prompt.ID, w.now()); markErr != nil {
			w.logger.Error("mark prompt processed failed", zap.String("prompt_id", prompt.ID), zap.Error(markErr))
		}
		return job{}, false, err
	}
	return job{prompt: prompt, responseID: responseID}, true, nil
}

func (w *Worker) process(ctx context.Context, j job) {
	logger := w.logger.With(zap.String("prompt_id", j.prompt.ID), zap.String("response_id", j.responseID))
	// Las escrituras finales deben llegar al store aunque ctx se cancele.
	storeCtx := context.WithoutCancel(ctx)
	start := w.now()

	history, err := w.histories.GetOrCreate(storeCtx, j.prompt.UserID, start)
	if err != nil {
		logger.Warn("load chat history failed", zap.Error(err))
		history = domain.ChatHistory{UserID: j.prompt.UserID}
	}

	message := CleanMessage(j.prompt.Message)
	messages := buildMessages(history.Recent(w.cfg.HistoryContext), message)

	var (
		tokens    int
		collected strings.Builder
	)
	_, err = w.gen.StreamChat(ctx, messages, func(delta string) error {
		if containsStopSequence(delta) {
			return errStopSequence
		}
		if err := w.responses.AppendToken(storeCtx, j.responseID, delta, w.now()); err != nil {
			return err
		}
		collected.WriteString(delta)
		tokens++
		return nil
	})
	if err != nil && !errors.Is(err, errStopSequence) {
		logger.Error("generation failed", zap.Error(err), zap.Int("tokens", tokens))
		if failErr := w.responses.Fail(storeCtx, j.responseID, err.Error(), w.now()); failErr != nil {
			logger.Error("mark response failed", zap.Error(failErr))
		}
		if markErr := w.prompts.MarkProcessed(storeCtx, j.prompt.ID, w.now()); markErr != nil {
			logger.Error("mark prompt processed failed", zap.Error(markErr))
		}
		return
	}

	full := strings.TrimSpace(collected.String())
	if err := w.responses.Complete(storeCtx, j.responseID, full, w.now()); err != nil {
		logger.Error("complete response failed", zap.Error(err))
		return
	}
	if err := w.prompts.MarkProcessed(storeCtx, j.prompt.ID, w.now()); err != nil {
		logger.Error("mark prompt processed failed", zap.Error(err))
	}

	done := w.now()
	history.Append(w.cfg.HistoryLimit,
		domain.ChatMessage{Role: domain.RoleUser, Content: message, Timestamp: start},
		domain.ChatMessage{Role: domain.RoleAssistant, Content: full, Timestamp: done},
	)
	history.UpdatedAt = done
	if err := w.histories.Save(storeCtx, history); err != nil {
		logger.Warn("save chat history failed", zap.Error(err))
	}

	logger.Info("response generated", zap.Int("tokens", tokens), zap.Duration("elapsed", done.Sub(start)))
}
