package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/harshit-ig/startup-genie/internal/domain"
	"github.com/harshit-ig/startup-genie/internal/queue"
	"github.com/harshit-ig/startup-genie/internal/repository"
)

var ErrPromptEmpty = errors.New("message is required")

// PromptService registra pedidos de generacion y expone el historial del mentor.
type PromptService struct {
	logger    *zap.Logger
	prompts   repository.PromptRepository
	histories repository.ChatHistoryRepository
	publisher queue.Publisher
	now       func() time.Time
}

func NewPromptService(logger *zap.Logger, prompts repository.PromptRepository, histories repository.ChatHistoryRepository, publisher queue.Publisher) *PromptService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if publisher == nil {
		publisher = queue.NopPublisher{}
	}
	return &PromptService{
		logger:    logger,
		prompts:   prompts,
		histories: histories,
		publisher: publisher,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// CreatePrompt guarda un Prompt sin procesar y avisa al worker. El aviso es
// best effort: si falla, el worker lo encuentra igual en su siguiente poll.
func (s *PromptService) CreatePrompt(ctx context.Context, userID, message string) (domain.Prompt, error) {
	if strings.TrimSpace(message) == "" {
		return domain.Prompt{}, ErrPromptEmpty
	}

	prompt := domain.Prompt{
		ID:        domain.NewID(),
		UserID:    userID,
		Message:   message,
		CreatedAt: s.now(),
	}
	if err := s.prompts.Create(ctx, prompt); err != nil {
		return domain.Prompt{}, err
	}

	if err := s.publisher.PublishPromptCreated(ctx, queue.PromptEvent{
		PromptID:  prompt.ID,
		UserID:    prompt.UserID,
		CreatedAt: prompt.CreatedAt,
	}); err != nil {
		s.logger.Warn("publish prompt event failed", zap.String("prompt_id", prompt.ID), zap.Error(err))
	}
	return prompt, nil
}

// History devuelve el historial del usuario, creandolo vacio si no existe.
func (s *PromptService) History(ctx context.Context, userID string) (domain.ChatHistory, error) {
	return s.histories.GetOrCreate(ctx, userID, s.now())
}
