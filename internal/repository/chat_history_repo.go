package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/harshit-ig/startup-genie/internal/domain"
)

// ChatHistoryRepository persiste la conversacion reciente por usuario.
type ChatHistoryRepository interface {
	GetOrCreate(ctx context.Context, userID string, now time.Time) (domain.ChatHistory, error)
	Save(ctx context.Context, history domain.ChatHistory) error
}

type PgChatHistoryRepository struct {
	pool *pgxpool.Pool
}

func NewPgChatHistoryRepository(pool *pgxpool.Pool) *PgChatHistoryRepository {
	return &PgChatHistoryRepository{pool: pool}
}

func (r *PgChatHistoryRepository) GetOrCreate(ctx context.Context, userID string, now time.Time) (domain.ChatHistory, error) {
	// El DO UPDATE no cambia datos pero hace que RETURNING devuelva la fila existente.
	const query = `
		INSERT INTO chat_histories (user_id, id, messages, created_at, updated_at)
		VALUES ($1, $2, '[]'::jsonb, $3, $3)
		ON CONFLICT (user_id) DO UPDATE SET user_id = EXCLUDED.user_id
		RETURNING id, user_id, messages, created_at, updated_at
	`
	var h domain.ChatHistory
	err := r.pool.QueryRow(ctx, query, userID, domain.NewID(), now).Scan(
		&h.ID,
		&h.UserID,
		&h.Messages,
		&h.CreatedAt,
		&h.UpdatedAt,
	)
	if err != nil {
		return domain.ChatHistory{}, mapPgErr(err)
	}
	if h.Messages == nil {
		h.Messages = []domain.ChatMessage{}
	}
	return h, nil
}

func (r *PgChatHistoryRepository) Save(ctx context.Context, history domain.ChatHistory) error {
	const query = `
		INSERT INTO chat_histories (user_id, id, messages, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id) DO UPDATE SET messages = EXCLUDED.messages, updated_at = EXCLUDED.updated_at
	`
	id := history.ID
	if id == "" {
		id = domain.NewID()
	}
	messages := history.Messages
	if messages == nil {
		messages = []domain.ChatMessage{}
	}
	createdAt := history.CreatedAt
	if createdAt.IsZero() {
		createdAt = history.UpdatedAt
	}
	_, err := r.pool.Exec(ctx, query, history.UserID, id, messages, createdAt, history.UpdatedAt)
	return mapPgErr(err)
}
