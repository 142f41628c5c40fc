package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/harshit-ig/startup-genie/internal/domain"
)

// PromptRepository define el contrato de persistencia para prompts.
// El relay solo lee; ClaimNextPending y MarkProcessed los usa el worker.
type PromptRepository interface {
	Create(ctx context.Context, prompt domain.Prompt) error
	GetByID(ctx context.Context, id string) (domain.Prompt, error)
	// ClaimNextPending toma de forma atomica el prompt pendiente mas antiguo,
	// lo marca processing y le asigna responseID. ok=false si no hay pendientes.
	ClaimNextPending(ctx context.Context, responseID string, now time.Time) (domain.Prompt, bool, error)
	MarkProcessed(ctx context.Context, id string, now time.Time) error
}

// PgPromptRepository implementa PromptRepository usando pgxpool.
type PgPromptRepository struct {
	pool *pgxpool.Pool
}

func NewPgPromptRepository(pool *pgxpool.Pool) *PgPromptRepository {
	return &PgPromptRepository{pool: pool}
}

const promptColumns = `id, user_id, message, processed, processing, response_id, created_at, processed_at`

func (r *PgPromptRepository) Create(ctx context.Context, prompt domain.Prompt) error {
	const query = `
		INSERT INTO prompts (id, user_id, message, processed, processing, response_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	var responseID interface{}
	if prompt.ResponseID != "" {
		responseID = prompt.ResponseID
	}
	_, err := r.pool.Exec(ctx, query,
		prompt.ID,
		prompt.UserID,
		prompt.Message,
		prompt.Processed,
		prompt.Processing,
		responseID,
		prompt.CreatedAt,
	)
	return mapPgErr(err)
}

func (r *PgPromptRepository) GetByID(ctx context.Context, id string) (domain.Prompt, error) {
	const query = `SELECT ` + promptColumns + ` FROM prompts WHERE id = $1`
	p, err := scanPrompt(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		return domain.Prompt{}, mapPgErr(err)
	}
	return p, nil
}

func (r *PgPromptRepository) ClaimNextPending(ctx context.Context, responseID string, now time.Time) (domain.Prompt, bool, error) {
	const query = `
		UPDATE prompts
		SET processing = TRUE, response_id = $1, processed_at = $2
		WHERE id = (
			SELECT id FROM prompts
			WHERE processed = FALSE AND processing = FALSE
			ORDER BY created_at
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + promptColumns
	p, err := scanPrompt(r.pool.QueryRow(ctx, query, responseID, now))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Prompt{}, false, nil
	}
	if err != nil {
		return domain.Prompt{}, false, err
	}
	return p, true, nil
}

func (r *PgPromptRepository) MarkProcessed(ctx context.Context, id string, now time.Time) error {
	const query = `
		UPDATE prompts
		SET processed = TRUE, processing = FALSE, processed_at = COALESCE(processed_at, $2)
		WHERE id = $1
	`
	tag, err := r.pool.Exec(ctx, query, id, now)
	if err != nil {
		return mapPgErr(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanPrompt(row pgx.Row) (domain.Prompt, error) {
	var (
		p          domain.Prompt
		responseID *string
	)
	err := row.Scan(
		&p.ID,
		&p.UserID,
		&p.Message,
		&p.Processed,
		&p.Processing,
		&responseID,
		&p.CreatedAt,
		&p.ProcessedAt,
	)
	if err != nil {
		return domain.Prompt{}, err
	}
	if responseID != nil {
		p.ResponseID = *responseID
	}
	return p, nil
}
