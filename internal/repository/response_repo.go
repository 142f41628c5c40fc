package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/harshit-ig/startup-genie/internal/domain"
)

// ResponseRepository define el contrato de persistencia para respuestas.
// Solo el worker escribe; el relay solo llama GetByID.
type ResponseRepository interface {
	Create(ctx context.Context, response domain.Response) error
	GetByID(ctx context.Context, id string) (domain.Response, error)
	AppendToken(ctx context.Context, id, token string, now time.Time) error
	Complete(ctx context.Context, id, fullResponse string, now time.Time) error
	Fail(ctx context.Context, id, errText string, now time.Time) error
}

// PgResponseRepository implementa ResponseRepository usando pgxpool.
type PgResponseRepository struct {
	pool *pgxpool.Pool
}

func NewPgResponseRepository(pool *pgxpool.Pool) *PgResponseRepository {
	return &PgResponseRepository{pool: pool}
}

func (r *PgResponseRepository) Create(ctx context.Context, response domain.Response) error {
	const query = `
		INSERT INTO responses (id, user_id, tokens, complete, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	tokens := response.Tokens
	if tokens == nil {
		tokens = []string{}
	}
	_, err := r.pool.Exec(ctx, query,
		response.ID,
		response.UserID,
		tokens,
		response.Complete,
		response.CreatedAt,
		response.UpdatedAt,
	)
	return mapPgErr(err)
}

func (r *PgResponseRepository) GetByID(ctx context.Context, id string) (domain.Response, error) {
	const query = `
		SELECT id, user_id, tokens, complete, error, full_response, created_at, updated_at
		FROM responses
		WHERE id = $1
	`
	var (
		resp         domain.Response
		errText      *string
		fullResponse *string
	)
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&resp.ID,
		&resp.UserID,
		&resp.Tokens,
		&resp.Complete,
		&errText,
		&fullResponse,
		&resp.CreatedAt,
		&resp.UpdatedAt,
	)
	if err != nil {
		return domain.Response{}, mapPgErr(err)
	}
	if errText != nil {
		resp.Error = *errText
	}
	if fullResponse != nil {
		resp.FullResponse = *fullResponse
	}
	return resp, nil
}

func (r *PgResponseRepository) AppendToken(ctx context.Context, id, token string, now time.Time) error {
	const query = `
		UPDATE responses
		SET tokens = array_append(tokens, $2), updated_at = $3
		WHERE id = $1 AND complete = FALSE
	`
	return r.exec(ctx, query, id, token, now)
}

func (r *PgResponseRepository) Complete(ctx context.Context, id, fullResponse string, now time.Time) error {
	const query = `
		UPDATE responses
		SET complete = TRUE, full_response = $2, updated_at = $3
		WHERE id = $1
	`
	return r.exec(ctx, query, id, fullResponse, now)
}

func (r *PgResponseRepository) Fail(ctx context.Context, id, errText string, now time.Time) error {
	const query = `
		UPDATE responses
		SET complete = TRUE, error = $2, updated_at = $3
		WHERE id = $1
	`
	return r.exec(ctx, query, id, errText, now)
}

func (r *PgResponseRepository) exec(ctx context.Context, query string, args ...any) error {
	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return mapPgErr(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
