package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/harshit-ig/startup-genie/internal/domain"
)

// UserRepository define el contrato de persistencia para usuarios.
type UserRepository interface {
	Create(ctx context.Context, user domain.User) error
	GetByID(ctx context.Context, id string) (domain.User, error)
	GetByEmail(ctx context.Context, email string) (domain.User, error)
	UpdateProfile(ctx context.Context, id, firstName, lastName string) (domain.User, error)
	SetResetToken(ctx context.Context, id, tokenHash string, expiresAt *time.Time) error
	GetByResetToken(ctx context.Context, tokenHash string, now time.Time) (domain.User, error)
	UpdatePassword(ctx context.Context, id, passwordHash string) error
}

// PgUserRepository implementa UserRepository usando pgxpool.
type PgUserRepository struct {
	pool *pgxpool.Pool
}

func NewPgUserRepository(pool *pgxpool.Pool) *PgUserRepository {
	return &PgUserRepository{pool: pool}
}

const userColumns = `id, name, first_name, last_name, email, password_hash, reset_password_token, reset_password_expire, created_at`

func (r *PgUserRepository) Create(ctx context.Context, user domain.User) error {
	const query = `
		INSERT INTO users (id, name, first_name, last_name, email, password_hash, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.pool.Exec(ctx, query,
		user.ID,
		user.Name,
		user.FirstName,
		user.LastName,
		user.Email,
		user.PasswordHash,
		user.CreatedAt,
	)
	return mapPgErr(err)
}

func (r *PgUserRepository) GetByID(ctx context.Context, id string) (domain.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return r.scanOne(ctx, query, id)
}

func (r *PgUserRepository) GetByEmail(ctx context.Context, email string) (domain.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return r.scanOne(ctx, query, email)
}

func (r *PgUserRepository) UpdateProfile(ctx context.Context, id, firstName, lastName string) (domain.User, error) {
	const query = `
		UPDATE users
		SET first_name = COALESCE(NULLIF($2, ''), first_name),
		    last_name = COALESCE(NULLIF($3, ''), last_name)
		WHERE id = $1
		RETURNING ` + userColumns
	return r.scanOne(ctx, query, id, firstName, lastName)
}

func (r *PgUserRepository) SetResetToken(ctx context.Context, id, tokenHash string, expiresAt *time.Time) error {
	const query = `
		UPDATE users
		SET reset_password_token = NULLIF($2, ''), reset_password_expire = $3
		WHERE id = $1
	`
	tag, err := r.pool.Exec(ctx, query, id, tokenHash, expiresAt)
	if err != nil {
		return mapPgErr(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PgUserRepository) GetByResetToken(ctx context.Context, tokenHash string, now time.Time) (domain.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE reset_password_token = $1 AND reset_password_expire > $2`
	return r.scanOne(ctx, query, tokenHash, now)
}

func (r *PgUserRepository) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	const query = `
		UPDATE users
		SET password_hash = $2, reset_password_token = NULL, reset_password_expire = NULL
		WHERE id = $1
	`
	tag, err := r.pool.Exec(ctx, query, id, passwordHash)
	if err != nil {
		return mapPgErr(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PgUserRepository) scanOne(ctx context.Context, query string, args ...any) (domain.User, error) {
	var (
		u          domain.User
		resetToken *string
	)
	err := r.pool.QueryRow(ctx, query, args...).Scan(
		&u.ID,
		&u.Name,
		&u.FirstName,
		&u.LastName,
		&u.Email,
		&u.PasswordHash,
		&resetToken,
		&u.ResetPasswordExpire,
		&u.CreatedAt,
	)
	if err != nil {
		return domain.User{}, mapPgErr(err)
	}
	if resetToken != nil {
		u.ResetPasswordToken = *resetToken
	}
	return u, nil
}
