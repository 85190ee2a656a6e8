package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"storefront/backend/internal/session/domain"
)

type PostgresRepository struct {
	db *sqlx.DB
}

// NewPostgresRepository returns a session repository that uses the given db for persistence.
func NewPostgresRepository(db *sqlx.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// GetByTokenHash returns the session with the given token hash, or nil if not found.
// Expiry is not checked here; callers compare ExpiresAt.
func (r *PostgresRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*domain.Session, error) {
	var s domain.Session
	err := r.db.GetContext(ctx, &s, `SELECT id, tenant_id, user_id, session_token_hash, expires_at, created_at
		FROM sessions WHERE session_token_hash = $1`, tokenHash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// Create inserts s.
func (r *PostgresRepository) Create(ctx context.Context, s *domain.Session) error {
	_, err := r.db.NamedExecContext(ctx, `INSERT INTO sessions (id, tenant_id, user_id, session_token_hash, expires_at, created_at)
		VALUES (:id, :tenant_id, :user_id, :session_token_hash, :expires_at, :created_at)`, s)
	return err
}

// DeleteByTokenHash removes the one session matching tokenHash. Missing rows are not an error.
func (r *PostgresRepository) DeleteByTokenHash(ctx context.Context, tokenHash string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE session_token_hash = $1`, tokenHash)
	return err
}

// DeleteExpired removes sessions that expired before the given time and returns how many.
func (r *PostgresRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at < $1`, before)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
