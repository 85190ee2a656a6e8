package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"storefront/backend/internal/db"
	"storefront/backend/internal/webhook/domain"
)

const eventColumns = `id, tenant_id, provider, provider_event_id, event_type, order_id, payload, processed_at, created_at`

type PostgresLedger struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewPostgresLedger returns a ledger backed by the webhook_events table.
func NewPostgresLedger(db *sqlx.DB) *PostgresLedger {
	return &PostgresLedger{db: db, now: time.Now}
}

func (l *PostgresLedger) Get(ctx context.Context, provider, eventID string) (*domain.Event, error) {
	var e domain.Event
	err := l.db.GetContext(ctx, &e, `SELECT `+eventColumns+` FROM webhook_events
		WHERE provider = $1 AND provider_event_id = $2`, provider, eventID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// Record relies on the (provider, provider_event_id) unique constraint; a lost race is not an error.
func (l *PostgresLedger) Record(ctx context.Context, e *domain.Event) (bool, error) {
	if len(e.Payload) == 0 {
		e.Payload = []byte("{}")
	}
	res, err := l.db.NamedExecContext(ctx, `INSERT INTO webhook_events (id, tenant_id, provider, provider_event_id, event_type, order_id, payload, created_at)
		VALUES (:id, :tenant_id, :provider, :provider_event_id, :event_type, :order_id, :payload, :created_at)
		ON CONFLICT (provider, provider_event_id) DO NOTHING`, e)
	if err != nil {
		return false, fmt.Errorf("record webhook event: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Claim holds the row lock for the whole of fn. A crash before commit releases the lock and
// leaves processed_at NULL, so the next delivery (or the reconciler) claims it again.
func (l *PostgresLedger) Claim(ctx context.Context, provider, eventID string, fn ClaimFunc) error {
	return db.WithTx(ctx, l.db, func(tx *sqlx.Tx) error {
		var processedAt sql.NullTime
		err := tx.GetContext(ctx, &processedAt, `SELECT processed_at FROM webhook_events
			WHERE provider = $1 AND provider_event_id = $2 FOR UPDATE SKIP LOCKED`, provider, eventID)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrInFlight
		}
		if err != nil {
			return fmt.Errorf("lock webhook event: %w", err)
		}
		if processedAt.Valid {
			return domain.ErrAlreadyProcessed
		}
		if err := fn(tx); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `UPDATE webhook_events SET processed_at = $3
			WHERE provider = $1 AND provider_event_id = $2`, provider, eventID, l.now().UTC()); err != nil {
			return fmt.Errorf("mark webhook event processed: %w", err)
		}
		return nil
	})
}

func (l *PostgresLedger) ListUnprocessed(ctx context.Context, before time.Time, limit int) ([]*domain.Event, error) {
	var out []*domain.Event
	err := l.db.SelectContext(ctx, &out, `SELECT `+eventColumns+` FROM webhook_events
		WHERE processed_at IS NULL AND created_at < $1 ORDER BY created_at LIMIT $2`, before, limit)
	return out, err
}
