package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"storefront/backend/internal/webhook/domain"
)

// ClaimFunc applies an event's side effects inside the claiming transaction.
type ClaimFunc func(tx *sqlx.Tx) error

// Ledger is the webhook idempotency ledger.
type Ledger interface {
	// Get returns the row for (provider, eventID), or nil.
	Get(ctx context.Context, provider, eventID string) (*domain.Event, error)
	// Record inserts e unless a row for the same provider event exists. It reports whether a row was inserted.
	Record(ctx context.Context, e *domain.Event) (bool, error)
	// Claim locks the row without waiting, runs fn and marks the row processed in the same
	// transaction. It returns domain.ErrInFlight when another transaction holds the row and
	// domain.ErrAlreadyProcessed when the row was processed already.
	Claim(ctx context.Context, provider, eventID string, fn ClaimFunc) error
	// ListUnprocessed returns rows still unprocessed that were created before the cutoff.
	ListUnprocessed(ctx context.Context, before time.Time, limit int) ([]*domain.Event, error)
}
