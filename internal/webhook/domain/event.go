// Package domain holds the webhook ledger: one row per provider event.
package domain

import (
	"errors"
	"time"

	"github.com/jmoiron/sqlx/types"
)

// Event types acted upon. Everything else is recorded and marked processed.
const (
	TypeCheckoutCompleted          = "checkout.session.completed"
	TypeCheckoutExpired            = "checkout.session.expired"
	TypeCheckoutAsyncPaymentFailed = "checkout.session.async_payment_failed"
)

var (
	// ErrInFlight means another delivery of the same event holds the ledger row.
	ErrInFlight = errors.New("webhook: event is being processed")
	// ErrAlreadyProcessed means the event was applied by an earlier delivery.
	ErrAlreadyProcessed = errors.New("webhook: event already processed")
)

// Event is a ledger row. Unique on (Provider, ProviderEventID); ProcessedAt is set in the
// same transaction that applies the side effects.
type Event struct {
	ID              string         `db:"id"`
	TenantID        *string        `db:"tenant_id"`
	Provider        string         `db:"provider"`
	ProviderEventID string         `db:"provider_event_id"`
	EventType       string         `db:"event_type"`
	OrderID         *string        `db:"order_id"`
	Payload         types.JSONText `db:"payload"`
	ProcessedAt     *time.Time     `db:"processed_at"`
	CreatedAt       time.Time      `db:"created_at"`
}

// Processed reports whether side effects were applied.
func (e *Event) Processed() bool { return e != nil && e.ProcessedAt != nil }
