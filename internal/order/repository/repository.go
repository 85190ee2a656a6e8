package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"storefront/backend/internal/order/domain"
)

// Repository defines persistence for orders and their invoice, payment and receipt.
// Lookups by public reference are not tenant filtered: callers compare tenants and
// answer 403 on mismatch.
type Repository interface {
	CreateWithInvoice(ctx context.Context, o *domain.Order, items []*domain.Item) (*domain.Invoice, error)
	UpsertPendingPayment(ctx context.Context, p *domain.Payment) error

	GetByID(ctx context.Context, id string) (*domain.Order, error)
	GetByOrdID(ctx context.Context, ordID string) (*domain.Order, error)
	ListItems(ctx context.Context, orderID string) ([]*domain.Item, error)
	ListByUser(ctx context.Context, tenantID, userID string) ([]*domain.Order, error)
	GetInvoiceByNumber(ctx context.Context, invNumber string) (*domain.Invoice, error)
	GetInvoiceByOrder(ctx context.Context, orderID string) (*domain.Invoice, error)
	GetReceiptByNumber(ctx context.Context, rcpNumber string) (*domain.Receipt, error)
	GetReceiptByOrder(ctx context.Context, orderID string) (*domain.Receipt, error)
	GetPaymentByOrder(ctx context.Context, orderID string) (*domain.Payment, error)

	MarkPaidTx(ctx context.Context, tx *sqlx.Tx, in MarkPaidInput) (*domain.PaidResult, error)
	CloseUnpaidTx(ctx context.Context, tx *sqlx.Tx, tenantID, orderID string, status domain.OrderStatus, now time.Time) (bool, error)
	CloseUnpaid(ctx context.Context, tenantID, orderID string, status domain.OrderStatus) (bool, error)
	ListStalePending(ctx context.Context, before time.Time, limit int) ([]*domain.Order, error)
}

// MarkPaidInput identifies the order a successful payment belongs to.
type MarkPaidInput struct {
	TenantID        string
	OrderID         string
	PaymentIntentID string
	Now             time.Time
}
