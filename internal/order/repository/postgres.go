package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"storefront/backend/internal/db"
	"storefront/backend/internal/order/domain"
	"storefront/backend/internal/reference"
)

// ConstraintOrdID is the unique constraint on orders.ord_id.
const ConstraintOrdID = "orders_ord_id_key"

const orderColumns = `id, tenant_id, user_id, ord_id, status, currency, subtotal, tax, total, created_at, updated_at`

type PostgresRepository struct {
	db *sqlx.DB
}

// NewPostgresRepository returns an order repository that uses the given db for persistence.
func NewPostgresRepository(db *sqlx.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// CreateWithInvoice inserts the order, its items and its invoice in one transaction.
// The invoice number comes from the yearly INV counter. A duplicate ord_id surfaces as
// a unique violation on ConstraintOrdID and nothing is written.
func (r *PostgresRepository) CreateWithInvoice(ctx context.Context, o *domain.Order, items []*domain.Item) (*domain.Invoice, error) {
	var inv *domain.Invoice
	err := db.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		if _, err := tx.NamedExecContext(ctx, `INSERT INTO orders (`+orderColumns+`)
			VALUES (:id, :tenant_id, :user_id, :ord_id, :status, :currency, :subtotal, :tax, :total, :created_at, :updated_at)`, o); err != nil {
			return err
		}
		for _, it := range items {
			if _, err := tx.NamedExecContext(ctx, `INSERT INTO order_items (id, tenant_id, order_id, release_id, quantity, unit_price, currency)
				VALUES (:id, :tenant_id, :order_id, :release_id, :quantity, :unit_price, :currency)`, it); err != nil {
				return err
			}
		}
		n, err := nextCounter(ctx, tx, reference.ScopeInvoice, o.CreatedAt.Year())
		if err != nil {
			return err
		}
		invNumber, err := reference.Sequential(reference.ScopeInvoice, o.CreatedAt.Year(), n)
		if err != nil {
			return err
		}
		inv = &domain.Invoice{
			ID:        uuid.New().String(),
			TenantID:  o.TenantID,
			InvNumber: invNumber,
			OrderID:   o.ID,
			Status:    "ISSUED",
			CreatedAt: o.CreatedAt,
		}
		_, err = tx.NamedExecContext(ctx, `INSERT INTO invoices (id, tenant_id, inv_number, order_id, status, created_at)
			VALUES (:id, :tenant_id, :inv_number, :order_id, :status, :created_at)`, inv)
		return err
	})
	if err != nil {
		return nil, err
	}
	return inv, nil
}

// nextCounter increments and returns the (scope, year) counter inside tx.
func nextCounter(ctx context.Context, tx *sqlx.Tx, scope string, year int) (int64, error) {
	var n int64
	err := tx.GetContext(ctx, &n, `INSERT INTO reference_counters (scope, year, value) VALUES ($1, $2, 1)
		ON CONFLICT (scope, year) DO UPDATE SET value = reference_counters.value + 1
		RETURNING value`, scope, year)
	if err != nil {
		return 0, fmt.Errorf("next %s counter: %w", scope, err)
	}
	return n, nil
}

// UpsertPendingPayment records the provider session for an order. If the payment row
// already exists (a fast webhook got there first) only the session id is filled in.
func (r *PostgresRepository) UpsertPendingPayment(ctx context.Context, p *domain.Payment) error {
	_, err := r.db.NamedExecContext(ctx, `INSERT INTO payments (id, tenant_id, order_id, provider, checkout_session_id, payment_intent_id, status, created_at, updated_at)
		VALUES (:id, :tenant_id, :order_id, :provider, :checkout_session_id, :payment_intent_id, :status, :created_at, :updated_at)
		ON CONFLICT (order_id) DO UPDATE SET
			checkout_session_id = EXCLUDED.checkout_session_id,
			payment_intent_id = COALESCE(NULLIF(payments.payment_intent_id, ''), EXCLUDED.payment_intent_id),
			updated_at = EXCLUDED.updated_at`, p)
	return err
}

func (r *PostgresRepository) getOrder(ctx context.Context, q sqlx.QueryerContext, query string, arg any) (*domain.Order, error) {
	var o domain.Order
	err := sqlx.GetContext(ctx, q, &o, query, arg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// GetByID returns the order with the given id, or nil if not found.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	return r.getOrder(ctx, r.db, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
}

// GetByOrdID returns the order with the given public reference, or nil if not found.
func (r *PostgresRepository) GetByOrdID(ctx context.Context, ordID string) (*domain.Order, error) {
	return r.getOrder(ctx, r.db, `SELECT `+orderColumns+` FROM orders WHERE ord_id = $1`, ordID)
}

// ListItems returns the lines of an order.
func (r *PostgresRepository) ListItems(ctx context.Context, orderID string) ([]*domain.Item, error) {
	var out []*domain.Item
	err := r.db.SelectContext(ctx, &out, `SELECT id, tenant_id, order_id, release_id, quantity, unit_price, currency
		FROM order_items WHERE order_id = $1 ORDER BY release_id, id`, orderID)
	return out, err
}

// ListByUser returns a user's orders in a tenant, newest first.
func (r *PostgresRepository) ListByUser(ctx context.Context, tenantID, userID string) ([]*domain.Order, error) {
	var out []*domain.Order
	err := r.db.SelectContext(ctx, &out, `SELECT `+orderColumns+` FROM orders
		WHERE tenant_id = $1 AND user_id = $2 ORDER BY created_at DESC`, tenantID, userID)
	return out, err
}

func getOne[T any](ctx context.Context, q sqlx.QueryerContext, query string, args ...any) (*T, error) {
	var v T
	err := sqlx.GetContext(ctx, q, &v, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

const (
	invoiceColumns = `id, tenant_id, inv_number, order_id, status, created_at`
	receiptColumns = `id, tenant_id, rcp_number, order_id, payment_id, created_at`
	paymentColumns = `id, tenant_id, order_id, provider, checkout_session_id, payment_intent_id, status, created_at, updated_at`
)

func (r *PostgresRepository) GetInvoiceByNumber(ctx context.Context, invNumber string) (*domain.Invoice, error) {
	return getOne[domain.Invoice](ctx, r.db, `SELECT `+invoiceColumns+` FROM invoices WHERE inv_number = $1`, invNumber)
}

func (r *PostgresRepository) GetInvoiceByOrder(ctx context.Context, orderID string) (*domain.Invoice, error) {
	return getOne[domain.Invoice](ctx, r.db, `SELECT `+invoiceColumns+` FROM invoices WHERE order_id = $1`, orderID)
}

func (r *PostgresRepository) GetReceiptByNumber(ctx context.Context, rcpNumber string) (*domain.Receipt, error) {
	return getOne[domain.Receipt](ctx, r.db, `SELECT `+receiptColumns+` FROM receipts WHERE rcp_number = $1`, rcpNumber)
}

func (r *PostgresRepository) GetReceiptByOrder(ctx context.Context, orderID string) (*domain.Receipt, error) {
	return getOne[domain.Receipt](ctx, r.db, `SELECT `+receiptColumns+` FROM receipts WHERE order_id = $1`, orderID)
}

func (r *PostgresRepository) GetPaymentByOrder(ctx context.Context, orderID string) (*domain.Payment, error) {
	return getOne[domain.Payment](ctx, r.db, `SELECT `+paymentColumns+` FROM payments WHERE order_id = $1`, orderID)
}

// MarkPaidTx applies a successful payment inside tx: the order moves to PAID (only from
// PENDING_PAYMENT), the payment is marked SUCCEEDED, exactly one receipt exists, and when
// the order has a user each release gets one entitlement and one licence. Calling it again
// for a PAID order changes nothing.
func (r *PostgresRepository) MarkPaidTx(ctx context.Context, tx *sqlx.Tx, in MarkPaidInput) (*domain.PaidResult, error) {
	o, err := r.getOrder(ctx, tx, `SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, in.OrderID)
	if err != nil {
		return nil, fmt.Errorf("lock order: %w", err)
	}
	if o == nil {
		return &domain.PaidResult{Outcome: domain.OutcomeNotFound}, nil
	}
	if o.TenantID != in.TenantID {
		return &domain.PaidResult{Outcome: domain.OutcomeTenantMismatch, Order: o}, nil
	}
	switch o.Status {
	case domain.OrderPaid:
		rcp, err := getOne[domain.Receipt](ctx, tx, `SELECT `+receiptColumns+` FROM receipts WHERE order_id = $1`, o.ID)
		if err != nil {
			return nil, err
		}
		return &domain.PaidResult{Outcome: domain.OutcomeAlreadyPaid, Order: o, Receipt: rcp}, nil
	case domain.OrderPendingPayment:
	default:
		return &domain.PaidResult{Outcome: domain.OutcomeNotPayable, Order: o}, nil
	}

	now := in.Now.UTC()
	if _, err := tx.ExecContext(ctx, `UPDATE orders SET status = $2, updated_at = $3 WHERE id = $1`,
		o.ID, domain.OrderPaid, now); err != nil {
		return nil, fmt.Errorf("mark order paid: %w", err)
	}
	o.Status = domain.OrderPaid
	o.UpdatedAt = now

	var paymentID string
	err = tx.GetContext(ctx, &paymentID, `INSERT INTO payments (id, tenant_id, order_id, provider, payment_intent_id, status, created_at, updated_at)
		VALUES ($1, $2, $3, 'stripe', $4, $5, $6, $6)
		ON CONFLICT (order_id) DO UPDATE SET
			status = EXCLUDED.status,
			payment_intent_id = COALESCE(NULLIF(EXCLUDED.payment_intent_id, ''), payments.payment_intent_id),
			updated_at = EXCLUDED.updated_at
		RETURNING id`, uuid.New().String(), o.TenantID, o.ID, in.PaymentIntentID, domain.PaymentSucceeded, now)
	if err != nil {
		return nil, fmt.Errorf("mark payment succeeded: %w", err)
	}

	rcp, err := ensureReceipt(ctx, tx, o, paymentID, now)
	if err != nil {
		return nil, err
	}
	res := &domain.PaidResult{Outcome: domain.OutcomePaid, Order: o, Receipt: rcp}
	if o.UserID == nil {
		return res, nil
	}

	var releases []string
	if err := tx.SelectContext(ctx, &releases, `SELECT DISTINCT release_id FROM order_items WHERE order_id = $1 ORDER BY release_id`, o.ID); err != nil {
		return nil, fmt.Errorf("list releases: %w", err)
	}
	for _, releaseID := range releases {
		granted, err := grantEntitlement(ctx, tx, o, releaseID, now)
		if err != nil {
			return nil, err
		}
		if granted {
			res.Entitlements++
		}
		key, err := issueLicence(ctx, tx, o, releaseID, now)
		if err != nil {
			return nil, err
		}
		if key != "" {
			res.Licences = append(res.Licences, key)
		}
	}
	return res, nil
}

func ensureReceipt(ctx context.Context, tx *sqlx.Tx, o *domain.Order, paymentID string, now time.Time) (*domain.Receipt, error) {
	existing, err := getOne[domain.Receipt](ctx, tx, `SELECT `+receiptColumns+` FROM receipts WHERE order_id = $1`, o.ID)
	if err != nil || existing != nil {
		return existing, err
	}
	n, err := nextCounter(ctx, tx, reference.ScopeReceipt, now.Year())
	if err != nil {
		return nil, err
	}
	rcpNumber, err := reference.Sequential(reference.ScopeReceipt, now.Year(), n)
	if err != nil {
		return nil, err
	}
	rcp := &domain.Receipt{
		ID:        uuid.New().String(),
		TenantID:  o.TenantID,
		RcpNumber: rcpNumber,
		OrderID:   o.ID,
		PaymentID: paymentID,
		CreatedAt: now,
	}
	if _, err := tx.NamedExecContext(ctx, `INSERT INTO receipts (id, tenant_id, rcp_number, order_id, payment_id, created_at)
		VALUES (:id, :tenant_id, :rcp_number, :order_id, :payment_id, :created_at)`, rcp); err != nil {
		return nil, fmt.Errorf("insert receipt: %w", err)
	}
	return rcp, nil
}

func grantEntitlement(ctx context.Context, tx *sqlx.Tx, o *domain.Order, releaseID string, now time.Time) (bool, error) {
	res, err := tx.ExecContext(ctx, `INSERT INTO entitlements (id, tenant_id, user_id, release_id, order_id, granted_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (tenant_id, user_id, release_id) DO NOTHING`,
		uuid.New().String(), o.TenantID, *o.UserID, releaseID, o.ID, now)
	if err != nil {
		return false, fmt.Errorf("grant entitlement: %w", err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// issueLicence inserts a licence with a fresh key. A key collision retries with a new key;
// an existing licence for the same user and release is kept and "" is returned.
func issueLicence(ctx context.Context, tx *sqlx.Tx, o *domain.Order, releaseID string, now time.Time) (string, error) {
	for attempt := 0; attempt < reference.MaxAttempts; attempt++ {
		key, err := reference.NewLicenceKey()
		if err != nil {
			return "", err
		}
		var id string
		err = tx.GetContext(ctx, &id, `INSERT INTO licences (id, tenant_id, user_id, release_id, order_id, lic_key, status, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, 'ACTIVE', $7)
			ON CONFLICT DO NOTHING
			RETURNING id`, uuid.New().String(), o.TenantID, *o.UserID, releaseID, o.ID, key, now)
		if err == nil {
			return key, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("issue licence: %w", err)
		}
		var exists bool
		if err := tx.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM licences WHERE tenant_id = $1 AND user_id = $2 AND release_id = $3)`,
			o.TenantID, *o.UserID, releaseID); err != nil {
			return "", fmt.Errorf("check licence: %w", err)
		}
		if exists {
			return "", nil
		}
	}
	return "", fmt.Errorf("issue licence: no unique key after %d attempts", reference.MaxAttempts)
}

// CloseUnpaidTx moves a PENDING_PAYMENT order to status and fails its pending payment.
// Orders in any other state are left alone and false is returned.
func (r *PostgresRepository) CloseUnpaidTx(ctx context.Context, tx *sqlx.Tx, tenantID, orderID string, status domain.OrderStatus, now time.Time) (bool, error) {
	res, err := tx.ExecContext(ctx, `UPDATE orders SET status = $3, updated_at = $4
		WHERE id = $1 AND tenant_id = $2 AND status = 'PENDING_PAYMENT'`, orderID, tenantID, status, now)
	if err != nil {
		return false, fmt.Errorf("close order: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil || n == 0 {
		return false, err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE payments SET status = 'FAILED', updated_at = $2
		WHERE order_id = $1 AND status = 'PENDING'`, orderID, now); err != nil {
		return false, fmt.Errorf("fail payment: %w", err)
	}
	return true, nil
}

// CloseUnpaid runs CloseUnpaidTx in its own transaction.
func (r *PostgresRepository) CloseUnpaid(ctx context.Context, tenantID, orderID string, status domain.OrderStatus) (bool, error) {
	var changed bool
	err := db.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		var err error
		changed, err = r.CloseUnpaidTx(ctx, tx, tenantID, orderID, status, time.Now().UTC())
		return err
	})
	return changed, err
}

// ListStalePending returns PENDING_PAYMENT orders created before the cutoff, oldest first.
func (r *PostgresRepository) ListStalePending(ctx context.Context, before time.Time, limit int) ([]*domain.Order, error) {
	var out []*domain.Order
	err := r.db.SelectContext(ctx, &out, `SELECT `+orderColumns+` FROM orders
		WHERE status = 'PENDING_PAYMENT' AND created_at < $1 ORDER BY created_at LIMIT $2`, before, limit)
	return out, err
}
