// Package domain holds orders and the invoice, payment and receipt records attached to them.
package domain

import (
	"errors"
	"math"
	"time"
)

type OrderStatus string

const (
	OrderPendingPayment OrderStatus = "PENDING_PAYMENT"
	OrderPaid           OrderStatus = "PAID"
	OrderFailed         OrderStatus = "FAILED"
	OrderCancelled      OrderStatus = "CANCELLED"
)

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "PENDING"
	PaymentSucceeded PaymentStatus = "SUCCEEDED"
	PaymentFailed    PaymentStatus = "FAILED"
)

// Order is a checkout attempt. UserID is nil for guest checkouts.
type Order struct {
	ID        string      `db:"id" json:"id"`
	TenantID  string      `db:"tenant_id" json:"tenantId"`
	UserID    *string     `db:"user_id" json:"userId,omitempty"`
	OrdID     string      `db:"ord_id" json:"ordId"`
	Status    OrderStatus `db:"status" json:"status"`
	Currency  string      `db:"currency" json:"currency"`
	Subtotal  int64       `db:"subtotal" json:"subtotal"`
	Tax       int64       `db:"tax" json:"tax"`
	Total     int64       `db:"total" json:"total"`
	CreatedAt time.Time   `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time   `db:"updated_at" json:"updatedAt"`
}

// OwnerID returns the owning user id or "" for guest orders.
func (o *Order) OwnerID() string {
	if o == nil || o.UserID == nil {
		return ""
	}
	return *o.UserID
}

// Item is one line of an order. Prices are in minor units.
type Item struct {
	ID        string `db:"id" json:"id"`
	TenantID  string `db:"tenant_id" json:"-"`
	OrderID   string `db:"order_id" json:"-"`
	ReleaseID string `db:"release_id" json:"releaseId"`
	Quantity  int64  `db:"quantity" json:"quantity"`
	UnitPrice int64  `db:"unit_price" json:"unitPrice"`
	Currency  string `db:"currency" json:"currency"`
}

type Invoice struct {
	ID        string    `db:"id" json:"id"`
	TenantID  string    `db:"tenant_id" json:"tenantId"`
	InvNumber string    `db:"inv_number" json:"invNumber"`
	OrderID   string    `db:"order_id" json:"orderId"`
	Status    string    `db:"status" json:"status"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

type Payment struct {
	ID                string        `db:"id" json:"id"`
	TenantID          string        `db:"tenant_id" json:"tenantId"`
	OrderID           string        `db:"order_id" json:"orderId"`
	Provider          string        `db:"provider" json:"provider"`
	CheckoutSessionID string        `db:"checkout_session_id" json:"checkoutSessionId"`
	PaymentIntentID   string        `db:"payment_intent_id" json:"paymentIntentId"`
	Status            PaymentStatus `db:"status" json:"status"`
	CreatedAt         time.Time     `db:"created_at" json:"createdAt"`
	UpdatedAt         time.Time     `db:"updated_at" json:"updatedAt"`
}

// Receipt exists only for PAID orders, at most one per order.
type Receipt struct {
	ID        string    `db:"id" json:"id"`
	TenantID  string    `db:"tenant_id" json:"tenantId"`
	RcpNumber string    `db:"rcp_number" json:"rcpNumber"`
	OrderID   string    `db:"order_id" json:"orderId"`
	PaymentID string    `db:"payment_id" json:"paymentId"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// Per-line bounds. Prices are in minor units.
const (
	MaxQuantity  int64 = 10_000
	MaxUnitPrice int64 = 99_999_999
)

var ErrInvalidAmount = errors.New("order: item quantity or unit price out of range")

// Totals returns subtotal, tax and total for items. Tax is not computed yet and is always 0.
// Lines outside the per-line bounds, or a sum that does not fit in an int64, return
// ErrInvalidAmount.
func Totals(items []*Item) (subtotal, tax, total int64, err error) {
	for _, it := range items {
		if it.Quantity <= 0 || it.Quantity > MaxQuantity || it.UnitPrice < 0 || it.UnitPrice > MaxUnitPrice {
			return 0, 0, 0, ErrInvalidAmount
		}
		if it.UnitPrice > 0 && it.Quantity > math.MaxInt64/it.UnitPrice {
			return 0, 0, 0, ErrInvalidAmount
		}
		line := it.UnitPrice * it.Quantity
		if subtotal > math.MaxInt64-line {
			return 0, 0, 0, ErrInvalidAmount
		}
		subtotal += line
	}
	return subtotal, 0, subtotal, nil
}

// PaidOutcome describes what MarkPaid did to an order.
type PaidOutcome string

const (
	OutcomePaid           PaidOutcome = "paid"
	OutcomeAlreadyPaid    PaidOutcome = "already_paid"
	OutcomeNotPayable     PaidOutcome = "not_payable"
	OutcomeTenantMismatch PaidOutcome = "tenant_mismatch"
	OutcomeNotFound       PaidOutcome = "not_found"
)

// PaidResult is returned by the paid transition. Receipt and Licences are set only for OutcomePaid
// and OutcomeAlreadyPaid.
type PaidResult struct {
	Outcome      PaidOutcome
	Order        *Order
	Receipt      *Receipt
	Entitlements int
	Licences     []string
}
