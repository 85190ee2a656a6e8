package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"storefront/backend/internal/db"
	identitydomain "storefront/backend/internal/identity/domain"
	"storefront/backend/internal/order/domain"
	orderrepo "storefront/backend/internal/order/repository"
	"storefront/backend/internal/payment"
	"storefront/backend/internal/platform/metrics"
	"storefront/backend/internal/reference"
)

// Sentinel errors; the handler maps them to HTTP statuses.
var (
	ErrTenantRequired = errors.New("tenant is required")
	ErrOrderNotFound  = errors.New("order not found")
	ErrForbidden      = errors.New("forbidden")
	ErrProvider       = errors.New("payment provider error")
)

// ValidationError carries per-field messages for a rejected checkout.
type ValidationError struct {
	Fields map[string][]string
}

func (e *ValidationError) Error() string { return "checkout validation failed" }

// Repo is the order persistence the service needs.
type Repo interface {
	CreateWithInvoice(ctx context.Context, o *domain.Order, items []*domain.Item) (*domain.Invoice, error)
	UpsertPendingPayment(ctx context.Context, p *domain.Payment) error
	GetByOrdID(ctx context.Context, ordID string) (*domain.Order, error)
	GetByID(ctx context.Context, id string) (*domain.Order, error)
	ListItems(ctx context.Context, orderID string) ([]*domain.Item, error)
	ListByUser(ctx context.Context, tenantID, userID string) ([]*domain.Order, error)
	GetInvoiceByNumber(ctx context.Context, invNumber string) (*domain.Invoice, error)
	GetInvoiceByOrder(ctx context.Context, orderID string) (*domain.Invoice, error)
	GetReceiptByNumber(ctx context.Context, rcpNumber string) (*domain.Receipt, error)
	GetReceiptByOrder(ctx context.Context, orderID string) (*domain.Receipt, error)
	GetPaymentByOrder(ctx context.Context, orderID string) (*domain.Payment, error)
}

// Config holds checkout settings.
type Config struct {
	SuccessURL      string
	CancelURL       string
	DefaultCurrency string
	// ProviderTimeout bounds the gateway call.
	ProviderTimeout time.Duration
}

// Service implements checkout and the signed-in account views of orders.
type Service struct {
	repo    Repo
	gateway payment.Gateway
	cfg     Config
	log     *zap.Logger
	now     func() time.Time
}

// NewService returns an order service.
func NewService(repo Repo, gateway payment.Gateway, cfg Config, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.ProviderTimeout <= 0 {
		cfg.ProviderTimeout = 10 * time.Second
	}
	if cfg.DefaultCurrency == "" {
		cfg.DefaultCurrency = "GBP"
	}
	return &Service{repo: repo, gateway: gateway, cfg: cfg, log: log, now: time.Now}
}

// CheckoutItem is one requested line.
type CheckoutItem struct {
	ReleaseID string
	Quantity  int64
	UnitPrice int64
}

// CheckoutInput is a checkout request. UserID is empty for guests.
type CheckoutInput struct {
	TenantID string
	UserID   string
	Currency string
	Items    []CheckoutItem
}

// CheckoutResult is what the storefront needs to redirect to the hosted payment page.
type CheckoutResult struct {
	OrdID             string `json:"ordId"`
	InvNumber         string `json:"invNumber"`
	CheckoutSessionID string `json:"checkoutSessionId"`
	CheckoutURL       string `json:"checkoutUrl"`
}

func validateCheckout(in CheckoutInput) error {
	fields := map[string][]string{}
	if len(in.Items) == 0 {
		fields["items"] = append(fields["items"], "must contain at least one item")
	}
	for i, it := range in.Items {
		key := "items[" + strconv.Itoa(i) + "]"
		if strings.TrimSpace(it.ReleaseID) == "" {
			fields[key+".releaseId"] = append(fields[key+".releaseId"], "is required")
		}
		switch {
		case it.Quantity <= 0:
			fields[key+".quantity"] = append(fields[key+".quantity"], "must be greater than 0")
		case it.Quantity > domain.MaxQuantity:
			fields[key+".quantity"] = append(fields[key+".quantity"], "must be at most "+strconv.FormatInt(domain.MaxQuantity, 10))
		}
		switch {
		case it.UnitPrice < 0:
			fields[key+".unitPrice"] = append(fields[key+".unitPrice"], "must be at least 0")
		case it.UnitPrice > domain.MaxUnitPrice:
			fields[key+".unitPrice"] = append(fields[key+".unitPrice"], "must be at most "+strconv.FormatInt(domain.MaxUnitPrice, 10))
		}
	}
	if in.Currency != "" && len(in.Currency) != 3 {
		fields["currency"] = append(fields["currency"], "must be a 3-letter ISO code")
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

// StartCheckout creates the order, its items and invoice atomically, opens a hosted
// checkout session and records a PENDING payment. A provider failure leaves the order
// PENDING_PAYMENT for the reconciler and returns ErrProvider.
func (s *Service) StartCheckout(ctx context.Context, in CheckoutInput) (*CheckoutResult, error) {
	if in.TenantID == "" {
		metrics.CheckoutOutcome("invalid")
		return nil, ErrTenantRequired
	}
	if err := validateCheckout(in); err != nil {
		metrics.CheckoutOutcome("invalid")
		return nil, err
	}
	currency := strings.ToUpper(strings.TrimSpace(in.Currency))
	if currency == "" {
		currency = s.cfg.DefaultCurrency
	}

	now := s.now().UTC()
	o := &domain.Order{
		ID:        uuid.New().String(),
		TenantID:  in.TenantID,
		Status:    domain.OrderPendingPayment,
		Currency:  currency,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if in.UserID != "" {
		uid := in.UserID
		o.UserID = &uid
	}
	items := make([]*domain.Item, len(in.Items))
	for i, it := range in.Items {
		items[i] = &domain.Item{
			ID:        uuid.New().String(),
			TenantID:  in.TenantID,
			OrderID:   o.ID,
			ReleaseID: strings.TrimSpace(it.ReleaseID),
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice,
			Currency:  currency,
		}
	}
	var err error
	if o.Subtotal, o.Tax, o.Total, err = domain.Totals(items); err != nil {
		metrics.CheckoutOutcome("invalid")
		return nil, &ValidationError{Fields: map[string][]string{"items": {err.Error()}}}
	}

	inv, err := s.createWithUniqueOrdID(ctx, o, items, now)
	if err != nil {
		metrics.CheckoutOutcome("error")
		return nil, err
	}

	lines := make([]payment.LineItem, len(items))
	for i, it := range items {
		lines[i] = payment.LineItem{ReleaseID: it.ReleaseID, Quantity: it.Quantity, UnitPrice: it.UnitPrice, Currency: currency}
	}
	metadata := map[string]string{
		"tenantId":  o.TenantID,
		"orderId":   o.ID,
		"ordId":     o.OrdID,
		"invNumber": inv.InvNumber,
	}
	gwCtx, cancel := context.WithTimeout(ctx, s.cfg.ProviderTimeout)
	defer cancel()
	gwCtx, span := otel.Tracer("storefront/backend/order").Start(gwCtx, "payment.create_checkout_session")
	span.SetAttributes(attribute.String("order.ord_id", o.OrdID), attribute.Int64("order.total", o.Total))
	cs, err := s.gateway.CreateCheckoutSession(gwCtx, lines, s.cfg.SuccessURL, s.cfg.CancelURL, metadata)
	if err != nil {
		span.SetStatus(codes.Error, "provider")
	}
	span.End()
	if err != nil {
		metrics.CheckoutOutcome("provider_error")
		s.log.Error("checkout session failed",
			zap.String("tenant_id", o.TenantID),
			zap.String("ord_id", o.OrdID),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%w: %v", ErrProvider, err)
	}

	p := &domain.Payment{
		ID:                uuid.New().String(),
		TenantID:          o.TenantID,
		OrderID:           o.ID,
		Provider:          payment.ProviderStripe,
		CheckoutSessionID: cs.SessionID,
		PaymentIntentID:   cs.PaymentIntentID,
		Status:            domain.PaymentPending,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.repo.UpsertPendingPayment(ctx, p); err != nil {
		metrics.CheckoutOutcome("error")
		return nil, fmt.Errorf("record payment: %w", err)
	}

	metrics.CheckoutOutcome("started")
	s.log.Info("checkout started",
		zap.String("tenant_id", o.TenantID),
		zap.String("ord_id", o.OrdID),
		zap.String("inv_number", inv.InvNumber),
		zap.Int64("total", o.Total),
		zap.String("currency", currency),
	)
	return &CheckoutResult{
		OrdID:             o.OrdID,
		InvNumber:         inv.InvNumber,
		CheckoutSessionID: cs.SessionID,
		CheckoutURL:       cs.URL,
	}, nil
}

func (s *Service) createWithUniqueOrdID(ctx context.Context, o *domain.Order, items []*domain.Item, now time.Time) (*domain.Invoice, error) {
	for attempt := 0; attempt < reference.MaxAttempts; attempt++ {
		ordID, err := reference.NewOrderID(now)
		if err != nil {
			return nil, err
		}
		o.OrdID = ordID
		inv, err := s.repo.CreateWithInvoice(ctx, o, items)
		if err == nil {
			return inv, nil
		}
		if !db.IsUniqueViolationOn(err, orderrepo.ConstraintOrdID) {
			return nil, fmt.Errorf("create order: %w", err)
		}
		s.log.Warn("order reference collision, retrying", zap.String("ord_id", ordID), zap.Int("attempt", attempt+1))
	}
	return nil, fmt.Errorf("create order: no unique reference after %d attempts", reference.MaxAttempts)
}

// OrderDetail is an order with its lines and attached documents.
type OrderDetail struct {
	Order   *domain.Order   `json:"order"`
	Items   []*domain.Item  `json:"items"`
	Invoice *domain.Invoice `json:"invoice,omitempty"`
	Payment *domain.Payment `json:"payment,omitempty"`
	Receipt *domain.Receipt `json:"receipt,omitempty"`
}

// ListMine returns the principal's orders in its tenant.
func (s *Service) ListMine(ctx context.Context, p *identitydomain.Principal) ([]*domain.Order, error) {
	out, err := s.repo.ListByUser(ctx, p.TenantID, p.UserID)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []*domain.Order{}
	}
	return out, nil
}

// GetOrder returns an order visible to p. Orders of another tenant, or of another user
// for non-staff principals, yield ErrForbidden.
func (s *Service) GetOrder(ctx context.Context, p *identitydomain.Principal, ordID string) (*OrderDetail, error) {
	o, err := s.repo.GetByOrdID(ctx, ordID)
	if err != nil {
		return nil, err
	}
	if o == nil {
		return nil, ErrOrderNotFound
	}
	if !p.CanSee(o.TenantID, o.OwnerID()) {
		return nil, ErrForbidden
	}
	return s.detail(ctx, o)
}

func (s *Service) detail(ctx context.Context, o *domain.Order) (*OrderDetail, error) {
	d := &OrderDetail{Order: o}
	var err error
	if d.Items, err = s.repo.ListItems(ctx, o.ID); err != nil {
		return nil, err
	}
	if d.Invoice, err = s.repo.GetInvoiceByOrder(ctx, o.ID); err != nil {
		return nil, err
	}
	if d.Payment, err = s.repo.GetPaymentByOrder(ctx, o.ID); err != nil {
		return nil, err
	}
	if o.Status == domain.OrderPaid {
		if d.Receipt, err = s.repo.GetReceiptByOrder(ctx, o.ID); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// GetInvoice returns the order detail behind an invoice number, with the same visibility rules as GetOrder.
func (s *Service) GetInvoice(ctx context.Context, p *identitydomain.Principal, invNumber string) (*OrderDetail, error) {
	inv, err := s.repo.GetInvoiceByNumber(ctx, invNumber)
	if err != nil {
		return nil, err
	}
	if inv == nil {
		return nil, ErrOrderNotFound
	}
	return s.documentOrder(ctx, p, inv.TenantID, inv.OrderID)
}

// GetReceipt returns the order detail behind a receipt number. Receipts only exist for PAID orders.
func (s *Service) GetReceipt(ctx context.Context, p *identitydomain.Principal, rcpNumber string) (*OrderDetail, error) {
	rcp, err := s.repo.GetReceiptByNumber(ctx, rcpNumber)
	if err != nil {
		return nil, err
	}
	if rcp == nil {
		return nil, ErrOrderNotFound
	}
	d, err := s.documentOrder(ctx, p, rcp.TenantID, rcp.OrderID)
	if err != nil {
		return nil, err
	}
	if d.Order.Status != domain.OrderPaid {
		s.log.Error("receipt attached to unpaid order", zap.String("rcp_number", rcpNumber), zap.String("order_id", d.Order.ID))
		return nil, ErrOrderNotFound
	}
	return d, nil
}

func (s *Service) documentOrder(ctx context.Context, p *identitydomain.Principal, tenantID, orderID string) (*OrderDetail, error) {
	if p.TenantID != tenantID {
		return nil, ErrForbidden
	}
	o, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o == nil {
		return nil, ErrOrderNotFound
	}
	if !p.CanSee(o.TenantID, o.OwnerID()) {
		return nil, ErrForbidden
	}
	return s.detail(ctx, o)
}
