package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"

	identitydomain "storefront/backend/internal/identity/domain"
	"storefront/backend/internal/order/domain"
	orderrepo "storefront/backend/internal/order/repository"
	"storefront/backend/internal/payment"
	"storefront/backend/internal/reference"
	userdomain "storefront/backend/internal/user/domain"
)

type memRepo struct {
	mu            sync.Mutex
	orders        map[string]*domain.Order
	items         map[string][]*domain.Item
	invoices      map[string]*domain.Invoice
	payments      map[string]*domain.Payment
	receipts      map[string]*domain.Receipt
	invCounter    int64
	dupOrdIDTimes int
	createErr     error
}

func newMemRepo() *memRepo {
	return &memRepo{
		orders:   map[string]*domain.Order{},
		items:    map[string][]*domain.Item{},
		invoices: map[string]*domain.Invoice{},
		payments: map[string]*domain.Payment{},
		receipts: map[string]*domain.Receipt{},
	}
}

func (m *memRepo) CreateWithInvoice(ctx context.Context, o *domain.Order, items []*domain.Item) (*domain.Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return nil, m.createErr
	}
	if m.dupOrdIDTimes > 0 {
		m.dupOrdIDTimes--
		return nil, fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505", ConstraintName: orderrepo.ConstraintOrdID})
	}
	cp := *o
	m.orders[o.ID] = &cp
	m.items[o.ID] = items
	m.invCounter++
	invNumber, err := reference.Sequential(reference.ScopeInvoice, o.CreatedAt.Year(), m.invCounter)
	if err != nil {
		return nil, err
	}
	inv := &domain.Invoice{ID: "inv-" + o.ID, TenantID: o.TenantID, OrderID: o.ID, InvNumber: invNumber}
	m.invoices[o.ID] = inv
	return inv, nil
}

func (m *memRepo) UpsertPendingPayment(ctx context.Context, p *domain.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.payments[p.OrderID] = p
	return nil
}

func (m *memRepo) GetByOrdID(ctx context.Context, ordID string) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.orders {
		if o.OrdID == ordID {
			return o, nil
		}
	}
	return nil, nil
}

func (m *memRepo) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.orders[id], nil
}

func (m *memRepo) ListItems(ctx context.Context, orderID string) ([]*domain.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.items[orderID], nil
}

func (m *memRepo) ListByUser(ctx context.Context, tenantID, userID string) ([]*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Order
	for _, o := range m.orders {
		if o.TenantID == tenantID && o.OwnerID() == userID {
			out = append(out, o)
		}
	}
	return out, nil
}

func (m *memRepo) GetInvoiceByNumber(ctx context.Context, n string) (*domain.Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, inv := range m.invoices {
		if inv.InvNumber == n {
			return inv, nil
		}
	}
	return nil, nil
}

func (m *memRepo) GetInvoiceByOrder(ctx context.Context, orderID string) (*domain.Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.invoices[orderID], nil
}

func (m *memRepo) GetReceiptByNumber(ctx context.Context, n string) (*domain.Receipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.receipts {
		if r.RcpNumber == n {
			return r, nil
		}
	}
	return nil, nil
}

func (m *memRepo) GetReceiptByOrder(ctx context.Context, orderID string) (*domain.Receipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.receipts[orderID], nil
}

func (m *memRepo) GetPaymentByOrder(ctx context.Context, orderID string) (*domain.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.payments[orderID], nil
}

type fakeGateway struct {
	mu       sync.Mutex
	calls    int
	lastMeta map[string]string
	lastLine []payment.LineItem
	err      error
}

func (g *fakeGateway) CreateCheckoutSession(ctx context.Context, items []payment.LineItem, successURL, cancelURL string, metadata map[string]string) (*payment.CheckoutSession, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	g.lastMeta = metadata
	g.lastLine = items
	if g.err != nil {
		return nil, g.err
	}
	return &payment.CheckoutSession{SessionID: "cs_test_1", URL: "https://pay.example/cs_test_1", PaymentIntentID: "pi_1"}, nil
}

func (g *fakeGateway) VerifyWebhookSignature(raw []byte, sig, secret string) (*payment.Event, error) {
	return nil, payment.ErrSignatureInvalid
}

func newTestService() (*Service, *memRepo, *fakeGateway) {
	repo := newMemRepo()
	gw := &fakeGateway{}
	return NewService(repo, gw, Config{SuccessURL: "https://shop/ok", CancelURL: "https://shop/cancel", DefaultCurrency: "GBP"}, nil), repo, gw
}

func TestStartCheckout_GBPOrder(t *testing.T) {
	svc, repo, gw := newTestService()
	res, err := svc.StartCheckout(context.Background(), CheckoutInput{
		TenantID: "t1",
		UserID:   "u1",
		Items:    []CheckoutItem{{ReleaseID: "rel-1", Quantity: 2, UnitPrice: 500}},
	})
	if err != nil {
		t.Fatalf("StartCheckout: %v", err)
	}
	if !reference.IsOrderID(res.OrdID) {
		t.Errorf("OrdID = %q, not a valid order reference", res.OrdID)
	}
	if !reference.IsInvoiceNumber(res.InvNumber) {
		t.Errorf("InvNumber = %q, not a valid invoice number", res.InvNumber)
	}
	if res.CheckoutSessionID != "cs_test_1" || res.CheckoutURL == "" {
		t.Errorf("checkout session = %+v", res)
	}

	o, _ := repo.GetByOrdID(context.Background(), res.OrdID)
	if o == nil {
		t.Fatal("order not stored")
	}
	if o.Subtotal != 1000 || o.Tax != 0 || o.Total != 1000 {
		t.Errorf("totals = %d/%d/%d, want 1000/0/1000", o.Subtotal, o.Tax, o.Total)
	}
	if o.Currency != "GBP" || o.Status != domain.OrderPendingPayment {
		t.Errorf("order = %+v", o)
	}
	pay := repo.payments[o.ID]
	if pay == nil || pay.Status != domain.PaymentPending || pay.Provider != "stripe" || pay.PaymentIntentID != "pi_1" {
		t.Errorf("payment = %+v", pay)
	}
	for _, k := range []string{"tenantId", "orderId", "ordId", "invNumber"} {
		if gw.lastMeta[k] == "" {
			t.Errorf("metadata %q missing", k)
		}
	}
	if gw.lastMeta["orderId"] != o.ID || gw.lastMeta["tenantId"] != "t1" {
		t.Errorf("metadata = %v", gw.lastMeta)
	}
	if len(gw.lastLine) != 1 || gw.lastLine[0].Currency != "GBP" {
		t.Errorf("line items = %+v", gw.lastLine)
	}
}

func TestStartCheckout_Validation(t *testing.T) {
	svc, repo, gw := newTestService()
	tests := []struct {
		name  string
		in    CheckoutInput
		field string
	}{
		{"no items", CheckoutInput{TenantID: "t1"}, "items"},
		{"zero quantity", CheckoutInput{TenantID: "t1", Items: []CheckoutItem{{ReleaseID: "r", Quantity: 0, UnitPrice: 1}}}, "items[0].quantity"},
		{"negative price", CheckoutInput{TenantID: "t1", Items: []CheckoutItem{{ReleaseID: "r", Quantity: 1, UnitPrice: -1}}}, "items[0].unitPrice"},
		{"huge quantity", CheckoutInput{TenantID: "t1", Items: []CheckoutItem{{ReleaseID: "r", Quantity: math.MaxInt64, UnitPrice: 2}}}, "items[0].quantity"},
		{"huge price", CheckoutInput{TenantID: "t1", Items: []CheckoutItem{{ReleaseID: "r", Quantity: 2, UnitPrice: math.MaxInt64}}}, "items[0].unitPrice"},
		{"missing release", CheckoutInput{TenantID: "t1", Items: []CheckoutItem{{Quantity: 1}}}, "items[0].releaseId"},
		{"bad currency", CheckoutInput{TenantID: "t1", Currency: "POUNDS", Items: []CheckoutItem{{ReleaseID: "r", Quantity: 1}}}, "currency"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.StartCheckout(context.Background(), tt.in)
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("err = %v, want ValidationError", err)
			}
			if _, ok := verr.Fields[tt.field]; !ok {
				t.Errorf("fields = %v, want key %q", verr.Fields, tt.field)
			}
		})
	}
	if len(repo.orders) != 0 || gw.calls != 0 {
		t.Error("invalid checkouts must not persist or call the provider")
	}

	if _, err := svc.StartCheckout(context.Background(), CheckoutInput{Items: []CheckoutItem{{ReleaseID: "r", Quantity: 1}}}); !errors.Is(err, ErrTenantRequired) {
		t.Errorf("missing tenant err = %v", err)
	}
}

func TestStartCheckout_FreeItemsAllowed(t *testing.T) {
	svc, _, _ := newTestService()
	if _, err := svc.StartCheckout(context.Background(), CheckoutInput{TenantID: "t1", Items: []CheckoutItem{{ReleaseID: "r", Quantity: 3, UnitPrice: 0}}}); err != nil {
		t.Fatalf("StartCheckout: %v", err)
	}
}

func TestStartCheckout_ProviderFailureKeepsPendingOrder(t *testing.T) {
	svc, repo, gw := newTestService()
	gw.err = errors.New("timeout")

	_, err := svc.StartCheckout(context.Background(), CheckoutInput{TenantID: "t1", Items: []CheckoutItem{{ReleaseID: "r", Quantity: 1, UnitPrice: 100}}})
	if !errors.Is(err, ErrProvider) {
		t.Fatalf("err = %v, want ErrProvider", err)
	}
	if len(repo.orders) != 1 {
		t.Fatalf("orders = %d, want 1", len(repo.orders))
	}
	for id, o := range repo.orders {
		if o.Status != domain.OrderPendingPayment {
			t.Errorf("status = %s, want PENDING_PAYMENT", o.Status)
		}
		if repo.invoices[id] == nil {
			t.Error("invoice should exist")
		}
		if repo.payments[id] != nil {
			t.Error("no payment row without a provider session")
		}
	}
}

func TestStartCheckout_RetriesOrdIDCollision(t *testing.T) {
	svc, repo, _ := newTestService()
	repo.dupOrdIDTimes = 2

	if _, err := svc.StartCheckout(context.Background(), CheckoutInput{TenantID: "t1", Items: []CheckoutItem{{ReleaseID: "r", Quantity: 1}}}); err != nil {
		t.Fatalf("StartCheckout: %v", err)
	}
	if len(repo.orders) != 1 {
		t.Errorf("orders = %d, want 1", len(repo.orders))
	}
}

func TestStartCheckout_GivesUpAfterMaxAttempts(t *testing.T) {
	svc, repo, gw := newTestService()
	repo.dupOrdIDTimes = reference.MaxAttempts

	if _, err := svc.StartCheckout(context.Background(), CheckoutInput{TenantID: "t1", Items: []CheckoutItem{{ReleaseID: "r", Quantity: 1}}}); err == nil {
		t.Fatal("expected error after exhausting attempts")
	}
	if gw.calls != 0 {
		t.Error("provider must not be called without an order")
	}
}

func TestStartCheckout_GuestHasNoUser(t *testing.T) {
	svc, repo, _ := newTestService()
	res, err := svc.StartCheckout(context.Background(), CheckoutInput{TenantID: "t1", Items: []CheckoutItem{{ReleaseID: "r", Quantity: 1, UnitPrice: 10}}})
	if err != nil {
		t.Fatalf("StartCheckout: %v", err)
	}
	o, _ := repo.GetByOrdID(context.Background(), res.OrdID)
	if o.UserID != nil {
		t.Errorf("guest order user = %v, want nil", *o.UserID)
	}
}

func seedPaidOrder(t *testing.T, svc *Service, repo *memRepo, tenantID, userID string) *domain.Order {
	t.Helper()
	res, err := svc.StartCheckout(context.Background(), CheckoutInput{TenantID: tenantID, UserID: userID, Items: []CheckoutItem{{ReleaseID: "rel-1", Quantity: 1, UnitPrice: 100}}})
	if err != nil {
		t.Fatalf("StartCheckout: %v", err)
	}
	o, _ := repo.GetByOrdID(context.Background(), res.OrdID)
	return o
}

func TestGetOrder_Visibility(t *testing.T) {
	svc, repo, _ := newTestService()
	o := seedPaidOrder(t, svc, repo, "t1", "u1")

	owner := &identitydomain.Principal{UserID: "u1", TenantID: "t1", Role: userdomain.RoleUser}
	other := &identitydomain.Principal{UserID: "u2", TenantID: "t1", Role: userdomain.RoleUser}
	staff := &identitydomain.Principal{UserID: "s1", TenantID: "t1", Role: userdomain.RoleStaff}
	foreignAdmin := &identitydomain.Principal{UserID: "a1", TenantID: "t2", Role: userdomain.RoleAdmin}

	if _, err := svc.GetOrder(context.Background(), owner, o.OrdID); err != nil {
		t.Errorf("owner: %v", err)
	}
	if _, err := svc.GetOrder(context.Background(), staff, o.OrdID); err != nil {
		t.Errorf("staff: %v", err)
	}
	if _, err := svc.GetOrder(context.Background(), other, o.OrdID); !errors.Is(err, ErrForbidden) {
		t.Errorf("other user err = %v, want ErrForbidden", err)
	}
	if _, err := svc.GetOrder(context.Background(), foreignAdmin, o.OrdID); !errors.Is(err, ErrForbidden) {
		t.Errorf("cross tenant err = %v, want ErrForbidden", err)
	}
	if _, err := svc.GetOrder(context.Background(), owner, "ORD-20260101-ZZZZ"); !errors.Is(err, ErrOrderNotFound) {
		t.Errorf("unknown err = %v, want ErrOrderNotFound", err)
	}
}

func TestGetInvoice_CrossTenantForbidden(t *testing.T) {
	svc, repo, _ := newTestService()
	o := seedPaidOrder(t, svc, repo, "t1", "u1")
	inv := repo.invoices[o.ID]

	d, err := svc.GetInvoice(context.Background(), &identitydomain.Principal{UserID: "u1", TenantID: "t1", Role: userdomain.RoleUser}, inv.InvNumber)
	if err != nil {
		t.Fatalf("GetInvoice: %v", err)
	}
	if d.Order.ID != o.ID {
		t.Errorf("order = %s, want %s", d.Order.ID, o.ID)
	}
	if _, err := svc.GetInvoice(context.Background(), &identitydomain.Principal{UserID: "x", TenantID: "t2", Role: userdomain.RoleAdmin}, inv.InvNumber); !errors.Is(err, ErrForbidden) {
		t.Errorf("cross tenant err = %v, want ErrForbidden", err)
	}
}

func TestReceipt_OnlyForPaidOrders(t *testing.T) {
	svc, repo, _ := newTestService()
	o := seedPaidOrder(t, svc, repo, "t1", "u1")
	owner := &identitydomain.Principal{UserID: "u1", TenantID: "t1", Role: userdomain.RoleUser}

	d, err := svc.GetOrder(context.Background(), owner, o.OrdID)
	if err != nil {
		t.Fatalf("GetOrder: %v", err)
	}
	if d.Receipt != nil {
		t.Error("pending order must not expose a receipt")
	}

	repo.receipts[o.ID] = &domain.Receipt{ID: "r1", TenantID: "t1", RcpNumber: "RCP-2026-000001", OrderID: o.ID}
	if _, err := svc.GetReceipt(context.Background(), owner, "RCP-2026-000001"); !errors.Is(err, ErrOrderNotFound) {
		t.Errorf("receipt on unpaid order err = %v, want ErrOrderNotFound", err)
	}

	repo.orders[o.ID].Status = domain.OrderPaid
	d, err = svc.GetReceipt(context.Background(), owner, "RCP-2026-000001")
	if err != nil {
		t.Fatalf("GetReceipt: %v", err)
	}
	if d.Receipt == nil || d.Receipt.RcpNumber != "RCP-2026-000001" {
		t.Errorf("receipt = %+v", d.Receipt)
	}
}

func TestListMine(t *testing.T) {
	svc, repo, _ := newTestService()
	seedPaidOrder(t, svc, repo, "t1", "u1")
	seedPaidOrder(t, svc, repo, "t1", "u2")
	seedPaidOrder(t, svc, repo, "t2", "u1")

	got, err := svc.ListMine(context.Background(), &identitydomain.Principal{UserID: "u1", TenantID: "t1"})
	if err != nil {
		t.Fatalf("ListMine: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("orders = %d, want 1", len(got))
	}
	empty, _ := svc.ListMine(context.Background(), &identitydomain.Principal{UserID: "u9", TenantID: "t1"})
	if empty == nil {
		t.Error("ListMine should return an empty slice, not nil")
	}
}
