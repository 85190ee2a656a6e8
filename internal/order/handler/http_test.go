package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	identitydomain "storefront/backend/internal/identity/domain"
	"storefront/backend/internal/order/domain"
	orderservice "storefront/backend/internal/order/service"
	"storefront/backend/internal/server/middleware"
	tenantdomain "storefront/backend/internal/tenant/domain"
	userdomain "storefront/backend/internal/user/domain"
)

type stubOrders struct {
	mu        sync.Mutex
	lastInput orderservice.CheckoutInput
	startErr  error
	lookupErr error
	lastRef   string
}

func (s *stubOrders) StartCheckout(ctx context.Context, in orderservice.CheckoutInput) (*orderservice.CheckoutResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastInput = in
	if s.startErr != nil {
		return nil, s.startErr
	}
	return &orderservice.CheckoutResult{OrdID: "ORD-20260304-AB12", InvNumber: "INV-2026-000001", CheckoutSessionID: "cs_1", CheckoutURL: "https://pay/cs_1"}, nil
}

func (s *stubOrders) ListMine(ctx context.Context, p *identitydomain.Principal) ([]*domain.Order, error) {
	return []*domain.Order{{ID: "o1", TenantID: p.TenantID, OrdID: "ORD-20260304-AB12", Status: domain.OrderPaid}}, nil
}

func (s *stubOrders) lookup(ref string) (*orderservice.OrderDetail, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastRef = ref
	if s.lookupErr != nil {
		return nil, s.lookupErr
	}
	return &orderservice.OrderDetail{Order: &domain.Order{ID: "o1", OrdID: "ORD-20260304-AB12"}}, nil
}

func (s *stubOrders) GetOrder(ctx context.Context, p *identitydomain.Principal, ref string) (*orderservice.OrderDetail, error) {
	return s.lookup(ref)
}

func (s *stubOrders) GetInvoice(ctx context.Context, p *identitydomain.Principal, ref string) (*orderservice.OrderDetail, error) {
	return s.lookup(ref)
}

func (s *stubOrders) GetReceipt(ctx context.Context, p *identitydomain.Principal, ref string) (*orderservice.OrderDetail, error) {
	return s.lookup(ref)
}

func newRouter(stub *stubOrders, principal *identitydomain.Principal) http.Handler {
	srv := NewServer(stub)
	r := mux.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ctx := middleware.WithTenant(req.Context(), &tenantdomain.Tenant{ID: "t1", Status: tenantdomain.TenantStatusActive})
			if principal != nil {
				ctx = middleware.WithPrincipal(ctx, principal)
			}
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	})
	r.HandleFunc("/api/checkout/start", srv.StartCheckout).Methods(http.MethodPost)
	r.HandleFunc("/api/orders", srv.ListOrders).Methods(http.MethodGet)
	r.HandleFunc("/api/orders/{ordId}", srv.GetOrder).Methods(http.MethodGet)
	r.HandleFunc("/api/invoices/{invNumber}", srv.GetInvoice).Methods(http.MethodGet)
	r.HandleFunc("/api/receipts/{rcpNumber}", srv.GetReceipt).Methods(http.MethodGet)
	return r
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Code    string `json:"code"`
			Details struct {
				FieldErrors map[string][]string `json:"fieldErrors"`
			} `json:"details"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Error.Code
}

func TestStartCheckout_Guest(t *testing.T) {
	stub := &stubOrders{}
	h := newRouter(stub, nil)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/checkout/start", strings.NewReader(`{"items":[{"releaseId":"rel-1","quantity":2,"unitPrice":500}]}`))
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "t1", stub.lastInput.TenantID)
	assert.Empty(t, stub.lastInput.UserID)
	require.Len(t, stub.lastInput.Items, 1)
	assert.Equal(t, int64(2), stub.lastInput.Items[0].Quantity)

	var res orderservice.CheckoutResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, "cs_1", res.CheckoutSessionID)
	assert.Equal(t, "INV-2026-000001", res.InvNumber)
}

func TestStartCheckout_SignedInAttachesUser(t *testing.T) {
	stub := &stubOrders{}
	h := newRouter(stub, &identitydomain.Principal{UserID: "u1", TenantID: "t1", Role: userdomain.RoleUser})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/checkout/start", strings.NewReader(`{"currency":"GBP","items":[{"releaseId":"rel-1","quantity":1,"unitPrice":0}]}`)))

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "u1", stub.lastInput.UserID)
	assert.Equal(t, "GBP", stub.lastInput.Currency)
}

func TestStartCheckout_ValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"empty items", `{"items":[]}`},
		{"zero quantity", `{"items":[{"releaseId":"r","quantity":0,"unitPrice":1}]}`},
		{"negative price", `{"items":[{"releaseId":"r","quantity":1,"unitPrice":-5}]}`},
		{"quantity too large", `{"items":[{"releaseId":"r","quantity":9223372036854775807,"unitPrice":2}]}`},
		{"price too large", `{"items":[{"releaseId":"r","quantity":2,"unitPrice":4611686018427387904}]}`},
		{"unknown field", `{"items":[{"releaseId":"r","quantity":1}],"discount":5}`},
		{"malformed", `{"items":`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newRouter(&stubOrders{}, nil)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/checkout/start", strings.NewReader(tt.body)))
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, "VALIDATION_ERROR", errorCode(t, rec))
		})
	}
}

func TestStartCheckout_ProviderError(t *testing.T) {
	stub := &stubOrders{startErr: errors.Join(orderservice.ErrProvider, errors.New("boom"))}
	h := newRouter(stub, nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/checkout/start", strings.NewReader(`{"items":[{"releaseId":"r","quantity":1,"unitPrice":1}]}`)))

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "PAYMENT_PROVIDER_ERROR", errorCode(t, rec))
	assert.NotContains(t, rec.Body.String(), "boom")
}

func TestOrderViews_RequireAuth(t *testing.T) {
	h := newRouter(&stubOrders{}, nil)
	for _, path := range []string{"/api/orders", "/api/orders/ORD-20260304-AB12", "/api/invoices/INV-2026-000001", "/api/receipts/RCP-2026-000001"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
	}
}

func TestOrderViews_ErrorMapping(t *testing.T) {
	owner := &identitydomain.Principal{UserID: "u1", TenantID: "t1", Role: userdomain.RoleUser}
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"not found", orderservice.ErrOrderNotFound, http.StatusNotFound, "ORDER_NOT_FOUND"},
		{"forbidden", orderservice.ErrForbidden, http.StatusForbidden, "FORBIDDEN"},
		{"internal", errors.New("db down"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newRouter(&stubOrders{lookupErr: tt.err}, owner)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/orders/ORD-20260304-AB12", nil))
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.code, errorCode(t, rec))
		})
	}
}

func TestOrderViews_PassPathReference(t *testing.T) {
	owner := &identitydomain.Principal{UserID: "u1", TenantID: "t1", Role: userdomain.RoleUser}
	stub := &stubOrders{}
	h := newRouter(stub, owner)

	for path, ref := range map[string]string{
		"/api/orders/ORD-20260304-AB12": "ORD-20260304-AB12",
		"/api/invoices/INV-2026-000001": "INV-2026-000001",
		"/api/receipts/RCP-2026-000009": "RCP-2026-000009",
	} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		require.Equal(t, http.StatusOK, rec.Code, path)
		assert.Equal(t, ref, stub.lastRef)
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/orders", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"orders"`)
}
