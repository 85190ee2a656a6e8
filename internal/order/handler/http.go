// Package handler exposes checkout and the account views of orders, invoices and receipts.
package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	identitydomain "storefront/backend/internal/identity/domain"
	"storefront/backend/internal/order/domain"
	orderservice "storefront/backend/internal/order/service"
	"storefront/backend/internal/platform/httpx"
	"storefront/backend/internal/server/middleware"
)

const codeOrderNotFound = "ORDER_NOT_FOUND"

// Orders is the subset of the order service used by the HTTP layer.
type Orders interface {
	StartCheckout(ctx context.Context, in orderservice.CheckoutInput) (*orderservice.CheckoutResult, error)
	ListMine(ctx context.Context, p *identitydomain.Principal) ([]*domain.Order, error)
	GetOrder(ctx context.Context, p *identitydomain.Principal, ordID string) (*orderservice.OrderDetail, error)
	GetInvoice(ctx context.Context, p *identitydomain.Principal, invNumber string) (*orderservice.OrderDetail, error)
	GetReceipt(ctx context.Context, p *identitydomain.Principal, rcpNumber string) (*orderservice.OrderDetail, error)
}

// Server serves /api/checkout/*, /api/orders, /api/invoices and /api/receipts.
type Server struct {
	orders Orders
}

// NewServer returns an order HTTP server.
func NewServer(orders Orders) *Server {
	return &Server{orders: orders}
}

type checkoutItem struct {
	ReleaseID string `json:"releaseId" validate:"required,max=128"`
	Quantity  int64  `json:"quantity" validate:"gt=0,max=10000"`
	UnitPrice int64  `json:"unitPrice" validate:"gte=0,max=99999999"`
}

type checkoutRequest struct {
	Currency string         `json:"currency,omitempty" validate:"omitempty,len=3"`
	Items    []checkoutItem `json:"items" validate:"required,min=1,max=50,dive"`
}

// StartCheckout handles POST /api/checkout/start. Guests may check out; a session,
// when present, attaches the order to the signed-in user.
func (s *Server) StartCheckout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if err := httpx.Decode(w, r, &req); err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	ctx := r.Context()
	in := orderservice.CheckoutInput{
		TenantID: middleware.TenantID(ctx),
		UserID:   middleware.UserID(ctx),
		Currency: req.Currency,
		Items:    make([]orderservice.CheckoutItem, len(req.Items)),
	}
	for i, it := range req.Items {
		in.Items[i] = orderservice.CheckoutItem{ReleaseID: it.ReleaseID, Quantity: it.Quantity, UnitPrice: it.UnitPrice}
	}
	res, err := s.orders.StartCheckout(ctx, in)
	if err != nil {
		httpx.WriteError(w, r, mapError(err))
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, res)
}

// ListOrders handles GET /api/orders.
func (s *Server) ListOrders(w http.ResponseWriter, r *http.Request) {
	p := middleware.PrincipalFrom(r.Context())
	if p == nil {
		httpx.WriteError(w, r, httpx.AuthRequired())
		return
	}
	orders, err := s.orders.ListMine(r.Context(), p)
	if err != nil {
		httpx.WriteError(w, r, mapError(err))
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"orders": orders})
}

// GetOrder handles GET /api/orders/{ordId}.
func (s *Server) GetOrder(w http.ResponseWriter, r *http.Request) {
	s.detail(w, r, mux.Vars(r)["ordId"], s.orders.GetOrder)
}

// GetInvoice handles GET /api/invoices/{invNumber}.
func (s *Server) GetInvoice(w http.ResponseWriter, r *http.Request) {
	s.detail(w, r, mux.Vars(r)["invNumber"], s.orders.GetInvoice)
}

// GetReceipt handles GET /api/receipts/{rcpNumber}.
func (s *Server) GetReceipt(w http.ResponseWriter, r *http.Request) {
	s.detail(w, r, mux.Vars(r)["rcpNumber"], s.orders.GetReceipt)
}

type lookupFunc func(ctx context.Context, p *identitydomain.Principal, ref string) (*orderservice.OrderDetail, error)

func (s *Server) detail(w http.ResponseWriter, r *http.Request, ref string, lookup lookupFunc) {
	p := middleware.PrincipalFrom(r.Context())
	if p == nil {
		httpx.WriteError(w, r, httpx.AuthRequired())
		return
	}
	d, err := lookup(r.Context(), p, ref)
	if err != nil {
		httpx.WriteError(w, r, mapError(err))
		return
	}
	httpx.WriteJSON(w, http.StatusOK, d)
}

func mapError(err error) error {
	var verr *orderservice.ValidationError
	switch {
	case errors.As(err, &verr):
		return httpx.Validation("", verr.Fields)
	case errors.Is(err, orderservice.ErrTenantRequired):
		return httpx.New(http.StatusBadRequest, httpx.CodeTenantNotFound, "Tenant is required")
	case errors.Is(err, orderservice.ErrOrderNotFound):
		return httpx.NotFound(codeOrderNotFound, "Order not found")
	case errors.Is(err, orderservice.ErrForbidden):
		return httpx.Forbidden("")
	case errors.Is(err, orderservice.ErrProvider):
		return &httpx.Error{Status: http.StatusBadGateway, Code: httpx.CodeProviderError, Message: "Payment provider unavailable", Err: err}
	default:
		return httpx.Internal(err)
	}
}
