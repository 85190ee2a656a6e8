// Package handler exposes public booking requests and tracking, and the staff booking back office.
package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"storefront/backend/internal/booking/domain"
	bookingservice "storefront/backend/internal/booking/service"
	identitydomain "storefront/backend/internal/identity/domain"
	"storefront/backend/internal/platform/httpx"
	"storefront/backend/internal/server/middleware"
)

const (
	codeBookingNotFound = "BOOKING_NOT_FOUND"
	codeServiceNotFound = "SERVICE_NOT_FOUND"
)

// Bookings is the subset of the booking service used by the HTTP layer.
type Bookings interface {
	Create(ctx context.Context, in bookingservice.CreateInput) (*bookingservice.Created, error)
	Track(ctx context.Context, in bookingservice.TrackInput) (*domain.TrackView, error)
	List(ctx context.Context, p *identitydomain.Principal, tenantID string, f domain.ListFilter) (*domain.Page, error)
	Get(ctx context.Context, p *identitydomain.Principal, tenantID, bkgRef string) (*domain.Booking, error)
	UpdateStatus(ctx context.Context, p *identitydomain.Principal, tenantID, bkgRef string, to domain.Status) (*domain.Booking, error)
}

type Server struct {
	bookings Bookings
}

func NewServer(bookings Bookings) *Server {
	return &Server{bookings: bookings}
}

type createRequest struct {
	FullName      string `json:"fullName" validate:"required,min=2,max=200"`
	Email         string `json:"email" validate:"required,email,max=254"`
	ServiceSlug   string `json:"serviceSlug" validate:"required,max=100"`
	PreferredDate string `json:"preferredDate" validate:"required"`
	Notes         string `json:"notes,omitempty" validate:"max=2000"`
}

// Create handles POST /api/bookings.
func (s *Server) Create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := httpx.Decode(w, r, &req); err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	out, err := s.bookings.Create(r.Context(), bookingservice.CreateInput{
		TenantID:      middleware.TenantID(r.Context()),
		FullName:      req.FullName,
		Email:         req.Email,
		ServiceSlug:   req.ServiceSlug,
		PreferredDate: req.PreferredDate,
		Notes:         req.Notes,
	})
	if err != nil {
		httpx.WriteError(w, r, mapError(err))
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, map[string]any{
		"ok":            true,
		"booking":       out.Booking,
		"bkgRef":        out.Booking.BkgRef,
		"trackingToken": out.TrackingToken,
	})
}

// Track handles GET /api/bookings/track?booking=&email= or ?token=.
func (s *Server) Track(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	v, err := s.bookings.Track(r.Context(), bookingservice.TrackInput{
		TenantID: middleware.TenantID(r.Context()),
		BkgRef:   q.Get("booking"),
		Email:    q.Get("email"),
		Token:    q.Get("token"),
	})
	if err != nil {
		httpx.WriteError(w, r, mapError(err))
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"booking": v})
}

// List handles GET /api/admin/bookings.
func (s *Server) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f, fields := domain.ParseListFilter(q.Get("status"), q.Get("date"), q.Get("page"), q.Get("pageSize"))
	if fields != nil {
		httpx.WriteError(w, r, httpx.Validation("", fields))
		return
	}
	page, err := s.bookings.List(r.Context(), middleware.PrincipalFrom(r.Context()), middleware.TenantID(r.Context()), f)
	if err != nil {
		httpx.WriteError(w, r, mapError(err))
		return
	}
	httpx.WriteJSON(w, http.StatusOK, page)
}

// Get handles GET /api/admin/bookings/{bkgRef}.
func (s *Server) Get(w http.ResponseWriter, r *http.Request) {
	b, err := s.bookings.Get(r.Context(), middleware.PrincipalFrom(r.Context()), middleware.TenantID(r.Context()), mux.Vars(r)["bkgRef"])
	if err != nil {
		httpx.WriteError(w, r, mapError(err))
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"booking": b})
}

type statusRequest struct {
	Status string `json:"status" validate:"required,oneof=NEW CONFIRMED IN_PROGRESS COMPLETED CANCELLED"`
}

// UpdateStatus handles PATCH /api/admin/bookings/{bkgRef}.
func (s *Server) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := httpx.Decode(w, r, &req); err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	b, err := s.bookings.UpdateStatus(r.Context(), middleware.PrincipalFrom(r.Context()), middleware.TenantID(r.Context()),
		mux.Vars(r)["bkgRef"], domain.Status(req.Status))
	if err != nil {
		httpx.WriteError(w, r, mapError(err))
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"ok": true, "booking": b})
}

func mapError(err error) error {
	var verr *bookingservice.ValidationError
	switch {
	case errors.As(err, &verr):
		return httpx.Validation("", verr.Fields)
	case errors.Is(err, bookingservice.ErrTenantRequired):
		return httpx.New(http.StatusBadRequest, httpx.CodeTenantNotFound, "Tenant is required")
	case errors.Is(err, bookingservice.ErrServiceNotFound):
		return httpx.NotFound(codeServiceNotFound, "Service not found")
	case errors.Is(err, bookingservice.ErrBookingNotFound):
		return httpx.NotFound(codeBookingNotFound, "Booking not found")
	case errors.Is(err, bookingservice.ErrForbidden):
		return httpx.Forbidden("")
	case errors.Is(err, bookingservice.ErrInvalidTransition):
		return httpx.New(http.StatusConflict, httpx.CodeInvalidTransition, "Status transition not allowed")
	default:
		return httpx.Internal(err)
	}
}
