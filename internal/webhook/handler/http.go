// Package handler receives payment provider webhooks.
package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"storefront/backend/internal/payment"
	"storefront/backend/internal/platform/httpx"
	"storefront/backend/internal/server/middleware"
	"storefront/backend/internal/webhook/service"
)

// maxBody is the largest webhook payload accepted.
const maxBody = 1 << 20

// SignatureHeader carries the Stripe signature.
const SignatureHeader = "Stripe-Signature"

// Processor is implemented by *service.Processor.
type Processor interface {
	Handle(ctx context.Context, tenantID string, rawBody []byte, signature string) (*service.Result, error)
}

type Server struct {
	proc Processor
}

func NewServer(proc Processor) *Server {
	return &Server{proc: proc}
}

// Stripe handles POST /api/webhooks/stripe. The body is read raw; it must not pass
// through any JSON decoding before signature verification.
func (s *Server) Stripe(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBody))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			httpx.WriteError(w, r, httpx.Validation("Request body too large", nil))
			return
		}
		httpx.WriteError(w, r, httpx.Validation("Unreadable request body", nil))
		return
	}
	res, err := s.proc.Handle(r.Context(), middleware.TenantID(r.Context()), body, r.Header.Get(SignatureHeader))
	switch {
	case errors.Is(err, payment.ErrSignatureInvalid):
		httpx.WriteError(w, r, httpx.New(http.StatusBadRequest, httpx.CodeSignatureInvalid, "Invalid webhook signature"))
	case errors.Is(err, service.ErrInFlight):
		httpx.WriteError(w, r, httpx.New(http.StatusConflict, httpx.CodeWebhookInFlight, "Event is being processed"))
	case err != nil:
		httpx.WriteError(w, r, httpx.Internal(err))
	default:
		httpx.WriteJSON(w, http.StatusOK, res)
	}
}
