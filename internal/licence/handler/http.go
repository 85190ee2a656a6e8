// Package handler exposes licences and signed download links.
package handler

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	licenceservice "storefront/backend/internal/licence/service"
	"storefront/backend/internal/platform/httpx"
	"storefront/backend/internal/server/middleware"
)

const codeLicenceNotFound = "LICENCE_NOT_FOUND"

type Server struct {
	svc *licenceservice.Service
}

func NewServer(svc *licenceservice.Service) *Server {
	return &Server{svc: svc}
}

// ListLicences handles GET /api/licences.
func (s *Server) ListLicences(w http.ResponseWriter, r *http.Request) {
	p := middleware.PrincipalFrom(r.Context())
	if p == nil {
		httpx.WriteError(w, r, httpx.AuthRequired())
		return
	}
	out, err := s.svc.ListMine(r.Context(), p)
	if err != nil {
		httpx.WriteError(w, r, mapError(err))
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"licences": out})
}

// GetLicence handles GET /api/licences/{licKey}.
func (s *Server) GetLicence(w http.ResponseWriter, r *http.Request) {
	p := middleware.PrincipalFrom(r.Context())
	if p == nil {
		httpx.WriteError(w, r, httpx.AuthRequired())
		return
	}
	l, err := s.svc.Get(r.Context(), p, mux.Vars(r)["licKey"])
	if err != nil {
		httpx.WriteError(w, r, mapError(err))
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"licence": l})
}

type validateRequest struct {
	LicKey    string `json:"licKey" validate:"required,max=64"`
	ReleaseID string `json:"releaseId" validate:"required,max=128"`
}

// ValidateLicence handles POST /api/licences/validate.
func (s *Server) ValidateLicence(w http.ResponseWriter, r *http.Request) {
	p := middleware.PrincipalFrom(r.Context())
	if p == nil {
		httpx.WriteError(w, r, httpx.AuthRequired())
		return
	}
	var req validateRequest
	if err := httpx.Decode(w, r, &req); err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	valid, err := s.svc.Validate(r.Context(), p, req.LicKey, req.ReleaseID)
	if err != nil {
		httpx.WriteError(w, r, mapError(err))
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]bool{"valid": valid})
}

// ListDownloads handles GET /api/account/downloads.
func (s *Server) ListDownloads(w http.ResponseWriter, r *http.Request) {
	p := middleware.PrincipalFrom(r.Context())
	if p == nil {
		httpx.WriteError(w, r, httpx.AuthRequired())
		return
	}
	out, err := s.svc.Downloads(r.Context(), p)
	if err != nil {
		httpx.WriteError(w, r, mapError(err))
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"downloads": out})
}

// SignDownload handles POST /api/account/downloads/{releaseId}/signed-url.
func (s *Server) SignDownload(w http.ResponseWriter, r *http.Request) {
	p := middleware.PrincipalFrom(r.Context())
	if p == nil {
		httpx.WriteError(w, r, httpx.AuthRequired())
		return
	}
	out, err := s.svc.SignDownload(r.Context(), p, mux.Vars(r)["releaseId"])
	if err != nil {
		httpx.WriteError(w, r, mapError(err))
		return
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

func mapError(err error) error {
	switch {
	case errors.Is(err, licenceservice.ErrLicenceNotFound):
		return httpx.NotFound(codeLicenceNotFound, "Licence not found")
	case errors.Is(err, licenceservice.ErrForbidden):
		return httpx.Forbidden("")
	case errors.Is(err, licenceservice.ErrEntitlementRequired):
		return httpx.New(http.StatusForbidden, httpx.CodeEntitlement, "You do not have access to this release")
	default:
		return httpx.Internal(err)
	}
}
