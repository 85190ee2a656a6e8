// Package handler exposes login, logout and the current-user endpoint.
package handler

import (
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	identityservice "storefront/backend/internal/identity/service"
	"storefront/backend/internal/platform/httpx"
	"storefront/backend/internal/server/middleware"
)

// CookieOptions controls the attributes of the session cookie.
type CookieOptions struct {
	Secure   bool
	SameSite http.SameSite
}

// Server serves /api/auth/*.
type Server struct {
	auth   *identityservice.AuthService
	cookie CookieOptions
}

// NewServer returns an auth HTTP server.
func NewServer(auth *identityservice.AuthService, cookie CookieOptions) *Server {
	return &Server{auth: auth, cookie: cookie}
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,max=1024"`
}

// Login handles POST /api/auth/login.
func (s *Server) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpx.Decode(w, r, &req); err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	res, err := s.auth.Login(r.Context(), middleware.TenantID(r.Context()), req.Email, req.Password)
	if errors.Is(err, identityservice.ErrInvalidCredentials) {
		httpx.WriteError(w, r, httpx.InvalidCredentials())
		return
	}
	if err != nil {
		httpx.WriteError(w, r, httpx.Internal(err))
		return
	}
	s.setCookie(w, res.Token, res.ExpiresAt)
	httpx.WriteJSON(w, http.StatusOK, httpx.OK)
}

// Logout handles POST /api/auth/logout. The cookie is cleared even when no session exists
// or the session row could not be deleted; a leftover row expires on its own.
func (s *Server) Logout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := s.auth.Logout(ctx, middleware.TenantID(ctx), middleware.UserID(ctx), middleware.SessionToken(r)); err != nil {
		zap.L().Error("logout: session not deleted",
			zap.String("tenant_id", middleware.TenantID(ctx)),
			zap.String("user_id", middleware.UserID(ctx)),
			zap.String("request_id", httpx.RequestID(ctx)),
			zap.Error(err),
		)
	}
	s.setCookie(w, "", time.Unix(0, 0))
	httpx.WriteJSON(w, http.StatusOK, httpx.OK)
}

// Me handles GET /api/auth/me.
func (s *Server) Me(w http.ResponseWriter, r *http.Request) {
	p := middleware.PrincipalFrom(r.Context())
	if p == nil {
		httpx.WriteError(w, r, httpx.AuthRequired())
		return
	}
	u, err := s.auth.Me(r.Context(), p)
	if err != nil {
		httpx.WriteError(w, r, httpx.Internal(err))
		return
	}
	if u == nil {
		httpx.WriteError(w, r, httpx.AuthRequired())
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"user": u})
}

func (s *Server) setCookie(w http.ResponseWriter, value string, expires time.Time) {
	c := &http.Cookie{
		Name:     middleware.SessionCookie,
		Value:    value,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   s.cookie.Secure,
		SameSite: s.cookie.SameSite,
	}
	if value == "" {
		c.MaxAge = -1
	}
	http.SetCookie(w, c)
}
