package middleware

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	identitydomain "storefront/backend/internal/identity/domain"
	"storefront/backend/internal/platform/httpx"
	userdomain "storefront/backend/internal/user/domain"
)

// SessionCookie is the name of the session cookie.
const SessionCookie = "session"

// SessionResolver turns a cookie token into a principal for a tenant. A nil principal
// with a nil error means the session is absent or unusable.
type SessionResolver interface {
	ResolveSession(ctx context.Context, tenantID, token string) (*identitydomain.Principal, error)
}

// RoleAuthorizer decides whether a role is among the allowed roles.
type RoleAuthorizer interface {
	RoleAllowed(ctx context.Context, role string, allowed []string) (bool, error)
}

// SessionToken returns the raw session cookie value or "".
func SessionToken(r *http.Request) string {
	c, err := r.Cookie(SessionCookie)
	if err != nil {
		return ""
	}
	return c.Value
}

// AttachSession resolves the session cookie, if any, and stores the principal.
// Anonymous requests pass through unchanged. Must run after Tenant.
func AttachSession(sessions SessionResolver, log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := SessionToken(r)
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}
			p, err := sessions.ResolveSession(r.Context(), TenantID(r.Context()), token)
			if err != nil {
				log.Error("session lookup failed",
					zap.String("request_id", httpx.RequestID(r.Context())),
					zap.Error(err),
				)
				httpx.WriteError(w, r, httpx.Internal(err))
				return
			}
			if p != nil {
				r = r.WithContext(WithPrincipal(r.Context(), p))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAuth rejects anonymous requests with 401 AUTH_REQUIRED.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if PrincipalFrom(r.Context()) == nil {
			httpx.WriteError(w, r, httpx.AuthRequired())
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireRole checks authentication first, then asks the policy engine whether the
// principal's role is one of roles. Evaluation errors deny.
func RequireRole(authz RoleAuthorizer, log *zap.Logger, roles ...userdomain.Role) func(http.Handler) http.Handler {
	allowed := make([]string, len(roles))
	for i, role := range roles {
		allowed[i] = string(role)
	}
	return func(next http.Handler) http.Handler {
		return RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := PrincipalFrom(r.Context())
			ok, err := authz.RoleAllowed(r.Context(), string(p.Role), allowed)
			if err != nil {
				log.Error("role evaluation failed", zap.String("user_id", p.UserID), zap.Error(err))
			}
			if err != nil || !ok {
				httpx.WriteError(w, r, httpx.Forbidden(""))
				return
			}
			next.ServeHTTP(w, r)
		}))
	}
}
