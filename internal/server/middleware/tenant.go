package middleware

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"storefront/backend/internal/platform/httpx"
	tenantdomain "storefront/backend/internal/tenant/domain"
	tenantservice "storefront/backend/internal/tenant/service"
)

// TenantResolver maps a normalised host to an active tenant.
type TenantResolver interface {
	Resolve(ctx context.Context, host string) (*tenantdomain.Tenant, error)
}

// Tenant resolves the tenant from X-Forwarded-Host or Host and stores it in the context.
// No request proceeds without a tenant.
func Tenant(resolver TenantResolver, log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			host := tenantservice.NormalizeHost(r.Header.Get("X-Forwarded-Host"), r.Host)
			t, err := resolver.Resolve(r.Context(), host)
			switch {
			case err == nil:
			case errors.Is(err, tenantservice.ErrTenantNotFound):
				httpx.WriteError(w, r, httpx.NotFound(httpx.CodeTenantNotFound, "Tenant not found"))
				return
			default:
				log.Error("tenant resolution failed", zap.String("host", host), zap.Error(err))
				httpx.WriteError(w, r, httpx.New(http.StatusServiceUnavailable, httpx.CodeTenantUnavailable, "Tenant lookup unavailable"))
				return
			}
			next.ServeHTTP(w, r.WithContext(WithTenant(r.Context(), t)))
		})
	}
}
