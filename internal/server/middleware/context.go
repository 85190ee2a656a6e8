// Package middleware holds the HTTP middleware chain: request ids, access logs,
// tracing, tenant resolution, session attachment and role checks.
package middleware

import (
	"context"

	identitydomain "storefront/backend/internal/identity/domain"
	tenantdomain "storefront/backend/internal/tenant/domain"
)

type contextKey struct{ name string }

var (
	tenantKey    = contextKey{"tenant"}
	principalKey = contextKey{"principal"}
)

// WithTenant returns a context carrying the resolved tenant.
func WithTenant(ctx context.Context, t *tenantdomain.Tenant) context.Context {
	return context.WithValue(ctx, tenantKey, t)
}

// TenantFrom returns the tenant set by the Tenant middleware, or nil.
func TenantFrom(ctx context.Context) *tenantdomain.Tenant {
	t, _ := ctx.Value(tenantKey).(*tenantdomain.Tenant)
	return t
}

// TenantID returns the resolved tenant id or "".
func TenantID(ctx context.Context) string {
	if t := TenantFrom(ctx); t != nil {
		return t.ID
	}
	return ""
}

// WithPrincipal returns a context carrying the signed-in principal.
func WithPrincipal(ctx context.Context, p *identitydomain.Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFrom returns the principal attached by AttachSession, or nil for anonymous requests.
func PrincipalFrom(ctx context.Context) *identitydomain.Principal {
	p, _ := ctx.Value(principalKey).(*identitydomain.Principal)
	return p
}

// UserID returns the principal's user id or "".
func UserID(ctx context.Context) string {
	if p := PrincipalFrom(ctx); p != nil {
		return p.UserID
	}
	return ""
}
