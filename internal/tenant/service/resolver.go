package service

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"storefront/backend/internal/tenant/domain"
)

// Sentinel errors; the tenant middleware maps them to 404 and 503.
var (
	ErrTenantNotFound    = errors.New("tenant not found")
	ErrTenantUnavailable = errors.New("tenant store unavailable")
)

// Lookup is the minimal tenant repository needed by the resolver.
type Lookup interface {
	GetByDomain(ctx context.Context, host string) (*domain.Tenant, error)
	GetByKey(ctx context.Context, key string) (*domain.Tenant, error)
}

// devHosts fall back to the dev tenant when no domain row exists for them.
var devHosts = map[string]bool{"localhost": true, "127.0.0.1": true}

// Resolver maps a request host to a tenant.
type Resolver struct {
	lookup Lookup
	devKey string
}

// NewResolver returns a Resolver. devKey is the tenant key served on localhost; empty disables the fallback.
func NewResolver(lookup Lookup, devKey string) *Resolver {
	return &Resolver{lookup: lookup, devKey: devKey}
}

// Resolve returns the active tenant for host (already normalised with NormalizeHost).
func (r *Resolver) Resolve(ctx context.Context, host string) (*domain.Tenant, error) {
	if host == "" {
		return nil, ErrTenantNotFound
	}
	t, err := r.lookup.GetByDomain(ctx, host)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTenantUnavailable, err)
	}
	if t == nil && devHosts[host] && r.devKey != "" {
		t, err = r.lookup.GetByKey(ctx, r.devKey)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrTenantUnavailable, err)
		}
	}
	if !t.IsActive() {
		return nil, ErrTenantNotFound
	}
	return t, nil
}

// NormalizeHost picks the first X-Forwarded-Host value when present, else Host,
// then strips any port and lowercases the result.
func NormalizeHost(forwardedHost, host string) string {
	h := host
	if fh := strings.TrimSpace(strings.Split(forwardedHost, ",")[0]); fh != "" {
		h = fh
	}
	h = strings.TrimSpace(h)
	if hostOnly, _, err := net.SplitHostPort(h); err == nil {
		h = hostOnly
	}
	h = strings.TrimSuffix(strings.TrimPrefix(h, "["), "]")
	return strings.ToLower(strings.TrimSuffix(h, "."))
}
