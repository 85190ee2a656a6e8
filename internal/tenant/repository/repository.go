package repository

import (
	"context"

	"storefront/backend/internal/tenant/domain"
)

// Repository defines lookups for tenants. Missing rows yield (nil, nil).
type Repository interface {
	GetByDomain(ctx context.Context, host string) (*domain.Tenant, error)
	GetByKey(ctx context.Context, key string) (*domain.Tenant, error)
}
