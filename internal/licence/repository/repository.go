package repository

import (
	"context"

	"storefront/backend/internal/licence/domain"
)

// Repository reads licences and entitlements. Both are written by the order paid transition.
type Repository interface {
	ListLicences(ctx context.Context, tenantID, userID string) ([]*domain.Licence, error)
	GetLicenceByKey(ctx context.Context, licKey string) (*domain.Licence, error)
	ListEntitlements(ctx context.Context, tenantID, userID string) ([]*domain.Entitlement, error)
	HasEntitlement(ctx context.Context, tenantID, userID, releaseID string) (bool, error)
}
