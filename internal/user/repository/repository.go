package repository

import (
	"context"

	"storefront/backend/internal/user/domain"
)

// Repository defines persistence for users. Lookups are always tenant scoped.
type Repository interface {
	GetByID(ctx context.Context, tenantID, id string) (*domain.User, error)
	GetByEmail(ctx context.Context, tenantID, email string) (*domain.User, error)
	Create(ctx context.Context, u *domain.User) error
}
