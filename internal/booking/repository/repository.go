package repository

import (
	"context"
	"time"

	"storefront/backend/internal/booking/domain"
)

// Repository defines persistence for bookings. Every lookup is tenant scoped.
type Repository interface {
	Create(ctx context.Context, b *domain.Booking) error
	GetByRef(ctx context.Context, tenantID, bkgRef string) (*domain.Booking, error)
	List(ctx context.Context, tenantID string, f domain.ListFilter) ([]*domain.Booking, int, error)
	// UpdateStatus moves a booking from one status to another. It returns nil, nil when
	// the booking no longer has status from.
	UpdateStatus(ctx context.Context, tenantID, bkgRef string, from, to domain.Status, now time.Time) (*domain.Booking, error)
}
