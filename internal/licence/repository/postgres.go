package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"storefront/backend/internal/licence/domain"
)

const (
	licenceColumns     = `id, tenant_id, user_id, release_id, order_id, lic_key, status, created_at`
	entitlementColumns = `id, tenant_id, user_id, release_id, order_id, granted_at`
)

type PostgresRepository struct {
	db *sqlx.DB
}

// NewPostgresRepository returns a licence repository that uses the given db for persistence.
func NewPostgresRepository(db *sqlx.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) ListLicences(ctx context.Context, tenantID, userID string) ([]*domain.Licence, error) {
	out := []*domain.Licence{}
	err := r.db.SelectContext(ctx, &out, `SELECT `+licenceColumns+` FROM licences
		WHERE tenant_id = $1 AND user_id = $2 ORDER BY created_at DESC`, tenantID, userID)
	return out, err
}

// GetLicenceByKey is not tenant filtered; callers compare tenants.
func (r *PostgresRepository) GetLicenceByKey(ctx context.Context, licKey string) (*domain.Licence, error) {
	var l domain.Licence
	err := r.db.GetContext(ctx, &l, `SELECT `+licenceColumns+` FROM licences WHERE lic_key = $1`, licKey)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func (r *PostgresRepository) ListEntitlements(ctx context.Context, tenantID, userID string) ([]*domain.Entitlement, error) {
	out := []*domain.Entitlement{}
	err := r.db.SelectContext(ctx, &out, `SELECT `+entitlementColumns+` FROM entitlements
		WHERE tenant_id = $1 AND user_id = $2 ORDER BY granted_at DESC`, tenantID, userID)
	return out, err
}

func (r *PostgresRepository) HasEntitlement(ctx context.Context, tenantID, userID, releaseID string) (bool, error) {
	var ok bool
	err := r.db.GetContext(ctx, &ok, `SELECT EXISTS (SELECT 1 FROM entitlements
		WHERE tenant_id = $1 AND user_id = $2 AND release_id = $3)`, tenantID, userID, releaseID)
	return ok, err
}
