package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"storefront/backend/internal/tenant/domain"
)

type PostgresRepository struct {
	db *sqlx.DB
}

// NewPostgresRepository returns a tenant repository backed by db.
func NewPostgresRepository(db *sqlx.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const tenantColumns = `t.id, t.key, t.name, t.status, t.created_at`

// GetByDomain returns the tenant owning host, or nil if no domain row matches.
func (r *PostgresRepository) GetByDomain(ctx context.Context, host string) (*domain.Tenant, error) {
	var t domain.Tenant
	err := r.db.GetContext(ctx, &t, `SELECT `+tenantColumns+`
		FROM tenant_domains d JOIN tenants t ON t.id = d.tenant_id
		WHERE d.domain = $1`, host)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// GetByKey returns the tenant with the given key, or nil.
func (r *PostgresRepository) GetByKey(ctx context.Context, key string) (*domain.Tenant, error) {
	var t domain.Tenant
	err := r.db.GetContext(ctx, &t, `SELECT `+tenantColumns+` FROM tenants t WHERE t.key = $1`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// Upsert creates or renames a tenant keyed by Key. Used by seeding.
func (r *PostgresRepository) Upsert(ctx context.Context, t *domain.Tenant) error {
	return r.db.GetContext(ctx, &t.ID, `INSERT INTO tenants (id, key, name, status, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (key) DO UPDATE SET name = EXCLUDED.name, status = EXCLUDED.status
		RETURNING id`, t.ID, t.Key, t.Name, t.Status, t.CreatedAt)
}

// AddDomain maps host to tenantID. Existing mappings are left untouched.
func (r *PostgresRepository) AddDomain(ctx context.Context, d domain.Domain) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO tenant_domains (domain, tenant_id, is_primary)
		VALUES ($1, $2, $3) ON CONFLICT (domain) DO NOTHING`, d.Domain, d.TenantID, d.IsPrimary)
	return err
}
