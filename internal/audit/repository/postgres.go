package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"storefront/backend/internal/audit/domain"
)

type PostgresRepository struct {
	db *sqlx.DB
}

// NewPostgresRepository returns an audit log repository that uses the given db for persistence.
func NewPostgresRepository(db *sqlx.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create persists the audit log. The audit log must have ID set.
func (r *PostgresRepository) Create(ctx context.Context, a *domain.AuditLog) error {
	_, err := r.db.NamedExecContext(ctx, `INSERT INTO audit_logs (id, tenant_id, user_id, action, resource, ip, metadata, created_at)
		VALUES (:id, :tenant_id, :user_id, :action, :resource, :ip, :metadata, :created_at)`, a)
	return err
}

// ListByTenant returns the newest audit logs for tenantID, paginated by limit and offset.
func (r *PostgresRepository) ListByTenant(ctx context.Context, tenantID string, limit, offset int) ([]*domain.AuditLog, error) {
	var out []*domain.AuditLog
	err := r.db.SelectContext(ctx, &out, `SELECT id, tenant_id, user_id, action, resource, ip, metadata, created_at
		FROM audit_logs WHERE tenant_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`, tenantID, limit, offset)
	return out, err
}
