package domain

import "time"

// Tenant is a business served by this deployment. Every scoped row carries its ID.
type Tenant struct {
	ID        string       `db:"id" json:"id"`
	Key       string       `db:"key" json:"key"`
	Name      string       `db:"name" json:"name"`
	Status    TenantStatus `db:"status" json:"status"`
	CreatedAt time.Time    `db:"created_at" json:"createdAt"`
}

type TenantStatus string

const (
	TenantStatusActive    TenantStatus = "ACTIVE"
	TenantStatusSuspended TenantStatus = "SUSPENDED"
)

// IsActive reports whether requests for this tenant may be served.
func (t *Tenant) IsActive() bool { return t != nil && t.Status == TenantStatusActive }

// Domain maps a request host to a tenant.
type Domain struct {
	Domain    string `db:"domain"`
	TenantID  string `db:"tenant_id"`
	IsPrimary bool   `db:"is_primary"`
}
