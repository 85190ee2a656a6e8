// Package domain holds entitlements (download rights) and licences granted on payment.
package domain

import "time"

// Entitlement grants a user access to a release within a tenant. Unique per (tenant, user, release).
type Entitlement struct {
	ID        string    `db:"id" json:"id"`
	TenantID  string    `db:"tenant_id" json:"tenantId"`
	UserID    string    `db:"user_id" json:"userId"`
	ReleaseID string    `db:"release_id" json:"releaseId"`
	OrderID   string    `db:"order_id" json:"orderId"`
	GrantedAt time.Time `db:"granted_at" json:"grantedAt"`
}

type LicenceStatus string

const (
	LicenceActive  LicenceStatus = "ACTIVE"
	LicenceRevoked LicenceStatus = "REVOKED"
)

// Licence is the customer-facing key issued alongside an entitlement.
type Licence struct {
	ID        string        `db:"id" json:"id"`
	TenantID  string        `db:"tenant_id" json:"tenantId"`
	UserID    string        `db:"user_id" json:"userId"`
	ReleaseID string        `db:"release_id" json:"releaseId"`
	OrderID   string        `db:"order_id" json:"orderId"`
	LicKey    string        `db:"lic_key" json:"licKey"`
	Status    LicenceStatus `db:"status" json:"status"`
	CreatedAt time.Time     `db:"created_at" json:"createdAt"`
}

// IsValidFor reports whether the licence is active and covers releaseID.
func (l *Licence) IsValidFor(releaseID string) bool {
	return l != nil && l.Status == LicenceActive && l.ReleaseID == releaseID
}
