// Package domain holds the authenticated caller attached to a request.
package domain

import userdomain "storefront/backend/internal/user/domain"

// Principal is the resolved session owner for the current request.
type Principal struct {
	UserID    string
	TenantID  string
	SessionID string
	Role      userdomain.Role
	Email     string
	FullName  string
}

// IsStaff reports whether the principal may use the back office.
func (p *Principal) IsStaff() bool {
	return p != nil && p.Role.IsStaff()
}

// CanSee reports whether the principal may read a resource owned by ownerUserID
// within its own tenant. Staff see every resource in the tenant.
func (p *Principal) CanSee(tenantID, ownerUserID string) bool {
	if p == nil || p.TenantID != tenantID {
		return false
	}
	return p.IsStaff() || (ownerUserID != "" && ownerUserID == p.UserID)
}
