// Package seed inserts the development tenant and its admin account. Running it again
// leaves existing rows alone.
package seed

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	tenantdomain "storefront/backend/internal/tenant/domain"
	userdomain "storefront/backend/internal/user/domain"
)

// Fixture describes what to seed.
type Fixture struct {
	TenantKey     string
	TenantName    string
	Domains       []string
	AdminEmail    string
	AdminPassword string
	AdminName     string
}

// Default is the local development fixture.
func Default() Fixture {
	return Fixture{
		TenantKey:     "primetech",
		TenantName:    "Prime Tech Services",
		Domains:       []string{"localhost", "127.0.0.1"},
		AdminEmail:    "admin@primetech.local",
		AdminPassword: "PrimeTechAdmin123!",
		AdminName:     "Prime Tech Admin",
	}
}

type Tenants interface {
	Upsert(ctx context.Context, t *tenantdomain.Tenant) error
	AddDomain(ctx context.Context, d tenantdomain.Domain) error
}

type Users interface {
	GetByEmail(ctx context.Context, tenantID, email string) (*userdomain.User, error)
	Create(ctx context.Context, u *userdomain.User) error
}

type Hasher interface {
	Hash(password []byte) (string, error)
}

// Result reports what Run did.
type Result struct {
	TenantID     string
	AdminCreated bool
}

// Run upserts the tenant, maps its domains and creates the admin if missing.
func Run(ctx context.Context, tenants Tenants, users Users, hasher Hasher, f Fixture, log *zap.Logger) (*Result, error) {
	if log == nil {
		log = zap.NewNop()
	}
	now := time.Now().UTC()
	t := &tenantdomain.Tenant{
		ID:        uuid.New().String(),
		Key:       f.TenantKey,
		Name:      f.TenantName,
		Status:    tenantdomain.TenantStatusActive,
		CreatedAt: now,
	}
	if err := tenants.Upsert(ctx, t); err != nil {
		return nil, fmt.Errorf("tenant %s: %w", f.TenantKey, err)
	}
	for i, host := range f.Domains {
		if err := tenants.AddDomain(ctx, tenantdomain.Domain{Domain: host, TenantID: t.ID, IsPrimary: i == 0}); err != nil {
			return nil, fmt.Errorf("domain %s: %w", host, err)
		}
	}

	res := &Result{TenantID: t.ID}
	existing, err := users.GetByEmail(ctx, t.ID, f.AdminEmail)
	if err != nil {
		return nil, fmt.Errorf("lookup admin: %w", err)
	}
	if existing != nil {
		log.Info("admin already exists", zap.String("tenant_key", f.TenantKey), zap.String("user_id", existing.ID))
		return res, nil
	}

	hash, err := hasher.Hash([]byte(f.AdminPassword))
	if err != nil {
		return nil, err
	}
	admin := &userdomain.User{
		ID:           uuid.New().String(),
		TenantID:     t.ID,
		Email:        f.AdminEmail,
		PasswordHash: hash,
		FullName:     f.AdminName,
		Role:         userdomain.RoleAdmin,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := users.Create(ctx, admin); err != nil {
		return nil, fmt.Errorf("create admin: %w", err)
	}
	res.AdminCreated = true
	log.Info("admin created", zap.String("tenant_key", f.TenantKey), zap.String("email", admin.Email))
	return res, nil
}
