// Package service serves licences and signed download links to signed-in customers.
package service

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	identitydomain "storefront/backend/internal/identity/domain"
	"storefront/backend/internal/licence/domain"
	"storefront/backend/internal/licence/repository"
	"storefront/backend/internal/security"
)

var (
	ErrLicenceNotFound     = errors.New("licence not found")
	ErrForbidden           = errors.New("forbidden")
	ErrEntitlementRequired = errors.New("entitlement required")
)

// SignedURL is a time-limited download link.
type SignedURL struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Service implements the licence and download views.
type Service struct {
	repo    repository.Repository
	signer  *security.Signer
	baseURL string
	ttl     time.Duration
	log     *zap.Logger
}

// NewService returns a licence service. Download links are baseURL/<releaseId>?token=<jwt>, valid for ttl.
func NewService(repo repository.Repository, signer *security.Signer, baseURL string, ttl time.Duration, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = 600 * time.Second
	}
	return &Service{repo: repo, signer: signer, baseURL: strings.TrimRight(baseURL, "/"), ttl: ttl, log: log}
}

func (s *Service) ListMine(ctx context.Context, p *identitydomain.Principal) ([]*domain.Licence, error) {
	return s.repo.ListLicences(ctx, p.TenantID, p.UserID)
}

// Get returns a licence visible to p: the owner or staff of the same tenant.
func (s *Service) Get(ctx context.Context, p *identitydomain.Principal, licKey string) (*domain.Licence, error) {
	l, err := s.repo.GetLicenceByKey(ctx, licKey)
	if err != nil {
		return nil, err
	}
	if l == nil {
		return nil, ErrLicenceNotFound
	}
	if !p.CanSee(l.TenantID, l.UserID) {
		return nil, ErrForbidden
	}
	return l, nil
}

// Validate reports whether licKey is an active licence for releaseID in p's tenant.
// Keys of other tenants are reported invalid.
func (s *Service) Validate(ctx context.Context, p *identitydomain.Principal, licKey, releaseID string) (bool, error) {
	l, err := s.repo.GetLicenceByKey(ctx, licKey)
	if err != nil {
		return false, err
	}
	if l == nil || l.TenantID != p.TenantID {
		return false, nil
	}
	return l.IsValidFor(releaseID), nil
}

func (s *Service) Downloads(ctx context.Context, p *identitydomain.Principal) ([]*domain.Entitlement, error) {
	return s.repo.ListEntitlements(ctx, p.TenantID, p.UserID)
}

// SignDownload issues a download link for releaseID if p holds an entitlement for it.
func (s *Service) SignDownload(ctx context.Context, p *identitydomain.Principal, releaseID string) (*SignedURL, error) {
	ok, err := s.repo.HasEntitlement(ctx, p.TenantID, p.UserID, releaseID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrEntitlementRequired
	}
	claims := security.CapabilityClaims{TenantID: p.TenantID, UserID: p.UserID}
	claims.Subject = releaseID
	token, expiresAt, err := s.signer.Issue(security.PurposeDownload, claims, s.ttl)
	if err != nil {
		return nil, err
	}
	s.log.Info("download link issued",
		zap.String("tenant_id", p.TenantID),
		zap.String("user_id", p.UserID),
		zap.String("release_id", releaseID),
	)
	u := s.baseURL + "/" + url.PathEscape(releaseID) + "?" + url.Values{"token": {token}}.Encode()
	return &SignedURL{URL: u, ExpiresAt: expiresAt}, nil
}
