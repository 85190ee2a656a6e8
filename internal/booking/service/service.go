// Package service implements public booking requests, tracking and staff administration.
package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"storefront/backend/internal/booking/domain"
	bookingrepo "storefront/backend/internal/booking/repository"
	"storefront/backend/internal/catalog"
	"storefront/backend/internal/db"
	identitydomain "storefront/backend/internal/identity/domain"
	"storefront/backend/internal/notification"
	"storefront/backend/internal/platform/metrics"
	"storefront/backend/internal/policy/engine"
	"storefront/backend/internal/reference"
	"storefront/backend/internal/security"
)

var (
	ErrTenantRequired    = errors.New("tenant is required")
	ErrServiceNotFound   = errors.New("service not found")
	ErrBookingNotFound   = errors.New("booking not found")
	ErrForbidden         = errors.New("forbidden")
	ErrInvalidTransition = errors.New("invalid status transition")
)

// ValidationError carries per-field messages for a rejected request.
type ValidationError struct {
	Fields map[string][]string
}

func (e *ValidationError) Error() string { return "booking validation failed" }

const (
	TrackingTTL   = 30 * 24 * time.Hour
	maxNotesChars = 2000
)

// Catalog resolves bookable services by slug.
type Catalog interface {
	Lookup(slug string) (catalog.Service, bool)
}

// Config holds booking settings.
type Config struct {
	// SiteURL is the storefront origin used in tracking links.
	SiteURL string
	// Inbox receives staff notifications. Empty disables them.
	Inbox string
}

type Service struct {
	repo     bookingrepo.Repository
	catalog  Catalog
	signer   *security.Signer
	authz    engine.Authorizer
	notifier notification.Notifier
	cfg      Config
	log      *zap.Logger
	now      func() time.Time
}

// NewService returns a booking service. notifier may be nil.
func NewService(repo bookingrepo.Repository, cat Catalog, signer *security.Signer, authz engine.Authorizer,
	notifier notification.Notifier, cfg Config, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	cfg.SiteURL = strings.TrimRight(cfg.SiteURL, "/")
	return &Service{repo: repo, catalog: cat, signer: signer, authz: authz, notifier: notifier, cfg: cfg, log: log, now: time.Now}
}

// CreateInput is a public booking request.
type CreateInput struct {
	TenantID      string
	FullName      string
	Email         string
	ServiceSlug   string
	PreferredDate string
	Notes         string
}

// Created is the new booking and the capability token that lets the customer track it.
type Created struct {
	Booking       *domain.Booking
	TrackingToken string
}

func validateCreate(in CreateInput) (time.Time, error) {
	fields := map[string][]string{}
	if utf8.RuneCountInString(strings.TrimSpace(in.FullName)) < 2 {
		fields["fullName"] = append(fields["fullName"], "must be at least 2 characters")
	}
	if a, err := mail.ParseAddress(strings.TrimSpace(in.Email)); err != nil || a.Name != "" {
		fields["email"] = append(fields["email"], "must be a valid email address")
	}
	if strings.TrimSpace(in.ServiceSlug) == "" {
		fields["serviceSlug"] = append(fields["serviceSlug"], "is required")
	}
	preferred, ok := domain.ParseDate(in.PreferredDate)
	if !ok {
		fields["preferredDate"] = append(fields["preferredDate"], "must be YYYY-MM-DD or an RFC 3339 timestamp")
	}
	if utf8.RuneCountInString(in.Notes) > maxNotesChars {
		fields["notes"] = append(fields["notes"], "must be at most 2000 characters")
	}
	if len(fields) > 0 {
		return time.Time{}, &ValidationError{Fields: fields}
	}
	return preferred, nil
}

// Create records a NEW booking with the service's name and price snapshotted, issues
// a tracking token and notifies the customer and the staff inbox in the background.
func (s *Service) Create(ctx context.Context, in CreateInput) (*Created, error) {
	if in.TenantID == "" {
		return nil, ErrTenantRequired
	}
	preferred, err := validateCreate(in)
	if err != nil {
		return nil, err
	}
	svc, ok := s.catalog.Lookup(strings.TrimSpace(in.ServiceSlug))
	if !ok {
		return nil, ErrServiceNotFound
	}

	now := s.now().UTC()
	b := &domain.Booking{
		ID:          uuid.New().String(),
		TenantID:    in.TenantID,
		Status:      domain.StatusNew,
		FullName:    strings.TrimSpace(in.FullName),
		Email:       strings.ToLower(strings.TrimSpace(in.Email)),
		ServiceSlug: svc.Slug,
		ServiceName: svc.Name,
		Price:       svc.Price,
		Currency:    svc.Currency,
		PreferredAt: preferred,
		Notes:       strings.TrimSpace(in.Notes),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.createWithUniqueRef(ctx, b); err != nil {
		return nil, err
	}
	metrics.BookingCreated()

	claims := security.CapabilityClaims{TenantID: b.TenantID, Email: b.Email}
	claims.Subject = b.BkgRef
	token, _, err := s.signer.Issue(security.PurposeBookingTracking, claims, TrackingTTL)
	if err != nil {
		return nil, fmt.Errorf("issue tracking token: %w", err)
	}

	s.log.Info("booking created",
		zap.String("tenant_id", b.TenantID),
		zap.String("bkg_ref", b.BkgRef),
		zap.String("service", b.ServiceSlug),
	)
	s.notify(ctx, b, token)
	return &Created{Booking: b, TrackingToken: token}, nil
}

func (s *Service) createWithUniqueRef(ctx context.Context, b *domain.Booking) error {
	for attempt := 0; attempt < reference.MaxAttempts; attempt++ {
		ref, err := reference.NewBookingRef()
		if err != nil {
			return err
		}
		b.BkgRef = ref
		err = s.repo.Create(ctx, b)
		if err == nil {
			return nil
		}
		if !db.IsUniqueViolationOn(err, bookingrepo.ConstraintBkgRef) {
			return fmt.Errorf("create booking: %w", err)
		}
		s.log.Warn("booking reference collision, retrying", zap.String("bkg_ref", ref), zap.Int("attempt", attempt+1))
	}
	return fmt.Errorf("create booking: no unique reference after %d attempts", reference.MaxAttempts)
}

func (s *Service) trackingURL(token string) string {
	if s.cfg.SiteURL == "" {
		return ""
	}
	return s.cfg.SiteURL + "/bookings/track?token=" + url.QueryEscape(token)
}

func (s *Service) notify(ctx context.Context, b *domain.Booking, token string) {
	if s.notifier == nil {
		return
	}
	d := notification.BookingDetails{
		TenantID:      b.TenantID,
		BkgRef:        b.BkgRef,
		FullName:      b.FullName,
		Email:         b.Email,
		ServiceName:   b.ServiceName,
		PreferredDate: b.PreferredAt.Format("2006-01-02"),
		Notes:         b.Notes,
		TrackingURL:   s.trackingURL(token),
	}
	for _, msg := range []notification.Message{notification.BookingCustomer(d), notification.BookingInbox(s.cfg.Inbox, d)} {
		if err := s.notifier.Notify(ctx, msg); err != nil {
			s.log.Warn("booking notification failed", zap.String("bkg_ref", b.BkgRef), zap.String("kind", msg.Kind), zap.Error(err))
		}
	}
}

// TrackInput identifies a booking either by reference and email or by tracking token.
type TrackInput struct {
	TenantID string
	BkgRef   string
	Email    string
	Token    string
}

// Track returns the public view of a booking. Every mismatch, including a token from
// another tenant, is reported as ErrBookingNotFound.
func (s *Service) Track(ctx context.Context, in TrackInput) (*domain.TrackView, error) {
	if in.TenantID == "" {
		return nil, ErrTenantRequired
	}
	ref, email := strings.TrimSpace(in.BkgRef), strings.TrimSpace(in.Email)
	if in.Token != "" {
		claims, err := s.signer.Validate(security.PurposeBookingTracking, in.Token)
		if err != nil || claims.TenantID != in.TenantID {
			return nil, ErrBookingNotFound
		}
		ref, email = claims.Subject, claims.Email
	} else if ref == "" || email == "" {
		return nil, &ValidationError{Fields: map[string][]string{"query": {"provide token, or bkgRef and email"}}}
	}

	b, err := s.repo.GetByRef(ctx, in.TenantID, strings.ToUpper(ref))
	if err != nil {
		return nil, err
	}
	if b == nil || !strings.EqualFold(b.Email, email) {
		return nil, ErrBookingNotFound
	}
	v := b.Track()
	return &v, nil
}

func requireStaff(p *identitydomain.Principal, tenantID string) error {
	if p == nil || p.TenantID != tenantID || !p.Role.IsStaff() {
		return ErrForbidden
	}
	return nil
}

// List returns one page of the tenant's bookings for staff.
func (s *Service) List(ctx context.Context, p *identitydomain.Principal, tenantID string, f domain.ListFilter) (*domain.Page, error) {
	if err := requireStaff(p, tenantID); err != nil {
		return nil, err
	}
	rows, total, err := s.repo.List(ctx, tenantID, f)
	if err != nil {
		return nil, err
	}
	pages := 0
	if total > 0 {
		pages = (total + f.PageSize - 1) / f.PageSize
	}
	return &domain.Page{Bookings: rows, Page: f.Page, PageSize: f.PageSize, Total: total, TotalPages: pages}, nil
}

// Get returns a booking of the tenant for staff.
func (s *Service) Get(ctx context.Context, p *identitydomain.Principal, tenantID, bkgRef string) (*domain.Booking, error) {
	if err := requireStaff(p, tenantID); err != nil {
		return nil, err
	}
	b, err := s.repo.GetByRef(ctx, tenantID, bkgRef)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, ErrBookingNotFound
	}
	return b, nil
}

// UpdateStatus moves a booking to status to when the policy allows the transition
// for the caller's role. A concurrent change between read and write is reported as
// ErrInvalidTransition.
func (s *Service) UpdateStatus(ctx context.Context, p *identitydomain.Principal, tenantID, bkgRef string, to domain.Status) (*domain.Booking, error) {
	b, err := s.Get(ctx, p, tenantID, bkgRef)
	if err != nil {
		return nil, err
	}
	if b.Status == to {
		return b, nil
	}
	ok, err := s.authz.TransitionAllowed(ctx, string(p.Role), string(b.Status), string(to))
	if err != nil {
		s.log.Error("transition policy evaluation failed", zap.String("bkg_ref", bkgRef), zap.Error(err))
		return nil, err
	}
	if !ok {
		return nil, ErrInvalidTransition
	}
	updated, err := s.repo.UpdateStatus(ctx, tenantID, bkgRef, b.Status, to, s.now())
	if err != nil {
		return nil, err
	}
	if updated == nil {
		return nil, ErrInvalidTransition
	}
	s.log.Info("booking status changed",
		zap.String("tenant_id", tenantID),
		zap.String("bkg_ref", bkgRef),
		zap.String("from", string(b.Status)),
		zap.String("to", string(to)),
		zap.String("actor", p.UserID),
	)
	return updated, nil
}
