package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"storefront/backend/internal/audit"
	identitydomain "storefront/backend/internal/identity/domain"
	"storefront/backend/internal/platform/metrics"
	"storefront/backend/internal/security"
	sessiondomain "storefront/backend/internal/session/domain"
	userdomain "storefront/backend/internal/user/domain"
)

// ErrInvalidCredentials is returned for an unknown email and for a wrong password alike.
var ErrInvalidCredentials = errors.New("invalid credentials")

// UserRepo is the minimal user repository needed by the auth service.
type UserRepo interface {
	GetByID(ctx context.Context, tenantID, id string) (*userdomain.User, error)
	GetByEmail(ctx context.Context, tenantID, email string) (*userdomain.User, error)
}

// SessionRepo is the minimal session repository needed by the auth service.
type SessionRepo interface {
	GetByTokenHash(ctx context.Context, tokenHash string) (*sessiondomain.Session, error)
	Create(ctx context.Context, s *sessiondomain.Session) error
	DeleteByTokenHash(ctx context.Context, tokenHash string) error
}

// LoginResult carries the raw session token for the cookie. The token is never persisted.
type LoginResult struct {
	Token     string
	ExpiresAt time.Time
	User      *userdomain.User
}

// AuthService implements login, session resolution and logout for tenant users.
type AuthService struct {
	users    UserRepo
	sessions SessionRepo
	hasher   *security.Hasher
	ttl      time.Duration
	audit    audit.AuditLogger
	log      *zap.Logger
	now      func() time.Time
}

// NewAuthService returns an AuthService. audit and log may be nil.
func NewAuthService(users UserRepo, sessions SessionRepo, hasher *security.Hasher, ttl time.Duration, auditLogger audit.AuditLogger, log *zap.Logger) *AuthService {
	if auditLogger == nil {
		auditLogger = audit.Nop{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &AuthService{
		users:    users,
		sessions: sessions,
		hasher:   hasher,
		ttl:      ttl,
		audit:    auditLogger,
		log:      log,
		now:      time.Now,
	}
}

// Login checks email and password within tenantID and opens a session.
func (s *AuthService) Login(ctx context.Context, tenantID, email, password string) (*LoginResult, error) {
	email = userdomain.NormalizeEmail(email)
	u, err := s.users.GetByEmail(ctx, tenantID, email)
	if err != nil {
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if u == nil {
		s.hasher.CompareDummy([]byte(password))
		s.loginFailed(ctx, tenantID, "", "unknown_user")
		return nil, ErrInvalidCredentials
	}
	if err := s.hasher.Compare(u.PasswordHash, []byte(password)); err != nil {
		s.loginFailed(ctx, tenantID, u.ID, "bad_password")
		return nil, ErrInvalidCredentials
	}

	token, err := security.NewSessionToken()
	if err != nil {
		return nil, fmt.Errorf("session token: %w", err)
	}
	now := s.now().UTC()
	sess := &sessiondomain.Session{
		ID:               uuid.New().String(),
		TenantID:         tenantID,
		UserID:           u.ID,
		SessionTokenHash: security.HashSessionToken(token),
		ExpiresAt:        now.Add(s.ttl),
		CreatedAt:        now,
	}
	if err := s.sessions.Create(ctx, sess); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	metrics.LoginOutcome("success")
	s.audit.LogEvent(ctx, tenantID, u.ID, "login", "session", "")
	return &LoginResult{Token: token, ExpiresAt: sess.ExpiresAt, User: u}, nil
}

func (s *AuthService) loginFailed(ctx context.Context, tenantID, userID, reason string) {
	metrics.LoginOutcome("invalid_credentials")
	s.audit.LogEvent(ctx, tenantID, userID, "login_failed", "session", reason)
}

// ResolveSession returns the principal for token in tenantID, or nil when the token is
// empty, unknown, expired, or belongs to another tenant.
func (s *AuthService) ResolveSession(ctx context.Context, tenantID, token string) (*identitydomain.Principal, error) {
	if token == "" {
		return nil, nil
	}
	sess, err := s.sessions.GetByTokenHash(ctx, security.HashSessionToken(token))
	if err != nil {
		return nil, fmt.Errorf("lookup session: %w", err)
	}
	if sess == nil || sess.IsExpired(s.now()) {
		return nil, nil
	}
	if sess.TenantID != tenantID {
		s.log.Warn("session presented on a different tenant",
			zap.String("session_id", sess.ID),
			zap.String("session_tenant", sess.TenantID),
			zap.String("request_tenant", tenantID),
		)
		return nil, nil
	}
	u, err := s.users.GetByID(ctx, tenantID, sess.UserID)
	if err != nil {
		return nil, fmt.Errorf("lookup session user: %w", err)
	}
	if u == nil {
		return nil, nil
	}
	return &identitydomain.Principal{
		UserID:    u.ID,
		TenantID:  u.TenantID,
		SessionID: sess.ID,
		Role:      u.Role,
		Email:     u.Email,
		FullName:  u.FullName,
	}, nil
}

// Logout deletes the session matching token. Other sessions of the same user survive.
func (s *AuthService) Logout(ctx context.Context, tenantID, userID, token string) error {
	if token == "" {
		return nil
	}
	if err := s.sessions.DeleteByTokenHash(ctx, security.HashSessionToken(token)); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	s.audit.LogEvent(ctx, tenantID, userID, "logout", "session", "")
	return nil
}

// Me returns the user behind p, or nil if it no longer exists.
func (s *AuthService) Me(ctx context.Context, p *identitydomain.Principal) (*userdomain.User, error) {
	if p == nil {
		return nil, nil
	}
	return s.users.GetByID(ctx, p.TenantID, p.UserID)
}
