package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	identityservice "storefront/backend/internal/identity/service"
	"storefront/backend/internal/security"
	"storefront/backend/internal/server/middleware"
	sessiondomain "storefront/backend/internal/session/domain"
	tenantdomain "storefront/backend/internal/tenant/domain"
	userdomain "storefront/backend/internal/user/domain"
)

type memUsers struct{ u *userdomain.User }

func (m *memUsers) GetByID(ctx context.Context, tenantID, id string) (*userdomain.User, error) {
	if m.u.TenantID == tenantID && m.u.ID == id {
		return m.u, nil
	}
	return nil, nil
}

func (m *memUsers) GetByEmail(ctx context.Context, tenantID, email string) (*userdomain.User, error) {
	if m.u.TenantID == tenantID && m.u.Email == email {
		return m.u, nil
	}
	return nil, nil
}

type memSessions struct {
	mu        sync.Mutex
	m         map[string]*sessiondomain.Session
	deleteErr error
}

func (s *memSessions) GetByTokenHash(ctx context.Context, h string) (*sessiondomain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.m[h], nil
}

func (s *memSessions) Create(ctx context.Context, sess *sessiondomain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[sess.SessionTokenHash] = sess
	return nil
}

func (s *memSessions) DeleteByTokenHash(ctx context.Context, h string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deleteErr != nil {
		return s.deleteErr
	}
	delete(s.m, h)
	return nil
}

func newTestServer(t *testing.T) (http.Handler, *memSessions) {
	t.Helper()
	hasher := security.NewHasher(bcrypt.MinCost)
	hash, err := hasher.Hash([]byte("s3cret-pass"))
	require.NoError(t, err)
	users := &memUsers{u: &userdomain.User{ID: "u1", TenantID: "t1", Email: "owner@example.com", PasswordHash: hash, FullName: "Owner", Role: userdomain.RoleAdmin}}
	sessions := &memSessions{m: map[string]*sessiondomain.Session{}}
	auth := identityservice.NewAuthService(users, sessions, hasher, time.Hour, nil, nil)
	srv := NewServer(auth, CookieOptions{Secure: true, SameSite: http.SameSiteLaxMode})

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/login", srv.Login)
	mux.HandleFunc("POST /api/auth/logout", srv.Logout)
	mux.HandleFunc("GET /api/auth/me", srv.Me)

	tenant := &tenantdomain.Tenant{ID: "t1", Key: "shop", Status: tenantdomain.TenantStatusActive}
	h := middleware.AttachSession(auth, zap.NewNop())(mux)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.ServeHTTP(w, r.WithContext(middleware.WithTenant(r.Context(), tenant)))
	}), sessions
}

func login(t *testing.T, h http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func sessionCookie(rec *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == middleware.SessionCookie {
			return c
		}
	}
	return nil
}

func TestLogin_SetsHardenedCookie(t *testing.T) {
	h, sessions := newTestServer(t)
	rec := login(t, h, `{"email":"owner@example.com","password":"s3cret-pass"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ok":true}`, rec.Body.String())
	c := sessionCookie(rec)
	require.NotNil(t, c)
	assert.True(t, c.HttpOnly)
	assert.True(t, c.Secure)
	assert.Equal(t, http.SameSiteLaxMode, c.SameSite)
	assert.Len(t, sessions.m, 1)
	assert.NotNil(t, sessions.m[security.HashSessionToken(c.Value)])
}

func TestLogin_IdenticalFailures(t *testing.T) {
	h, _ := newTestServer(t)
	wrong := login(t, h, `{"email":"owner@example.com","password":"nope"}`)
	unknown := login(t, h, `{"email":"ghost@example.com","password":"nope"}`)

	assert.Equal(t, http.StatusUnauthorized, wrong.Code)
	assert.Equal(t, http.StatusUnauthorized, unknown.Code)
	assert.Contains(t, wrong.Body.String(), `"code":"INVALID_CREDENTIALS"`)
	assert.Contains(t, wrong.Body.String(), `"message":"Invalid credentials"`)
	assert.Equal(t, wrong.Body.String(), unknown.Body.String())
	assert.Nil(t, sessionCookie(wrong))
}

func TestLogin_Validation(t *testing.T) {
	h, _ := newTestServer(t)
	rec := login(t, h, `{"email":"not-an-email"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "VALIDATION_ERROR")
}

func TestMe_And_Logout(t *testing.T) {
	h, sessions := newTestServer(t)
	c := sessionCookie(login(t, h, `{"email":"owner@example.com","password":"s3cret-pass"}`))
	require.NotNil(t, c)

	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req.AddCookie(c)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"email":"owner@example.com"`)
	assert.NotContains(t, rec.Body.String(), "password")

	req = httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil)
	req.AddCookie(c)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	cleared := sessionCookie(rec)
	require.NotNil(t, cleared)
	assert.Empty(t, cleared.Value)
	assert.Empty(t, sessions.m)

	req = httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req.AddCookie(c)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLogout_WithoutSession(t *testing.T) {
	h, _ := newTestServer(t)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotNil(t, sessionCookie(rec))
}

func TestLogout_ClearsCookieWhenDeleteFails(t *testing.T) {
	h, sessions := newTestServer(t)
	c := sessionCookie(login(t, h, `{"email":"owner@example.com","password":"s3cret-pass"}`))
	require.NotNil(t, c)
	sessions.deleteErr = errors.New("db down")

	req := httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil)
	req.AddCookie(c)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ok":true}`, rec.Body.String())
	cleared := sessionCookie(rec)
	require.NotNil(t, cleared)
	assert.Empty(t, cleared.Value)
	assert.Equal(t, -1, cleared.MaxAge)
	assert.True(t, cleared.HttpOnly)
}
