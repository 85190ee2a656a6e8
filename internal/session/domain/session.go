package domain

import "time"

// Session is a logged-in browser. Only the SHA-256 of the cookie token is stored.
type Session struct {
	ID               string    `db:"id"`
	TenantID         string    `db:"tenant_id"`
	UserID           string    `db:"user_id"`
	SessionTokenHash string    `db:"session_token_hash"`
	ExpiresAt        time.Time `db:"expires_at"`
	CreatedAt        time.Time `db:"created_at"`
}

// IsExpired reports whether the session has passed its expiry at now.
func (s *Session) IsExpired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
