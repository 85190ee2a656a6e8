package security

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned when a token is malformed, expired, or signed for another purpose.
var ErrInvalidToken = errors.New("invalid token")

// Token purposes; a token minted for one purpose never validates for another.
const (
	PurposeBookingTracking = "booking-tracking"
	PurposeDownload        = "download"
)

// CapabilityClaims are the claims of a signed capability link.
// Subject is the resource (booking ref or release id), TenantID scopes it,
// Email is set for booking tracking, UserID for downloads.
type CapabilityClaims struct {
	jwt.RegisteredClaims
	Purpose  string `json:"purpose"`
	TenantID string `json:"tenant_id"`
	Email    string `json:"email,omitempty"`
	UserID   string `json:"user_id,omitempty"`
}

// Signer issues and validates HS256 capability tokens.
type Signer struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// NewSigner returns a Signer keyed by secret.
func NewSigner(secret, issuer string) *Signer {
	return &Signer{secret: []byte(secret), issuer: issuer, now: time.Now}
}

// Issue signs claims for purpose, valid for ttl. Returns the token and its expiry.
func (s *Signer) Issue(purpose string, claims CapabilityClaims, ttl time.Duration) (string, time.Time, error) {
	now := s.now().UTC()
	expiresAt := now.Add(ttl)
	claims.Purpose = purpose
	claims.Issuer = s.issuer
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(expiresAt)
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := t.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// Validate parses token and checks signature, expiry, issuer and purpose.
func (s *Signer) Validate(purpose, token string) (*CapabilityClaims, error) {
	claims := &CapabilityClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.secret, nil
	},
		jwt.WithIssuer(s.issuer),
		jwt.WithTimeFunc(s.now),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Purpose != purpose {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
