// Package reference generates and recognises the human-facing identifiers:
// ORD-yyyyMMdd-XXXX, INV-yyyy-NNNNNN, RCP-yyyy-NNNNNN, LIC-XXXX-XXXX-XXXX and BKG-XXXXXXXX.
package reference

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"regexp"
	"time"
)

// Counter scopes for sequential numbers.
const (
	ScopeInvoice = "INV"
	ScopeReceipt = "RCP"
)

// MaxAttempts bounds retry-on-conflict loops for randomly generated references.
const MaxAttempts = 5

// MaxSequence is the largest counter value a six-digit INV or RCP number can carry.
const MaxSequence = 999_999

// ErrSequenceExhausted is returned when a yearly counter leaves 1..MaxSequence.
var ErrSequenceExhausted = errors.New("reference: yearly sequence exhausted")

const alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

var (
	ordPattern = regexp.MustCompile(`^ORD-[0-9]{8}-[A-Z0-9]{4}$`)
	invPattern = regexp.MustCompile(`^INV-[0-9]{4}-[0-9]{6}$`)
	rcpPattern = regexp.MustCompile(`^RCP-[0-9]{4}-[0-9]{6}$`)
	licPattern = regexp.MustCompile(`^LIC-[A-Z0-9]{4}-[A-Z0-9]{4}-[A-Z0-9]{4}$`)
	bkgPattern = regexp.MustCompile(`^BKG-[A-Z0-9]{8}$`)
)

// NewOrderID returns ORD-<UTC yyyyMMdd>-<4 random base36>.
func NewOrderID(now time.Time) (string, error) {
	suffix, err := randomString(4)
	if err != nil {
		return "", err
	}
	return "ORD-" + now.UTC().Format("20060102") + "-" + suffix, nil
}

// NewLicenceKey returns LIC-XXXX-XXXX-XXXX.
func NewLicenceKey() (string, error) {
	s, err := randomString(12)
	if err != nil {
		return "", err
	}
	return "LIC-" + s[0:4] + "-" + s[4:8] + "-" + s[8:12], nil
}

// NewBookingRef returns BKG-XXXXXXXX.
func NewBookingRef() (string, error) {
	s, err := randomString(8)
	if err != nil {
		return "", err
	}
	return "BKG-" + s, nil
}

// Sequential formats a counter value as <scope>-<year>-<6-digit zero padded>. Values
// that would not fit the pattern return ErrSequenceExhausted.
func Sequential(scope string, year int, n int64) (string, error) {
	if n < 1 || n > MaxSequence {
		return "", fmt.Errorf("%w: %s %d reached %d", ErrSequenceExhausted, scope, year, n)
	}
	return fmt.Sprintf("%s-%04d-%06d", scope, year, n), nil
}

// IsOrderID reports whether s is a well-formed order id.
func IsOrderID(s string) bool { return ordPattern.MatchString(s) }

// IsInvoiceNumber reports whether s is a well-formed invoice number.
func IsInvoiceNumber(s string) bool { return invPattern.MatchString(s) }

// IsReceiptNumber reports whether s is a well-formed receipt number.
func IsReceiptNumber(s string) bool { return rcpPattern.MatchString(s) }

// IsLicenceKey reports whether s is a well-formed licence key.
func IsLicenceKey(s string) bool { return licPattern.MatchString(s) }

// IsBookingRef reports whether s is a well-formed booking reference.
func IsBookingRef(s string) bool { return bkgPattern.MatchString(s) }

func randomString(n int) (string, error) {
	max := big.NewInt(int64(len(alphabet)))
	out := make([]byte, n)
	for i := range out {
		v, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		out[i] = alphabet[v.Int64()]
	}
	return string(out), nil
}
