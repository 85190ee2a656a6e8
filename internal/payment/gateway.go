// Package payment adapts the external payment provider. It carries no business logic.
package payment

import (
	"context"
	"encoding/json"
	"errors"
)

// ProviderStripe is the provider name stored on payments and ledger rows.
const ProviderStripe = "stripe"

// ErrSignatureInvalid is returned when a webhook payload fails signature verification.
var ErrSignatureInvalid = errors.New("payment: webhook signature invalid")

// LineItem is one product line sent to the hosted checkout page.
type LineItem struct {
	ReleaseID string
	Name      string
	Quantity  int64
	UnitPrice int64
	Currency  string
}

// CheckoutSession is the provider's hosted checkout session.
type CheckoutSession struct {
	SessionID       string
	URL             string
	PaymentIntentID string
}

// Event is a verified webhook event. Object is the raw data.object payload.
type Event struct {
	ID     string
	Type   string
	Object json.RawMessage
	Raw    []byte
}

// Gateway creates checkout sessions and verifies webhook payloads.
type Gateway interface {
	CreateCheckoutSession(ctx context.Context, items []LineItem, successURL, cancelURL string, metadata map[string]string) (*CheckoutSession, error)
	VerifyWebhookSignature(rawBody []byte, signatureHeader, secret string) (*Event, error)
}
