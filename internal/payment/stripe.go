package payment

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/checkout/session"
	"github.com/stripe/stripe-go/v82/webhook"
)

// StripeConfig configures the Stripe gateway.
type StripeConfig struct {
	SecretKey string
	// Timeout bounds a single API call, including connection setup.
	Timeout time.Duration
	// BaseURL overrides the API endpoint (tests, stripe-mock). Empty uses api.stripe.com.
	BaseURL string
}

// StripeGateway implements Gateway with stripe-go.
type StripeGateway struct {
	sessions session.Client
}

// NewStripeGateway returns a gateway with its own backend. Network retries are
// disabled so the caller's timeout is the upper bound of a checkout call.
func NewStripeGateway(cfg StripeConfig) (*StripeGateway, error) {
	if strings.TrimSpace(cfg.SecretKey) == "" {
		return nil, errors.New("payment: stripe secret key is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	backendCfg := &stripe.BackendConfig{
		HTTPClient:        &http.Client{Timeout: cfg.Timeout},
		MaxNetworkRetries: stripe.Int64(0),
	}
	if cfg.BaseURL != "" {
		backendCfg.URL = stripe.String(cfg.BaseURL)
	}
	backend := stripe.GetBackendWithConfig(stripe.APIBackend, backendCfg)
	return &StripeGateway{sessions: session.Client{B: backend, Key: cfg.SecretKey}}, nil
}

// CreateCheckoutSession creates a payment-mode hosted checkout session. metadata is
// attached to both the session and its payment intent.
func (g *StripeGateway) CreateCheckoutSession(ctx context.Context, items []LineItem, successURL, cancelURL string, metadata map[string]string) (*CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL: stripe.String(successURL),
		CancelURL:  stripe.String(cancelURL),
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			Metadata: metadata,
		},
	}
	params.Context = ctx
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}
	for _, it := range items {
		name := it.Name
		if name == "" {
			name = "Release " + it.ReleaseID
		}
		params.LineItems = append(params.LineItems, &stripe.CheckoutSessionLineItemParams{
			Quantity: stripe.Int64(it.Quantity),
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(strings.ToLower(it.Currency)),
				UnitAmount: stripe.Int64(it.UnitPrice),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(name),
				},
			},
		})
	}

	cs, err := g.sessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("stripe: create checkout session: %w", err)
	}
	out := &CheckoutSession{SessionID: cs.ID, URL: cs.URL}
	if cs.PaymentIntent != nil {
		out.PaymentIntentID = cs.PaymentIntent.ID
	}
	return out, nil
}

// VerifyWebhookSignature checks the Stripe-Signature header against secret and parses the event.
func (g *StripeGateway) VerifyWebhookSignature(rawBody []byte, signatureHeader, secret string) (*Event, error) {
	if strings.TrimSpace(signatureHeader) == "" || secret == "" {
		return nil, ErrSignatureInvalid
	}
	ev, err := webhook.ConstructEventWithOptions(rawBody, signatureHeader, secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	}
	out := &Event{ID: ev.ID, Type: string(ev.Type), Raw: rawBody}
	if ev.Data != nil {
		out.Object = ev.Data.Raw
	}
	return out, nil
}
