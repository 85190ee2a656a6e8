// Package service verifies provider webhooks and applies them exactly once through the ledger.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"storefront/backend/internal/notification"
	orderdomain "storefront/backend/internal/order/domain"
	orderrepo "storefront/backend/internal/order/repository"
	"storefront/backend/internal/payment"
	"storefront/backend/internal/platform/metrics"
	"storefront/backend/internal/webhook/domain"
	"storefront/backend/internal/webhook/repository"
)

// ErrInFlight is returned when a concurrent delivery of the same event is being applied.
var ErrInFlight = domain.ErrInFlight

// OrderTx is the order persistence used inside the ledger transaction.
type OrderTx interface {
	MarkPaidTx(ctx context.Context, tx *sqlx.Tx, in orderrepo.MarkPaidInput) (*orderdomain.PaidResult, error)
	CloseUnpaidTx(ctx context.Context, tx *sqlx.Tx, tenantID, orderID string, status orderdomain.OrderStatus, now time.Time) (bool, error)
}

// Config holds processor settings.
type Config struct {
	Secret string
	// ProcessTimeout bounds processing after the body is read. Processing is detached
	// from the client connection.
	ProcessTimeout time.Duration
}

// Result is the acknowledgement returned to the provider.
type Result struct {
	Received   bool `json:"received"`
	Idempotent bool `json:"idempotent,omitempty"`
}

// Processor handles payment provider webhooks.
type Processor struct {
	gateway  payment.Gateway
	ledger   repository.Ledger
	orders   OrderTx
	notifier notification.Notifier
	cfg      Config
	log      *zap.Logger
	now      func() time.Time
}

// NewProcessor returns a webhook processor. notifier may be nil.
func NewProcessor(gateway payment.Gateway, ledger repository.Ledger, orders OrderTx, notifier notification.Notifier, cfg Config, log *zap.Logger) *Processor {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.ProcessTimeout <= 0 {
		cfg.ProcessTimeout = 30 * time.Second
	}
	return &Processor{gateway: gateway, ledger: ledger, orders: orders, notifier: notifier, cfg: cfg, log: log, now: time.Now}
}

// checkoutObject is what the processor reads from a checkout session payload.
type checkoutObject struct {
	OrderID         string
	TenantID        string
	OrdID           string
	PaymentIntentID string
	CustomerEmail   string
}

func parseCheckoutObject(obj []byte) checkoutObject {
	pi := gjson.GetBytes(obj, "payment_intent")
	if pi.IsObject() {
		pi = pi.Get("id")
	}
	email := gjson.GetBytes(obj, "customer_details.email").String()
	if email == "" {
		email = gjson.GetBytes(obj, "customer_email").String()
	}
	return checkoutObject{
		OrderID:         gjson.GetBytes(obj, "metadata.orderId").String(),
		TenantID:        gjson.GetBytes(obj, "metadata.tenantId").String(),
		OrdID:           gjson.GetBytes(obj, "metadata.ordId").String(),
		PaymentIntentID: pi.String(),
		CustomerEmail:   email,
	}
}

// Handle verifies rawBody and applies the event at most once. tenantID is the tenant
// resolved for the request. A bad signature returns payment.ErrSignatureInvalid and
// touches nothing.
func (p *Processor) Handle(ctx context.Context, tenantID string, rawBody []byte, signature string) (*Result, error) {
	ev, err := p.gateway.VerifyWebhookSignature(rawBody, signature, p.cfg.Secret)
	if err != nil {
		metrics.WebhookOutcome("unknown", "invalid_signature")
		p.log.Warn("webhook signature rejected", zap.String("tenant_id", tenantID), zap.Error(err))
		return nil, payment.ErrSignatureInvalid
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.cfg.ProcessTimeout)
	defer cancel()
	ctx, span := otel.Tracer("storefront/backend/webhook").Start(ctx, "webhook.process")
	defer span.End()
	span.SetAttributes(attribute.String("webhook.event_id", ev.ID), attribute.String("webhook.event_type", ev.Type))

	existing, err := p.ledger.Get(ctx, payment.ProviderStripe, ev.ID)
	if err != nil {
		span.SetStatus(codes.Error, "ledger lookup")
		return nil, fmt.Errorf("ledger lookup: %w", err)
	}
	if existing.Processed() {
		metrics.WebhookOutcome(ev.Type, "duplicate")
		return &Result{Received: true, Idempotent: true}, nil
	}

	obj := parseCheckoutObject(ev.Object)
	row := &domain.Event{
		ID:              uuid.New().String(),
		TenantID:        optional(tenantID),
		Provider:        payment.ProviderStripe,
		ProviderEventID: ev.ID,
		EventType:       ev.Type,
		OrderID:         optional(obj.OrderID),
		Payload:         []byte(ev.Object),
		CreatedAt:       p.now().UTC(),
	}
	if _, err := p.ledger.Record(ctx, row); err != nil {
		span.SetStatus(codes.Error, "ledger record")
		return nil, err
	}

	res, err := p.apply(ctx, tenantID, ev.ID, ev.Type, obj)
	switch {
	case errors.Is(err, domain.ErrAlreadyProcessed):
		metrics.WebhookOutcome(ev.Type, "duplicate")
		return &Result{Received: true, Idempotent: true}, nil
	case errors.Is(err, domain.ErrInFlight):
		metrics.WebhookOutcome(ev.Type, "in_flight")
		return nil, ErrInFlight
	case err != nil:
		metrics.WebhookOutcome(ev.Type, "error")
		span.SetStatus(codes.Error, "apply")
		p.log.Error("webhook processing failed",
			zap.String("event_id", ev.ID),
			zap.String("event_type", ev.Type),
			zap.String("tenant_id", tenantID),
			zap.Error(err),
		)
		return nil, err
	}
	metrics.WebhookOutcome(ev.Type, "processed")
	p.afterCommit(ctx, obj, res)
	return &Result{Received: true}, nil
}

// Replay re-applies an unprocessed ledger row. Used by the reconciler for rows left
// behind by a crashed delivery. It returns domain.ErrInFlight when another worker holds
// the row and domain.ErrAlreadyProcessed when a delivery finished it first; nothing
// was applied in either case.
func (p *Processor) Replay(ctx context.Context, e *domain.Event) error {
	tenantID := ""
	if e.TenantID != nil {
		tenantID = *e.TenantID
	}
	obj := parseCheckoutObject(e.Payload)
	res, err := p.apply(ctx, tenantID, e.ProviderEventID, e.EventType, obj)
	if err != nil {
		return err
	}
	p.log.Info("webhook event replayed", zap.String("event_id", e.ProviderEventID), zap.String("event_type", e.EventType))
	p.afterCommit(ctx, obj, res)
	return nil
}

func (p *Processor) apply(ctx context.Context, tenantID, eventID, eventType string, obj checkoutObject) (*orderdomain.PaidResult, error) {
	var res *orderdomain.PaidResult
	err := p.ledger.Claim(ctx, payment.ProviderStripe, eventID, func(tx *sqlx.Tx) error {
		res = nil
		if !p.targetsOrder(tenantID, eventID, eventType, obj) {
			return nil
		}
		now := p.now().UTC()
		switch eventType {
		case domain.TypeCheckoutCompleted:
			r, err := p.orders.MarkPaidTx(ctx, tx, orderrepo.MarkPaidInput{
				TenantID:        obj.TenantID,
				OrderID:         obj.OrderID,
				PaymentIntentID: obj.PaymentIntentID,
				Now:             now,
			})
			if err != nil {
				return err
			}
			p.logPaidOutcome(eventID, obj, r)
			res = r
		case domain.TypeCheckoutExpired:
			return p.closeUnpaid(ctx, tx, eventID, obj, orderdomain.OrderCancelled, now)
		case domain.TypeCheckoutAsyncPaymentFailed:
			return p.closeUnpaid(ctx, tx, eventID, obj, orderdomain.OrderFailed, now)
		}
		return nil
	})
	return res, err
}

// targetsOrder reports whether the event should touch an order. The signed metadata
// names the order and its tenant; the tenant resolved from the request host is only
// recorded on the ledger row, since one provider account serves every tenant.
// Missing metadata is logged and the event is only marked processed.
func (p *Processor) targetsOrder(tenantID, eventID, eventType string, obj checkoutObject) bool {
	switch eventType {
	case domain.TypeCheckoutCompleted, domain.TypeCheckoutExpired, domain.TypeCheckoutAsyncPaymentFailed:
	default:
		p.log.Debug("webhook event ignored", zap.String("event_id", eventID), zap.String("event_type", eventType))
		return false
	}
	if obj.OrderID == "" || obj.TenantID == "" {
		p.log.Warn("webhook event without order metadata", zap.String("event_id", eventID), zap.String("event_type", eventType))
		return false
	}
	if tenantID != "" && obj.TenantID != tenantID {
		p.log.Info("webhook delivered through another tenant's host",
			zap.String("event_id", eventID),
			zap.String("request_tenant_id", tenantID),
			zap.String("metadata_tenant_id", obj.TenantID),
			zap.String("order_id", obj.OrderID),
		)
	}
	return true
}

func (p *Processor) closeUnpaid(ctx context.Context, tx *sqlx.Tx, eventID string, obj checkoutObject, status orderdomain.OrderStatus, now time.Time) error {
	changed, err := p.orders.CloseUnpaidTx(ctx, tx, obj.TenantID, obj.OrderID, status, now)
	if err != nil {
		return err
	}
	p.log.Info("order closed by webhook",
		zap.String("event_id", eventID),
		zap.String("order_id", obj.OrderID),
		zap.String("status", string(status)),
		zap.Bool("changed", changed),
	)
	return nil
}

func (p *Processor) logPaidOutcome(eventID string, obj checkoutObject, r *orderdomain.PaidResult) {
	fields := []zap.Field{
		zap.String("event_id", eventID),
		zap.String("tenant_id", obj.TenantID),
		zap.String("order_id", obj.OrderID),
		zap.String("outcome", string(r.Outcome)),
	}
	switch r.Outcome {
	case orderdomain.OutcomePaid:
		p.log.Info("order paid", append(fields, zap.Int("entitlements", r.Entitlements), zap.Int("licences", len(r.Licences)))...)
	case orderdomain.OutcomeAlreadyPaid:
		p.log.Info("order already paid", fields...)
	case orderdomain.OutcomeNotPayable:
		p.log.Warn("payment for an order that is no longer payable", fields...)
	default:
		p.log.Warn("payment could not be applied", fields...)
	}
}

func (p *Processor) afterCommit(ctx context.Context, obj checkoutObject, res *orderdomain.PaidResult) {
	if res == nil || res.Outcome != orderdomain.OutcomePaid || res.Receipt == nil || p.notifier == nil || obj.CustomerEmail == "" {
		return
	}
	msg := notification.OrderPaid(res.Order.TenantID, obj.CustomerEmail, res.Order.OrdID, res.Receipt.RcpNumber, res.Order.Total, res.Order.Currency)
	if err := p.notifier.Notify(ctx, msg); err != nil {
		p.log.Warn("receipt notification failed", zap.String("order_id", res.Order.ID), zap.Error(err))
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
