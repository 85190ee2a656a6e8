// Package notification delivers customer and staff emails. Delivery is best-effort:
// callers never fail a request because a notification could not be sent.
package notification

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Message kinds.
const (
	KindOrderPaid       = "order.paid"
	KindBookingCustomer = "booking.created.customer"
	KindBookingInbox    = "booking.created.inbox"
)

// Message is one email. It is also the Kafka payload consumed by cmd/worker.
type Message struct {
	Kind     string   `json:"kind"`
	TenantID string   `json:"tenantId"`
	To       []string `json:"to"`
	Subject  string   `json:"subject"`
	Body     string   `json:"body"`
}

// Notifier sends a message.
type Notifier interface {
	Notify(ctx context.Context, msg Message) error
}

// LogNotifier only logs messages. Used when neither Kafka nor SMTP is configured.
type LogNotifier struct {
	Log *zap.Logger
}

func (n LogNotifier) Notify(ctx context.Context, msg Message) error {
	log := n.Log
	if log == nil {
		log = zap.L()
	}
	log.Info("notification (not delivered)",
		zap.String("kind", msg.Kind),
		zap.String("tenant_id", msg.TenantID),
		zap.String("to", strings.Join(msg.To, ",")),
		zap.String("subject", msg.Subject),
	)
	return nil
}

// sendTimeout bounds a single background delivery.
const sendTimeout = 10 * time.Second

// Async delivers messages on background goroutines so callers are never blocked.
// Failures are logged. Close waits for in-flight deliveries.
type Async struct {
	next Notifier
	log  *zap.Logger
	wg   sync.WaitGroup
}

// NewAsync wraps next for fire-and-forget delivery.
func NewAsync(next Notifier, log *zap.Logger) *Async {
	if log == nil {
		log = zap.NewNop()
	}
	return &Async{next: next, log: log}
}

// Notify starts delivery and returns immediately. The request context is detached
// so a finished request does not abort the send.
func (a *Async) Notify(ctx context.Context, msg Message) error {
	if a == nil || a.next == nil || len(msg.To) == 0 {
		return nil
	}
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sendTimeout)
		defer cancel()
		if err := a.next.Notify(sendCtx, msg); err != nil {
			a.log.Warn("notification: async send failed",
				zap.String("kind", msg.Kind),
				zap.String("tenant_id", msg.TenantID),
				zap.Error(err),
			)
		}
	}()
	return nil
}

// Close waits for in-flight deliveries or until ctx is done.
func (a *Async) Close(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
