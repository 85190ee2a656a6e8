// Package reconcile repairs state that request handling can leave behind: webhook
// deliveries that crashed mid-processing, checkouts that were never paid, and
// expired sessions.
package reconcile

import (
	"context"
	"errors"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	orderdomain "storefront/backend/internal/order/domain"
	"storefront/backend/internal/platform/metrics"
	webhookdomain "storefront/backend/internal/webhook/domain"
)

// Orders is the order persistence the reconciler needs.
type Orders interface {
	ListStalePending(ctx context.Context, before time.Time, limit int) ([]*orderdomain.Order, error)
	CloseUnpaid(ctx context.Context, tenantID, orderID string, status orderdomain.OrderStatus) (bool, error)
}

// Ledger lists webhook rows that were recorded but never processed.
type Ledger interface {
	ListUnprocessed(ctx context.Context, before time.Time, limit int) ([]*webhookdomain.Event, error)
}

// Replayer re-applies a recorded webhook event.
type Replayer interface {
	Replay(ctx context.Context, e *webhookdomain.Event) error
}

// Sessions prunes expired sessions.
type Sessions interface {
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

type Config struct {
	// PendingTimeout is how long an order may stay PENDING_PAYMENT before it is cancelled.
	PendingTimeout time.Duration
	// StuckAfter is how old an unprocessed webhook row must be before it is replayed.
	StuckAfter time.Duration
	BatchSize  int
}

// Report counts what one pass changed.
type Report struct {
	ReplayedWebhooks int   `json:"replayedWebhooks"`
	SkippedReplays   int   `json:"skippedReplays"`
	FailedReplays    int   `json:"failedReplays"`
	CancelledOrders  int   `json:"cancelledOrders"`
	ExpiredSessions  int64 `json:"expiredSessions"`
}

type Reconciler struct {
	orders   Orders
	ledger   Ledger
	replayer Replayer
	sessions Sessions
	cfg      Config
	log      *zap.Logger
	now      func() time.Time
}

func New(orders Orders, ledger Ledger, replayer Replayer, sessions Sessions, cfg Config, log *zap.Logger) *Reconciler {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.PendingTimeout <= 0 {
		cfg.PendingTimeout = 24 * time.Hour
	}
	if cfg.StuckAfter <= 0 {
		cfg.StuckAfter = 10 * time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	return &Reconciler{orders: orders, ledger: ledger, replayer: replayer, sessions: sessions, cfg: cfg, log: log, now: time.Now}
}

// RunOnce runs a full pass. Stuck webhooks are replayed before stale orders are
// cancelled so a payment that did arrive is applied first. Step failures are joined
// and the remaining steps still run.
func (r *Reconciler) RunOnce(ctx context.Context) (Report, error) {
	var rep Report
	now := r.now().UTC()
	var errs []error

	if err := r.replayStuck(ctx, now, &rep); err != nil {
		errs = append(errs, err)
	}
	if err := r.cancelStale(ctx, now, &rep); err != nil {
		errs = append(errs, err)
	}
	if r.sessions != nil {
		n, err := r.sessions.DeleteExpired(ctx, now)
		if err != nil {
			errs = append(errs, err)
		}
		rep.ExpiredSessions = n
		metrics.ReconcileAction("session_expired", int(n))
	}

	r.log.Info("reconcile pass finished",
		zap.Int("replayed_webhooks", rep.ReplayedWebhooks),
		zap.Int("skipped_replays", rep.SkippedReplays),
		zap.Int("failed_replays", rep.FailedReplays),
		zap.Int("cancelled_orders", rep.CancelledOrders),
		zap.Int64("expired_sessions", rep.ExpiredSessions),
	)
	return rep, errors.Join(errs...)
}

func (r *Reconciler) replayStuck(ctx context.Context, now time.Time, rep *Report) error {
	if r.ledger == nil || r.replayer == nil {
		return nil
	}
	rows, err := r.ledger.ListUnprocessed(ctx, now.Add(-r.cfg.StuckAfter), r.cfg.BatchSize)
	if err != nil {
		return err
	}
	for _, e := range rows {
		err := r.replayer.Replay(ctx, e)
		if errors.Is(err, webhookdomain.ErrInFlight) || errors.Is(err, webhookdomain.ErrAlreadyProcessed) {
			// A live delivery owns or finished the row.
			rep.SkippedReplays++
			continue
		}
		if err != nil {
			rep.FailedReplays++
			r.log.Warn("webhook replay failed",
				zap.String("event_id", e.ProviderEventID),
				zap.String("event_type", e.EventType),
				zap.Error(err),
			)
			continue
		}
		rep.ReplayedWebhooks++
	}
	metrics.ReconcileAction("webhook_replayed", rep.ReplayedWebhooks)
	metrics.ReconcileAction("webhook_skipped", rep.SkippedReplays)
	return nil
}

func (r *Reconciler) cancelStale(ctx context.Context, now time.Time, rep *Report) error {
	if r.orders == nil {
		return nil
	}
	stale, err := r.orders.ListStalePending(ctx, now.Add(-r.cfg.PendingTimeout), r.cfg.BatchSize)
	if err != nil {
		return err
	}
	for _, o := range stale {
		changed, err := r.orders.CloseUnpaid(ctx, o.TenantID, o.ID, orderdomain.OrderCancelled)
		if err != nil {
			r.log.Warn("cancel stale order failed", zap.String("ord_id", o.OrdID), zap.Error(err))
			continue
		}
		if changed {
			rep.CancelledOrders++
			r.log.Info("stale order cancelled", zap.String("tenant_id", o.TenantID), zap.String("ord_id", o.OrdID))
		}
	}
	metrics.ReconcileAction("order_cancelled", rep.CancelledOrders)
	return nil
}

// Schedule registers RunOnce on a cron spec ("@every 5m" or a five-field expression).
// Overlapping runs are skipped. The caller starts and stops the returned cron.
func (r *Reconciler) Schedule(spec string) (*cron.Cron, error) {
	logger := cronLogger{r.log.Sugar()}
	c := cron.New(cron.WithLogger(logger), cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)))
	_, err := c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		if _, err := r.RunOnce(ctx); err != nil {
			r.log.Error("reconcile pass failed", zap.Error(err))
		}
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw("cron: "+msg, append(keysAndValues, "error", err)...)
}
