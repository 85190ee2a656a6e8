// Package app builds the storefront object graph from Config. The HTTP server and the
// operator CLI share it so both run against the same repositories and services.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"storefront/backend/internal/audit"
	auditrepo "storefront/backend/internal/audit/repository"
	bookinghandler "storefront/backend/internal/booking/handler"
	bookingrepo "storefront/backend/internal/booking/repository"
	bookingservice "storefront/backend/internal/booking/service"
	"storefront/backend/internal/catalog"
	"storefront/backend/internal/config"
	"storefront/backend/internal/db"
	healthhandler "storefront/backend/internal/health/handler"
	identityhandler "storefront/backend/internal/identity/handler"
	identityservice "storefront/backend/internal/identity/service"
	licencehandler "storefront/backend/internal/licence/handler"
	licencerepo "storefront/backend/internal/licence/repository"
	licenceservice "storefront/backend/internal/licence/service"
	"storefront/backend/internal/notification"
	orderhandler "storefront/backend/internal/order/handler"
	orderrepo "storefront/backend/internal/order/repository"
	orderservice "storefront/backend/internal/order/service"
	"storefront/backend/internal/payment"
	"storefront/backend/internal/platform/httpx"
	"storefront/backend/internal/platform/ratelimit"
	"storefront/backend/internal/policy/engine"
	"storefront/backend/internal/reconcile"
	"storefront/backend/internal/security"
	"storefront/backend/internal/server"
	sessionrepo "storefront/backend/internal/session/repository"
	telemetry "storefront/backend/internal/telemetry/otel"
	tenantrepo "storefront/backend/internal/tenant/repository"
	tenantservice "storefront/backend/internal/tenant/service"
	userrepo "storefront/backend/internal/user/repository"
	webhookhandler "storefront/backend/internal/webhook/handler"
	webhookrepo "storefront/backend/internal/webhook/repository"
	webhookservice "storefront/backend/internal/webhook/service"
)

// TokenIssuer is the issuer claim on tracking tokens and signed download URLs.
const TokenIssuer = "storefront"

// BookingRatePerMin caps public booking submissions per client IP.
const BookingRatePerMin = 5

// App is a fully wired storefront.
type App struct {
	Config     *config.Config
	Log        *zap.Logger
	DB         *sqlx.DB
	Redis      *redis.Client
	Telemetry  *telemetry.Providers
	Handler    http.Handler
	Reconciler *reconcile.Reconciler

	limiters []*ratelimit.Limiter
	async    *notification.Async
	kafka    *notification.KafkaPublisher
	stop     chan struct{}
}

// New opens the database (and Redis when configured), builds every service and the
// router. Close releases what New acquired.
func New(ctx context.Context, cfg *config.Config, log *zap.Logger) (_ *App, err error) {
	if cfg.DatabaseURL == "" {
		return nil, errors.New("app: DATABASE_URL is required")
	}
	if cfg.StripeSecretKey == "" {
		return nil, errors.New("app: STRIPE_SECRET_KEY is required")
	}
	a := &App{Config: cfg, Log: log, stop: make(chan struct{})}
	defer func() {
		if err != nil {
			_ = a.Close(context.Background())
		}
	}()

	a.Telemetry, err = telemetry.NewProviders(ctx, telemetry.Config{
		Endpoint:    cfg.OTLPEndpoint,
		ServiceName: "storefront-api",
		Insecure:    cfg.OTLPInsecure,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}
	a.Telemetry.SetGlobal()

	a.DB, err = db.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}

	var tenants tenantservice.Lookup = tenantrepo.NewPostgresRepository(a.DB)
	if cfg.RedisAddr != "" {
		a.Redis = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		perr := a.Redis.Ping(pingCtx).Err()
		cancel()
		if perr != nil {
			// The cache falls through to Postgres on errors, so a cold Redis is not fatal.
			log.Warn("redis unreachable at startup", zap.String("addr", cfg.RedisAddr), zap.Error(perr))
		}
		tenants = tenantrepo.NewCachedRepository(tenantrepo.NewPostgresRepository(a.DB), a.Redis, cfg.TenantCacheTTL(), log)
	}
	resolver := tenantservice.NewResolver(tenants, cfg.DevTenantKey)

	policy, err := engine.NewOPAEvaluator(ctx)
	if err != nil {
		return nil, fmt.Errorf("policy: %w", err)
	}

	notifier, err := a.buildNotifier(cfg, log)
	if err != nil {
		return nil, err
	}

	auditLogger := audit.Multi(
		audit.NewLogger(auditrepo.NewPostgresRepository(a.DB), httpx.ClientIPFrom, log),
		telemetry.NewAuditSink(a.Telemetry.LoggerProvider),
	)

	signer := security.NewSigner(cfg.SessionSecret, TokenIssuer)
	sessions := sessionrepo.NewPostgresRepository(a.DB)
	auth := identityservice.NewAuthService(
		userrepo.NewPostgresRepository(a.DB),
		sessions,
		security.NewHasher(cfg.BcryptCost),
		cfg.SessionTTL(),
		auditLogger,
		log,
	)

	gateway, err := payment.NewStripeGateway(payment.StripeConfig{
		SecretKey: cfg.StripeSecretKey,
		Timeout:   cfg.StripeTimeout(),
	})
	if err != nil {
		return nil, err
	}
	orders := orderrepo.NewPostgresRepository(a.DB)
	checkout := orderservice.NewService(orders, gateway, orderservice.Config{
		SuccessURL:      cfg.StripeSuccessURL,
		CancelURL:       cfg.StripeCancelURL,
		DefaultCurrency: cfg.DefaultCurrency,
		ProviderTimeout: cfg.StripeTimeout(),
	}, log)

	ledger := webhookrepo.NewPostgresLedger(a.DB)
	processor := webhookservice.NewProcessor(gateway, ledger, orders, notifier,
		webhookservice.Config{Secret: cfg.StripeWebhookSecret}, log)

	licences := licenceservice.NewService(licencerepo.NewPostgresRepository(a.DB), signer,
		cfg.DownloadBaseURL, cfg.SignedURLTTL(), log)

	services := catalog.Default()
	bookings := bookingservice.NewService(bookingrepo.NewPostgresRepository(a.DB), services, signer, policy, notifier,
		bookingservice.Config{SiteURL: cfg.SiteURL, Inbox: cfg.BookingsInbox}, log)

	a.Reconciler = reconcile.New(orders, ledger, processor, sessions, reconcile.Config{
		PendingTimeout: cfg.PendingOrderTimeout(),
		StuckAfter:     cfg.WebhookStuckAfter(),
	}, log)

	proxies, err := httpx.ParseTrustedProxies(cfg.TrustedProxiesList())
	if err != nil {
		return nil, err
	}
	loginLimiter := ratelimit.PerMinute(cfg.LoginRatePerMin)
	bookingLimiter := ratelimit.PerMinute(BookingRatePerMin)
	a.limiters = []*ratelimit.Limiter{loginLimiter, bookingLimiter}

	var cache healthhandler.Pinger
	if a.Redis != nil {
		cache = healthhandler.RedisPinger(a.Redis)
	}

	a.Handler = server.NewRouter(server.Deps{
		Log:            log,
		Tenants:        resolver,
		Sessions:       auth,
		Authz:          policy,
		Audit:          auditLogger,
		Auth:           identityhandler.NewServer(auth, identityhandler.CookieOptions{Secure: cfg.CookieSecure, SameSite: cfg.SameSite()}),
		Orders:         orderhandler.NewServer(checkout),
		Webhooks:       webhookhandler.NewServer(processor),
		Licences:       licencehandler.NewServer(licences),
		Bookings:       bookinghandler.NewServer(bookings),
		Catalog:        services,
		Health:         healthhandler.NewServer(a.DB, cache, policy),
		LoginLimiter:   loginLimiter,
		BookingLimiter: bookingLimiter,
		TrustedProxies: proxies,
	})
	return a, nil
}

// buildNotifier picks Kafka when brokers are configured, then SMTP, then the log.
// Whatever is picked runs behind Async so request handlers never wait on mail.
func (a *App) buildNotifier(cfg *config.Config, log *zap.Logger) (notification.Notifier, error) {
	var next notification.Notifier
	switch {
	case len(cfg.KafkaBrokersList()) > 0:
		a.kafka = notification.NewKafkaPublisher(cfg.KafkaBrokersList(), cfg.NotifyKafkaTopic)
		if a.kafka == nil {
			return nil, errors.New("app: NOTIFY_KAFKA_TOPIC is required with KAFKA_BROKERS")
		}
		next = a.kafka
		log.Info("notifications via kafka", zap.String("topic", cfg.NotifyKafkaTopic))
	case cfg.SMTPHost != "":
		mailer, err := notification.NewSMTPMailer(SMTPConfig(cfg))
		if err != nil {
			return nil, fmt.Errorf("smtp: %w", err)
		}
		next = mailer
		log.Info("notifications via smtp", zap.String("host", cfg.SMTPHost))
	default:
		next = notification.LogNotifier{Log: log}
		log.Warn("no mail transport configured; notifications are only logged")
	}
	a.async = notification.NewAsync(next, log)
	return a.async, nil
}

// SMTPConfig maps the mail settings of cfg.
func SMTPConfig(cfg *config.Config) notification.SMTPConfig {
	return notification.SMTPConfig{
		Host: cfg.SMTPHost,
		Port: cfg.SMTPPort,
		User: cfg.SMTPUser,
		Pass: cfg.SMTPPass,
		From: cfg.MailFrom,
	}
}

// StartBackground starts rate limiter cleanup. It stops on Close.
func (a *App) StartBackground() {
	for _, l := range a.limiters {
		l.StartCleanup(time.Minute, a.stop)
	}
}

// Close drains pending notifications, flushes telemetry and closes connections.
// It is safe on a partially built App.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	select {
	case <-a.stop:
	default:
		close(a.stop)
	}
	if a.async != nil {
		if err := a.async.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("notifications: %w", err))
		}
	}
	if a.kafka != nil {
		if err := a.kafka.Close(); err != nil {
			errs = append(errs, fmt.Errorf("kafka: %w", err))
		}
	}
	if a.Telemetry != nil {
		if err := a.Telemetry.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("telemetry: %w", err))
		}
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis: %w", err))
		}
	}
	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("database: %w", err))
		}
	}
	return errors.Join(errs...)
}
