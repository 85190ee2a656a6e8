// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// HTTPAddr is the address the HTTP server listens on (e.g. :4000).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// DatabaseURL is the Postgres DSN.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// Env is the application environment ("development", "production", "test").
	Env string `mapstructure:"APP_ENV"`

	// SessionSecret signs booking tracking tokens and download URLs. At least 16 characters.
	SessionSecret string `mapstructure:"SESSION_SECRET"`
	// SessionTTLRaw is the session lifetime (e.g. "168h").
	SessionTTLRaw string `mapstructure:"SESSION_TTL"`
	// CookieSecure marks the session cookie Secure. Forced on in production.
	CookieSecure bool `mapstructure:"COOKIE_SECURE"`
	// CookieSameSite is one of lax, strict, none.
	CookieSameSite string `mapstructure:"COOKIE_SAMESITE"`
	// BcryptCost is the bcrypt cost factor (4–31); default 12.
	BcryptCost int `mapstructure:"BCRYPT_COST"`
	// LoginRatePerMin caps login attempts per client IP per minute.
	LoginRatePerMin int `mapstructure:"LOGIN_RATE_PER_MIN"`
	// TrustedProxies is a comma-separated list of CIDRs or IPs of reverse proxies whose
	// X-Forwarded-For entries are believed. Empty means the TCP peer is the client.
	TrustedProxies string `mapstructure:"TRUSTED_PROXIES"`

	// DevTenantKey is the tenant used for localhost and 127.0.0.1 when no domain row matches.
	DevTenantKey string `mapstructure:"DEV_TENANT_KEY"`
	// RedisAddr enables the tenant lookup cache when set (e.g. localhost:6379).
	RedisAddr string `mapstructure:"REDIS_ADDR"`
	// TenantCacheTTLRaw is how long positive tenant lookups stay cached.
	TenantCacheTTLRaw string `mapstructure:"TENANT_CACHE_TTL"`

	StripeSecretKey     string `mapstructure:"STRIPE_SECRET_KEY"`
	StripeWebhookSecret string `mapstructure:"STRIPE_WEBHOOK_SECRET"`
	StripeSuccessURL    string `mapstructure:"STRIPE_SUCCESS_URL"`
	StripeCancelURL     string `mapstructure:"STRIPE_CANCEL_URL"`
	// StripeTimeoutRaw bounds a single provider call (e.g. "10s").
	StripeTimeoutRaw string `mapstructure:"STRIPE_TIMEOUT"`
	// DefaultCurrency is used when a checkout request omits currency.
	DefaultCurrency string `mapstructure:"DEFAULT_CURRENCY"`

	// KafkaBrokers is a comma-separated list of brokers. When set, notifications go through Kafka.
	KafkaBrokers string `mapstructure:"KAFKA_BROKERS"`
	// NotifyKafkaTopic is the topic carrying outbound email messages.
	NotifyKafkaTopic string `mapstructure:"NOTIFY_KAFKA_TOPIC"`
	// KafkaGroupID is the consumer group ID for the mail worker.
	KafkaGroupID string `mapstructure:"KAFKA_GROUP_ID"`

	SMTPHost string `mapstructure:"SMTP_HOST"`
	SMTPPort int    `mapstructure:"SMTP_PORT"`
	SMTPUser string `mapstructure:"SMTP_USER"`
	SMTPPass string `mapstructure:"SMTP_PASS"`
	MailFrom string `mapstructure:"MAIL_FROM"`
	// BookingsInbox receives a copy of every new booking.
	BookingsInbox string `mapstructure:"BOOKINGS_INBOX"`
	// SiteURL is the public storefront URL used in email links.
	SiteURL string `mapstructure:"SITE_URL"`
	// DownloadBaseURL prefixes signed download links.
	DownloadBaseURL string `mapstructure:"DOWNLOAD_BASE_URL"`
	// SignedURLTTLRaw is the lifetime of a signed download link.
	SignedURLTTLRaw string `mapstructure:"SIGNED_URL_TTL"`

	// ReconcileSchedule is a cron spec for the reconciliation job; empty disables it.
	ReconcileSchedule string `mapstructure:"RECONCILE_SCHEDULE"`
	// PendingOrderTimeoutRaw is the age after which unpaid orders are cancelled.
	PendingOrderTimeoutRaw string `mapstructure:"PENDING_ORDER_TIMEOUT"`
	// WebhookStuckAfterRaw is the age after which unprocessed ledger rows are retried.
	WebhookStuckAfterRaw string `mapstructure:"WEBHOOK_STUCK_AFTER"`

	// OTLPEndpoint is the OpenTelemetry collector endpoint; empty disables export.
	OTLPEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTLPInsecure bool   `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`

	LogLevel  string `mapstructure:"LOG_LEVEL"`
	LogFormat string `mapstructure:"LOG_FORMAT"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("HTTP_ADDR", ":4000")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("SESSION_SECRET", "")
	v.SetDefault("SESSION_TTL", "168h") // 7d
	v.SetDefault("COOKIE_SECURE", false)
	v.SetDefault("COOKIE_SAMESITE", "lax")
	v.SetDefault("BCRYPT_COST", 12)
	v.SetDefault("LOGIN_RATE_PER_MIN", 10)
	v.SetDefault("TRUSTED_PROXIES", "")
	v.SetDefault("DEV_TENANT_KEY", "primetech")
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("TENANT_CACHE_TTL", "5m")
	v.SetDefault("STRIPE_SECRET_KEY", "")
	v.SetDefault("STRIPE_WEBHOOK_SECRET", "")
	v.SetDefault("STRIPE_SUCCESS_URL", "http://localhost:3000/checkout/success")
	v.SetDefault("STRIPE_CANCEL_URL", "http://localhost:3000/checkout/cancel")
	v.SetDefault("STRIPE_TIMEOUT", "10s")
	v.SetDefault("DEFAULT_CURRENCY", "GBP")
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("NOTIFY_KAFKA_TOPIC", "storefront-mail")
	v.SetDefault("KAFKA_GROUP_ID", "storefront-mail-worker")
	v.SetDefault("SMTP_HOST", "")
	v.SetDefault("SMTP_PORT", 587)
	v.SetDefault("SMTP_USER", "")
	v.SetDefault("SMTP_PASS", "")
	v.SetDefault("MAIL_FROM", "no-reply@localhost")
	v.SetDefault("BOOKINGS_INBOX", "")
	v.SetDefault("SITE_URL", "http://localhost:3000")
	v.SetDefault("DOWNLOAD_BASE_URL", "http://localhost:4000/downloads")
	v.SetDefault("SIGNED_URL_TTL", "600s")
	v.SetDefault("RECONCILE_SCHEDULE", "@every 5m")
	v.SetDefault("PENDING_ORDER_TIMEOUT", "24h")
	v.SetDefault("WEBHOOK_STUCK_AFTER", "10m")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.HTTPAddr == "" {
		return nil, errors.New("config: HTTP_ADDR must be set")
	}
	if len(cfg.SessionSecret) < 16 {
		return nil, errors.New("config: SESSION_SECRET must be at least 16 characters")
	}

	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = 12
	}
	if cfg.BcryptCost < 4 || cfg.BcryptCost > 31 {
		return nil, errors.New("config: BCRYPT_COST must be between 4 and 31")
	}

	cfg.CookieSameSite = strings.ToLower(strings.TrimSpace(cfg.CookieSameSite))
	switch cfg.CookieSameSite {
	case "lax", "strict", "none":
	default:
		return nil, errors.New("config: COOKIE_SAMESITE must be lax, strict or none")
	}
	if cfg.IsProduction() {
		cfg.CookieSecure = true
	}
	if cfg.CookieSameSite == "none" && !cfg.CookieSecure {
		return nil, errors.New("config: COOKIE_SAMESITE=none requires COOKIE_SECURE=true")
	}

	cfg.DefaultCurrency = strings.ToUpper(strings.TrimSpace(cfg.DefaultCurrency))
	if len(cfg.DefaultCurrency) != 3 {
		return nil, errors.New("config: DEFAULT_CURRENCY must be a 3-letter ISO code")
	}

	return &cfg, nil
}

// IsProduction reports whether APP_ENV is production.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// SameSite maps CookieSameSite to the net/http constant.
func (c *Config) SameSite() http.SameSite {
	switch c.CookieSameSite {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteLaxMode
	}
}

// SessionTTL parses SessionTTLRaw. Returns 168h if unset or invalid.
func (c *Config) SessionTTL() time.Duration {
	return parseDuration(c.SessionTTLRaw, 168*time.Hour)
}

// TenantCacheTTL parses TenantCacheTTLRaw. Returns 5m if unset or invalid.
func (c *Config) TenantCacheTTL() time.Duration {
	return parseDuration(c.TenantCacheTTLRaw, 5*time.Minute)
}

// StripeTimeout parses StripeTimeoutRaw. Returns 10s if unset or invalid.
func (c *Config) StripeTimeout() time.Duration {
	return parseDuration(c.StripeTimeoutRaw, 10*time.Second)
}

// SignedURLTTL parses SignedURLTTLRaw. Returns 600s if unset or invalid.
func (c *Config) SignedURLTTL() time.Duration {
	return parseDuration(c.SignedURLTTLRaw, 600*time.Second)
}

// PendingOrderTimeout parses PendingOrderTimeoutRaw. Returns 24h if unset or invalid.
func (c *Config) PendingOrderTimeout() time.Duration {
	return parseDuration(c.PendingOrderTimeoutRaw, 24*time.Hour)
}

// WebhookStuckAfter parses WebhookStuckAfterRaw. Returns 10m if unset or invalid.
func (c *Config) WebhookStuckAfter() time.Duration {
	return parseDuration(c.WebhookStuckAfterRaw, 10*time.Minute)
}

// KafkaBrokersList returns Kafka broker addresses from the comma-separated config.
// Used to decide if notifications go through Kafka (non-empty list) and to create the producer.
func (c *Config) KafkaBrokersList() []string {
	if c == nil {
		return nil
	}
	return splitList(c.KafkaBrokers)
}

// TrustedProxiesList returns the configured proxy CIDRs.
func (c *Config) TrustedProxiesList() []string {
	if c == nil {
		return nil
	}
	return splitList(c.TrustedProxies)
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func parseDuration(raw string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil || d <= 0 {
		return def
	}
	return d
}
