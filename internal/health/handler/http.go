// Package handler serves liveness and dependency health over HTTP.
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"

	"storefront/backend/internal/platform/httpx"
)

const checkTimeout = 2 * time.Second

// Pinger checks connectivity. *sqlx.DB satisfies it.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// PolicyChecker runs a probe decision against the policy engine.
type PolicyChecker interface {
	HealthCheck(ctx context.Context) error
}

type redisPinger struct {
	client *redis.Client
}

func (p redisPinger) PingContext(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

// RedisPinger adapts a redis client to Pinger. A nil client yields nil.
func RedisPinger(client *redis.Client) Pinger {
	if client == nil {
		return nil
	}
	return redisPinger{client: client}
}

// Server answers /api/health and /api/admin/health. Nil dependencies are skipped.
type Server struct {
	db     Pinger
	cache  Pinger
	policy PolicyChecker
}

func NewServer(db Pinger, cache Pinger, policy PolicyChecker) *Server {
	return &Server{db: db, cache: cache, policy: policy}
}

// Live handles GET /api/health. Only the database decides readiness.
func (s *Server) Live(w http.ResponseWriter, r *http.Request) {
	if s.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
		defer cancel()
		if err := s.db.PingContext(ctx); err != nil {
			httpx.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Report handles GET /api/admin/health with a per-dependency breakdown.
func (s *Server) Report(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{}
	healthy := true
	run := func(name string, fn func(context.Context) error) {
		ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			checks[name] = "error: " + err.Error()
			healthy = false
			return
		}
		checks[name] = "ok"
	}
	if s.db != nil {
		run("database", s.db.PingContext)
	}
	if s.cache != nil {
		run("cache", s.cache.PingContext)
	}
	if s.policy != nil {
		run("policy", s.policy.HealthCheck)
	}

	status, code := "ok", http.StatusOK
	if !healthy {
		status, code = "degraded", http.StatusServiceUnavailable
	}
	httpx.WriteJSON(w, code, map[string]any{"status": status, "checks": checks})
}
