// Package server assembles the HTTP API from the feature handlers.
package server

import (
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"storefront/backend/internal/audit"
	bookinghandler "storefront/backend/internal/booking/handler"
	"storefront/backend/internal/catalog"
	healthhandler "storefront/backend/internal/health/handler"
	identityhandler "storefront/backend/internal/identity/handler"
	licencehandler "storefront/backend/internal/licence/handler"
	orderhandler "storefront/backend/internal/order/handler"
	"storefront/backend/internal/platform/httpx"
	"storefront/backend/internal/platform/metrics"
	"storefront/backend/internal/platform/ratelimit"
	"storefront/backend/internal/server/middleware"
	userdomain "storefront/backend/internal/user/domain"
	webhookhandler "storefront/backend/internal/webhook/handler"
)

// Deps holds the handlers and cross-cutting services the router wires together.
type Deps struct {
	Log *zap.Logger
	// Tenants resolves the request host. Every /api route except /api/health needs a tenant.
	Tenants middleware.TenantResolver
	// Sessions turns the session cookie into a principal.
	Sessions middleware.SessionResolver
	// Authz answers role checks for the back office.
	Authz middleware.RoleAuthorizer
	// Audit records state-changing requests made by signed-in principals. If nil, nothing is audited.
	Audit audit.AuditLogger

	Auth     *identityhandler.Server
	Orders   *orderhandler.Server
	Webhooks *webhookhandler.Server
	Licences *licencehandler.Server
	Bookings *bookinghandler.Server
	Catalog  *catalog.Catalog
	Health   *healthhandler.Server

	// LoginLimiter and BookingLimiter throttle per client IP. Nil disables the limit.
	LoginLimiter   *ratelimit.Limiter
	BookingLimiter *ratelimit.Limiter
	// TrustedProxies may report the client address in X-Forwarded-For. Nil trusts none.
	TrustedProxies *httpx.TrustedProxies
}

func limited(l *ratelimit.Limiter, h http.HandlerFunc) http.Handler {
	if l == nil {
		return h
	}
	return l.Handler(h)
}

// NewRouter returns the API handler. Routes:
//
//	GET  /metrics, /api/health                                   public, no tenant
//	POST /api/auth/login (limited), /api/auth/logout; GET /api/auth/me
//	POST /api/checkout/start; POST /api/webhooks/stripe
//	GET  /api/orders[/{ordId}], /api/invoices/{invNumber}, /api/receipts/{rcpNumber}
//	GET  /api/licences[/{licKey}]; POST /api/licences/validate
//	GET  /api/account/downloads; POST /api/account/downloads/{releaseId}/signed-url
//	GET  /api/services; POST /api/bookings (limited); GET /api/bookings/track
//	GET/PATCH /api/admin/bookings[/{bkgRef}]                     STAFF, ADMIN
//	GET  /api/admin/health                                       ADMIN
func NewRouter(d Deps) http.Handler {
	log := d.Log
	if log == nil {
		log = zap.NewNop()
	}
	auditLogger := d.Audit
	if auditLogger == nil {
		auditLogger = audit.Nop{}
	}

	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(w, req, httpx.NotFound("NOT_FOUND", "Route not found"))
	})
	r.Use(
		middleware.RequestID,
		middleware.ClientIP(d.TrustedProxies),
		middleware.Recover(log),
		middleware.AccessLog(log),
		middleware.Tracing,
		metrics.InstrumentHandler,
	)

	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/api/health", d.Health.Live).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.Use(
		middleware.Tenant(d.Tenants, log),
		middleware.AttachSession(d.Sessions, log),
		middleware.Audit(auditLogger),
	)

	api.Handle("/auth/login", limited(d.LoginLimiter, d.Auth.Login)).Methods(http.MethodPost)
	api.HandleFunc("/auth/logout", d.Auth.Logout).Methods(http.MethodPost)
	api.HandleFunc("/auth/me", d.Auth.Me).Methods(http.MethodGet)

	api.HandleFunc("/checkout/start", d.Orders.StartCheckout).Methods(http.MethodPost)
	api.HandleFunc("/webhooks/stripe", d.Webhooks.Stripe).Methods(http.MethodPost)
	api.HandleFunc("/orders", d.Orders.ListOrders).Methods(http.MethodGet)
	api.HandleFunc("/orders/{ordId}", d.Orders.GetOrder).Methods(http.MethodGet)
	api.HandleFunc("/invoices/{invNumber}", d.Orders.GetInvoice).Methods(http.MethodGet)
	api.HandleFunc("/receipts/{rcpNumber}", d.Orders.GetReceipt).Methods(http.MethodGet)

	api.HandleFunc("/licences", d.Licences.ListLicences).Methods(http.MethodGet)
	api.HandleFunc("/licences/validate", d.Licences.ValidateLicence).Methods(http.MethodPost)
	api.HandleFunc("/licences/{licKey}", d.Licences.GetLicence).Methods(http.MethodGet)
	api.HandleFunc("/account/downloads", d.Licences.ListDownloads).Methods(http.MethodGet)
	api.HandleFunc("/account/downloads/{releaseId}/signed-url", d.Licences.SignDownload).Methods(http.MethodPost)

	api.Handle("/services", d.Catalog.Handler()).Methods(http.MethodGet)
	api.Handle("/bookings", limited(d.BookingLimiter, d.Bookings.Create)).Methods(http.MethodPost)
	api.HandleFunc("/bookings/track", d.Bookings.Track).Methods(http.MethodGet)

	staff := middleware.RequireRole(d.Authz, log, userdomain.RoleStaff, userdomain.RoleAdmin)
	admin := middleware.RequireRole(d.Authz, log, userdomain.RoleAdmin)
	api.Handle("/admin/bookings", staff(http.HandlerFunc(d.Bookings.List))).Methods(http.MethodGet)
	api.Handle("/admin/bookings/{bkgRef}", staff(http.HandlerFunc(d.Bookings.Get))).Methods(http.MethodGet)
	api.Handle("/admin/bookings/{bkgRef}", staff(http.HandlerFunc(d.Bookings.UpdateStatus))).Methods(http.MethodPatch)
	api.Handle("/admin/health", admin(http.HandlerFunc(d.Health.Report))).Methods(http.MethodGet)

	return r
}
