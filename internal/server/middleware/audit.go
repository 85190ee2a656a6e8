package middleware

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"storefront/backend/internal/audit"
)

// Audit records one audit entry for each state-changing request that completes
// with a non-error status and has a signed-in principal. Reads are not audited.
func Audit(logger audit.AuditLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rec := &responseRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			switch r.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				return
			}
			p := PrincipalFrom(r.Context())
			if p == nil || rec.status >= 400 {
				return
			}
			tpl := r.URL.Path
			if route := mux.CurrentRoute(r); route != nil {
				if t, err := route.GetPathTemplate(); err == nil {
					tpl = t
				}
			}
			ar := audit.ParseRoute(r.Method, tpl)
			meta := r.URL.Path + " " + strconv.Itoa(rec.status)
			logger.LogEvent(r.Context(), p.TenantID, p.UserID, ar.Action, ar.Resource, meta)
		})
	}
}
