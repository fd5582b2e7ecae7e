package middleware

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"cache-service/internal/common/logging"
)

const (
	RequestIDHeader = "X-Request-ID"
	TenantHeader    = "X-Tenant-ID"
)

// RequestID attaches the caller's X-Request-ID, or a fresh one, to the
// request context and echoes it back.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(RequestIDHeader))
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(logging.ContextWithRequestID(r.Context(), id)))
	})
}

// Tenant scopes the request to the tenant named in X-Tenant-ID. Requests
// without the header use the default tenant.
func Tenant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tenant := strings.TrimSpace(r.Header.Get(TenantHeader))
		if tenant == "" {
			next.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r.WithContext(logging.ContextWithTenant(r.Context(), tenant)))
	})
}
