package handlers

import (
	"net/http"

	"github.com/samber/lo"
)

// HealthCheck reports the state of every registered dependency. The HTTP
// status follows the result so load balancers can act on it.
// @Summary Health check
// @Tags health
// @Produce json
// @Router /health [get]
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string, len(h.checks))
	for name, check := range h.checks {
		if err := check(); err != nil {
			checks[name] = err.Error()
			continue
		}
		checks[name] = "ok"
	}

	healthy := lo.EveryBy(lo.Values(checks), func(s string) bool { return s == "ok" })
	status, code, httpStatus := "healthy", CodeSuccess, http.StatusOK
	if !healthy {
		status, code, httpStatus = "unhealthy", CodeSystem, http.StatusServiceUnavailable
	}

	h.writeStatus(w, httpStatus, Envelope{
		Code:    code,
		Message: status,
		Data:    map[string]interface{}{"status": status, "checks": checks},
	})
}
