package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/goclaw/mnemo/pkg/api/response"
	"github.com/goclaw/mnemo/pkg/version"
)

const readinessTimeout = 2 * time.Second

// Check is one readiness dependency, such as the store or Redis.
type Check struct {
	Name  string
	Check func(ctx context.Context) error
}

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	checks  []Check
	state   func() uint64
	started time.Time
}

// NewHealthHandler creates a new health handler. stateVersion may be nil.
func NewHealthHandler(stateVersion func() uint64, checks ...Check) *HealthHandler {
	return &HealthHandler{checks: checks, state: stateVersion, started: time.Now()}
}

// Health handles the /health endpoint (liveness probe).
// @Summary Liveness probe
// @Tags health
// @Produce json
// @Success 200 {object} map[string]string
// @Router /health [get]
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Ready handles the /ready endpoint (readiness probe).
// @Summary Readiness probe
// @Tags health
// @Produce json
// @Success 200 {object} map[string]any
// @Failure 503 {object} map[string]any
// @Router /ready [get]
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	results, ok := h.runChecks(r.Context())
	status := http.StatusOK
	if !ok {
		status = http.StatusServiceUnavailable
	}
	response.JSON(w, status, map[string]any{"ready": ok, "checks": results})
}

// Status handles the /status endpoint (detailed status).
// @Summary Build and runtime status
// @Tags health
// @Produce json
// @Success 200 {object} map[string]any
// @Router /status [get]
func (h *HealthHandler) Status(w http.ResponseWriter, r *http.Request) {
	results, ok := h.runChecks(r.Context())
	body := map[string]any{
		"build":          version.Get(),
		"uptime_seconds": int64(time.Since(h.started).Seconds()),
		"ready":          ok,
		"checks":         results,
	}
	if h.state != nil {
		body["state_version"] = h.state()
	}
	response.JSON(w, http.StatusOK, body)
}

func (h *HealthHandler) runChecks(ctx context.Context) (map[string]string, bool) {
	ctx, cancel := context.WithTimeout(ctx, readinessTimeout)
	defer cancel()

	results := make(map[string]string, len(h.checks))
	ok := true
	for _, c := range h.checks {
		if err := c.Check(ctx); err != nil {
			results[c.Name] = err.Error()
			ok = false
			continue
		}
		results[c.Name] = "ok"
	}
	return results, ok
}
