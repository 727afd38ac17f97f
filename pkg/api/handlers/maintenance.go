package handlers

import (
	"net/http"

	"github.com/goclaw/mnemo/pkg/api/models"
	"github.com/goclaw/mnemo/pkg/api/response"
	"github.com/goclaw/mnemo/pkg/logger"
	"github.com/goclaw/mnemo/pkg/memory"
)

const defaultQueueLimit = 100

// MaintenanceHandler exposes consolidation and evolution passes.
type MaintenanceHandler struct {
	svc    MaintenanceService
	logger logger.Logger
}

// NewMaintenanceHandler creates a new maintenance handler.
func NewMaintenanceHandler(svc MaintenanceService, log logger.Logger) *MaintenanceHandler {
	return &MaintenanceHandler{svc: svc, logger: log}
}

// RunConsolidation handles POST /api/v1/consolidation/run
// @Summary Run a consolidation pass
// @Description Promotes, archives and merges memories. A failed item does not stop the pass.
// @Tags maintenance
// @Produce json
// @Success 200 {object} memory.ConsolidationSummary
// @Router /api/v1/consolidation/run [post]
func (h *MaintenanceHandler) RunConsolidation(w http.ResponseWriter, r *http.Request) {
	summary, err := h.svc.RunConsolidationPass(r.Context())
	if err != nil {
		writeError(w, r, h.logger, "Consolidation pass failed", err)
		return
	}
	response.JSON(w, http.StatusOK, summary)
}

// ListQueue handles GET /api/v1/consolidation/queue
// @Summary List consolidation queue items
// @Tags maintenance
// @Produce json
// @Param status query string false "pending, done or failed" default(pending)
// @Param limit query int false "Maximum items"
// @Success 200 {object} models.QueueResponse
// @Router /api/v1/consolidation/queue [get]
func (h *MaintenanceHandler) ListQueue(w http.ResponseWriter, r *http.Request) {
	status := memory.QueueStatus(r.URL.Query().Get("status"))
	switch status {
	case "":
		status = memory.QueuePending
	case memory.QueuePending, memory.QueueDone, memory.QueueFailed:
	default:
		response.Error(w, http.StatusBadRequest, response.ErrCodeValidationFailed,
			"status must be pending, done or failed", getRequestID(r.Context()))
		return
	}
	limit, err := queryInt(r, "limit", defaultQueueLimit)
	if err != nil {
		writeError(w, r, h.logger, "Invalid queue parameters", err)
		return
	}

	items, err := h.svc.ListQueue(r.Context(), status, limit)
	if err != nil {
		writeError(w, r, h.logger, "Failed to list queue", err)
		return
	}
	if items == nil {
		items = []*memory.QueueItem{}
	}
	response.JSON(w, http.StatusOK, models.QueueResponse{Items: items, Count: len(items)})
}

// RunEvolution handles POST /api/v1/evolution/run
// @Summary Run an evolution pass
// @Description Proposes bounded weight changes from the retrieval log and commits them if they validate.
// @Tags maintenance
// @Produce json
// @Success 200 {object} memory.EvolutionResult
// @Failure 409 {object} response.ErrorResponse "Concurrent state change"
// @Router /api/v1/evolution/run [post]
func (h *MaintenanceHandler) RunEvolution(w http.ResponseWriter, r *http.Request) {
	result, err := h.svc.RunEvolutionPass(r.Context())
	if err != nil {
		writeError(w, r, h.logger, "Evolution pass failed", err)
		return
	}
	response.JSON(w, http.StatusOK, result)
}

// State handles GET /api/v1/evolution/state
// @Summary Current ranking parameters
// @Tags maintenance
// @Produce json
// @Success 200 {object} memory.EvolutionState
// @Router /api/v1/evolution/state [get]
func (h *MaintenanceHandler) State(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, http.StatusOK, h.svc.State())
}

// Rollback handles POST /api/v1/evolution/rollback
// @Summary Restore the previous ranking parameters
// @Tags maintenance
// @Produce json
// @Success 200 {object} memory.EvolutionState
// @Failure 409 {object} response.ErrorResponse "No history"
// @Router /api/v1/evolution/rollback [post]
func (h *MaintenanceHandler) Rollback(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.RollbackEvolution(r.Context())
	if err != nil {
		writeError(w, r, h.logger, "Rollback failed", err)
		return
	}
	response.JSON(w, http.StatusOK, st)
}
