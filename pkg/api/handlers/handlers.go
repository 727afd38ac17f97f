// Package handlers provides HTTP request handlers.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/goclaw/mnemo/pkg/api/middleware"
	"github.com/goclaw/mnemo/pkg/api/response"
	"github.com/goclaw/mnemo/pkg/logger"
	"github.com/goclaw/mnemo/pkg/memory"
)

// MemoryService is the part of the memory hub the memory endpoints use.
type MemoryService interface {
	Remember(ctx context.Context, req memory.RememberRequest) (*memory.Memory, error)
	Get(ctx context.Context, id string) (*memory.Memory, error)
	List(ctx context.Context, filter memory.Filter) ([]*memory.Memory, error)
	Forget(ctx context.Context, id string) (*memory.Memory, error)
	Reactivate(ctx context.Context, id string) (*memory.Memory, error)
	Tag(ctx context.Context, id string, tags ...string) (*memory.Memory, error)
	SetImportance(ctx context.Context, id string, importance float64) (*memory.Memory, error)
	Strength(m *memory.Memory) float64
	ComputeStrength(ctx context.Context, id string) (float64, error)
	Stats(ctx context.Context) (*memory.Stats, error)
}

// RetrievalService is the part of the memory hub the retrieval endpoints use.
type RetrievalService interface {
	RetrieveAndRank(ctx context.Context, req memory.RetrieveRequest) (*memory.RetrieveResponse, error)
	Feedback(ctx context.Context, req memory.FeedbackRequest) (*memory.RetrievalLogEntry, error)
}

// MaintenanceService is the part of the memory hub the consolidation and
// evolution endpoints use.
type MaintenanceService interface {
	RunConsolidationPass(ctx context.Context) (*memory.ConsolidationSummary, error)
	ListQueue(ctx context.Context, status memory.QueueStatus, limit int) ([]*memory.QueueItem, error)
	RunEvolutionPass(ctx context.Context) (*memory.EvolutionResult, error)
	RollbackEvolution(ctx context.Context) (*memory.EvolutionState, error)
	State() *memory.EvolutionState
}

func getRequestID(ctx context.Context) string {
	if id := middleware.GetRequestID(ctx); id != "" {
		return id
	}
	return "unknown"
}

// decodeAndValidate reads the JSON body into v and runs struct validation.
// It writes the error response itself and reports whether to continue.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, v any, validate *validator.Validate) bool {
	if err := response.Decode(r, v); err != nil {
		response.Error(w, http.StatusBadRequest, response.ErrCodeBadRequest, err.Error(), getRequestID(r.Context()))
		return false
	}
	if err := validate.Struct(v); err != nil {
		writeValidationError(w, r, err)
		return false
	}
	return true
}

func writeValidationError(w http.ResponseWriter, r *http.Request, err error) {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		response.Error(w, http.StatusBadRequest, response.ErrCodeValidationFailed, err.Error(), getRequestID(r.Context()))
		return
	}
	fields := make(map[string]any, len(verrs))
	for _, fe := range verrs {
		fields[fe.Namespace()] = fe.Tag()
	}
	response.ErrorWithDetails(w, http.StatusBadRequest, response.ErrCodeValidationFailed,
		"Request validation failed", map[string]any{"fields": fields}, getRequestID(r.Context()))
}

// writeError maps err onto the error envelope, logging the ones the
// client cannot fix.
func writeError(w http.ResponseWriter, r *http.Request, log logger.Logger, msg string, err error) {
	status := response.HTTPStatusFromError(err)
	if status >= http.StatusInternalServerError {
		log.ErrorContext(r.Context(), msg, "error", err, "request_id", getRequestID(r.Context()))
	}
	response.HandleError(w, err, getRequestID(r.Context()))
}

// queryInt parses a non-negative integer query parameter.
func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %s must be a non-negative integer", response.ErrInvalidInput, name)
	}
	return n, nil
}
