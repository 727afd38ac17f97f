package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/goclaw/mnemo/pkg/api/models"
	"github.com/goclaw/mnemo/pkg/api/response"
	"github.com/goclaw/mnemo/pkg/logger"
	"github.com/goclaw/mnemo/pkg/memory"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// MemoryHandler handles memory record endpoints.
type MemoryHandler struct {
	svc       MemoryService
	logger    logger.Logger
	validator *validator.Validate
	now       func() time.Time
}

// NewMemoryHandler creates a new memory handler.
func NewMemoryHandler(svc MemoryService, log logger.Logger) *MemoryHandler {
	return &MemoryHandler{
		svc:       svc,
		logger:    log,
		validator: validator.New(),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (h *MemoryHandler) view(m *memory.Memory) models.MemoryResponse {
	return models.MemoryResponse{Memory: m, Strength: h.svc.Strength(m)}
}

// Remember handles POST /api/v1/memories
// @Summary Store a memory
// @Tags memories
// @Accept json
// @Produce json
// @Param memory body models.RememberRequest true "Memory to store"
// @Success 201 {object} models.MemoryResponse
// @Failure 400 {object} response.ErrorResponse
// @Failure 503 {object} response.ErrorResponse "Index unavailable"
// @Router /api/v1/memories [post]
func (h *MemoryHandler) Remember(w http.ResponseWriter, r *http.Request) {
	var req models.RememberRequest
	if !decodeAndValidate(w, r, &req, h.validator) {
		return
	}

	m, err := h.svc.Remember(r.Context(), req.ToMemory())
	if err != nil {
		writeError(w, r, h.logger, "Failed to store memory", err)
		return
	}
	response.JSON(w, http.StatusCreated, h.view(m))
}

// List handles GET /api/v1/memories
// @Summary List memories
// @Tags memories
// @Produce json
// @Param scope query string false "session, project or user"
// @Param owner query string false "Owner id for the scope"
// @Param memory_type query string false "Memory type"
// @Param status query string false "active, archived or forgotten"
// @Param tag query string false "Tag"
// @Param limit query int false "Page size"
// @Param offset query int false "Page offset"
// @Success 200 {object} models.MemoryListResponse
// @Failure 400 {object} response.ErrorResponse
// @Router /api/v1/memories [get]
func (h *MemoryHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := memory.Filter{
		Scope:  memory.Scope(q.Get("scope")),
		Owner:  q.Get("owner"),
		Type:   memory.MemoryType(q.Get("memory_type")),
		Status: memory.Status(q.Get("status")),
		Tag:    q.Get("tag"),
	}
	if filter.Scope != "" && !filter.Scope.Valid() ||
		filter.Type != "" && !filter.Type.Valid() ||
		filter.Status != "" && !filter.Status.Valid() {
		response.Error(w, http.StatusBadRequest, response.ErrCodeValidationFailed,
			"Unknown scope, memory_type or status", getRequestID(r.Context()))
		return
	}

	limit, err := queryInt(r, "limit", defaultListLimit)
	if err != nil {
		writeError(w, r, h.logger, "Invalid list parameters", err)
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		writeError(w, r, h.logger, "Invalid list parameters", err)
		return
	}
	if limit == 0 || limit > maxListLimit {
		limit = maxListLimit
	}
	filter.Limit, filter.Offset = limit, offset

	list, err := h.svc.List(r.Context(), filter)
	if err != nil {
		writeError(w, r, h.logger, "Failed to list memories", err)
		return
	}
	out := models.MemoryListResponse{
		Memories: make([]models.MemoryResponse, 0, len(list)),
		Limit:    limit,
		Offset:   offset,
	}
	for _, m := range list {
		out.Memories = append(out.Memories, h.view(m))
	}
	out.Count = len(out.Memories)
	response.JSON(w, http.StatusOK, out)
}

// Get handles GET /api/v1/memories/{id}
// @Summary Get a memory
// @Tags memories
// @Produce json
// @Param id path string true "Memory ID"
// @Success 200 {object} models.MemoryResponse
// @Failure 404 {object} response.ErrorResponse
// @Router /api/v1/memories/{id} [get]
func (h *MemoryHandler) Get(w http.ResponseWriter, r *http.Request) {
	m, err := h.svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.logger, "Failed to get memory", err)
		return
	}
	response.JSON(w, http.StatusOK, h.view(m))
}

// Forget handles DELETE /api/v1/memories/{id}
// @Summary Forget a memory
// @Description Soft-deletes the memory. Forgotten memories never come back.
// @Tags memories
// @Produce json
// @Param id path string true "Memory ID"
// @Success 200 {object} models.MemoryResponse
// @Failure 404 {object} response.ErrorResponse
// @Failure 409 {object} response.ErrorResponse "Already forgotten"
// @Router /api/v1/memories/{id} [delete]
func (h *MemoryHandler) Forget(w http.ResponseWriter, r *http.Request) {
	m, err := h.svc.Forget(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.logger, "Failed to forget memory", err)
		return
	}
	response.JSON(w, http.StatusOK, h.view(m))
}

// Reactivate handles POST /api/v1/memories/{id}/reactivate
// @Summary Reactivate an archived memory
// @Tags memories
// @Produce json
// @Param id path string true "Memory ID"
// @Success 200 {object} models.MemoryResponse
// @Failure 404 {object} response.ErrorResponse
// @Failure 409 {object} response.ErrorResponse "Memory is not archived"
// @Router /api/v1/memories/{id}/reactivate [post]
func (h *MemoryHandler) Reactivate(w http.ResponseWriter, r *http.Request) {
	m, err := h.svc.Reactivate(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.logger, "Failed to reactivate memory", err)
		return
	}
	response.JSON(w, http.StatusOK, h.view(m))
}

// Tag handles POST /api/v1/memories/{id}/tags
// @Summary Add tags to a memory
// @Tags memories
// @Accept json
// @Produce json
// @Param id path string true "Memory ID"
// @Param tags body models.TagRequest true "Tags to add"
// @Success 200 {object} models.MemoryResponse
// @Failure 400 {object} response.ErrorResponse
// @Failure 404 {object} response.ErrorResponse
// @Router /api/v1/memories/{id}/tags [post]
func (h *MemoryHandler) Tag(w http.ResponseWriter, r *http.Request) {
	var req models.TagRequest
	if !decodeAndValidate(w, r, &req, h.validator) {
		return
	}
	m, err := h.svc.Tag(r.Context(), chi.URLParam(r, "id"), req.Tags...)
	if err != nil {
		writeError(w, r, h.logger, "Failed to tag memory", err)
		return
	}
	response.JSON(w, http.StatusOK, h.view(m))
}

// SetImportance handles PUT /api/v1/memories/{id}/importance
// @Summary Set memory importance
// @Tags memories
// @Accept json
// @Produce json
// @Param id path string true "Memory ID"
// @Param importance body models.ImportanceRequest true "New importance"
// @Success 200 {object} models.MemoryResponse
// @Failure 400 {object} response.ErrorResponse
// @Failure 404 {object} response.ErrorResponse
// @Router /api/v1/memories/{id}/importance [put]
func (h *MemoryHandler) SetImportance(w http.ResponseWriter, r *http.Request) {
	var req models.ImportanceRequest
	if !decodeAndValidate(w, r, &req, h.validator) {
		return
	}
	m, err := h.svc.SetImportance(r.Context(), chi.URLParam(r, "id"), *req.Importance)
	if err != nil {
		writeError(w, r, h.logger, "Failed to set importance", err)
		return
	}
	response.JSON(w, http.StatusOK, h.view(m))
}

// Strength handles GET /api/v1/memories/{id}/strength
// @Summary Current strength of a memory
// @Tags memories
// @Produce json
// @Param id path string true "Memory ID"
// @Success 200 {object} models.StrengthResponse
// @Failure 404 {object} response.ErrorResponse
// @Router /api/v1/memories/{id}/strength [get]
func (h *MemoryHandler) Strength(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s, err := h.svc.ComputeStrength(r.Context(), id)
	if err != nil {
		writeError(w, r, h.logger, "Failed to compute strength", err)
		return
	}
	response.JSON(w, http.StatusOK, models.StrengthResponse{ID: id, Strength: s, ComputedAt: h.now()})
}

// Stats handles GET /api/v1/stats
// @Summary Memory counts
// @Tags memories
// @Produce json
// @Success 200 {object} memory.Stats
// @Router /api/v1/stats [get]
func (h *MemoryHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.Stats(r.Context())
	if err != nil {
		writeError(w, r, h.logger, "Failed to compute stats", err)
		return
	}
	response.JSON(w, http.StatusOK, stats)
}
