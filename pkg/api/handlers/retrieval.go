package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/goclaw/mnemo/pkg/api/models"
	"github.com/goclaw/mnemo/pkg/api/response"
	"github.com/goclaw/mnemo/pkg/logger"
	"github.com/goclaw/mnemo/pkg/memory"
)

// RetrievalHandler handles ranked retrieval and feedback.
type RetrievalHandler struct {
	svc       RetrievalService
	logger    logger.Logger
	validator *validator.Validate
}

// NewRetrievalHandler creates a new retrieval handler.
func NewRetrievalHandler(svc RetrievalService, log logger.Logger) *RetrievalHandler {
	return &RetrievalHandler{svc: svc, logger: log, validator: validator.New()}
}

// Retrieve handles POST /api/v1/retrieve
// @Summary Retrieve and rank memories across scopes
// @Description Scores the query in each requested scope and fuses the per-scope lists.
// @Tags retrieval
// @Accept json
// @Produce json
// @Param query body models.RetrieveRequest true "Query"
// @Success 200 {object} memory.RetrieveResponse
// @Failure 400 {object} response.ErrorResponse
// @Failure 503 {object} response.ErrorResponse "Index unavailable"
// @Router /api/v1/retrieve [post]
func (h *RetrievalHandler) Retrieve(w http.ResponseWriter, r *http.Request) {
	var req models.RetrieveRequest
	if !decodeAndValidate(w, r, &req, h.validator) {
		return
	}
	resp, err := h.svc.RetrieveAndRank(r.Context(), req.ToQuery())
	if err != nil {
		writeError(w, r, h.logger, "Retrieval failed", err)
		return
	}
	if resp.Results == nil {
		resp.Results = []memory.RankedResult{}
	}
	response.JSON(w, http.StatusOK, resp)
}

// Feedback handles POST /api/v1/retrievals/{id}/feedback
// @Summary Record feedback on a retrieval
// @Description Feedback is accepted once per retrieval. Used ids strengthen the memories they name.
// @Tags retrieval
// @Accept json
// @Produce json
// @Param id path string true "Retrieval log ID"
// @Param feedback body models.FeedbackRequest true "Feedback"
// @Success 200 {object} memory.RetrievalLogEntry
// @Failure 404 {object} response.ErrorResponse
// @Failure 409 {object} response.ErrorResponse "Feedback already recorded"
// @Router /api/v1/retrievals/{id}/feedback [post]
func (h *RetrievalHandler) Feedback(w http.ResponseWriter, r *http.Request) {
	var req models.FeedbackRequest
	if !decodeAndValidate(w, r, &req, h.validator) {
		return
	}
	entry, err := h.svc.Feedback(r.Context(), memory.FeedbackRequest{
		LogID:     chi.URLParam(r, "id"),
		Useful:    req.Useful,
		UsedIDs:   req.UsedIDs,
		SessionID: req.SessionID,
	})
	if err != nil {
		writeError(w, r, h.logger, "Failed to record feedback", err)
		return
	}
	response.JSON(w, http.StatusOK, entry)
}
