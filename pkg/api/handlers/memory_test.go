package handlers

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goclaw/mnemo/pkg/api/models"
	"github.com/goclaw/mnemo/pkg/api/response"
	"github.com/goclaw/mnemo/pkg/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryHandler_Remember(t *testing.T) {
	f := newHandlerFixture(t)

	w := httptest.NewRecorder()
	f.memory.Remember(w, jsonRequest(t, http.MethodPost, "/api/v1/memories", map[string]any{
		"content":     "use make release to deploy the api",
		"memory_type": "procedural",
		"owners":      map[string]string{"session_id": "s1"},
		"tags":        []string{"deploy"},
	}))

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	got := decodeBody[models.MemoryResponse](t, w)
	assert.NotEmpty(t, got.ID)
	assert.Equal(t, memory.ScopeSession, got.Scope)
	assert.Equal(t, memory.TypeProcedural, got.Type)
	assert.Equal(t, models.DefaultImportance, got.Importance)
	assert.InDelta(t, models.DefaultImportance, got.Strength, 1e-3)
	assert.Equal(t, []string{"deploy"}, got.Tags)
}

func TestMemoryHandler_RememberRejectsBadInput(t *testing.T) {
	f := newHandlerFixture(t)

	tests := []struct {
		name     string
		body     string
		wantCode string
	}{
		{"malformed json", `{"content":`, response.ErrCodeBadRequest},
		{"unknown field", `{"content":"x","colour":"red"}`, response.ErrCodeBadRequest},
		{"missing content", `{"owners":{"session_id":"s1"}}`, response.ErrCodeValidationFailed},
		{"importance out of range", `{"content":"x","importance":1.5,"owners":{"session_id":"s1"}}`, response.ErrCodeValidationFailed},
		{"unknown scope", `{"content":"x","scope":"team","owners":{"session_id":"s1"}}`, response.ErrCodeValidationFailed},
		{"missing owner for scope", `{"content":"x","scope":"project","owners":{"session_id":"s1"}}`, response.ErrCodeBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			f.memory.Remember(w, jsonRequest(t, http.MethodPost, "/api/v1/memories", tt.body))
			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
			assert.Equal(t, tt.wantCode, errorCode(t, w))
		})
	}
}

func TestMemoryHandler_GetAndStrength(t *testing.T) {
	f := newHandlerFixture(t)
	m := f.remember(t, "the staging database is postgres 16")

	w := httptest.NewRecorder()
	f.memory.Get(w, withChiURLParam(httptest.NewRequest(http.MethodGet, "/", nil), "id", m.ID))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, m.Content, decodeBody[models.MemoryResponse](t, w).Content)

	w = httptest.NewRecorder()
	f.memory.Strength(w, withChiURLParam(httptest.NewRequest(http.MethodGet, "/", nil), "id", m.ID))
	require.Equal(t, http.StatusOK, w.Code)
	s := decodeBody[models.StrengthResponse](t, w)
	assert.Equal(t, m.ID, s.ID)
	assert.InDelta(t, 0.6, s.Strength, 1e-3)
	assert.False(t, s.ComputedAt.IsZero())

	w = httptest.NewRecorder()
	f.memory.Get(w, withChiURLParam(httptest.NewRequest(http.MethodGet, "/", nil), "id", "missing"))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, response.ErrCodeNotFound, errorCode(t, w))
}

func TestMemoryHandler_List(t *testing.T) {
	f := newHandlerFixture(t)
	for i := 0; i < 3; i++ {
		f.remember(t, fmt.Sprintf("note number %d", i))
	}

	w := httptest.NewRecorder()
	f.memory.List(w, httptest.NewRequest(http.MethodGet, "/api/v1/memories?scope=session&owner=s1&limit=2", nil))
	require.Equal(t, http.StatusOK, w.Code)
	page := decodeBody[models.MemoryListResponse](t, w)
	assert.Equal(t, 2, page.Count)
	assert.Equal(t, 2, page.Limit)

	w = httptest.NewRecorder()
	f.memory.List(w, httptest.NewRequest(http.MethodGet, "/api/v1/memories?owner=nobody", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Zero(t, decodeBody[models.MemoryListResponse](t, w).Count)

	for _, q := range []string{"status=deleted", "scope=team", "limit=-1", "offset=x"} {
		w = httptest.NewRecorder()
		f.memory.List(w, httptest.NewRequest(http.MethodGet, "/api/v1/memories?"+q, nil))
		assert.Equal(t, http.StatusBadRequest, w.Code, q)
	}
}

func TestMemoryHandler_Lifecycle(t *testing.T) {
	f := newHandlerFixture(t)
	m := f.remember(t, "remember to rotate the signing key")
	byID := func(method, body string) *http.Request {
		return withChiURLParam(jsonRequest(t, method, "/", body), "id", m.ID)
	}

	w := httptest.NewRecorder()
	f.memory.Tag(w, byID(http.MethodPost, `{"tags":["security","keys"]}`))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.ElementsMatch(t, []string{"security", "keys"}, decodeBody[models.MemoryResponse](t, w).Tags)

	w = httptest.NewRecorder()
	f.memory.Tag(w, byID(http.MethodPost, `{"tags":[]}`))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = httptest.NewRecorder()
	f.memory.SetImportance(w, byID(http.MethodPut, `{"importance":0.9}`))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 0.9, decodeBody[models.MemoryResponse](t, w).Importance)

	w = httptest.NewRecorder()
	f.memory.SetImportance(w, byID(http.MethodPut, `{}`))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = httptest.NewRecorder()
	f.memory.Reactivate(w, byID(http.MethodPost, ""))
	assert.Equal(t, http.StatusConflict, w.Code, "active memories cannot be reactivated")

	w = httptest.NewRecorder()
	f.memory.Forget(w, byID(http.MethodDelete, ""))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, memory.StatusForgotten, decodeBody[models.MemoryResponse](t, w).Status)

	w = httptest.NewRecorder()
	f.memory.Tag(w, byID(http.MethodPost, `{"tags":["late"]}`))
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, response.ErrCodeConflict, errorCode(t, w))

	w = httptest.NewRecorder()
	f.memory.Reactivate(w, byID(http.MethodPost, ""))
	assert.Equal(t, http.StatusConflict, w.Code, "forgotten is terminal")
}

func TestMemoryHandler_Stats(t *testing.T) {
	f := newHandlerFixture(t)
	f.remember(t, "first")
	f.remember(t, "second")

	w := httptest.NewRecorder()
	f.memory.Stats(w, httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil))
	require.Equal(t, http.StatusOK, w.Code)
	stats := decodeBody[memory.Stats](t, w)
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 2, stats.ByScope[memory.ScopeSession])
	assert.InDelta(t, 0.6, stats.AverageStrength, 1e-3)
}
