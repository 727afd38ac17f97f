package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/goclaw/mnemo/pkg/api/response"
	"github.com/goclaw/mnemo/pkg/logger"
)

func TestRecovery(t *testing.T) {
	var buf bytes.Buffer
	log := logger.NewWithWriter(&buf, logger.InfoLevel, "json")

	handler := RequestID()(Recovery(log)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("index corrupted")
	})))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil)
	req.Header.Set(RequestIDHeader, "req-panic")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
	var resp response.ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if resp.Error.Code != response.ErrCodeInternalServer {
		t.Errorf("code = %q", resp.Error.Code)
	}
	if resp.Error.RequestID != "req-panic" {
		t.Errorf("request_id = %q, want req-panic", resp.Error.RequestID)
	}
	if strings.Contains(resp.Error.Message, "index corrupted") {
		t.Error("panic value leaked to the client")
	}
	if !strings.Contains(buf.String(), "index corrupted") {
		t.Error("panic value missing from log")
	}
}

func TestRecovery_NoPanic(t *testing.T) {
	log := logger.NewWithWriter(&bytes.Buffer{}, logger.InfoLevel, "json")
	handler := Recovery(log)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Code != http.StatusAccepted {
		t.Errorf("status = %d, want 202", w.Code)
	}
}
