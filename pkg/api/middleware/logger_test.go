package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goclaw/mnemo/pkg/logger"
)

func TestLogger(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		wantLevel string
	}{
		{name: "success logs at info", status: http.StatusOK, wantLevel: "INFO"},
		{name: "client error logs at warn", status: http.StatusNotFound, wantLevel: "WARN"},
		{name: "server error logs at error", status: http.StatusServiceUnavailable, wantLevel: "ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			log := logger.NewWithWriter(&buf, logger.DebugLevel, "json")

			handler := RequestID()(Logger(log)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte("body"))
			})))

			req := httptest.NewRequest(http.MethodPost, "/api/v1/retrieve", nil)
			req.Header.Set(RequestIDHeader, "req-42")
			handler.ServeHTTP(httptest.NewRecorder(), req)

			var entry map[string]any
			if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
				t.Fatalf("log line is not JSON: %v: %s", err, buf.String())
			}
			if entry["level"] != tt.wantLevel {
				t.Errorf("level = %v, want %v", entry["level"], tt.wantLevel)
			}
			if entry["status"] != float64(tt.status) {
				t.Errorf("status = %v, want %d", entry["status"], tt.status)
			}
			if entry["request_id"] != "req-42" {
				t.Errorf("request_id = %v, want req-42", entry["request_id"])
			}
			if entry["size"] != float64(4) {
				t.Errorf("size = %v, want 4", entry["size"])
			}
			if entry["path"] != "/api/v1/retrieve" {
				t.Errorf("path = %v", entry["path"])
			}
		})
	}
}

func TestStatusWriter_KeepsFirstStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	w := newStatusWriter(rec)
	_, _ = w.Write([]byte("ok"))
	w.WriteHeader(http.StatusTeapot)

	if w.statusCode != http.StatusOK {
		t.Errorf("statusCode = %d, want 200 after implicit header", w.statusCode)
	}
	if w.Unwrap() != rec {
		t.Error("Unwrap() did not return the underlying writer")
	}
}
