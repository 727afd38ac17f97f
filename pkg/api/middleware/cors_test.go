package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goclaw/mnemo/config"
)

func TestCORS(t *testing.T) {
	cfg := config.CORSConfig{
		Enabled:        true,
		AllowedOrigins: []string{"https://console.example.com"},
		AllowedMethods: []string{"GET", "POST"},
		AllowedHeaders: []string{"Content-Type"},
		MaxAge:         600,
	}

	tests := []struct {
		name       string
		method     string
		origin     string
		preflight  bool
		wantStatus int
		wantOrigin string
	}{
		{name: "allowed origin", method: http.MethodGet, origin: "https://console.example.com", wantStatus: http.StatusOK, wantOrigin: "https://console.example.com"},
		{name: "disallowed origin passes without headers", method: http.MethodGet, origin: "https://evil.example.com", wantStatus: http.StatusOK},
		{name: "no origin", method: http.MethodGet, wantStatus: http.StatusOK},
		{name: "preflight", method: http.MethodOptions, origin: "https://console.example.com", preflight: true, wantStatus: http.StatusNoContent, wantOrigin: "https://console.example.com"},
		{name: "preflight from disallowed origin", method: http.MethodOptions, origin: "https://evil.example.com", preflight: true, wantStatus: http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := CORS(cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			}))
			req := httptest.NewRequest(tt.method, "/api/v1/memories", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			if tt.preflight {
				req.Header.Set("Access-Control-Request-Method", "POST")
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if got := w.Header().Get("Access-Control-Allow-Origin"); got != tt.wantOrigin {
				t.Errorf("Allow-Origin = %q, want %q", got, tt.wantOrigin)
			}
			if tt.wantOrigin != "" && w.Header().Get("Access-Control-Max-Age") != "600" {
				t.Errorf("Max-Age = %q, want 600", w.Header().Get("Access-Control-Max-Age"))
			}
		})
	}
}

func TestCORS_Disabled(t *testing.T) {
	handler := CORS(config.CORSConfig{Enabled: false, AllowedOrigins: []string{"*"}})(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://console.example.com")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("disabled CORS set Allow-Origin = %q", got)
	}
}
