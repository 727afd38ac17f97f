package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
)

type recordedRequest struct {
	method, path, status string
}

type mockMetricsRecorder struct {
	mu          sync.Mutex
	requests    []recordedRequest
	activeConns int
	peakConns   int
}

func (m *mockMetricsRecorder) RecordHTTPRequestContext(_ context.Context, method, path, status string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, recordedRequest{method, path, status})
}

func (m *mockMetricsRecorder) IncActiveConnections() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.activeConns++
	if m.activeConns > m.peakConns {
		m.peakConns = m.activeConns
	}
}

func (m *mockMetricsRecorder) DecActiveConnections() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.activeConns--
}

func TestMetrics_UsesRoutePattern(t *testing.T) {
	rec := &mockMetricsRecorder{}
	r := chi.NewRouter()
	r.Use(Metrics(rec))
	r.Get("/api/v1/memories/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	for _, id := range []string{"a", "b", "c"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/memories/"+id, nil))
	}
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nowhere", nil))

	if len(rec.requests) != 4 {
		t.Fatalf("recorded %d requests, want 4", len(rec.requests))
	}
	for _, req := range rec.requests[:3] {
		if req.path != "/api/v1/memories/{id}" || req.status != "404" {
			t.Errorf("recorded %+v, want route pattern with 404", req)
		}
	}
	if rec.requests[3].path != "unmatched" {
		t.Errorf("unrouted path = %q, want unmatched", rec.requests[3].path)
	}
	if rec.activeConns != 0 || rec.peakConns != 1 {
		t.Errorf("active = %d peak = %d, want 0 and 1", rec.activeConns, rec.peakConns)
	}
}

func TestMetrics_SkipsMetricsEndpoint(t *testing.T) {
	rec := &mockMetricsRecorder{}
	handler := Metrics(rec)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if len(rec.requests) != 0 {
		t.Errorf("recorded %d requests for /metrics, want 0", len(rec.requests))
	}
}

func TestMetrics_RecordsPanicAs500(t *testing.T) {
	rec := &mockMetricsRecorder{}
	handler := Metrics(rec)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	func() {
		defer func() {
			if recover() == nil {
				t.Error("expected panic to propagate")
			}
		}()
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/v1/retrieve", nil))
	}()

	if len(rec.requests) != 1 || rec.requests[0].status != "500" {
		t.Fatalf("recorded %+v, want one 500", rec.requests)
	}
	if rec.activeConns != 0 {
		t.Errorf("active connections = %d after panic, want 0", rec.activeConns)
	}
}
