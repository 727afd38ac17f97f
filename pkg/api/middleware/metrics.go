package middleware

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
)

// MetricsRecorder defines the interface for recording HTTP metrics.
type MetricsRecorder interface {
	RecordHTTPRequestContext(ctx context.Context, method, path, status string, duration time.Duration)
	IncActiveConnections()
	DecActiveConnections()
}

// Metrics returns a middleware that records HTTP metrics. Requests are
// labelled with the chi route pattern so ids do not blow up cardinality.
func Metrics(recorder MetricsRecorder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.HasPrefix(r.URL.Path, "/metrics") {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			recorder.IncActiveConnections()
			defer recorder.DecActiveConnections()

			wrapped := newStatusWriter(w)
			record := func() {
				recorder.RecordHTTPRequestContext(r.Context(), r.Method, metricsRoute(r),
					strconv.Itoa(wrapped.statusCode), time.Since(start))
			}

			defer func() {
				if err := recover(); err != nil {
					wrapped.statusCode = http.StatusInternalServerError
					record()
					panic(err)
				}
			}()

			next.ServeHTTP(wrapped, r)
			record()
		})
	}
}

// metricsRoute is the matched route pattern, or "unmatched" for requests
// no route handled.
func metricsRoute(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if pattern := rc.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unmatched"
}
