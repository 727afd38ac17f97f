package middleware

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/goclaw/mnemo/pkg/api/response"
)

// Timeout bounds each request with a context deadline. Handlers observe
// the deadline through the request context; if one returns after the
// deadline without having written, the client gets a 504 envelope.
// Upgraded websocket connections are exempt.
func Timeout(timeout time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if timeout <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Upgrade") != "" {
				next.ServeHTTP(w, r)
				return
			}

			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()

			wrapped := newStatusWriter(w)
			next.ServeHTTP(wrapped, r.WithContext(ctx))

			if !wrapped.written && errors.Is(ctx.Err(), context.DeadlineExceeded) {
				response.Error(w,
					http.StatusGatewayTimeout,
					response.ErrCodeGatewayTimeout,
					"Request timeout",
					GetRequestID(r.Context()),
				)
			}
		})
	}
}
