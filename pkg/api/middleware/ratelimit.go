package middleware

import (
	"math"
	"net/http"
	"strconv"

	"github.com/goclaw/mnemo/config"
	"github.com/goclaw/mnemo/pkg/api/response"
	"golang.org/x/time/rate"
)

// RateLimit throttles the API with one token bucket shared by all
// clients. Probes are never throttled.
func RateLimit(cfg config.RateLimitConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !cfg.Enabled || cfg.RequestsPerSecond <= 0 {
			return next
		}
		burst := cfg.Burst
		if burst <= 0 {
			burst = int(math.Ceil(cfg.RequestsPerSecond))
		}
		limiter := rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/health" || r.URL.Path == "/ready" {
				next.ServeHTTP(w, r)
				return
			}
			res := limiter.Reserve()
			if delay := res.Delay(); delay > 0 {
				res.Cancel()
				w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(delay.Seconds()))))
				response.Error(w,
					http.StatusTooManyRequests,
					response.ErrCodeTooManyRequests,
					"Rate limit exceeded",
					GetRequestID(r.Context()),
				)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
