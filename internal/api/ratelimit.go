package api

import (
	"math"
	"net"
	"net/http"
	"strconv"

	domainerrors "github.com/bpm4b/bpm4b/internal/errors"
	"github.com/bpm4b/bpm4b/internal/http/response"
	"github.com/bpm4b/bpm4b/internal/logger"
	"github.com/bpm4b/bpm4b/internal/ratelimit"
)

// RateLimitMiddleware creates a middleware that rate limits requests by IP.
// Returns 429 Too Many Requests with a Retry-After header when the limit is
// exceeded.
func RateLimitMiddleware(limiter *ratelimit.KeyedRateLimiter, log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := getClientIP(r)

			ok, retryAfter := limiter.Allow(key)
			if !ok {
				seconds := int(math.Ceil(retryAfter.Seconds()))
				if seconds < 1 {
					seconds = 1
				}
				log.Warn("Rate limit exceeded",
					"ip", key,
					"path", r.URL.Path,
					"retry_after", seconds,
				)
				w.Header().Set("Retry-After", strconv.Itoa(seconds))
				response.HandleError(w,
					domainerrors.RateLimited("too many conversions, please try again later").
						WithDetails(map[string]int{"retry_after_seconds": seconds}),
					log.Logger)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// getClientIP extracts the client IP from the request. middleware.RealIP has
// already folded X-Forwarded-For and X-Real-IP into RemoteAddr.
func getClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
