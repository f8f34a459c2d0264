package middleware

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/nkiryanov/kaizen/internal/handlers/render"
)

type limiter interface {
	Allow(ctx context.Context, key string) (bool, time.Duration, error)
}

// Limit requests per client ip
// Limiter failures let the request through, they are only logged
func RateLimit(lim limiter, l errorLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			allowed, retryAfter, err := lim.Allow(r.Context(), clientIP(r))
			if err != nil {
				l.Error("rate limiter failed", "error", err)
				next.ServeHTTP(w, r)
				return
			}

			if !allowed {
				w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(retryAfter.Seconds()))))
				render.Fail(w, "You are being rate limited.", http.StatusTooManyRequests)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
