package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/nkiryanov/kaizen/internal/metrics"
)

// Count and time requests labeled by matched route pattern
// Has to wrap the mux directly so the pattern is known after serving
func Metrics(m *metrics.HTTP) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := newStatusWriter(w)

			next.ServeHTTP(sw, r)

			path := r.Pattern
			if path == "" {
				path = "unmatched"
			}
			m.Observe(r.Method, path, strconv.Itoa(sw.status), time.Since(start))
		})
	}
}
