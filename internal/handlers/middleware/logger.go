package middleware

import (
	"net/http"
	"time"
)

type logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Access log: server errors at error level, client errors at warn
func Logger(l logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := newStatusWriter(w)

			next.ServeHTTP(sw, r)

			log := l.Info
			switch {
			case sw.status >= http.StatusInternalServerError:
				log = l.Error
			case sw.status >= http.StatusBadRequest:
				log = l.Warn
			}

			log(
				"HTTP request served",
				"method", r.Method,
				"path", r.URL.Path,
				"status", sw.status,
				"size", sw.size,
				"duration", time.Since(start),
				"remote", clientIP(r),
				"request_id", RequestIDFromContext(r.Context()),
			)
		})
	}
}
