package middleware

import (
	"net/http"

	"github.com/nkiryanov/kaizen/internal/handlers/render"
)

type errorLogger interface {
	Error(msg string, args ...any)
}

func Recover(l errorLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				l.Error("panic", "error", rec, "uri", r.RequestURI, "request_id", RequestIDFromContext(r.Context()))
				render.Fail(w, "Something went wrong internally.", http.StatusInternalServerError)
			}()

			next.ServeHTTP(w, r)
		})
	}
}
