package middleware

import (
	"net/http"
	"strings"

	"github.com/nkiryanov/kaizen/internal/handlers/render"
	"github.com/nkiryanov/kaizen/internal/handlers/userctx"
	"github.com/nkiryanov/kaizen/internal/models"
)

const bearerPrefix = "Bearer "

type accessVerifier interface {
	VerifyAccess(token string) (models.AccessClaims, bool)
}

// Require valid access token in "Authorization: Bearer <token>" header
// Verified claims are put to request context
func Auth(v accessVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := extractBearer(r.Header.Get("Authorization"))
			if !ok {
				render.Fail(w, "This endpoint is protected.", http.StatusUnauthorized)
				return
			}

			claims, ok := v.VerifyAccess(token)
			if !ok {
				render.Fail(w, "Token expired or invalid.", http.StatusUnauthorized)
				return
			}

			ctx := userctx.New(r.Context(), claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Allow request only if token owner is the user named by the path parameter
// Has to be wrapped by Auth
func Owner(param string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			username := userctx.Username(r.Context())
			if username == "" || username != r.PathValue(param) {
				render.Fail(w, "You do not have permission to complete this request.", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func extractBearer(header string) (string, bool) {
	token, ok := strings.CutPrefix(header, bearerPrefix)
	if !ok || token == "" {
		return "", false
	}
	return token, true
}
