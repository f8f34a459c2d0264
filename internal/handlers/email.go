package handlers

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/nkiryanov/kaizen/internal/logger"
	"github.com/nkiryanov/kaizen/internal/service/auth"
)

// Reached from the link in email, so the browser is redirected to the client app instead of JSON reply
func handleVerifyEmail(as authService, clientURL string, l logger.Logger) http.Handler {
	clientURL = strings.TrimRight(clientURL, "/")
	signinURL := clientURL + "/auth/signin"
	failureURL := clientURL + "/auth/verification-failed"

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		access, err := as.VerifyEmail(r.Context(), q.Get("username"), q.Get("code"))
		switch {
		case errors.Is(err, auth.ErrMalformedVerification), errors.Is(err, auth.ErrVerificationFailed):
			http.Redirect(w, r, failureURL, http.StatusFound)
			return
		case err != nil:
			l.Error("Email verification failed", "username", q.Get("username"), "error", err)
			http.Redirect(w, r, failureURL, http.StatusFound)
			return
		}

		target := signinURL
		if access.Value != "" {
			target += "?" + url.Values{"token": {access.Value}}.Encode()
		}
		http.Redirect(w, r, target, http.StatusFound)
	})
}
