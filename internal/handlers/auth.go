package handlers

import (
	"fmt"
	"net/http"

	"github.com/nkiryanov/kaizen/internal/handlers/render"
	"github.com/nkiryanov/kaizen/internal/models"
)

func handleSignup(as authService, ew *render.ErrorWriter) http.Handler {
	type request struct {
		Username string `json:"username" validate:"required,min=3,max=24"`
		Email    string `json:"email" validate:"required,email,max=320"`
		Password string `json:"password" validate:"required,min=8"`
	}
	type response struct {
		ObfuscatedEmail string `json:"obfuscatedEmail"`
		AccessToken     string `json:"accessToken"`
		RefreshToken    string `json:"refreshToken"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		result, err := as.Signup(r.Context(), data.Username, data.Email, data.Password)
		if err != nil {
			ew.Error(w, r, err)
			return
		}

		render.Success(w, http.StatusCreated,
			fmt.Sprintf("Account created, a verification link was sent to %s.", result.ObfuscatedEmail),
			response{
				ObfuscatedEmail: result.ObfuscatedEmail,
				AccessToken:     result.Tokens.Access.Value,
				RefreshToken:    result.Tokens.Refresh.Value,
			},
		)
	})
}

func handleSignin(as authService, ew *render.ErrorWriter) http.Handler {
	type request struct {
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"password" validate:"required,min=8"`
	}
	type response struct {
		AccessToken  string            `json:"accessToken"`
		RefreshToken string            `json:"refreshToken"`
		User         models.PublicUser `json:"user"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		result, err := as.Signin(r.Context(), data.Email, data.Password)
		if err != nil {
			ew.Error(w, r, err)
			return
		}

		if result.PendingVerification {
			render.Fail(w,
				fmt.Sprintf("Email not verified, check %s for a new verification link.", result.ObfuscatedEmail),
				http.StatusUnauthorized,
			)
			return
		}

		render.JSON(w, "Signed in.", response{
			AccessToken:  result.Tokens.Access.Value,
			RefreshToken: result.Tokens.Refresh.Value,
			User:         result.User,
		})
	})
}

func handleRefresh(as authService, ew *render.ErrorWriter) http.Handler {
	type request struct {
		Username     string `json:"username" validate:"required"`
		RefreshToken string `json:"refreshToken" validate:"required"`
	}
	type response struct {
		AccessToken  string `json:"accessToken"`
		RefreshToken string `json:"refreshToken"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		pair, err := as.RefreshAccess(r.Context(), data.Username, data.RefreshToken)
		if err != nil {
			ew.Error(w, r, err)
			return
		}

		render.JSON(w, "Tokens refreshed.", response{
			AccessToken:  pair.Access.Value,
			RefreshToken: pair.Refresh.Value,
		})
	})
}
