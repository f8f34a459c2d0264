package handlers

import (
	"net/http"

	"github.com/nkiryanov/kaizen/internal/handlers/render"
)

func handleHealth() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		render.JSON(w, "Kaizen API is up and running.", nil)
	})
}

func handleNotFound() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		render.Fail(w, "This endpoint does not exist.", http.StatusNotFound)
	})
}
