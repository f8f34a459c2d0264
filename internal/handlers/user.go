package handlers

import (
	"net/http"
	"time"

	"github.com/nkiryanov/kaizen/internal/handlers/render"
)

func handleUserInfo(us userService, ew *render.ErrorWriter) http.Handler {
	type infoTask struct {
		Name        string     `json:"name"`
		Description string     `json:"description"`
		Category    string     `json:"category"`
		IsCompleted bool       `json:"isCompleted"`
		DueOn       *time.Time `json:"dueOn"`
		CreatedAt   time.Time  `json:"createdAt"`
	}
	type response struct {
		Username        string     `json:"username"`
		IsEmailVerified bool       `json:"isEmailVerified"`
		JoinedOn        time.Time  `json:"joinedOn"`
		LastActive      time.Time  `json:"lastActive"`
		Tasks           []infoTask `json:"tasks"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		info, err := us.GetInfo(r.Context(), r.PathValue("username"))
		if err != nil {
			ew.Error(w, r, err)
			return
		}

		resp := response{
			Username:        info.Username,
			IsEmailVerified: info.IsEmailVerified,
			JoinedOn:        info.JoinedOn,
			LastActive:      info.LastActive,
			Tasks:           make([]infoTask, 0, len(info.Tasks)),
		}
		for _, t := range info.Tasks {
			resp.Tasks = append(resp.Tasks, infoTask(t))
		}

		render.JSON(w, "Successfully fetched user record.", resp)
	})
}
