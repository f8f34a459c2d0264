package handlers

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/kaizen/internal/apperrors"
	"github.com/nkiryanov/kaizen/internal/handlers/render"
	"github.com/nkiryanov/kaizen/internal/models"
	"github.com/nkiryanov/kaizen/internal/service/task"
)

type taskResponse struct {
	ID          uuid.UUID  `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Category    string     `json:"category"`
	IsCompleted bool       `json:"isCompleted"`
	DueOn       *time.Time `json:"dueOn"`
	CreatedAt   time.Time  `json:"createdAt"`
}

type tasksResponse struct {
	Tasks []taskResponse `json:"tasks"`
}

func newTaskResponse(t models.Task) taskResponse {
	return taskResponse{
		ID:          t.ID,
		Name:        t.Name,
		Description: t.Description,
		Category:    t.Category,
		IsCompleted: t.IsCompleted,
		DueOn:       t.DueOn,
		CreatedAt:   t.CreatedAt,
	}
}

func handleListTasks(ts taskService, ew *render.ErrorWriter) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tasks, err := ts.List(r.Context(), r.PathValue("username"))
		if err != nil {
			ew.Error(w, r, err)
			return
		}

		resp := tasksResponse{Tasks: make([]taskResponse, 0, len(tasks))}
		for _, t := range tasks {
			resp.Tasks = append(resp.Tasks, newTaskResponse(t))
		}

		render.JSON(w, "Successfully fetched tasks.", resp)
	})
}

func handleCreateTask(ts taskService, ew *render.ErrorWriter) http.Handler {
	type request struct {
		Name        string     `json:"name" validate:"required,max=255"`
		Description string     `json:"description" validate:"max=4096"`
		Category    string     `json:"category" validate:"required,taskcategory"`
		IsCompleted bool       `json:"isCompleted"`
		DueOn       *time.Time `json:"dueOn"`
		CreatedAt   *time.Time `json:"createdAt"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		entry := task.Entry{
			Name:        data.Name,
			Description: data.Description,
			Category:    data.Category,
			IsCompleted: data.IsCompleted,
			DueOn:       data.DueOn,
		}
		if data.CreatedAt != nil {
			entry.CreatedAt = data.CreatedAt.UTC()
		}

		created, err := ts.Create(r.Context(), r.PathValue("username"), entry)
		if err != nil {
			ew.Error(w, r, err)
			return
		}

		render.Success(w, http.StatusCreated, "Task created.", newTaskResponse(created))
	})
}

func handleUpdateTasks(ts taskService, ew *render.ErrorWriter) http.Handler {
	type item struct {
		ID          string     `json:"id" validate:"required,uuid"`
		Name        string     `json:"name" validate:"required,max=255"`
		Description string     `json:"description" validate:"max=4096"`
		Category    string     `json:"category" validate:"required,taskcategory"`
		IsCompleted bool       `json:"isCompleted"`
		DueOn       *time.Time `json:"dueOn"`
		CreatedAt   time.Time  `json:"createdAt" validate:"required"`
	}
	type request struct {
		Tasks []item `json:"tasks" validate:"required,min=1,dive"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		tasks := make([]models.Task, 0, len(data.Tasks))
		for _, it := range data.Tasks {
			id, err := uuid.Parse(it.ID)
			if err != nil {
				render.Fail(w, "Task id must be a valid UUID.", http.StatusBadRequest)
				return
			}
			tasks = append(tasks, models.Task{
				ID:          id,
				Name:        it.Name,
				Description: it.Description,
				Category:    it.Category,
				IsCompleted: it.IsCompleted,
				DueOn:       it.DueOn,
				CreatedAt:   it.CreatedAt.UTC(),
			})
		}

		err = ts.UpdateBatch(r.Context(), r.PathValue("username"), tasks)
		if err != nil {
			ew.Error(w, r, err)
			return
		}

		resp := tasksResponse{Tasks: make([]taskResponse, 0, len(tasks))}
		for _, t := range tasks {
			resp.Tasks = append(resp.Tasks, newTaskResponse(t))
		}

		render.JSON(w, "Tasks updated.", resp)
	})
}

func handleDeleteTask(ts taskService, ew *render.ErrorWriter) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(r.PathValue("id"))
		if err != nil {
			ew.Error(w, r, apperrors.BadRequest("Task id must be a valid UUID."))
			return
		}

		err = ts.Delete(r.Context(), r.PathValue("username"), id)
		if err != nil {
			ew.Error(w, r, err)
			return
		}

		render.JSON(w, "Task deleted.", nil)
	})
}
