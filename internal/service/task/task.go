package task

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/kaizen/internal/apperrors"
	"github.com/nkiryanov/kaizen/internal/models"
	"github.com/nkiryanov/kaizen/internal/repository"
)

const (
	msgUserNotFound = "No user with this username exists."
	msgTaskNotFound = "Task not found."
)

// Validated task fields supplied by the owner
type Entry struct {
	Name        string
	Description string
	Category    string
	IsCompleted bool
	DueOn       *time.Time
	CreatedAt   time.Time
}

// Personal tasks of a user addressed by username
type TaskService struct {
	storage repository.Storage
}

func NewService(storage repository.Storage) *TaskService {
	return &TaskService{storage: storage}
}

func (s *TaskService) List(ctx context.Context, username string) ([]models.Task, error) {
	user, err := s.owner(ctx, s.storage, username)
	if err != nil {
		return nil, err
	}

	tasks, err := s.storage.Task().ListTasks(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("can't list tasks. Err: %w", err)
	}

	return tasks, nil
}

func (s *TaskService) Create(ctx context.Context, username string, entry Entry) (models.Task, error) {
	user, err := s.owner(ctx, s.storage, username)
	if err != nil {
		return models.Task{}, err
	}

	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	task, err := s.storage.Task().CreateTask(ctx, user.ID, repository.CreateTaskParams(entry))
	if err != nil {
		return task, fmt.Errorf("can't create task. Err: %w", err)
	}

	return task, nil
}

// Update all tasks or none of them
// Every task must belong to the user
func (s *TaskService) UpdateBatch(ctx context.Context, username string, tasks []models.Task) error {
	return s.storage.InTx(ctx, func(storage repository.Storage) error {
		user, err := s.owner(ctx, storage, username)
		if err != nil {
			return err
		}

		for _, t := range tasks {
			t.UserID = user.ID

			err := storage.Task().UpdateTask(ctx, t)
			switch {
			case errors.Is(err, apperrors.ErrTaskNotFound):
				return apperrors.BadRequest(msgTaskNotFound)
			case err != nil:
				return fmt.Errorf("can't update task %s. Err: %w", t.ID, err)
			}
		}

		return nil
	})
}

func (s *TaskService) Delete(ctx context.Context, username string, taskID uuid.UUID) error {
	user, err := s.owner(ctx, s.storage, username)
	if err != nil {
		return err
	}

	err = s.storage.Task().DeleteTask(ctx, user.ID, taskID)
	switch {
	case errors.Is(err, apperrors.ErrTaskNotFound):
		return apperrors.BadRequest(msgTaskNotFound)
	case err != nil:
		return fmt.Errorf("can't delete task. Err: %w", err)
	}

	return nil
}

func (s *TaskService) owner(ctx context.Context, storage repository.Storage, username string) (models.User, error) {
	user, err := storage.User().GetUserByUsername(ctx, username)
	switch {
	case errors.Is(err, apperrors.ErrUserNotFound):
		return user, apperrors.BadRequest(msgUserNotFound)
	case err != nil:
		return user, fmt.Errorf("can't get user. Err: %w", err)
	}
	return user, nil
}
