package user

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nkiryanov/kaizen/internal/apperrors"
	"github.com/nkiryanov/kaizen/internal/models"
	"github.com/nkiryanov/kaizen/internal/repository"
)

// Profile of the user with tasks, internal ids stripped
type Info struct {
	Username        string
	IsEmailVerified bool
	JoinedOn        time.Time
	LastActive      time.Time
	Tasks           []TaskInfo
}

type TaskInfo struct {
	Name        string
	Description string
	Category    string
	IsCompleted bool
	DueOn       *time.Time
	CreatedAt   time.Time
}

type UserService struct {
	storage repository.Storage
}

func NewService(storage repository.Storage) *UserService {
	return &UserService{storage: storage}
}

func (s *UserService) GetInfo(ctx context.Context, username string) (Info, error) {
	var info Info

	user, err := s.storage.User().GetUserByUsername(ctx, username)
	switch {
	case errors.Is(err, apperrors.ErrUserNotFound):
		return info, apperrors.BadRequest("No user with this username exists.")
	case err != nil:
		return info, fmt.Errorf("can't get user. Err: %w", err)
	}

	tasks, err := s.storage.Task().ListTasks(ctx, user.ID)
	if err != nil {
		return info, fmt.Errorf("can't list tasks. Err: %w", err)
	}

	info = Info{
		Username:        user.Username,
		IsEmailVerified: user.IsEmailVerified,
		JoinedOn:        user.JoinedOn,
		LastActive:      user.LastActive,
		Tasks:           make([]TaskInfo, 0, len(tasks)),
	}
	for _, t := range tasks {
		info.Tasks = append(info.Tasks, sanitize(t))
	}

	return info, nil
}

func sanitize(t models.Task) TaskInfo {
	return TaskInfo{
		Name:        t.Name,
		Description: t.Description,
		Category:    t.Category,
		IsCompleted: t.IsCompleted,
		DueOn:       t.DueOn,
		CreatedAt:   t.CreatedAt,
	}
}
