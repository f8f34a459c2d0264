package models

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

const (
	TaskCategoryTodo       = "TODO"
	TaskCategoryInProgress = "IN_PROGRESS"
	TaskCategoryTesting    = "TESTING"
	TaskCategoryCompleted  = "COMPLETED"
)

// Board columns in display order
var TaskCategories = []string{
	TaskCategoryTodo,
	TaskCategoryInProgress,
	TaskCategoryTesting,
	TaskCategoryCompleted,
}

func IsTaskCategory(s string) bool {
	return slices.Contains(TaskCategories, s)
}

type Task struct {
	ID          uuid.UUID
	UserID      uuid.UUID
	Name        string
	Description string
	Category    string
	IsCompleted bool
	DueOn       *time.Time // nil if task has no deadline
	CreatedAt   time.Time
}
