package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/nkiryanov/kaizen/internal/apperrors"
	"github.com/nkiryanov/kaizen/internal/models"
	"github.com/nkiryanov/kaizen/internal/repository"
)

type TaskRepo struct {
	DB DBTX
}

const taskColumns = `id, user_id, name, description, category, is_completed, due_on, created_at`

const listTasks = `-- name: ListTasks
SELECT ` + taskColumns + ` FROM tasks
WHERE user_id = $1
ORDER BY created_at, id
`

func (r *TaskRepo) ListTasks(ctx context.Context, userID uuid.UUID) ([]models.Task, error) {
	rows, _ := r.DB.Query(ctx, listTasks, userID)
	tasks, err := pgx.CollectRows(rows, rowToTask)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return tasks, nil
}

const createTask = `-- name: CreateTask
INSERT INTO tasks (id, user_id, name, description, category, is_completed, due_on, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING ` + taskColumns

func (r *TaskRepo) CreateTask(ctx context.Context, userID uuid.UUID, p repository.CreateTaskParams) (models.Task, error) {
	rows, _ := r.DB.Query(ctx, createTask, uuid.New(), userID, p.Name, p.Description, p.Category, p.IsCompleted, p.DueOn, p.CreatedAt)
	task, err := pgx.CollectOneRow(rows, rowToTask)
	if err != nil {
		return task, fmt.Errorf("db error: %w", err)
	}
	return task, nil
}

const updateTask = `-- name: UpdateTask
UPDATE tasks
SET name = $3, description = $4, category = $5, is_completed = $6, due_on = $7, created_at = $8
WHERE id = $1 AND user_id = $2
`

func (r *TaskRepo) UpdateTask(ctx context.Context, t models.Task) error {
	tag, err := r.DB.Exec(ctx, updateTask, t.ID, t.UserID, t.Name, t.Description, t.Category, t.IsCompleted, t.DueOn, t.CreatedAt)
	switch {
	case err != nil:
		return fmt.Errorf("db error: %w", err)
	case tag.RowsAffected() == 0:
		return apperrors.ErrTaskNotFound
	default:
		return nil
	}
}

const deleteTask = `-- name: DeleteTask
DELETE FROM tasks
WHERE id = $1 AND user_id = $2
`

func (r *TaskRepo) DeleteTask(ctx context.Context, userID uuid.UUID, taskID uuid.UUID) error {
	tag, err := r.DB.Exec(ctx, deleteTask, taskID, userID)
	switch {
	case err != nil:
		return fmt.Errorf("db error: %w", err)
	case tag.RowsAffected() == 0:
		return apperrors.ErrTaskNotFound
	default:
		return nil
	}
}

func rowToTask(row pgx.CollectableRow) (models.Task, error) {
	var t models.Task
	err := row.Scan(&t.ID, &t.UserID, &t.Name, &t.Description, &t.Category, &t.IsCompleted, &t.DueOn, &t.CreatedAt)
	return t, err
}
