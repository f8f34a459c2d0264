package postgres

import (
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/kaizen/internal/apperrors"
	"github.com/nkiryanov/kaizen/internal/models"
	"github.com/nkiryanov/kaizen/internal/repository"
	"github.com/nkiryanov/kaizen/internal/testutil"
)

func fakeTaskParams() repository.CreateTaskParams {
	return repository.CreateTaskParams{
		Name:        gofakeit.HipsterSentence(3),
		Description: gofakeit.Sentence(10),
		Category:    models.TaskCategoryTodo,
		CreatedAt:   time.Now().UTC().Truncate(time.Microsecond),
	}
}

func Test_TaskRepo(t *testing.T) {
	t.Parallel()

	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	// Create user and return its id, tasks reference users
	withUser := func(t *testing.T, tx pgx.Tx) uuid.UUID {
		u, err := (&UserRepo{DB: tx}).CreateUser(t.Context(), fakeUserParams())
		require.NoError(t, err)
		return u.ID
	}

	t.Run("create and list", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			r := TaskRepo{DB: tx}
			userID := withUser(t, tx)
			due := time.Date(2031, 5, 1, 0, 0, 0, 0, time.UTC)
			first := fakeTaskParams()
			second := fakeTaskParams()
			second.DueOn = &due
			second.CreatedAt = first.CreatedAt.Add(time.Second)

			created1, err := r.CreateTask(t.Context(), userID, first)
			require.NoError(t, err)
			created2, err := r.CreateTask(t.Context(), userID, second)
			require.NoError(t, err)

			tasks, err := r.ListTasks(t.Context(), userID)

			require.NoError(t, err)
			require.Len(t, tasks, 2)
			assert.Equal(t, created1.ID, tasks[0].ID)
			assert.Equal(t, created2.ID, tasks[1].ID)
			assert.Nil(t, tasks[0].DueOn)
			require.NotNil(t, tasks[1].DueOn)
			assert.WithinDuration(t, due, *tasks[1].DueOn, 0)
		})
	})

	t.Run("list is scoped by owner", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			r := TaskRepo{DB: tx}
			owner := withUser(t, tx)
			stranger := withUser(t, tx)
			_, err := r.CreateTask(t.Context(), owner, fakeTaskParams())
			require.NoError(t, err)

			tasks, err := r.ListTasks(t.Context(), stranger)

			require.NoError(t, err)
			assert.Empty(t, tasks)
		})
	})

	t.Run("unknown category rejected", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			_, err := tx.Exec(t.Context(), "SAVEPOINT before_insert")
			require.NoError(t, err)
			r := TaskRepo{DB: tx}
			params := fakeTaskParams()
			params.Category = "DONE"

			_, err = r.CreateTask(t.Context(), withUser(t, tx), params)

			assert.Error(t, err)
			_, err = tx.Exec(t.Context(), "ROLLBACK TO SAVEPOINT before_insert")
			require.NoError(t, err)
		})
	})

	t.Run("update task", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			r := TaskRepo{DB: tx}
			userID := withUser(t, tx)
			task, err := r.CreateTask(t.Context(), userID, fakeTaskParams())
			require.NoError(t, err)

			task.Name = "renamed"
			task.Category = models.TaskCategoryCompleted
			task.IsCompleted = true
			err = r.UpdateTask(t.Context(), task)
			require.NoError(t, err)

			tasks, err := r.ListTasks(t.Context(), userID)
			require.NoError(t, err)
			require.Len(t, tasks, 1)
			assert.Equal(t, "renamed", tasks[0].Name)
			assert.Equal(t, models.TaskCategoryCompleted, tasks[0].Category)
			assert.True(t, tasks[0].IsCompleted)
		})
	})

	t.Run("update task of other user", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			r := TaskRepo{DB: tx}
			task, err := r.CreateTask(t.Context(), withUser(t, tx), fakeTaskParams())
			require.NoError(t, err)

			task.UserID = withUser(t, tx)
			err = r.UpdateTask(t.Context(), task)

			assert.ErrorIs(t, err, apperrors.ErrTaskNotFound)
		})
	})

	t.Run("delete task", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			r := TaskRepo{DB: tx}
			userID := withUser(t, tx)
			task, err := r.CreateTask(t.Context(), userID, fakeTaskParams())
			require.NoError(t, err)

			err = r.DeleteTask(t.Context(), userID, task.ID)
			require.NoError(t, err)

			err = r.DeleteTask(t.Context(), userID, task.ID)
			assert.ErrorIs(t, err, apperrors.ErrTaskNotFound, "second delete has nothing to delete")
		})
	})
}
