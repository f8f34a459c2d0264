package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/nkiryanov/kaizen/internal/apperrors"
	"github.com/nkiryanov/kaizen/internal/models"
	"github.com/nkiryanov/kaizen/internal/repository"
)

type UserRepo struct {
	DB DBTX
}

const userColumns = `id, username, email, password_hash, is_email_verified, joined_on, last_active`

const createUser = `-- name: CreateUser
INSERT INTO users (id, username, email, password_hash)
VALUES ($1, $2, $3, $4)
RETURNING ` + userColumns

func (r *UserRepo) CreateUser(ctx context.Context, params repository.CreateUserParams) (models.User, error) {
	rows, _ := r.DB.Query(ctx, createUser, uuid.New(), params.Username, params.Email, params.HashedPassword)
	user, err := pgx.CollectOneRow(rows, rowToUser)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return user, apperrors.ErrUserAlreadyExists
		}

		return user, fmt.Errorf("db error: %w", err)
	}

	return user, nil
}

const existsByUsernameOrEmail = `-- name: ExistsByUsernameOrEmail
SELECT EXISTS (SELECT 1 FROM users WHERE username = $1 OR email = $2)
`

func (r *UserRepo) ExistsByUsernameOrEmail(ctx context.Context, username string, email string) (bool, error) {
	var exists bool
	err := r.DB.QueryRow(ctx, existsByUsernameOrEmail, username, email).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return exists, nil
}

const getUserByUsername = `-- name: GetUserByUsername
SELECT ` + userColumns + ` FROM users
WHERE username = $1
`

func (r *UserRepo) GetUserByUsername(ctx context.Context, username string) (models.User, error) {
	return r.getOne(ctx, getUserByUsername, username)
}

const getUserByEmail = `-- name: GetUserByEmail
SELECT ` + userColumns + ` FROM users
WHERE email = $1
`

func (r *UserRepo) GetUserByEmail(ctx context.Context, email string) (models.User, error) {
	return r.getOne(ctx, getUserByEmail, email)
}

const setEmailVerified = `-- name: SetEmailVerified
UPDATE users SET is_email_verified = TRUE
WHERE username = $1
`

func (r *UserRepo) SetEmailVerified(ctx context.Context, username string) error {
	return r.updateOne(ctx, setEmailVerified, username)
}

const setLastActive = `-- name: SetLastActive
UPDATE users SET last_active = $2
WHERE id = $1
`

func (r *UserRepo) SetLastActive(ctx context.Context, userID uuid.UUID, at time.Time) error {
	return r.updateOne(ctx, setLastActive, userID, at)
}

func (r *UserRepo) getOne(ctx context.Context, query string, args ...any) (models.User, error) {
	rows, _ := r.DB.Query(ctx, query, args...)
	user, err := pgx.CollectOneRow(rows, rowToUser)

	switch {
	case err == nil:
		return user, nil
	case errors.Is(err, pgx.ErrNoRows):
		return user, apperrors.ErrUserNotFound
	default:
		return user, fmt.Errorf("db error: %w", err)
	}
}

func (r *UserRepo) updateOne(ctx context.Context, query string, args ...any) error {
	tag, err := r.DB.Exec(ctx, query, args...)
	switch {
	case err != nil:
		return fmt.Errorf("db error: %w", err)
	case tag.RowsAffected() == 0:
		return apperrors.ErrUserNotFound
	default:
		return nil
	}
}

func rowToUser(row pgx.CollectableRow) (models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.HashedPassword, &u.IsEmailVerified, &u.JoinedOn, &u.LastActive)
	return u, err
}
