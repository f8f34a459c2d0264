package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/kaizen/internal/models"
)

// Durable storage: users and their tasks
type Storage interface {
	User() UserRepo
	Task() TaskRepo

	// Run fn in a transaction. Commit if fn returns nil, rollback otherwise
	InTx(ctx context.Context, fn func(Storage) error) error
}

type CreateUserParams struct {
	Username       string
	Email          string
	HashedPassword string
}

// User repository interface
type UserRepo interface {
	// Create unverified user
	// If user with the username or email exists already has to return apperrors.ErrUserAlreadyExists
	CreateUser(ctx context.Context, params CreateUserParams) (models.User, error)

	// Report whether any user owns the username or the email
	ExistsByUsernameOrEmail(ctx context.Context, username string, email string) (bool, error)

	// If user not found must return apperrors.ErrUserNotFound
	GetUserByUsername(ctx context.Context, username string) (models.User, error)
	GetUserByEmail(ctx context.Context, email string) (models.User, error)

	// If user not found must return apperrors.ErrUserNotFound
	SetEmailVerified(ctx context.Context, username string) error
	SetLastActive(ctx context.Context, userID uuid.UUID, at time.Time) error
}

type CreateTaskParams struct {
	Name        string
	Description string
	Category    string
	IsCompleted bool
	DueOn       *time.Time
	CreatedAt   time.Time
}

// Task repository interface
// Every method is scoped by the owner: tasks of other users are invisible
type TaskRepo interface {
	ListTasks(ctx context.Context, userID uuid.UUID) ([]models.Task, error)
	CreateTask(ctx context.Context, userID uuid.UUID, params CreateTaskParams) (models.Task, error)

	// If the task is not owned by user must return apperrors.ErrTaskNotFound
	UpdateTask(ctx context.Context, task models.Task) error
	DeleteTask(ctx context.Context, userID uuid.UUID, taskID uuid.UUID) error
}

// Ephemeral key-value storage with TTL: refresh tokens, verification codes, rate limits

// One refresh token digest per username, last write wins
type RefreshTokenRepo interface {
	SaveRefresh(ctx context.Context, username string, digest string, ttl time.Duration) error

	// If not found or expired must return apperrors.ErrRefreshTokenNotFound
	GetRefresh(ctx context.Context, username string) (string, error)

	// Atomically swap oldDigest for newDigest. Reports false if oldDigest is not the live one
	RotateRefresh(ctx context.Context, username string, oldDigest string, newDigest string, ttl time.Duration) (bool, error)
}

// One verification code per username, last write wins
type VerificationCodeRepo interface {
	SaveCode(ctx context.Context, username string, code string, ttl time.Duration) error

	// If not found or expired must return apperrors.ErrVerificationCodeNotFound
	GetCode(ctx context.Context, username string) (string, error)

	// Idempotent: deleting absent code is not an error
	DeleteCode(ctx context.Context, username string) error

	// Atomically delete the code if it equals to the given one
	// Report whether the code matched
	RedeemCode(ctx context.Context, username string, code string) (bool, error)
}

// Fixed window request counter
type RateLimiter interface {
	// Report whether the request is allowed and when the window resets
	Allow(ctx context.Context, key string) (allowed bool, retryAfter time.Duration, err error)
}
