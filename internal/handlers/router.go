package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/cors"

	"github.com/nkiryanov/kaizen/internal/handlers/middleware"
	"github.com/nkiryanov/kaizen/internal/handlers/render"
	"github.com/nkiryanov/kaizen/internal/logger"
	"github.com/nkiryanov/kaizen/internal/metrics"
	"github.com/nkiryanov/kaizen/internal/models"
	"github.com/nkiryanov/kaizen/internal/service/auth"
	"github.com/nkiryanov/kaizen/internal/service/task"
	"github.com/nkiryanov/kaizen/internal/service/user"
)

// chain applies middlewares in the given order: m1(m2(...(h)))
func chain(h http.Handler, mds ...func(next http.Handler) http.Handler) http.Handler {
	for i := len(mds) - 1; i >= 0; i-- {
		h = mds[i](h)
	}
	return h
}

type Config struct {
	// Client application base URL: verification redirects and CORS origin
	ClientURL string

	// Echo internal error text in 500 responses
	Verbose bool
}

type Services struct {
	Auth   authService
	Tasks  taskService
	Users  userService
	Tokens accessVerifier

	// Optional: no limiting if nil
	Limiter rateLimiter

	// Optional: no /metrics if nil
	Metrics  *metrics.HTTP
	Registry *prometheus.Registry
}

func NewRouter(cfg Config, s Services, logger logger.Logger) http.Handler {
	ew := render.NewErrorWriter(logger, cfg.Verbose)

	authMiddleware := middleware.Auth(s.Tokens)
	ownerMiddleware := middleware.Owner("username")
	protected := func(h http.Handler) http.Handler {
		return chain(h, authMiddleware, ownerMiddleware)
	}

	mux := http.NewServeMux()

	mux.Handle("POST /v1/auth/signup", handleSignup(s.Auth, ew))
	mux.Handle("POST /v1/auth/signin", handleSignin(s.Auth, ew))
	mux.Handle("POST /v1/auth/refresh", handleRefresh(s.Auth, ew))
	mux.Handle("GET /v1/email/verify", handleVerifyEmail(s.Auth, cfg.ClientURL, logger))

	mux.Handle("GET /v1/users/info/{username}", protected(handleUserInfo(s.Users, ew)))

	mux.Handle("GET /v1/tasks/personal/{username}", protected(handleListTasks(s.Tasks, ew)))
	mux.Handle("POST /v1/tasks/personal/{username}", protected(handleCreateTask(s.Tasks, ew)))
	mux.Handle("PATCH /v1/tasks/personal/{username}", protected(handleUpdateTasks(s.Tasks, ew)))
	mux.Handle("DELETE /v1/tasks/personal/{username}/{id}", protected(handleDeleteTask(s.Tasks, ew)))

	mux.Handle("GET /v1/health", handleHealth())
	mux.Handle("GET /{$}", handleHealth())
	if s.Registry != nil {
		mux.Handle("GET /metrics", metrics.Handler(s.Registry))
	}
	mux.Handle("/", handleNotFound())

	mds := []func(http.Handler) http.Handler{
		middleware.Recover(logger),
		middleware.RequestID(),
		middleware.Logger(logger),
		cors.New(cors.Options{
			AllowedOrigins: []string{cfg.ClientURL},
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodPut, http.MethodDelete},
			AllowedHeaders: []string{"Content-Type", "Authorization"},
		}).Handler,
	}
	if s.Limiter != nil {
		mds = append(mds, middleware.RateLimit(s.Limiter, logger))
	}
	if s.Metrics != nil {
		mds = append(mds, middleware.Metrics(s.Metrics))
	}

	return chain(mux, mds...)
}

type authService interface {
	// Has to return client safe BadRequest if user with the username or email exists
	Signup(ctx context.Context, username string, email string, password string) (auth.SignupResult, error)

	// Unverified user gets result with PendingVerification set and no tokens
	Signin(ctx context.Context, email string, password string) (auth.SigninResult, error)

	// Has to return auth.ErrMalformedVerification or auth.ErrVerificationFailed if email can't be verified
	VerifyEmail(ctx context.Context, username string, code string) (models.IssuedToken, error)

	RefreshAccess(ctx context.Context, username string, refresh string) (models.TokenPair, error)
}

type taskService interface {
	List(ctx context.Context, username string) ([]models.Task, error)
	Create(ctx context.Context, username string, entry task.Entry) (models.Task, error)
	UpdateBatch(ctx context.Context, username string, tasks []models.Task) error
	Delete(ctx context.Context, username string, taskID uuid.UUID) error
}

type userService interface {
	GetInfo(ctx context.Context, username string) (user.Info, error)
}

type accessVerifier interface {
	VerifyAccess(token string) (models.AccessClaims, bool)
}

type rateLimiter interface {
	Allow(ctx context.Context, key string) (bool, time.Duration, error)
}
