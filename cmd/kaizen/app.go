package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nkiryanov/kaizen/internal/db"
	"github.com/nkiryanov/kaizen/internal/handlers"
	"github.com/nkiryanov/kaizen/internal/logger"
	"github.com/nkiryanov/kaizen/internal/metrics"
	"github.com/nkiryanov/kaizen/internal/repository/postgres"
	"github.com/nkiryanov/kaizen/internal/repository/redis"
	"github.com/nkiryanov/kaizen/internal/service/auth"
	"github.com/nkiryanov/kaizen/internal/service/auth/tokenmanager"
	"github.com/nkiryanov/kaizen/internal/service/mail"
	"github.com/nkiryanov/kaizen/internal/service/task"
	"github.com/nkiryanov/kaizen/internal/service/user"
)

const (
	shutdownTimeout  = 5 * time.Second
	mailDrainTimeout = 5 * time.Second
)

type ServerApp struct {
	ListenAddr string
	Handler    http.Handler
	Logger     logger.Logger

	// Delivers emails in background while server runs
	MailQueue *mail.Queue

	// Release pools and connections, called once server stopped
	closers []func()
}

func NewServerApp(ctx context.Context, c *Config) (_ *ServerApp, err error) {
	app := &ServerApp{ListenAddr: c.ListenAddr}
	defer func() {
		if err != nil {
			app.Close()
		}
	}()

	// Initialize logger
	app.Logger, err = logger.New(c.Environment, c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("error while initializing logger: %w", err)
	}

	// Connect to the database and run migrations
	pool, err := db.ConnectAndMigrate(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("error while connecting to db. Err: %w", err)
	}
	app.closers = append(app.closers, pool.Close)

	redisClient, err := redis.Connect(ctx, c.RedisURI)
	if err != nil {
		return nil, fmt.Errorf("error while connecting to redis. Err: %w", err)
	}
	app.closers = append(app.closers, func() { _ = redisClient.Close() })

	// Initialize repositories
	storage := postgres.NewStorage(pool)
	refreshRepo := &redis.RefreshTokenRepo{Client: redisClient}
	codeRepo := &redis.VerificationCodeRepo{Client: redisClient}

	// Initialize services
	tokenManager, err := tokenmanager.New(
		tokenmanager.Config{AccessSecret: c.AccessSecret, RefreshSecret: c.RefreshSecret},
		refreshRepo,
		codeRepo,
	)
	if err != nil {
		return nil, fmt.Errorf("error while creating token manager. Err: %w", err)
	}

	sender, err := newMailSender(c, app.Logger)
	if err != nil {
		return nil, err
	}
	app.MailQueue = mail.NewQueue(sender, app.Logger, 0, 0)
	mailService, err := mail.NewService(app.MailQueue)
	if err != nil {
		return nil, fmt.Errorf("error while creating mail service. Err: %w", err)
	}

	authService, err := auth.NewService(
		auth.Config{PublicURL: c.PublicURL, IssueAccessOnVerify: c.VerifyRedirectWithToken},
		tokenManager,
		storage,
		mailService,
		app.Logger,
	)
	if err != nil {
		return nil, fmt.Errorf("error while creating auth service. Err: %w", err)
	}

	httpMetrics := metrics.NewHTTP()
	services := handlers.Services{
		Auth:     authService,
		Tasks:    task.NewService(storage),
		Users:    user.NewService(storage),
		Tokens:   tokenManager,
		Metrics:  httpMetrics,
		Registry: metrics.NewRegistry(httpMetrics),
	}
	if c.RateLimit > 0 {
		services.Limiter = redis.NewRateLimiter(redisClient, c.RateLimit, c.RateLimitWindow, "")
	}

	app.Handler = handlers.NewRouter(
		handlers.Config{
			ClientURL: c.ClientURL,
			Verbose:   c.Environment != logger.EnvProduction,
		},
		services,
		app.Logger,
	)

	return app, nil
}

// Emails are only logged in development if no API key configured
func newMailSender(c *Config, l logger.Logger) (mail.Sender, error) {
	if c.MailAPIKey == "" && c.Environment == logger.EnvDevelopment {
		l.Warn("Mail service API key not set, emails will be logged")
		return mail.LogSender{Logger: l}, nil
	}

	sender, err := mail.NewMailerSend(mail.MailerSendConfig{
		APIKey:      c.MailAPIKey,
		SenderEmail: c.MailSenderEmail,
		SenderName:  c.MailSenderName,
	})
	if err != nil {
		return nil, fmt.Errorf("error while creating mail sender. Err: %w", err)
	}
	return sender, nil
}

func (s *ServerApp) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}

// Run starts http server and closes gracefully on context cancellation
func (s *ServerApp) Run(ctx context.Context) error {
	defer s.Close()

	httpServer := &http.Server{
		Addr:              s.ListenAddr,
		Handler:           s.Handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	idleConnsClosed := make(chan struct{})
	srvCtx, srvCtxCancel := context.WithCancel(ctx)
	defer srvCtxCancel()

	go func() {
		<-srvCtx.Done()

		timeoutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := httpServer.Shutdown(timeoutCtx); errors.Is(err, context.DeadlineExceeded) {
			s.Logger.Error("HTTP server shutdown timeout exceeded, forcing shutdown...")
		}
		s.Logger.Info("HTTP server stopped")
		close(idleConnsClosed)
	}()

	// Outlives the server: emails queued by the last requests are delivered after Shutdown
	s.MailQueue.Run(context.WithoutCancel(ctx))

	// Listen and serve until context is cancelled; then close gracefully connections
	s.Logger.Info("Starting server", "address", s.ListenAddr)
	err := httpServer.ListenAndServe()
	srvCtxCancel()
	<-idleConnsClosed

	drainCtx, drainCancel := context.WithTimeout(context.Background(), mailDrainTimeout)
	defer drainCancel()
	if err := s.MailQueue.Shutdown(drainCtx); errors.Is(err, context.DeadlineExceeded) {
		s.Logger.Error("Mail queue drain timeout exceeded, undelivered emails dropped")
	}

	return err
}
