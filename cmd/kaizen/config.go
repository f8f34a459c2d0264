package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/nkiryanov/kaizen/internal/logger"
)

const (
	defaultListenAddr      = "localhost:8000"
	defaultPublicURL       = "http://localhost:8000"
	defaultClientURL       = "http://localhost:3000"
	defaultLoggingLevel    = logger.LevelInfo
	defaultEnvironment     = logger.EnvProduction
	defaultRateLimit       = 100
	defaultRateLimitWindow = 15 * time.Minute
)

type Config struct {
	// Default logging level
	LogLevel string

	// Address on which the kaizen service will be run
	ListenAddr string

	// Base URL the API is reachable by, verification links point to it
	PublicURL string

	// Client application URL: verification redirects and allowed CORS origin
	ClientURL string

	// Database to connect to
	DatabaseDSN string

	// Redis keeps refresh tokens, verification codes and rate limit counters
	RedisURI string

	// Symmetric keys: access tokens are signed with the first one, refresh tokens are digested with the second
	AccessSecret  string
	RefreshSecret string

	// MailerSend credentials; without API key emails are logged in dev environment
	MailAPIKey      string
	MailSenderEmail string
	MailSenderName  string

	// Requests allowed per client address within the window; 0 disables limiting
	RateLimit       int
	RateLimitWindow time.Duration

	// Put access token into redirect after email verified
	VerifyRedirectWithToken bool

	// Environment
	Environment string
}

func NewConfig() *Config {
	return &Config{
		LogLevel:                defaultLoggingLevel,
		ListenAddr:              defaultListenAddr,
		PublicURL:               defaultPublicURL,
		ClientURL:               defaultClientURL,
		Environment:             defaultEnvironment,
		MailSenderName:          "Kaizen",
		RateLimit:               defaultRateLimit,
		RateLimitWindow:         defaultRateLimitWindow,
		VerifyRedirectWithToken: true,
	}
}

// Load variable from '.env' file (should be located at working directory)
func (c *Config) LoadDotEnv(getwd func() (string, error)) error {
	wd, err := getwd()
	if err != nil {
		return err
	}

	envMap, err := godotenv.Read(filepath.Join(wd, ".env"))

	switch {
	case err == nil:
		return c.LoadEnv(func(key string) string {
			return envMap[key]
		})
	case errors.Is(err, os.ErrNotExist):
		return nil
	default:
		return err
	}
}

func (c *Config) LoadEnv(getenv func(string) string) error {
	// Set option to value if it not empty
	setString := func(o *string) func(value string) error {
		return func(value string) error {
			if value != "" {
				*o = value
			}
			return nil
		}
	}
	setInt := func(o *int) func(value string) error {
		return func(value string) error {
			if value == "" {
				return nil
			}
			n, err := strconv.Atoi(value)
			if err != nil {
				return err
			}
			*o = n
			return nil
		}
	}
	setDuration := func(o *time.Duration) func(value string) error {
		return func(value string) error {
			if value == "" {
				return nil
			}
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			*o = d
			return nil
		}
	}
	setBool := func(o *bool) func(value string) error {
		return func(value string) error {
			if value == "" {
				return nil
			}
			b, err := strconv.ParseBool(value)
			if err != nil {
				return err
			}
			*o = b
			return nil
		}
	}

	envMap := map[string]func(string) error{
		"RUN_ADDRESS":                setString(&c.ListenAddr),
		"PUBLIC_URL":                 setString(&c.PublicURL),
		"CLIENT_URL":                 setString(&c.ClientURL),
		"DATABASE_URI":               setString(&c.DatabaseDSN),
		"REDIS_URI":                  setString(&c.RedisURI),
		"ACCESS_TOKEN_SECRET":        setString(&c.AccessSecret),
		"REFRESH_TOKEN_SECRET":       setString(&c.RefreshSecret),
		"MAILSERVICE_API_KEY":        setString(&c.MailAPIKey),
		"MAIL_SENDER_EMAIL":          setString(&c.MailSenderEmail),
		"MAIL_SENDER_NAME":           setString(&c.MailSenderName),
		"LOG_LEVEL":                  setString(&c.LogLevel),
		"ENVIRONMENT":                setString(&c.Environment),
		"RATE_LIMIT":                 setInt(&c.RateLimit),
		"RATE_LIMIT_WINDOW":          setDuration(&c.RateLimitWindow),
		"VERIFY_REDIRECT_WITH_TOKEN": setBool(&c.VerifyRedirectWithToken),
	}

	for key, parseFn := range envMap {
		if err := parseFn(getenv(key)); err != nil {
			return fmt.Errorf("invalid %s. Err: %w", key, err)
		}
	}

	return nil
}

func (c *Config) ParseFlags(args []string) error {
	fs := pflag.NewFlagSet("kaizen", pflag.ContinueOnError)

	fs.StringVarP(&c.ListenAddr, "address", "a", c.ListenAddr, "Server listen address")
	fs.StringVar(&c.PublicURL, "public-url", c.PublicURL, "Public base URL of the API")
	fs.StringVar(&c.ClientURL, "client-url", c.ClientURL, "Client application URL")
	fs.StringVarP(&c.DatabaseDSN, "database", "d", c.DatabaseDSN, "Database connection string")
	fs.StringVarP(&c.RedisURI, "redis", "r", c.RedisURI, "Redis connection string")
	fs.StringVar(&c.AccessSecret, "access-secret", c.AccessSecret, "Access token secret")
	fs.StringVar(&c.RefreshSecret, "refresh-secret", c.RefreshSecret, "Refresh token secret")
	fs.StringVarP(&c.LogLevel, "log-level", "l", c.LogLevel, "Logging level (debug, info, warn, error)")
	fs.StringVarP(&c.Environment, "environment", "e", c.Environment, "Environment (dev, prod)")
	fs.IntVar(&c.RateLimit, "rate-limit", c.RateLimit, "Requests allowed per client within window, 0 disables limiting")
	fs.DurationVar(&c.RateLimitWindow, "rate-limit-window", c.RateLimitWindow, "Rate limit window")
	fs.BoolVar(&c.VerifyRedirectWithToken, "verify-redirect-with-token", c.VerifyRedirectWithToken, "Put access token to the redirect after email verified")

	return fs.Parse(args)
}
