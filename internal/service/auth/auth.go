package auth

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gosimple/slug"

	"github.com/nkiryanov/kaizen/internal/apperrors"
	"github.com/nkiryanov/kaizen/internal/logger"
	"github.com/nkiryanov/kaizen/internal/models"
	"github.com/nkiryanov/kaizen/internal/repository"
	"github.com/nkiryanov/kaizen/internal/service/mail"
)

const (
	msgUserAlreadyExists = "A user with this credentials already exists, sign in instead."
	msgUserDoesNotExist  = "User doesn't exist."
	msgPasswordMismatch  = "Password mismatch."
	msgInvalidUsername   = "Username must contain letters or digits."
	msgUsernameTooLong   = "Username is too long."
	msgInvalidRefresh    = "Refresh token is invalid or expired."

	verificationSubject = "Verify your email address"
	verificationTTL     = 24 * time.Hour

	// Bytes, users.username column size
	maxUsernameLen = 64
)

var (
	// Username or code missing in verification link
	ErrMalformedVerification = errors.New("verification link is malformed")

	// Code absent, expired, consumed or not equal to the issued one
	ErrVerificationFailed = errors.New("email not verified")
)

// Interface to create or compare user password hashes
type PasswordHasher interface {
	Hash(password string) (string, error)

	// Compare known hashedPassword and user provided password
	// Must be protected against timing attacks and never fail on malformed hash
	Matches(hashedPassword string, password string) bool
}

// Subset of tokenmanager.TokenManager the workflows rely on
type TokenManager interface {
	IssueTokens(ctx context.Context, username string, withAccess bool) (models.TokenPair, error)
	PersistRefreshToken(ctx context.Context, username string, refresh string) error
	MatchRefreshToken(ctx context.Context, username string, refresh string) (bool, error)
	RotateRefreshToken(ctx context.Context, username string, presented string, next string) (bool, error)
	IssueVerificationCode(ctx context.Context, username string) (string, error)
	RedeemVerificationCode(ctx context.Context, username string, code string) (bool, error)
}

type Mailer interface {
	SendTemplate(ctx context.Context, to mail.Recipient, subject string, name string, data any) error
}

type Config struct {
	// Public base URL of the API, verification links point to it
	PublicURL string

	// Mint access token when email verified
	IssueAccessOnVerify bool

	// If not set BcryptHasher is used
	Hasher PasswordHasher
}

type SignupResult struct {
	ObfuscatedEmail string
	Tokens          models.TokenPair
}

type SigninResult struct {
	// Account not verified yet: fresh code sent, no tokens issued
	PendingVerification bool
	ObfuscatedEmail     string

	Tokens models.TokenPair
	User   models.PublicUser
}

type AuthService struct {
	publicURL           string
	issueAccessOnVerify bool

	hasher  PasswordHasher
	tokens  TokenManager
	storage repository.Storage
	mailer  Mailer
	logger  logger.Logger

	now func() time.Time
}

func NewService(cfg Config, tokens TokenManager, storage repository.Storage, mailer Mailer, l logger.Logger) (*AuthService, error) {
	if tokens == nil || storage == nil || mailer == nil {
		return nil, errors.New("token manager, storage and mailer must not be nil")
	}

	hasher := cfg.Hasher
	if hasher == nil {
		hasher = BcryptHasher{}
	}

	if l == nil {
		l = logger.NewNoOpLogger()
	}

	return &AuthService{
		publicURL:           strings.TrimRight(cfg.PublicURL, "/"),
		issueAccessOnVerify: cfg.IssueAccessOnVerify,
		hasher:              hasher,
		tokens:              tokens,
		storage:             storage,
		mailer:              mailer,
		logger:              l.WithGroup("auth"),
		now:                 time.Now,
	}, nil
}

// Register unverified user, send verification email and issue token pair
func (s *AuthService) Signup(ctx context.Context, username string, email string, password string) (SignupResult, error) {
	var result SignupResult

	username = slug.Make(username)
	if username == "" {
		return result, apperrors.BadRequest(msgInvalidUsername)
	}
	// Transliteration may make the slug much longer than the input
	if len(username) > maxUsernameLen {
		return result, apperrors.BadRequest(msgUsernameTooLong)
	}
	email = normalizeEmail(email)

	exists, err := s.storage.User().ExistsByUsernameOrEmail(ctx, username, email)
	if err != nil {
		return result, fmt.Errorf("can't check user duplicates. Err: %w", err)
	}
	if exists {
		return result, apperrors.BadRequest(msgUserAlreadyExists)
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return result, fmt.Errorf("can't use this as password. Err: %w", err)
	}

	user, err := s.storage.User().CreateUser(ctx, repository.CreateUserParams{
		Username:       username,
		Email:          email,
		HashedPassword: hash,
	})
	switch {
	case errors.Is(err, apperrors.ErrUserAlreadyExists):
		return result, apperrors.BadRequest(msgUserAlreadyExists)
	case err != nil:
		return result, fmt.Errorf("can't create user. Err: %w", err)
	}

	if err := s.sendVerification(ctx, user); err != nil {
		return result, err
	}

	result.Tokens, err = s.issueSession(ctx, user.Username)
	if err != nil {
		return result, err
	}
	result.ObfuscatedEmail = ObfuscateEmail(user.Email)

	s.logger.Info("User registered", "username", user.Username)
	return result, nil
}

// Check credentials and start session
// Unverified users get fresh verification code instead of tokens
func (s *AuthService) Signin(ctx context.Context, email string, password string) (SigninResult, error) {
	var result SigninResult

	user, err := s.storage.User().GetUserByEmail(ctx, normalizeEmail(email))
	switch {
	case errors.Is(err, apperrors.ErrUserNotFound):
		return result, apperrors.BadRequest(msgUserDoesNotExist)
	case err != nil:
		return result, fmt.Errorf("can't get user. Err: %w", err)
	}

	if !s.hasher.Matches(user.HashedPassword, password) {
		return result, apperrors.BadRequest(msgPasswordMismatch)
	}

	result.ObfuscatedEmail = ObfuscateEmail(user.Email)

	if !user.IsEmailVerified {
		if err := s.sendVerification(ctx, user); err != nil {
			return result, err
		}
		result.PendingVerification = true
		return result, nil
	}

	result.Tokens, err = s.issueSession(ctx, user.Username)
	if err != nil {
		return result, err
	}

	user.LastActive = s.now().UTC()
	if err := s.storage.User().SetLastActive(ctx, user.ID, user.LastActive); err != nil {
		return result, fmt.Errorf("can't update user activity. Err: %w", err)
	}
	result.User = user.Public()

	return result, nil
}

// Redeem verification code and mark the user verified
// Returned access token is empty unless configured to issue it
func (s *AuthService) VerifyEmail(ctx context.Context, username string, code string) (models.IssuedToken, error) {
	var access models.IssuedToken

	if username == "" || code == "" {
		return access, ErrMalformedVerification
	}

	ok, err := s.tokens.RedeemVerificationCode(ctx, username, code)
	if err != nil {
		return access, fmt.Errorf("can't redeem verification code. Err: %w", err)
	}
	if !ok {
		return access, ErrVerificationFailed
	}

	if err := s.storage.User().SetEmailVerified(ctx, username); err != nil {
		return access, fmt.Errorf("can't mark user verified. Err: %w", err)
	}
	s.logger.Info("Email verified", "username", username)

	if !s.issueAccessOnVerify {
		return access, nil
	}

	pair, err := s.tokens.IssueTokens(ctx, username, true)
	if err != nil {
		return access, fmt.Errorf("token could not generated. Err: %w", err)
	}

	return pair.Access, nil
}

// Exchange live refresh token for a new pair, the presented one stops working
func (s *AuthService) RefreshAccess(ctx context.Context, username string, refresh string) (models.TokenPair, error) {
	pair, err := s.tokens.IssueTokens(ctx, username, true)
	if err != nil {
		return models.TokenPair{}, fmt.Errorf("token could not generated. Err: %w", err)
	}

	ok, err := s.tokens.RotateRefreshToken(ctx, username, refresh, pair.Refresh.Value)
	if err != nil {
		return models.TokenPair{}, fmt.Errorf("can't rotate refresh token. Err: %w", err)
	}
	if !ok {
		return models.TokenPair{}, apperrors.Unauthorized(msgInvalidRefresh)
	}

	return pair, nil
}

func (s *AuthService) issueSession(ctx context.Context, username string) (models.TokenPair, error) {
	pair, err := s.tokens.IssueTokens(ctx, username, true)
	if err != nil {
		return pair, fmt.Errorf("token could not generated. Err: %w", err)
	}

	if err := s.tokens.PersistRefreshToken(ctx, username, pair.Refresh.Value); err != nil {
		return pair, fmt.Errorf("refresh token could not be saved. Err: %w", err)
	}

	return pair, nil
}

// Issue code and email it. Delivery failure is only logged:
// the user can sign in again to receive a fresh code
func (s *AuthService) sendVerification(ctx context.Context, user models.User) error {
	code, err := s.tokens.IssueVerificationCode(ctx, user.Username)
	if err != nil {
		return fmt.Errorf("can't issue verification code. Err: %w", err)
	}

	link := s.publicURL + "/v1/email/verify?" + url.Values{
		"username": {user.Username},
		"code":     {code},
	}.Encode()

	err = s.mailer.SendTemplate(
		ctx,
		mail.Recipient{Email: user.Email, Name: user.Username},
		verificationSubject,
		mail.TemplateVerification,
		map[string]any{
			"Username":       user.Username,
			"Link":           link,
			"ExpiresInHours": int(verificationTTL.Hours()),
		},
	)
	if err != nil {
		s.logger.Error("Verification email not sent", "username", user.Username, "error", err)
	}

	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
