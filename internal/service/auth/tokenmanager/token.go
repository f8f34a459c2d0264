package tokenmanager

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/nkiryanov/kaizen/internal/apperrors"
	"github.com/nkiryanov/kaizen/internal/models"
	"github.com/nkiryanov/kaizen/internal/repository"
)

const (
	defaultAccessTokenTTL      = time.Hour
	defaultSigningMethod       = "HS256"
	defaultRefreshTokenTTL     = 48 * time.Hour
	defaultVerificationCodeTTL = 24 * time.Hour

	// Refresh tokens and verification codes are 256 bit long
	randomTokenBytes = 32
)

type AccessTokenClaims struct {
	jwt.RegisteredClaims
	Username string `json:"username"`
}

// Token manager with sensible default
type Config struct {
	// Secret key to sign access token
	// Required to be set
	AccessSecret string

	// Secret key refresh tokens are digested with before being stored
	// Required to be set
	RefreshSecret string

	// JWT MAC (Message Authentication Code) algorithm
	// If not set than default is used
	Alg string

	// Token lifetimes
	// If not set than default is used
	AccessTTL           time.Duration
	RefreshTTL          time.Duration
	VerificationCodeTTL time.Duration
}

type TokenManager struct {
	accessKey  []byte
	refreshKey []byte

	alg jwt.SigningMethod

	accessTTL  time.Duration
	refreshTTL time.Duration
	codeTTL    time.Duration

	refreshRepo repository.RefreshTokenRepo
	codeRepo    repository.VerificationCodeRepo

	now func() time.Time
}

func New(cfg Config, refreshRepo repository.RefreshTokenRepo, codeRepo repository.VerificationCodeRepo) (*TokenManager, error) {
	if cfg.AccessSecret == "" || cfg.RefreshSecret == "" {
		return nil, fmt.Errorf("access and refresh secrets must not be empty. Err: %w", apperrors.ErrConfiguration)
	}

	if cfg.Alg == "" {
		cfg.Alg = defaultSigningMethod
	}
	alg := jwt.GetSigningMethod(cfg.Alg)
	if alg == nil || alg == jwt.SigningMethodNone {
		return nil, fmt.Errorf("unsupported signing method %q. Err: %w", cfg.Alg, apperrors.ErrConfiguration)
	}

	setDefaultDuration := func(field *time.Duration, def time.Duration) {
		if *field == 0 {
			*field = def
		}
	}
	setDefaultDuration(&cfg.AccessTTL, defaultAccessTokenTTL)
	setDefaultDuration(&cfg.RefreshTTL, defaultRefreshTokenTTL)
	setDefaultDuration(&cfg.VerificationCodeTTL, defaultVerificationCodeTTL)

	return &TokenManager{
		accessKey:   []byte(cfg.AccessSecret),
		refreshKey:  []byte(cfg.RefreshSecret),
		alg:         alg,
		accessTTL:   cfg.AccessTTL,
		refreshTTL:  cfg.RefreshTTL,
		codeTTL:     cfg.VerificationCodeTTL,
		refreshRepo: refreshRepo,
		codeRepo:    codeRepo,
		now:         time.Now,
	}, nil
}

// Issue refresh token and, if requested, access token for the user
// Tokens are not persisted, call PersistRefreshToken to make refresh token usable
func (m *TokenManager) IssueTokens(ctx context.Context, username string, withAccess bool) (models.TokenPair, error) {
	var pair models.TokenPair
	now := m.now().Truncate(time.Second)

	refresh, err := randomToken()
	if err != nil {
		return pair, fmt.Errorf("error while generate refresh token. Err: %w", err)
	}
	pair.Refresh = models.IssuedToken{Value: refresh, ExpiresAt: now.Add(m.refreshTTL)}

	if withAccess {
		pair.Access, err = m.signAccess(username, now)
		if err != nil {
			return pair, err
		}
	}

	return pair, nil
}

func (m *TokenManager) signAccess(username string, now time.Time) (models.IssuedToken, error) {
	expiresAt := now.Add(m.accessTTL)

	token := jwt.NewWithClaims(
		m.alg,
		AccessTokenClaims{
			RegisteredClaims: jwt.RegisteredClaims{
				ID:        uuid.NewString(),
				IssuedAt:  jwt.NewNumericDate(now),
				ExpiresAt: jwt.NewNumericDate(expiresAt),
			},
			Username: username,
		},
	)
	access, err := token.SignedString(m.accessKey)
	if err != nil {
		return models.IssuedToken{}, fmt.Errorf("error while signing access token. Err: %w", err)
	}

	return models.IssuedToken{Value: access, ExpiresAt: expiresAt}, nil
}

// Check access token signature and expiry
// Any failure (malformed, wrong key or alg, expired) reported as false
func (m *TokenManager) VerifyAccess(access string) (models.AccessClaims, bool) {
	claims := &AccessTokenClaims{}

	token, err := jwt.ParseWithClaims(
		access,
		claims,
		func(t *jwt.Token) (any, error) {
			return m.accessKey, nil
		},
		jwt.WithValidMethods([]string{m.alg.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil || !token.Valid || claims.Username == "" {
		return models.AccessClaims{}, false
	}

	verified := models.AccessClaims{
		Username:  claims.Username,
		ExpiresAt: claims.ExpiresAt.Time,
	}
	if claims.IssuedAt != nil {
		verified.IssuedAt = claims.IssuedAt.Time
	}

	return verified, true
}

// Store refresh token for the user replacing the previous one
func (m *TokenManager) PersistRefreshToken(ctx context.Context, username string, refresh string) error {
	err := m.refreshRepo.SaveRefresh(ctx, username, m.digest(refresh), m.refreshTTL)
	if err != nil {
		return fmt.Errorf("error while saving refresh token. Err: %w", err)
	}
	return nil
}

// Report whether refresh is the live token of the user
func (m *TokenManager) MatchRefreshToken(ctx context.Context, username string, refresh string) (bool, error) {
	stored, err := m.refreshRepo.GetRefresh(ctx, username)
	switch {
	case errors.Is(err, apperrors.ErrRefreshTokenNotFound):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("error while reading refresh token. Err: %w", err)
	}

	return subtle.ConstantTimeCompare([]byte(stored), []byte(m.digest(refresh))) == 1, nil
}

// Replace presented refresh token with next only if presented is still the live one
// Of concurrent callers presenting the same token at most one succeeds
func (m *TokenManager) RotateRefreshToken(ctx context.Context, username string, presented string, next string) (bool, error) {
	rotated, err := m.refreshRepo.RotateRefresh(ctx, username, m.digest(presented), m.digest(next), m.refreshTTL)
	if err != nil {
		return false, fmt.Errorf("error while rotating refresh token. Err: %w", err)
	}
	return rotated, nil
}

// Issue fresh verification code for the user, the previous one stops working
func (m *TokenManager) IssueVerificationCode(ctx context.Context, username string) (string, error) {
	code, err := randomToken()
	if err != nil {
		return "", fmt.Errorf("error while generate verification code. Err: %w", err)
	}

	if err := m.codeRepo.SaveCode(ctx, username, code, m.codeTTL); err != nil {
		return "", fmt.Errorf("error while saving verification code. Err: %w", err)
	}

	return code, nil
}

// Return live verification code of the user
// found is false when code never issued, consumed or expired
func (m *TokenManager) ReadVerificationCode(ctx context.Context, username string) (code string, found bool, err error) {
	code, err = m.codeRepo.GetCode(ctx, username)
	switch {
	case errors.Is(err, apperrors.ErrVerificationCodeNotFound):
		return "", false, nil
	case err != nil:
		return "", false, fmt.Errorf("error while reading verification code. Err: %w", err)
	default:
		return code, true, nil
	}
}

// Delete verification code of the user. Deleting absent code is ok
func (m *TokenManager) ConsumeVerificationCode(ctx context.Context, username string) error {
	if err := m.codeRepo.DeleteCode(ctx, username); err != nil {
		return fmt.Errorf("error while deleting verification code. Err: %w", err)
	}
	return nil
}

// Consume verification code if it matches the live one
// Concurrent calls with the same code succeed at most once
func (m *TokenManager) RedeemVerificationCode(ctx context.Context, username string, code string) (bool, error) {
	ok, err := m.codeRepo.RedeemCode(ctx, username, code)
	if err != nil {
		return false, fmt.Errorf("error while redeeming verification code. Err: %w", err)
	}
	return ok, nil
}

func (m *TokenManager) digest(refresh string) string {
	mac := hmac.New(sha256.New, m.refreshKey)
	mac.Write([]byte(refresh))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

func randomToken() (string, error) {
	b := make([]byte, randomTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
