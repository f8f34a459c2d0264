package auth

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/kaizen/internal/apperrors"
	"github.com/nkiryanov/kaizen/internal/logger"
	"github.com/nkiryanov/kaizen/internal/repository/postgres"
	"github.com/nkiryanov/kaizen/internal/repository/redis"
	"github.com/nkiryanov/kaizen/internal/service/auth/tokenmanager"
	"github.com/nkiryanov/kaizen/internal/service/mail"
	"github.com/nkiryanov/kaizen/internal/testutil"
)

type sentMail struct {
	To   mail.Recipient
	Data map[string]any
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (m *fakeMailer) SendTemplate(_ context.Context, to mail.Recipient, _ string, _ string, data any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentMail{To: to, Data: data.(map[string]any)})
	return m.err
}

// Code from the last verification link sent
func (m *fakeMailer) lastCode(t *testing.T) string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.NotEmpty(t, m.sent, "no email sent")

	link, err := url.Parse(m.sent[len(m.sent)-1].Data["Link"].(string))
	require.NoError(t, err)
	return link.Query().Get("code")
}

type env struct {
	s      *AuthService
	mailer *fakeMailer
	tokens *tokenmanager.TokenManager
	redis  *miniredis.Miniredis
}

func Test_Auth(t *testing.T) {
	t.Parallel()

	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	// Begin new db transaction and create new AuthService
	// Rollback transaction when test stops
	withTx := func(dbpool *pgxpool.Pool, t *testing.T, fn func(e env)) {
		testutil.WithTx(dbpool, t, func(tx pgx.Tx) {
			mr, client := testutil.StartRedis(t)

			tokens, err := tokenmanager.New(
				tokenmanager.Config{AccessSecret: "access-secret", RefreshSecret: "refresh-secret"},
				&redis.RefreshTokenRepo{Client: client},
				&redis.VerificationCodeRepo{Client: client},
			)
			require.NoError(t, err, "token manager should be created without errors")

			mailer := &fakeMailer{}
			s, err := NewService(
				Config{PublicURL: "http://api.local/", IssueAccessOnVerify: true, Hasher: BcryptHasher{Cost: 4}},
				tokens,
				postgres.NewStorage(tx),
				mailer,
				logger.NewNoOpLogger(),
			)
			require.NoError(t, err, "auth service could't be started")

			fn(env{s: s, mailer: mailer, tokens: tokens, redis: mr})
		})
	}

	requireAppError := func(t *testing.T, err error, code int, message string) {
		t.Helper()
		appErr, ok := apperrors.As(err)
		require.True(t, ok, "client safe error expected, got %v", err)
		assert.Equal(t, code, appErr.Code)
		assert.Equal(t, message, appErr.Message)
	}

	t.Run("new auth service defaults", func(t *testing.T) {
		s, err := NewService(Config{}, &tokenmanager.TokenManager{}, postgres.NewStorage(pg.Pool), &fakeMailer{}, nil)
		require.NoError(t, err, "auth service should be created without errors")

		require.Equal(t, BcryptHasher{}, s.hasher, "default hasher should be set to BcryptHasher")
	})

	t.Run("new auth service without deps", func(t *testing.T) {
		_, err := NewService(Config{}, nil, nil, nil, nil)
		require.Error(t, err)
	})

	t.Run("Signup", func(t *testing.T) {
		t.Run("new user ok", func(t *testing.T) {
			withTx(pg.Pool, t, func(e env) {
				result, err := e.s.Signup(t.Context(), "John Doe", "John.Doe@Example.com", "password")

				require.NoError(t, err, "registering new user should be ok")
				assert.Equal(t, "joh*****@example.com", result.ObfuscatedEmail)
				assert.NotEmpty(t, result.Tokens.Access.Value, "access token should not be empty")
				assert.NotEmpty(t, result.Tokens.Refresh.Value, "refresh token should not be empty")

				ok, err := e.tokens.MatchRefreshToken(t.Context(), "john-doe", result.Tokens.Refresh.Value)
				require.NoError(t, err)
				assert.True(t, ok, "refresh token persisted under slugified username")

				claims, ok := e.tokens.VerifyAccess(result.Tokens.Access.Value)
				require.True(t, ok)
				assert.Equal(t, "john-doe", claims.Username)
			})
		})

		t.Run("verification email sent", func(t *testing.T) {
			withTx(pg.Pool, t, func(e env) {
				_, err := e.s.Signup(t.Context(), "jdoe", "jdoe@example.com", "password")
				require.NoError(t, err)

				require.Len(t, e.mailer.sent, 1)
				assert.Equal(t, mail.Recipient{Email: "jdoe@example.com", Name: "jdoe"}, e.mailer.sent[0].To)

				link, err := url.Parse(e.mailer.sent[0].Data["Link"].(string))
				require.NoError(t, err)
				assert.Equal(t, "api.local", link.Host)
				assert.Equal(t, "/v1/email/verify", link.Path)
				assert.Equal(t, "jdoe", link.Query().Get("username"))

				code, found, err := e.tokens.ReadVerificationCode(t.Context(), "jdoe")
				require.NoError(t, err)
				require.True(t, found)
				assert.Equal(t, code, link.Query().Get("code"))
			})
		})

		t.Run("fail if username exists", func(t *testing.T) {
			withTx(pg.Pool, t, func(e env) {
				_, err := e.s.Signup(t.Context(), "jdoe", "jdoe@example.com", "password")
				require.NoError(t, err, "no error has should happen if user not exists")

				_, err = e.s.Signup(t.Context(), "jdoe", "other@example.com", "other-pwd")

				requireAppError(t, err, http.StatusBadRequest, "A user with this credentials already exists, sign in instead.")
			})
		})

		t.Run("fail if email exists", func(t *testing.T) {
			withTx(pg.Pool, t, func(e env) {
				_, err := e.s.Signup(t.Context(), "jdoe", "jdoe@example.com", "password")
				require.NoError(t, err)

				_, err = e.s.Signup(t.Context(), "other", "JDOE@example.com", "password")

				requireAppError(t, err, http.StatusBadRequest, "A user with this credentials already exists, sign in instead.")
				assert.Len(t, e.mailer.sent, 1, "no email for rejected signup")
			})
		})

		t.Run("username without letters", func(t *testing.T) {
			withTx(pg.Pool, t, func(e env) {
				_, err := e.s.Signup(t.Context(), "!!!", "jdoe@example.com", "password")

				requireAppError(t, err, http.StatusBadRequest, "Username must contain letters or digits.")
			})
		})

		t.Run("transliterated username too long", func(t *testing.T) {
			withTx(pg.Pool, t, func(e env) {
				username := strings.Repeat("中華人民共和國", 3)

				_, err := e.s.Signup(t.Context(), username, "jdoe@example.com", "password")

				requireAppError(t, err, http.StatusBadRequest, "Username is too long.")
				assert.Empty(t, e.mailer.sent, "no email for rejected signup")
			})
		})

		t.Run("mail failure does not fail signup", func(t *testing.T) {
			withTx(pg.Pool, t, func(e env) {
				e.mailer.err = errors.New("mail service down")

				result, err := e.s.Signup(t.Context(), "jdoe", "jdoe@example.com", "password")

				require.NoError(t, err)
				assert.NotEmpty(t, result.Tokens.Refresh.Value)
			})
		})
	})

	t.Run("Signin", func(t *testing.T) {
		// Signup and verify user
		verified := func(t *testing.T, e env) {
			_, err := e.s.Signup(t.Context(), "jdoe", "jdoe@example.com", "password")
			require.NoError(t, err)
			_, err = e.s.VerifyEmail(t.Context(), "jdoe", e.mailer.lastCode(t))
			require.NoError(t, err)
		}

		t.Run("verified user ok", func(t *testing.T) {
			withTx(pg.Pool, t, func(e env) {
				verified(t, e)
				e.s.now = func() time.Time { return time.Date(2030, 1, 1, 12, 0, 0, 0, time.UTC) }

				result, err := e.s.Signin(t.Context(), "JDoe@example.com", "password")

				require.NoError(t, err)
				assert.False(t, result.PendingVerification)
				assert.NotEmpty(t, result.Tokens.Access.Value)
				assert.NotEmpty(t, result.Tokens.Refresh.Value)
				assert.Equal(t, "jdoe", result.User.Username)
				assert.Equal(t, "jdoe@example.com", result.User.Email)
				assert.True(t, result.User.IsEmailVerified)
				assert.Equal(t, time.Date(2030, 1, 1, 12, 0, 0, 0, time.UTC), result.User.LastActive)

				ok, err := e.tokens.MatchRefreshToken(t.Context(), "jdoe", result.Tokens.Refresh.Value)
				require.NoError(t, err)
				assert.True(t, ok)
			})
		})

		t.Run("unverified user gets new code", func(t *testing.T) {
			withTx(pg.Pool, t, func(e env) {
				_, err := e.s.Signup(t.Context(), "jdoe", "jdoe@example.com", "password")
				require.NoError(t, err)
				signupCode := e.mailer.lastCode(t)

				result, err := e.s.Signin(t.Context(), "jdoe@example.com", "password")

				require.NoError(t, err)
				assert.True(t, result.PendingVerification)
				assert.Equal(t, "j***@example.com", result.ObfuscatedEmail)
				assert.Empty(t, result.Tokens.Access.Value, "no tokens for unverified user")
				assert.Empty(t, result.Tokens.Refresh.Value, "no tokens for unverified user")
				assert.Len(t, e.mailer.sent, 2, "exactly one new code sent")
				assert.NotEqual(t, signupCode, e.mailer.lastCode(t))

				_, err = e.s.VerifyEmail(t.Context(), "jdoe", signupCode)
				assert.ErrorIs(t, err, ErrVerificationFailed, "previous code invalidated")
			})
		})

		t.Run("unknown user", func(t *testing.T) {
			withTx(pg.Pool, t, func(e env) {
				_, err := e.s.Signin(t.Context(), "nobody@example.com", "password")

				requireAppError(t, err, http.StatusBadRequest, "User doesn't exist.")
			})
		})

		t.Run("wrong password", func(t *testing.T) {
			withTx(pg.Pool, t, func(e env) {
				verified(t, e)

				_, err := e.s.Signin(t.Context(), "jdoe@example.com", "wrong-password")

				requireAppError(t, err, http.StatusBadRequest, "Password mismatch.")
			})
		})
	})

	t.Run("VerifyEmail", func(t *testing.T) {
		t.Run("verify ok", func(t *testing.T) {
			withTx(pg.Pool, t, func(e env) {
				_, err := e.s.Signup(t.Context(), "jdoe", "jdoe@example.com", "password")
				require.NoError(t, err)

				access, err := e.s.VerifyEmail(t.Context(), "jdoe", e.mailer.lastCode(t))

				require.NoError(t, err)
				claims, ok := e.tokens.VerifyAccess(access.Value)
				require.True(t, ok, "access token issued on verification")
				assert.Equal(t, "jdoe", claims.Username)

				_, found, err := e.tokens.ReadVerificationCode(t.Context(), "jdoe")
				require.NoError(t, err)
				assert.False(t, found, "code consumed")
			})
		})

		t.Run("code can't be used twice", func(t *testing.T) {
			withTx(pg.Pool, t, func(e env) {
				_, err := e.s.Signup(t.Context(), "jdoe", "jdoe@example.com", "password")
				require.NoError(t, err)
				code := e.mailer.lastCode(t)
				_, err = e.s.VerifyEmail(t.Context(), "jdoe", code)
				require.NoError(t, err)

				_, err = e.s.VerifyEmail(t.Context(), "jdoe", code)

				assert.ErrorIs(t, err, ErrVerificationFailed)
			})
		})

		t.Run("wrong code", func(t *testing.T) {
			withTx(pg.Pool, t, func(e env) {
				_, err := e.s.Signup(t.Context(), "jdoe", "jdoe@example.com", "password")
				require.NoError(t, err)

				_, err = e.s.VerifyEmail(t.Context(), "jdoe", "wrong")

				assert.ErrorIs(t, err, ErrVerificationFailed)
			})
		})

		t.Run("expired code", func(t *testing.T) {
			withTx(pg.Pool, t, func(e env) {
				_, err := e.s.Signup(t.Context(), "jdoe", "jdoe@example.com", "password")
				require.NoError(t, err)
				e.redis.FastForward(25 * time.Hour)

				_, err = e.s.VerifyEmail(t.Context(), "jdoe", e.mailer.lastCode(t))

				assert.ErrorIs(t, err, ErrVerificationFailed)
			})
		})

		t.Run("malformed", func(t *testing.T) {
			withTx(pg.Pool, t, func(e env) {
				_, errNoCode := e.s.VerifyEmail(t.Context(), "jdoe", "")
				_, errNoName := e.s.VerifyEmail(t.Context(), "", "code")

				assert.ErrorIs(t, errNoCode, ErrMalformedVerification)
				assert.ErrorIs(t, errNoName, ErrMalformedVerification)
			})
		})

		t.Run("without access token", func(t *testing.T) {
			withTx(pg.Pool, t, func(e env) {
				e.s.issueAccessOnVerify = false
				_, err := e.s.Signup(t.Context(), "jdoe", "jdoe@example.com", "password")
				require.NoError(t, err)

				access, err := e.s.VerifyEmail(t.Context(), "jdoe", e.mailer.lastCode(t))

				require.NoError(t, err)
				assert.Empty(t, access.Value)
			})
		})
	})

	t.Run("RefreshAccess", func(t *testing.T) {
		t.Run("rotate tokens", func(t *testing.T) {
			withTx(pg.Pool, t, func(e env) {
				signup, err := e.s.Signup(t.Context(), "jdoe", "jdoe@example.com", "password")
				require.NoError(t, err)

				pair, err := e.s.RefreshAccess(t.Context(), "jdoe", signup.Tokens.Refresh.Value)
				require.NoError(t, err)
				assert.NotEqual(t, signup.Tokens.Refresh.Value, pair.Refresh.Value)

				_, err = e.s.RefreshAccess(t.Context(), "jdoe", signup.Tokens.Refresh.Value)
				requireAppError(t, err, http.StatusUnauthorized, "Refresh token is invalid or expired.")

				_, err = e.s.RefreshAccess(t.Context(), "jdoe", pair.Refresh.Value)
				require.NoError(t, err, "new token works")
			})
		})

		t.Run("concurrent refresh with same token succeeds once", func(t *testing.T) {
			withTx(pg.Pool, t, func(e env) {
				signup, err := e.s.Signup(t.Context(), "jdoe", "jdoe@example.com", "password")
				require.NoError(t, err)

				var wg sync.WaitGroup
				errs := make(chan error, 10)
				for range 10 {
					wg.Add(1)
					go func() {
						defer wg.Done()
						_, err := e.s.RefreshAccess(t.Context(), "jdoe", signup.Tokens.Refresh.Value)
						errs <- err
					}()
				}
				wg.Wait()
				close(errs)

				succeeded := 0
				for err := range errs {
					if err == nil {
						succeeded++
						continue
					}
					requireAppError(t, err, http.StatusUnauthorized, "Refresh token is invalid or expired.")
				}
				assert.Equal(t, 1, succeeded)
			})
		})

		t.Run("unknown token", func(t *testing.T) {
			withTx(pg.Pool, t, func(e env) {
				_, err := e.s.RefreshAccess(t.Context(), "jdoe", "made-up")

				requireAppError(t, err, http.StatusUnauthorized, "Refresh token is invalid or expired.")
			})
		})
	})
}
