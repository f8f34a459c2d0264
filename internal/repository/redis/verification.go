package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/nkiryanov/kaizen/internal/apperrors"
)

const (
	verificationKeyPrefix = "verification:"
	verificationField     = "code"
)

// Delete the code only if it equals to ARGV[1]
// HGET yields false for absent key so it never matches
var redeemScript = goredis.NewScript(`
local stored = redis.call("HGET", KEYS[1], ARGV[1])
if not stored or stored ~= ARGV[2] then
  return 0
end
redis.call("DEL", KEYS[1])
return 1
`)

// Verification codes stored in hash `verification:<username>` under field `code`
type VerificationCodeRepo struct {
	Client goredis.UniversalClient
}

func (r *VerificationCodeRepo) SaveCode(ctx context.Context, username string, code string, ttl time.Duration) error {
	key := verificationKeyPrefix + username

	_, err := r.Client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.HSet(ctx, key, verificationField, code)
		pipe.Expire(ctx, key, ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis error: %w", err)
	}

	return nil
}

func (r *VerificationCodeRepo) GetCode(ctx context.Context, username string) (string, error) {
	code, err := r.Client.HGet(ctx, verificationKeyPrefix+username, verificationField).Result()
	switch {
	case errors.Is(err, goredis.Nil):
		return "", fmt.Errorf("repo error: %w", apperrors.ErrVerificationCodeNotFound)
	case err != nil:
		return "", fmt.Errorf("redis error: %w", err)
	default:
		return code, nil
	}
}

func (r *VerificationCodeRepo) DeleteCode(ctx context.Context, username string) error {
	if err := r.Client.Del(ctx, verificationKeyPrefix+username).Err(); err != nil {
		return fmt.Errorf("redis error: %w", err)
	}
	return nil
}

func (r *VerificationCodeRepo) RedeemCode(ctx context.Context, username string, code string) (bool, error) {
	keys := []string{verificationKeyPrefix + username}

	redeemed, err := redeemScript.Run(ctx, r.Client, keys, verificationField, code).Int()
	if err != nil {
		return false, fmt.Errorf("redis error: %w", err)
	}

	return redeemed == 1, nil
}
