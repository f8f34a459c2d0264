package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/nkiryanov/kaizen/internal/apperrors"
)

const refreshKeyPrefix = "refresh:"

// Replace the stored digest only if it still equals the presented one
var rotateScript = goredis.NewScript(`
local stored = redis.call("HGET", KEYS[1], ARGV[1])
if not stored or stored ~= ARGV[2] then
  return 0
end
redis.call("HSET", KEYS[1], ARGV[1], ARGV[3])
redis.call("PEXPIRE", KEYS[1], ARGV[4])
return 1
`)

// Refresh token digests stored in hash `refresh:<username>` under field <username>
type RefreshTokenRepo struct {
	Client goredis.UniversalClient
}

func (r *RefreshTokenRepo) SaveRefresh(ctx context.Context, username string, digest string, ttl time.Duration) error {
	key := refreshKeyPrefix + username

	_, err := r.Client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key, username, digest)
		pipe.Expire(ctx, key, ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis error: %w", err)
	}

	return nil
}

func (r *RefreshTokenRepo) GetRefresh(ctx context.Context, username string) (string, error) {
	digest, err := r.Client.HGet(ctx, refreshKeyPrefix+username, username).Result()
	switch {
	case errors.Is(err, goredis.Nil):
		return "", fmt.Errorf("repo error: %w", apperrors.ErrRefreshTokenNotFound)
	case err != nil:
		return "", fmt.Errorf("redis error: %w", err)
	default:
		return digest, nil
	}
}

func (r *RefreshTokenRepo) RotateRefresh(ctx context.Context, username string, oldDigest string, newDigest string, ttl time.Duration) (bool, error) {
	key := refreshKeyPrefix + username

	rotated, err := rotateScript.Run(ctx, r.Client, []string{key}, username, oldDigest, newDigest, ttl.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("redis error: %w", err)
	}

	return rotated == 1, nil
}
