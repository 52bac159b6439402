// Package ratelimit counts failed logins in Redis fixed windows.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nkiryanov/schoolhub/internal/apperrors"
	"github.com/nkiryanov/schoolhub/internal/models"
)

const (
	defaultMaxAttempts = 5
	defaultWindow      = 15 * time.Minute
	keyPrefix          = "schoolhub:login:"
)

var ErrRedisUnavailable = errors.New("redis unavailable")

type Config struct {
	// Failed attempts allowed within the window
	MaxAttempts int

	// Window starts with the first failed attempt
	Window time.Duration
}

type LoginLimiter struct {
	redis       redis.UniversalClient
	maxAttempts int
	window      time.Duration
}

func New(client redis.UniversalClient, cfg Config) *LoginLimiter {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.Window <= 0 {
		cfg.Window = defaultWindow
	}

	return &LoginLimiter{
		redis:       client,
		maxAttempts: cfg.MaxAttempts,
		window:      cfg.Window,
	}
}

// Check returns apperrors.ErrRateLimited when attempts are exhausted
func (l *LoginLimiter) Check(ctx context.Context, tenant string, email string) error {
	count, err := l.redis.Get(ctx, loginKey(tenant, email)).Int64()
	switch {
	case errors.Is(err, redis.Nil):
		return nil
	case err != nil:
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	if count >= int64(l.maxAttempts) {
		return apperrors.ErrRateLimited
	}
	return nil
}

// Fail records failed attempt
func (l *LoginLimiter) Fail(ctx context.Context, tenant string, email string) error {
	key := loginKey(tenant, email)

	// Fixed window: expiry is set only while the key has none,
	// so a counter never outlives its window even if earlier expire was lost
	_, err := l.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, key)
		pipe.ExpireNX(ctx, key, l.window)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return nil
}

// Reset clears attempts after successful login
func (l *LoginLimiter) Reset(ctx context.Context, tenant string, email string) error {
	if err := l.redis.Del(ctx, loginKey(tenant, email)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

func loginKey(tenant string, email string) string {
	return keyPrefix + strings.ToLower(strings.TrimSpace(tenant)) + ":" + models.NormalizeEmail(email)
}
