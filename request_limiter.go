package emailauth

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

var (
	errRequestRateLimited        = errors.New("login request rate limited")
	errRequestLimiterUnavailable = errors.New("login request limiter unavailable")
)

type requestLimiter struct {
	redis  *redis.Client
	config RequestLimitConfig
}

func newRequestLimiter(redisClient *redis.Client, cfg RequestLimitConfig) *requestLimiter {
	if !cfg.Enabled {
		return nil
	}
	return &requestLimiter{
		redis:  redisClient,
		config: cfg,
	}
}

// Check enforces a fixed window per email and, when the caller IP is known,
// per IP. A nil limiter allows everything.
func (l *requestLimiter) Check(ctx context.Context, email, ip string) error {
	if l == nil {
		return nil
	}

	if err := l.enforceFixedWindow(ctx, requestEmailKey(email)); err != nil {
		return err
	}
	if ip != "" {
		if err := l.enforceFixedWindow(ctx, requestIPKey(ip)); err != nil {
			return err
		}
	}
	return nil
}

func (l *requestLimiter) enforceFixedWindow(ctx context.Context, key string) error {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", errRequestLimiterUnavailable, err)
	}

	if count == 1 {
		if err := l.redis.Expire(ctx, key, l.config.Window).Err(); err != nil {
			return fmt.Errorf("%w: %v", errRequestLimiterUnavailable, err)
		}
	}

	if count > int64(l.config.MaxRequests) {
		return errRequestRateLimited
	}

	return nil
}

func requestEmailKey(email string) string {
	return "loginreq-" + email
}

func requestIPKey(ip string) string {
	return "loginip-" + ip
}
