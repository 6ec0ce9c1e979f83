package middleware

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/fathima-sithara/messaging-core/internal/apperrors"
)

// KeyFunc picks the bucket a request is counted against.
type KeyFunc func(c *fiber.Ctx) string

// ByIdentityOrIP buckets authenticated callers by user id and everyone else
// by client IP.
func ByIdentityOrIP(c *fiber.Ctx) string {
	if id, ok := Identity(c); ok {
		return "user:" + strconv.FormatInt(id.UserID, 10)
	}
	return "ip:" + clientIP(c)
}

func clientIP(c *fiber.Ctx) string {
	ip := c.IP()
	if ip == "" {
		return "unknown"
	}
	if host, _, err := net.SplitHostPort(ip); err == nil {
		return host
	}
	return ip
}

// RateLimiter is a fixed-window counter shared by every instance through
// Redis. When Redis is unreachable requests are let through.
type RateLimiter struct {
	redis  *redis.Client
	prefix string
	limit  int64
	window time.Duration
	log    *zap.Logger
}

func NewRateLimiter(r *redis.Client, prefix string, limit int, window time.Duration, log *zap.Logger) *RateLimiter {
	return &RateLimiter{redis: r, prefix: prefix, limit: int64(limit), window: window, log: log}
}

// Allow counts one hit for key and reports whether it is within the window.
func (r *RateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	redisKey := fmt.Sprintf("%s:ratelimit:%s", r.prefix, key)
	pipe := r.redis.TxPipeline()
	incr := pipe.Incr(ctx, redisKey)
	pipe.ExpireNX(ctx, redisKey, r.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return true, err
	}
	return incr.Val() <= r.limit, nil
}

func (r *RateLimiter) Handler(key KeyFunc) fiber.Handler {
	return func(c *fiber.Ctx) error {
		k := key(c)
		ok, err := r.Allow(c.UserContext(), k)
		if err != nil {
			r.log.Warn("rate limiter unavailable", zap.String("key", k), zap.Error(err))
		}
		if !ok {
			r.log.Warn("rate limit exceeded", zap.String("key", k), zap.String("path", c.Path()))
			return apperrors.ErrRateLimited
		}
		return c.Next()
	}
}
