package middleware

import (
	"context"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fathima-sithara/messaging-core/internal/apperrors"
)

// LocalRateLimiter keeps a token bucket per key in process memory. It is used
// when Redis is not configured.
type LocalRateLimiter struct {
	visitors sync.Map
	rps      rate.Limit
	burst    int
	log      *zap.Logger
}

type visitor struct {
	limiter  *rate.Limiter
	mu       sync.Mutex
	lastSeen time.Time
}

// NewLocalRateLimiter allows limit requests per window with a burst of limit.
// Idle buckets are dropped until ctx is done.
func NewLocalRateLimiter(ctx context.Context, limit int, window time.Duration, log *zap.Logger) *LocalRateLimiter {
	l := &LocalRateLimiter{
		rps:   rate.Limit(float64(limit) / window.Seconds()),
		burst: limit,
		log:   log,
	}
	go l.cleanup(ctx, window)
	return l
}

func (l *LocalRateLimiter) limiter(key string) *rate.Limiter {
	now := time.Now()
	v, _ := l.visitors.LoadOrStore(key, &visitor{limiter: rate.NewLimiter(l.rps, l.burst), lastSeen: now})
	vi := v.(*visitor)
	vi.mu.Lock()
	vi.lastSeen = now
	vi.mu.Unlock()
	return vi.limiter
}

func (l *LocalRateLimiter) cleanup(ctx context.Context, window time.Duration) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-5 * window)
			l.visitors.Range(func(k, v any) bool {
				vi := v.(*visitor)
				vi.mu.Lock()
				idle := vi.lastSeen.Before(cutoff)
				vi.mu.Unlock()
				if idle {
					l.visitors.Delete(k)
				}
				return true
			})
		}
	}
}

func (l *LocalRateLimiter) Handler(key KeyFunc) fiber.Handler {
	return func(c *fiber.Ctx) error {
		k := key(c)
		if !l.limiter(k).Allow() {
			l.log.Warn("rate limit exceeded", zap.String("key", k), zap.String("path", c.Path()))
			return apperrors.ErrRateLimited
		}
		return c.Next()
	}
}
