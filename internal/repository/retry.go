package repository

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// isTransient reports whether a driver error is worth another attempt.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	if mongo.IsTimeout(err) || mongo.IsNetworkError(err) {
		return true
	}
	var se mongo.ServerError
	if errors.As(err, &se) {
		return se.HasErrorLabel("TransientTransactionError") || se.HasErrorLabel("RetryableWriteError")
	}
	return false
}

// do runs one storage call under the per-operation timeout and retries
// transient failures with exponential backoff. Inside a transaction the
// driver owns retries, so fn runs exactly once.
func (s *MongoStore) do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	attempt := func() error {
		cctx, cancel := context.WithTimeout(ctx, s.opTimeout)
		defer cancel()
		return fn(cctx)
	}
	if mongo.SessionFromContext(ctx) != nil || s.maxRetries == 0 {
		return attempt()
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 50 * time.Millisecond
	b.MaxInterval = time.Second
	b.MaxElapsedTime = 5 * s.opTimeout

	operation := func() error {
		err := attempt()
		if err != nil && !isTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		s.log.Warn("retrying store operation", zap.String("op", op), zap.Duration("wait", wait), zap.Error(err))
	}
	return backoff.RetryNotify(operation, backoff.WithContext(backoff.WithMaxRetries(b, s.maxRetries), ctx), notify)
}
