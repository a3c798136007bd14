package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/efreitasn/marketlab/internal/domain"
)

// SQLSTATE codes for contention that a fresh attempt can resolve.
var transientCodes = map[string]bool{
	"40001": true, // serialization_failure
	"40P01": true, // deadlock_detected
	"55P03": true, // lock_not_available
}

// IsTransient reports whether err is a storage failure worth retrying.
func IsTransient(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return transientCodes[pgErr.Code]
	}
	return pgconn.SafeToRetry(err)
}

// RetryPolicy bounds retries of transient storage failures.
type RetryPolicy struct {
	MaxRetries int
	Backoff    time.Duration
}

// do runs fn until it succeeds, fails permanently, or runs out of retries.
// Exhausted retries wrap domain.ErrStoreUnavailable.
func (p RetryPolicy) do(ctx context.Context, logger *slog.Logger, op string, fn func(context.Context) error) error {
	var err error
	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		if attempt > 0 {
			logger.Debug("retrying store operation",
				"op", op,
				"attempt", attempt,
				"backoff", p.Backoff,
				"error", err,
			)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(p.Backoff):
			}
		}

		err = fn(ctx)
		if err == nil {
			return nil
		}
		if !IsTransient(err) {
			return err
		}
	}

	logger.Warn("store retries exhausted", "op", op, "retries", p.MaxRetries, "error", err)
	return fmt.Errorf("%s: %w: %w", op, domain.ErrStoreUnavailable, err)
}
