// Package dispatch runs pipeline jobs in-process: bounded retries and an
// asynchronous worker pool.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Lllllllleong/ocrworker/internal/models"
)

// ErrRetriesExhausted wraps the last error of a job that used up its budget.
var ErrRetriesExhausted = errors.New("retries exhausted")

// RetryPolicy bounds how often a job is re-run after a failure.
type RetryPolicy struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 3, InitialBackoff: time.Second, MaxBackoff: 30 * time.Second}
}

// Retry runs fn until it succeeds, returns a permanent error, or has been
// retried MaxRetries times. Backoff doubles after every failure.
func Retry(ctx context.Context, p RetryPolicy, name string, fn func(ctx context.Context) error) error {
	backoff := p.InitialBackoff
	var lastErr error

	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if models.IsPermanent(err) {
			slog.Error("Job failed permanently.", "job", name, "attempt", attempt+1, "error", err)
			return err
		}
		lastErr = err
		if attempt == p.MaxRetries {
			break
		}

		slog.Warn(
			"Job failed, will retry.",
			"job", name,
			"attempt", attempt+1,
			"maxRetries", p.MaxRetries,
			"backoff", backoff.String(),
			"error", err,
		)
		select {
		case <-time.After(backoff):
			backoff *= 2
			if p.MaxBackoff > 0 && backoff > p.MaxBackoff {
				backoff = p.MaxBackoff
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return fmt.Errorf("%s: %w: %w", name, ErrRetriesExhausted, lastErr)
}
