// Package retry implements the exponential-backoff retry policy used
// by the worker orchestrator — recoverable errors retry with backoff
// and jitter, capped at a max delay, up to a bounded number of
// attempts — and by database/LLM/embedding calls that want the same
// policy without going through a task.
package retry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// RetryConfig controls attempt count and backoff shape.
type RetryConfig struct {
	MaxAttempts       int
	InitialDelay      time.Duration
	MaxDelay          time.Duration
	BackoffMultiplier float64
	Jitter            bool
}

// DefaultRetryConfig is a general-purpose policy.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		InitialDelay:      100 * time.Millisecond,
		MaxDelay:          5 * time.Second,
		BackoffMultiplier: 2.0,
		Jitter:            true,
	}
}

// DatabaseRetryConfig allows more attempts with a gentler backoff,
// tuned for transient pool exhaustion and serialization failures.
func DatabaseRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       5,
		InitialDelay:      250 * time.Millisecond,
		MaxDelay:          10 * time.Second,
		BackoffMultiplier: 1.5,
		Jitter:            true,
	}
}

var retryableMessageFragments = []string{
	"connection refused",
	"connection reset",
	"reset by peer",
	"timeout",
	"temporary failure",
	"too many connections",
	"deadlock detected",
	"lock timeout",
	"serialization failure",
	"could not serialize access",
	"connection lost",
	"server closed the connection",
	"broken pipe",
	"i/o timeout",
	"network is unreachable",
	"no route to host",
}

// retryableError lets WrapRetryableError force a classification that
// would otherwise be decided by message sniffing.
type retryableError struct {
	cause     error
	retryable bool
	reason    string
}

func (e *retryableError) Error() string {
	return fmt.Sprintf("retryable=%v: %s: %v", e.retryable, e.reason, e.cause)
}

func (e *retryableError) Unwrap() error {
	return e.cause
}

// WrapRetryableError annotates err with an explicit retryable flag,
// bypassing message-based classification. Returns nil if err is nil.
func WrapRetryableError(err error, retryable bool, reason string) error {
	if err == nil {
		return nil
	}
	return &retryableError{cause: err, retryable: retryable, reason: reason}
}

// IsRetryableError reports whether err should be retried: an explicit
// *retryableError flag wins, context.Canceled is never retryable,
// sql.ErrConnDone/context.DeadlineExceeded and a fixed set of
// infrastructure error-message fragments are retryable.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}

	var re *retryableError
	if errors.As(err, &re) {
		return re.retryable
	}

	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, sql.ErrConnDone) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, frag := range retryableMessageFragments {
		if strings.Contains(msg, frag) {
			return true
		}
	}
	return false
}

// Operation is a retryable unit of work that knows its own attempt
// number (1-based) and returns an arbitrary result.
type Operation func(ctx context.Context, attempt int) (any, error)

// Retrier executes an Operation under a RetryConfig.
type Retrier struct {
	config RetryConfig
	logger *logrus.Logger
}

// NewRetrier builds a Retrier. A nil logger disables logging.
func NewRetrier(config RetryConfig, logger *logrus.Logger) *Retrier {
	return &Retrier{config: config, logger: logger}
}

func (r *Retrier) logf(format string, args ...interface{}) {
	if r.logger != nil {
		r.logger.Debugf(format, args...)
	}
}

// ExecuteWithType runs op, retrying retryable failures with exponential
// backoff up to config.MaxAttempts. A non-retryable error aborts
// immediately. Context cancellation aborts between attempts.
func (r *Retrier) ExecuteWithType(ctx context.Context, op Operation) (any, error) {
	maxAttempts := r.config.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		result, err := op(ctx, attempt)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !IsRetryableError(err) {
			return nil, fmt.Errorf("non-retryable error: %w", err)
		}

		if attempt == maxAttempts {
			break
		}

		delay := r.backoffDelay(attempt)
		r.logf("retry: attempt %d/%d failed (%v), sleeping %v", attempt, maxAttempts, err, delay)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	return nil, fmt.Errorf("operation failed after %d attempts: %w", maxAttempts, lastErr)
}

func (r *Retrier) backoffDelay(attempt int) time.Duration {
	delay := float64(r.config.InitialDelay)
	multiplier := r.config.BackoffMultiplier
	if multiplier <= 0 {
		multiplier = 1
	}
	for i := 1; i < attempt; i++ {
		delay *= multiplier
		if time.Duration(delay) > r.config.MaxDelay && r.config.MaxDelay > 0 {
			delay = float64(r.config.MaxDelay)
			break
		}
	}

	result := time.Duration(delay)
	if r.config.MaxDelay > 0 && result > r.config.MaxDelay {
		result = r.config.MaxDelay
	}

	if r.config.Jitter {
		jitter := time.Duration(rand.Int63n(int64(result)/4 + 1))
		result += jitter
	}
	return result
}

// DatabaseRetrier pins a Retrier to DatabaseRetryConfig and names the
// operation in its error context.
type DatabaseRetrier struct {
	retrier *Retrier
}

// NewDatabaseRetrier builds a DatabaseRetrier using DatabaseRetryConfig.
func NewDatabaseRetrier(logger *logrus.Logger) *DatabaseRetrier {
	return &DatabaseRetrier{retrier: NewRetrier(DatabaseRetryConfig(), logger)}
}

// ExecuteDBOperation runs op under the database retry policy, naming it
// in any resulting error.
func (d *DatabaseRetrier) ExecuteDBOperation(ctx context.Context, name string, op Operation) (any, error) {
	result, err := d.retrier.ExecuteWithType(ctx, op)
	if err != nil {
		return nil, fmt.Errorf("database operation %q: %w", name, err)
	}
	return result, nil
}

// RetryIfNeeded adapts a legacy zero-argument operation (no attempt
// number, no result) to the same retry policy, for call sites that
// predate Retrier.
func RetryIfNeeded(ctx context.Context, config RetryConfig, logger *logrus.Logger, op func() error) error {
	retrier := NewRetrier(config, logger)
	_, err := retrier.ExecuteWithType(ctx, func(ctx context.Context, attempt int) (any, error) {
		return nil, op()
	})
	return err
}
