package errors

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/victorl2/trade-optimizer/internal/config"
)

// RetryResult describes a successful retried operation
type RetryResult struct {
	Attempts int
	Elapsed  time.Duration
}

// RetryPolicy retries fetch failures with a fixed or exponential delay.
// A MaxAttempts of zero retries until success or context cancellation.
type RetryPolicy struct {
	config config.RetryConfig
	logger *slog.Logger
}

// NewRetryPolicy creates a retry policy from configuration
func NewRetryPolicy(cfg config.RetryConfig, logger *slog.Logger) *RetryPolicy {
	if logger == nil {
		logger = slog.Default()
	}

	return &RetryPolicy{
		config: cfg,
		logger: logger,
	}
}

// MaxAttempts returns the attempt budget, zero meaning unbounded
func (p *RetryPolicy) MaxAttempts() int {
	return p.config.MaxAttempts
}

// Do runs fn until it succeeds, returns a non-retryable error, the attempt
// budget is spent, or ctx is done. fn receives the 1-based attempt number.
// An exhausted budget returns *ExhaustedError wrapping the last failure.
func (p *RetryPolicy) Do(ctx context.Context, operation string, fn func(attempt int) error) (RetryResult, error) {
	started := time.Now()
	attempts := 0
	var lastErr error

	op := func() error {
		attempts++
		err := fn(attempts)
		if err == nil {
			return nil
		}

		lastErr = err
		if !IsRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	notify := func(err error, next time.Duration) {
		p.logger.Warn("operation failed, retrying",
			"operation", operation,
			"attempt", attempts,
			"max_attempts", p.config.MaxAttempts,
			"error_type", GetErrorType(err),
			"next_delay", next,
			"error", err.Error())
	}

	err := backoff.RetryNotify(op, backoff.WithContext(p.newBackOff(), ctx), notify)
	result := RetryResult{Attempts: attempts, Elapsed: time.Since(started)}
	if err == nil {
		if attempts > 1 {
			p.logger.Info("operation recovered",
				"operation", operation,
				"attempts", attempts,
				"elapsed", result.Elapsed)
		}
		return result, nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return result, fmt.Errorf("%s canceled after %d attempts: %w", operation, attempts, ctxErr)
	}

	if !IsRetryable(lastErr) {
		return result, err
	}

	p.logger.Error("retry attempts exhausted",
		"operation", operation,
		"attempts", attempts,
		"error_type", GetErrorType(lastErr),
		"error", lastErr.Error())

	return result, &ExhaustedError{
		Operation: operation,
		Attempts:  attempts,
		Last:      lastErr,
	}
}

// newBackOff creates a backoff strategy based on configuration
func (p *RetryPolicy) newBackOff() backoff.BackOff {
	var strategy backoff.BackOff

	switch p.config.Strategy {
	case "fixed":
		strategy = backoff.NewConstantBackOff(p.config.InitialDelay)
	default:
		exponential := backoff.NewExponentialBackOff()
		exponential.InitialInterval = p.config.InitialDelay
		exponential.MaxInterval = p.config.MaxDelay
		exponential.Multiplier = p.config.Multiplier
		exponential.MaxElapsedTime = 0 // bounded by attempts, not time
		if !p.config.Jitter {
			exponential.RandomizationFactor = 0
		}
		strategy = exponential
	}

	if p.config.MaxAttempts > 0 {
		return backoff.WithMaxRetries(strategy, uint64(p.config.MaxAttempts-1))
	}
	return strategy
}
