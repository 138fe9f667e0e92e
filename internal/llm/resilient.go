package llm

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/felixgeelhaar/fortify/circuitbreaker"
	"github.com/felixgeelhaar/fortify/retry"
)

// Completer is anything that turns a prompt into raw text.
type Completer interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
}

// retryAttempts is the total number of calls per Complete, first one included.
const retryAttempts = 2

// ResilientConfig configures the retry and circuit breaker around a Completer.
type ResilientConfig struct {
	InitialDelay     time.Duration
	MaxDelay         time.Duration
	FailureThreshold int
	OpenTimeout      time.Duration
}

// DefaultResilientConfig returns defaults for remedial lesson generation.
func DefaultResilientConfig() ResilientConfig {
	return ResilientConfig{
		InitialDelay:     500 * time.Millisecond,
		MaxDelay:         2 * time.Second,
		FailureThreshold: 5,
		OpenTimeout:      30 * time.Second,
	}
}

// Resilient wraps a Completer with retry and a circuit breaker.
type Resilient struct {
	inner   Completer
	breaker circuitbreaker.CircuitBreaker[string]
	retrier retry.Retry[string]
}

// NewResilient wraps inner with the given policy.
func NewResilient(inner Completer, cfg ResilientConfig) *Resilient {
	threshold := cfg.FailureThreshold
	if threshold <= 0 {
		threshold = 5
	}
	return &Resilient{
		inner: inner,
		breaker: circuitbreaker.New[string](circuitbreaker.Config{
			MaxRequests: 1,
			Interval:    time.Minute,
			Timeout:     cfg.OpenTimeout,
			ReadyToTrip: func(counts circuitbreaker.Counts) bool {
				return int(counts.ConsecutiveFailures) >= threshold
			},
			OnStateChange: func(from, to circuitbreaker.State) {
				slog.Warn("LLM circuit breaker state change", "from", from.String(), "to", to.String())
			},
		}),
		retrier: retry.New[string](retry.Config{
			MaxAttempts:   retryAttempts,
			InitialDelay:  cfg.InitialDelay,
			MaxDelay:      cfg.MaxDelay,
			Multiplier:    2.0,
			BackoffPolicy: retry.BackoffExponential,
			Jitter:        true,
			IsRetryable:   IsRetryable,
		}),
	}
}

// Complete calls the inner Completer through the breaker and retrier.
func (r *Resilient) Complete(ctx context.Context, system, prompt string) (string, error) {
	return r.breaker.Execute(ctx, func(ctx context.Context) (string, error) {
		return r.retrier.Do(ctx, func(ctx context.Context) (string, error) {
			return r.inner.Complete(ctx, system, prompt)
		})
	})
}

// IsRetryable reports whether err is worth another attempt.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var rl *ErrRateLimit
	var unavail *ErrProviderUnavailable
	return errors.As(err, &rl) || errors.As(err, &unavail)
}
