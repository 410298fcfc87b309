package fetch

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for retry operations.
var (
	fetchRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_fetch_retries_total",
		Help: "Total number of retry attempts by error class",
	}, []string{"error_class"})

	fetchRetryBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "catalog_fetch_retry_backoff_seconds",
		Help:    "Backoff duration for retries by error class",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"error_class"})

	fetchRetryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_fetch_retry_exhausted_total",
		Help: "Total number of times retry attempts were exhausted by error class",
	}, []string{"error_class"})
)

// RetryConfig holds the configuration for retry logic.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts (including the initial request).
	MaxAttempts int

	// InitialBackoff is the initial backoff duration.
	InitialBackoff time.Duration

	// MaxBackoff is the maximum backoff duration.
	MaxBackoff time.Duration

	// BackoffMultiplier is the multiplier for exponential backoff.
	BackoffMultiplier float64
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    1 * time.Second,
		MaxBackoff:        10 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

func (c RetryConfig) withDefaults() RetryConfig {
	d := DefaultRetryConfig()
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = d.InitialBackoff
	}
	if c.MaxBackoff < c.InitialBackoff {
		c.MaxBackoff = c.InitialBackoff
	}
	if c.BackoffMultiplier < 1 {
		c.BackoffMultiplier = d.BackoffMultiplier
	}
	return c
}

// backoff returns the un-jittered wait after the given failed attempt
// (1-based): InitialBackoff * BackoffMultiplier^(attempt-1), capped at
// MaxBackoff.
func (c RetryConfig) backoff(attempt int) time.Duration {
	d := float64(c.InitialBackoff)
	for i := 1; i < attempt; i++ {
		d *= c.BackoffMultiplier
		if d >= float64(c.MaxBackoff) {
			return c.MaxBackoff
		}
	}
	return time.Duration(d)
}

// withJitter spreads d by ±20%.
func withJitter(d time.Duration) time.Duration {
	return time.Duration(float64(d) * (0.8 + rand.Float64()*0.4))
}

// retryWithBackoff runs fn until it succeeds, fails with a class that
// shouldRetry rejects, or MaxAttempts is reached. ctx aborts both attempts
// and waits. allow, when set, is consulted before each retry; once it
// refuses, the last error is returned wrapped in ErrCooldown.
func retryWithBackoff(ctx context.Context, config RetryConfig, logger zerolog.Logger, allow func() (bool, time.Duration), fn func() error) error {
	config = config.withDefaults()

	var (
		lastErr error
		class   ErrorClass
	)

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w: %w", ErrContextCancelled, err)
		}

		lastErr = fn()
		if lastErr == nil {
			if attempt > 1 {
				logger.Info().
					Str("error_class", string(class)).
					Int("attempt", attempt).
					Msg("Catalog fetch recovered after retry")
			}
			return nil
		}

		class = ClassOf(lastErr)
		if !shouldRetry(class) {
			return lastErr
		}
		if attempt == config.MaxAttempts {
			break
		}
		if allow != nil {
			if ok, hold := allow(); !ok {
				logger.Warn().
					Str("error_class", string(class)).
					Int("attempt", attempt).
					Dur("retry_in", hold).
					Msg("Origin cooldown active - abandoning retries")
				return fmt.Errorf("%w: retries held back: %w", ErrCooldown, lastErr)
			}
		}

		wait := withJitter(config.backoff(attempt))
		fetchRetriesTotal.WithLabelValues(string(class)).Inc()
		fetchRetryBackoffSeconds.WithLabelValues(string(class)).Observe(wait.Seconds())
		logger.Debug().
			Str("error_class", string(class)).
			Int("attempt", attempt).
			Dur("backoff", wait).
			Msg("Retrying catalog fetch")

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%w during backoff: %w", ErrContextCancelled, ctx.Err())
		case <-timer.C:
		}
	}

	fetchRetryExhaustedTotal.WithLabelValues(string(class)).Inc()
	logger.Warn().
		Err(lastErr).
		Str("error_class", string(class)).
		Int("max_attempts", config.MaxAttempts).
		Msg("Catalog fetch retries exhausted")

	return fmt.Errorf("%w after %d attempts: %w", ErrRetryExhausted, config.MaxAttempts, lastErr)
}
