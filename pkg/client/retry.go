package client

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for retry operations.
var (
	retriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "animal_etl_retries_total",
		Help: "Total number of retry attempts by error class",
	}, []string{"error_class"})

	retryBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "animal_etl_retry_backoff_seconds",
		Help:    "Backoff duration for retries by error class",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"error_class"})

	retryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "animal_etl_retry_exhausted_total",
		Help: "Total number of times retry attempts were exhausted by error class",
	}, []string{"error_class"})
)

// RetryPolicy describes how a transport call is retried.
type RetryPolicy struct {
	// MaxAttempts is the maximum number of attempts (including the initial request).
	MaxAttempts int

	// BaseDelay is the wait before the second attempt.
	BaseDelay time.Duration

	// Multiplier grows the wait after every failed attempt.
	Multiplier float64

	// MaxDelay caps every wait. Set to the per-request timeout.
	MaxDelay time.Duration

	// Jitter is the ± fraction of randomness applied to each wait (0 disables).
	Jitter float64

	// Retryable decides whether an error is transient. Defaults to IsTransient.
	Retryable func(error) bool
}

// DefaultRetryPolicy returns the default policy for the given per-request timeout.
func DefaultRetryPolicy(timeout time.Duration) RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 5,
		BaseDelay:   1 * time.Second,
		Multiplier:  2.0,
		MaxDelay:    timeout,
		Jitter:      0.2,
		Retryable:   IsTransient,
	}
}

// Backoff returns the un-jittered wait after the given failed attempt (1-based).
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := time.Duration(float64(p.BaseDelay) * math.Pow(p.Multiplier, float64(attempt-1)))
	return p.capDelay(d)
}

// capDelay bounds d to [0, MaxDelay]. Overflowed float conversions come back negative.
func (p RetryPolicy) capDelay(d time.Duration) time.Duration {
	if p.MaxDelay > 0 && (d > p.MaxDelay || d < 0) {
		return p.MaxDelay
	}
	if d < 0 {
		return 0
	}
	return d
}

// wait returns the jittered wait after the given failed attempt, still capped.
func (p RetryPolicy) wait(attempt int) time.Duration {
	d := p.Backoff(attempt)
	if p.Jitter > 0 {
		d = time.Duration(float64(d) * (1 - p.Jitter + rand.Float64()*2*p.Jitter))
	}
	return p.capDelay(d)
}

// Do runs fn until it succeeds, returns a non-retryable error, or runs out of
// attempts. It returns the number of attempts made. Exhaustion is reported as
// ErrRetryExhausted wrapping the last error; terminal errors are returned as is.
func (p RetryPolicy) Do(ctx context.Context, logger zerolog.Logger, fn func() error) (int, error) {
	retryable := p.Retryable
	if retryable == nil {
		retryable = IsTransient
	}
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := fn()
		if err == nil {
			if attempt > 1 {
				logger.Info().
					Int("attempt", attempt).
					Msg("Request succeeded after retry")
			}
			return attempt, nil
		}

		lastErr = err
		errClass := classifyError(err)

		if !retryable(err) {
			return attempt, lastErr
		}

		if attempt >= maxAttempts {
			break
		}

		retriesTotal.WithLabelValues(string(errClass)).Inc()

		backoff := p.wait(attempt)
		retryBackoffSeconds.WithLabelValues(string(errClass)).Observe(backoff.Seconds())

		logger.Warn().
			Err(err).
			Str("error_class", string(errClass)).
			Int("attempt", attempt).
			Dur("backoff", backoff).
			Msg("Retrying request after backoff")

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			logger.Warn().
				Str("error_class", string(errClass)).
				Int("attempt", attempt).
				Msg("Context cancelled during retry backoff")
			return attempt, fmt.Errorf("%w: %w (last error: %w)", ErrContextCancelled, ctx.Err(), lastErr)
		case <-timer.C:
		}
	}

	errClass := classifyError(lastErr)
	retryExhaustedTotal.WithLabelValues(string(errClass)).Inc()
	logger.Warn().
		Err(lastErr).
		Str("error_class", string(errClass)).
		Int("max_attempts", maxAttempts).
		Msg("Retry attempts exhausted")

	return maxAttempts, fmt.Errorf("%w after %d attempts: %w", ErrRetryExhausted, maxAttempts, lastErr)
}
