package httpsource

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	retriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scroll_upstream_retries_total",
		Help: "Total number of upstream retry attempts by error class",
	}, []string{"error_class"})

	retryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scroll_upstream_retry_exhausted_total",
		Help: "Total number of upstream requests that exhausted their retries by error class",
	}, []string{"error_class"})
)

// RetryConfig holds the configuration for retry logic.
type RetryConfig struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int

	// InitialBackoff is the initial backoff duration.
	InitialBackoff time.Duration

	// MaxBackoff caps a single backoff interval.
	MaxBackoff time.Duration

	// Multiplier is the growth factor for exponential backoff.
	Multiplier float64

	// Jitter is the randomization factor (0.2 means ±20%).
	Jitter float64
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     2,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     10 * time.Second,
		Multiplier:     2.0,
		Jitter:         0.2,
	}
}

func (rc RetryConfig) policy(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = rc.InitialBackoff
	b.MaxInterval = rc.MaxBackoff
	b.Multiplier = rc.Multiplier
	b.RandomizationFactor = rc.Jitter
	b.MaxElapsedTime = 0
	b.Reset()

	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(rc.MaxRetries)), ctx)
}

// retryWithBackoff runs attempt until it succeeds, fails with a
// non-retryable class, the retries run out, or ctx is done.
func (c *Client) retryWithBackoff(ctx context.Context, endpoint string, attempt func() error) error {
	var lastErr *UpstreamError

	op := func() error {
		err := attempt()
		if err == nil {
			return nil
		}
		var ue *UpstreamError
		if errors.As(err, &ue) {
			lastErr = ue
			if shouldRetry(ue.ErrorClass) {
				return err
			}
		}
		return backoff.Permanent(err)
	}

	notify := func(err error, wait time.Duration) {
		class := ErrorClassNetwork
		if lastErr != nil {
			class = lastErr.ErrorClass
		}
		retriesTotal.WithLabelValues(string(class)).Inc()
		c.logger.Debug().
			Err(err).
			Str("endpoint", endpoint).
			Str("error_class", string(class)).
			Dur("backoff", wait).
			Msg("Retrying upstream request after backoff")
	}

	err := backoff.RetryNotify(op, c.cfg.Retry.policy(ctx), notify)
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	var ue *UpstreamError
	if errors.As(err, &ue) && shouldRetry(ue.ErrorClass) {
		retryExhaustedTotal.WithLabelValues(string(ue.ErrorClass)).Inc()
		c.logger.Warn().
			Str("endpoint", endpoint).
			Str("error_class", string(ue.ErrorClass)).
			Int("max_retries", c.cfg.Retry.MaxRetries).
			Msg("Retry attempts exhausted")
		return fmt.Errorf("%w after %d attempts: %w", ErrRetryExhausted, c.cfg.Retry.MaxRetries+1, err)
	}
	return err
}
