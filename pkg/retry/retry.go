package retry

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"go.uber.org/zap"
)

// Config holds backoff parameters for Do.
type Config struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Jitter       bool
}

// Do runs fn up to cfg.MaxAttempts times with capped exponential backoff
// between failures. Retries are unconditional; transient-vs-permanent
// classification belongs to the caller. The delay doubles from InitialDelay
// and is capped at MaxDelay; with Jitter the actual sleep is scaled by a
// uniform factor in [0.85, 1.15]. Context cancellation aborts the wait and
// returns ctx.Err().
func Do(ctx context.Context, cfg Config, logger *zap.Logger, op string, fn func(context.Context) error) error {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}

	delay := cfg.InitialDelay

	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}

		AttemptFailuresTotal.WithLabelValues(op).Inc()

		if attempt == cfg.MaxAttempts {
			break
		}

		sleep := jitterSleep(delay, cfg.Jitter)

		logger.Warn("operation-retrying",
			zap.String("operation", op),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", cfg.MaxAttempts),
			zap.Duration("sleep", sleep),
			zap.Error(lastErr))

		select {
		case <-time.After(sleep):
		case <-ctx.Done():
			return ctx.Err()
		}

		delay = nextDelay(delay, cfg.MaxDelay)
	}

	ExhaustedTotal.WithLabelValues(op).Inc()

	return fmt.Errorf("%s failed after %d attempts: %w", op, cfg.MaxAttempts, lastErr)
}

// jitterSleep returns the sleep for the current delay, scaled by a uniform
// factor in [0.85, 1.15] when jitter is enabled.
func jitterSleep(delay time.Duration, jitter bool) time.Duration {
	if !jitter {
		return delay
	}

	factor := 0.85 + rand.Float64()*0.3

	return time.Duration(float64(delay) * factor)
}

// nextDelay doubles the delay, capped at max.
func nextDelay(delay, max time.Duration) time.Duration {
	delay *= 2
	if delay > max {
		return max
	}

	return delay
}
