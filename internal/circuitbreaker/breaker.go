// Package circuitbreaker gates venue requests after repeated failures so a
// struggling upstream is left alone until a cooldown passes.
package circuitbreaker

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// FailureBreaker trips after a run of consecutive venue failures and
// restores itself once the cooldown has elapsed. Ingest producers consult
// Allow before each sweep; the venue client reports request outcomes.
type FailureBreaker struct {
	open atomic.Bool // Atomic for lock-free reads

	// Configuration
	failureThreshold int
	cooldown         time.Duration
	logger           *zap.Logger

	// Protected by mutex
	mu                  sync.RWMutex
	consecutiveFailures int
	trippedAt           time.Time
	lastFailure         time.Time
}

// Config holds failure breaker configuration.
type Config struct {
	FailureThreshold int
	Cooldown         time.Duration
	Logger           *zap.Logger
}

// Status holds current breaker state for debugging and HTTP endpoints.
type Status struct {
	Open                bool
	ConsecutiveFailures int
	TrippedAt           time.Time
	LastFailure         time.Time
}

// New creates a new failure breaker with the given configuration.
func New(cfg *Config) (*FailureBreaker, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if cfg.FailureThreshold <= 0 {
		return nil, fmt.Errorf("failure threshold must be positive")
	}
	if cfg.Cooldown <= 0 {
		return nil, fmt.Errorf("cooldown must be positive")
	}

	breaker := &FailureBreaker{
		failureThreshold: cfg.FailureThreshold,
		cooldown:         cfg.Cooldown,
		logger:           cfg.Logger,
	}

	BreakerOpen.Set(0)

	return breaker, nil
}

// Allow reports whether venue traffic may proceed. A tripped breaker
// restores itself here once the cooldown has elapsed.
func (b *FailureBreaker) Allow() bool {
	if !b.open.Load() {
		return true
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	// Re-check under the lock; another caller may have restored already.
	if !b.open.Load() {
		return true
	}

	if time.Since(b.trippedAt) < b.cooldown {
		return false
	}

	b.open.Store(false)
	b.consecutiveFailures = 0
	BreakerOpen.Set(0)
	BreakerStateChanges.Inc()

	b.logger.Info("breaker-restored",
		zap.Duration("cooldown", b.cooldown),
		zap.Time("tripped-at", b.trippedAt))

	return true
}

// RecordSuccess resets the consecutive failure count.
func (b *FailureBreaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.consecutiveFailures = 0
}

// RecordFailure counts a venue failure and trips the breaker once the run
// reaches the threshold.
func (b *FailureBreaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.consecutiveFailures++
	b.lastFailure = time.Now()
	BreakerFailuresTotal.Inc()

	if b.consecutiveFailures < b.failureThreshold || b.open.Load() {
		return
	}

	b.open.Store(true)
	b.trippedAt = time.Now()
	BreakerOpen.Set(1)
	BreakerStateChanges.Inc()
	BreakerTripsTotal.Inc()

	b.logger.Warn("breaker-tripped",
		zap.Int("consecutive-failures", b.consecutiveFailures),
		zap.Int("failure-threshold", b.failureThreshold),
		zap.Duration("cooldown", b.cooldown))
}

// GetStatus returns current breaker status for debugging and HTTP endpoints.
func (b *FailureBreaker) GetStatus() Status {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return Status{
		Open:                b.open.Load(),
		ConsecutiveFailures: b.consecutiveFailures,
		TrippedAt:           b.trippedAt,
		LastFailure:         b.lastFailure,
	}
}
