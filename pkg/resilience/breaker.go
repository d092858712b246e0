// Package resilience provides fault-tolerance primitives used around the
// external processing service: a circuit breaker, exponential-backoff retry
// for startup connections, and a context-based timeout wrapper.
package resilience

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned when the breaker refuses a call.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State represents the current phase of a circuit breaker.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig controls failure thresholds and recovery timing.
type BreakerConfig struct {
	FailureThreshold    int
	ResetTimeout        time.Duration
	HalfOpenMaxRequests int
}

func defaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold:    5,
		ResetTimeout:        30 * time.Second,
		HalfOpenMaxRequests: 1,
	}
}

// Breaker tracks consecutive failures and trips open when the threshold is
// exceeded. After the reset timeout it moves to half-open and lets a probe
// request through.
type Breaker struct {
	name                string
	cfg                 BreakerConfig
	mu                  sync.Mutex
	state               State
	logger              *slog.Logger
	consecutiveFailures int
	lastFailureTime     time.Time
	halfOpenRequests    int
}

// NewBreaker creates a Breaker with the given config, filling in defaults
// for zero values.
func NewBreaker(name string, cfg BreakerConfig) *Breaker {
	defaults := defaultBreakerConfig()
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = defaults.FailureThreshold
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = defaults.ResetTimeout
	}
	if cfg.HalfOpenMaxRequests <= 0 {
		cfg.HalfOpenMaxRequests = defaults.HalfOpenMaxRequests
	}
	return &Breaker{
		name:   name,
		cfg:    cfg,
		state:  StateClosed,
		logger: slog.Default().With("component", "circuit-breaker", "name", name),
	}
}

// Execute runs fn if the circuit allows it, recording success or failure.
func (b *Breaker) Execute(fn func() error) error {
	if err := b.beforeRequest(); err != nil {
		return err
	}
	err := fn()
	b.afterRequest(err)
	return err
}

// GetState returns the current State of the breaker.
func (b *Breaker) GetState() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) beforeRequest() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case StateClosed:
		return nil
	case StateOpen:
		if time.Since(b.lastFailureTime) >= b.cfg.ResetTimeout {
			b.state = StateHalfOpen
			b.halfOpenRequests = 0
			b.logger.Info("circuit transitioning to half-open", "after", b.cfg.ResetTimeout)
			return nil
		}
		return fmt.Errorf("%w: %s (retry after %v)", ErrCircuitOpen, b.name, b.cfg.ResetTimeout-time.Since(b.lastFailureTime))
	case StateHalfOpen:
		if b.halfOpenRequests >= b.cfg.HalfOpenMaxRequests {
			return fmt.Errorf("%w: %s (half-open probe limit reached)", ErrCircuitOpen, b.name)
		}
		b.halfOpenRequests++
		return nil
	}
	return nil
}

func (b *Breaker) afterRequest(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err == nil {
		b.onSuccess()
		return
	}
	b.onFailure()
}

func (b *Breaker) onSuccess() {
	switch b.state {
	case StateClosed:
		b.consecutiveFailures = 0
	case StateHalfOpen:
		b.state = StateClosed
		b.consecutiveFailures = 0
		b.halfOpenRequests = 0
		b.logger.Info("circuit closed (recovered)")
	}
}

func (b *Breaker) onFailure() {
	b.lastFailureTime = time.Now()
	b.consecutiveFailures++
	switch b.state {
	case StateClosed:
		if b.consecutiveFailures >= b.cfg.FailureThreshold {
			b.state = StateOpen
			b.logger.Warn("circuit opened", "consecutive_failures", b.consecutiveFailures, "threshold", b.cfg.FailureThreshold)
		}
	case StateHalfOpen:
		b.state = StateOpen
		b.logger.Warn("circuit re-opened (half-open probe failed)")
	}
}

// Reset forces the breaker back to the Closed state.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateClosed
	b.consecutiveFailures = 0
	b.halfOpenRequests = 0
	b.logger.Info("circuit manually reset")
}
