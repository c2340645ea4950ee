package errors

import (
	"fmt"
	"sync"
	"time"

	"pasteup/internal/logging"
)

// BreakerState is the position of a Breaker.
type BreakerState int

const (
	StateClosed BreakerState = iota
	StateOpen
	StateHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

// BreakerConfig tunes when a Breaker stops calling an endpoint.
type BreakerConfig struct {
	// FailureThreshold consecutive failures open the breaker.
	FailureThreshold int
	// SuccessThreshold consecutive half-open successes close it again.
	SuccessThreshold int
	// Cooldown is how long an open breaker rejects calls.
	Cooldown time.Duration
	// OnStateChange runs synchronously while the breaker is locked.
	OnStateChange func(name string, from, to BreakerState)
}

// DefaultBreakerConfig opens after five failures and probes after 30s.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{FailureThreshold: 5, SuccessThreshold: 1, Cooldown: 30 * time.Second}
}

// Breaker stops calls to an endpoint that keeps failing, so an upload fails
// fast into the local fallback instead of waiting for a timeout.
type Breaker struct {
	name   string
	cfg    BreakerConfig
	logger logging.Logger
	now    func() time.Time

	mu        sync.Mutex
	state     BreakerState
	failures  int
	successes int
	openedAt  time.Time
}

// NewBreaker returns a closed breaker. Zero thresholds fall back to defaults.
func NewBreaker(name string, cfg BreakerConfig) *Breaker {
	defaults := DefaultBreakerConfig()
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = defaults.FailureThreshold
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = defaults.SuccessThreshold
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = defaults.Cooldown
	}
	return &Breaker{
		name:   name,
		cfg:    cfg,
		logger: logging.NewComponentLogger("Breaker"),
		now:    time.Now,
	}
}

// Allow returns a degraded UploadError while the breaker is open. Every nil
// return must be followed by exactly one Mark.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != StateOpen {
		return nil
	}
	wait := b.cfg.Cooldown - b.now().Sub(b.openedAt)
	if wait <= 0 {
		b.successes = 0
		b.transition(StateHalfOpen)
		return nil
	}
	return Degraded(
		fmt.Errorf("breaker %s open", b.name),
		fmt.Sprintf("%s unavailable after repeated failures; retrying in %s", b.name, wait.Round(time.Second)),
	)
}

// Mark records the result of an allowed call. A nil err is a success.
func (b *Breaker) Mark(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err == nil {
		b.failures = 0
		if b.state == StateHalfOpen {
			b.successes++
			if b.successes >= b.cfg.SuccessThreshold {
				b.transition(StateClosed)
			}
		}
		return
	}

	b.failures++
	if b.state == StateHalfOpen || b.failures >= b.cfg.FailureThreshold {
		b.openedAt = b.now()
		if b.state != StateOpen {
			b.transition(StateOpen)
		}
	}
}

// State returns the current position.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Failures returns the current run of consecutive failures.
func (b *Breaker) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}

// Reset closes the breaker and forgets past failures.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	b.successes = 0
	if b.state != StateClosed {
		b.transition(StateClosed)
	}
}

func (b *Breaker) transition(to BreakerState) {
	from := b.state
	b.state = to
	switch to {
	case StateOpen:
		b.logger.Warn("%s: breaker open after %d failures", b.name, b.failures)
	case StateClosed:
		b.logger.Info("%s: breaker closed", b.name)
	default:
		b.logger.Debug("%s: breaker half-open, probing", b.name)
	}
	if b.cfg.OnStateChange != nil {
		b.cfg.OnStateChange(b.name, from, to)
	}
}
