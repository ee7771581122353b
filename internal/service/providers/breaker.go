package providers

import (
	"context"
	"sync"
	"time"

	"github.com/complyco/entity-screening-backend/internal/domain/errors"
)

// CircuitState represents the state of a circuit breaker
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Clock abstracts time for deterministic breaker tests
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// BreakerConfig configures one provider's circuit breaker
type BreakerConfig struct {
	// CallTimeout bounds each guarded call. A call that exceeds it counts
	// as a failure; the remote side may still be working on it.
	CallTimeout time.Duration `koanf:"call_timeout"`

	// ErrorThresholdPct opens the circuit when the failure percentage
	// within the rolling window reaches it, once MinRequests calls have
	// been observed.
	ErrorThresholdPct int           `koanf:"error_threshold_pct"`
	MinRequests       int           `koanf:"min_requests"`
	Window            time.Duration `koanf:"window"`

	// ResetTimeout is how long an open circuit waits before allowing the
	// single half-open trial call.
	ResetTimeout time.Duration `koanf:"reset_timeout"`
}

// DefaultBreakerConfig returns the reference breaker settings
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		CallTimeout:       10 * time.Second,
		ErrorThresholdPct: 50,
		MinRequests:       5,
		Window:            60 * time.Second,
		ResetTimeout:      30 * time.Second,
	}
}

func (c BreakerConfig) withDefaults() BreakerConfig {
	d := DefaultBreakerConfig()
	if c.CallTimeout <= 0 {
		c.CallTimeout = d.CallTimeout
	}
	if c.ErrorThresholdPct <= 0 {
		c.ErrorThresholdPct = d.ErrorThresholdPct
	}
	if c.MinRequests <= 0 {
		c.MinRequests = d.MinRequests
	}
	if c.Window <= 0 {
		c.Window = d.Window
	}
	if c.ResetTimeout <= 0 {
		c.ResetTimeout = d.ResetTimeout
	}
	return c
}

// Breaker guards one external call type for one provider. State lives for
// the process lifetime and always starts closed on a cold start.
//
// closed: calls pass through, failures counted in a rolling window; the
// circuit opens when the window error rate reaches the threshold.
// open: calls fail fast with ProviderUnavailable, no network call made.
// half-open: after ResetTimeout exactly one trial call goes through;
// success closes the circuit and resets counters, failure re-opens it
// with a fresh openedAt.
type Breaker struct {
	name  string
	cfg   BreakerConfig
	clock Clock

	mu            sync.Mutex
	state         CircuitState
	failures      int
	total         int
	windowStart   time.Time
	openedAt      time.Time
	trialInFlight bool

	onStateChange func(name string, from, to CircuitState)
}

// BreakerOption customizes breaker construction
type BreakerOption func(*Breaker)

// WithClock injects a clock, used by tests to drive window and reset
// timing deterministically.
func WithClock(clock Clock) BreakerOption {
	return func(b *Breaker) { b.clock = clock }
}

// WithStateChangeCallback observes state transitions (metrics, logging)
func WithStateChangeCallback(fn func(name string, from, to CircuitState)) BreakerOption {
	return func(b *Breaker) { b.onStateChange = fn }
}

// NewBreaker creates a closed breaker for the named provider
func NewBreaker(name string, cfg BreakerConfig, opts ...BreakerOption) *Breaker {
	b := &Breaker{
		name:  name,
		cfg:   cfg.withDefaults(),
		clock: systemClock{},
		state: CircuitClosed,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.windowStart = b.clock.Now()
	return b
}

func (b *Breaker) Name() string { return b.name }

// State returns the current circuit state
func (b *Breaker) State() CircuitState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Execute runs call through the breaker. The call receives a context
// bounded by CallTimeout and must honor its cancellation; a timed-out
// call is abandoned and counted as a failure.
func (b *Breaker) Execute(ctx context.Context, call func(ctx context.Context) error) error {
	if !b.allow() {
		return errors.NewProviderUnavailableError(b.name)
	}

	callCtx, cancel := context.WithTimeout(ctx, b.cfg.CallTimeout)
	defer cancel()

	err := call(callCtx)
	if err != nil {
		b.recordFailure()
		return err
	}
	b.recordSuccess()
	return nil
}

// Reset forces the breaker closed and clears counters (operator action)
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	from := b.state
	b.state = CircuitClosed
	b.failures = 0
	b.total = 0
	b.trialInFlight = false
	b.windowStart = b.clock.Now()
	b.notify(from, CircuitClosed)
}

func (b *Breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.clock.Now()
	switch b.state {
	case CircuitClosed:
		b.rotateWindow(now)
		return true

	case CircuitOpen:
		if now.Sub(b.openedAt) >= b.cfg.ResetTimeout {
			b.transition(CircuitHalfOpen)
			b.trialInFlight = true
			return true
		}
		return false

	case CircuitHalfOpen:
		// One trial at a time.
		if b.trialInFlight {
			return false
		}
		b.trialInFlight = true
		return true
	}
	return false
}

func (b *Breaker) recordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.clock.Now()
	switch b.state {
	case CircuitHalfOpen:
		b.trialInFlight = false
		b.openedAt = now
		b.transition(CircuitOpen)

	case CircuitClosed:
		b.rotateWindow(now)
		b.failures++
		b.total++
		if b.total >= b.cfg.MinRequests && b.failures*100 >= b.cfg.ErrorThresholdPct*b.total {
			b.openedAt = now
			b.transition(CircuitOpen)
		}
	}
}

func (b *Breaker) recordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case CircuitHalfOpen:
		b.trialInFlight = false
		b.failures = 0
		b.total = 0
		b.windowStart = b.clock.Now()
		b.transition(CircuitClosed)

	case CircuitClosed:
		b.rotateWindow(b.clock.Now())
		b.total++
	}
}

// rotateWindow starts a fresh counting window once the current one ages
// out. Caller holds the lock.
func (b *Breaker) rotateWindow(now time.Time) {
	if now.Sub(b.windowStart) >= b.cfg.Window {
		b.windowStart = now
		b.failures = 0
		b.total = 0
	}
}

func (b *Breaker) transition(to CircuitState) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	b.notify(from, to)
}

func (b *Breaker) notify(from, to CircuitState) {
	if b.onStateChange != nil && from != to {
		b.onStateChange(b.name, from, to)
	}
}
