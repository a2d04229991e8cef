// Package circuitbreaker implements a per-handler circuit breaker:
// closed/open/half-open states guarding a flaky handler from being
// invoked while it is failing. Breakers live in a keyed registry, one per
// handler id, created lazily on first use.
package circuitbreaker

import (
	"sync"
	"sync/atomic"
	"time"
)

// State is a circuit breaker's current mode.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Config controls when a breaker trips and how long it stays open.
type Config struct {
	// FailureThreshold is the number of consecutive failures that trips
	// closed -> open.
	FailureThreshold int
	// Cooldown is how long a breaker stays open before allowing a single
	// half-open trial call.
	Cooldown time.Duration
}

// DefaultConfig is a reasonable default: trip after 3 consecutive
// failures, stay open for 30 seconds.
func DefaultConfig() Config {
	return Config{FailureThreshold: 3, Cooldown: 30 * time.Second}
}

// Breaker is a single handler's circuit breaker. Safe for concurrent use
// by multiple workers invoking the same handler id.
type Breaker struct {
	cfg Config

	mu               sync.Mutex
	state            State
	openedAt         time.Time
	halfOpenInFlight bool

	consecutiveFailures atomic.Int32
}

// New creates a closed breaker with the given configuration.
func New(cfg Config) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultConfig().FailureThreshold
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultConfig().Cooldown
	}
	return &Breaker{cfg: cfg, state: Closed}
}

// Allow reports whether the breaker currently permits an invocation. When
// the breaker is open but the cooldown has elapsed, it transitions to
// half-open and allows exactly one trial call through; further callers are
// refused until that trial resolves.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		return true
	case HalfOpen:
		if b.halfOpenInFlight {
			return false
		}
		b.halfOpenInFlight = true
		return true
	case Open:
		if time.Since(b.openedAt) >= b.cfg.Cooldown {
			b.state = HalfOpen
			b.halfOpenInFlight = true
			return true
		}
		return false
	default:
		return false
	}
}

// RecordSuccess closes the breaker (from any state) and resets the
// failure counter.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.consecutiveFailures.Store(0)
	b.state = Closed
	b.halfOpenInFlight = false
}

// RecordFailure increments the failure counter and trips the breaker open
// if the threshold is reached (from closed), or immediately reopens it (
// from half-open, where a single failure is always sufficient).
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == HalfOpen {
		b.open()
		return
	}

	n := b.consecutiveFailures.Add(1)
	if int(n) >= b.cfg.FailureThreshold {
		b.open()
	}
}

func (b *Breaker) open() {
	b.state = Open
	b.openedAt = time.Now()
	b.halfOpenInFlight = false
}

// State returns the breaker's current state, for introspection.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Registry is a thread-safe keyed collection of breakers, one per
// handler id, created lazily on first use.
type Registry struct {
	cfg Config

	mu       sync.Mutex
	breakers map[string]*Breaker
}

// NewRegistry creates a registry that constructs breakers with cfg.
func NewRegistry(cfg Config) *Registry {
	return &Registry{cfg: cfg, breakers: make(map[string]*Breaker)}
}

// For returns the breaker for handlerID, creating it on first access.
func (r *Registry) For(handlerID string) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.breakers[handlerID]
	if !ok {
		b = New(r.cfg)
		r.breakers[handlerID] = b
	}
	return b
}
