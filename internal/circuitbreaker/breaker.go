// Package circuitbreaker stops calls to a failing backend for a cooldown,
// then lets a single probe decide whether it has recovered. Circuits are
// kept per key; the risk engine keys them by reasoning backend.
package circuitbreaker

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/snair2001/WalletRiskAgentWithIExec/internal/metrics"
)

// ErrOpen is returned by Execute when the circuit rejects the call.
var ErrOpen = errors.New("circuit breaker open")

// State of one circuit.
type State int

const (
	StateClosed   State = iota // calls flow through
	StateOpen                  // calls rejected until the cooldown ends
	StateHalfOpen              // one probe in flight
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Snapshot is a point-in-time view of one circuit.
type Snapshot struct {
	State    State
	Failures int       // consecutive failures
	RetryAt  time.Time // when an open circuit admits its probe; zero otherwise
}

type circuit struct {
	state    State
	failures int
	openedAt time.Time
}

// Breaker holds one circuit per key. Safe for concurrent use.
type Breaker struct {
	mu           sync.Mutex
	circuits     map[string]*circuit
	threshold    int
	cooldown     time.Duration
	now          func() time.Time
	onTransition func(key string, from, to State)
}

// New creates a breaker that opens a circuit after threshold consecutive
// failures and keeps it open for cooldown.
func New(threshold int, cooldown time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = 5
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return &Breaker{
		circuits:  make(map[string]*circuit),
		threshold: threshold,
		cooldown:  cooldown,
		now:       time.Now,
	}
}

// WithClock replaces the time source. Intended for tests.
func (b *Breaker) WithClock(now func() time.Time) *Breaker {
	b.mu.Lock()
	b.now = now
	b.mu.Unlock()
	return b
}

// OnTransition registers a callback for state changes. It runs on its own
// goroutine so it may call back into the breaker.
func (b *Breaker) OnTransition(fn func(key string, from, to State)) {
	b.mu.Lock()
	b.onTransition = fn
	b.mu.Unlock()
}

// Execute runs fn unless key's circuit is open, then records the outcome.
// Errors matched by ignore (for example the caller's own cancellation) say
// nothing about the backend and are not counted.
func (b *Breaker) Execute(key string, fn func() error, ignore func(error) bool) error {
	if err := b.acquire(key); err != nil {
		return err
	}
	err := fn()
	b.settle(key, err, ignore != nil && err != nil && ignore(err))
	return err
}

// acquire admits a call, moving an expired open circuit to half-open.
func (b *Breaker) acquire(key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	c, ok := b.circuits[key]
	if !ok {
		return nil
	}
	switch c.state {
	case StateOpen:
		retryAt := c.openedAt.Add(b.cooldown)
		if b.now().Before(retryAt) {
			return fmt.Errorf("%w: %s until %s", ErrOpen, key, retryAt.Format(time.RFC3339))
		}
		b.transition(c, key, StateHalfOpen)
		return nil
	case StateHalfOpen:
		return fmt.Errorf("%w: %s probe in flight", ErrOpen, key)
	default:
		return nil
	}
}

func (b *Breaker) settle(key string, err error, ignored bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	c, ok := b.circuits[key]
	if !ok {
		if err == nil || ignored {
			return
		}
		c = &circuit{}
		b.circuits[key] = c
	}

	switch {
	case ignored:
		// An abandoned probe reopens with the cooldown already spent, so
		// the next call probes again.
		if c.state == StateHalfOpen {
			b.transition(c, key, StateOpen)
			c.openedAt = b.now().Add(-b.cooldown)
		}
	case err == nil:
		c.failures = 0
		b.transition(c, key, StateClosed)
	default:
		c.failures++
		if c.state == StateHalfOpen || c.failures >= b.threshold {
			b.transition(c, key, StateOpen)
			c.openedAt = b.now()
		}
	}
}

// State returns key's circuit state; unknown keys are closed.
func (b *Breaker) State(key string) State {
	return b.Snapshot(key).State
}

// Snapshot returns key's circuit state and failure count.
func (b *Breaker) Snapshot(key string) Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	c, ok := b.circuits[key]
	if !ok {
		return Snapshot{State: StateClosed}
	}
	s := Snapshot{State: c.state, Failures: c.failures}
	if c.state == StateOpen {
		s.RetryAt = c.openedAt.Add(b.cooldown)
	}
	return s
}

// transition must be called with b.mu held.
func (b *Breaker) transition(c *circuit, key string, to State) {
	from := c.state
	if from == to {
		return
	}
	c.state = to
	metrics.BreakerTransitionsTotal.WithLabelValues(key, from.String(), to.String()).Inc()
	open := 0.0
	if to == StateOpen {
		open = 1
	}
	metrics.BreakerOpen.WithLabelValues(key).Set(open)
	if fn := b.onTransition; fn != nil {
		go fn(key, from, to)
	}
}
