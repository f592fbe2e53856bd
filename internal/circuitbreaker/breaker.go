// Package circuitbreaker trips per-RPC circuits on the node connection so a
// dead endpoint fails fast instead of holding every request for its timeout.
package circuitbreaker

import (
	"errors"
	"sync"
	"time"

	"github.com/samuelarogbonlo/dot-escrow/internal/metrics"
)

// ErrOpen is returned while a circuit rejects calls.
var ErrOpen = errors.New("circuit open: node unavailable")

// State represents the circuit breaker state.
type State int

const (
	StateClosed   State = iota // calls flow through
	StateOpen                  // calls are rejected
	StateHalfOpen              // one probe call is in flight
)

// String returns the state name.
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

// Config tunes a Breaker.
type Config struct {
	Threshold int           // consecutive failures that open a circuit
	OpenFor   time.Duration // how long an open circuit rejects before probing
}

// DefaultConfig returns the settings used for the node connection.
func DefaultConfig() Config {
	return Config{Threshold: 5, OpenFor: 15 * time.Second}
}

type circuit struct {
	state    State
	failures int
	openedAt time.Time
}

// Breaker holds one circuit per key.
type Breaker struct {
	mu       sync.Mutex
	circuits map[string]*circuit
	cfg      Config
	now      func() time.Time
}

// New creates a breaker. Non-positive settings take the defaults.
func New(cfg Config) *Breaker {
	def := DefaultConfig()
	if cfg.Threshold <= 0 {
		cfg.Threshold = def.Threshold
	}
	if cfg.OpenFor <= 0 {
		cfg.OpenFor = def.OpenFor
	}
	return &Breaker{
		circuits: make(map[string]*circuit),
		cfg:      cfg,
		now:      time.Now,
	}
}

// Allow reports whether a call for key may proceed. An open circuit past
// its cool-down admits exactly one probe.
func (b *Breaker) Allow(key string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	c, ok := b.circuits[key]
	if !ok {
		return true
	}
	switch c.state {
	case StateOpen:
		if b.now().Sub(c.openedAt) >= b.cfg.OpenFor {
			b.transition(c, key, StateHalfOpen)
			return true
		}
		return false
	case StateHalfOpen:
		return false
	default:
		return true
	}
}

// Record reports the result of an admitted call.
func (b *Breaker) Record(key string, failed bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	c, ok := b.circuits[key]
	if !ok {
		if !failed {
			return
		}
		c = &circuit{}
		b.circuits[key] = c
	}

	if !failed {
		c.failures = 0
		b.transition(c, key, StateClosed)
		return
	}

	c.failures++
	if c.state == StateHalfOpen || c.failures >= b.cfg.Threshold {
		c.openedAt = b.now()
		b.transition(c, key, StateOpen)
	}
}

// Do runs fn under key's circuit. failed classifies fn's error; a nil
// classifier counts every non-nil error.
func (b *Breaker) Do(key string, fn func() error, failed func(error) bool) error {
	if !b.Allow(key) {
		return ErrOpen
	}
	err := fn()
	if failed == nil {
		b.Record(key, err != nil)
	} else {
		b.Record(key, err != nil && failed(err))
	}
	return err
}

// State returns the current state for key.
func (b *Breaker) State(key string) State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if c, ok := b.circuits[key]; ok {
		return c.state
	}
	return StateClosed
}

// transition requires b.mu.
func (b *Breaker) transition(c *circuit, key string, to State) {
	if c.state == to {
		return
	}
	metrics.NodeBreakerTransitionsTotal.WithLabelValues(key, c.state.String(), to.String()).Inc()
	c.state = to
}
