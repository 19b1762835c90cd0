package llm

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ggonzalezcastro/inmo-sub001/pkg/metrics"
)

// BreakerState is the tri-state status of a circuit breaker.
type BreakerState int

const (
	BreakerClosed BreakerState = iota
	BreakerOpen
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// OpenError is raised locally, without any network call, when a breaker
// rejects a request. It is recorded as neither success nor failure.
type OpenError struct {
	Dependency string
	State      BreakerState
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("circuit breaker for %s is %s", e.Dependency, e.State)
}

// BreakerConfig tunes one dependency's breaker. The model-provider profile
// defaults to 5 consecutive failures and a 30s reset; the calendar profile
// to 3 failures and 60s.
type BreakerConfig struct {
	FailureThreshold int           `envconfig:"FAILURE_THRESHOLD" split_words:"true" default:"5"`
	ResetTimeout     time.Duration `envconfig:"RESET_TIMEOUT" split_words:"true" default:"30s"`
}

// DefaultBreakerConfig is the model-provider profile.
var DefaultBreakerConfig = BreakerConfig{
	FailureThreshold: 5,
	ResetTimeout:     30 * time.Second,
}

// CalendarBreakerConfig is the calendar/scheduling dependency profile.
var CalendarBreakerConfig = BreakerConfig{
	FailureThreshold: 3,
	ResetTimeout:     60 * time.Second,
}

// Breaker guards one external dependency. It is shared across concurrent
// turns and safe for concurrent use.
type Breaker struct {
	name string
	cfg  BreakerConfig

	mu          sync.Mutex
	state       BreakerState
	failures    int
	lastFailure time.Time
	probing     bool
}

// NewBreaker creates a closed breaker for the named dependency.
func NewBreaker(name string, cfg BreakerConfig) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultBreakerConfig.FailureThreshold
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = DefaultBreakerConfig.ResetTimeout
	}
	return &Breaker{name: name, cfg: cfg, state: BreakerClosed}
}

// Allow reports whether a request may proceed. An open breaker whose reset
// timeout has elapsed moves to half-open and admits a single probe; further
// requests are rejected until the probe resolves.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerClosed:
		return nil

	case BreakerOpen:
		if time.Since(b.lastFailure) >= b.cfg.ResetTimeout {
			b.setState(BreakerHalfOpen)
			b.probing = true
			return nil
		}
		return &OpenError{Dependency: b.name, State: BreakerOpen}

	case BreakerHalfOpen:
		if b.probing {
			return &OpenError{Dependency: b.name, State: BreakerHalfOpen}
		}
		b.probing = true
		return nil

	default:
		return &OpenError{Dependency: b.name, State: b.state}
	}
}

// RecordSuccess resets the failure count; a successful half-open probe
// closes the breaker.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures = 0
	if b.state == BreakerHalfOpen {
		b.probing = false
		b.setState(BreakerClosed)
	}
}

// RecordFailure counts a failure; reaching the threshold opens the breaker,
// and a failed half-open probe re-opens it and restarts the timeout.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	b.lastFailure = time.Now()

	switch b.state {
	case BreakerClosed:
		if b.failures >= b.cfg.FailureThreshold {
			b.setState(BreakerOpen)
		}
	case BreakerHalfOpen:
		b.probing = false
		b.setState(BreakerOpen)
	}
}

// State returns the current breaker state.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// setState transitions and logs. Callers hold b.mu.
func (b *Breaker) setState(next BreakerState) {
	if b.state == next {
		return
	}
	prev := b.state
	b.state = next
	metrics.BreakerState.WithLabelValues(b.name).Set(float64(next))
	log.Warn().
		Str("dependency", b.name).
		Str("from", prev.String()).
		Str("to", next.String()).
		Int("failures", b.failures).
		Msg("circuit breaker state change")
}

// BreakerRegistry holds the process-wide breakers keyed by dependency name.
// It is injected where needed so tests can substitute isolated instances.
type BreakerRegistry struct {
	mu       sync.RWMutex
	breakers map[string]*Breaker
}

func NewBreakerRegistry() *BreakerRegistry {
	return &BreakerRegistry{breakers: make(map[string]*Breaker, 4)}
}

// Register creates (or replaces) the breaker for a dependency.
func (r *BreakerRegistry) Register(name string, cfg BreakerConfig) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	b := NewBreaker(name, cfg)
	r.breakers[name] = b
	return b
}

// Get returns the breaker for a dependency, registering one with the
// default profile when missing.
func (r *BreakerRegistry) Get(name string) *Breaker {
	r.mu.RLock()
	b, ok := r.breakers[name]
	r.mu.RUnlock()
	if ok {
		return b
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.breakers[name]; ok {
		return b
	}
	b = NewBreaker(name, DefaultBreakerConfig)
	r.breakers[name] = b
	return b
}

// States returns the breaker state per dependency, for health checks.
func (r *BreakerRegistry) States() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]string, len(r.breakers))
	for name, b := range r.breakers {
		out[name] = b.State().String()
	}
	return out
}

// Do runs call through the named dependency's breaker: rejected requests
// fail fast with *OpenError and touch no counters, successes and failures
// are recorded atomically.
func Do[T any](r *BreakerRegistry, dependency string, call func() (T, error)) (T, error) {
	var zero T
	b := r.Get(dependency)

	if err := b.Allow(); err != nil {
		metrics.ProviderCalls.WithLabelValues(dependency, metrics.OutcomeOpen).Inc()
		return zero, err
	}

	out, err := call()
	if err != nil {
		b.RecordFailure()
		metrics.ProviderCalls.WithLabelValues(dependency, metrics.OutcomeFailure).Inc()
		return zero, err
	}

	b.RecordSuccess()
	metrics.ProviderCalls.WithLabelValues(dependency, metrics.OutcomeSuccess).Inc()
	return out, nil
}
