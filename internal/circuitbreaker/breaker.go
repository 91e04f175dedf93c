package circuitbreaker

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"splashgate/portal-service/internal/metrics"

	"github.com/rs/zerolog/log"
)

// ErrOpen is wrapped by Allow/Do when the breaker is failing fast.
var ErrOpen = errors.New("circuit breaker open")

// State represents the circuit breaker state
type State int32

const (
	// StateClosed - normal operation, calls flow through
	StateClosed State = iota
	// StateOpen - calls fail fast without reaching the backend
	StateOpen
	// StateHalfOpen - a limited number of probe calls test recovery
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

// Config holds circuit breaker configuration
type Config struct {
	// FailureThreshold is the number of consecutive failures before opening
	FailureThreshold int
	// SuccessThreshold is the number of consecutive half-open successes before closing
	SuccessThreshold int
	// Timeout is how long to stay open before allowing a probe
	Timeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Timeout:          30 * time.Second,
	}
}

// CircuitBreaker guards one outbound dependency (controller API, notifier).
// It never retries: a rejected or failed call is reported to the caller as-is.
type CircuitBreaker struct {
	name   string
	config Config

	state     atomic.Int32
	failures  atomic.Int64 // consecutive failures
	successes atomic.Int64 // consecutive successes while half-open
	probes    atomic.Int64 // in-flight half-open probes
	openedAt  atomic.Int64 // unix nano of last open transition
	nowFunc   func() time.Time

	mu sync.Mutex // serializes state transitions
}

func New(name string, config Config) *CircuitBreaker {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = 5
	}
	if config.SuccessThreshold <= 0 {
		config.SuccessThreshold = 1
	}
	cb := &CircuitBreaker{name: name, config: config, nowFunc: time.Now}
	cb.state.Store(int32(StateClosed))
	metrics.CircuitState.WithLabelValues(name).Set(float64(StateClosed))
	return cb
}

// Do runs fn if the breaker allows it and records the outcome.
func (cb *CircuitBreaker) Do(fn func() error) error {
	release, err := cb.Allow()
	if err != nil {
		return err
	}
	defer release()

	if err := fn(); err != nil {
		cb.RecordFailure()
		return err
	}
	cb.RecordSuccess()
	return nil
}

// Allow reports whether a call may proceed. The returned release func must be
// called once the call finishes.
func (cb *CircuitBreaker) Allow() (release func(), err error) {
	noop := func() {}
	switch State(cb.state.Load()) {
	case StateClosed:
		return noop, nil

	case StateOpen:
		elapsed := cb.nowFunc().Sub(time.Unix(0, cb.openedAt.Load()))
		if elapsed < cb.config.Timeout {
			return nil, fmt.Errorf("%w for %s (retry in %v)", ErrOpen, cb.name, (cb.config.Timeout - elapsed).Round(time.Second))
		}
		cb.mu.Lock()
		if State(cb.state.Load()) == StateOpen {
			cb.transitionTo(StateHalfOpen)
		}
		cb.mu.Unlock()
		return cb.Allow()

	case StateHalfOpen:
		if int(cb.probes.Add(1)) > cb.config.SuccessThreshold {
			cb.probes.Add(-1)
			return nil, fmt.Errorf("%w for %s: half-open probe limit reached", ErrOpen, cb.name)
		}
		return func() { cb.probes.Add(-1) }, nil
	}
	return nil, fmt.Errorf("circuit breaker %s in unknown state", cb.name)
}

func (cb *CircuitBreaker) RecordSuccess() {
	switch State(cb.state.Load()) {
	case StateClosed:
		cb.failures.Store(0)
	case StateHalfOpen:
		if int(cb.successes.Add(1)) >= cb.config.SuccessThreshold {
			cb.mu.Lock()
			if State(cb.state.Load()) == StateHalfOpen {
				cb.transitionTo(StateClosed)
				log.Info().Str("backend", cb.name).Msg("circuit breaker recovered")
			}
			cb.mu.Unlock()
		}
	}
}

func (cb *CircuitBreaker) RecordFailure() {
	switch State(cb.state.Load()) {
	case StateClosed:
		failures := cb.failures.Add(1)
		if int(failures) >= cb.config.FailureThreshold {
			cb.mu.Lock()
			if State(cb.state.Load()) == StateClosed {
				cb.transitionTo(StateOpen)
				log.Error().
					Str("backend", cb.name).
					Int64("failures", failures).
					Msg("circuit breaker opened")
			}
			cb.mu.Unlock()
		}
	case StateHalfOpen:
		cb.mu.Lock()
		if State(cb.state.Load()) == StateHalfOpen {
			cb.transitionTo(StateOpen)
			log.Warn().Str("backend", cb.name).Msg("circuit breaker reopened after half-open failure")
		}
		cb.mu.Unlock()
	}
}

// transitionTo changes state; caller must hold mu.
func (cb *CircuitBreaker) transitionTo(newState State) {
	oldState := State(cb.state.Load())
	cb.state.Store(int32(newState))
	cb.failures.Store(0)
	cb.successes.Store(0)
	if newState == StateOpen {
		cb.openedAt.Store(cb.nowFunc().UnixNano())
	}

	metrics.CircuitState.WithLabelValues(cb.name).Set(float64(newState))
	metrics.CircuitTransitions.WithLabelValues(cb.name, oldState.String(), newState.String()).Inc()

	log.Info().
		Str("backend", cb.name).
		Str("old_state", oldState.String()).
		Str("new_state", newState.String()).
		Msg("circuit breaker state transition")
}

func (cb *CircuitBreaker) State() State {
	return State(cb.state.Load())
}

func (cb *CircuitBreaker) Name() string {
	return cb.name
}
