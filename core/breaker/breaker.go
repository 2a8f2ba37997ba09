// Package breaker implements the per-endpoint circuit breaker of spec
// component E on top of github.com/sony/gobreaker: each endpoint gets its own
// gobreaker.CircuitBreaker, configured from the named CLOSED/OPEN/HALF_OPEN
// thresholds (failure_threshold, open_timeout, reset_threshold) rather than
// gobreaker's generic interval/ratio knobs. Config.MaxTrials is carried but
// not applied: the half-open trial cap is reset_threshold (see breakerFor).
package breaker

import (
	"sync"
	"time"

	"github.com/sony/gobreaker"
)

// Config carries the spec's named thresholds for one endpoint's breaker.
type Config struct {
	FailureThreshold uint32
	OpenTimeout      time.Duration
	MaxTrials        uint32
	ResetThreshold   uint32
}

// State mirrors the spec's three named states, independent of gobreaker's own
// State type, so callers never import gobreaker directly.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

// Registry holds one breaker per endpoint, created lazily from a default
// Config or a per-endpoint override.
type Registry struct {
	mu        sync.Mutex
	breakers  map[string]*gobreaker.CircuitBreaker
	configs   map[string]Config
	fallback  Config
	onChange  func(endpoint string, from, to State)
}

// NewRegistry builds a Registry. onChange, if non-nil, is invoked whenever
// any endpoint's breaker transitions state (for metrics/logging).
func NewRegistry(fallback Config, configs map[string]Config, onChange func(endpoint string, from, to State)) *Registry {
	if configs == nil {
		configs = make(map[string]Config)
	}
	return &Registry{
		breakers: make(map[string]*gobreaker.CircuitBreaker),
		configs:  configs,
		fallback: fallback,
		onChange: onChange,
	}
}

func translateState(s gobreaker.State) State {
	switch s {
	case gobreaker.StateOpen:
		return Open
	case gobreaker.StateHalfOpen:
		return HalfOpen
	default:
		return Closed
	}
}

func (r *Registry) breakerFor(endpoint string) *gobreaker.CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cb, ok := r.breakers[endpoint]; ok {
		return cb
	}

	cfg, ok := r.configs[endpoint]
	if !ok {
		cfg = r.fallback
	}

	// gobreaker has one half-open knob (MaxRequests: both the trial admission
	// cap and the consecutive-success count that closes the breaker), where
	// the spec names two (max_trials, reset_threshold). ResetThreshold wins
	// here since it's what actually gates the CLOSED transition; a
	// reset_threshold lower than max_trials means fewer trials are admitted
	// than the spec would otherwise allow, which is the conservative choice.
	settings := gobreaker.Settings{
		Name:        endpoint,
		MaxRequests: cfg.ResetThreshold,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
	}
	if r.onChange != nil {
		settings.OnStateChange = func(name string, from, to gobreaker.State) {
			r.onChange(name, translateState(from), translateState(to))
		}
	}
	cb := gobreaker.NewCircuitBreaker(settings)
	r.breakers[endpoint] = cb
	return cb
}

// Admit reports whether a request for endpoint is currently admitted: true
// unless the breaker is OPEN, or HALF_OPEN with no trial slots remaining.
func (r *Registry) Admit(endpoint string) bool {
	cb := r.breakerFor(endpoint)
	state := translateState(cb.State())
	if state == Open {
		return false
	}
	if state == HalfOpen {
		r.mu.Lock()
		cfg, ok := r.configs[endpoint]
		if !ok {
			cfg = r.fallback
		}
		r.mu.Unlock()
		// Same trial cap gobreaker applies (MaxRequests, with 0 meaning 1).
		trials := cfg.ResetThreshold
		if trials == 0 {
			trials = 1
		}
		return cb.Counts().Requests < trials
	}
	return true
}

// Execute runs fn through endpoint's breaker, recording success/failure per
// gobreaker's own accounting. The caller must still check Admit (or rely on
// Execute's error) to decide whether to attempt a stale-serve fallback.
func (r *Registry) Execute(endpoint string, fn func() (interface{}, error)) (interface{}, error) {
	cb := r.breakerFor(endpoint)
	return cb.Execute(fn)
}

// State returns the current named state of endpoint's breaker.
func (r *Registry) State(endpoint string) State {
	return translateState(r.breakerFor(endpoint).State())
}
