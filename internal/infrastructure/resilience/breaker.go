package resilience

import (
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned while the breaker refuses calls
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State represents the circuit breaker state
type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// Settings configures the circuit breaker behavior
type Settings struct {
	// Threshold is the number of consecutive failures that opens the breaker
	Threshold uint32
	// Cooldown is how long the breaker stays open before a trial call
	Cooldown time.Duration
	// IsFailure decides whether an error counts against the breaker.
	// Defaults to every non-nil error.
	IsFailure func(err error) bool
	// OnStateChange is called whenever the state changes
	OnStateChange func(name string, from State, to State)
}

// Breaker stops calls to a dependency that keeps failing. After Threshold
// consecutive failures it opens; once Cooldown has passed a single trial
// call is let through, which closes the breaker on success and reopens it
// on failure.
type Breaker struct {
	name     string
	settings Settings
	now      func() time.Time

	mu       sync.Mutex
	state    State
	failures uint32
	openedAt time.Time
	trial    bool
}

// New creates a closed breaker
func New(name string, settings Settings) *Breaker {
	if settings.Threshold == 0 {
		settings.Threshold = 5
	}
	if settings.Cooldown <= 0 {
		settings.Cooldown = 30 * time.Second
	}
	if settings.IsFailure == nil {
		settings.IsFailure = func(err error) bool { return err != nil }
	}

	return &Breaker{
		name:     name,
		settings: settings,
		now:      time.Now,
		state:    StateClosed,
	}
}

// State returns the current state of the circuit breaker
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.current()
}

// Execute runs call if the breaker accepts it. A nil breaker always accepts.
// A panic in call counts as a failure and is re-raised.
func Execute[T any](b *Breaker, call func() (T, error)) (T, error) {
	if b == nil {
		return call()
	}

	trial, err := b.acquire()
	if err != nil {
		var zero T
		return zero, err
	}

	finished := false
	defer func() {
		if !finished {
			b.release(trial, false)
		}
	}()

	result, err := call()
	finished = true
	b.release(trial, !b.settings.IsFailure(err))
	return result, err
}

// acquire admits a call; trial reports whether it is the half-open trial
func (b *Breaker) acquire() (trial bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.current() {
	case StateOpen:
		return false, ErrCircuitOpen
	case StateHalfOpen:
		if b.trial {
			return false, ErrCircuitOpen
		}
		b.trial = true
		return true, nil
	default:
		return false, nil
	}
}

func (b *Breaker) release(trial, success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if trial {
		b.trial = false
		if success {
			b.setState(StateClosed)
		} else {
			b.setState(StateOpen)
		}
		return
	}

	// results of calls admitted before the breaker opened are ignored
	if b.state != StateClosed {
		return
	}
	if success {
		b.failures = 0
		return
	}
	b.failures++
	if b.failures >= b.settings.Threshold {
		b.setState(StateOpen)
	}
}

// current moves an open breaker to half-open once the cooldown has passed
func (b *Breaker) current() State {
	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.settings.Cooldown {
		b.setState(StateHalfOpen)
	}
	return b.state
}

func (b *Breaker) setState(state State) {
	if b.state == state {
		return
	}

	prev := b.state
	b.state = state
	b.failures = 0
	if state == StateOpen {
		b.openedAt = b.now()
	}

	if b.settings.OnStateChange != nil {
		b.settings.OnStateChange(b.name, prev, state)
	}
}
