package resilience

import (
	"errors"
	"sync"
	"time"
)

var (
	ErrCircuitOpen     = errors.New("circuit breaker is open")
	ErrTooManyRequests = errors.New("too many requests")
)

// State represents the circuit breaker state
type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

var stateNames = map[State]string{
	StateClosed:   "closed",
	StateHalfOpen: "half-open",
	StateOpen:     "open",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// Settings configures the circuit breaker behavior
type Settings struct {
	// MaxRequests is how many trial requests half-open admits, and how many
	// must succeed in a row to close again
	MaxRequests uint32
	// Interval clears the closed-state counts periodically
	Interval time.Duration
	// Timeout is how long the breaker stays open before a trial
	Timeout time.Duration
	// ReadyToTrip decides from the closed-state counts whether to open
	ReadyToTrip func(counts Counts) bool
	// IsSuccessful classifies a returned error; nil means only a nil error counts as success
	IsSuccessful func(err error) bool
	// OnStateChange observes transitions
	OnStateChange func(name string, from State, to State)
	// Now overrides the clock, mainly for tests
	Now func() time.Time
}

func (s Settings) withDefaults() Settings {
	if s.MaxRequests == 0 {
		s.MaxRequests = 1
	}
	if s.Interval == 0 {
		s.Interval = time.Minute
	}
	if s.Timeout == 0 {
		s.Timeout = time.Minute
	}
	if s.ReadyToTrip == nil {
		s.ReadyToTrip = func(c Counts) bool { return c.ConsecutiveFailures > 5 }
	}
	if s.IsSuccessful == nil {
		s.IsSuccessful = func(err error) bool { return err == nil }
	}
	if s.Now == nil {
		s.Now = time.Now
	}
	return s
}

// Counts are the request statistics of the current generation
type Counts struct {
	Requests             uint32
	TotalSuccesses       uint32
	TotalFailures        uint32
	ConsecutiveSuccesses uint32
	ConsecutiveFailures  uint32
}

func (c *Counts) success() {
	c.TotalSuccesses++
	c.ConsecutiveSuccesses++
	c.ConsecutiveFailures = 0
}

func (c *Counts) failure() {
	c.TotalFailures++
	c.ConsecutiveFailures++
	c.ConsecutiveSuccesses = 0
}

// Breaker fails calls fast while a dependency keeps failing. A generation
// counter ties each result to the state it was admitted under, so results
// that straddle a transition are ignored.
type Breaker struct {
	name     string
	settings Settings

	mu         sync.Mutex
	state      State     // Protected by mu
	generation uint64    // Protected by mu
	counts     Counts    // Protected by mu
	deadline   time.Time // Protected by mu, zero in half-open
}

// New creates a closed breaker
func New(name string, settings Settings) *Breaker {
	settings = settings.withDefaults()
	return &Breaker{
		name:     name,
		settings: settings,
		deadline: settings.Now().Add(settings.Interval),
	}
}

func (b *Breaker) Name() string { return b.name }

// State returns the state after applying any elapsed timeout
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tick(b.settings.Now())
	return b.state
}

// Counts returns a copy of the current generation's counts
func (b *Breaker) Counts() Counts {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.counts
}

// Call runs fn if the breaker admits it and records the outcome
func Call[T any](b *Breaker, fn func() (T, error)) (result T, err error) {
	generation, err := b.admit()
	if err != nil {
		return result, err
	}

	settled := false
	defer func() {
		if !settled {
			b.settle(generation, false)
		}
	}()

	result, err = fn()
	settled = true
	b.settle(generation, b.settings.IsSuccessful(err))
	return result, err
}

// Execute is Call for functions without a result
func (b *Breaker) Execute(fn func() error) error {
	_, err := Call(b, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

func (b *Breaker) admit() (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.tick(b.settings.Now())
	switch {
	case b.state == StateOpen:
		return b.generation, ErrCircuitOpen
	case b.state == StateHalfOpen && b.counts.Requests >= b.settings.MaxRequests:
		return b.generation, ErrTooManyRequests
	}
	b.counts.Requests++
	return b.generation, nil
}

func (b *Breaker) settle(generation uint64, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.settings.Now()
	b.tick(now)
	if generation != b.generation {
		return
	}

	switch {
	case ok:
		b.counts.success()
		if b.state == StateHalfOpen && b.counts.ConsecutiveSuccesses >= b.settings.MaxRequests {
			b.transition(StateClosed, now)
		}
	case b.state == StateHalfOpen:
		b.transition(StateOpen, now)
	case b.state == StateClosed:
		b.counts.failure()
		if b.settings.ReadyToTrip(b.counts) {
			b.transition(StateOpen, now)
		}
	}
}

// tick applies time-based changes: the closed interval rolls the counts
// over and the open timeout moves to half-open.
func (b *Breaker) tick(now time.Time) {
	if b.deadline.IsZero() || !now.After(b.deadline) {
		return
	}
	switch b.state {
	case StateClosed:
		b.rollover(now)
	case StateOpen:
		b.transition(StateHalfOpen, now)
	}
}

func (b *Breaker) transition(to State, now time.Time) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	b.rollover(now)
	if b.settings.OnStateChange != nil {
		b.settings.OnStateChange(b.name, from, to)
	}
}

// rollover starts a new generation with fresh counts
func (b *Breaker) rollover(now time.Time) {
	b.generation++
	b.counts = Counts{}
	switch b.state {
	case StateClosed:
		b.deadline = now.Add(b.settings.Interval)
	case StateOpen:
		b.deadline = now.Add(b.settings.Timeout)
	default:
		b.deadline = time.Time{}
	}
}
