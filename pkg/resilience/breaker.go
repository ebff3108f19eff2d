// Package resilience guards calls to remote dependencies with a circuit
// breaker, so callers fail fast while a dependency is down.
package resilience

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/WessleyAI/routes-aggregator/pkg/fn"
)

// State is a circuit breaker state.
type State int

const (
	StateClosed   State = iota // calls pass
	StateOpen                  // calls are rejected
	StateHalfOpen              // a limited number of probes pass
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

// ErrCircuitOpen is returned for calls rejected by an open breaker.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// BreakerOpts configures a Breaker.
type BreakerOpts struct {
	// FailThreshold is how many consecutive failures open the breaker.
	FailThreshold int
	// Timeout is how long the breaker stays open before it lets probes
	// through.
	Timeout time.Duration
	// HalfOpenMax is the number of probes allowed while half-open.
	HalfOpenMax int
	// IsFailure decides which errors count against the dependency. The
	// default ignores context cancellation, which is the caller's doing.
	IsFailure func(error) bool
	// OnStateChange, if set, is called with the breaker lock held; it must
	// not call back into the breaker.
	OnStateChange func(from, to State)
}

// DefaultBreakerOpts are used for unset options.
var DefaultBreakerOpts = BreakerOpts{
	FailThreshold: 5,
	Timeout:       30 * time.Second,
	HalfOpenMax:   1,
}

func defaultIsFailure(err error) bool {
	return err != nil && !errors.Is(err, context.Canceled)
}

// Breaker is a closed/open/half-open circuit breaker. It is safe for
// concurrent use.
type Breaker struct {
	mu            sync.Mutex
	opts          BreakerOpts
	state         State
	failures      int
	openedAt      time.Time
	halfOpenCount int
	now           func() time.Time
}

// NewBreaker creates a closed Breaker.
func NewBreaker(opts BreakerOpts) *Breaker {
	if opts.FailThreshold <= 0 {
		opts.FailThreshold = DefaultBreakerOpts.FailThreshold
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultBreakerOpts.Timeout
	}
	if opts.HalfOpenMax <= 0 {
		opts.HalfOpenMax = DefaultBreakerOpts.HalfOpenMax
	}
	if opts.IsFailure == nil {
		opts.IsFailure = defaultIsFailure
	}
	return &Breaker{opts: opts, now: time.Now}
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.currentState()
}

// currentState moves open to half-open once Timeout has passed. Must hold mu.
func (b *Breaker) currentState() State {
	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.opts.Timeout {
		b.setState(StateHalfOpen)
	}
	return b.state
}

// setState must hold mu.
func (b *Breaker) setState(s State) {
	if s == b.state {
		return
	}
	from := b.state
	b.state = s
	b.failures = 0
	b.halfOpenCount = 0
	if s == StateOpen {
		b.openedAt = b.now()
	}
	if b.opts.OnStateChange != nil {
		b.opts.OnStateChange(from, s)
	}
}

// acquire reports whether a call may proceed.
func (b *Breaker) acquire() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.currentState() {
	case StateOpen:
		return false
	case StateHalfOpen:
		if b.halfOpenCount >= b.opts.HalfOpenMax {
			return false
		}
		b.halfOpenCount++
	}
	return true
}

// record accounts for the outcome of an admitted call.
func (b *Breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.opts.IsFailure(err) {
		if b.state == StateHalfOpen {
			b.setState(StateClosed)
		}
		b.failures = 0
		return
	}
	b.failures++
	if b.state == StateHalfOpen || b.failures >= b.opts.FailThreshold {
		b.setState(StateOpen)
	}
}

// Call runs f unless the breaker is open.
func (b *Breaker) Call(ctx context.Context, f func(context.Context) error) error {
	return CallResult(b, ctx, func(ctx context.Context) fn.Result[struct{}] {
		if err := f(ctx); err != nil {
			return fn.Err[struct{}](err)
		}
		return fn.Ok(struct{}{})
	}).Err()
}

// CallResult runs f unless the breaker is open. Err results count as
// failures; None does not.
func CallResult[T any](b *Breaker, ctx context.Context, f func(context.Context) fn.Result[T]) fn.Result[T] {
	if !b.acquire() {
		return fn.Err[T](ErrCircuitOpen)
	}
	r := f(ctx)
	b.record(r.Err())
	return r
}

// BreakerStage guards stage with b.
func BreakerStage[In, Out any](b *Breaker, stage fn.Stage[In, Out]) fn.Stage[In, Out] {
	return func(ctx context.Context, in In) fn.Result[Out] {
		return CallResult(b, ctx, func(ctx context.Context) fn.Result[Out] {
			return stage(ctx, in)
		})
	}
}
