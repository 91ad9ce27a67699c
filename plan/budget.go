package plan

import (
	"context"
	"math"
	"sync"
	"time"
)

// A Budget is a deadline that can be moved while it runs.
// A Budget created with no limit never expires until it is recapped.
// Budgets are safe for concurrent use.
type Budget struct {
	mu       sync.Mutex
	now      func() time.Time
	hard     time.Time // Zero if there is no hard limit
	deadline time.Time // Zero if there is no deadline at all
	timer    *time.Timer
	done     chan struct{}
	expired  bool
}

// NewBudget returns a budget expiring after limit, or never if limit <= 0.
// The limit is also a hard ceiling: Recap never moves the deadline past it.
func NewBudget(limit time.Duration) *Budget {
	return newBudget(limit, time.Now)
}

func newBudget(limit time.Duration, now func() time.Time) *Budget {
	b := &Budget{now: now, done: make(chan struct{})}
	if limit > 0 {
		b.hard = now().Add(limit)
		b.set(b.hard)
	}
	return b
}

// set moves the deadline. Must be called with b.mu held.
func (b *Budget) set(deadline time.Time) {
	if b.expired {
		return
	}
	b.deadline = deadline
	wait := deadline.Sub(b.now())
	if wait <= 0 {
		b.expire()
		return
	}
	if b.timer == nil {
		b.timer = time.AfterFunc(wait, b.fire)
	} else {
		b.timer.Reset(wait)
	}
}

func (b *Budget) fire() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.expired || b.deadline.IsZero() {
		return
	}
	// The deadline may have moved since the timer was armed.
	if wait := b.deadline.Sub(b.now()); wait > 0 {
		b.timer.Reset(wait)
		return
	}
	b.expire()
}

func (b *Budget) expire() {
	b.expired = true
	if b.timer != nil {
		b.timer.Stop()
	}
	close(b.done)
}

// Recap sets the remaining time to d, whether it moves the deadline sooner or later.
// The deadline is clamped to the hard limit given to NewBudget.
func (b *Budget) Recap(d time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	deadline := b.now().Add(d)
	if !b.hard.IsZero() && deadline.After(b.hard) {
		deadline = b.hard
	}
	b.set(deadline)
}

// ExtendTo makes sure at least d remains before the deadline.
// It never moves the deadline sooner, and does nothing on a budget without a deadline.
func (b *Budget) ExtendTo(d time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.deadline.IsZero() {
		return
	}
	if deadline := b.now().Add(d); deadline.After(b.deadline) {
		b.set(deadline)
	}
}

// Deadline returns the current deadline, and false if there is none.
func (b *Budget) Deadline() (time.Time, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.deadline, !b.deadline.IsZero()
}

// Done returns a channel closed once the budget expired.
func (b *Budget) Done() <-chan struct{} {
	return b.done
}

// Expired is true iff the budget expired.
func (b *Budget) Expired() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.expired
}

// Stop releases the timer of the budget. A stopped budget never expires.
func (b *Budget) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.timer != nil {
		b.timer.Stop()
	}
	b.deadline = time.Time{}
}

// Context returns a copy of parent cancelled when the budget expires,
// with a *TimeoutError for the given phase as its cause.
func (b *Budget) Context(parent context.Context, phase string) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancelCause(parent)
	go func() {
		select {
		case <-b.Done():
			cancel(&TimeoutError{Phase: phase})
		case <-ctx.Done():
		}
	}()
	return ctx, func() { cancel(context.Canceled) }
}

// Seconds converts an estimated number of seconds to a duration, saturating instead of overflowing.
func Seconds(s float64) time.Duration {
	if math.IsNaN(s) || s <= 0 {
		return 0
	}
	if s >= float64(math.MaxInt64)/float64(time.Second) {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(s * float64(time.Second))
}
