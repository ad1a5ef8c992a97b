package ztime

import (
	"context"
	"log/slog"
	"sync"
)

// Wait blocks until t according to the clock (see WithClock) and returns t.
// An instant that is already due returns at once. Cancelling ctx aborts the
// wait with ctx.Err().
func (t Time) Wait(ctx context.Context, opts ...Option) (Time, error) {
	return t.wait(ctx, newOptions(opts))
}

func (t Time) wait(ctx context.Context, o options) (Time, error) {
	if err := ctx.Err(); err != nil {
		return t, err
	}
	delay := t.t.Sub(o.clock.Now())
	if delay <= 0 {
		return t, nil
	}
	select {
	case <-ctx.Done():
		return t, ctx.Err()
	case <-o.clock.After(delay):
		return t, nil
	}
}

// LoopState is the phase a Loop is in.
type LoopState int

const (
	// LoopWaiting means the loop is suspended until the current schedule.
	LoopWaiting LoopState = iota
	// LoopRunning means the callback is executing.
	LoopRunning
)

func (s LoopState) String() string {
	switch s {
	case LoopWaiting:
		return "waiting"
	case LoopRunning:
		return "running"
	default:
		return "unknown"
	}
}

// LoopObserver is notified before every state transition of a Loop.
// Iterations count from 1.
type LoopObserver func(state LoopState, at Time, iteration int)

// Next is the continuation handed to each Loop iteration. Calling any of its
// methods before the callback returns requests another iteration; if none is
// called the loop ends. Calls made after the callback returned are ignored.
// Next may be used from goroutines the callback joins before returning.
type Next struct {
	mu        sync.Mutex
	at        Time
	schedule  Time
	requested bool
	closed    bool
}

// Again requests another iteration at the current schedule.
func (n *Next) Again() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.closed {
		n.requested = true
	}
}

// At requests another iteration at t.
func (n *Next) At(t Time) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.closed {
		n.schedule = t
		n.requested = true
	}
}

// After requests another iteration d after the instant this iteration was
// scheduled for.
func (n *Next) After(d Duration) {
	n.At(n.at.Plus(d))
}

// Requested reports whether another iteration has been requested so far.
func (n *Next) Requested() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.requested
}

func (n *Next) close() (Time, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.closed = true
	return n.schedule, n.requested
}

// LoopFunc is one Loop iteration. at is the instant the iteration was
// scheduled for.
type LoopFunc[R any] func(ctx context.Context, at Time, next *Next) (R, error)

// Loop waits until start, runs fn, and keeps doing so for as long as each
// call requests another iteration through next. It returns the value of the
// last call.
//
// Iterations never overlap: iteration N+1 starts only after call N returned
// and its rescheduled instant elapsed. An error from fn, or from the wait
// (including ctx cancellation), stops the loop and is returned; the value
// returned alongside it is fn's result for a callback error and the last
// completed result otherwise.
func Loop[R any](ctx context.Context, start Time, fn LoopFunc[R], opts ...Option) (R, error) {
	o := newOptions(opts)

	var result R
	schedule := start
	for iteration := 1; ; iteration++ {
		o.transition(LoopWaiting, schedule, iteration)
		if _, err := schedule.wait(ctx, o); err != nil {
			return result, err
		}

		o.transition(LoopRunning, schedule, iteration)
		next := &Next{at: schedule, schedule: schedule}
		r, err := fn(ctx, schedule, next)
		nextAt, again := next.close()
		if err != nil {
			return r, err
		}
		result = r
		if !again {
			o.logger.Debug("loop finished", slog.Int("iterations", iteration))
			return result, nil
		}
		schedule = nextAt
	}
}

// Loop runs fn on the schedule starting at t; see the package-level Loop.
func (t Time) Loop(ctx context.Context, fn func(ctx context.Context, at Time, next *Next) error, opts ...Option) error {
	_, err := Loop(ctx, t, func(ctx context.Context, at Time, next *Next) (struct{}, error) {
		return struct{}{}, fn(ctx, at, next)
	}, opts...)
	return err
}

func (o options) transition(state LoopState, at Time, iteration int) {
	o.logger.Debug("loop", slog.String("state", state.String()), slog.String("at", at.ISO()), slog.Int("iteration", iteration))
	if o.observer != nil {
		o.observer(state, at, iteration)
	}
}
