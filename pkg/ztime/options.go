package ztime

import "log/slog"

// Option configures a Parser, Wait or Loop.
type Option func(*options)

type options struct {
	clock    Clock
	logger   *slog.Logger
	observer LoopObserver
}

func newOptions(opts []Option) options {
	o := options{
		clock:  SystemClock{},
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

// WithClock replaces the system clock.
func WithClock(c Clock) Option {
	return func(o *options) {
		if c != nil {
			o.clock = c
		}
	}
}

// WithLogger enables debug tracing of grammar matches and loop transitions.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithObserver registers a callback invoked on every Loop state transition.
func WithObserver(fn LoopObserver) Option {
	return func(o *options) {
		o.observer = fn
	}
}
