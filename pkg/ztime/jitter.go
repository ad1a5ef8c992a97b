package ztime

import "math/rand/v2"

// Rand is a source of uniform integers in [0, n). *rand.Rand from
// math/rand/v2 satisfies it.
type Rand interface {
	Int64N(n int64) int64
}

type globalRand struct{}

func (globalRand) Int64N(n int64) int64 {
	return rand.Int64N(n) //nolint:gosec // jitter spreads load, it is not a secret
}

// DefaultRand returns the process-wide random source. It is safe for
// concurrent use.
func DefaultRand() Rand {
	return globalRand{}
}

// Jitter returns t moved by a random offset strictly inside
// (-amplitude/2, +amplitude/2). A zero amplitude returns t unchanged.
func (t Time) Jitter(amplitude Duration) Time {
	return t.JitterWith(globalRand{}, amplitude)
}

// JitterWith is Jitter with an explicit random source.
//
// The offset is a whole number of milliseconds, so the bounds hold for the
// instant and for its Millis view alike. Amplitudes of 1ms and 2ms leave no
// whole millisecond strictly inside the interval other than zero.
func (t Time) JitterWith(r Rand, amplitude Duration) Time {
	span := amplitude.ToMilliseconds()
	if span < 0 {
		span = -span
	}
	// Offsets run over [-k, k] with k < span/2.
	k := (span - 1) / 2
	if k <= 0 {
		return t
	}
	return t.Plus(Millis(r.Int64N(2*k+1) - k))
}
