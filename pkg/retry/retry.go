package retry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net"
	"net/url"
	"os"
	"syscall"
	"time"

	"ztime/pkg/ztime"
)

// JitterStrategy defines the jitter strategy to use
type JitterStrategy int

const (
	// JitterNone disables jitter
	JitterNone JitterStrategy = iota
	// JitterEqual applies uniform jitter (equal chance of any delay in range)
	JitterEqual
	// JitterDecorrelated applies decorrelated jitter (AWS recommended)
	JitterDecorrelated
	// JitterCentered wakes up strictly within ±delay/2 of the backoff delay
	JitterCentered
)

// Config defines retry configuration
type Config struct {
	// MaxAttempts is the maximum number of attempts (including the first one)
	MaxAttempts int
	// InitialDelay is the initial delay between retries
	InitialDelay time.Duration
	// MinDelay is the minimum delay between retries (defaults to InitialDelay)
	MinDelay time.Duration
	// MaxDelay is the maximum delay between retries
	MaxDelay time.Duration
	// MaxElapsedTime is the maximum total time to spend on retries (0 = no limit)
	MaxElapsedTime time.Duration
	// Multiplier is the exponential backoff multiplier
	Multiplier float64
	// JitterStrategy defines the jitter algorithm to use
	JitterStrategy JitterStrategy
	// Rand is the random source for jitter (optional, uses a seeded local source if nil)
	Rand ztime.Rand
	// OnRetry is called on each retry attempt for observability
	OnRetry func(attempt int, err error, nextDelay time.Duration)
	// NextDelay allows custom delay calculation (overrides backoff+jitter if provided)
	NextDelay func(attempt int, err error) (time.Duration, bool)
	// Clock drives waiting between attempts (for testing, defaults to the system clock)
	Clock ztime.Clock
}

// DefaultConfig returns a sensible default configuration
func DefaultConfig() Config {
	return Config{
		MaxAttempts:    3,
		InitialDelay:   100 * time.Millisecond,
		MinDelay:       0, // will be set to InitialDelay during normalization
		MaxDelay:       30 * time.Second,
		MaxElapsedTime: 0, // no limit
		Multiplier:     2.0,
		JitterStrategy: JitterDecorrelated,
	}
}

// Normalize validates and normalizes the configuration
func (c *Config) Normalize() error {
	if c.MaxAttempts <= 0 {
		return errors.New("retry: MaxAttempts must be positive")
	}
	if c.InitialDelay <= 0 {
		return errors.New("retry: InitialDelay must be positive")
	}
	if c.MinDelay <= 0 {
		c.MinDelay = c.InitialDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 30 * time.Second
	}
	if c.MinDelay > c.MaxDelay {
		return errors.New("retry: MinDelay cannot be greater than MaxDelay")
	}
	if c.InitialDelay < c.MinDelay || c.InitialDelay > c.MaxDelay {
		return errors.New("retry: InitialDelay must be between MinDelay and MaxDelay")
	}
	if c.Multiplier <= 0 {
		c.Multiplier = 2.0 // default multiplier
	}
	if c.Multiplier < 1.0 {
		return errors.New("retry: Multiplier must be >= 1.0")
	}
	if c.MaxElapsedTime < 0 {
		return errors.New("retry: MaxElapsedTime cannot be negative")
	}
	if c.JitterStrategy < JitterNone || c.JitterStrategy > JitterCentered {
		return fmt.Errorf("retry: unknown JitterStrategy %d", c.JitterStrategy)
	}

	if c.Rand == nil {
		seed := uint64(time.Now().UnixNano())
		c.Rand = rand.New(rand.NewPCG(seed, seed>>1|1)) //nolint:gosec // jitter only
	}
	if c.Clock == nil {
		c.Clock = ztime.SystemClock{}
	}

	return nil
}

// RetryableFunc is a function that can be retried
type RetryableFunc func(ctx context.Context) error

// IsRetryableFunc determines if an error should trigger a retry
type IsRetryableFunc func(err error) bool

// RetriesExceededError is returned when retries are exhausted
type RetriesExceededError struct {
	LastError     error
	Attempts      int
	TotalDuration time.Duration
	Reason        string
}

func (e *RetriesExceededError) Error() string {
	return fmt.Sprintf("retry: %s after %s (%d attempts): %v", e.Reason, e.TotalDuration, e.Attempts, e.LastError)
}

func (e *RetriesExceededError) Unwrap() error {
	return e.LastError
}

// AnyError retries every error except context cancellation.
func AnyError(err error) bool {
	return err != nil && !errors.Is(err, context.Canceled)
}

// DefaultRetryable returns true for temporary errors and context deadline exceeded
func DefaultRetryable(err error) bool {
	if err == nil {
		return false
	}

	// Don't retry context cancellation
	if errors.Is(err, context.Canceled) {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	type netError interface {
		Timeout() bool
	}
	if ne, ok := err.(netError); ok && ne.Timeout() {
		return true
	}

	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, net.ErrClosed) {
		return true
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		if ne, ok := urlErr.Err.(netError); ok && ne.Timeout() {
			return true
		}

		var dnsErr *net.DNSError
		if errors.As(urlErr.Err, &dnsErr) && dnsErr.IsTemporary {
			return true
		}

		var opErr *net.OpError
		if errors.As(urlErr.Err, &opErr) {
			var syscallErr *os.SyscallError
			if errors.As(opErr.Err, &syscallErr) {
				switch syscallErr.Err {
				case syscall.ECONNRESET, syscall.ECONNREFUSED, syscall.ECONNABORTED,
					syscall.ENETDOWN, syscall.ENETUNREACH, syscall.EPIPE,
					syscall.EHOSTUNREACH, syscall.ETIMEDOUT:
					return true
				}
			}
		}
	}

	type temporary interface {
		Temporary() bool
	}
	if t, ok := err.(temporary); ok {
		return t.Temporary()
	}

	return false
}

// Do executes a function with retry logic using exponential backoff
func Do(ctx context.Context, config Config, fn RetryableFunc) error {
	return DoWithRetryable(ctx, config, fn, DefaultRetryable)
}

// DoWithRetryable executes a function with retry logic and custom retryable check.
//
// Attempts run as iterations of a ztime.Loop: every failed attempt schedules
// the next one at now+delay, so waiting honours ctx and the configured Clock.
func DoWithRetryable(ctx context.Context, config Config, fn RetryableFunc, isRetryable IsRetryableFunc) error {
	configCopy := config // Make a copy to avoid modifying the original
	if err := configCopy.Normalize(); err != nil {
		return err
	}

	var (
		attempt int
		lastErr error
	)
	startTime := ztime.FromTime(configCopy.Clock.Now())

	_, err := ztime.Loop(ctx, startTime, func(ctx context.Context, _ ztime.Time, next *ztime.Next) (struct{}, error) {
		attempt++
		lastErr = fn(ctx)
		if lastErr == nil || attempt == configCopy.MaxAttempts {
			return struct{}{}, nil
		}

		if !isRetryable(lastErr) {
			return struct{}{}, lastErr // original error for non-retryable errors
		}

		now := ztime.FromTime(configCopy.Clock.Now())

		var delay time.Duration
		if configCopy.NextDelay != nil {
			var shouldRetry bool
			delay, shouldRetry = configCopy.NextDelay(attempt, lastErr)
			if !shouldRetry {
				return struct{}{}, lastErr
			}
		} else {
			delay = configCopy.calculateDelay(attempt)
		}
		delay = configCopy.applyJitter(now, delay)

		if configCopy.MaxElapsedTime > 0 {
			elapsed := now.Time().Sub(startTime.Time())
			if elapsed+delay > configCopy.MaxElapsedTime {
				return struct{}{}, &RetriesExceededError{
					LastError:     lastErr,
					Attempts:      attempt,
					TotalDuration: elapsed,
					Reason:        "max elapsed time exceeded",
				}
			}
		}

		// Respect context deadline
		if deadline, ok := ctx.Deadline(); ok {
			if remaining := deadline.Sub(now.Time()); delay > remaining {
				delay = remaining
			}
		}

		if configCopy.OnRetry != nil {
			configCopy.OnRetry(attempt, lastErr, delay)
		}

		next.At(now.Plus(ztime.FromStd(delay)))
		return struct{}{}, nil
	}, ztime.WithClock(configCopy.Clock))
	if err != nil {
		return err
	}
	if lastErr == nil {
		return nil
	}

	return &RetriesExceededError{
		LastError:     lastErr,
		Attempts:      attempt,
		TotalDuration: configCopy.Clock.Now().Sub(startTime.Time()),
		Reason:        "max attempts exceeded",
	}
}

// calculateDelay calculates the delay for the given attempt using exponential backoff
func (c Config) calculateDelay(attempt int) time.Duration {
	delay := c.InitialDelay

	// Apply multiplier (attempt-1) times
	for i := 1; i < attempt; i++ {
		// Check for overflow before multiplication
		if delay > c.MaxDelay/time.Duration(c.Multiplier) {
			return c.MaxDelay
		}
		delay = time.Duration(float64(delay) * c.Multiplier)

		if delay > c.MaxDelay {
			return c.MaxDelay
		}
	}

	return clamp(delay, c.MinDelay, c.MaxDelay)
}

// applyJitter applies the configured jitter strategy to the delay
func (c Config) applyJitter(now ztime.Time, baseDelay time.Duration) time.Duration {
	if baseDelay <= 0 {
		return baseDelay
	}

	switch c.JitterStrategy {
	case JitterEqual:
		// Equal jitter: random value between 0 and baseDelay
		jitter := time.Duration(c.Rand.Int64N(int64(baseDelay)))
		return clamp(jitter, c.MinDelay, c.MaxDelay)

	case JitterDecorrelated:
		// Decorrelated jitter: 3 * baseDelay / 2 ± baseDelay / 2
		max := 3 * baseDelay / 2
		jitter := baseDelay + time.Duration(c.Rand.Int64N(int64(max-baseDelay/2)))
		return clamp(jitter, c.MinDelay, c.MaxDelay)

	case JitterCentered:
		base := ztime.FromStd(baseDelay)
		wake := now.Plus(base).JitterWith(c.Rand, base)
		return clamp(wake.Time().Sub(now.Time()), c.MinDelay, c.MaxDelay)

	default:
		return baseDelay
	}
}

// clamp ensures the value is within the specified bounds
func clamp(value, min, max time.Duration) time.Duration {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}

// Retry is a convenience function that uses default configuration
func Retry(ctx context.Context, fn RetryableFunc) error {
	return Do(ctx, DefaultConfig(), fn)
}

// RetryWithAttempts is a convenience function with custom max attempts
func RetryWithAttempts(ctx context.Context, maxAttempts int, fn RetryableFunc) error {
	config := DefaultConfig()
	config.MaxAttempts = maxAttempts
	return Do(ctx, config, fn)
}

// RetryWithTimeout is a convenience function with timeout and max attempts
func RetryWithTimeout(ctx context.Context, timeout time.Duration, maxAttempts int, fn RetryableFunc) error {
	config := DefaultConfig()
	config.MaxAttempts = maxAttempts
	config.MaxElapsedTime = timeout
	return Do(ctx, config, fn)
}
