// Package retry provides retry logic with exponential backoff and jitter,
// scheduled on ztime instants.
//
// Key Features:
//   - Multiple jitter strategies (None, Equal, Decorrelated, Centered)
//   - Configurable time and attempt limits
//   - Rich network error detection
//   - Observability hooks (OnRetry callback)
//   - Custom delay policies (NextDelay override)
//   - Full testability support (ztime.Clock and ztime.Rand injection)
//   - Detailed error reporting
//
// Every attempt is one iteration of a ztime.Loop: a failed attempt asks for
// another iteration at now+delay, so cancellation of ctx aborts the wait
// between attempts.
//
// Basic Usage:
//
//	err := retry.Retry(ctx, func(ctx context.Context) error {
//	    return someNetworkOperation()
//	})
//
// Advanced Configuration:
//
//	config := retry.Config{
//	    MaxAttempts:    5,
//	    InitialDelay:   200 * time.Millisecond,
//	    MaxDelay:       10 * time.Second,
//	    MaxElapsedTime: 60 * time.Second,
//	    JitterStrategy: retry.JitterCentered,
//	    OnRetry: func(attempt int, err error, delay time.Duration) {
//	        log.Printf("Retry %d after %v: %v", attempt, delay, err)
//	    },
//	}
//	err := retry.Do(ctx, config, fn)
//
// Custom Retry Logic:
//
//	config := retry.DefaultConfig()
//	config.NextDelay = func(attempt int, err error) (time.Duration, bool) {
//	    if attempt > 3 {
//	        return 0, false // stop retrying
//	    }
//	    return time.Second * time.Duration(attempt), true
//	}
package retry
