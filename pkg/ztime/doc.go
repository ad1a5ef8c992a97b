// Package ztime provides a scheduled moment: an immutable UTC instant that
// can be parsed from a small date/time language, shifted by calendar-like
// durations, randomized with jitter, and waited on.
//
// Key Features:
//   - Expression parser: "now", "next monday", "14:30", "2022-02-28T12:34:56Z +02:30", "-00:15"
//   - Closest-future resolution for clock times and weekday names
//   - Duration arithmetic with fixed factors (a day is always 24h)
//   - Jitter strictly inside (-amplitude/2, +amplitude/2)
//   - Context-aware Wait and a self-rescheduling Loop
//   - Injectable Clock, random source and slog logger for tests and tracing
//
// Basic Usage:
//
//	at, err := ztime.Parse("next friday +02:00")
//	if err != nil {
//	    return err
//	}
//	if _, err := at.Wait(ctx); err != nil {
//	    return err
//	}
//
// Self-rescheduling loop:
//
//	err := ztime.Now().Loop(ctx, func(ctx context.Context, at ztime.Time, next *ztime.Next) error {
//	    if err := poll(ctx); err != nil {
//	        return err
//	    }
//	    next.At(at.Plus(ztime.Duration{Minutes: 5}).Jitter(ztime.Duration{Seconds: 30}))
//	    return nil
//	})
//
// Not calling next ends the loop. Every iteration chooses its own wake-up
// time, so a loop can back off, speed up or stop based on what it observed.
package ztime
