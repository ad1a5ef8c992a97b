// Package scheduler provides background job processing: cron jobs, cron jobs
// scheduled by a ztime expression and loop jobs driven by ztime.Loop.
//
// Features:
//   - Cron-style scheduling using github.com/robfig/cron/v3
//   - Expression jobs ("12:00", "monday +09:00", "+00:05") via ExprSchedule
//   - Loop jobs: a start instant, a calendar period and a jitter amplitude
//   - Job overlap control policies (Allow/Skip/Delay) for cron jobs
//   - Per-job timeouts, named jobs and optional retry (pkg/retry)
//   - Graceful shutdown with optional deadline (StopContext)
//   - Panic recovery, slog logging and observability hooks
//
// Basic usage:
//
//	scheduler := New(Config{Logger: logger})
//
//	cronID, err := scheduler.AddCronJob("@hourly", func(ctx context.Context) error {
//		return nil
//	})
//
//	exprID, err := scheduler.AddExprJobWithOptions("12:00", ztime.Duration{Minutes: 10}, report, JobOptions{
//		Name: "daily-report",
//	})
//
//	loopID := scheduler.AddLoopJobWithOptions(ztime.MustParse("next monday"), cleanup, LoopOptions{
//		JobOptions: JobOptions{Name: "cleanup", Timeout: 30 * time.Second},
//		Every:      ztime.Duration{Weeks: 1},
//		Jitter:     ztime.Duration{Hours: 1},
//	})
//
//	scheduler.Start()
//	defer scheduler.Stop()
//
//	scheduler.RemoveCronJob(cronID)
//	scheduler.RemoveCronJob(exprID)
//	scheduler.RemoveLoopJob(loopID)
//
// Loop jobs start as soon as they are added. Each run happens strictly inside
// (nominal-Jitter/2, nominal+Jitter/2); nominal instants advance by Every and
// slots missed while a run was still busy are skipped.
//
// The scheduler ensures that:
//   - Jobs respect configured overlap policies
//   - Panics are recovered and logged
//   - Errors are logged but don't stop the scheduler
//   - Context cancellation stops all jobs gracefully
//   - Start/Stop operations are idempotent and thread-safe
package scheduler
