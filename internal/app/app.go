package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"ztime/internal/adapter/httpapi"
	"ztime/internal/adapter/scheduler"
	"ztime/internal/config"
	"ztime/internal/platform/logger"
	"ztime/pkg/ztime"
)

// App wires application components.
type App struct {
	cfg config.Config
	log *slog.Logger
}

// New creates a new App instance and loads configuration.
func New() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log := logger.New(logger.Options{
		Env:          cfg.Env,
		ConsoleLevel: cfg.Log.ConsoleLevel,
		FileLevel:    cfg.Log.FileLevel,
		File:         cfg.Log.File,
		App:          "ztimed",
	})
	return &App{cfg: cfg, log: log}, nil
}

// Run starts the application and blocks until SIGINT or SIGTERM.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	defer func() { _ = logger.Close(a.log) }()

	return a.run(ctx)
}

func (a *App) run(ctx context.Context) error {
	a.log.Info("starting")

	start, err := ztime.Parse(a.cfg.Heartbeat.At)
	if err != nil {
		return err
	}

	sched := scheduler.New(scheduler.Config{
		Logger:   a.log.With("component", "scheduler"),
		JobHooks: a.hooks(),
	})
	sched.AddLoopJobWithOptions(start, a.heartbeat, scheduler.LoopOptions{
		JobOptions: scheduler.JobOptions{Name: "heartbeat", Timeout: 10 * time.Second},
		Every:      a.cfg.HeartbeatEvery(),
		Jitter:     a.cfg.HeartbeatJitter(),
	})
	sched.Start()

	var srv *http.Server
	if a.cfg.HTTP.Addr != "" {
		h := httpapi.New(httpapi.Options{
			Logger:        a.log.With("component", "http"),
			Jobs:          sched,
			RatePerSecond: a.cfg.HTTP.RatePerSecond,
			RateBurst:     a.cfg.HTTP.RateBurst,
		})
		srv = &http.Server{Addr: a.cfg.HTTP.Addr, Handler: h.Router(), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.log.Error("server", slog.Any("err", err))
			}
		}()
		a.log.Info("http api listening", slog.String("addr", a.cfg.HTTP.Addr))
	}

	<-ctx.Done()
	a.log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Shutdown())
	defer cancel()

	var errs []error
	if srv != nil {
		errs = append(errs, srv.Shutdown(shutdownCtx))
	}
	errs = append(errs, sched.StopContext(shutdownCtx))
	return errors.Join(errs...)
}

func (a *App) heartbeat(ctx context.Context) error {
	a.log.Info("heartbeat", slog.Any("at", ztime.Now()))
	return nil
}

func (a *App) hooks() scheduler.JobHooks {
	return scheduler.JobHooks{
		OnJobStart: func(jobName string) {
			a.log.Debug("job started", "job", jobName)
		},
		OnJobFinish: func(jobName string, duration time.Duration, err error) {
			if err != nil {
				a.log.Warn("job failed", "job", jobName, "duration", duration, "error", err)
				return
			}
			a.log.Debug("job completed", "job", jobName, "duration", duration)
		},
	}
}
