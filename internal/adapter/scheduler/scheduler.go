package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"ztime/pkg/retry"
	"ztime/pkg/ztime"
)

// JobFunc представляет функцию задачи планировщика.
type JobFunc func(ctx context.Context) error

// CronJobID представляет идентификатор cron-задачи.
type CronJobID = cron.EntryID

// LoopJobID представляет идентификатор loop-задачи.
type LoopJobID int

// OverlapPolicy определяет политику обработки перекрывающихся выполнений задач.
type OverlapPolicy int

const (
	// AllowOverlap разрешает параллельное выполнение задач (по умолчанию).
	AllowOverlap OverlapPolicy = iota
	// SkipIfRunning пропускает выполнение, если задача уже запущена.
	SkipIfRunning
	// DelayIfRunning ждет завершения предыдущего выполнения.
	DelayIfRunning
)

// JobOptions содержит опции для настройки задач.
type JobOptions struct {
	// Name - имя задачи для логирования (необязательно).
	Name string
	// Timeout - максимальное время выполнения задачи (необязательно).
	Timeout time.Duration
	// OverlapPolicy - политика обработки перекрывающихся выполнений.
	// Для loop-задач не действует: их итерации никогда не перекрываются.
	OverlapPolicy OverlapPolicy
	// Retry - повтор упавшего запуска (необязательно). Повторяются все ошибки,
	// кроме отмены контекста.
	Retry *retry.Config
}

// LoopOptions содержит опции loop-задачи.
type LoopOptions struct {
	JobOptions
	// Every - период между номинальными запусками. Нулевой период - один запуск.
	Every ztime.Duration
	// Jitter - амплитуда случайного сдвига каждого запуска относительно номинального.
	Jitter ztime.Duration
}

// LoopJobInfo - снимок состояния loop-задачи.
type LoopJobInfo struct {
	ID    LoopJobID  `json:"id"`
	Name  string     `json:"name"`
	State string     `json:"state"`
	Next  ztime.Time `json:"next"`
	Runs  int        `json:"runs"`
}

// jobWrapper оборачивает задачу с её опциями.
type jobWrapper struct {
	job     JobFunc
	options JobOptions
	running sync.Mutex // для контроля перекрытий
}

// loopJob содержит информацию о loop-задаче.
type loopJob struct {
	id      LoopJobID
	cancel  context.CancelFunc
	wrapper *jobWrapper

	mu    sync.Mutex
	state ztime.LoopState
	next  ztime.Time
	runs  int
}

func (j *loopJob) observe(state ztime.LoopState, at ztime.Time, iteration int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.state = state
	j.next = at
	if state == ztime.LoopRunning {
		j.runs = iteration
	}
}

func (j *loopJob) info() LoopJobInfo {
	j.mu.Lock()
	defer j.mu.Unlock()
	return LoopJobInfo{
		ID:    j.id,
		Name:  j.wrapper.options.Name,
		State: j.state.String(),
		Next:  j.next,
		Runs:  j.runs,
	}
}

// cronLogger адаптер для интеграции cron logger с slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.LogAttrs(context.Background(), slog.LevelDebug, msg, kvAttrs(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	attrs := append([]slog.Attr{slog.Any("error", err)}, kvAttrs(keysAndValues)...)
	l.logger.LogAttrs(context.Background(), slog.LevelError, msg, attrs...)
}

func kvAttrs(keysAndValues []interface{}) []slog.Attr {
	attrs := make([]slog.Attr, 0, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			key = fmt.Sprint(keysAndValues[i])
		}
		attrs = append(attrs, slog.Any(key, keysAndValues[i+1]))
	}
	return attrs
}

// Scheduler управляет периодическими задачами.
type Scheduler struct {
	cron       *cron.Cron
	logger     *slog.Logger
	hooks      JobHooks
	clock      ztime.Clock
	rand       ztime.Rand
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	loopJobs   map[LoopJobID]*loopJob
	nextLoopID LoopJobID
	mu         sync.Mutex
	stopOnce   sync.Once
	startOnce  sync.Once
}

// JobHooks содержит необязательные хуки для наблюдаемости.
type JobHooks struct {
	OnJobStart  func(jobName string)
	OnJobFinish func(jobName string, duration time.Duration, err error)
	OnJobError  func(jobName string, err error)
}

// Config содержит конфигурацию планировщика.
type Config struct {
	Logger   *slog.Logger
	JobHooks JobHooks
	// Clock - часы для loop-задач (по умолчанию системные).
	Clock ztime.Clock
	// Rand - источник случайности для джиттера (по умолчанию общий для процесса).
	Rand ztime.Rand
}

// New создает новый экземпляр планировщика с background контекстом.
func New(cfg Config) *Scheduler {
	return NewWithContext(context.Background(), cfg)
}

// NewWithContext создает новый экземпляр планировщика с указанным родительским контекстом.
func NewWithContext(parentCtx context.Context, cfg Config) *Scheduler {
	ctx, cancel := context.WithCancel(parentCtx)

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = ztime.SystemClock{}
	}
	rnd := cfg.Rand
	if rnd == nil {
		rnd = ztime.DefaultRand()
	}

	// Создаем cron с интегрированным логгером
	cronOpts := []cron.Option{
		cron.WithSeconds(),
		cron.WithLocation(time.UTC),
		cron.WithLogger(cronLogger{logger: logger.With("component", "cron")}),
	}

	return &Scheduler{
		cron:       cron.New(cronOpts...),
		logger:     logger,
		hooks:      cfg.JobHooks,
		clock:      clock,
		rand:       rnd,
		ctx:        ctx,
		cancel:     cancel,
		loopJobs:   make(map[LoopJobID]*loopJob),
		nextLoopID: 1,
	}
}

// AddCronJob добавляет задачу по cron-расписанию с опциями по умолчанию.
// Примеры расписаний:
//   - "0 30 * * * *" - каждые 30 минут
//   - "@hourly" - каждый час
//   - "@every 5m" - каждые 5 минут
func (s *Scheduler) AddCronJob(schedule string, job JobFunc) (CronJobID, error) {
	return s.AddCronJobWithOptions(schedule, job, JobOptions{})
}

// AddCronJobWithOptions добавляет задачу по cron-расписанию с указанными опциями.
func (s *Scheduler) AddCronJobWithOptions(schedule string, job JobFunc, opts JobOptions) (CronJobID, error) {
	id, err := s.cron.AddJob(schedule, s.chainFor(opts).Then(s.cronJob(job, opts)))
	if err != nil {
		s.logger.Error("failed to add cron job", "schedule", schedule, "name", opts.Name, "error", err)
		return 0, err
	}

	s.logger.Info("cron job added", "schedule", schedule, "name", opts.Name, "overlap_policy", opts.OverlapPolicy, "id", id)
	return id, nil
}

// AddExprJob добавляет задачу, расписание которой задано выражением ztime
// (см. ExprSchedule), с опциями по умолчанию.
func (s *Scheduler) AddExprJob(expr string, job JobFunc) (CronJobID, error) {
	return s.AddExprJobWithOptions(expr, ztime.Duration{}, job, JobOptions{})
}

// AddExprJobWithOptions добавляет задачу по выражению ztime с джиттером и опциями.
func (s *Scheduler) AddExprJobWithOptions(expr string, jitter ztime.Duration, job JobFunc, opts JobOptions) (CronJobID, error) {
	schedule, err := NewExprSchedule(expr, jitter, ztime.WithClock(s.clock))
	if err != nil {
		s.logger.Error("failed to add expr job", "expr", expr, "name", opts.Name, "error", err)
		return 0, err
	}
	schedule.rand = s.rand

	id := s.cron.Schedule(schedule, s.chainFor(opts).Then(s.cronJob(job, opts)))
	s.logger.Info("expr job added", "expr", expr, "jitter", jitter, "name", opts.Name, "id", id)
	return id, nil
}

func (s *Scheduler) chainFor(opts JobOptions) cron.Chain {
	logger := cronLogger{logger: s.logger.With("component", "cron")}
	switch opts.OverlapPolicy {
	case SkipIfRunning:
		return cron.NewChain(cron.SkipIfStillRunning(logger))
	case DelayIfRunning:
		return cron.NewChain(cron.DelayIfStillRunning(logger))
	default: // AllowOverlap
		return cron.NewChain()
	}
}

func (s *Scheduler) cronJob(job JobFunc, opts JobOptions) cron.Job {
	wrapper := &jobWrapper{
		job:     job,
		options: opts,
	}
	return cron.FuncJob(func() {
		s.runJobWrapper(s.ctx, wrapper)
	})
}

// AddLoopJob добавляет задачу, которая выполняется начиная с start каждые every.
func (s *Scheduler) AddLoopJob(start ztime.Time, every ztime.Duration, job JobFunc) LoopJobID {
	return s.AddLoopJobWithOptions(start, job, LoopOptions{Every: every})
}

// AddLoopJobWithOptions добавляет loop-задачу с указанными опциями.
//
// Задача выполняется через ztime.Loop: каждая итерация ждет своего момента,
// выполняет задачу и назначает следующую. Номинальные моменты идут строго через
// Every от start; пропущенные (пока шла долгая итерация) не наверстываются.
// Фактический момент каждого запуска сдвигается на случайную величину внутри
// (-Jitter/2, Jitter/2) от номинального.
func (s *Scheduler) AddLoopJobWithOptions(start ztime.Time, job JobFunc, opts LoopOptions) LoopJobID {
	wrapper := &jobWrapper{
		job:     job,
		options: opts.JobOptions,
	}

	s.mu.Lock()
	id := s.nextLoopID
	s.nextLoopID++

	ctx, cancel := context.WithCancel(s.ctx)
	lj := &loopJob{
		id:      id,
		cancel:  cancel,
		wrapper: wrapper,
		next:    start,
	}
	s.loopJobs[id] = lj
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()
		defer s.forgetLoopJob(id)

		nominal := start
		first := start.JitterWith(s.rand, opts.Jitter)

		_, err := ztime.Loop(ctx, first, func(ctx context.Context, at ztime.Time, next *ztime.Next) (struct{}, error) {
			s.runJobWrapper(ctx, wrapper)

			if opts.Every.ToMilliseconds() <= 0 {
				return struct{}{}, nil
			}
			now := ztime.FromTime(s.clock.Now())
			nominal = nominal.Plus(opts.Every)
			for !nominal.After(now) {
				nominal = nominal.Plus(opts.Every)
			}
			next.At(nominal.JitterWith(s.rand, opts.Jitter))
			return struct{}{}, nil
		}, ztime.WithClock(s.clock), ztime.WithObserver(lj.observe))

		if err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("loop job stopped", "name", opts.Name, "id", id, "error", err)
			return
		}
		s.logger.Debug("loop job finished", "name", opts.Name, "id", id)
	}()

	s.logger.Info("loop job added", "start", start, "every", opts.Every, "jitter", opts.Jitter, "name", opts.Name, "id", id)
	return id
}

func (s *Scheduler) forgetLoopJob(id LoopJobID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.loopJobs, id)
}

// RemoveCronJob удаляет cron-задачу (в том числе по выражению) по ID.
func (s *Scheduler) RemoveCronJob(id CronJobID) {
	s.cron.Remove(id)
	s.logger.Info("cron job removed", "id", id)
}

// RemoveLoopJob останавливает и удаляет loop-задачу по ID.
func (s *Scheduler) RemoveLoopJob(id LoopJobID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, exists := s.loopJobs[id]
	if !exists {
		return false
	}

	// Отменяем контекст задачи
	job.cancel()
	delete(s.loopJobs, id)

	s.logger.Info("loop job removed", "id", id, "name", job.wrapper.options.Name)
	return true
}

// LoopJobs возвращает состояние активных loop-задач, упорядоченное по ID.
func (s *Scheduler) LoopJobs() []LoopJobInfo {
	s.mu.Lock()
	jobs := make([]*loopJob, 0, len(s.loopJobs))
	for _, j := range s.loopJobs {
		jobs = append(jobs, j)
	}
	s.mu.Unlock()

	out := make([]LoopJobInfo, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, j.info())
	}
	sort.Slice(out, func(i, k int) bool { return out[i].ID < out[k].ID })
	return out
}

// Start запускает планировщик.
func (s *Scheduler) Start() {
	s.startOnce.Do(func() {
		s.logger.Info("starting scheduler")
		s.cron.Start()

		// Запускаем горутину для отслеживания контекста
		go func() {
			<-s.ctx.Done()
			s.logger.Info("stopping scheduler due to context cancellation")
			s.stopOnce.Do(s.stop)
		}()
	})
}

// Stop останавливает планировщик и ждет завершения всех задач.
func (s *Scheduler) Stop() {
	if !s.IsRunning() {
		return // Уже остановлен
	}
	s.logger.Info("stopping scheduler")
	s.cancel()
	s.stopOnce.Do(s.stop)
}

// StopContext останавливает планировщик с учетом контекста дедлайна.
// Если контекст истекает раньше, чем завершается graceful shutdown,
// планировщик все равно останавливается корректно.
func (s *Scheduler) StopContext(ctx context.Context) error {
	if !s.IsRunning() {
		return nil // Уже остановлен
	}

	s.logger.Info("stopping scheduler with deadline")
	s.cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.stopOnce.Do(s.stop)
	}()

	select {
	case <-done:
		s.logger.Info("scheduler stopped gracefully within deadline")
		return nil
	case <-ctx.Done():
		s.logger.Warn("scheduler stop deadline exceeded, but shutdown will complete")
		<-done
		return ctx.Err()
	}
}

// stop выполняет фактическую остановку.
func (s *Scheduler) stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()

	s.mu.Lock()
	for _, job := range s.loopJobs {
		job.cancel()
	}
	s.mu.Unlock()

	// Ждем завершения всех горутин
	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}

// runJobWrapper выполняет задачу с учетом её опций.
func (s *Scheduler) runJobWrapper(parent context.Context, wrapper *jobWrapper) {
	jobName := wrapper.options.Name
	if jobName == "" {
		jobName = "unnamed"
	}

	switch wrapper.options.OverlapPolicy {
	case SkipIfRunning:
		if !wrapper.running.TryLock() {
			s.logger.Debug("skipping job execution, already running", "name", jobName)
			return
		}
		defer wrapper.running.Unlock()
	case DelayIfRunning:
		wrapper.running.Lock()
		defer wrapper.running.Unlock()
	}

	if s.hooks.OnJobStart != nil {
		s.hooks.OnJobStart(jobName)
	}

	defer func() {
		if r := recover(); r != nil {
			panicErr := fmt.Errorf("panic: %v", r)
			s.logger.Error("job panicked", "name", jobName, "panic", r)
			if s.hooks.OnJobError != nil {
				s.hooks.OnJobError(jobName, panicErr)
			}
		}
	}()

	// Создаем контекст с таймаутом, если указан
	ctx := parent
	if wrapper.options.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(parent, wrapper.options.Timeout)
		defer cancel()
	}

	start := time.Now()
	err := s.invoke(ctx, jobName, wrapper)
	duration := time.Since(start)

	if s.hooks.OnJobFinish != nil {
		s.hooks.OnJobFinish(jobName, duration, err)
	}

	if err != nil {
		s.logger.Error("job failed", "name", jobName, "error", err, "duration", duration)
		if s.hooks.OnJobError != nil {
			s.hooks.OnJobError(jobName, err)
		}
	} else {
		s.logger.Debug("job completed successfully", "name", jobName, "duration", duration)
	}
}

// invoke вызывает задачу напрямую или через retry, если он настроен.
func (s *Scheduler) invoke(ctx context.Context, jobName string, wrapper *jobWrapper) error {
	if wrapper.options.Retry == nil {
		return wrapper.job(ctx)
	}

	cfg := *wrapper.options.Retry
	if cfg.OnRetry == nil {
		cfg.OnRetry = func(attempt int, err error, delay time.Duration) {
			s.logger.Warn("retrying job", "name", jobName, "attempt", attempt, "delay", delay, "error", err)
		}
	}
	return retry.DoWithRetryable(ctx, cfg, retry.RetryableFunc(wrapper.job), retry.AnyError)
}

// IsRunning возвращает true, если планировщик запущен.
func (s *Scheduler) IsRunning() bool {
	select {
	case <-s.ctx.Done():
		return false
	default:
		return true
	}
}
