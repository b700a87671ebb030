package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/dmitrymomot/readtrack/pkg/metrics"
)

// JobFunc is one run of a periodic job. It must be safe to run repeatedly.
type JobFunc func(ctx context.Context) error

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithCheckInterval sets how often the scheduler looks for due jobs.
func WithCheckInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.interval = d
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

type job struct {
	name     string
	schedule Schedule
	fn       JobFunc
	nextRun  *time.Time
	running  bool
}

// Scheduler runs registered jobs when they come due.
type Scheduler struct {
	mu       sync.Mutex
	jobs     map[string]*job
	interval time.Duration
	logger   *slog.Logger
	now      func() time.Time
	wg       sync.WaitGroup
}

func New(opts ...Option) *Scheduler {
	s := &Scheduler{
		jobs:     make(map[string]*job),
		interval: time.Second,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Add registers a job.
func (s *Scheduler) Add(name string, schedule Schedule, fn JobFunc) error {
	if fn == nil {
		return ErrNilJob
	}
	if !validSchedule(schedule) {
		return ErrInvalidSchedule
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("%w: %s", ErrJobAlreadyRegistered, name)
	}
	s.jobs[name] = &job{name: name, schedule: schedule, fn: fn}

	s.logger.Info("registered periodic job",
		slog.String("job", name),
		slog.String("schedule", schedule.String()))
	return nil
}

// Jobs returns the registered job names in sorted order.
func (s *Scheduler) Jobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Start checks for due jobs until ctx is done, then waits for running jobs
// to return. It returns ctx.Err().
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	count := len(s.jobs)
	s.mu.Unlock()
	if count == 0 {
		return ErrNoJobs
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.runDue(ctx)
	for {
		select {
		case <-ctx.Done():
			s.wg.Wait()
			s.logger.Info("scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			s.runDue(ctx)
		}
	}
}

// RunNow runs a job synchronously, outside its schedule. It returns the
// job's error, or ErrJobRunning when a run of the same job is in progress.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.mu.Lock()
	j, ok := s.jobs[name]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrJobNotFound, name)
	}
	if j.running {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrJobRunning, name)
	}
	j.running = true
	s.mu.Unlock()

	defer s.finish(j)
	return s.execute(ctx, j)
}

func (s *Scheduler) runDue(ctx context.Context) {
	now := s.now()

	s.mu.Lock()
	var due []*job
	for _, j := range s.jobs {
		if j.running {
			continue
		}
		if j.nextRun != nil && j.nextRun.After(now) {
			continue
		}
		next := j.schedule.Next(now)
		j.nextRun = &next
		j.running = true
		due = append(due, j)
	}
	s.mu.Unlock()

	for _, j := range due {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.finish(j)
			_ = s.execute(ctx, j)
		}()
	}
}

func (s *Scheduler) finish(j *job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j.running = false
}

// execute runs one job, turning panics into errors.
func (s *Scheduler) execute(ctx context.Context, j *job) (err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %s: %v", ErrJobPanicked, j.name, r)
			metrics.JobRuns.WithLabelValues(j.name, "panic").Inc()
			s.logger.ErrorContext(ctx, "periodic job panicked",
				slog.String("job", j.name),
				slog.Any("panic", r))
			return
		}

		metrics.JobDuration.WithLabelValues(j.name).Observe(time.Since(start).Seconds())
		if err != nil {
			metrics.JobRuns.WithLabelValues(j.name, "error").Inc()
			s.logger.ErrorContext(ctx, "periodic job failed",
				slog.String("job", j.name),
				slog.String("error", err.Error()))
			return
		}
		metrics.JobRuns.WithLabelValues(j.name, "ok").Inc()
	}()

	return j.fn(ctx)
}
