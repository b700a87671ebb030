package readtrack

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/readtrack/pkg/logger"
	"github.com/dmitrymomot/readtrack/pkg/scheduler"
	"github.com/dmitrymomot/readtrack/svc/reading"
	"github.com/dmitrymomot/readtrack/svc/readingstats"
)

// Scheduler job names.
const (
	JobAbandonedSweep     = "reaper.abandoned"
	JobCrashRecoverySweep = "reaper.crash_recovery"
	JobCacheEvictions     = "cache.evictions"
)

// Store is the durable store both the lifecycle and the analytics side read.
type Store interface {
	reading.Store
	readingstats.Store
}

type Option func(*options)

type options struct {
	cache         reading.Cache
	logger        *slog.Logger
	now           func() time.Time
	checkInterval time.Duration
}

// WithCache sets the active-session cache. Without it every read goes to
// the store.
func WithCache(c reading.Cache) Option {
	return func(o *options) {
		if c != nil {
			o.cache = c
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithClock replaces the wall clock for every component.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithSchedulerCheckInterval sets how often the scheduler looks for due
// sweeps.
func WithSchedulerCheckInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.checkInterval = d
		}
	}
}

// Engine is the wired reading engine.
type Engine struct {
	Sessions  *reading.Manager
	Stats     *readingstats.Aggregator
	Reaper    *reading.Reaper
	Queue     *reading.WriteBackQueue // nil when write-back is disabled
	Scheduler *scheduler.Scheduler

	logger *slog.Logger
}

// New validates cfg and builds every component over store.
func New(store Store, cfg reading.Config, opts ...Option) (*Engine, error) {
	if store == nil {
		return nil, reading.ErrNilStore
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := options{
		cache:         reading.NoOpCache{},
		logger:        slog.Default(),
		now:           time.Now,
		checkInterval: time.Second,
	}
	for _, opt := range opts {
		opt(&o)
	}

	e := &Engine{logger: o.logger.With(logger.Component("readtrack"))}
	evictions := reading.NewEvictions()

	managerOpts := []reading.Option{
		reading.WithCache(o.cache),
		reading.WithEvictions(evictions),
		reading.WithLogger(o.logger),
		reading.WithClock(o.now),
		reading.WithMaxPageSize(cfg.MaxPageSize),
		reading.WithMaxBatchSize(cfg.MaxBatchSize),
	}
	if !cfg.WriteBackDisabled {
		q, err := reading.NewWriteBackQueue(store,
			reading.WithFlushThreshold(cfg.FlushThreshold),
			reading.WithFlushInterval(cfg.FlushInterval),
			reading.WithQueueLogger(o.logger),
			reading.WithQueueClock(o.now),
		)
		if err != nil {
			return nil, err
		}
		e.Queue = q
		managerOpts = append(managerOpts, reading.WithWriteBack(q))
	}

	var err error
	if e.Sessions, err = reading.NewManager(store, managerOpts...); err != nil {
		return nil, err
	}
	if e.Stats, err = readingstats.New(store,
		readingstats.WithClock(o.now),
		readingstats.WithLogger(o.logger),
	); err != nil {
		return nil, err
	}
	if e.Reaper, err = reading.NewReaper(store,
		reading.WithReaperCache(o.cache),
		reading.WithReaperEvictions(evictions),
		reading.WithReaperLogger(o.logger),
		reading.WithReaperClock(o.now),
	); err != nil {
		return nil, err
	}

	e.Scheduler = scheduler.New(
		scheduler.WithLogger(o.logger.With(logger.Component("scheduler"))),
		scheduler.WithClock(o.now),
		scheduler.WithCheckInterval(o.checkInterval),
	)
	sweeps := []struct {
		name   string
		policy reading.Policy
	}{
		{JobAbandonedSweep, reading.AbandonedPolicy(cfg.AbandonedAfter)},
		{JobCrashRecoverySweep, reading.CrashRecoveryPolicy(cfg.CrashRecoveryAfter)},
	}
	for _, s := range sweeps {
		if err := e.Scheduler.Add(s.name, scheduler.Every(cfg.SweepInterval), e.Reaper.Job(s.policy)); err != nil {
			return nil, err
		}
	}

	// Closed sessions whose cache eviction failed are retried at the
	// write-back cadence.
	retry := func(ctx context.Context) error {
		_, err := e.Sessions.RetryEvictions(ctx)
		return err
	}
	if err := e.Scheduler.Add(JobCacheEvictions, scheduler.Every(cfg.FlushInterval), retry); err != nil {
		return nil, err
	}

	return e, nil
}

// Run drives the write-back queue and the sweep scheduler until ctx is
// done. A clean shutdown returns nil.
func (e *Engine) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	if e.Queue != nil {
		g.Go(func() error { return e.Queue.Run(ctx) })
	}
	g.Go(func() error {
		err := e.Scheduler.Start(ctx)
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil
		}
		return err
	})

	e.logger.InfoContext(ctx, "reading engine started", slog.Bool("write_back", e.Queue != nil))
	err := g.Wait()
	e.logger.InfoContext(context.WithoutCancel(ctx), "reading engine stopped")
	return err
}
