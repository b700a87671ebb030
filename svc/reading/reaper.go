package reading

import (
	"context"
	"log/slog"
	"time"

	"github.com/dmitrymomot/readtrack/pkg/logger"
	"github.com/dmitrymomot/readtrack/pkg/metrics"
)

// Policy is a named inactivity threshold for the reaper.
type Policy struct {
	Name  string
	After time.Duration
}

// AbandonedPolicy closes sessions the reader walked away from.
func AbandonedPolicy(after time.Duration) Policy {
	return Policy{Name: "abandoned", After: after}
}

// CrashRecoveryPolicy closes sessions whose client never came back.
func CrashRecoveryPolicy(after time.Duration) Policy {
	return Policy{Name: "crash_recovery", After: after}
}

// Reaper force-closes active sessions that stopped receiving pings.
type Reaper struct {
	store     Store
	cache     Cache
	evictions *Evictions
	logger    *slog.Logger
	now       func() time.Time
}

func NewReaper(store Store, opts ...ReaperOption) (*Reaper, error) {
	if store == nil {
		return nil, ErrNilStore
	}

	r := &Reaper{
		store:     store,
		cache:     NoOpCache{},
		evictions: NewEvictions(),
		logger:    slog.Default(),
		now:       systemClock,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With(logger.Component("reading.reaper"))

	return r, nil
}

// Sweep closes every active session idle for longer than p.After, ending it
// at its last activity. A session that received a ping after the cutoff is
// left alone. Sweeping again over the same data is a no-op.
func (r *Reaper) Sweep(ctx context.Context, p Policy) (int, error) {
	cutoff := normalize(r.now()).Add(-p.After)

	closed, err := r.store.CloseStale(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	for i := range closed {
		s := &closed[i]
		if err := r.cache.MarkClosed(ctx, s.UserID, s.ID); err != nil {
			r.evictions.Add(s.UserID, s.ID)
			r.logger.WarnContext(ctx, "failed to evict reaped session from cache",
				logger.UserID(s.UserID),
				logger.SessionID(s.ID),
				logger.Error(err))
		}
	}

	if len(closed) > 0 {
		metrics.ReaperClosed.WithLabelValues(p.Name).Add(float64(len(closed)))
		metrics.SessionTransitions.WithLabelValues("auto_close").Add(float64(len(closed)))
		r.logger.InfoContext(ctx, "closed stale reading sessions",
			logger.Policy(p.Name),
			logger.Count(len(closed)),
			slog.Time("cutoff", cutoff))
	}

	return len(closed), nil
}

// Job adapts a sweep to a periodic job.
func (r *Reaper) Job(p Policy) func(context.Context) error {
	return func(ctx context.Context) error {
		_, err := r.Sweep(ctx, p)
		return err
	}
}
