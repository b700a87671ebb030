package reading

import (
	"log/slog"
	"time"
)

// Option configures a Manager.
type Option func(*Manager)

// WithCache attaches an active-session cache. A nil cache keeps NoOpCache.
func WithCache(c Cache) Option {
	return func(m *Manager) {
		if c != nil {
			m.cache = c
		}
	}
}

// WithWriteBack routes position pings through q instead of writing them
// synchronously.
func WithWriteBack(q *WriteBackQueue) Option {
	return func(m *Manager) {
		m.queue = q
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithClock overrides time.Now. Returned times are normalized to UTC with
// microsecond precision to match what PostgreSQL stores.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithEvictions shares the set of deferred cache evictions, typically with
// the Reaper. A nil set is ignored.
func WithEvictions(e *Evictions) Option {
	return func(m *Manager) {
		if e != nil {
			m.evictions = e
		}
	}
}

func WithMaxPageSize(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.maxPageSize = n
		}
	}
}

func WithMaxBatchSize(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.maxBatchSize = n
		}
	}
}

// ReaperOption configures a Reaper.
type ReaperOption func(*Reaper)

func WithReaperCache(c Cache) ReaperOption {
	return func(r *Reaper) {
		if c != nil {
			r.cache = c
		}
	}
}

// WithReaperEvictions records failed cache evictions in e.
func WithReaperEvictions(e *Evictions) ReaperOption {
	return func(r *Reaper) {
		if e != nil {
			r.evictions = e
		}
	}
}

func WithReaperLogger(l *slog.Logger) ReaperOption {
	return func(r *Reaper) {
		if l != nil {
			r.logger = l
		}
	}
}

func WithReaperClock(now func() time.Time) ReaperOption {
	return func(r *Reaper) {
		if now != nil {
			r.now = now
		}
	}
}

// QueueOption configures a WriteBackQueue.
type QueueOption func(*WriteBackQueue)

// WithFlushThreshold sets the queue length that triggers an early flush.
func WithFlushThreshold(n int) QueueOption {
	return func(q *WriteBackQueue) {
		if n > 0 {
			q.threshold = n
		}
	}
}

// WithFlushInterval sets how often Run flushes.
func WithFlushInterval(d time.Duration) QueueOption {
	return func(q *WriteBackQueue) {
		if d > 0 {
			q.interval = d
		}
	}
}

func WithQueueLogger(l *slog.Logger) QueueOption {
	return func(q *WriteBackQueue) {
		if l != nil {
			q.logger = l
		}
	}
}

func WithQueueClock(now func() time.Time) QueueOption {
	return func(q *WriteBackQueue) {
		if now != nil {
			q.now = now
		}
	}
}

func systemClock() time.Time {
	return time.Now()
}

func normalize(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}
