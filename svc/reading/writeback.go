package reading

import (
	"bytes"
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/readtrack/pkg/logger"
	"github.com/dmitrymomot/readtrack/pkg/metrics"
)

// PositionApplier is the part of Store the write-back queue needs.
type PositionApplier interface {
	ApplyPositions(ctx context.Context, writes []PositionWrite) (int, error)
}

// shutdownFlushTimeout bounds the final flush once Run's context is done.
const shutdownFlushTimeout = 10 * time.Second

// WriteBackQueue buffers position pings and writes them to the store in
// bulk. It keeps one entry per session: the one received last.
//
// The queue lives in process memory. A crash loses at most the pings of one
// flush interval; session start and end never go through it.
type WriteBackQueue struct {
	store     PositionApplier
	flushMu   sync.Mutex
	mu        sync.Mutex
	pending   map[uuid.UUID]PositionWrite
	signal    chan struct{}
	threshold int
	interval  time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

// NewWriteBackQueue creates a queue that flushes into store.
func NewWriteBackQueue(store PositionApplier, opts ...QueueOption) (*WriteBackQueue, error) {
	if store == nil {
		return nil, ErrNilStore
	}

	q := &WriteBackQueue{
		store:     store,
		pending:   make(map[uuid.UUID]PositionWrite),
		signal:    make(chan struct{}, 1),
		threshold: 100,
		interval:  5 * time.Second,
		logger:    slog.Default(),
		now:       systemClock,
	}
	for _, opt := range opts {
		opt(q)
	}
	q.logger = q.logger.With(logger.Component("reading.writeback"))

	return q, nil
}

// Enqueue records w, replacing an older entry for the same session. Reaching
// the flush threshold wakes Run.
func (q *WriteBackQueue) Enqueue(w PositionWrite) {
	if w.At.IsZero() {
		w.At = normalize(q.now())
	}

	q.mu.Lock()
	if cur, ok := q.pending[w.SessionID]; ok && cur.At.After(w.At) {
		q.mu.Unlock()
		return
	}
	q.pending[w.SessionID] = w
	n := len(q.pending)
	q.mu.Unlock()

	metrics.WriteBackPending.Set(float64(n))
	if n >= q.threshold {
		select {
		case q.signal <- struct{}{}:
		default:
		}
	}
}

// Pending returns the queued write for a session, if any.
func (q *WriteBackQueue) Pending(sessionID uuid.UUID) (PositionWrite, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	w, ok := q.pending[sessionID]
	return w, ok
}

// Discard drops queued writes, typically because the session was closed.
func (q *WriteBackQueue) Discard(sessionIDs ...uuid.UUID) {
	q.mu.Lock()
	for _, id := range sessionIDs {
		delete(q.pending, id)
	}
	n := len(q.pending)
	q.mu.Unlock()
	metrics.WriteBackPending.Set(float64(n))
}

func (q *WriteBackQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Flush writes every queued ping to the store with one bulk write and
// returns the number of rows the store changed. Rows that were closed in the
// meantime are skipped by the store. Entries stay visible to Pending until
// the write commits; afterwards only entries that were not replaced by a
// newer ping during the flush are removed. On error the queue is left as is.
func (q *WriteBackQueue) Flush(ctx context.Context) (int, error) {
	q.flushMu.Lock()
	defer q.flushMu.Unlock()

	q.mu.Lock()
	if len(q.pending) == 0 {
		q.mu.Unlock()
		return 0, nil
	}
	writes := make([]PositionWrite, 0, len(q.pending))
	for _, w := range q.pending {
		writes = append(writes, w)
	}
	q.mu.Unlock()

	slices.SortFunc(writes, func(a, b PositionWrite) int {
		return bytes.Compare(a.SessionID[:], b.SessionID[:])
	})

	start := time.Now()
	n, err := q.store.ApplyPositions(ctx, writes)
	metrics.WriteBackFlushDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.WriteBackFlushErrors.Inc()
		return 0, err
	}

	q.mu.Lock()
	for _, w := range writes {
		if cur, ok := q.pending[w.SessionID]; ok && cur.At.Equal(w.At) && cur.Position == w.Position {
			delete(q.pending, w.SessionID)
		}
	}
	left := len(q.pending)
	q.mu.Unlock()

	metrics.WriteBackFlushed.Add(float64(n))
	metrics.WriteBackPending.Set(float64(left))
	return n, nil
}

// Run flushes every interval, or earlier when the threshold is reached,
// until ctx is done. A final flush runs on shutdown. Flush failures are
// logged and retried on the next tick.
func (q *WriteBackQueue) Run(ctx context.Context) error {
	ticker := time.NewTicker(q.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownFlushTimeout)
			q.flushAndLog(flushCtx)
			cancel()
			q.logger.Info("write-back drain stopped")
			return nil
		case <-ticker.C:
			q.flushAndLog(ctx)
		case <-q.signal:
			q.flushAndLog(ctx)
		}
	}
}

func (q *WriteBackQueue) flushAndLog(ctx context.Context) {
	n, err := q.Flush(ctx)
	if err != nil {
		q.logger.ErrorContext(ctx, "write-back flush failed",
			logger.Count(q.Len()),
			logger.Error(err))
		return
	}
	if n > 0 {
		q.logger.DebugContext(ctx, "write-back flushed", logger.Count(n))
	}
}
