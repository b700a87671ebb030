package reading

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/readtrack/pkg/logger"
	"github.com/dmitrymomot/readtrack/pkg/metrics"
	"github.com/dmitrymomot/readtrack/pkg/progress"
)

const (
	DefaultPageSize = 20
	// startAttempts covers the first try plus one retry after losing the
	// active-session race.
	startAttempts = 2
)

// Manager runs the session lifecycle: start, update, end, batch update and
// the active-session read path.
type Manager struct {
	store        Store
	cache        Cache
	queue        *WriteBackQueue
	evictions    *Evictions
	logger       *slog.Logger
	now          func() time.Time
	maxPageSize  int
	maxBatchSize int
}

// NewManager creates a Manager backed by store.
func NewManager(store Store, opts ...Option) (*Manager, error) {
	if store == nil {
		return nil, ErrNilStore
	}

	m := &Manager{
		store:        store,
		cache:        NoOpCache{},
		evictions:    NewEvictions(),
		logger:       slog.Default(),
		now:          systemClock,
		maxPageSize:  100,
		maxBatchSize: 500,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With(logger.Component("reading.manager"))

	return m, nil
}

// StartSession opens a new active session for the user. Any session the user
// still has open, for any book, is closed first in the same transaction at
// its best-known position.
func (m *Manager) StartSession(ctx context.Context, userID, bookID uuid.UUID, startPosition float64, deviceType string) (*Session, error) {
	if userID == uuid.Nil {
		return nil, m.fail(ctx, "start", ErrInvalidUserID)
	}
	if !validPosition(startPosition) {
		return nil, m.fail(ctx, "start", ErrInvalidPosition)
	}
	device := ParseDeviceType(deviceType)

	var (
		created, closed *Session
		err             error
	)
	for attempt := 1; attempt <= startAttempts; attempt++ {
		created, closed, err = m.startOnce(ctx, userID, bookID, startPosition, device)
		if err == nil || !errors.Is(err, ErrActiveSessionConflict) || attempt == startAttempts {
			break
		}
		metrics.StartConflictRetries.Inc()
		m.logger.InfoContext(ctx, "lost active session race, retrying start",
			logger.UserID(userID),
			logger.BookID(bookID))
	}
	if err != nil {
		return nil, m.fail(ctx, "start", err)
	}

	if closed != nil {
		m.discardPending(closed.ID)
		m.cacheClose(ctx, closed)
		metrics.SessionTransitions.WithLabelValues("auto_close").Inc()
		m.logger.InfoContext(ctx, "closed previous active session",
			logger.UserID(userID),
			logger.SessionID(closed.ID),
			slog.Int("duration_minutes", closed.DurationMinutes))
	}
	m.cacheSet(ctx, created)
	metrics.SessionTransitions.WithLabelValues("start").Inc()

	return created, nil
}

func (m *Manager) startOnce(ctx context.Context, userID, bookID uuid.UUID, position float64, device DeviceType) (*Session, *Session, error) {
	var created, closed *Session
	now := m.clock()

	err := m.store.InTx(ctx, func(tx Tx) error {
		if _, err := tx.Book(ctx, bookID); err != nil {
			return err
		}

		prev, err := tx.LockActiveSession(ctx, userID)
		if err != nil {
			return err
		}
		if prev != nil {
			if err := m.closeInTx(ctx, tx, prev, m.bestKnownPosition(prev), now); err != nil {
				return err
			}
			closed = prev
		}

		s := NewSession(userID, bookID, position, device, now)
		if err := tx.InsertSession(ctx, s); err != nil {
			return err
		}
		created = s
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return created, closed, nil
}

// UpdateSession records a position ping for an active session owned by
// userID. Duration is recomputed from started_at on every ping.
func (m *Manager) UpdateSession(ctx context.Context, userID, sessionID uuid.UUID, position float64) (*Session, error) {
	if !validPosition(position) {
		return nil, m.fail(ctx, "update", ErrInvalidPosition)
	}

	s, err := m.ownedSession(ctx, userID, sessionID)
	if err != nil {
		return nil, m.fail(ctx, "update", err)
	}
	if !s.IsActive {
		return nil, m.fail(ctx, "update", ErrSessionEnded)
	}
	if position < s.StartPosition {
		return nil, m.fail(ctx, "update", ErrInvalidProgressRange)
	}

	now := m.clock()
	s.Touch(now, position)
	w := PositionWrite{SessionID: s.ID, UserID: s.UserID, Position: position, At: now}

	if m.queue != nil {
		m.queue.Enqueue(w)
	} else {
		n, err := m.store.ApplyPositions(ctx, []PositionWrite{w})
		if err != nil {
			return nil, m.fail(ctx, "update", err)
		}
		if n == 0 {
			// Either the session was closed after we read it, or a newer
			// ping already landed. Report whichever is true.
			fresh, err := m.store.GetSession(ctx, sessionID)
			if err != nil {
				return nil, m.fail(ctx, "update", err)
			}
			if !fresh.IsActive {
				return nil, m.fail(ctx, "update", ErrSessionEnded)
			}
			s = fresh
		}
	}

	m.cacheSet(ctx, s)
	metrics.SessionTransitions.WithLabelValues("update").Inc()

	return s, nil
}

// EndSession closes an active session at endPosition.
func (m *Manager) EndSession(ctx context.Context, userID, sessionID uuid.UUID, endPosition float64) (*Session, error) {
	if !validPosition(endPosition) {
		return nil, m.fail(ctx, "end", ErrInvalidProgressRange)
	}

	var ended *Session
	now := m.clock()

	err := m.store.InTx(ctx, func(tx Tx) error {
		locked, err := tx.LockSessions(ctx, []uuid.UUID{sessionID})
		if err != nil {
			return err
		}
		s, ok := locked[sessionID]
		if !ok || s.UserID != userID {
			return ErrSessionNotFound
		}
		if !s.IsActive {
			return ErrSessionEnded
		}
		if endPosition < s.StartPosition {
			return ErrInvalidProgressRange
		}
		if err := m.closeInTx(ctx, tx, s, endPosition, now); err != nil {
			return err
		}
		ended = s
		return nil
	})
	if err != nil {
		return nil, m.fail(ctx, "end", err)
	}

	m.discardPending(ended.ID)
	m.cacheClose(ctx, ended)
	metrics.SessionTransitions.WithLabelValues("end").Inc()

	return ended, nil
}

// GetActiveSession returns the user's active session or nil when there is
// none. The cache is consulted first; cache failures fall through to the
// store.
func (m *Manager) GetActiveSession(ctx context.Context, userID uuid.UUID) (*Session, error) {
	cached, err := m.cache.GetActive(ctx, userID)
	switch {
	case err != nil:
		metrics.CacheRequests.WithLabelValues("error").Inc()
		m.logger.WarnContext(ctx, "active session cache read failed, using store",
			logger.UserID(userID),
			logger.Error(err))
	case cached != nil && m.evictions.Has(cached.ID):
		metrics.CacheRequests.WithLabelValues("stale").Inc()
	case cached != nil && cached.IsActive && cached.UserID == userID:
		metrics.CacheRequests.WithLabelValues("hit").Inc()
		return m.activeView(cached), nil
	default:
		metrics.CacheRequests.WithLabelValues("miss").Inc()
	}

	s, err := m.store.ActiveSession(ctx, userID)
	if err != nil {
		return nil, m.fail(ctx, "get_active", err)
	}
	if s == nil {
		return nil, nil
	}

	view := m.activeView(s)
	m.cacheSet(ctx, view)
	return view, nil
}

// GetHistory lists the user's sessions newest first, optionally for a
// single book.
func (m *Manager) GetHistory(ctx context.Context, userID uuid.UUID, q HistoryQuery) (*Page[Session], error) {
	if q.Page == 0 {
		q.Page = 1
	}
	if q.PageSize == 0 {
		q.PageSize = min(DefaultPageSize, m.maxPageSize)
	}
	if q.Page < 1 || q.PageSize < 1 || q.PageSize > m.maxPageSize {
		return nil, m.fail(ctx, "history", ErrInvalidPagination)
	}
	// the offset must fit in an int
	if q.Page-1 > math.MaxInt/q.PageSize {
		return nil, m.fail(ctx, "history", ErrInvalidPagination)
	}

	items, total, err := m.store.ListSessions(ctx, HistoryFilter{
		UserID: userID,
		BookID: q.BookID,
		Limit:  q.PageSize,
		Offset: (q.Page - 1) * q.PageSize,
	})
	if err != nil {
		return nil, m.fail(ctx, "history", err)
	}
	if items == nil {
		items = []Session{}
	}
	for i := range items {
		if items[i].IsActive {
			items[i] = *m.activeView(&items[i])
		}
	}

	return &Page[Session]{
		Items:      items,
		Page:       q.Page,
		PageSize:   q.PageSize,
		Total:      total,
		TotalPages: (total + q.PageSize - 1) / q.PageSize,
	}, nil
}

// closeInTx closes s at endPosition and records the per-book progress.
func (m *Manager) closeInTx(ctx context.Context, tx Tx, s *Session, endPosition float64, at time.Time) error {
	book, err := tx.Book(ctx, s.BookID)
	if err != nil {
		return err
	}

	s.Close(at, endPosition, book.TotalPages)
	if err := tx.SaveSession(ctx, s); err != nil {
		return err
	}

	return tx.UpsertProgress(ctx, Progress{
		UserID:          s.UserID,
		BookID:          s.BookID,
		CurrentPosition: s.EndPosition,
		Format:          progress.FormatCFI,
		UpdatedAt:       at,
	})
}

// bestKnownPosition prefers a queued ping that has not reached the store yet.
func (m *Manager) bestKnownPosition(s *Session) float64 {
	pos := s.EndPosition
	if m.queue == nil {
		return pos
	}
	if w, ok := m.queue.Pending(s.ID); ok && w.Position > pos {
		pos = w.Position
	}
	return pos
}

// activeView overlays a queued position and recomputes the running duration.
func (m *Manager) activeView(s *Session) *Session {
	v := s.Clone()
	if !v.IsActive {
		return v
	}
	if m.queue != nil {
		if w, ok := m.queue.Pending(v.ID); ok && !w.At.Before(v.LastActivityAt) && w.Position >= v.StartPosition {
			v.EndPosition = w.Position
			v.LastActivityAt = w.At
			v.UpdatedAt = w.At
		}
	}
	v.DurationMinutes = WholeMinutes(v.StartedAt, m.clock())
	return v
}

func (m *Manager) ownedSession(ctx context.Context, userID, sessionID uuid.UUID) (*Session, error) {
	s, err := m.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if s.UserID != userID {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

func (m *Manager) discardPending(ids ...uuid.UUID) {
	if m.queue != nil {
		m.queue.Discard(ids...)
	}
}

func (m *Manager) cacheSet(ctx context.Context, s *Session) {
	if err := m.cache.SetActive(ctx, s); err != nil {
		m.logger.WarnContext(ctx, "failed to cache active session",
			logger.UserID(s.UserID),
			logger.SessionID(s.ID),
			logger.Error(err))
	}
}

func (m *Manager) cacheClose(ctx context.Context, s *Session) {
	if err := m.cache.MarkClosed(ctx, s.UserID, s.ID); err != nil {
		m.evictions.Add(s.UserID, s.ID)
		m.logger.WarnContext(ctx, "failed to evict closed session from cache, will retry",
			logger.UserID(s.UserID),
			logger.SessionID(s.ID),
			logger.Error(err))
	}
}

// RetryEvictions replays cache evictions that failed earlier. It returns the
// number of sessions evicted.
func (m *Manager) RetryEvictions(ctx context.Context) (int, error) {
	if m.evictions.Len() == 0 {
		return 0, nil
	}
	n, err := m.evictions.Retry(ctx, m.cache)
	if n > 0 {
		m.logger.InfoContext(ctx, "evicted closed sessions from cache", logger.Count(n))
	}
	return n, err
}

func (m *Manager) clock() time.Time {
	return normalize(m.now())
}

// fail records the error kind and passes err through unchanged.
func (m *Manager) fail(ctx context.Context, op string, err error) error {
	kind := KindOf(err)
	metrics.SessionErrors.WithLabelValues(op, string(kind)).Inc()
	if kind == KindStorage || kind == KindUnknown {
		m.logger.ErrorContext(ctx, "reading session operation failed",
			slog.String("operation", op),
			logger.Error(err))
	}
	return err
}
