package reading

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/readtrack/pkg/progress"
)

type progressKey struct {
	user uuid.UUID
	book uuid.UUID
}

// memoryState is everything a transaction can touch.
type memoryState struct {
	sessions map[uuid.UUID]Session
	books    map[uuid.UUID]Book
	users    map[uuid.UUID]User
	progress map[progressKey]Progress
}

func (st *memoryState) clone() *memoryState {
	return &memoryState{
		sessions: maps.Clone(st.sessions),
		books:    maps.Clone(st.books),
		users:    maps.Clone(st.users),
		progress: maps.Clone(st.progress),
	}
}

// MemoryStore is an in-process Store. Transactions are serialized and
// applied atomically, and it enforces the same one-active-session rule as the
// database. Suitable for tests and local tooling.
type MemoryStore struct {
	mu    sync.Mutex
	state *memoryState
	err   error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		state: &memoryState{
			sessions: make(map[uuid.UUID]Session),
			books:    make(map[uuid.UUID]Book),
			users:    make(map[uuid.UUID]User),
			progress: make(map[progressKey]Progress),
		},
	}
}

// AddBook seeds a book.
func (m *MemoryStore) AddBook(b Book) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.books[b.ID] = b
}

// AddUser seeds a user.
func (m *MemoryStore) AddUser(u User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.users[u.ID] = u
}

// PutSession stores s as-is, bypassing lifecycle checks.
func (m *MemoryStore) PutSession(s Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.sessions[s.ID] = s
}

// PutProgress stores p as-is.
func (m *MemoryStore) PutProgress(p Progress) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.progress[progressKey{p.UserID, p.BookID}] = p
}

// SetFailure makes every subsequent call fail with err until it is cleared
// with nil.
func (m *MemoryStore) SetFailure(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func (m *MemoryStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure(ctx); err != nil {
		return err
	}

	tx := &memoryTx{state: m.state.clone()}
	if err := fn(tx); err != nil {
		return err
	}
	m.state = tx.state
	return nil
}

func (m *MemoryStore) GetSession(ctx context.Context, id uuid.UUID) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure(ctx); err != nil {
		return nil, err
	}

	s, ok := m.state.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return &s, nil
}

func (m *MemoryStore) ActiveSession(ctx context.Context, userID uuid.UUID) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure(ctx); err != nil {
		return nil, err
	}
	return m.state.active(userID), nil
}

func (m *MemoryStore) ListSessions(ctx context.Context, f HistoryFilter) ([]Session, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure(ctx); err != nil {
		return nil, 0, err
	}

	var all []Session
	for _, s := range m.state.sessions {
		if s.UserID != f.UserID {
			continue
		}
		if f.BookID != nil && s.BookID != *f.BookID {
			continue
		}
		all = append(all, s)
	}
	slices.SortFunc(all, func(a, b Session) int {
		if c := b.StartedAt.Compare(a.StartedAt); c != 0 {
			return c
		}
		return slices.Compare(b.ID[:], a.ID[:])
	})

	total := len(all)
	if f.Offset >= total {
		return []Session{}, total, nil
	}
	end := min(f.Offset+f.Limit, total)
	return all[f.Offset:end], total, nil
}

func (m *MemoryStore) ApplyPositions(ctx context.Context, writes []PositionWrite) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure(ctx); err != nil {
		return 0, err
	}
	return m.state.applyPositions(writes), nil
}

func (m *MemoryStore) CloseStale(ctx context.Context, cutoff time.Time) ([]Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure(ctx); err != nil {
		return nil, err
	}

	var closed []Session
	for id, s := range m.state.sessions {
		if !s.IsActive || !s.LastActivityAt.Before(cutoff) {
			continue
		}
		s.Close(s.LastActivityAt, s.EndPosition, m.state.books[s.BookID].TotalPages)
		m.state.sessions[id] = s
		m.state.upsertProgress(Progress{
			UserID:          s.UserID,
			BookID:          s.BookID,
			CurrentPosition: s.EndPosition,
			Format:          progress.FormatCFI,
			UpdatedAt:       s.LastActivityAt,
		})
		closed = append(closed, s)
	}
	return closed, nil
}

// User returns a user row.
func (m *MemoryStore) User(ctx context.Context, id uuid.UUID) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure(ctx); err != nil {
		return nil, err
	}

	u, ok := m.state.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	return &u, nil
}

// ClosedSessions returns the user's closed sessions started at or after
// since, oldest first.
func (m *MemoryStore) ClosedSessions(ctx context.Context, userID uuid.UUID, since time.Time) ([]Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure(ctx); err != nil {
		return nil, err
	}

	var out []Session
	for _, s := range m.state.sessions {
		if s.UserID == userID && !s.IsActive && !s.StartedAt.Before(since) {
			out = append(out, s)
		}
	}
	slices.SortFunc(out, func(a, b Session) int { return a.StartedAt.Compare(b.StartedAt) })
	return out, nil
}

// ReadingProgress returns every progress row of the user with its book.
func (m *MemoryStore) ReadingProgress(ctx context.Context, userID uuid.UUID) ([]BookProgress, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure(ctx); err != nil {
		return nil, err
	}

	var out []BookProgress
	for k, p := range m.state.progress {
		if k.user != userID {
			continue
		}
		b, ok := m.state.books[k.book]
		if !ok {
			continue
		}
		out = append(out, BookProgress{Progress: p, Book: b})
	}
	slices.SortFunc(out, func(a, b BookProgress) int {
		return slices.Compare(a.Book.ID[:], b.Book.ID[:])
	})
	return out, nil
}

// RaiseLongestStreak stores days as the longest streak if it is larger and
// returns the resulting value.
func (m *MemoryStore) RaiseLongestStreak(ctx context.Context, userID uuid.UUID, days int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure(ctx); err != nil {
		return 0, err
	}

	u, ok := m.state.users[userID]
	if !ok {
		return 0, ErrUserNotFound
	}
	u.LongestStreakDays = max(u.LongestStreakDays, days)
	m.state.users[userID] = u
	return u.LongestStreakDays, nil
}

func (m *MemoryStore) failure(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return m.err
}

func (st *memoryState) active(userID uuid.UUID) *Session {
	for _, s := range st.sessions {
		if s.UserID == userID && s.IsActive {
			return &s
		}
	}
	return nil
}

func (st *memoryState) applyPositions(writes []PositionWrite) int {
	n := 0
	for _, w := range writes {
		s, ok := st.sessions[w.SessionID]
		if !ok || !s.IsActive || w.Position < s.StartPosition || s.LastActivityAt.After(w.At) {
			continue
		}
		s.Touch(w.At, w.Position)
		st.sessions[w.SessionID] = s
		n++
	}
	return n
}

func (st *memoryState) upsertProgress(p Progress) {
	k := progressKey{p.UserID, p.BookID}
	cur, ok := st.progress[k]
	if ok && cur.UpdatedAt.After(p.UpdatedAt) {
		return
	}
	if p.CurrentChapter == 0 && ok {
		p.CurrentChapter = cur.CurrentChapter
	}
	if p.CFI == "" && ok && cur.Format == p.Format {
		p.CFI = cur.CFI
	}
	st.progress[k] = p
}

type memoryTx struct {
	state *memoryState
}

func (tx *memoryTx) Book(_ context.Context, id uuid.UUID) (*Book, error) {
	b, ok := tx.state.books[id]
	if !ok {
		return nil, ErrBookNotFound
	}
	return &b, nil
}

func (tx *memoryTx) LockActiveSession(_ context.Context, userID uuid.UUID) (*Session, error) {
	return tx.state.active(userID), nil
}

func (tx *memoryTx) LockSessions(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]*Session, error) {
	out := make(map[uuid.UUID]*Session, len(ids))
	for _, id := range ids {
		if s, ok := tx.state.sessions[id]; ok {
			out[id] = &s
		}
	}
	return out, nil
}

func (tx *memoryTx) InsertSession(_ context.Context, s *Session) error {
	if _, ok := tx.state.books[s.BookID]; !ok {
		return ErrBookNotFound
	}
	if s.IsActive {
		if a := tx.state.active(s.UserID); a != nil && a.ID != s.ID {
			return ErrActiveSessionConflict
		}
	}
	tx.state.sessions[s.ID] = *s
	return nil
}

func (tx *memoryTx) SaveSession(_ context.Context, s *Session) error {
	if _, ok := tx.state.sessions[s.ID]; !ok {
		return ErrSessionNotFound
	}
	if s.IsActive {
		if a := tx.state.active(s.UserID); a != nil && a.ID != s.ID {
			return ErrActiveSessionConflict
		}
	}
	tx.state.sessions[s.ID] = *s
	return nil
}

func (tx *memoryTx) ApplyPositions(_ context.Context, writes []PositionWrite) (int, error) {
	return tx.state.applyPositions(writes), nil
}

func (tx *memoryTx) UpsertProgress(_ context.Context, p Progress) error {
	tx.state.upsertProgress(p)
	return nil
}
