package reading_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/readtrack/pkg/logger"
	"github.com/dmitrymomot/readtrack/svc/reading"
)

var baseTime = time.Date(2025, 10, 27, 9, 0, 0, 0, time.UTC)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: baseTime}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fakeCache mirrors the Redis cache semantics, including closed markers.
type fakeCache struct {
	mu      sync.Mutex
	entries map[uuid.UUID]reading.Session
	closed  map[uuid.UUID]bool
	err     error
	markErr error
	sets    int
}

func newFakeCache() *fakeCache {
	return &fakeCache{
		entries: make(map[uuid.UUID]reading.Session),
		closed:  make(map[uuid.UUID]bool),
	}
}

func (c *fakeCache) fail(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.err = err
}

// failNextMarkClosed makes the next MarkClosed call fail while reads and
// writes keep working.
func (c *fakeCache) failNextMarkClosed(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.markErr = err
}

func (c *fakeCache) GetActive(_ context.Context, userID uuid.UUID) (*reading.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return nil, c.err
	}
	s, ok := c.entries[userID]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (c *fakeCache) SetActive(_ context.Context, s *reading.Session) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	if c.closed[s.ID] {
		return nil
	}
	c.sets++
	c.entries[s.UserID] = *s
	return nil
}

func (c *fakeCache) MarkClosed(_ context.Context, userID, sessionID uuid.UUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	if err := c.markErr; err != nil {
		c.markErr = nil
		return err
	}
	c.closed[sessionID] = true
	if s, ok := c.entries[userID]; ok && s.ID == sessionID {
		delete(c.entries, userID)
	}
	return nil
}

func (c *fakeCache) entry(userID uuid.UUID) (reading.Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.entries[userID]
	return s, ok
}

type fixture struct {
	store   *reading.MemoryStore
	clock   *testClock
	manager *reading.Manager
	book    reading.Book
	other   reading.Book
	user    uuid.UUID
}

func newFixture(t *testing.T, opts ...reading.Option) *fixture {
	t.Helper()
	mem := reading.NewMemoryStore()
	return newFixtureWithStore(t, mem, mem, opts...)
}

// newFixtureWithStore builds the manager on store, which must be backed by
// mem so the fixture can seed and inspect rows.
func newFixtureWithStore(t *testing.T, store reading.Store, mem *reading.MemoryStore, opts ...reading.Option) *fixture {
	t.Helper()

	f := &fixture{
		store: mem,
		clock: newTestClock(),
		book:  reading.Book{ID: uuid.New(), Title: "Dune", TotalPages: 300, TotalChapters: 48},
		other: reading.Book{ID: uuid.New(), Title: "Emma", TotalPages: 200, TotalChapters: 55},
		user:  uuid.New(),
	}
	mem.AddBook(f.book)
	mem.AddBook(f.other)
	mem.AddUser(reading.User{ID: f.user, Timezone: "UTC"})

	base := []reading.Option{
		reading.WithClock(f.clock.Now),
		reading.WithLogger(logger.Discard()),
	}
	m, err := reading.NewManager(store, append(base, opts...)...)
	require.NoError(t, err)
	f.manager = m

	return f
}

func (f *fixture) start(t *testing.T, bookID uuid.UUID, pos float64) *reading.Session {
	t.Helper()
	s, err := f.manager.StartSession(context.Background(), f.user, bookID, pos, "web")
	require.NoError(t, err)
	return s
}

func (f *fixture) session(t *testing.T, id uuid.UUID) *reading.Session {
	t.Helper()
	s, err := f.store.GetSession(context.Background(), id)
	require.NoError(t, err)
	return s
}
