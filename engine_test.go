package readtrack_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/readtrack"
	"github.com/dmitrymomot/readtrack/pkg/logger"
	"github.com/dmitrymomot/readtrack/svc/reading"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type env struct {
	store  *reading.MemoryStore
	clock  *clock
	engine *readtrack.Engine
	user   uuid.UUID
	book   reading.Book
}

func newEnv(t *testing.T, mutate func(*reading.Config)) *env {
	t.Helper()

	e := &env{
		store: reading.NewMemoryStore(),
		clock: &clock{now: time.Date(2025, 10, 27, 9, 0, 0, 0, time.UTC)},
		user:  uuid.New(),
		book:  reading.Book{ID: uuid.New(), Title: "Dune", TotalPages: 300, TotalChapters: 48},
	}
	e.store.AddBook(e.book)
	e.store.AddUser(reading.User{ID: e.user, Timezone: "UTC"})

	cfg := reading.DefaultConfig()
	cfg.FlushInterval = time.Hour
	if mutate != nil {
		mutate(&cfg)
	}

	engine, err := readtrack.New(e.store, cfg,
		readtrack.WithLogger(logger.Discard()),
		readtrack.WithClock(e.clock.Now),
		readtrack.WithSchedulerCheckInterval(5*time.Millisecond),
	)
	require.NoError(t, err)
	e.engine = engine
	return e
}

func (e *env) run(t *testing.T) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.engine.Run(ctx) }()
	return cancel, done
}

func waitStopped(t *testing.T, done <-chan error) {
	t.Helper()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("engine did not stop")
	}
}

func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("nil store", func(t *testing.T) {
		t.Parallel()
		_, err := readtrack.New(nil, reading.DefaultConfig())
		assert.ErrorIs(t, err, reading.ErrNilStore)
	})

	t.Run("invalid config", func(t *testing.T) {
		t.Parallel()
		cfg := reading.DefaultConfig()
		cfg.FlushThreshold = 0
		_, err := readtrack.New(reading.NewMemoryStore(), cfg)
		assert.Error(t, err)
	})

	t.Run("registers both sweeps", func(t *testing.T) {
		t.Parallel()
		e := newEnv(t, nil)
		assert.Equal(t, []string{
			readtrack.JobCacheEvictions,
			readtrack.JobAbandonedSweep,
			readtrack.JobCrashRecoverySweep,
		}, e.engine.Scheduler.Jobs())
		assert.NotNil(t, e.engine.Queue)
	})

	t.Run("write-back disabled", func(t *testing.T) {
		t.Parallel()
		e := newEnv(t, func(c *reading.Config) { c.WriteBackDisabled = true })
		assert.Nil(t, e.engine.Queue)
	})
}

func TestEngine_SweepsAbandonedSessions(t *testing.T) {
	t.Parallel()

	e := newEnv(t, nil)
	ctx := context.Background()

	s, err := e.engine.Sessions.StartSession(ctx, e.user, e.book.ID, 10, "ios")
	require.NoError(t, err)

	e.clock.Advance(3 * time.Hour)
	cancel, done := e.run(t)

	require.Eventually(t, func() bool {
		active, err := e.engine.Sessions.GetActiveSession(ctx, e.user)
		return err == nil && active == nil
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	waitStopped(t, done)

	closed, err := e.store.GetSession(ctx, s.ID)
	require.NoError(t, err)
	assert.False(t, closed.IsActive)
	require.NotNil(t, closed.EndedAt)
	assert.True(t, closed.EndedAt.Equal(s.StartedAt))
	assert.Equal(t, 0, closed.DurationMinutes)
}

func TestEngine_DrainsQueueOnShutdown(t *testing.T) {
	t.Parallel()

	e := newEnv(t, nil)
	ctx := context.Background()
	cancel, done := e.run(t)

	s, err := e.engine.Sessions.StartSession(ctx, e.user, e.book.ID, 10, "web")
	require.NoError(t, err)

	e.clock.Advance(10 * time.Minute)
	_, err = e.engine.Sessions.UpdateSession(ctx, e.user, s.ID, 25)
	require.NoError(t, err)

	stored, err := e.store.GetSession(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, 10.0, stored.EndPosition)

	cancel()
	waitStopped(t, done)

	stored, err = e.store.GetSession(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, 25.0, stored.EndPosition)
	assert.Equal(t, 10, stored.DurationMinutes)
	assert.Equal(t, 0, e.engine.Queue.Len())
}

func TestEngine_LifecycleFeedsStats(t *testing.T) {
	t.Parallel()

	e := newEnv(t, func(c *reading.Config) { c.WriteBackDisabled = true })
	ctx := context.Background()

	s, err := e.engine.Sessions.StartSession(ctx, e.user, e.book.ID, 0, "web")
	require.NoError(t, err)

	e.clock.Advance(30 * time.Minute)
	_, err = e.engine.Sessions.EndSession(ctx, e.user, s.ID, 40)
	require.NoError(t, err)

	snap, err := e.engine.Stats.Snapshot(ctx, e.user)
	require.NoError(t, err)
	assert.Equal(t, 1, snap.TotalSessions)
	assert.Equal(t, 30, snap.TotalMinutes)
	assert.Equal(t, 120, snap.PagesRead)
	assert.Equal(t, 1, snap.BooksInProgress)
	assert.Equal(t, 1, snap.ReadingStreakDays)
}
