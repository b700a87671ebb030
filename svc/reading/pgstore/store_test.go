//go:build integration

package pgstore_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/dmitrymomot/readtrack/pkg/logger"
	"github.com/dmitrymomot/readtrack/pkg/pg"
	"github.com/dmitrymomot/readtrack/svc/reading"
	"github.com/dmitrymomot/readtrack/svc/reading/pgstore"
)

func setupPostgres(t *testing.T) *pgxpool.Pool {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres integration test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	ctr, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("readtrack"),
		postgres.WithUsername("readtrack"),
		postgres.WithPassword("readtrack"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	testcontainers.CleanupContainer(t, ctr)
	require.NoError(t, err)

	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	cfg := pg.Config{
		ConnectionString: dsn,
		MaxOpenConns:     10,
		RetryAttempts:    3,
		RetryInterval:    time.Second,
		MigrationsTable:  "schema_migrations",
	}
	pool, err := pg.Connect(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, pg.Migrate(ctx, pool, pgstore.Migrations, pgstore.MigrationsDir, cfg, logger.Discard()))
	return pool
}

type seed struct {
	user uuid.UUID
	book uuid.UUID
}

func seedRows(t *testing.T, pool *pgxpool.Pool, timezone string) seed {
	t.Helper()
	ctx := context.Background()
	s := seed{user: uuid.New(), book: uuid.New()}

	_, err := pool.Exec(ctx, `INSERT INTO users (id, timezone) VALUES ($1, $2)`, s.user, timezone)
	require.NoError(t, err)
	_, err = pool.Exec(ctx, `INSERT INTO books (id, title, total_pages, total_chapters) VALUES ($1, 'Dune', 300, 48)`, s.book)
	require.NoError(t, err)
	return s
}

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

func TestStore(t *testing.T) {
	pool := setupPostgres(t)
	store, err := pgstore.New(pool)
	require.NoError(t, err)

	clk := &clock{now: time.Date(2025, 10, 27, 9, 0, 0, 0, time.UTC)}
	newManager := func(opts ...reading.Option) *reading.Manager {
		m, err := reading.NewManager(store, append([]reading.Option{
			reading.WithClock(clk.Now),
			reading.WithLogger(logger.Discard()),
		}, opts...)...)
		require.NoError(t, err)
		return m
	}
	ctx := context.Background()

	t.Run("lifecycle round trip", func(t *testing.T) {
		s := seedRows(t, pool, "UTC")
		m := newManager()

		started, err := m.StartSession(ctx, s.user, s.book, 10, "web")
		require.NoError(t, err)

		clk.Advance(15 * time.Minute)
		updated, err := m.UpdateSession(ctx, s.user, started.ID, 20)
		require.NoError(t, err)
		assert.Equal(t, 15, updated.DurationMinutes)

		clk.Advance(5 * time.Minute)
		ended, err := m.EndSession(ctx, s.user, started.ID, 30)
		require.NoError(t, err)
		assert.Equal(t, 20, ended.DurationMinutes)
		assert.Equal(t, 60, ended.PagesRead)

		stored, err := store.GetSession(ctx, started.ID)
		require.NoError(t, err)
		assert.False(t, stored.IsActive)
		assert.Equal(t, 30.0, stored.EndPosition)
		assert.Equal(t, 60, stored.PagesRead)

		rows, err := store.ReadingProgress(ctx, s.user)
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, 30.0, rows[0].Progress.CurrentPosition)
		assert.Equal(t, 300, rows[0].Book.TotalPages)
	})

	t.Run("unknown user and book", func(t *testing.T) {
		s := seedRows(t, pool, "UTC")
		m := newManager()

		_, err := m.StartSession(ctx, s.user, uuid.New(), 0, "web")
		assert.ErrorIs(t, err, reading.ErrBookNotFound)

		_, err = m.StartSession(ctx, uuid.New(), s.book, 0, "web")
		assert.ErrorIs(t, err, reading.ErrUserNotFound)

		_, err = store.GetSession(ctx, uuid.New())
		assert.ErrorIs(t, err, reading.ErrSessionNotFound)
	})

	t.Run("partial unique index rejects a second active session", func(t *testing.T) {
		s := seedRows(t, pool, "UTC")
		now := clk.Now()

		err := store.InTx(ctx, func(tx reading.Tx) error {
			return tx.InsertSession(ctx, reading.NewSession(s.user, s.book, 0, reading.DeviceWeb, now))
		})
		require.NoError(t, err)

		err = store.InTx(ctx, func(tx reading.Tx) error {
			return tx.InsertSession(ctx, reading.NewSession(s.user, s.book, 0, reading.DeviceIOS, now))
		})
		assert.ErrorIs(t, err, reading.ErrActiveSessionConflict)
	})

	t.Run("concurrent starts leave exactly one active session", func(t *testing.T) {
		s := seedRows(t, pool, "UTC")
		m := newManager()

		var wg sync.WaitGroup
		errs := make([]error, 4)
		for i := range errs {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, errs[i] = m.StartSession(ctx, s.user, s.book, 0, "web")
			}()
		}
		wg.Wait()

		for _, err := range errs {
			if err != nil {
				assert.ErrorIs(t, err, reading.ErrActiveSessionConflict)
			}
		}

		var count int
		require.NoError(t, pool.QueryRow(ctx,
			`SELECT COUNT(*) FROM reading_sessions WHERE user_id = $1 AND is_active`, s.user).Scan(&count))
		assert.Equal(t, 1, count)

		var nullDurations int
		require.NoError(t, pool.QueryRow(ctx,
			`SELECT COUNT(*) FROM reading_sessions WHERE user_id = $1 AND NOT is_active AND ended_at IS NULL`, s.user).Scan(&nullDurations))
		assert.Zero(t, nullDurations)
	})

	t.Run("batch is all or nothing", func(t *testing.T) {
		m := newManager()
		var ids []uuid.UUID
		for range 50 {
			s := seedRows(t, pool, "UTC")
			started, err := m.StartSession(ctx, s.user, s.book, 10, "web")
			require.NoError(t, err)
			ids = append(ids, started.ID)
		}
		victim, err := store.GetSession(ctx, ids[7])
		require.NoError(t, err)
		_, err = m.EndSession(ctx, victim.UserID, victim.ID, 11)
		require.NoError(t, err)

		updates := make([]reading.PositionUpdate, len(ids))
		for i, id := range ids {
			updates[i] = reading.PositionUpdate{SessionID: id, Position: 40}
		}
		_, err = m.BatchUpdate(ctx, uuid.Nil, updates)
		require.ErrorIs(t, err, reading.ErrSessionEnded)

		var changed int
		require.NoError(t, pool.QueryRow(ctx,
			`SELECT COUNT(*) FROM reading_sessions WHERE id = ANY($1::uuid[]) AND end_position = 40`,
			uuidStrings(ids)).Scan(&changed))
		assert.Zero(t, changed)

		res, err := m.BatchUpdate(ctx, uuid.Nil, append(updates[:7:7], updates[8:]...))
		require.NoError(t, err)
		assert.Equal(t, 49, res.Applied)
	})

	t.Run("write-back flush uses one conditional update", func(t *testing.T) {
		s := seedRows(t, pool, "UTC")
		q, err := reading.NewWriteBackQueue(store, reading.WithQueueLogger(logger.Discard()))
		require.NoError(t, err)
		m := newManager(reading.WithWriteBack(q))

		started, err := m.StartSession(ctx, s.user, s.book, 5, "web")
		require.NoError(t, err)
		clk.Advance(4 * time.Minute)
		_, err = m.UpdateSession(ctx, s.user, started.ID, 12)
		require.NoError(t, err)

		stale := reading.PositionWrite{SessionID: started.ID, Position: 50, At: started.StartedAt.Add(-time.Minute)}
		n, err := store.ApplyPositions(ctx, []reading.PositionWrite{stale})
		require.NoError(t, err)
		assert.Zero(t, n, "writes older than the last activity are ignored")

		n, err = q.Flush(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		stored, err := store.GetSession(ctx, started.ID)
		require.NoError(t, err)
		assert.Equal(t, 12.0, stored.EndPosition)
		assert.Equal(t, 4, stored.DurationMinutes)
	})

	t.Run("close stale is idempotent", func(t *testing.T) {
		s := seedRows(t, pool, "UTC")
		m := newManager()
		r, err := reading.NewReaper(store, reading.WithReaperClock(clk.Now), reading.WithReaperLogger(logger.Discard()))
		require.NoError(t, err)

		started, err := m.StartSession(ctx, s.user, s.book, 0, "web")
		require.NoError(t, err)
		clk.Advance(10 * time.Minute)
		_, err = m.UpdateSession(ctx, s.user, started.ID, 15)
		require.NoError(t, err)
		clk.Advance(3 * time.Hour)

		n, err := r.Sweep(ctx, reading.AbandonedPolicy(2*time.Hour))
		require.NoError(t, err)
		assert.GreaterOrEqual(t, n, 1)

		first, err := store.GetSession(ctx, started.ID)
		require.NoError(t, err)
		assert.False(t, first.IsActive)
		assert.Equal(t, 10, first.DurationMinutes)
		assert.Equal(t, 45, first.PagesRead)

		_, err = r.Sweep(ctx, reading.AbandonedPolicy(2*time.Hour))
		require.NoError(t, err)
		second, err := store.GetSession(ctx, started.ID)
		require.NoError(t, err)
		assert.Equal(t, first, second)
	})

	t.Run("longest streak never decreases", func(t *testing.T) {
		s := seedRows(t, pool, "Europe/Berlin")

		longest, err := store.RaiseLongestStreak(ctx, s.user, 4)
		require.NoError(t, err)
		assert.Equal(t, 4, longest)

		longest, err = store.RaiseLongestStreak(ctx, s.user, 2)
		require.NoError(t, err)
		assert.Equal(t, 4, longest)

		u, err := store.User(ctx, s.user)
		require.NoError(t, err)
		assert.Equal(t, "Europe/Berlin", u.Timezone)
		assert.Equal(t, 4, u.LongestStreakDays)
	})

	t.Run("history pages newest first", func(t *testing.T) {
		s := seedRows(t, pool, "UTC")
		m := newManager()
		for range 3 {
			_, err := m.StartSession(ctx, s.user, s.book, 0, "web")
			require.NoError(t, err)
			clk.Advance(time.Minute)
		}

		page, err := m.GetHistory(ctx, s.user, reading.HistoryQuery{Page: 1, PageSize: 2, BookID: &s.book})
		require.NoError(t, err)
		assert.Equal(t, 3, page.Total)
		assert.Equal(t, 2, page.TotalPages)
		require.Len(t, page.Items, 2)
		assert.True(t, page.Items[0].StartedAt.After(page.Items[1].StartedAt))
	})
}

func uuidStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}
