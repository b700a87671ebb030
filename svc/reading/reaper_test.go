package reading_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/readtrack/pkg/logger"
	"github.com/dmitrymomot/readtrack/svc/reading"
)

func newReaper(t *testing.T, f *fixture, opts ...reading.ReaperOption) *reading.Reaper {
	t.Helper()
	base := []reading.ReaperOption{
		reading.WithReaperClock(f.clock.Now),
		reading.WithReaperLogger(logger.Discard()),
	}
	r, err := reading.NewReaper(f.store, append(base, opts...)...)
	require.NoError(t, err)
	return r
}

func TestReaperSweep(t *testing.T) {
	t.Parallel()

	cache := newFakeCache()
	f := newFixture(t, reading.WithCache(cache))
	r := newReaper(t, f, reading.WithReaperCache(cache))
	ctx := context.Background()

	sessions := startForUsers(t, f, 2)
	stale, fresh := sessions[0], sessions[1]

	f.clock.Advance(20 * time.Minute)
	_, err := f.manager.UpdateSession(ctx, stale.UserID, stale.ID, 35)
	require.NoError(t, err)

	f.clock.Advance(90 * time.Minute)
	_, err = f.manager.UpdateSession(ctx, fresh.UserID, fresh.ID, 12)
	require.NoError(t, err)

	f.clock.Advance(31 * time.Minute)

	policy := reading.AbandonedPolicy(2 * time.Hour)
	n, err := r.Sweep(ctx, policy)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	closed := f.session(t, stale.ID)
	assert.False(t, closed.IsActive)
	require.NotNil(t, closed.EndedAt)
	assert.True(t, baseTime.Add(20*time.Minute).Equal(*closed.EndedAt), "ended at last activity")
	assert.Equal(t, 20, closed.DurationMinutes)
	assert.Equal(t, 35.0, closed.EndPosition)
	assert.Equal(t, 75, closed.PagesRead)

	_, cached := cache.entry(stale.UserID)
	assert.False(t, cached)
	assert.True(t, f.session(t, fresh.ID).IsActive)

	rows, err := f.store.ReadingProgress(ctx, stale.UserID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 35.0, rows[0].Progress.CurrentPosition)

	t.Run("second sweep is a no-op", func(t *testing.T) {
		n, err := r.Sweep(ctx, policy)
		require.NoError(t, err)
		assert.Zero(t, n)
		assert.Equal(t, closed, f.session(t, stale.ID))
	})

	t.Run("crash recovery ignores recent sessions", func(t *testing.T) {
		n, err := r.Sweep(ctx, reading.CrashRecoveryPolicy(24*time.Hour))
		require.NoError(t, err)
		assert.Zero(t, n)
		assert.True(t, f.session(t, fresh.ID).IsActive)
	})
}

func TestReaperJob(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	r := newReaper(t, f)
	f.start(t, f.book.ID, 0)
	f.clock.Advance(25 * time.Hour)

	job := r.Job(reading.CrashRecoveryPolicy(24 * time.Hour))
	require.NoError(t, job(context.Background()))

	active, err := f.store.ActiveSession(context.Background(), f.user)
	require.NoError(t, err)
	assert.Nil(t, active)

	f.store.SetFailure(errors.Join(reading.ErrStorage, errors.New("db down")))
	assert.ErrorIs(t, job(context.Background()), reading.ErrStorage)
}

func TestNewReaper(t *testing.T) {
	t.Parallel()

	_, err := reading.NewReaper(nil)
	require.ErrorIs(t, err, reading.ErrNilStore)
}

func TestReaperSweep_FailedEvictionIsShared(t *testing.T) {
	t.Parallel()

	cache := newFakeCache()
	evictions := reading.NewEvictions()
	f := newFixture(t, reading.WithCache(cache), reading.WithEvictions(evictions))
	r := newReaper(t, f, reading.WithReaperCache(cache), reading.WithReaperEvictions(evictions))
	ctx := context.Background()

	s := f.start(t, f.book.ID, 5)
	f.clock.Advance(3 * time.Hour)

	cache.failNextMarkClosed(reading.ErrCacheUnavailable)
	n, err := r.Sweep(ctx, reading.AbandonedPolicy(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.True(t, evictions.Has(s.ID))

	active, err := f.manager.GetActiveSession(ctx, f.user)
	require.NoError(t, err)
	assert.Nil(t, active)

	evicted, err := f.manager.RetryEvictions(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, evicted)
	assert.Zero(t, evictions.Len())
}
