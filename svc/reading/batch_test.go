package reading_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/readtrack/svc/reading"
)

func startForUsers(t *testing.T, f *fixture, n int) []*reading.Session {
	t.Helper()

	sessions := make([]*reading.Session, 0, n)
	for range n {
		user := uuid.New()
		f.store.AddUser(reading.User{ID: user})
		s, err := f.manager.StartSession(context.Background(), user, f.book.ID, 10, "ereader")
		require.NoError(t, err)
		sessions = append(sessions, s)
	}
	return sessions
}

func TestBatchUpdateAllOrNothing(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	sessions := startForUsers(t, f, 50)

	ended := sessions[37]
	_, err := f.manager.EndSession(ctx, ended.UserID, ended.ID, 12)
	require.NoError(t, err)

	f.clock.Advance(20 * time.Minute)
	updates := make([]reading.PositionUpdate, len(sessions))
	for i, s := range sessions {
		updates[i] = reading.PositionUpdate{SessionID: s.ID, Position: 25}
	}

	res, err := f.manager.BatchUpdate(ctx, uuid.Nil, updates)
	require.Error(t, err)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, reading.ErrSessionEnded)

	var batchErr *reading.BatchError
	require.True(t, errors.As(err, &batchErr))
	assert.Equal(t, 37, batchErr.Index)
	assert.Equal(t, ended.ID.String(), batchErr.SessionID)

	for i, s := range sessions {
		stored := f.session(t, s.ID)
		if i == 37 {
			assert.Equal(t, 12.0, stored.EndPosition)
			continue
		}
		assert.Equal(t, 10.0, stored.EndPosition, "session %d must be untouched", i)
		assert.Equal(t, 0, stored.DurationMinutes)
	}

	updates = append(updates[:37], updates[38:]...)
	res, err = f.manager.BatchUpdate(ctx, uuid.Nil, updates)
	require.NoError(t, err)
	assert.Equal(t, 49, res.Applied)
	for _, u := range updates {
		stored := f.session(t, u.SessionID)
		assert.Equal(t, 25.0, stored.EndPosition)
		assert.Equal(t, 20, stored.DurationMinutes)
	}
}

func TestBatchUpdateScopedToUser(t *testing.T) {
	t.Parallel()

	t.Run("applies owned sessions and keeps last duplicate", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		s := f.start(t, f.book.ID, 5)
		f.clock.Advance(2 * time.Minute)

		res, err := f.manager.BatchUpdate(context.Background(), f.user, []reading.PositionUpdate{
			{SessionID: s.ID, Position: 9},
			{SessionID: s.ID, Position: 7},
		})
		require.NoError(t, err)
		assert.Equal(t, 1, res.Applied)
		require.Len(t, res.Sessions, 1)
		assert.Equal(t, 7.0, res.Sessions[0].EndPosition)
		assert.Equal(t, 7.0, f.session(t, s.ID).EndPosition)
	})

	t.Run("foreign session is not found", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		own := f.start(t, f.book.ID, 5)
		foreign := startForUsers(t, f, 1)[0]

		_, err := f.manager.BatchUpdate(context.Background(), f.user, []reading.PositionUpdate{
			{SessionID: own.ID, Position: 6},
			{SessionID: foreign.ID, Position: 30},
		})
		require.ErrorIs(t, err, reading.ErrSessionNotFound)
		var batchErr *reading.BatchError
		require.ErrorAs(t, err, &batchErr)
		assert.Equal(t, 1, batchErr.Index)
		assert.Equal(t, 5.0, f.session(t, own.ID).EndPosition)
	})

	t.Run("position below start rolls back", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		s := f.start(t, f.book.ID, 40)

		_, err := f.manager.BatchUpdate(context.Background(), f.user, []reading.PositionUpdate{
			{SessionID: s.ID, Position: 39},
		})
		require.ErrorIs(t, err, reading.ErrInvalidProgressRange)
	})
}

func TestBatchUpdateValidation(t *testing.T) {
	t.Parallel()

	f := newFixture(t, reading.WithMaxBatchSize(2))
	ctx := context.Background()

	_, err := f.manager.BatchUpdate(ctx, f.user, nil)
	assert.ErrorIs(t, err, reading.ErrEmptyBatch)
	assert.True(t, reading.IsValidation(err))

	_, err = f.manager.BatchUpdate(ctx, f.user, make([]reading.PositionUpdate, 3))
	assert.ErrorIs(t, err, reading.ErrBatchTooLarge)

	_, err = f.manager.BatchUpdate(ctx, f.user, []reading.PositionUpdate{
		{SessionID: uuid.New(), Position: 10},
		{SessionID: uuid.New(), Position: 150},
	})
	assert.ErrorIs(t, err, reading.ErrInvalidPosition)
	var batchErr *reading.BatchError
	require.ErrorAs(t, err, &batchErr)
	assert.Equal(t, 1, batchErr.Index)
}
