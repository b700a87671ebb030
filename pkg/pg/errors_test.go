package pg_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"github.com/dmitrymomot/readtrack/pkg/pg"
)

func TestErrorHelpers(t *testing.T) {
	t.Parallel()

	unique := &pgconn.PgError{Code: "23505", ConstraintName: "reading_sessions_one_active_per_user"}
	wrapped := fmt.Errorf("insert session: %w", unique)

	t.Run("unique violation", func(t *testing.T) {
		t.Parallel()
		assert.True(t, pg.IsDuplicateKeyError(wrapped))
		assert.True(t, pg.IsUniqueViolation(wrapped, "reading_sessions_one_active_per_user"))
		assert.False(t, pg.IsUniqueViolation(wrapped, "reading_sessions_pkey"))
	})

	t.Run("other codes", func(t *testing.T) {
		t.Parallel()
		assert.True(t, pg.IsForeignKeyViolationError(&pgconn.PgError{Code: "23503"}))
		assert.True(t, pg.IsCheckViolationError(&pgconn.PgError{Code: "23514"}))
		assert.True(t, pg.IsCheckViolationError(errors.Join(errors.New("tx"), &pgconn.PgError{Code: "23514"})))
		assert.False(t, pg.IsDuplicateKeyError(&pgconn.PgError{Code: "23503"}))
	})

	t.Run("no rows", func(t *testing.T) {
		t.Parallel()
		assert.True(t, pg.IsNotFoundError(fmt.Errorf("get: %w", pgx.ErrNoRows)))
		assert.False(t, pg.IsNotFoundError(nil))
	})

	t.Run("nil and plain errors", func(t *testing.T) {
		t.Parallel()
		assert.False(t, pg.IsDuplicateKeyError(nil))
		assert.False(t, pg.IsUniqueViolation(errors.New("boom"), "x"))
		assert.Empty(t, pg.ConstraintName(errors.New("boom")))
	})

	t.Run("constraint name", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, "reading_sessions_one_active_per_user", pg.ConstraintName(wrapped))
		assert.False(t, pg.IsUniqueViolation(&pgconn.PgError{Code: "23514", ConstraintName: "reading_sessions_one_active_per_user"}, "reading_sessions_one_active_per_user"))
	})
}
