package pgstore

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"github.com/dmitrymomot/readtrack/svc/reading"
)

func TestMapError(t *testing.T) {
	t.Parallel()

	notFound := errors.New("not found")
	tests := []struct {
		name string
		err  error
		want error
		kind reading.Kind
	}{
		{"no rows", fmt.Errorf("get: %w", pgx.ErrNoRows), notFound, reading.KindNone},
		{"second active session", &pgconn.PgError{Code: "23505", ConstraintName: constraintOneActive}, reading.ErrActiveSessionConflict, reading.KindStateConflict},
		{"other unique index", &pgconn.PgError{Code: "23505", ConstraintName: "reading_sessions_pkey"}, reading.ErrStorage, reading.KindStorage},
		{"unknown user", &pgconn.PgError{Code: "23503", ConstraintName: constraintSessionUser}, reading.ErrUserNotFound, reading.KindNotFound},
		{"unknown book", &pgconn.PgError{Code: "23503", ConstraintName: constraintProgressBook}, reading.ErrBookNotFound, reading.KindNotFound},
		{"end before start", &pgconn.PgError{Code: "23514", ConstraintName: constraintPositionOrder}, reading.ErrInvalidProgressRange, reading.KindValidation},
		{"position out of range", &pgconn.PgError{Code: "23514", ConstraintName: constraintEndPosition}, reading.ErrInvalidPosition, reading.KindValidation},
		{"progress out of range", &pgconn.PgError{Code: "23514", ConstraintName: constraintCurrentPosition}, reading.ErrInvalidPosition, reading.KindValidation},
		{"other check", &pgconn.PgError{Code: "23514", ConstraintName: "reading_sessions_closed_state"}, reading.ErrStorage, reading.KindStorage},
		{"connection error", errors.New("conn reset"), reading.ErrStorage, reading.KindStorage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := mapError(tt.err, notFound)
			assert.ErrorIs(t, got, tt.want)
			if tt.kind != reading.KindNone {
				assert.Equal(t, tt.kind, reading.KindOf(got))
			}
		})
	}

	assert.NoError(t, mapError(nil, notFound))
	assert.ErrorIs(t, mapError(pgx.ErrNoRows, nil), reading.ErrStorage)
}
