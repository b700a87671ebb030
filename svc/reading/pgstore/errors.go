package pgstore

import (
	"errors"

	"github.com/dmitrymomot/readtrack/pkg/pg"
	"github.com/dmitrymomot/readtrack/svc/reading"
)

const (
	constraintOneActive    = "reading_sessions_one_active_per_user"
	constraintSessionUser  = "reading_sessions_user_fk"
	constraintSessionBook  = "reading_sessions_book_fk"
	constraintProgressUser = "reading_progress_user_fk"
	constraintProgressBook = "reading_progress_book_fk"

	constraintPositionOrder   = "reading_sessions_position_order"
	constraintStartPosition   = "reading_sessions_start_position_check"
	constraintEndPosition     = "reading_sessions_end_position_check"
	constraintCurrentPosition = "reading_progress_current_position_check"
)

// mapError translates driver errors into the reading error taxonomy.
// notFound is returned for pgx.ErrNoRows; pass nil when no rows is not
// expected.
func mapError(err, notFound error) error {
	if err == nil {
		return nil
	}
	if notFound != nil && pg.IsNotFoundError(err) {
		return notFound
	}
	if pg.IsUniqueViolation(err, constraintOneActive) {
		return errors.Join(reading.ErrActiveSessionConflict, err)
	}
	if pg.IsForeignKeyViolationError(err) {
		switch pg.ConstraintName(err) {
		case constraintSessionUser, constraintProgressUser:
			return reading.ErrUserNotFound
		case constraintSessionBook, constraintProgressBook:
			return reading.ErrBookNotFound
		}
	}
	if pg.IsCheckViolationError(err) {
		switch pg.ConstraintName(err) {
		case constraintPositionOrder:
			return errors.Join(reading.ErrInvalidProgressRange, err)
		case constraintStartPosition, constraintEndPosition, constraintCurrentPosition:
			return errors.Join(reading.ErrInvalidPosition, err)
		}
	}
	return errors.Join(reading.ErrStorage, err)
}
