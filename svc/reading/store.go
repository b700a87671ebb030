package reading

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Store is the durable source of truth for sessions.
//
// Implementations must reject a second active session for a user with an
// error matching ErrActiveSessionConflict. Not found lookups return
// ErrSessionNotFound or ErrBookNotFound; other failures wrap ErrStorage.
type Store interface {
	// InTx runs fn in a single transaction. Returning an error from fn rolls
	// back every write made through tx.
	InTx(ctx context.Context, fn func(tx Tx) error) error

	GetSession(ctx context.Context, id uuid.UUID) (*Session, error)

	// ActiveSession returns nil, nil when the user has no active session.
	ActiveSession(ctx context.Context, userID uuid.UUID) (*Session, error)

	// ListSessions returns one page ordered by started_at descending, plus
	// the total count matching the filter.
	ListSessions(ctx context.Context, filter HistoryFilter) ([]Session, int, error)

	// ApplyPositions writes positions to sessions that are still active,
	// whose start position is not above the new position and whose last
	// activity is not newer than the write. It returns the number of rows
	// changed.
	ApplyPositions(ctx context.Context, writes []PositionWrite) (int, error)

	// CloseStale ends every active session whose last activity is before
	// cutoff, with ended_at set to that last activity, and records the
	// closing position as the book progress. It returns the sessions it
	// closed. Running it again with the same cutoff changes nothing.
	CloseStale(ctx context.Context, cutoff time.Time) ([]Session, error)
}

// Tx is the transactional view of a Store.
type Tx interface {
	Book(ctx context.Context, id uuid.UUID) (*Book, error)

	// LockActiveSession returns the user's active session locked for update,
	// or nil, nil.
	LockActiveSession(ctx context.Context, userID uuid.UUID) (*Session, error)

	// LockSessions returns the requested sessions locked for update. Missing
	// ids are absent from the map.
	LockSessions(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*Session, error)

	InsertSession(ctx context.Context, s *Session) error
	SaveSession(ctx context.Context, s *Session) error

	// ApplyPositions has the same conditional semantics as
	// Store.ApplyPositions.
	ApplyPositions(ctx context.Context, writes []PositionWrite) (int, error)

	// UpsertProgress writes the per-book position unless a newer one is
	// already stored. A zero CurrentChapter keeps the stored chapter.
	UpsertProgress(ctx context.Context, p Progress) error
}
