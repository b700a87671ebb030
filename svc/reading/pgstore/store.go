package pgstore

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/readtrack/svc/reading"
)

// ErrNilPool is returned by New when no pool is given.
var ErrNilPool = errors.New("pgstore: pool cannot be nil")

// Store implements reading.Store and readingstats.Store on PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) (*Store, error) {
	if pool == nil {
		return nil, ErrNilPool
	}
	return &Store{pool: pool}, nil
}

// InTx runs fn in a READ COMMITTED transaction. Row locks taken through tx
// serialize conflicting lifecycle transitions.
func (s *Store) InTx(ctx context.Context, fn func(tx reading.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return mapError(err, nil)
	}
	defer func() {
		// no-op after a successful commit
		_ = tx.Rollback(ctx)
	}()

	if err := fn(&txStore{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return mapError(err, nil)
	}
	return nil
}

func (s *Store) GetSession(ctx context.Context, id uuid.UUID) (*reading.Session, error) {
	sess, err := scanSession(s.pool.QueryRow(ctx, queryGetSession, id))
	if err != nil {
		return nil, mapError(err, reading.ErrSessionNotFound)
	}
	return sess, nil
}

func (s *Store) ActiveSession(ctx context.Context, userID uuid.UUID) (*reading.Session, error) {
	sess, err := scanSession(s.pool.QueryRow(ctx, queryActiveSession, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, mapError(err, nil)
	}
	return sess, nil
}

func (s *Store) ListSessions(ctx context.Context, f reading.HistoryFilter) ([]reading.Session, int, error) {
	var book *string
	if f.BookID != nil {
		id := f.BookID.String()
		book = &id
	}

	var total int
	if err := s.pool.QueryRow(ctx, queryCountSessions, f.UserID, book).Scan(&total); err != nil {
		return nil, 0, mapError(err, nil)
	}
	if total == 0 || f.Offset >= total {
		return []reading.Session{}, total, nil
	}

	rows, err := s.pool.Query(ctx, queryListSessions, f.UserID, book, f.Limit, f.Offset)
	if err != nil {
		return nil, 0, mapError(err, nil)
	}
	items, err := collectSessions(rows)
	if err != nil {
		return nil, 0, mapError(err, nil)
	}
	return items, total, nil
}

func (s *Store) ApplyPositions(ctx context.Context, writes []reading.PositionWrite) (int, error) {
	return applyPositions(ctx, s.pool, writes)
}

func (s *Store) CloseStale(ctx context.Context, cutoff time.Time) ([]reading.Session, error) {
	rows, err := s.pool.Query(ctx, queryCloseStale, cutoff)
	if err != nil {
		return nil, mapError(err, nil)
	}
	closed, err := collectSessions(rows)
	if err != nil {
		return nil, mapError(err, nil)
	}
	return closed, nil
}

// User loads the streak state of a user.
func (s *Store) User(ctx context.Context, id uuid.UUID) (*reading.User, error) {
	var u reading.User
	err := s.pool.QueryRow(ctx, queryUser, id).Scan(&u.ID, &u.Timezone, &u.LongestStreakDays)
	if err != nil {
		return nil, mapError(err, reading.ErrUserNotFound)
	}
	return &u, nil
}

// ClosedSessions returns closed sessions started at or after since, oldest
// first.
func (s *Store) ClosedSessions(ctx context.Context, userID uuid.UUID, since time.Time) ([]reading.Session, error) {
	rows, err := s.pool.Query(ctx, queryClosedSessions, userID, since)
	if err != nil {
		return nil, mapError(err, nil)
	}
	out, err := collectSessions(rows)
	if err != nil {
		return nil, mapError(err, nil)
	}
	return out, nil
}

// ReadingProgress returns the user's per-book progress joined with books.
func (s *Store) ReadingProgress(ctx context.Context, userID uuid.UUID) ([]reading.BookProgress, error) {
	rows, err := s.pool.Query(ctx, queryReadingProgress, userID)
	if err != nil {
		return nil, mapError(err, nil)
	}
	defer rows.Close()

	var out []reading.BookProgress
	for rows.Next() {
		bp, err := scanBookProgress(rows)
		if err != nil {
			return nil, mapError(err, nil)
		}
		out = append(out, bp)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err, nil)
	}
	return out, nil
}

// RaiseLongestStreak keeps longest_streak_days monotonic.
func (s *Store) RaiseLongestStreak(ctx context.Context, userID uuid.UUID, days int) (int, error) {
	var longest int
	if err := s.pool.QueryRow(ctx, queryRaiseLongestStreak, userID, days).Scan(&longest); err != nil {
		return 0, mapError(err, reading.ErrUserNotFound)
	}
	return longest, nil
}

// execer is satisfied by both *pgxpool.Pool and pgx.Tx.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func applyPositions(ctx context.Context, db execer, writes []reading.PositionWrite) (int, error) {
	if len(writes) == 0 {
		return 0, nil
	}
	ids, positions, ats := positionArrays(writes)
	tag, err := db.Exec(ctx, queryApplyPositions, ids, positions, ats)
	if err != nil {
		return 0, mapError(err, nil)
	}
	return int(tag.RowsAffected()), nil
}

type txStore struct {
	tx pgx.Tx
}

func (t *txStore) Book(ctx context.Context, id uuid.UUID) (*reading.Book, error) {
	var b reading.Book
	err := t.tx.QueryRow(ctx, queryBook, id).Scan(&b.ID, &b.Title, &b.TotalPages, &b.TotalChapters)
	if err != nil {
		return nil, mapError(err, reading.ErrBookNotFound)
	}
	return &b, nil
}

func (t *txStore) LockActiveSession(ctx context.Context, userID uuid.UUID) (*reading.Session, error) {
	sess, err := scanSession(t.tx.QueryRow(ctx, queryLockActiveSession, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, mapError(err, nil)
	}
	return sess, nil
}

func (t *txStore) LockSessions(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*reading.Session, error) {
	rows, err := t.tx.Query(ctx, queryLockSessions, idStrings(ids))
	if err != nil {
		return nil, mapError(err, nil)
	}
	list, err := collectSessions(rows)
	if err != nil {
		return nil, mapError(err, nil)
	}

	out := make(map[uuid.UUID]*reading.Session, len(list))
	for i := range list {
		out[list[i].ID] = &list[i]
	}
	return out, nil
}

func (t *txStore) InsertSession(ctx context.Context, s *reading.Session) error {
	if _, err := t.tx.Exec(ctx, queryInsertSession, sessionArgs(s)...); err != nil {
		return mapError(err, nil)
	}
	return nil
}

func (t *txStore) SaveSession(ctx context.Context, s *reading.Session) error {
	tag, err := t.tx.Exec(ctx, querySaveSession,
		s.ID, s.EndedAt, s.EndPosition, s.DurationMinutes, s.PagesRead,
		s.IsActive, s.LastActivityAt, s.UpdatedAt)
	if err != nil {
		return mapError(err, nil)
	}
	if tag.RowsAffected() == 0 {
		return reading.ErrSessionNotFound
	}
	return nil
}

func (t *txStore) ApplyPositions(ctx context.Context, writes []reading.PositionWrite) (int, error) {
	return applyPositions(ctx, t.tx, writes)
}

func (t *txStore) UpsertProgress(ctx context.Context, p reading.Progress) error {
	_, err := t.tx.Exec(ctx, queryUpsertProgress,
		p.UserID, p.BookID, p.CurrentChapter, p.CurrentPosition,
		string(p.Format), p.CFI, p.UpdatedAt)
	return mapError(err, nil)
}
