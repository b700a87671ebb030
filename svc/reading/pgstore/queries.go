package pgstore

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/dmitrymomot/readtrack/pkg/progress"
	"github.com/dmitrymomot/readtrack/svc/reading"
)

var sessionColumns = []string{
	"id", "user_id", "book_id", "started_at", "ended_at",
	"start_position", "end_position", "duration_minutes", "pages_read",
	"device_type", "is_active", "last_activity_at", "created_at", "updated_at",
}

func columns(alias string) string {
	if alias == "" {
		return strings.Join(sessionColumns, ", ")
	}
	qualified := make([]string, len(sessionColumns))
	for i, c := range sessionColumns {
		qualified[i] = alias + "." + c
	}
	return strings.Join(qualified, ", ")
}

// durationExpr floors (to - started_at) into whole minutes, never negative.
func durationExpr(to, startedAt string) string {
	return "GREATEST(0, FLOOR(EXTRACT(EPOCH FROM (" + to + " - " + startedAt + ")) / 60))::int"
}

var (
	queryGetSession = `SELECT ` + columns("") + ` FROM reading_sessions WHERE id = $1`

	queryActiveSession = `SELECT ` + columns("") + `
		FROM reading_sessions
		WHERE user_id = $1 AND is_active`

	queryLockActiveSession = queryActiveSession + ` FOR UPDATE`

	queryLockSessions = `SELECT ` + columns("") + `
		FROM reading_sessions
		WHERE id = ANY($1::uuid[])
		ORDER BY id
		FOR UPDATE`

	queryCountSessions = `SELECT COUNT(*)
		FROM reading_sessions
		WHERE user_id = $1 AND ($2::uuid IS NULL OR book_id = $2::uuid)`

	queryListSessions = `SELECT ` + columns("") + `
		FROM reading_sessions
		WHERE user_id = $1 AND ($2::uuid IS NULL OR book_id = $2::uuid)
		ORDER BY started_at DESC, id DESC
		LIMIT $3 OFFSET $4`

	queryInsertSession = `INSERT INTO reading_sessions (` + columns("") + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	querySaveSession = `UPDATE reading_sessions
		SET ended_at = $2,
			end_position = $3,
			duration_minutes = $4,
			pages_read = $5,
			is_active = $6,
			last_activity_at = $7,
			updated_at = $8
		WHERE id = $1`

	queryApplyPositions = `UPDATE reading_sessions AS s
		SET end_position = v.position,
			duration_minutes = ` + durationExpr("v.at", "s.started_at") + `,
			last_activity_at = v.at,
			updated_at = v.at
		FROM unnest($1::uuid[], $2::float8[], $3::timestamptz[]) AS v(id, position, at)
		WHERE s.id = v.id
			AND s.is_active
			AND v.position >= s.start_position
			AND s.last_activity_at <= v.at`

	queryCloseStale = `WITH closed AS (
			UPDATE reading_sessions AS s
			SET is_active = FALSE,
				ended_at = s.last_activity_at,
				duration_minutes = ` + durationExpr("s.last_activity_at", "s.started_at") + `,
				pages_read = GREATEST(0, ROUND(((s.end_position - s.start_position) * b.total_pages / 100)::numeric))::int,
				updated_at = s.last_activity_at
			FROM books AS b
			WHERE b.id = s.book_id
				AND s.is_active
				AND s.last_activity_at < $1
			RETURNING ` + columns("s") + `
		), progress AS (
			INSERT INTO reading_progress AS p (user_id, book_id, current_position, format, updated_at)
			SELECT user_id, book_id, end_position, 'cfi', ended_at FROM closed
			ON CONFLICT (user_id, book_id) DO UPDATE
			SET current_position = EXCLUDED.current_position,
				cfi = CASE WHEN p.format = EXCLUDED.format THEN p.cfi ELSE '' END,
				format = EXCLUDED.format,
				updated_at = EXCLUDED.updated_at
			WHERE p.updated_at <= EXCLUDED.updated_at
		)
		SELECT ` + columns("") + ` FROM closed`

	queryBook = `SELECT id, title, total_pages, total_chapters FROM books WHERE id = $1`

	queryUpsertProgress = `INSERT INTO reading_progress AS p
			(user_id, book_id, current_chapter, current_position, format, cfi, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id, book_id) DO UPDATE
		SET current_chapter = CASE WHEN EXCLUDED.current_chapter > 0 THEN EXCLUDED.current_chapter ELSE p.current_chapter END,
			current_position = EXCLUDED.current_position,
			cfi = CASE
				WHEN EXCLUDED.cfi <> '' THEN EXCLUDED.cfi
				WHEN p.format = EXCLUDED.format THEN p.cfi
				ELSE ''
			END,
			format = EXCLUDED.format,
			updated_at = EXCLUDED.updated_at
		WHERE p.updated_at <= EXCLUDED.updated_at`

	queryUser = `SELECT id, timezone, longest_streak_days FROM users WHERE id = $1`

	queryClosedSessions = `SELECT ` + columns("") + `
		FROM reading_sessions
		WHERE user_id = $1 AND NOT is_active AND started_at >= $2
		ORDER BY started_at`

	queryReadingProgress = `SELECT p.user_id, p.book_id, p.current_chapter, p.current_position, p.format, p.cfi, p.updated_at,
			b.id, b.title, b.total_pages, b.total_chapters
		FROM reading_progress AS p
		JOIN books AS b ON b.id = p.book_id
		WHERE p.user_id = $1
		ORDER BY b.id`

	queryRaiseLongestStreak = `UPDATE users
		SET longest_streak_days = GREATEST(longest_streak_days, $2)
		WHERE id = $1
		RETURNING longest_streak_days`
)

func scanSession(row pgx.Row) (*reading.Session, error) {
	var (
		s      reading.Session
		device string
	)
	err := row.Scan(
		&s.ID, &s.UserID, &s.BookID, &s.StartedAt, &s.EndedAt,
		&s.StartPosition, &s.EndPosition, &s.DurationMinutes, &s.PagesRead,
		&device, &s.IsActive, &s.LastActivityAt, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	s.DeviceType = reading.DeviceType(device)
	s.StartedAt = s.StartedAt.UTC()
	s.LastActivityAt = s.LastActivityAt.UTC()
	s.CreatedAt = s.CreatedAt.UTC()
	s.UpdatedAt = s.UpdatedAt.UTC()
	if s.EndedAt != nil {
		ended := s.EndedAt.UTC()
		s.EndedAt = &ended
	}
	return &s, nil
}

func collectSessions(rows pgx.Rows) ([]reading.Session, error) {
	defer rows.Close()

	var out []reading.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

func sessionArgs(s *reading.Session) []any {
	return []any{
		s.ID, s.UserID, s.BookID, s.StartedAt, s.EndedAt,
		s.StartPosition, s.EndPosition, s.DurationMinutes, s.PagesRead,
		string(s.DeviceType), s.IsActive, s.LastActivityAt, s.CreatedAt, s.UpdatedAt,
	}
}

// positionArrays splits writes into the column arrays unnest expects.
func positionArrays(writes []reading.PositionWrite) ([]string, []float64, []time.Time) {
	ids := make([]string, len(writes))
	positions := make([]float64, len(writes))
	ats := make([]time.Time, len(writes))
	for i, w := range writes {
		ids[i] = w.SessionID.String()
		positions[i] = w.Position
		ats[i] = w.At
	}
	return ids, positions, ats
}

func idStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

func scanBookProgress(row pgx.Row) (reading.BookProgress, error) {
	var (
		bp     reading.BookProgress
		format string
	)
	err := row.Scan(
		&bp.Progress.UserID, &bp.Progress.BookID, &bp.Progress.CurrentChapter,
		&bp.Progress.CurrentPosition, &format, &bp.Progress.CFI, &bp.Progress.UpdatedAt,
		&bp.Book.ID, &bp.Book.Title, &bp.Book.TotalPages, &bp.Book.TotalChapters,
	)
	bp.Progress.Format = progress.Format(format)
	return bp, err
}
