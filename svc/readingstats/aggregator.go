package readingstats

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/readtrack/pkg/logger"
	"github.com/dmitrymomot/readtrack/pkg/progress"
	"github.com/dmitrymomot/readtrack/svc/reading"
)

// ErrNilStore is returned by New when no store is given.
var ErrNilStore = errors.New("readingstats: store cannot be nil")

// Store reads the durable data analytics are derived from.
type Store interface {
	// User returns reading.ErrUserNotFound for unknown ids.
	User(ctx context.Context, id uuid.UUID) (*reading.User, error)
	// ClosedSessions returns closed sessions started at or after since.
	ClosedSessions(ctx context.Context, userID uuid.UUID, since time.Time) ([]reading.Session, error)
	ReadingProgress(ctx context.Context, userID uuid.UUID) ([]reading.BookProgress, error)
	// RaiseLongestStreak stores days if it exceeds the current value and
	// returns the resulting longest streak.
	RaiseLongestStreak(ctx context.Context, userID uuid.UUID, days int) (int, error)
}

type Option func(*Aggregator)

func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) {
		if now != nil {
			a.now = now
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(a *Aggregator) {
		if l != nil {
			a.logger = l
		}
	}
}

// Aggregator computes reading statistics.
type Aggregator struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

func New(store Store, opts ...Option) (*Aggregator, error) {
	if store == nil {
		return nil, ErrNilStore
	}
	a := &Aggregator{
		store:  store,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.With(logger.Component("readingstats"))
	return a, nil
}

// ReadingStreak returns the number of consecutive local days, ending today,
// with at least one closed session of a minute or more. It is 0 when the
// user has not read today. A streak longer than the stored longest streak is
// persisted.
func (a *Aggregator) ReadingStreak(ctx context.Context, userID uuid.UUID) (int, error) {
	u, loc, err := a.user(ctx, userID)
	if err != nil {
		return 0, err
	}
	sessions, err := a.store.ClosedSessions(ctx, userID, time.Time{})
	if err != nil {
		return 0, err
	}

	today := DateOf(a.now(), loc)
	streak := currentStreak(activeDays(sessions, loc), today)
	if _, err := a.raiseLongest(ctx, u, streak); err != nil {
		return 0, err
	}
	return streak, nil
}

// WeeklyActivity returns exactly seven days, oldest first and ending today,
// zero-filled where nothing was read.
func (a *Aggregator) WeeklyActivity(ctx context.Context, userID uuid.UUID) ([]DayActivity, error) {
	_, loc, err := a.user(ctx, userID)
	if err != nil {
		return nil, err
	}

	today := DateOf(a.now(), loc)
	from := today.AddDays(-6)
	sessions, err := a.store.ClosedSessions(ctx, userID, from.Start(loc))
	if err != nil {
		return nil, err
	}
	return dailyActivity(sessions, loc, from, today), nil
}

// AverageMinutesPerDay is total minutes divided by the number of distinct
// local days with a closed session of at least one minute. It is the only
// definition of the average; Snapshot and MonthlyStats use it too.
func (a *Aggregator) AverageMinutesPerDay(ctx context.Context, userID uuid.UUID) (float64, error) {
	_, loc, err := a.user(ctx, userID)
	if err != nil {
		return 0, err
	}
	sessions, err := a.store.ClosedSessions(ctx, userID, time.Time{})
	if err != nil {
		return 0, err
	}
	return averageMinutesPerDay(sessions, loc), nil
}

// PagesRead sums, per book, the normalized progress applied to the book's
// page count.
func (a *Aggregator) PagesRead(ctx context.Context, userID uuid.UUID) (int, error) {
	rows, err := a.store.ReadingProgress(ctx, userID)
	if err != nil {
		return 0, err
	}
	return summarizeProgress(rows).pages, nil
}

// ChaptersRead sums, per book, the chapters before the current one.
func (a *Aggregator) ChaptersRead(ctx context.Context, userID uuid.UUID) (int, error) {
	rows, err := a.store.ReadingProgress(ctx, userID)
	if err != nil {
		return 0, err
	}
	return summarizeProgress(rows).chapters, nil
}

// MonthlyStats aggregates the current local month up to today.
func (a *Aggregator) MonthlyStats(ctx context.Context, userID uuid.UUID) (*MonthlyStats, error) {
	_, loc, err := a.user(ctx, userID)
	if err != nil {
		return nil, err
	}

	today := DateOf(a.now(), loc)
	first := Date{Year: today.Year, Month: today.Month, Day: 1}
	sessions, err := a.store.ClosedSessions(ctx, userID, first.Start(loc))
	if err != nil {
		return nil, err
	}
	m := monthlyStats(sessions, loc, today)
	return &m, nil
}

// Snapshot assembles every statistic from one read of the user's sessions
// and progress.
func (a *Aggregator) Snapshot(ctx context.Context, userID uuid.UUID) (*Snapshot, error) {
	u, loc, err := a.user(ctx, userID)
	if err != nil {
		return nil, err
	}
	sessions, err := a.store.ClosedSessions(ctx, userID, time.Time{})
	if err != nil {
		return nil, err
	}
	rows, err := a.store.ReadingProgress(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := a.now()
	today := DateOf(now, loc)
	streak := currentStreak(activeDays(sessions, loc), today)
	longest, err := a.raiseLongest(ctx, u, streak)
	if err != nil {
		return nil, err
	}

	totalMinutes := 0
	for _, s := range sessions {
		totalMinutes += s.DurationMinutes
	}
	books := summarizeProgress(rows)

	return &Snapshot{
		UserID:               userID,
		Timezone:             loc.String(),
		TotalSessions:        len(sessions),
		TotalMinutes:         totalMinutes,
		BooksInProgress:      books.inProgress,
		BooksCompleted:       books.completed,
		PagesRead:            books.pages,
		ChaptersRead:         books.chapters,
		ReadingStreakDays:    streak,
		LongestStreakDays:    longest,
		AverageMinutesPerDay: averageMinutesPerDay(sessions, loc),
		WeeklyActivity:       dailyActivity(sessions, loc, today.AddDays(-6), today),
		Monthly:              monthlyStats(sessions, loc, today),
		GeneratedAt:          now.UTC(),
	}, nil
}

func (a *Aggregator) user(ctx context.Context, userID uuid.UUID) (*reading.User, *time.Location, error) {
	u, err := a.store.User(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	loc := u.Location()
	if u.Timezone != "" && loc.String() != u.Timezone {
		a.logger.WarnContext(ctx, "unknown user timezone, bucketing in UTC",
			logger.UserID(userID),
			slog.String("timezone", u.Timezone))
	}
	return u, loc, nil
}

func (a *Aggregator) raiseLongest(ctx context.Context, u *reading.User, streak int) (int, error) {
	if streak <= u.LongestStreakDays {
		return u.LongestStreakDays, nil
	}
	longest, err := a.store.RaiseLongestStreak(ctx, u.ID, streak)
	if err != nil {
		return 0, err
	}
	a.logger.DebugContext(ctx, "longest reading streak raised",
		logger.UserID(u.ID),
		slog.Int("days", longest))
	return longest, nil
}

// activeDays returns the local dates with a closed session of a minute or
// more.
func activeDays(sessions []reading.Session, loc *time.Location) map[Date]int {
	days := make(map[Date]int)
	for _, s := range sessions {
		if s.IsActive || s.DurationMinutes < 1 {
			continue
		}
		days[DateOf(s.StartedAt, loc)] += s.DurationMinutes
	}
	return days
}

func currentStreak(days map[Date]int, today Date) int {
	streak := 0
	for d := today; days[d] > 0; d = d.AddDays(-1) {
		streak++
	}
	return streak
}

func averageMinutesPerDay(sessions []reading.Session, loc *time.Location) float64 {
	days := activeDays(sessions, loc)
	if len(days) == 0 {
		return 0
	}
	total := 0
	for _, minutes := range days {
		total += minutes
	}
	return float64(total) / float64(len(days))
}

// dailyActivity returns one zero-filled entry per date in [from, to].
func dailyActivity(sessions []reading.Session, loc *time.Location, from, to Date) []DayActivity {
	var out []DayActivity
	index := make(map[Date]int)
	for d := from; !to.Before(d); d = d.AddDays(1) {
		index[d] = len(out)
		out = append(out, DayActivity{Date: d, Weekday: d.Weekday()})
	}

	for _, s := range sessions {
		if s.IsActive {
			continue
		}
		i, ok := index[DateOf(s.StartedAt, loc)]
		if !ok {
			continue
		}
		out[i].Minutes += s.DurationMinutes
		out[i].Sessions++
		out[i].ProgressDelta += s.EndPosition - s.StartPosition
	}
	return out
}

func monthlyStats(sessions []reading.Session, loc *time.Location, today Date) MonthlyStats {
	first := Date{Year: today.Year, Month: today.Month, Day: 1}
	days := dailyActivity(sessions, loc, first, today)

	m := MonthlyStats{Year: today.Year, Month: today.Month, Days: days}
	var inMonth []reading.Session
	for _, s := range sessions {
		if d := DateOf(s.StartedAt, loc); !d.Before(first) && !today.Before(d) {
			inMonth = append(inMonth, s)
		}
	}
	for _, d := range days {
		m.Minutes += d.Minutes
		m.Sessions += d.Sessions
		m.ProgressDelta += d.ProgressDelta
	}
	m.ActiveDays = len(activeDays(inMonth, loc))
	m.AverageMinutesPerDay = averageMinutesPerDay(inMonth, loc)
	return m
}

type progressSummary struct {
	pages      int
	chapters   int
	inProgress int
	completed  int
}

func summarizeProgress(rows []reading.BookProgress) progressSummary {
	var sum progressSummary
	for _, bp := range rows {
		loc := bp.Locator()
		sum.pages += progress.PagesRead(loc, bp.Book.TotalPages)
		sum.chapters += progress.ChaptersCompleted(loc)
		switch pct := loc.PercentOfBook(); {
		case pct >= completedThreshold:
			sum.completed++
		case pct > 0:
			sum.inProgress++
		}
	}
	return sum
}
