package readingstats

import (
	"time"

	"github.com/google/uuid"
)

// completedThreshold is the percent at which a book counts as finished.
const completedThreshold = 99.5

// DayActivity aggregates the closed sessions started on one local date.
type DayActivity struct {
	Date          Date         `json:"date"`
	Weekday       time.Weekday `json:"weekday"`
	Minutes       int          `json:"minutes"`
	Sessions      int          `json:"sessions"`
	ProgressDelta float64      `json:"progress_delta"`
}

// MonthlyStats covers the first of the current local month through today.
type MonthlyStats struct {
	Year                 int           `json:"year"`
	Month                time.Month    `json:"month"`
	Minutes              int           `json:"minutes"`
	Sessions             int           `json:"sessions"`
	ProgressDelta        float64       `json:"progress_delta"`
	ActiveDays           int           `json:"active_days"`
	AverageMinutesPerDay float64       `json:"average_minutes_per_day"`
	Days                 []DayActivity `json:"days"`
}

// Snapshot is the full statistics view of one user. It is never stored.
type Snapshot struct {
	UserID               uuid.UUID     `json:"user_id"`
	Timezone             string        `json:"timezone"`
	TotalSessions        int           `json:"total_sessions"`
	TotalMinutes         int           `json:"total_minutes"`
	BooksInProgress      int           `json:"books_in_progress"`
	BooksCompleted       int           `json:"books_completed"`
	PagesRead            int           `json:"pages_read"`
	ChaptersRead         int           `json:"chapters_read"`
	ReadingStreakDays    int           `json:"reading_streak_days"`
	LongestStreakDays    int           `json:"longest_streak_days"`
	AverageMinutesPerDay float64       `json:"average_minutes_per_day"`
	WeeklyActivity       []DayActivity `json:"weekly_activity"`
	Monthly              MonthlyStats  `json:"monthly"`
	GeneratedAt          time.Time     `json:"generated_at"`
}
