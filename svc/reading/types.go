package reading

import (
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/readtrack/pkg/progress"
)

// DeviceType identifies the client a session was started from.
type DeviceType string

const (
	DeviceWeb     DeviceType = "web"
	DeviceIOS     DeviceType = "ios"
	DeviceAndroid DeviceType = "android"
	DeviceDesktop DeviceType = "desktop"
	DeviceEReader DeviceType = "ereader"
	DeviceUnknown DeviceType = "unknown"
)

// ParseDeviceType normalizes a client-supplied device name.
func ParseDeviceType(raw string) DeviceType {
	switch d := DeviceType(strings.ToLower(strings.TrimSpace(raw))); d {
	case DeviceWeb, DeviceIOS, DeviceAndroid, DeviceDesktop, DeviceEReader:
		return d
	default:
		return DeviceUnknown
	}
}

// Session is one continuous reading interval.
// Positions are percent of the whole book.
type Session struct {
	ID              uuid.UUID  `json:"id" msgpack:"id"`
	UserID          uuid.UUID  `json:"user_id" msgpack:"user_id"`
	BookID          uuid.UUID  `json:"book_id" msgpack:"book_id"`
	StartedAt       time.Time  `json:"started_at" msgpack:"started_at"`
	EndedAt         *time.Time `json:"ended_at,omitempty" msgpack:"ended_at"`
	StartPosition   float64    `json:"start_position" msgpack:"start_position"`
	EndPosition     float64    `json:"end_position" msgpack:"end_position"`
	DurationMinutes int        `json:"duration_minutes" msgpack:"duration_minutes"`
	PagesRead       int        `json:"pages_read" msgpack:"pages_read"`
	DeviceType      DeviceType `json:"device_type" msgpack:"device_type"`
	IsActive        bool       `json:"is_active" msgpack:"is_active"`
	LastActivityAt  time.Time  `json:"last_activity_at" msgpack:"last_activity_at"`
	CreatedAt       time.Time  `json:"created_at" msgpack:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at" msgpack:"updated_at"`
}

// NewSession builds an active session starting at now.
func NewSession(userID, bookID uuid.UUID, startPosition float64, device DeviceType, now time.Time) *Session {
	return &Session{
		ID:             uuid.New(),
		UserID:         userID,
		BookID:         bookID,
		StartedAt:      now,
		StartPosition:  startPosition,
		EndPosition:    startPosition,
		DeviceType:     device,
		IsActive:       true,
		LastActivityAt: now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// Touch records a position ping received at.
func (s *Session) Touch(at time.Time, position float64) {
	s.EndPosition = position
	s.DurationMinutes = WholeMinutes(s.StartedAt, at)
	s.LastActivityAt = at
	s.UpdatedAt = at
}

// Close finalizes the session at the given instant and position.
func (s *Session) Close(at time.Time, endPosition float64, totalPages int) {
	ended := at
	s.EndPosition = endPosition
	s.EndedAt = &ended
	s.IsActive = false
	s.DurationMinutes = WholeMinutes(s.StartedAt, at)
	s.PagesRead = PagesBetween(s.StartPosition, endPosition, totalPages)
	s.UpdatedAt = at
}

// Clone returns a deep copy.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	if s.EndedAt != nil {
		ended := *s.EndedAt
		c.EndedAt = &ended
	}
	return &c
}

// WholeMinutes returns the floored number of minutes between from and to,
// never negative.
func WholeMinutes(from, to time.Time) int {
	if !to.After(from) {
		return 0
	}
	return int(to.Sub(from) / time.Minute)
}

// PagesBetween converts a positional delta into whole pages.
func PagesBetween(start, end float64, totalPages int) int {
	if totalPages <= 0 || end <= start {
		return 0
	}
	return int(math.Round((end - start) * float64(totalPages) / 100))
}

// Book is the read-only part of a book the engine needs.
type Book struct {
	ID            uuid.UUID
	Title         string
	TotalPages    int
	TotalChapters int
}

// User holds the per-user fields the engine reads and maintains.
type User struct {
	ID                uuid.UUID
	Timezone          string
	LongestStreakDays int
}

// Location resolves the user's IANA timezone, falling back to UTC.
func (u *User) Location() *time.Location {
	if u == nil || u.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(u.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Progress is the latest durable position of a user in a book.
type Progress struct {
	UserID          uuid.UUID
	BookID          uuid.UUID
	CurrentChapter  int
	CurrentPosition float64
	Format          progress.Format
	CFI             string
	UpdatedAt       time.Time
}

// BookProgress pairs a progress row with its book.
type BookProgress struct {
	Progress Progress
	Book     Book
}

// Locator returns the normalized view of the stored position.
func (bp BookProgress) Locator() progress.Locator {
	return progress.FromRecord(progress.Record{
		Format:        bp.Progress.Format,
		Chapter:       bp.Progress.CurrentChapter,
		Position:      bp.Progress.CurrentPosition,
		CFI:           bp.Progress.CFI,
		TotalChapters: bp.Book.TotalChapters,
	})
}

// PositionUpdate is a client position ping for one session.
type PositionUpdate struct {
	SessionID uuid.UUID `json:"session_id"`
	Position  float64   `json:"position"`
}

// PositionWrite is a position the store should apply, stamped with the time
// the server received it.
type PositionWrite struct {
	SessionID uuid.UUID
	UserID    uuid.UUID
	Position  float64
	At        time.Time
}

// HistoryQuery selects a page of a user's sessions, newest first.
type HistoryQuery struct {
	Page     int
	PageSize int
	BookID   *uuid.UUID
}

// HistoryFilter is the store-level form of HistoryQuery.
type HistoryFilter struct {
	UserID uuid.UUID
	BookID *uuid.UUID
	Limit  int
	Offset int
}

// Page is one page of a paginated listing.
type Page[T any] struct {
	Items      []T `json:"items"`
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

// BulkResult reports a successfully applied batch.
type BulkResult struct {
	Applied  int        `json:"applied"`
	Sessions []*Session `json:"sessions"`
}

func validPosition(p float64) bool {
	return !math.IsNaN(p) && p >= 0 && p <= 100
}
