package progress

import (
	"math"
	"strconv"
	"strings"
)

// Format identifies how a stored position is encoded.
type Format string

const (
	// FormatCFI positions are percent of the whole book.
	FormatCFI Format = "cfi"
	// FormatLegacyChapter positions are percent within the current chapter.
	FormatLegacyChapter Format = "legacy_chapter"
)

// Valid reports whether f is a known format.
func (f Format) Valid() bool {
	return f == FormatCFI || f == FormatLegacyChapter
}

// Locator is a reading position that can express itself as percent of book.
type Locator interface {
	// PercentOfBook returns the position in [0, 100].
	PercentOfBook() float64
	// Chapter returns the 1-based chapter being read, 0 when unknown.
	Chapter() int
}

// CFI is a position recorded as percent of the whole book.
type CFI struct {
	Percent float64
	// Position is the raw epubcfi(...) string, may be empty.
	Position string
	// ChapterNumber is the stored chapter; when zero it is derived from Position.
	ChapterNumber int
}

func (c CFI) PercentOfBook() float64 { return clamp(c.Percent) }

func (c CFI) Chapter() int {
	if c.ChapterNumber > 0 {
		return c.ChapterNumber
	}
	if n, ok := ParseCFI(c.Position); ok {
		return n
	}
	return 0
}

// LegacyChapter is a position recorded as percent within the current chapter.
type LegacyChapter struct {
	ChapterNumber    int
	PercentInChapter float64
	TotalChapters    int
}

func (l LegacyChapter) Chapter() int { return l.ChapterNumber }

func (l LegacyChapter) PercentOfBook() float64 {
	if l.TotalChapters <= 0 || l.ChapterNumber <= 0 {
		return 0
	}
	chapter := min(l.ChapterNumber, l.TotalChapters)
	done := float64(chapter-1) + clamp(l.PercentInChapter)/100
	return clamp(done / float64(l.TotalChapters) * 100)
}

// Record is the raw shape of a stored progress row.
type Record struct {
	Format        Format
	Chapter       int
	Position      float64
	CFI           string
	TotalChapters int
}

// FromRecord picks the Locator variant for a stored row. Rows with an unknown
// format are treated as legacy when they carry no CFI, since CFI-era clients
// always send one.
func FromRecord(r Record) Locator {
	format := r.Format
	if !format.Valid() {
		format = FormatLegacyChapter
		if r.CFI != "" {
			format = FormatCFI
		}
	}
	if format == FormatCFI {
		return CFI{Percent: r.Position, Position: r.CFI, ChapterNumber: r.Chapter}
	}
	return LegacyChapter{ChapterNumber: r.Chapter, PercentInChapter: r.Position, TotalChapters: r.TotalChapters}
}

// PagesRead converts a locator into whole pages of a book with totalPages.
func PagesRead(loc Locator, totalPages int) int {
	if loc == nil || totalPages <= 0 {
		return 0
	}
	return int(math.Round(loc.PercentOfBook() * float64(totalPages) / 100))
}

// ChaptersCompleted returns the number of fully read chapters. The current
// chapter is still being read, so it does not count.
func ChaptersCompleted(loc Locator) int {
	if loc == nil {
		return 0
	}
	return max(loc.Chapter()-1, 0)
}

// ParseCFI extracts the 1-based spine item from an EPUB CFI such as
// "epubcfi(/6/4[chap01]!/4/2/1:0)". The second step addresses the spine
// item with even indexes starting at 2.
func ParseCFI(cfi string) (int, bool) {
	s := strings.TrimSpace(cfi)
	s = strings.TrimPrefix(s, "epubcfi(")
	s = strings.TrimSuffix(s, ")")
	if !strings.HasPrefix(s, "/") {
		return 0, false
	}

	steps := strings.SplitN(strings.TrimPrefix(s, "/"), "/", 3)
	if len(steps) < 2 {
		return 0, false
	}

	step := steps[1]
	if i := strings.IndexAny(step, "[!:~@"); i >= 0 {
		step = step[:i]
	}
	n, err := strconv.Atoi(step)
	if err != nil || n < 2 || n%2 != 0 {
		return 0, false
	}
	return n / 2, true
}

func clamp(v float64) float64 {
	switch {
	case math.IsNaN(v) || v < 0:
		return 0
	case v > 100:
		return 100
	default:
		return v
	}
}
