// Package progress normalizes stored reading positions to a single unit:
// percent of the whole book.
//
// Two encodings exist in the progress table. Records written by current
// clients store the position as a percent of the whole book together with an
// EPUB CFI. Older records store the percent read within the current chapter.
// Callers never branch on the encoding; they build a Locator with FromRecord
// and ask it for PercentOfBook:
//
//	loc := progress.FromRecord(progress.Record{
//	    Format:         rec.Format,
//	    Chapter:        rec.CurrentChapter,
//	    Position:       rec.CurrentPosition,
//	    CFI:            rec.CFI,
//	    TotalChapters:  book.TotalChapters,
//	})
//	pages := loc.PercentOfBook() * float64(book.TotalPages) / 100
//
// The legacy conversion assumes chapters of equal length, which is the best
// the legacy records allow.
package progress
