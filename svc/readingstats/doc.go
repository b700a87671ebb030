// Package readingstats derives reading analytics from the durable session
// store: streaks, weekly and monthly activity, averages, pages and chapters
// read, and the combined Snapshot.
//
// Every figure is recomputed from the Store on demand and never read from
// the active-session cache. Sessions are bucketed by the calendar date of
// their start in the user's IANA timezone; a user without a valid timezone
// is bucketed in UTC.
//
// Counting rules:
//
//   - weekly and monthly activity count closed sessions;
//   - streaks and the average count only closed sessions of at least one
//     minute;
//   - pages and chapters come from per-book progress through pkg/progress,
//     never from the per-session pages_read column.
package readingstats
