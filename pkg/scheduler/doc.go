// Package scheduler runs idempotent in-process jobs on fixed schedules.
//
// Jobs are plain functions. A job runs on the first check after Start and
// then whenever its schedule comes due. A job never overlaps with itself; a
// run that is still in progress when the job comes due again is skipped.
// Errors and panics are logged and counted, and the job is retried at its
// next due time, so a failing job never stops the scheduler.
//
//	s := scheduler.New(scheduler.WithLogger(log))
//	_ = s.Add("reaper.abandoned", scheduler.Every(5*time.Minute), reaper.Job(policy))
//	err := s.Start(ctx) // blocks until ctx is done
package scheduler
