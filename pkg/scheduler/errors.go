package scheduler

import "errors"

var (
	// ErrJobAlreadyRegistered is returned when a job name is reused
	ErrJobAlreadyRegistered = errors.New("job already registered")

	// ErrJobNotFound is returned by RunNow for an unknown job
	ErrJobNotFound = errors.New("job not found")

	// ErrNilJob is returned when registering a nil job function
	ErrNilJob = errors.New("job function cannot be nil")

	// ErrInvalidSchedule is returned for a nil or non-advancing schedule
	ErrInvalidSchedule = errors.New("invalid schedule")

	// ErrNoJobs is returned by Start when nothing is registered
	ErrNoJobs = errors.New("scheduler has no registered jobs")

	// ErrJobRunning is returned by RunNow while the job is already running
	ErrJobRunning = errors.New("job is already running")

	// ErrJobPanicked wraps a recovered panic
	ErrJobPanicked = errors.New("job panicked")
)
