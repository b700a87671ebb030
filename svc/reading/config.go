package reading

import (
	"errors"
	"time"
)

// Config tunes the lifecycle engine.
type Config struct {
	CacheTTL           time.Duration `env:"READING_CACHE_TTL" envDefault:"1h"`
	FlushInterval      time.Duration `env:"READING_FLUSH_INTERVAL" envDefault:"5s"`
	FlushThreshold     int           `env:"READING_FLUSH_THRESHOLD" envDefault:"100"`
	AbandonedAfter     time.Duration `env:"READING_ABANDONED_AFTER" envDefault:"2h"`
	CrashRecoveryAfter time.Duration `env:"READING_CRASH_RECOVERY_AFTER" envDefault:"24h"`
	SweepInterval      time.Duration `env:"READING_SWEEP_INTERVAL" envDefault:"5m"`
	MaxPageSize        int           `env:"READING_MAX_PAGE_SIZE" envDefault:"100"`
	MaxBatchSize       int           `env:"READING_MAX_BATCH_SIZE" envDefault:"500"`
	WriteBackDisabled  bool          `env:"READING_WRITEBACK_DISABLED" envDefault:"false"`
}

// DefaultConfig mirrors the env defaults.
func DefaultConfig() Config {
	return Config{
		CacheTTL:           time.Hour,
		FlushInterval:      5 * time.Second,
		FlushThreshold:     100,
		AbandonedAfter:     2 * time.Hour,
		CrashRecoveryAfter: 24 * time.Hour,
		SweepInterval:      5 * time.Minute,
		MaxPageSize:        100,
		MaxBatchSize:       500,
	}
}

// Validate implements config.Validator.
func (c Config) Validate() error {
	var errs []error
	if c.FlushInterval <= 0 {
		errs = append(errs, errors.New("READING_FLUSH_INTERVAL must be positive"))
	}
	if c.FlushThreshold < 1 {
		errs = append(errs, errors.New("READING_FLUSH_THRESHOLD must be at least 1"))
	}
	if c.AbandonedAfter <= 0 || c.CrashRecoveryAfter <= 0 {
		errs = append(errs, errors.New("reaper thresholds must be positive"))
	}
	if c.CrashRecoveryAfter < c.AbandonedAfter {
		errs = append(errs, errors.New("READING_CRASH_RECOVERY_AFTER must not be shorter than READING_ABANDONED_AFTER"))
	}
	if c.SweepInterval <= 0 {
		errs = append(errs, errors.New("READING_SWEEP_INTERVAL must be positive"))
	}
	if c.MaxPageSize < 1 || c.MaxBatchSize < 1 {
		errs = append(errs, errors.New("page and batch limits must be at least 1"))
	}
	return errors.Join(errs...)
}
