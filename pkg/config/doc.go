// Package config loads typed configuration structs from environment
// variables.
//
// Fields are described with github.com/caarlos0/env tags. A .env file in the
// working directory, when present, is read once via github.com/joho/godotenv
// before the first parse; variables already set in the environment win.
//
//	type ReaperConfig struct {
//	    AbandonedAfter time.Duration `env:"READING_ABANDONED_AFTER" envDefault:"2h"`
//	}
//
//	var cfg ReaperConfig
//	if err := config.Load(&cfg); err != nil {
//	    return err
//	}
//
// Load caches the parsed value per type so that every package asking for the
// same struct sees identical settings. Parse skips the cache, which is what
// tests that manipulate the environment want.
//
// A struct implementing Validator has its Validate method called after
// parsing; a failure is reported wrapped in ErrInvalidConfig.
package config
