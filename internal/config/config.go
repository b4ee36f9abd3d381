// Package config defines the configuration for the CineLog notifier daemon.
// Configuration is loaded once at process initialization and is immutable
// thereafter, following 12-Factor principles: values come from the OS
// environment, optionally seeded from a .env file for local development.
//
// Any missing required value or invalid format causes startup to fail fast.
package config

import (
	"time"

	"cinelog/internal/types"
)

// SecretString is an alias for types.SecretString, the redacted secret type
// used for credentials so they never appear in logs or serialized config.
type SecretString = types.SecretString

// Config is the top-level configuration for the notifier daemon. It is
// populated once during startup and never modified. Components receive only
// the subsets they need.
type Config struct {
	Environment string `envconfig:"APP_ENV" default:"local" validate:"required,oneof=local dev staging prod"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	Server   ServerConfig
	Database DatabaseConfig
	TMDB     TMDBConfig
	Jobs     JobsConfig
}

// ServerConfig holds the ops HTTP listener settings. This is the daemon's
// operational surface (health, task status, manual triggers), not the
// product API.
type ServerConfig struct {
	Port            string        `envconfig:"OPS_PORT" default:"8081"`
	ShutdownTimeout time.Duration `envconfig:"OPS_SHUTDOWN_TIMEOUT" default:"10s"`
}

// DatabaseConfig holds database connection and pool tuning parameters.
type DatabaseConfig struct {
	URL SecretString `envconfig:"DATABASE_URL" validate:"required"`

	MaxConns          int           `envconfig:"DB_MAX_CONNS" default:"5"`
	MinConns          int           `envconfig:"DB_MIN_CONNS" default:"1"`
	MaxConnLifetime   time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	HealthCheckPeriod time.Duration `envconfig:"DB_HEALTH_CHECK_PERIOD" default:"1m"`
}

// TMDBConfig holds the movie-metadata provider settings. WatchRegion scopes
// watch-provider lookups to a single country's catalog.
type TMDBConfig struct {
	APIKey      SecretString  `envconfig:"TMDB_API_KEY" validate:"required"`
	BaseURL     string        `envconfig:"TMDB_BASE_URL" default:"https://api.themoviedb.org/3" validate:"url"`
	WatchRegion string        `envconfig:"TMDB_WATCH_REGION" default:"BR" validate:"len=2"`
	Timeout     time.Duration `envconfig:"TMDB_TIMEOUT" default:"15s"`
}

// JobsConfig holds the cadences and thresholds for the three notification
// jobs. All schedules are UTC wall-clock times.
//
// ReminderMinWait is how long a watch-later movie must sit untouched before
// it qualifies for a reminder. The product copy says "about a month"; the
// default reflects that, and tests override it to exercise the job without
// waiting.
type JobsConfig struct {
	StreamingHour   int `envconfig:"JOB_STREAMING_HOUR_UTC" default:"3" validate:"min=0,max=23"`
	ReminderHour    int `envconfig:"JOB_REMINDER_HOUR_UTC" default:"3" validate:"min=0,max=23"`
	DirectorWeekday int `envconfig:"JOB_DIRECTOR_WEEKDAY" default:"1" validate:"min=0,max=6"` // 0=Sunday
	DirectorHour    int `envconfig:"JOB_DIRECTOR_HOUR_UTC" default:"10" validate:"min=0,max=23"`

	ReminderMinWait      time.Duration `envconfig:"JOB_REMINDER_MIN_WAIT" default:"720h"`
	ReminderBatchSize    int           `envconfig:"JOB_REMINDER_BATCH_SIZE" default:"3" validate:"min=1"`
	StreamingDedupWindow time.Duration `envconfig:"JOB_STREAMING_DEDUP_WINDOW" default:"168h"`
	DirectorMinRating    float64       `envconfig:"JOB_DIRECTOR_MIN_RATING" default:"4"`
	RunLockTTL           time.Duration `envconfig:"JOB_RUN_LOCK_TTL" default:"1h"`
}
