package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
)

// Config is loaded once at process start from the environment.
type Config struct {
	Env         string `env:"ENV" envDefault:"local" validate:"required,oneof=local staging production"`
	MetricsPort string `env:"METRICS_PORT" envDefault:"9090"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info" validate:"required,oneof=debug info warn error"`

	MongoURI      string `env:"MONGO_URI,required" validate:"required"`
	MongoDatabase string `env:"MONGO_DATABASE" envDefault:"distjob" validate:"required"`

	// Concurrency is the number of worker sessions run per process.
	Concurrency int `env:"WORKER_CONCURRENCY" envDefault:"5" validate:"min=1,max=100"`

	// LockDurationMS is the default per-type lock duration, in milliseconds.
	LockDurationMS int `env:"LOCK_DURATION_MS" envDefault:"60000" validate:"min=1000"`

	// DefaultPriority and DefaultConcurrency seed job.priority / job.concurrency
	// for schedule() calls that omit them.
	DefaultPriority    int `env:"DEFAULT_PRIORITY" envDefault:"10"`
	DefaultConcurrency int `env:"DEFAULT_CONCURRENCY" envDefault:"1"`

	// IdleTimeMS is the delay before an idle worker session rearms a scan.
	IdleTimeMS int `env:"IDLE_TIME_MS" envDefault:"5000" validate:"min=100"`

	// JWTSecret guards mutating routes on the HTTP control plane.
	JWTSecret string `env:"JWT_SECRET" validate:"required_if=Env production,required_if=Env staging"`

	NotifyResendAPIKey string `env:"NOTIFY_RESEND_API_KEY" validate:"required_if=Env production,required_if=Env staging"`
	NotifyResendFrom   string `env:"NOTIFY_RESEND_FROM" validate:"required_if=Env production,required_if=Env staging"`

	// BootstrapJobsJSON is a JSON array of jobs to schedule on startup
	// (duplicates ignored), the "jobs" configuration key.
	BootstrapJobsJSON string `env:"BOOTSTRAP_JOBS"`
}

// BootstrapJob is one entry of the BOOTSTRAP_JOBS configuration key: a job
// to schedule on startup, in the same shape as scheduler.ScheduleInput.
type BootstrapJob struct {
	ID          string         `json:"id"`
	Type        string         `json:"type"`
	Schedule    string         `json:"schedule"`
	Priority    *int           `json:"priority"`
	Concurrency *int           `json:"concurrency"`
	Data        map[string]any `json:"data"`
}

func Load() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// SlogLevel converts the LOG_LEVEL string to a slog.Level.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (c *Config) LockDuration() time.Duration {
	return time.Duration(c.LockDurationMS) * time.Millisecond
}

func (c *Config) IdleTime() time.Duration {
	return time.Duration(c.IdleTimeMS) * time.Millisecond
}

// BootstrapJobs parses BOOTSTRAP_JOBS into the list of jobs to schedule at
// startup. An unset or empty value yields no jobs.
func (c *Config) BootstrapJobs() ([]BootstrapJob, error) {
	if c.BootstrapJobsJSON == "" {
		return nil, nil
	}
	var jobs []BootstrapJob
	if err := json.Unmarshal([]byte(c.BootstrapJobsJSON), &jobs); err != nil {
		return nil, fmt.Errorf("parse BOOTSTRAP_JOBS: %w", err)
	}
	return jobs, nil
}
