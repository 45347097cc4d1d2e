// Package config handles application configuration from environment variables
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/creasty/defaults"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/briangreenhill/formcoach/internal/load"
	"github.com/briangreenhill/formcoach/internal/proposal"
)

const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// Config holds all application configuration
type Config struct {
	Port            string        `env:"PORT" envDefault:"8080"`
	DatabaseURL     string        `env:"DATABASE_URL"`
	RedisAddr       string        `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat       string        `env:"LOG_FORMAT" envDefault:"json"`
	Store           string        `env:"STORE" envDefault:"postgres"`
	ThresholdsFile  string        `env:"THRESHOLDS_FILE"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`

	Worker   WorkerConfig   `envPrefix:"WORKER_"`
	Proposal ProposalConfig `envPrefix:"PROPOSAL_"`
	Move     MoveConfig     `envPrefix:"MOVE_"`
	SMTP     SMTPConfig     `envPrefix:"SMTP_"`
}

type WorkerConfig struct {
	Concurrency int `env:"CONCURRENCY" envDefault:"8"`
}

// ProposalConfig mirrors proposal.Policy.
type ProposalConfig struct {
	TTL                time.Duration `env:"TTL" envDefault:"48h"`
	UrgentWithin       time.Duration `env:"URGENT_WITHIN" envDefault:"12h"`
	OverloadStreakDays int           `env:"OVERLOAD_STREAK_DAYS" envDefault:"3"`
	OpenOnCritical     bool          `env:"OPEN_ON_CRITICAL" envDefault:"true"`
}

func (p ProposalConfig) Policy() proposal.Policy {
	return proposal.Policy{
		TTL:                p.TTL,
		UrgentWithin:       p.UrgentWithin,
		OverloadStreakDays: p.OverloadStreakDays,
		OpenOnCritical:     p.OpenOnCritical,
	}
}

type MoveConfig struct {
	// BlockOnHigh rejects moves that raise a high severity warning.
	BlockOnHigh bool `env:"BLOCK_ON_HIGH" envDefault:"false"`
}

// SMTPConfig is optional; without Addr notices are written to stdout.
type SMTPConfig struct {
	Addr       string `env:"ADDR"`
	From       string `env:"FROM" envDefault:"no-reply@formcoach.local"`
	CoachInbox string `env:"COACH_INBOX"`
}

// Load reads a .env file when present, then the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("reading .env: %w", err)
	}
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.Store {
	case StorePostgres:
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required when STORE=postgres")
		}
	case StoreMemory:
	default:
		return fmt.Errorf("STORE must be %q or %q, got %q", StorePostgres, StoreMemory, c.Store)
	}
	if c.LogFormat != "json" && c.LogFormat != "console" {
		return fmt.Errorf("LOG_FORMAT must be json or console, got %q", c.LogFormat)
	}
	if c.Proposal.TTL <= 0 {
		return fmt.Errorf("PROPOSAL_TTL must be positive, got %s", c.Proposal.TTL)
	}
	if c.Proposal.OverloadStreakDays < 0 {
		return fmt.Errorf("PROPOSAL_OVERLOAD_STREAK_DAYS must not be negative, got %d", c.Proposal.OverloadStreakDays)
	}
	if c.Worker.Concurrency < 1 {
		return fmt.Errorf("WORKER_CONCURRENCY must be at least 1, got %d", c.Worker.Concurrency)
	}
	return nil
}

// HasSMTP returns true if outgoing mail is configured
func (c *Config) HasSMTP() bool {
	return c.SMTP.Addr != ""
}

// Thresholds loads classifier thresholds from ThresholdsFile. Keys missing
// from the file keep their defaults; no file means all defaults.
func (c *Config) Thresholds() (load.Thresholds, error) {
	return LoadThresholds(c.ThresholdsFile)
}

func LoadThresholds(path string) (load.Thresholds, error) {
	var t load.Thresholds
	if err := defaults.Set(&t); err != nil {
		return t, err
	}
	if path == "" {
		return t, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return t, fmt.Errorf("reading thresholds: %w", err)
	}
	if err := yaml.Unmarshal(b, &t); err != nil {
		return t, fmt.Errorf("parsing thresholds %s: %w", path, err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("thresholds %s: %w", path, err)
	}
	return t, nil
}
