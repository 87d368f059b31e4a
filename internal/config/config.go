package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/park285/cheese-arena/internal/match"
	"github.com/park285/cheese-arena/internal/obslog"
)

type AppConfig struct {
	ListenAddr string `yaml:"listen_addr" env:"LISTEN_ADDR"`

	// An empty RedisURL keeps sessions and events in process.
	RedisURL         string        `yaml:"redis_url" env:"REDIS_URL"`
	DatabaseURL      string        `yaml:"database_url" env:"DATABASE_URL"`
	RatingWebhookURL string        `yaml:"rating_webhook_url" env:"RATING_WEBHOOK_URL"`
	SessionRetention time.Duration `yaml:"session_retention" env:"SESSION_RETENTION"`

	PresenceGrace       time.Duration `yaml:"presence_grace" env:"PRESENCE_GRACE"`
	ConfirmGrace        time.Duration `yaml:"confirm_grace" env:"CONFIRM_GRACE"`
	MaxPause            time.Duration `yaml:"max_pause" env:"MAX_PAUSE"`
	NegotiationTTL      time.Duration `yaml:"negotiation_ttl" env:"NEGOTIATION_TTL"`
	LockTimeout         time.Duration `yaml:"lock_timeout" env:"LOCK_TIMEOUT"`
	SweepInterval       time.Duration `yaml:"sweep_interval" env:"SWEEP_INTERVAL"`
	CasualUndoAllowance int           `yaml:"casual_undo_allowance" env:"CASUAL_UNDO_ALLOWANCE"`

	AllowedOrigins []string `yaml:"allowed_origins" env:"ALLOWED_ORIGINS" envSeparator:","`
	MessagesDir    string   `yaml:"messages_dir" env:"MESSAGES_DIR"`

	Log obslog.Options `yaml:"log" envPrefix:"LOG_"`
}

func defaults() *AppConfig {
	m := match.DefaultConfig()
	return &AppConfig{
		ListenAddr:          ":8080",
		SessionRetention:    24 * time.Hour,
		PresenceGrace:       m.PresenceGrace,
		ConfirmGrace:        m.ConfirmGrace,
		MaxPause:            m.MaxPause,
		NegotiationTTL:      m.NegotiationTTL,
		LockTimeout:         m.LockTimeout,
		SweepInterval:       2 * time.Second,
		CasualUndoAllowance: m.CasualUndoAllowance,
		Log:                 obslog.DefaultOptions(),
	}
}

// Load builds the config from defaults, then the YAML file named by
// CONFIG_FILE, then the environment.
func Load() (*AppConfig, error) {
	cfg := defaults()
	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		if err := loadFile(path, cfg); err != nil {
			return nil, err
		}
	}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	cfg.RedisURL = strings.TrimSpace(cfg.RedisURL)
	cfg.DatabaseURL = strings.TrimSpace(cfg.DatabaseURL)
	cfg.RatingWebhookURL = strings.TrimSpace(cfg.RatingWebhookURL)
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *AppConfig) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *AppConfig) validate() error {
	if strings.TrimSpace(c.ListenAddr) == "" {
		return errors.New("LISTEN_ADDR is required")
	}
	for name, d := range map[string]time.Duration{
		"PRESENCE_GRACE":  c.PresenceGrace,
		"CONFIRM_GRACE":   c.ConfirmGrace,
		"MAX_PAUSE":       c.MaxPause,
		"NEGOTIATION_TTL": c.NegotiationTTL,
		"LOCK_TIMEOUT":    c.LockTimeout,
		"SWEEP_INTERVAL":  c.SweepInterval,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, d)
		}
	}
	if c.SessionRetention < 0 {
		return fmt.Errorf("SESSION_RETENTION must not be negative, got %s", c.SessionRetention)
	}
	if c.CasualUndoAllowance < 0 {
		return fmt.Errorf("CASUAL_UNDO_ALLOWANCE must not be negative, got %d", c.CasualUndoAllowance)
	}
	if c.SweepInterval > c.ConfirmGrace {
		return fmt.Errorf("SWEEP_INTERVAL (%s) must not exceed CONFIRM_GRACE (%s)", c.SweepInterval, c.ConfirmGrace)
	}
	return nil
}

// Match returns the orchestrator settings.
func (c *AppConfig) Match() match.Config {
	return match.Config{
		PresenceGrace:       c.PresenceGrace,
		ConfirmGrace:        c.ConfirmGrace,
		MaxPause:            c.MaxPause,
		NegotiationTTL:      c.NegotiationTTL,
		LockTimeout:         c.LockTimeout,
		CasualUndoAllowance: c.CasualUndoAllowance,
	}
}
