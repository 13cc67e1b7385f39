// Package config loads the bot configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"

	"hbdbot/ratelimit"
	"hbdbot/storage"
)

type Config struct {
	Token            string `env:"MISSKEY_TOKEN"`
	Host             string `env:"MISSKEY_HOST" default:"misskey.io"`
	AntennaID        string `env:"ANTENNA_ID"`
	TimelineEndpoint string `env:"TIMELINE_ENDPOINT" default:"notes/timeline"`
	Admin            string `env:"ADMIN"`
	TargetReaction   string `env:"TARGET_REACTION" default:":happy_birth_day__i@.:"`
	ConfusedReaction string `env:"CONFUSED_REACTION" default:":_question_mark:"`
	TimeZone         string `env:"TIME_ZONE" default:"Asia/Tokyo"`

	StorageBucket         string `env:"STORAGE_BUCKET"`
	LocalStoragePath      string `env:"LOCAL_STORAGE_PATH"`
	StateObject           string `env:"STATE_OBJECT" default:"variables.json"`
	GoogleCredentialsJSON string `env:"GOOGLE_CREDENTIALS_JSON"`

	// Loopback by default: /savez is unauthenticated. Set ":8080" behind a trusted proxy.
	StatusAddr string `env:"STATUS_ADDR" default:"127.0.0.1:8080"`
	LogLevel   string `env:"LOG_LEVEL" default:"info"`
	LogFormat  string `env:"LOG_FORMAT" default:"json"`

	Threshold      int  `env:"THRESHOLD" default:"1"`
	BatchSize      int  `env:"BATCH_SIZE" default:"30"`
	LimitPerHour   int  `env:"RATE_LIMIT_PER_HOUR" default:"60"`
	LimitPerMinute int  `env:"RATE_LIMIT_PER_MINUTE" default:"5"`
	PostAttempts   uint `env:"POST_ATTEMPTS" default:"5"`
	Silent         bool `env:"SILENT_MODE" default:"false"`

	RefreshRate      time.Duration `env:"REFRESH_RATE" default:"20s"` // Idle sleep between cycles
	PollRefresh      time.Duration `env:"POLL_REFRESH" default:"1s"`  // Pause after every feed call
	ActionSpacing    time.Duration `env:"ACTION_SPACING" default:"1s"`
	RateMargin       time.Duration `env:"RATE_MARGIN" default:"1s"`
	PostRetryDelay   time.Duration `env:"POST_RETRY_DELAY" default:"60s"`
	AutosaveInterval time.Duration `env:"AUTOSAVE_INTERVAL" default:"1h"`
	RolloverDelay    time.Duration `env:"ROLLOVER_DELAY" default:"60s"`
	HTTPTimeout      time.Duration `env:"HTTP_TIMEOUT" default:"10s"`
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func validate(cfg *Config) error {
	positive := map[string]int{
		"THRESHOLD":             cfg.Threshold,
		"BATCH_SIZE":            cfg.BatchSize,
		"RATE_LIMIT_PER_HOUR":   cfg.LimitPerHour,
		"RATE_LIMIT_PER_MINUTE": cfg.LimitPerMinute,
		"POST_ATTEMPTS":         int(cfg.PostAttempts),
	}
	for name, value := range positive {
		if value < 1 {
			return fmt.Errorf("%s must be at least 1", name)
		}
	}

	if cfg.BatchSize > 100 {
		return errors.New("BATCH_SIZE must be at most 100")
	}
	if cfg.LimitPerMinute > cfg.LimitPerHour {
		return errors.New("RATE_LIMIT_PER_MINUTE must not exceed RATE_LIMIT_PER_HOUR")
	}
	if cfg.AutosaveInterval < time.Minute {
		return errors.New("AUTOSAVE_INTERVAL must be at least 1m")
	}
	if cfg.RefreshRate < 0 || cfg.PollRefresh < 0 || cfg.RolloverDelay < 0 {
		return errors.New("REFRESH_RATE, POLL_REFRESH and ROLLOVER_DELAY must not be negative")
	}
	if cfg.TargetReaction == "" {
		return errors.New("TARGET_REACTION is required")
	}
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return fmt.Errorf("LOG_FORMAT must be json or text, got %q", cfg.LogFormat)
	}

	if _, err := time.LoadLocation(cfg.TimeZone); err != nil {
		return fmt.Errorf("TIME_ZONE is invalid: %w", err)
	}

	cfg.Admin = normalizeHandle(cfg.Admin)

	if cfg.StorageBucket == "" && cfg.LocalStoragePath == "" {
		cfg.LocalStoragePath = "."
	}
	if cfg.StateObject == "" {
		cfg.StateObject = storage.DefaultObject
	}

	return nil
}

// Location returns the time zone of the bot's civil calendar.
// An invalid zone, already rejected by Load, falls back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Limits returns the outbound rate limits.
func (c *Config) Limits() ratelimit.Limits {
	return ratelimit.Limits{
		PerHour:   c.LimitPerHour,
		PerMinute: c.LimitPerMinute,
		Spacing:   c.ActionSpacing,
		Margin:    c.RateMargin,
	}
}

// ApplyDocument fills settings the environment left unset from a saved state
// document. Explicit environment values always win.
func (c *Config) ApplyDocument(doc *storage.Document) {
	fill := func(dst *string, name, saved string) {
		if saved != "" && !explicit(name) {
			*dst = saved
		}
	}
	fill(&c.Token, "MISSKEY_TOKEN", doc.Token)
	fill(&c.Host, "MISSKEY_HOST", doc.Host)
	fill(&c.AntennaID, "ANTENNA_ID", doc.AntennaID)
	fill(&c.Admin, "ADMIN", doc.Admin)
	fill(&c.TargetReaction, "TARGET_REACTION", doc.TargetReaction)
	if doc.Threshold > 0 && !explicit("THRESHOLD") {
		c.Threshold = doc.Threshold
	}
	if doc.BatchSize > 0 && doc.BatchSize <= 100 && !explicit("BATCH_SIZE") {
		c.BatchSize = doc.BatchSize
	}
	if doc.RefreshRate > 0 && !explicit("REFRESH_RATE") {
		c.RefreshRate = time.Duration(doc.RefreshRate * float64(time.Second))
	}
	c.Admin = normalizeHandle(c.Admin)
}

// normalizeHandle strips the mention marker so the admin compares equal to
// hbd.User.Handle.
func normalizeHandle(h string) string {
	return strings.TrimPrefix(strings.TrimSpace(h), "@")
}

// StoreDocument writes the settings that belong in the state document.
func (c *Config) StoreDocument(doc *storage.Document) {
	doc.Token = c.Token
	doc.Host = c.Host
	doc.AntennaID = c.AntennaID
	doc.Admin = c.Admin
	doc.TargetReaction = c.TargetReaction
	doc.Threshold = c.Threshold
	doc.RefreshRate = c.RefreshRate.Seconds()
	doc.BatchSize = c.BatchSize
}

func explicit(name string) bool {
	v, ok := os.LookupEnv(name)
	return ok && v != ""
}

// NewLogger builds the process logger.
// level: "debug", "info", "warn", "error" (defaults to "info")
// format: "json" or "text"
func NewLogger(w io.Writer, level, format string) *slog.Logger {
	var logLevel slog.Level
	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: logLevel}
	if format == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// SetupInstructions explains how to provide the access token.
const SetupInstructions = `No Misskey access token found.

Create a token in Settings > API on your instance with these permissions:
  read:account, write:notes, write:reactions, read:notifications

Then set MISSKEY_TOKEN (environment or .env file) and, optionally,
MISSKEY_HOST, ANTENNA_ID and ADMIN, and start the bot again.`
