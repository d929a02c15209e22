// Lmsync - LMS Extraction and Identity Harmonization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lmsync

// Package config loads Lmsync configuration with Koanf v2.
//
// Configuration Loading Order:
//  1. Defaults: Built-in defaults for all optional settings
//  2. .env file: Optional dotenv file exported into the process environment
//  3. Config File: Optional YAML config file (config.yaml)
//  4. Environment Variables: Override any setting
//
// Configuration Categories:
//
//  1. Sources: Schoology, Canvas, Google Classroom (LMS) and the Ed-Fi ODS API (SIS)
//  2. Engine: Retry policy, sync schedule, harmonizer
//  3. Infrastructure: DuckDB store, run state store, run events, admin API
//  4. Observability: Logging
//
// Config is immutable after Load() and safe for concurrent read access.
package config

import (
	"time"
)

// Config holds all application configuration.
type Config struct {
	Database   DatabaseConfig   `koanf:"database"`
	Retry      RetryConfig      `koanf:"retry"`
	Sync       SyncConfig       `koanf:"sync"`
	Schoology  SchoologyConfig  `koanf:"schoology"`
	Canvas     CanvasConfig     `koanf:"canvas"`
	Classroom  ClassroomConfig  `koanf:"classroom"`
	EdFi       EdFiConfig       `koanf:"edfi"`
	Harmonizer HarmonizerConfig `koanf:"harmonizer"`
	RunState   RunStateConfig   `koanf:"runstate"`
	Events     EventsConfig     `koanf:"events"`
	API        APIConfig        `koanf:"api"`
	Logging    LoggingConfig    `koanf:"logging"`
}

// DatabaseConfig holds DuckDB settings
type DatabaseConfig struct {
	Path                   string `koanf:"path" validate:"required"`
	MaxMemory              string `koanf:"max_memory" validate:"required"`
	Threads                int    `koanf:"threads" validate:"gte=0"` // Number of DuckDB threads (0 = use NumCPU)
	PreserveInsertionOrder bool   `koanf:"preserve_insertion_order"`

	// CheckpointInterval is how often the WAL is folded into the database
	// file while the service runs. Zero disables periodic checkpoints.
	CheckpointInterval time.Duration `koanf:"checkpoint_interval" validate:"gte=0"`
}

// RetryConfig is the policy applied to every remote page request.
//
// Environment Variables:
//   - RETRY_MAX_ATTEMPTS: total calls per request, first call included (default: 4)
//   - RETRY_WINDOW: retries stop once this much time has passed since the first call (default: 60s)
//   - RETRY_BASE_DELAY: first backoff delay, doubled per attempt (default: 1s)
type RetryConfig struct {
	MaxAttempts int           `koanf:"max_attempts" validate:"min=1,max=20"`
	Window      time.Duration `koanf:"window" validate:"gt=0"`
	BaseDelay   time.Duration `koanf:"base_delay" validate:"gte=0"`
}

// SyncConfig holds scheduling and writer settings.
type SyncConfig struct {
	Interval          time.Duration `koanf:"interval" validate:"gte=0"` // 0 disables the periodic schedule
	RunOnStart        bool          `koanf:"run_on_start"`
	SoftDeleteMissing bool          `koanf:"soft_delete_missing"`
	RequestTimeout    time.Duration `koanf:"request_timeout" validate:"gt=0"`
	RateLimit         float64       `koanf:"rate_limit" validate:"gte=0"` // requests per second per source, 0 = unlimited
	RateBurst         int           `koanf:"rate_burst" validate:"gte=1"`
}

// SchoologyConfig holds Schoology API settings. Authentication is two-legged
// OAuth1 with the PLAINTEXT signature method.
type SchoologyConfig struct {
	Enabled    bool     `koanf:"enabled"`
	Key        string   `koanf:"key" validate:"required_if=Enabled true"`
	Secret     string   `koanf:"secret" validate:"required_if=Enabled true"`
	BaseURL    string   `koanf:"base_url" validate:"httpurl"`
	SectionIDs []string `koanf:"section_ids"`
}

// CanvasConfig holds Canvas LMS settings.
type CanvasConfig struct {
	Enabled     bool     `koanf:"enabled"`
	BaseURL     string   `koanf:"base_url" validate:"required_if=Enabled true,httpurl"`
	AccessToken string   `koanf:"access_token" validate:"required_if=Enabled true"`
	CourseIDs   []string `koanf:"course_ids"`
}

// ClassroomConfig holds Google Classroom settings. CourseIDs empty means all
// courses visible to the token.
type ClassroomConfig struct {
	Enabled     bool     `koanf:"enabled"`
	BaseURL     string   `koanf:"base_url" validate:"httpurl"`
	AccessToken string   `koanf:"access_token" validate:"required_if=Enabled true"`
	CourseIDs   []string `koanf:"course_ids"`
}

// EdFiConfig holds Ed-Fi ODS API settings for the SIS roster feed.
type EdFiConfig struct {
	Enabled  bool   `koanf:"enabled"`
	BaseURL  string `koanf:"base_url" validate:"required_if=Enabled true,httpurl"`
	Key      string `koanf:"key" validate:"required_if=Enabled true"`
	Secret   string `koanf:"secret" validate:"required_if=Enabled true"`
	PageSize int    `koanf:"page_size" validate:"min=1,max=500"`
}

// HarmonizerConfig controls the reconciliation pass that follows each run.
type HarmonizerConfig struct {
	Enabled         bool `koanf:"enabled"`
	SeedDescriptors bool `koanf:"seed_descriptors"`
}

// RunStateConfig holds BadgerDB settings for run history.
type RunStateConfig struct {
	Path         string `koanf:"path"`
	InMemory     bool   `koanf:"in_memory"`
	HistoryLimit int    `koanf:"history_limit" validate:"min=1"`
}

// EventsConfig controls run event publishing. An empty NATSURL keeps events
// on the in-process channel.
type EventsConfig struct {
	Enabled     bool   `koanf:"enabled"`
	NATSURL     string `koanf:"nats_url"`
	TopicPrefix string `koanf:"topic_prefix" validate:"required"`
}

// APIConfig holds admin HTTP API settings.
type APIConfig struct {
	Enabled          bool          `koanf:"enabled"`
	ListenAddr       string        `koanf:"listen_addr" validate:"required_if=Enabled true"`
	JWTSecret        string        `koanf:"jwt_secret"`
	TriggerRateLimit int           `koanf:"trigger_rate_limit" validate:"min=1"` // trigger requests per minute per client
	ShutdownTimeout  time.Duration `koanf:"shutdown_timeout" validate:"gt=0"`
}

// LoggingConfig holds logging settings for zerolog.
//
// Environment Variables:
//   - LOG_LEVEL: trace, debug, info, warn, error (default: info)
//   - LOG_FORMAT: json, console (default: json)
//   - LOG_CALLER: true/false - include caller file:line (default: false)
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// SourceSystems returns the source system labels of the enabled LMS sources,
// in the order they are synced.
func (c *Config) SourceSystems() []string {
	var out []string
	if c.Schoology.Enabled {
		out = append(out, "Schoology")
	}
	if c.Canvas.Enabled {
		out = append(out, "Canvas")
	}
	if c.Classroom.Enabled {
		out = append(out, "Google")
	}
	return out
}

// Load reads configuration from defaults, an optional .env file, an optional
// config file and environment variables. See LoadWithKoanf.
func Load() (*Config, error) {
	return LoadWithKoanf()
}
