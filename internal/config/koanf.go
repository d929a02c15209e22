// Lmsync - LMS Extraction and Identity Harmonization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/lmsync

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in order of priority.
// The first file found will be used.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/lmsync/config.yaml",
	"/etc/lmsync/config.yml",
}

// ConfigPathEnvVar is the environment variable that can override the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// DotenvPathEnvVar overrides the location of the optional .env file.
const DotenvPathEnvVar = "DOTENV_PATH"

// Default API locations for the hosted LMS services.
const (
	DefaultSchoologyURL = "https://api.schoology.com/v1/"
	DefaultClassroomURL = "https://classroom.googleapis.com/v1/"
)

// defaultConfig returns a Config struct with all default values.
// These defaults are applied first, then overridden by config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:                   "/data/lmsync.duckdb",
			MaxMemory:              "1GB",
			Threads:                0,
			PreserveInsertionOrder: true,
			CheckpointInterval:     10 * time.Minute,
		},
		Retry: RetryConfig{
			MaxAttempts: 4,
			Window:      60 * time.Second,
			BaseDelay:   1 * time.Second,
		},
		Sync: SyncConfig{
			Interval:          6 * time.Hour,
			RunOnStart:        true,
			SoftDeleteMissing: true,
			RequestTimeout:    30 * time.Second,
			RateLimit:         5,
			RateBurst:         5,
		},
		Schoology: SchoologyConfig{
			BaseURL:    DefaultSchoologyURL,
			SectionIDs: []string{},
		},
		Canvas: CanvasConfig{
			CourseIDs: []string{},
		},
		Classroom: ClassroomConfig{
			BaseURL:   DefaultClassroomURL,
			CourseIDs: []string{},
		},
		EdFi: EdFiConfig{
			PageSize: 100,
		},
		Harmonizer: HarmonizerConfig{
			Enabled:         true,
			SeedDescriptors: true,
		},
		RunState: RunStateConfig{
			Path:         "/data/runstate",
			InMemory:     false,
			HistoryLimit: 200,
		},
		Events: EventsConfig{
			Enabled:     true,
			NATSURL:     "",
			TopicPrefix: "lmsync",
		},
		API: APIConfig{
			Enabled:          true,
			ListenAddr:       ":8086",
			JWTSecret:        "",
			TriggerRateLimit: 6,
			ShutdownTimeout:  10 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// LoadWithKoanf loads configuration using Koanf v2 with layered sources:
//  1. Defaults: Built-in defaults
//  2. Config File: Optional YAML config file (if exists)
//  3. Environment Variables: Override any setting, including values
//     exported from an optional .env file
func LoadWithKoanf() (*Config, error) {
	if err := loadDotenv(); err != nil {
		return nil, err
	}

	k := koanf.New(".")

	// Layer 1: Load defaults from struct
	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// Layer 2: Load config file (optional)
	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// Layer 3: Load environment variables (highest priority)
	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// loadDotenv exports variables from the .env file into the process
// environment. Variables that are already set are not overwritten.
func loadDotenv() error {
	path := os.Getenv(DotenvPathEnvVar)
	if path == "" {
		path = ".env"
	}
	err := godotenv.Load(path)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("failed to load %s: %w", path, err)
}

// findConfigFile searches for a config file in the default paths.
// Returns the path to the first file found, or empty string if none found.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// sliceConfigPaths defines which config paths should be parsed as comma-separated slices
var sliceConfigPaths = []string{
	"schoology.section_ids",
	"canvas.course_ids",
	"classroom.course_ids",
}

// processSliceFields converts comma-separated string values to slices for known slice fields.
// Env vars come in as strings, but the config expects slices.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		if val == nil {
			continue
		}

		strVal, ok := val.(string)
		if !ok {
			continue
		}

		trimmed := splitList(strVal)
		if err := k.Set(path, trimmed); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// envMappings maps environment variable names (lower-cased) to koanf paths.
// Unmapped variables are ignored so unrelated environment does not leak into
// the configuration.
var envMappings = map[string]string{
	// Database
	"duckdb_path":       "database.path",
	"duckdb_max_memory": "database.max_memory",
	"duckdb_threads":    "database.threads",

	"duckdb_checkpoint_interval": "database.checkpoint_interval",

	// Retry policy
	"retry_max_attempts": "retry.max_attempts",
	"retry_window":       "retry.window",
	"retry_base_delay":   "retry.base_delay",

	// Sync
	"sync_interval":            "sync.interval",
	"sync_run_on_start":        "sync.run_on_start",
	"sync_soft_delete_missing": "sync.soft_delete_missing",
	"sync_request_timeout":     "sync.request_timeout",
	"sync_rate_limit":          "sync.rate_limit",
	"sync_rate_burst":          "sync.rate_burst",

	// Schoology
	"schoology_enabled":     "schoology.enabled",
	"schoology_key":         "schoology.key",
	"schoology_secret":      "schoology.secret",
	"schoology_url":         "schoology.base_url",
	"schoology_section_ids": "schoology.section_ids",

	// Canvas
	"canvas_enabled":      "canvas.enabled",
	"canvas_base_url":     "canvas.base_url",
	"canvas_access_token": "canvas.access_token",
	"canvas_course_ids":   "canvas.course_ids",

	// Google Classroom
	"classroom_enabled":      "classroom.enabled",
	"classroom_url":          "classroom.base_url",
	"classroom_access_token": "classroom.access_token",
	"classroom_course_ids":   "classroom.course_ids",

	// Ed-Fi ODS API
	"edfi_enabled":   "edfi.enabled",
	"edfi_base_url":  "edfi.base_url",
	"edfi_key":       "edfi.key",
	"edfi_secret":    "edfi.secret",
	"edfi_page_size": "edfi.page_size",

	// Harmonizer
	"harmonizer_enabled":          "harmonizer.enabled",
	"harmonizer_seed_descriptors": "harmonizer.seed_descriptors",

	// Run state
	"runstate_path":          "runstate.path",
	"runstate_in_memory":     "runstate.in_memory",
	"runstate_history_limit": "runstate.history_limit",

	// Events
	"events_enabled":      "events.enabled",
	"events_nats_url":     "events.nats_url",
	"events_topic_prefix": "events.topic_prefix",

	// Admin API
	"api_enabled":            "api.enabled",
	"api_listen_addr":        "api.listen_addr",
	"jwt_secret":             "api.jwt_secret",
	"api_trigger_rate_limit": "api.trigger_rate_limit",
	"api_shutdown_timeout":   "api.shutdown_timeout",

	// Logging
	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",
}

// envTransformFunc transforms environment variable names to koanf config paths.
//
// Examples:
//   - SCHOOLOGY_KEY -> schoology.key
//   - DUCKDB_PATH -> database.path
//   - RETRY_WINDOW -> retry.window
func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}
