package config

import (
	"bytes"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

const (
	minCollectionIntervalSeconds = 1
	maxCollectionIntervalSeconds = 3600
	minComputeIntervalSeconds    = 1
	maxComputeIntervalSeconds    = 86400
	minBrightnessBins            = 1
	maxBrightnessBins            = 5
	minClockTicksPerSecond       = 1
	maxClockTicksPerSecond       = 10000
	minRetentionDays             = 1
	maxRetentionDays             = 3650
	minCleanupIntervalHours      = 1
	maxCleanupIntervalHours      = 720
)

// Environment variables that override the file.
const (
	EnvDBPath          = "BATTERY_STATS_DB_PATH"
	EnvSnapshotPath    = "BATTERY_STATS_SNAPSHOT_PATH"
	EnvEventLogPath    = "BATTERY_STATS_EVENT_LOG_PATH"
	EnvProfilePath     = "BATTERY_STATS_PROFILE_PATH"
	EnvAPIAddr         = "BATTERY_STATS_API_ADDR"
	EnvAPIDebug        = "BATTERY_STATS_API_DEBUG"
	EnvDatabaseURL     = "BATTERY_STATS_DATABASE_URL"
	EnvComputeInterval = "BATTERY_STATS_COMPUTE_INTERVAL"
)

// DotEnvPath is read, if present, before environment overrides apply.
var DotEnvPath = ".env"

type Config struct {
	Storage    StorageConfig    `toml:"storage"`
	Profile    ProfileConfig    `toml:"profile"`
	Collection CollectionConfig `toml:"collection"`
	Cleanup    CleanupConfig    `toml:"cleanup"`
	API        APIConfig        `toml:"api"`
	Export     ExportConfig     `toml:"export"`
}

type StorageConfig struct {
	DBPath       string `toml:"db_path"`
	SnapshotPath string `toml:"snapshot_path"`
	EventLogPath string `toml:"event_log_path"`
}

type ProfileConfig struct {
	Path string `toml:"path"`
}

type CollectionConfig struct {
	IntervalSeconds        int `toml:"interval_seconds"`
	ComputeIntervalSeconds int `toml:"compute_interval_seconds"`
	BrightnessBins         int `toml:"brightness_bins"`
	ClockTicksPerSecond    int `toml:"clock_ticks_per_second"`
}

type CleanupConfig struct {
	RetentionDays int `toml:"retention_days"`
	IntervalHours int `toml:"interval_hours"`
}

type APIConfig struct {
	// ListenAddr is host:port; empty disables the HTTP API.
	ListenAddr string `toml:"listen_addr"`
	Debug      bool   `toml:"debug"`
}

type ExportConfig struct {
	// DatabaseURL enables Postgres export when set.
	DatabaseURL string `toml:"database_url"`
}

func DefaultConfig() *Config {
	return &Config{
		Storage: StorageConfig{
			DBPath:       "/var/lib/battery-stats/history.db",
			SnapshotPath: "/var/lib/battery-stats/battery_stats.json",
			EventLogPath: "/var/lib/battery-stats/events.jsonl",
		},
		Profile: ProfileConfig{
			Path: "/etc/battery-stats/power_average.json",
		},
		Collection: CollectionConfig{
			IntervalSeconds:        5,
			ComputeIntervalSeconds: 60,
			BrightnessBins:         5,
			ClockTicksPerSecond:    100,
		},
		Cleanup: CleanupConfig{
			RetentionDays: 30,
			IntervalHours: 24,
		},
		API: APIConfig{
			ListenAddr: "127.0.0.1:4100",
		},
	}
}

// Load reads the TOML file at path over the defaults, then applies
// environment overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	applyEnv(cfg)
	return NormalizeAndValidate(cfg)
}

// FromEnv builds a config from the defaults and environment overrides only.
func FromEnv() (*Config, error) {
	cfg := DefaultConfig()
	applyEnv(cfg)
	return NormalizeAndValidate(cfg)
}

func applyEnv(cfg *Config) {
	// A missing .env is normal.
	_ = godotenv.Load(DotEnvPath)

	cfg.Storage.DBPath = getEnv(EnvDBPath, cfg.Storage.DBPath)
	cfg.Storage.SnapshotPath = getEnv(EnvSnapshotPath, cfg.Storage.SnapshotPath)
	cfg.Storage.EventLogPath = getEnv(EnvEventLogPath, cfg.Storage.EventLogPath)
	cfg.Profile.Path = getEnv(EnvProfilePath, cfg.Profile.Path)
	cfg.API.ListenAddr = getEnv(EnvAPIAddr, cfg.API.ListenAddr)
	cfg.API.Debug = getEnvBool(EnvAPIDebug, cfg.API.Debug)
	cfg.Export.DatabaseURL = getEnv(EnvDatabaseURL, cfg.Export.DatabaseURL)

	interval := time.Duration(cfg.Collection.ComputeIntervalSeconds) * time.Second
	cfg.Collection.ComputeIntervalSeconds = int(getEnvDuration(EnvComputeInterval, interval) / time.Second)
}

func NormalizeAndValidate(cfg *Config) (*Config, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}

	sanitized := *cfg

	paths := []struct {
		name  string
		value *string
	}{
		{"storage.db_path", &sanitized.Storage.DBPath},
		{"storage.snapshot_path", &sanitized.Storage.SnapshotPath},
		{"storage.event_log_path", &sanitized.Storage.EventLogPath},
		{"profile.path", &sanitized.Profile.Path},
	}
	for _, p := range paths {
		cleaned, err := sanitizePath(p.name, *p.value)
		if err != nil {
			return nil, err
		}
		*p.value = cleaned
	}

	ranges := []struct {
		name     string
		value    int
		min, max int
	}{
		{"collection.interval_seconds", sanitized.Collection.IntervalSeconds, minCollectionIntervalSeconds, maxCollectionIntervalSeconds},
		{"collection.compute_interval_seconds", sanitized.Collection.ComputeIntervalSeconds, minComputeIntervalSeconds, maxComputeIntervalSeconds},
		{"collection.brightness_bins", sanitized.Collection.BrightnessBins, minBrightnessBins, maxBrightnessBins},
		{"collection.clock_ticks_per_second", sanitized.Collection.ClockTicksPerSecond, minClockTicksPerSecond, maxClockTicksPerSecond},
		{"cleanup.retention_days", sanitized.Cleanup.RetentionDays, minRetentionDays, maxRetentionDays},
		{"cleanup.interval_hours", sanitized.Cleanup.IntervalHours, minCleanupIntervalHours, maxCleanupIntervalHours},
	}
	for _, r := range ranges {
		if err := validateRange(r.name, r.value, r.min, r.max); err != nil {
			return nil, err
		}
	}

	sanitized.API.ListenAddr = strings.TrimSpace(sanitized.API.ListenAddr)
	if sanitized.API.ListenAddr != "" {
		if _, _, err := net.SplitHostPort(sanitized.API.ListenAddr); err != nil {
			return nil, fmt.Errorf("api.listen_addr must be host:port, got %q", cfg.API.ListenAddr)
		}
	}
	sanitized.Export.DatabaseURL = strings.TrimSpace(sanitized.Export.DatabaseURL)

	return &sanitized, nil
}

func Save(path string, cfg *Config) error {
	trimmedPath := strings.TrimSpace(path)
	if trimmedPath == "" {
		return fmt.Errorf("config path must not be empty")
	}

	sanitized, err := NormalizeAndValidate(cfg)
	if err != nil {
		return err
	}

	var data bytes.Buffer
	if err := toml.NewEncoder(&data).Encode(sanitized); err != nil {
		return fmt.Errorf("encode config TOML: %w", err)
	}

	dir := filepath.Dir(trimmedPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	tmpFile, err := os.CreateTemp(dir, ".config-*.toml")
	if err != nil {
		return fmt.Errorf("create temp config file: %w", err)
	}
	tmpPath := tmpFile.Name()
	defer func() {
		if tmpPath != "" {
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data.Bytes()); err != nil {
		_ = tmpFile.Close()
		return fmt.Errorf("write temp config file: %w", err)
	}
	if err := tmpFile.Chmod(0o644); err != nil {
		_ = tmpFile.Close()
		return fmt.Errorf("chmod temp config file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("close temp config file: %w", err)
	}
	if err := os.Rename(tmpPath, trimmedPath); err != nil {
		return fmt.Errorf("replace config file: %w", err)
	}
	tmpPath = ""

	return nil
}

func sanitizePath(name, value string) (string, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "", fmt.Errorf("%s must not be empty", name)
	}
	cleaned := filepath.Clean(trimmed)
	if !filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("%s must be an absolute path, got %q", name, value)
	}
	return cleaned, nil
}

func validateRange(name string, value, min, max int) error {
	if value < min || value > max {
		return fmt.Errorf("%s must be between %d and %d, got %d", name, min, max, value)
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		b, err := strconv.ParseBool(value)
		if err == nil {
			return b
		}
	}
	return defaultValue
}

// getEnvDuration accepts a Go duration ("90s") or a bare number of seconds.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if n, err := strconv.Atoi(value); err == nil {
		return time.Duration(n) * time.Second
	}
	return defaultValue
}
