package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeTempConfig(t *testing.T, contents string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

// isolateEnv points the .env lookup at an empty directory and clears every
// override for the duration of the test.
func isolateEnv(t *testing.T) {
	t.Helper()

	old := DotEnvPath
	DotEnvPath = filepath.Join(t.TempDir(), ".env")
	t.Cleanup(func() { DotEnvPath = old })

	for _, key := range []string{
		EnvDBPath, EnvSnapshotPath, EnvEventLogPath, EnvProfilePath,
		EnvAPIAddr, EnvAPIDebug, EnvDatabaseURL, EnvComputeInterval,
	} {
		t.Setenv(key, "")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Storage.DBPath != "/var/lib/battery-stats/history.db" {
		t.Fatalf("unexpected DBPath: %q", cfg.Storage.DBPath)
	}
	if cfg.Storage.SnapshotPath != "/var/lib/battery-stats/battery_stats.json" {
		t.Fatalf("unexpected SnapshotPath: %q", cfg.Storage.SnapshotPath)
	}
	if cfg.Storage.EventLogPath != "/var/lib/battery-stats/events.jsonl" {
		t.Fatalf("unexpected EventLogPath: %q", cfg.Storage.EventLogPath)
	}
	if cfg.Profile.Path != "/etc/battery-stats/power_average.json" {
		t.Fatalf("unexpected Profile.Path: %q", cfg.Profile.Path)
	}
	if cfg.Collection.IntervalSeconds != 5 {
		t.Fatalf("unexpected IntervalSeconds: %d", cfg.Collection.IntervalSeconds)
	}
	if cfg.Collection.ComputeIntervalSeconds != 60 {
		t.Fatalf("unexpected ComputeIntervalSeconds: %d", cfg.Collection.ComputeIntervalSeconds)
	}
	if cfg.Collection.BrightnessBins != 5 {
		t.Fatalf("unexpected BrightnessBins: %d", cfg.Collection.BrightnessBins)
	}
	if cfg.Collection.ClockTicksPerSecond != 100 {
		t.Fatalf("unexpected ClockTicksPerSecond: %d", cfg.Collection.ClockTicksPerSecond)
	}
	if cfg.Cleanup.RetentionDays != 30 {
		t.Fatalf("unexpected RetentionDays: %d", cfg.Cleanup.RetentionDays)
	}
	if cfg.API.ListenAddr != "127.0.0.1:4100" {
		t.Fatalf("unexpected ListenAddr: %q", cfg.API.ListenAddr)
	}
	if cfg.Export.DatabaseURL != "" {
		t.Fatalf("unexpected DatabaseURL: %q", cfg.Export.DatabaseURL)
	}
}

func TestLoad_OverridesAndKeepsDefaults(t *testing.T) {
	isolateEnv(t)
	path := writeTempConfig(t, `
[storage]
db_path = "/tmp/test.db"

[collection]
interval_seconds = 8
brightness_bins = 3
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Storage.DBPath != "/tmp/test.db" {
		t.Fatalf("DBPath = %q, want /tmp/test.db", cfg.Storage.DBPath)
	}
	if cfg.Storage.SnapshotPath != "/var/lib/battery-stats/battery_stats.json" {
		t.Fatalf("SnapshotPath = %q, want default", cfg.Storage.SnapshotPath)
	}
	if cfg.Collection.IntervalSeconds != 8 {
		t.Fatalf("IntervalSeconds = %d, want 8", cfg.Collection.IntervalSeconds)
	}
	if cfg.Collection.BrightnessBins != 3 {
		t.Fatalf("BrightnessBins = %d, want 3", cfg.Collection.BrightnessBins)
	}
	if cfg.Collection.ComputeIntervalSeconds != 60 {
		t.Fatalf("ComputeIntervalSeconds = %d, want default 60", cfg.Collection.ComputeIntervalSeconds)
	}
	if cfg.Cleanup.IntervalHours != 24 {
		t.Fatalf("IntervalHours = %d, want default 24", cfg.Cleanup.IntervalHours)
	}
}

func TestLoad_EnvironmentOverridesFile(t *testing.T) {
	isolateEnv(t)
	path := writeTempConfig(t, `
[storage]
db_path = "/tmp/file.db"

[api]
listen_addr = "127.0.0.1:9000"
`)
	t.Setenv(EnvDBPath, "/tmp/env.db")
	t.Setenv(EnvAPIAddr, "0.0.0.0:4200")
	t.Setenv(EnvAPIDebug, "true")
	t.Setenv(EnvDatabaseURL, " postgres://localhost/battery ")
	t.Setenv(EnvComputeInterval, "2m")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Storage.DBPath != "/tmp/env.db" {
		t.Fatalf("DBPath = %q, want /tmp/env.db", cfg.Storage.DBPath)
	}
	if cfg.API.ListenAddr != "0.0.0.0:4200" || !cfg.API.Debug {
		t.Fatalf("API = %+v, want env addr with debug", cfg.API)
	}
	if cfg.Export.DatabaseURL != "postgres://localhost/battery" {
		t.Fatalf("DatabaseURL = %q, want trimmed env value", cfg.Export.DatabaseURL)
	}
	if cfg.Collection.ComputeIntervalSeconds != 120 {
		t.Fatalf("ComputeIntervalSeconds = %d, want 120", cfg.Collection.ComputeIntervalSeconds)
	}
}

func TestFromEnv_DotEnvFile(t *testing.T) {
	isolateEnv(t)
	// godotenv does not override variables that are already set, even empty
	// ones, so drop the placeholders isolateEnv created for these two.
	os.Unsetenv(EnvProfilePath)
	os.Unsetenv(EnvComputeInterval)
	t.Cleanup(func() {
		os.Unsetenv(EnvProfilePath)
		os.Unsetenv(EnvComputeInterval)
	})
	if err := os.WriteFile(DotEnvPath, []byte(EnvProfilePath+"=/opt/profile.toml\n"+EnvComputeInterval+"=30\n"), 0o644); err != nil {
		t.Fatalf("write .env: %v", err)
	}

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv() error = %v", err)
	}
	if cfg.Profile.Path != "/opt/profile.toml" {
		t.Fatalf("Profile.Path = %q, want /opt/profile.toml", cfg.Profile.Path)
	}
	if cfg.Collection.ComputeIntervalSeconds != 30 {
		t.Fatalf("ComputeIntervalSeconds = %d, want 30", cfg.Collection.ComputeIntervalSeconds)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "does-not-exist.toml"))
	if err == nil {
		t.Fatal("Load() error = nil, want missing file error")
	}
	if !os.IsNotExist(err) {
		t.Fatalf("Load() error = %v, want not-exist error", err)
	}
}

func TestLoad_InvalidTOML(t *testing.T) {
	path := writeTempConfig(t, "not = [valid")
	_, err := Load(path)
	if err == nil {
		t.Fatal("Load() error = nil, want TOML parse error")
	}
}

func TestLoad_ValidationErrors(t *testing.T) {
	isolateEnv(t)

	tests := []struct {
		name       string
		contents   string
		wantErrSub string
	}{
		{
			name: "interval_seconds out of range",
			contents: `
[collection]
interval_seconds = 0
`,
			wantErrSub: "collection.interval_seconds must be between 1 and 3600, got 0",
		},
		{
			name: "brightness_bins out of range",
			contents: `
[collection]
brightness_bins = 6
`,
			wantErrSub: "collection.brightness_bins must be between 1 and 5, got 6",
		},
		{
			name: "clock ticks out of range",
			contents: `
[collection]
clock_ticks_per_second = 0
`,
			wantErrSub: "collection.clock_ticks_per_second must be between",
		},
		{
			name: "retention_days out of range",
			contents: `
[cleanup]
retention_days = 0
`,
			wantErrSub: "cleanup.retention_days must be between",
		},
		{
			name: "relative snapshot path",
			contents: `
[storage]
snapshot_path = "stats.json"
`,
			wantErrSub: "storage.snapshot_path must be an absolute path",
		},
		{
			name: "empty profile path",
			contents: `
[profile]
path = "  "
`,
			wantErrSub: "profile.path must not be empty",
		},
		{
			name: "bad listen addr",
			contents: `
[api]
listen_addr = "localhost"
`,
			wantErrSub: "api.listen_addr must be host:port",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeTempConfig(t, tt.contents)

			_, err := Load(path)
			if err == nil {
				t.Fatalf("Load() error = nil, want error containing %q", tt.wantErrSub)
			}
			if !strings.Contains(err.Error(), tt.wantErrSub) {
				t.Fatalf("Load() error = %q, want contains %q", err.Error(), tt.wantErrSub)
			}
		})
	}
}

func TestLoad_EmptyListenAddrDisablesAPI(t *testing.T) {
	isolateEnv(t)
	path := writeTempConfig(t, `
[api]
listen_addr = ""
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.API.ListenAddr != "" {
		t.Fatalf("ListenAddr = %q, want empty", cfg.API.ListenAddr)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	isolateEnv(t)
	path := filepath.Join(t.TempDir(), "nested", "config.toml")

	cfg := DefaultConfig()
	cfg.Storage.DBPath = "/tmp/saved//history.db"
	cfg.Collection.ComputeIntervalSeconds = 300
	cfg.Export.DatabaseURL = "postgres://db/battery"

	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.Storage.DBPath != "/tmp/saved/history.db" {
		t.Fatalf("DBPath = %q, want cleaned path", loaded.Storage.DBPath)
	}
	if loaded.Collection.ComputeIntervalSeconds != 300 {
		t.Fatalf("ComputeIntervalSeconds = %d, want 300", loaded.Collection.ComputeIntervalSeconds)
	}
	if loaded.Export.DatabaseURL != "postgres://db/battery" {
		t.Fatalf("DatabaseURL = %q, want postgres://db/battery", loaded.Export.DatabaseURL)
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("directory has %d entries, want only config.toml", len(entries))
	}
}

func TestSave_RejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	if err := Save("  ", DefaultConfig()); err == nil {
		t.Fatal("Save(empty path) error = nil, want error")
	}

	cfg := DefaultConfig()
	cfg.Cleanup.IntervalHours = 0
	if err := Save(path, cfg); err == nil {
		t.Fatal("Save(invalid) error = nil, want error")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("config written despite validation error, stat err = %v", err)
	}
}
