package main

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/cptspacemanspiff/battery-stats/internal/collector"
	"github.com/cptspacemanspiff/battery-stats/internal/snapshot"
	"github.com/cptspacemanspiff/battery-stats/internal/stats"
	"github.com/cptspacemanspiff/battery-stats/internal/storage"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestShowPrintsSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "battery_stats.json")
	doc := snapshot.NewDocument()
	doc.SetTotal(40)
	doc.Power["1000"] = 30
	doc.Power["-11"] = 10
	doc.Hardware.ScreenOn = 90_000
	doc.Software["1000"] = snapshot.Software{CPUTime: 120_000}
	if err := snapshot.NewStore(path).Save(doc); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	out, err := runCLI(t, "show", "--snapshot", path)
	if err != nil {
		t.Fatalf("show error = %v", err)
	}
	for _, want := range []string{"Total: 40.000 mAh", "1000", "30.000", "75.0%", "screen", "25.0%", "2m0s", "1m30s"} {
		if !strings.Contains(out, want) {
			t.Fatalf("show output missing %q:\n%s", want, out)
		}
	}
}

func TestShowMissingSnapshot(t *testing.T) {
	_, err := runCLI(t, "show", "--snapshot", filepath.Join(t.TempDir(), "none.json"))
	if err == nil || !strings.Contains(err.Error(), "no snapshot") {
		t.Fatalf("show error = %v, want no snapshot error", err)
	}
}

func TestHistoryJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	db, err := storage.Open(path)
	if err != nil {
		t.Fatalf("storage.Open() error = %v", err)
	}
	pass := stats.NewPass(time.Now().Add(-time.Hour), true, 12, []stats.Info{
		{Type: stats.ConsumptionApp, UID: 1000, UserID: 0, PowerMah: 12},
	})
	if err := db.InsertPass(pass); err != nil {
		t.Fatalf("InsertPass() error = %v", err)
	}
	db.Close()

	out, err := runCLI(t, "history", "--db", path, "--json")
	if err != nil {
		t.Fatalf("history error = %v", err)
	}
	var passes []stats.Pass
	if err := json.Unmarshal([]byte(out), &passes); err != nil {
		t.Fatalf("unmarshal history output: %v\n%s", err, out)
	}
	if len(passes) != 1 || passes[0].ID != pass.ID {
		t.Fatalf("history = %+v, want pass %s", passes, pass.ID)
	}

	out, err = runCLI(t, "history", "--db", path, "--uid", "1000", "--json")
	if err != nil {
		t.Fatalf("history --uid error = %v", err)
	}
	var points []collector.PowerPoint
	if err := json.Unmarshal([]byte(out), &points); err != nil {
		t.Fatalf("unmarshal app history: %v\n%s", err, out)
	}
	if len(points) != 1 || points[0].PowerMah != 12 {
		t.Fatalf("app history = %+v, want one 12 mAh point", points)
	}

	if _, err := runCLI(t, "history", "--db", path, "--hours", "0"); err == nil {
		t.Fatal("history --hours 0 error = nil, want error")
	}
}

func TestProfileListsEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "power_average.json")
	if err := os.WriteFile(path, []byte(`{"screen_on": 100, "cpu_clusters": [4, 4], "cpu_speed_cluster0": [10, 20.5]}`), 0o644); err != nil {
		t.Fatalf("write profile: %v", err)
	}

	out, err := runCLI(t, "profile", "--path", path)
	if err != nil {
		t.Fatalf("profile error = %v", err)
	}
	for _, want := range []string{"screen_on", "100", "10 20.5", "3 keys, 2 cpu clusters"} {
		if !strings.Contains(out, want) {
			t.Fatalf("profile output missing %q:\n%s", want, out)
		}
	}

	bad := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(bad, []byte(`{"screen_on": "bright"}`), 0o644); err != nil {
		t.Fatalf("write profile: %v", err)
	}
	if _, err := runCLI(t, "profile", "--path", bad); err == nil {
		t.Fatal("profile with string value error = nil, want error")
	}
}

func TestEventAppendsToSpool(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")

	if _, err := runCLI(t, "event", "--log", path, "--cause", "gps_on", "--state", "activated", "--uid", "1000"); err != nil {
		t.Fatalf("event error = %v", err)
	}
	if _, err := runCLI(t, "event", "--log", path, "--cause", "wifi_tx", "--elapsed-ms", "250", "--count", "4096", "--uid", "1000"); err != nil {
		t.Fatalf("traffic event error = %v", err)
	}

	if _, err := runCLI(t, "event", "--log", path, "--cause", "alarm", "--count", "2", "--uid", "1000"); err != nil {
		t.Fatalf("alarm count event error = %v", err)
	}

	events := collector.ReadAndConsumeEventLog(slog.New(slog.NewTextHandler(io.Discard, nil)), time.Now(), path)
	if len(events) != 3 {
		t.Fatalf("spool has %d events, want 3", len(events))
	}
	if e := events[0]; e.Cause != stats.CauseGPSOn || e.State != stats.StateActivated || e.UID != 1000 || e.Traffic {
		t.Fatalf("state event = %+v", e)
	}
	if e := events[1]; !e.Traffic || e.ElapsedMs != 250 || e.Count != 4096 {
		t.Fatalf("traffic event = %+v", e)
	}
	if e := events[2]; e.Cause != stats.CauseAlarm || !e.Traffic || e.Count != 2 {
		t.Fatalf("alarm event = %+v", e)
	}
}

func TestBuildEventErrors(t *testing.T) {
	now := time.Unix(100, 0)
	tests := []struct {
		name         string
		cause, state string
		elapsed      int64
	}{
		{"unknown cause", "warp", "activated", 0},
		{"unknown state", "gps_on", "sideways", 0},
		{"missing state", "gps_on", "", 0},
		{"alarm without count", "alarm", "", 0},
		{"negative traffic", "wifi_rx", "", -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := buildEvent(tt.cause, tt.state, stats.NoLevel, 1000, tt.elapsed, 0, now); err == nil {
				t.Fatal("buildEvent() error = nil, want error")
			}
		})
	}
}

func TestVersion(t *testing.T) {
	out, err := runCLI(t, "version")
	if err != nil {
		t.Fatalf("version error = %v", err)
	}
	if !strings.HasPrefix(out, "battery-stats dev") {
		t.Fatalf("version output = %q", out)
	}
}
