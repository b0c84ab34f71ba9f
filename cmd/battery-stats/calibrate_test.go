package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cptspacemanspiff/battery-stats/internal/profile"
)

type fakePanel struct {
	pct     int
	powered bool
}

func (f *fakePanel) Percent() (int, error) { return f.pct, nil }

func (f *fakePanel) SetPercent(pct int) error {
	f.pct = pct
	return nil
}

func (f *fakePanel) SetPowered(on bool) error {
	f.powered = on
	return nil
}

// read draws 300 mA with the panel off, 380 mA lit at 0% and 2 mA more per
// percent of brightness.
func (f *fakePanel) read() (float64, error) {
	if !f.powered {
		return 300, nil
	}
	return 380 + 2*float64(f.pct), nil
}

func TestCalibrateProfileMergesScreenEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "power_average.json")
	if err := os.WriteFile(path, []byte(`{"camera_on": 500, "screen_on": 1}`), 0o644); err != nil {
		t.Fatal(err)
	}

	cmd := newCalibrateCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetContext(context.Background())
	for name, v := range map[string]string{"settle": "0s", "sample": "1ms", "poll": "1ms"} {
		if err := cmd.Flags().Set(name, v); err != nil {
			t.Fatal(err)
		}
	}

	p := &fakePanel{pct: 64, powered: true}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if err := calibrateProfile(cmd, p, p.read, path, logger); err != nil {
		t.Fatalf("calibrateProfile() error = %v", err)
	}
	if p.pct != 64 || !p.powered {
		t.Fatalf("panel left at %d%% powered=%v, want restored 64%%", p.pct, p.powered)
	}

	prof, err := profile.Load(path)
	if err != nil {
		t.Fatalf("profile.Load() error = %v", err)
	}
	if got := prof.AverageCurrentMa(profile.KeyCameraOn); got != 500 {
		t.Fatalf("camera_on = %v, want existing 500 kept", got)
	}
	// level midpoints are 20 points apart, so 40 mA per level; level 0 at 10% draws 400 mA.
	if got := prof.AverageCurrentMa(profile.KeyScreenOn); got < 99.99 || got > 100.01 {
		t.Fatalf("screen_on = %v, want 100", got)
	}
	if got := prof.AverageCurrentMa(profile.KeyScreenBrightness); got < 39.99 || got > 40.01 {
		t.Fatalf("screen_brightness = %v, want 40", got)
	}
	if !strings.Contains(out.String(), "Profile written to") {
		t.Fatalf("output = %q", out.String())
	}
}

func TestLoadOrNewProfile(t *testing.T) {
	p, err := loadOrNewProfile(filepath.Join(t.TempDir(), "missing.json"))
	if err != nil {
		t.Fatalf("loadOrNewProfile() error = %v", err)
	}
	if len(p.Entries()) != 0 {
		t.Fatalf("entries = %v, want empty profile", p.Entries())
	}

	bad := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(bad, []byte("{"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := loadOrNewProfile(bad); err == nil {
		t.Fatal("loadOrNewProfile() with corrupt file error = nil")
	}
}

func TestCalibrateRequiresRoot(t *testing.T) {
	old := geteuid
	geteuid = func() int { return 1000 }
	t.Cleanup(func() { geteuid = old })

	_, err := runCLI(t, "calibrate", "--yes")
	if err == nil || !strings.Contains(err.Error(), "root") {
		t.Fatalf("calibrate error = %v, want root error", err)
	}
}
