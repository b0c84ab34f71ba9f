package snapshot

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingReturnsErrNotFound(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "battery_stats.json"))
	if _, err := store.Load(); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Load() error = %v, want ErrNotFound", err)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "battery_stats.json")
	store := NewStore(path)

	doc := NewDocument()
	doc.SetTotal(12.5)
	doc.Power["1000"] = 10
	doc.Power["-11"] = 2.5
	doc.Hardware.ScreenOn = 60000
	doc.Hardware.ScreenBrightness[3] = 60000
	doc.Hardware.RadioOn[4] = 1200
	doc.Software["1000"] = Software{
		CameraOn: 5000,
		CPUTime:  700,
		Connectivity: Connectivity{
			WifiScan:  3,
			WifiBytes: 4096,
		},
	}

	if err := store.Save(doc); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := store.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.TotalMah() != 12.5 {
		t.Fatalf("TotalMah() = %v, want 12.5", got.TotalMah())
	}
	if got.Power["-11"] != 2.5 {
		t.Fatalf("Power[-11] = %v, want 2.5", got.Power["-11"])
	}
	if got.Hardware.ScreenBrightness[3] != 60000 || got.Hardware.RadioOn[4] != 1200 {
		t.Fatalf("Hardware = %+v", got.Hardware)
	}
	sw := got.Software["1000"]
	if sw.CameraOn != 5000 || sw.Connectivity.WifiBytes != 4096 {
		t.Fatalf("Software[1000] = %+v", sw)
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("directory has %d entries, want only the snapshot", len(entries))
	}
}

func TestTotalRebuiltWhenAbsent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "battery_stats.json")
	contents := `{"Power": {"1000": 3, "-11": 1.5}, "Hardware": {}, "Software": {}}`
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	doc, err := NewStore(path).Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if doc.Total != nil {
		t.Fatalf("Total = %v, want nil", *doc.Total)
	}
	if doc.TotalMah() != 4.5 {
		t.Fatalf("TotalMah() = %v, want 4.5", doc.TotalMah())
	}
}

func TestLoadRejectsMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "battery_stats.json")
	if err := os.WriteFile(path, []byte("{"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	_, err := NewStore(path).Load()
	if err == nil || errors.Is(err, ErrNotFound) {
		t.Fatalf("Load() error = %v, want parse error", err)
	}
}

func TestLoadToleratesMissingSections(t *testing.T) {
	path := filepath.Join(t.TempDir(), "battery_stats.json")
	if err := os.WriteFile(path, []byte(`{}`), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	doc, err := NewStore(path).Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if doc.Power == nil || doc.Software == nil {
		t.Fatalf("Load() left nil sections: %+v", doc)
	}
}

func TestSaveRejectsEmptyPath(t *testing.T) {
	if err := NewStore("  ").Save(NewDocument()); err == nil {
		t.Fatal("Save() error = nil, want error")
	}
}
