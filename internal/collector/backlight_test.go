package collector

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/cptspacemanspiff/battery-stats/internal/stats"
)

func TestCollectBacklight_ParsesValues(t *testing.T) {
	root := setTestSysfsRoot(t)
	dir := filepath.Join(root, "class/backlight/intel_backlight")
	writeTestFile(t, filepath.Join(dir, "brightness"), "123\n")
	writeTestFile(t, filepath.Join(dir, "max_brightness"), "456\n")

	sample, err := CollectBacklight()
	if err != nil {
		t.Fatalf("CollectBacklight() error = %v", err)
	}

	if sample.Timestamp <= 0 {
		t.Fatalf("Timestamp = %d, want > 0", sample.Timestamp)
	}
	if sample.Brightness != 123 {
		t.Fatalf("Brightness = %d, want 123", sample.Brightness)
	}
	if sample.MaxBrightness != 456 {
		t.Fatalf("MaxBrightness = %d, want 456", sample.MaxBrightness)
	}
	if !sample.Powered {
		t.Fatal("Powered = false, want true without bl_power")
	}
}

func TestCollectBacklight_NoBacklightFound(t *testing.T) {
	_ = setTestSysfsRoot(t)

	_, err := CollectBacklight()
	if err == nil {
		t.Fatal("CollectBacklight() error = nil, want no backlight found error")
	}
	if !strings.Contains(err.Error(), "no backlight found") {
		t.Fatalf("CollectBacklight() error = %q, want contains %q", err.Error(), "no backlight found")
	}
}

func TestCollectBacklight_BrightnessReadError(t *testing.T) {
	root := setTestSysfsRoot(t)
	dir := filepath.Join(root, "class/backlight/intel_backlight")
	writeTestFile(t, filepath.Join(dir, "max_brightness"), "456\n")

	_, err := CollectBacklight()
	if err == nil {
		t.Fatal("CollectBacklight() error = nil, want read brightness error")
	}
	if !strings.Contains(err.Error(), "read brightness") {
		t.Fatalf("CollectBacklight() error = %q, want contains %q", err.Error(), "read brightness")
	}
}

func TestCollectBacklight_MaxBrightnessReadError(t *testing.T) {
	root := setTestSysfsRoot(t)
	dir := filepath.Join(root, "class/backlight/intel_backlight")
	writeTestFile(t, filepath.Join(dir, "brightness"), "123\n")

	_, err := CollectBacklight()
	if err == nil {
		t.Fatal("CollectBacklight() error = nil, want read max_brightness error")
	}
	if !strings.Contains(err.Error(), "read max_brightness") {
		t.Fatalf("CollectBacklight() error = %q, want contains %q", err.Error(), "read max_brightness")
	}
}

func TestCollectBacklight_InvalidBrightnessValue(t *testing.T) {
	root := setTestSysfsRoot(t)
	dir := filepath.Join(root, "class/backlight/intel_backlight")
	writeTestFile(t, filepath.Join(dir, "brightness"), "not-a-number\n")
	writeTestFile(t, filepath.Join(dir, "max_brightness"), "456\n")

	_, err := CollectBacklight()
	if err == nil {
		t.Fatal("CollectBacklight() error = nil, want parse error")
	}
	if !strings.Contains(err.Error(), "read brightness") {
		t.Fatalf("CollectBacklight() error = %q, want contains %q", err.Error(), "read brightness")
	}
}

func TestCollectBacklight_BlPowerOff(t *testing.T) {
	root := setTestSysfsRoot(t)
	dir := filepath.Join(root, "class/backlight/intel_backlight")
	writeTestFile(t, filepath.Join(dir, "brightness"), "300\n")
	writeTestFile(t, filepath.Join(dir, "max_brightness"), "1000\n")
	writeTestFile(t, filepath.Join(dir, "bl_power"), "4\n")

	sample, err := CollectBacklight()
	if err != nil {
		t.Fatalf("CollectBacklight() error = %v", err)
	}
	if sample.Powered {
		t.Fatal("Powered = true, want false for bl_power=4")
	}
	if got := DisplayState(sample); got != stats.StateDisplayOff {
		t.Fatalf("DisplayState() = %v, want display_off", got)
	}
}

func TestBrightnessLevel(t *testing.T) {
	tests := []struct {
		name   string
		sample *BacklightSample
		bins   int
		want   int16
	}{
		{"nil sample", nil, 5, stats.NoLevel},
		{"zero max", &BacklightSample{Brightness: 5}, 5, stats.NoLevel},
		{"zero bins", &BacklightSample{Brightness: 5, MaxBrightness: 255}, 0, stats.NoLevel},
		{"dark", &BacklightSample{Brightness: 0, MaxBrightness: 255}, 5, 0},
		{"middle", &BacklightSample{Brightness: 128, MaxBrightness: 255}, 5, 2},
		{"full", &BacklightSample{Brightness: 255, MaxBrightness: 255}, 5, 4},
		{"above max clamps", &BacklightSample{Brightness: 9999, MaxBrightness: 255}, 5, 4},
		{"three bins", &BacklightSample{Brightness: 100, MaxBrightness: 100}, 3, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := BrightnessLevel(tt.sample, tt.bins); got != tt.want {
				t.Fatalf("BrightnessLevel() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestDisplayState(t *testing.T) {
	if got := DisplayState(&BacklightSample{Brightness: 10, MaxBrightness: 100, Powered: true}); got != stats.StateDisplayOn {
		t.Fatalf("DisplayState(lit) = %v, want display_on", got)
	}
	if got := DisplayState(&BacklightSample{Brightness: 0, MaxBrightness: 100, Powered: true}); got != stats.StateDisplayOff {
		t.Fatalf("DisplayState(dark) = %v, want display_off", got)
	}
	if got := DisplayState(nil); got != stats.StateDisplayOff {
		t.Fatalf("DisplayState(nil) = %v, want display_off", got)
	}
}
