package collector

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cptspacemanspiff/battery-stats/internal/stats"
)

// blPowerOff is FB_BLANK_POWERDOWN as reported by bl_power.
const blPowerOff = 4

// CollectBacklight reads backlight brightness from /sys/class/backlight/*.
func CollectBacklight() (*BacklightSample, error) {
	matches, err := filepath.Glob(filepath.Join(sysfsRoot, "class/backlight/*"))
	if err != nil {
		return nil, fmt.Errorf("glob backlight: %w", err)
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("no backlight found")
	}

	dir := matches[0]
	brightness, err := readIntFile(filepath.Join(dir, "brightness"))
	if err != nil {
		return nil, fmt.Errorf("read brightness: %w", err)
	}
	maxBrightness, err := readIntFile(filepath.Join(dir, "max_brightness"))
	if err != nil {
		return nil, fmt.Errorf("read max_brightness: %w", err)
	}
	powered := true
	if blPower, err := readIntFile(filepath.Join(dir, "bl_power")); err == nil {
		powered = blPower != blPowerOff
	}

	return &BacklightSample{
		Timestamp:     time.Now().Unix(),
		Brightness:    brightness,
		MaxBrightness: maxBrightness,
		Powered:       powered,
	}, nil
}

// BrightnessLevel maps a sample onto one of bins equal-width brightness
// bins. It returns stats.NoLevel when the sample cannot be binned.
func BrightnessLevel(s *BacklightSample, bins int) int16 {
	if s == nil || s.MaxBrightness <= 0 || bins <= 0 {
		return stats.NoLevel
	}
	b := min(max(s.Brightness, 0), s.MaxBrightness)
	level := b * int64(bins) / (s.MaxBrightness + 1)
	return int16(level)
}

// DisplayState maps a sample onto the display state the engine expects.
func DisplayState(s *BacklightSample) stats.State {
	if s == nil || !s.Powered || s.Brightness <= 0 {
		return stats.StateDisplayOff
	}
	return stats.StateDisplayOn
}

func readIntFile(path string) (int64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
}
