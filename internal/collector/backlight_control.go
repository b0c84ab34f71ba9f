package collector

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// BacklightControl writes brightness to a sysfs backlight.
type BacklightControl struct {
	dir string
	max int64
}

// OpenBacklight opens the first backlight under /sys/class/backlight.
func OpenBacklight() (*BacklightControl, error) {
	matches, err := filepath.Glob(filepath.Join(sysfsRoot, "class/backlight/*"))
	if err != nil || len(matches) == 0 {
		return nil, fmt.Errorf("no backlight found")
	}
	maxBrightness, err := readIntFile(filepath.Join(matches[0], "max_brightness"))
	if err != nil {
		return nil, fmt.Errorf("read max_brightness: %w", err)
	}
	if maxBrightness <= 0 {
		return nil, fmt.Errorf("backlight %s reports max_brightness %d", matches[0], maxBrightness)
	}
	return &BacklightControl{dir: matches[0], max: maxBrightness}, nil
}

// Percent returns the current brightness as a percentage of the maximum.
func (b *BacklightControl) Percent() (int, error) {
	cur, err := readIntFile(filepath.Join(b.dir, "brightness"))
	if err != nil {
		return 0, fmt.Errorf("read brightness: %w", err)
	}
	return int(cur * 100 / b.max), nil
}

// SetPercent sets the brightness as a percentage (0-100).
func (b *BacklightControl) SetPercent(pct int) error {
	pct = min(max(pct, 0), 100)
	target := b.max * int64(pct) / 100
	return os.WriteFile(filepath.Join(b.dir, "brightness"), []byte(strconv.FormatInt(target, 10)), 0o644)
}

// SetPowered switches the panel through bl_power.
func (b *BacklightControl) SetPowered(on bool) error {
	value := strconv.Itoa(blPowerOff)
	if on {
		value = "0"
	}
	return os.WriteFile(filepath.Join(b.dir, "bl_power"), []byte(value), 0o644)
}
