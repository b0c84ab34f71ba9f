package collector

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// BatterySample holds one reading of the first battery.
type BatterySample struct {
	Timestamp   int64  `json:"timestamp"`
	Status      string `json:"status"`
	CapacityPct int    `json:"capacity_pct"`
	VoltageUV   int64  `json:"voltage_uv"`
	CurrentUA   int64  `json:"current_ua"`
	PowerUW     int64  `json:"power_uw"`
}

// CollectBattery reads battery info from /sys/class/power_supply/BAT*.
func CollectBattery() (*BatterySample, error) {
	matches, err := filepath.Glob(filepath.Join(sysfsRoot, "class/power_supply/BAT*"))
	if err != nil {
		return nil, fmt.Errorf("glob battery: %w", err)
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("no battery found")
	}

	data, err := os.ReadFile(filepath.Join(matches[0], "uevent"))
	if err != nil {
		return nil, fmt.Errorf("read uevent: %w", err)
	}

	props := parseUevent(string(data))
	s := &BatterySample{
		Timestamp: time.Now().Unix(),
		Status:    props["POWER_SUPPLY_STATUS"],
	}
	s.VoltageUV, _ = strconv.ParseInt(props["POWER_SUPPLY_VOLTAGE_NOW"], 10, 64)
	s.CurrentUA, _ = strconv.ParseInt(props["POWER_SUPPLY_CURRENT_NOW"], 10, 64)
	s.PowerUW, _ = strconv.ParseInt(props["POWER_SUPPLY_POWER_NOW"], 10, 64)
	capacity, _ := strconv.ParseInt(props["POWER_SUPPLY_CAPACITY"], 10, 64)
	s.CapacityPct = int(capacity)

	// Some drivers report a signed current; only magnitude matters here.
	if s.CurrentUA < 0 {
		s.CurrentUA = -s.CurrentUA
	}
	if s.PowerUW < 0 {
		s.PowerUW = -s.PowerUW
	}
	return s, nil
}

// CurrentMa is the draw in mA, derived from power and voltage when the
// driver only reports power_now.
func (s *BatterySample) CurrentMa() float64 {
	if s.CurrentUA > 0 {
		return float64(s.CurrentUA) / 1000
	}
	if s.PowerUW > 0 && s.VoltageUV > 0 {
		return float64(s.PowerUW) / float64(s.VoltageUV) * 1000
	}
	return 0
}

// ReadBatteryCurrentMa samples the battery and returns its current draw.
func ReadBatteryCurrentMa() (float64, error) {
	s, err := CollectBattery()
	if err != nil {
		return 0, err
	}
	ma := s.CurrentMa()
	if ma <= 0 {
		return 0, fmt.Errorf("battery reports no current or power")
	}
	return ma, nil
}
