package collector

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/cptspacemanspiff/battery-stats/internal/stats"
)

var sysfsRoot = "/sys"

// ReadChargeState reports which external supply, if any, is online. It
// returns an error when the system exposes no power supplies at all.
func ReadChargeState() (stats.PluggedType, error) {
	matches, err := filepath.Glob(filepath.Join(sysfsRoot, "class/power_supply/*"))
	if err != nil {
		return stats.PluggedNone, fmt.Errorf("glob power_supply: %w", err)
	}
	if len(matches) == 0 {
		return stats.PluggedNone, fmt.Errorf("no power supply found")
	}

	plugged := stats.PluggedNone
	for _, dir := range matches {
		data, err := os.ReadFile(filepath.Join(dir, "uevent"))
		if err != nil {
			continue
		}
		props := parseUevent(string(data))
		if props["POWER_SUPPLY_ONLINE"] != "1" {
			continue
		}
		switch kind := supplyKind(props["POWER_SUPPLY_TYPE"]); kind {
		case stats.PluggedAC:
			// mains wins over anything else that is online
			return kind, nil
		case stats.PluggedNone:
		default:
			plugged = kind
		}
	}
	return plugged, nil
}

func supplyKind(t string) stats.PluggedType {
	switch {
	case t == "Mains":
		return stats.PluggedAC
	case t == "Wireless":
		return stats.PluggedWireless
	case strings.HasPrefix(t, "USB"):
		return stats.PluggedUSB
	}
	return stats.PluggedNone
}

func parseUevent(data string) map[string]string {
	props := make(map[string]string)
	for _, line := range strings.Split(data, "\n") {
		if k, v, ok := strings.Cut(line, "="); ok {
			props[k] = strings.TrimSpace(v)
		}
	}
	return props
}
