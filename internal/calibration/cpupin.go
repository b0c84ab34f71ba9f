package calibration

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

var cpuRoot = "/sys/devices/system/cpu"

// PinCPU disables turbo boost and locks every core to its base frequency so
// CPU noise stays flat while the panel is measured. The returned function
// undoes the changes in reverse order.
func PinCPU(logger *slog.Logger) (restore func(), err error) {
	var restoreFns []func()
	restore = func() {
		for i := len(restoreFns) - 1; i >= 0; i-- {
			restoreFns[i]()
		}
	}

	turboPath := filepath.Join(cpuRoot, "intel_pstate/no_turbo")
	if origTurbo, err := readSysFile(turboPath); err == nil {
		if err := os.WriteFile(turboPath, []byte("1"), 0o644); err != nil {
			return nil, fmt.Errorf("disable turbo: %w", err)
		}
		restoreFns = append(restoreFns, func() {
			_ = os.WriteFile(turboPath, []byte(origTurbo), 0o644)
		})
	}

	dirs, err := filepath.Glob(filepath.Join(cpuRoot, "cpu[0-9]*/cpufreq"))
	if err != nil || len(dirs) == 0 {
		restore()
		return nil, fmt.Errorf("no cpufreq directories found")
	}

	for _, dir := range dirs {
		cpu := filepath.Base(filepath.Dir(dir))

		baseFreq, err := readSysFile(filepath.Join(dir, "base_frequency"))
		if err != nil {
			baseFreq, err = readSysFile(filepath.Join(dir, "cpuinfo_min_freq"))
			if err != nil {
				logger.Warn("no base frequency, leaving core unpinned", "cpu", cpu)
				continue
			}
		}

		minPath := filepath.Join(dir, "scaling_min_freq")
		maxPath := filepath.Join(dir, "scaling_max_freq")
		govPath := filepath.Join(dir, "scaling_governor")
		origMin, _ := readSysFile(minPath)
		origMax, _ := readSysFile(maxPath)
		origGov, _ := readSysFile(govPath)

		if err := os.WriteFile(govPath, []byte("powersave"), 0o644); err == nil {
			restoreFns = append(restoreFns, func() {
				_ = os.WriteFile(govPath, []byte(origGov), 0o644)
			})
		}

		// min first so max can drop below the old min, then min again in
		// case the kernel rejected it while max was still lower.
		for _, step := range []string{minPath, maxPath, minPath} {
			if err := os.WriteFile(step, []byte(baseFreq), 0o644); err != nil {
				logger.Debug("write frequency limit", "path", step, "err", err)
			}
		}
		logger.Info("core pinned", "cpu", cpu, "khz", baseFreq)

		restoreFns = append(restoreFns, func() {
			_ = os.WriteFile(maxPath, []byte(origMax), 0o644)
			_ = os.WriteFile(minPath, []byte(origMin), 0o644)
		})
	}

	return restore, nil
}

func readSysFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
