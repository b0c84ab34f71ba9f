package main

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/cptspacemanspiff/battery-stats/internal/calibration"
	"github.com/cptspacemanspiff/battery-stats/internal/collector"
	"github.com/cptspacemanspiff/battery-stats/internal/profile"
	"github.com/cptspacemanspiff/battery-stats/internal/stats"
)

var geteuid = os.Geteuid

// panel is a backlight that can report the brightness to restore afterwards.
type panel interface {
	calibration.Backlight
	Percent() (int, error)
}

func newCalibrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "calibrate",
		Short: "Measure display power and write the screen entries of a profile",
		Long: `calibrate measures battery current with the panel off and at every
brightness level, then writes screen_on and screen_brightness into the
power profile. Run it as root, on battery, with the machine otherwise idle.`,
		RunE: runCalibrate,
	}
	cmd.Flags().String("profile", "", "profile to update (default: profile.path)")
	cmd.Flags().Duration("settle", 90*time.Second, "wait after every change before sampling")
	cmd.Flags().Duration("sample", 30*time.Second, "sampling window per measurement")
	cmd.Flags().Duration("poll", 500*time.Millisecond, "interval between current readings")
	cmd.Flags().Bool("no-pin", false, "leave CPU frequency scaling alone")
	cmd.Flags().BoolP("yes", "y", false, "start without waiting for Enter")
	return cmd
}

func runCalibrate(cmd *cobra.Command, args []string) error {
	if geteuid() != 0 {
		return errors.New("calibrate must be run as root (needed for CPU frequency and backlight control)")
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	path := stringFlagOr(cmd, "profile", cfg.Profile.Path)

	bl, err := collector.OpenBacklight()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if yes, _ := cmd.Flags().GetBool("yes"); !yes {
		fmt.Fprintln(out, "Close other programs, turn off radios, unplug AC and external devices.")
		fmt.Fprintln(out, "Do not touch the machine once calibration starts.")
		fmt.Fprint(out, "Press Enter when ready...")
		if _, err := bufio.NewReader(cmd.InOrStdin()).ReadBytes('\n'); err != nil {
			return fmt.Errorf("waiting for confirmation: %w", err)
		}
		fmt.Fprintln(out)
	}

	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), nil))
	if noPin, _ := cmd.Flags().GetBool("no-pin"); !noPin {
		restoreCPU, err := calibration.PinCPU(logger)
		if err != nil {
			return fmt.Errorf("pin CPU: %w", err)
		}
		defer restoreCPU()
	}

	return calibrateProfile(cmd, bl, collector.ReadBatteryCurrentMa, path, logger)
}

// calibrateProfile runs the measurement against p and merges the result into
// the profile at path. The original brightness is restored on return.
func calibrateProfile(cmd *cobra.Command, p panel, read calibration.Reader, path string, logger *slog.Logger) error {
	settle, _ := cmd.Flags().GetDuration("settle")
	sample, _ := cmd.Flags().GetDuration("sample")
	poll, _ := cmd.Flags().GetDuration("poll")

	origPct, err := p.Percent()
	if err != nil {
		return err
	}
	defer func() {
		_ = p.SetPowered(true)
		if err := p.SetPercent(origPct); err != nil {
			logger.Warn("restore brightness", "pct", origPct, "err", err)
		}
	}()

	res, err := calibration.Run(cmd.Context(), calibration.Options{
		Read:      read,
		Backlight: p,
		Levels:    stats.ScreenBrightnessBins,
		Settle:    settle,
		Sample:    sample,
		Poll:      poll,
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	prof, err := loadOrNewProfile(path)
	if err != nil {
		return err
	}
	res.Apply(prof)
	if err := prof.Save(path); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Profile written to %s\n\n", path)
	fmt.Fprintf(out, "  panel off:          %.1f mA\n", res.BaselineMa)
	for level, ma := range res.LevelMa {
		fmt.Fprintf(out, "  level %d (%3d%%):     %.1f mA\n", level, calibration.LevelPercent(level, len(res.LevelMa)), ma)
	}
	fmt.Fprintf(out, "  %s:          %.1f mA\n", profile.KeyScreenOn, res.ScreenOnMa)
	fmt.Fprintf(out, "  %s:  %.1f mA per level\n", profile.KeyScreenBrightness, res.BrightnessStepMa)
	return nil
}

func loadOrNewProfile(path string) (*profile.Profile, error) {
	p, err := profile.Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return profile.New(), nil
	}
	return p, err
}
