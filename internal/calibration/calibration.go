// Package calibration measures the display's current draw on the running
// device and turns it into screen entries of a power profile.
package calibration

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"time"

	"github.com/cptspacemanspiff/battery-stats/internal/profile"
)

// Reader returns the instantaneous battery current in mA.
type Reader func() (float64, error)

// Backlight is the panel being calibrated.
type Backlight interface {
	SetPercent(pct int) error
	SetPowered(on bool) error
}

// Options controls a calibration run.
type Options struct {
	Read      Reader
	Backlight Backlight
	// Levels is the number of brightness bins; each is measured at its
	// midpoint.
	Levels int
	// Settle is how long to wait after every change before sampling, so the
	// battery controller's averaging window flushes.
	Settle time.Duration
	Sample time.Duration
	Poll   time.Duration
	Logger *slog.Logger
}

// Result holds the measured currents and the profile values derived from
// them.
type Result struct {
	BaselineMa       float64   `json:"baseline_ma"`
	LevelMa          []float64 `json:"level_ma"`
	ScreenOnMa       float64   `json:"screen_on_ma"`
	BrightnessStepMa float64   `json:"brightness_step_ma"`
	CalibratedAt     time.Time `json:"calibrated_at"`
}

// Apply writes the screen entries into p.
func (r Result) Apply(p *profile.Profile) {
	p.Set(profile.KeyScreenOn, r.ScreenOnMa)
	p.Set(profile.KeyScreenBrightness, r.BrightnessStepMa)
}

// LevelPercent is the brightness percentage at the midpoint of level.
func LevelPercent(level, levels int) int {
	return (200*level + 100) / (2 * levels)
}

// Run measures the panel-off baseline and every brightness level. The
// panel is left powered on at the last level measured.
func Run(ctx context.Context, opts Options) (Result, error) {
	if opts.Read == nil || opts.Backlight == nil {
		return Result{}, errors.New("calibration needs a reader and a backlight")
	}
	if opts.Levels < 2 {
		return Result{}, fmt.Errorf("need at least 2 brightness levels, got %d", opts.Levels)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	measure := func(what string) (float64, error) {
		if err := sleep(ctx, opts.Settle); err != nil {
			return 0, err
		}
		ma, err := MeasureCurrent(ctx, opts.Read, opts.Sample, opts.Poll)
		if err != nil {
			return 0, fmt.Errorf("measure %s: %w", what, err)
		}
		logger.Info("measured", "what", what, "current_ma", fmt.Sprintf("%.1f", ma))
		return ma, nil
	}

	res := Result{LevelMa: make([]float64, opts.Levels)}

	if err := opts.Backlight.SetPowered(false); err != nil {
		return Result{}, fmt.Errorf("power off panel: %w", err)
	}
	baseline, err := measure("panel off")
	if err != nil {
		return Result{}, err
	}
	res.BaselineMa = baseline

	if err := opts.Backlight.SetPowered(true); err != nil {
		return Result{}, fmt.Errorf("power on panel: %w", err)
	}
	for level := 0; level < opts.Levels; level++ {
		pct := LevelPercent(level, opts.Levels)
		if err := opts.Backlight.SetPercent(pct); err != nil {
			return Result{}, fmt.Errorf("set brightness %d%%: %w", pct, err)
		}
		ma, err := measure(fmt.Sprintf("level %d (%d%%)", level, pct))
		if err != nil {
			return Result{}, err
		}
		res.LevelMa[level] = ma
	}

	intercept, slope := fitLine(res.LevelMa)
	res.ScreenOnMa = math.Max(intercept-res.BaselineMa, 0)
	res.BrightnessStepMa = math.Max(slope, 0)
	res.CalibratedAt = time.Now().UTC()
	return res, nil
}

// MeasureCurrent averages readings taken every poll for window. Read
// errors are skipped; it fails only when no reading succeeds.
func MeasureCurrent(ctx context.Context, read Reader, window, poll time.Duration) (float64, error) {
	if window <= 0 {
		return 0, fmt.Errorf("window must be > 0")
	}
	if poll <= 0 {
		return 0, fmt.Errorf("poll interval must be > 0")
	}

	var sum float64
	var n int
	var lastErr error
	deadline := time.Now().Add(window)
	for {
		ma, err := read()
		if err != nil {
			lastErr = err
		} else {
			sum += ma
			n++
		}
		if !time.Now().Before(deadline) {
			break
		}
		if err := sleep(ctx, poll); err != nil {
			return 0, err
		}
	}
	if n == 0 {
		return 0, fmt.Errorf("no readings: %w", lastErr)
	}
	return sum / float64(n), nil
}

// fitLine is an ordinary least squares fit of ys against their index.
func fitLine(ys []float64) (intercept, slope float64) {
	n := float64(len(ys))
	if n == 0 {
		return 0, 0
	}
	var sx, sy, sxx, sxy float64
	for i, y := range ys {
		x := float64(i)
		sx += x
		sy += y
		sxx += x * x
		sxy += x * y
	}
	den := n*sxx - sx*sx
	if den == 0 {
		return sy / n, 0
	}
	slope = (n*sxy - sx*sy) / den
	intercept = (sy - slope*sx) / n
	return intercept, slope
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
