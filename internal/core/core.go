// Package core is the accounting engine: it routes state and traffic events
// to the entity that owns each cause, runs compute passes, answers queries
// and persists snapshots.
package core

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/cptspacemanspiff/battery-stats/internal/entity"
	"github.com/cptspacemanspiff/battery-stats/internal/profile"
	"github.com/cptspacemanspiff/battery-stats/internal/snapshot"
	"github.com/cptspacemanspiff/battery-stats/internal/stats"
)

const maxDebugEntries = 100

// ChargeStateFunc reports what the device is plugged into.
type ChargeStateFunc func() (stats.PluggedType, error)

type Options struct {
	// ProfilePath is loaded by Init. Profile, when set, is used as is.
	ProfilePath string
	Profile     *profile.Profile
	Time        stats.TimeSource
	ChargeState ChargeStateFunc
	CPU         entity.CPUTimeReader
	UserOf      entity.UserResolver
	// Now is the wall clock UpdateStateAt and UpdateTrafficAt measure an
	// event's age against. Defaults to time.Now.
	Now func() time.Time
	// Snapshots is where Init, SaveSnapshot and LoadSnapshot go. Nil
	// disables persistence.
	Snapshots *snapshot.Store
	Logger    *slog.Logger
}

// Core serializes every event and query through a single lock.
type Core struct {
	mu sync.Mutex

	opts   Options
	logger *slog.Logger
	clock  *stats.BatteryClock
	delay  *stats.DelayedTime
	now    func() time.Time
	ledger *entity.Ledger
	env    *entity.Env
	set    *entity.Set

	display *machine
	network *machine

	lastBrightnessLevel int16
	lastSignalLevel     int16

	debug []string
}

func New(opts Options) *Core {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	delay := stats.NewDelayedTime(opts.Time)
	clock := stats.NewBatteryClock(delay)
	ledger := &entity.Ledger{}
	env := &entity.Env{
		Profile: opts.Profile,
		Clock:   clock,
		Ledger:  ledger,
		Logger:  logger,
	}
	c := &Core{
		opts:                opts,
		logger:              logger,
		clock:               clock,
		delay:               delay,
		now:                 now,
		ledger:              ledger,
		env:                 env,
		set:                 entity.NewSet(env, opts.CPU, opts.UserOf),
		lastBrightnessLevel: stats.NoLevel,
		lastSignalLevel:     stats.NoLevel,
	}
	c.display = newDisplayMachine(c.screenOn, c.screenOff)
	c.network = newNetworkMachine(c.scanOn, c.scanOff)
	return c
}

// Init loads the power profile, samples the charge state and restores the
// last snapshot. Failures are logged and returned, but the engine stays
// usable with whatever state it could assemble.
func (c *Core) Init() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var errs []error

	if c.opts.Profile == nil && c.opts.ProfilePath != "" {
		p, err := profile.Load(c.opts.ProfilePath)
		if err != nil {
			c.logger.Warn("power profile unavailable, every current reads as zero", "path", c.opts.ProfilePath, "error", err)
			errs = append(errs, err)
		} else {
			c.env.Profile = p
			c.logger.Info("loaded power profile", "path", c.opts.ProfilePath, "keys", len(p.Entries()))
		}
	}

	if c.opts.ChargeState != nil {
		plugged, err := c.opts.ChargeState()
		if err != nil {
			c.logger.Warn("charge state unavailable, assuming plugged in", "error", err)
			errs = append(errs, fmt.Errorf("read charge state: %w", err))
		}
		c.clock.SetOnBattery(err == nil && plugged == stats.PluggedNone)
	}

	if c.opts.Snapshots != nil {
		if err := c.loadSnapshotLocked(); err != nil {
			if errors.Is(err, snapshot.ErrNotFound) {
				c.logger.Info("no saved snapshot", "path", c.opts.Snapshots.Path())
			} else {
				c.logger.Warn("failed to restore snapshot", "path", c.opts.Snapshots.Path(), "error", err)
				errs = append(errs, err)
			}
		}
	}

	c.logger.Info("engine initialized", "on_battery", c.clock.OnBattery())
	return errors.Join(errs...)
}

// SetOnBattery flips the accounting gate. Nothing accrues while plugged in.
func (c *Core) SetOnBattery(on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.clock.OnBattery() != on {
		c.logger.Info("charge state changed", "on_battery", on)
	}
	c.clock.SetOnBattery(on)
}

func (c *Core) OnBattery() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.clock.OnBattery()
}

// UpdateState applies a state transition for cause.
func (c *Core) UpdateState(cause stats.Cause, state stats.State, level int16, uid int32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.updateStateLocked(cause, state, level, uid)
}

// UpdateStateAt applies a state transition that happened at the wall time at.
// Timers started or stopped by it read the on-battery clock as it was then.
// A time in the future counts as now.
func (c *Core) UpdateStateAt(at time.Time, cause stats.Cause, state stats.State, level int16, uid int32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setLag(at)
	defer c.delay.SetLag(0)
	c.updateStateLocked(cause, state, level, uid)
}

func (c *Core) setLag(at time.Time) {
	c.delay.SetLag(c.now().Sub(at).Milliseconds())
}

func (c *Core) updateStateLocked(cause stats.Cause, state stats.State, level int16, uid int32) {
	if uid > stats.NoUID {
		c.set.UID.Register(uid)
	}

	switch cause {
	case stats.CauseScreenOn, stats.CauseScreenBrightness:
		c.updateScreen(state, level)
	case stats.CauseRadioOn, stats.CauseRadioScan:
		c.updateRadio(state, level)
	case stats.CauseBluetoothOn, stats.CauseWifiOn, stats.CausePhoneActive:
		c.updateTimer(cause, state, stats.NoUID)
	case stats.CauseBluetoothScan, stats.CauseCameraOn, stats.CauseFlashlightOn,
		stats.CauseGPSOn, stats.CauseSensorGravityOn, stats.CauseSensorProximityOn,
		stats.CauseAudioOn, stats.CauseWakelockHold:
		if uid <= stats.NoUID {
			c.logger.Warn("dropping per-application event without uid", "cause", cause, "state", state)
			return
		}
		c.updateTimer(cause, state, uid)
	case stats.CauseWifiScan:
		c.updateWifiScan(state, uid)
	case stats.CauseAlarm:
		if state == stats.StateActivated {
			c.addCount(cause, 1, uid)
		}
	default:
		c.logger.Warn("dropping state event for unsupported cause", "cause", cause, "state", state)
	}
}

// UpdateTraffic credits elapsed time and a byte count to a per-application
// RX/TX cause, or adds occurrences to a per-occurrence cause.
func (c *Core) UpdateTraffic(cause stats.Cause, elapsedMs, count int64, uid int32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.updateTrafficLocked(cause, elapsedMs, count, uid)
}

// UpdateTrafficAt is UpdateTraffic for a report made at the wall time at.
func (c *Core) UpdateTrafficAt(at time.Time, cause stats.Cause, elapsedMs, count int64, uid int32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setLag(at)
	defer c.delay.SetLag(0)
	c.updateTrafficLocked(cause, elapsedMs, count, uid)
}

func (c *Core) updateTrafficLocked(cause stats.Cause, elapsedMs, count int64, uid int32) {
	if uid > stats.NoUID {
		c.set.UID.Register(uid)
	}

	switch {
	case cause.Traffic():
		if uid <= stats.NoUID {
			c.logger.Warn("dropping traffic without uid", "cause", cause)
			return
		}
		if !c.clock.OnBattery() {
			return
		}
		e := c.set.ForCause(cause)
		if t := e.Timer(cause, uid, stats.NoLevel); t != nil {
			t.AddRunningTimeMs(elapsedMs)
		}
		if counter := e.Counter(cause, uid); counter != nil {
			counter.AddCount(count)
		}
	case cause.PerOccurrence():
		c.addCount(cause, count, uid)
	default:
		c.logger.Warn("dropping traffic for unsupported cause", "cause", cause)
	}
}

func (c *Core) addCount(cause stats.Cause, n int64, uid int32) {
	if !c.clock.OnBattery() {
		return
	}
	if counter := c.set.ForCause(cause).Counter(cause, uid); counter != nil {
		counter.AddCount(n)
	}
}

func (c *Core) updateTimer(cause stats.Cause, state stats.State, uid int32) {
	t := c.set.ForCause(cause).Timer(cause, uid, stats.NoLevel)
	if t == nil {
		return
	}
	switch state {
	case stats.StateActivated:
		t.StartRunning()
	case stats.StateDeactivated:
		t.StopRunning()
	default:
		c.logger.Debug("ignoring state for on/off cause", "cause", cause, "state", state)
	}
}

func (c *Core) updateWifiScan(state stats.State, uid int32) {
	switch state {
	case stats.StateActivated:
		c.addCount(stats.CauseWifiScan, 1, uid)
		if uid > stats.NoUID {
			c.set.Wifi.Timer(stats.CauseWifiScan, uid, stats.NoLevel).StartRunning()
		}
	case stats.StateDeactivated:
		if uid > stats.NoUID {
			c.set.Wifi.Timer(stats.CauseWifiScan, uid, stats.NoLevel).StopRunning()
		}
	default:
		c.logger.Debug("ignoring state for wifi scan", "state", state)
	}
}

// updateScreen treats every state other than DisplayOff as the panel being
// lit, so Activated/Deactivated pairs from generic sources still accrue.
func (c *Core) updateScreen(state stats.State, level int16) {
	if !state.IsDisplay() {
		c.logger.Debug("screen event with generic state, treating as on", "state", state, "level", level)
	}
	if state == stats.StateDisplayOff {
		c.display.fire(eventDisplayOff)
	} else {
		c.display.fire(eventDisplayOn)
		c.switchLevel(c.set.Screen, stats.CauseScreenBrightness, c.lastBrightnessLevel, level)
	}
	c.lastBrightnessLevel = level
}

// updateRadio runs the scan timer only while searching. The signal level
// tie-break applies whatever the state.
func (c *Core) updateRadio(state stats.State, level int16) {
	if !state.IsNetwork() {
		c.logger.Debug("radio event with generic state, scan stops", "state", state, "level", level)
	}
	if state == stats.StateNetworkSearch {
		c.network.fire(eventSearchStart)
	} else {
		c.network.fire(eventSearchStop)
	}
	c.switchLevel(c.set.Radio, stats.CauseRadioOn, c.lastSignalLevel, level)
	c.lastSignalLevel = level
}

// switchLevel moves the running level timer from last to level. Exactly one
// level timer runs at a time; an out-of-range level leaves none running.
func (c *Core) switchLevel(e entity.Entity, cause stats.Cause, last, level int16) {
	if last > stats.NoLevel && last != level {
		if t := e.Timer(cause, stats.NoUID, last); t != nil {
			t.StopRunning()
		}
	}
	if t := e.Timer(cause, stats.NoUID, level); t != nil {
		t.StartRunning()
	} else {
		c.logger.Warn("level out of range", "cause", cause, "level", level)
	}
}

// Display and network machine callbacks; called with c.mu held.

func (c *Core) screenOn() {
	c.set.Screen.Timer(stats.CauseScreenOn, stats.NoUID, stats.NoLevel).StartRunning()
}

func (c *Core) screenOff() {
	c.set.Screen.Timer(stats.CauseScreenOn, stats.NoUID, stats.NoLevel).StopRunning()
	if c.lastBrightnessLevel > stats.NoLevel {
		if t := c.set.Screen.Timer(stats.CauseScreenBrightness, stats.NoUID, c.lastBrightnessLevel); t != nil {
			t.StopRunning()
		}
	}
}

func (c *Core) scanOn() {
	c.set.Radio.Timer(stats.CauseRadioScan, stats.NoUID, stats.NoLevel).StartRunning()
}

func (c *Core) scanOff() {
	c.set.Radio.Timer(stats.CauseRadioScan, stats.NoUID, stats.NoLevel).StopRunning()
}

// UpdateCPUTime samples the CPU reader and registers every uid it reports.
func (c *Core) UpdateCPUTime() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	uids, err := c.set.CPU.UpdateCPUTime()
	if err != nil {
		return fmt.Errorf("update cpu time: %w", err)
	}
	for _, uid := range uids {
		c.set.UID.Register(uid)
	}
	return nil
}

// ComputePower runs a full pass and replaces the ledger.
func (c *Core) ComputePower() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.computeLocked()
}

func (c *Core) computeLocked() {
	c.ledger.Reset()
	for _, e := range c.set.ComputeOrder() {
		e.Calculate(stats.NoUID)
	}
	c.logger.Debug("compute pass finished", "total_mah", c.ledger.TotalMah(), "records", len(c.ledger.Infos()))
}

// Pass runs a compute pass and returns it stamped for history.
func (c *Core) Pass(at time.Time) stats.Pass {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.computeLocked()
	return stats.NewPass(at, c.clock.OnBattery(), c.ledger.TotalMah(), c.ledger.Infos())
}

// Reset zeroes every timer, counter and figure. Known uids are kept.
func (c *Core) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range c.set.All() {
		e.Reset()
	}
	c.clock.Reset()
	c.ledger.Reset()
	c.display.reset()
	c.network.reset()
	c.lastBrightnessLevel = stats.NoLevel
	c.lastSignalLevel = stats.NoLevel
	c.logger.Info("statistics reset")
}

// Entity returns the entity of a consumption type, or nil.
func (c *Core) Entity(t stats.ConsumptionType) entity.Entity {
	return c.set.Get(t)
}

// UpdateDebugInfo appends a line to the bounded debug buffer shown by Dump.
func (c *Core) UpdateDebugInfo(line string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.debug = append(c.debug, line)
	if len(c.debug) > maxDebugEntries {
		c.debug = c.debug[len(c.debug)-maxDebugEntries:]
	}
}

// Dump renders the engine state as text.
func (c *Core) Dump() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	var b strings.Builder
	fmt.Fprintf(&b, "on battery: %t\n", c.clock.OnBattery())
	fmt.Fprintf(&b, "on-battery boot time: %dms, up time: %dms\n",
		c.clock.OnBatteryBootTimeMs(), c.clock.OnBatteryUpTimeMs())
	fmt.Fprintf(&b, "display: %s, network: %s\n", c.display.current(), c.network.current())
	fmt.Fprintf(&b, "total: %.4fmAh\n", c.ledger.TotalMah())

	for _, e := range c.set.All() {
		fmt.Fprintf(&b, "[%s]\n", e.Type())
		e.DumpInfo(&b, stats.NoUID)
	}

	if len(c.debug) > 0 {
		b.WriteString("[debug]\n")
		for _, line := range c.debug {
			b.WriteString("  ")
			b.WriteString(line)
			b.WriteByte('\n')
		}
	}
	return b.String()
}
