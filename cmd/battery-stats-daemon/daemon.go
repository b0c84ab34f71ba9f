package main

import (
	"cmp"
	"context"
	"log/slog"
	"slices"
	"time"

	"github.com/cptspacemanspiff/battery-stats/internal/api"
	"github.com/cptspacemanspiff/battery-stats/internal/collector"
	"github.com/cptspacemanspiff/battery-stats/internal/core"
	"github.com/cptspacemanspiff/battery-stats/internal/stats"
	"github.com/cptspacemanspiff/battery-stats/internal/storage"
)

const exportTimeout = 10 * time.Second

// daemon owns the collection state between ticks. Its methods are called
// from the main loop only, except compute which the API may also call.
type daemon struct {
	engine   *core.Core
	store    *storage.DB
	exporter *storage.Exporter
	hub      *api.Hub
	host     string

	eventLogPath   string
	brightnessBins int

	readCharge    func() (stats.PluggedType, error)
	readBacklight func() (*collector.BacklightSample, error)
	now           func() time.Time

	// last screen event sent to the engine
	screenState stats.State
	screenLevel int16
	plugged     stats.PluggedType
	havePlugged bool

	log          *slog.Logger
	batteryLog   *slog.Logger
	backlightLog *slog.Logger
	eventLog     *slog.Logger
	cpuLog       *slog.Logger
}

func newDaemon(engine *core.Core, store *storage.DB, logger *slog.Logger) *daemon {
	return &daemon{
		engine:        engine,
		store:         store,
		readCharge:    collector.ReadChargeState,
		readBacklight: collector.CollectBacklight,
		now:           time.Now,
		screenState:   stats.StateInvalid,
		screenLevel:   stats.NoLevel,
		log:           logger,
		batteryLog:    logger.With("topic", "battery"),
		backlightLog:  logger.With("topic", "backlight"),
		eventLog:      logger.With("topic", "events"),
		cpuLog:        logger.With("topic", "cpu"),
	}
}

// poll runs one collection tick.
func (d *daemon) poll() {
	d.pollChargeState()
	d.pollBacklight()
	d.importEventLog()
	if err := d.engine.UpdateCPUTime(); err != nil {
		d.cpuLog.Debug("cpu time update failed", "err", err)
	}
}

func (d *daemon) pollChargeState() {
	plugged, err := d.readCharge()
	if err != nil {
		d.batteryLog.Debug("charge state unavailable", "err", err)
		return
	}
	if d.havePlugged && plugged == d.plugged {
		return
	}
	d.plugged, d.havePlugged = plugged, true
	d.engine.SetOnBattery(plugged == stats.PluggedNone)
	d.batteryLog.Info("charge state changed", "plugged", plugged.String())
}

func (d *daemon) pollBacklight() {
	sample, err := d.readBacklight()
	if err != nil {
		d.backlightLog.Debug("collect failed", "err", err)
		return
	}
	state := collector.DisplayState(sample)
	level := stats.NoLevel
	if state == stats.StateDisplayOn {
		level = collector.BrightnessLevel(sample, d.brightnessBins)
	}
	d.backlightLog.Debug("sample",
		"brightness", sample.Brightness,
		"max_brightness", sample.MaxBrightness,
		"powered", sample.Powered,
		"level", level)
	d.setScreen(state, level)
}

// setScreen sends a screen event when the display state or brightness level
// moved since the last one.
func (d *daemon) setScreen(state stats.State, level int16) {
	if state == d.screenState && level == d.screenLevel {
		return
	}
	d.screenState, d.screenLevel = state, level
	d.apply([]collector.Event{{
		Timestamp: d.now().Unix(),
		Cause:     stats.CauseScreenBrightness,
		State:     state,
		Level:     level,
		UID:       stats.NoUID,
	}})
}

// screenOff is called before suspend; the next poll after wake turns the
// screen back on if the panel is lit.
func (d *daemon) screenOff() {
	d.setScreen(stats.StateDisplayOff, stats.NoLevel)
}

func (d *daemon) importEventLog() {
	if d.eventLogPath == "" {
		return
	}
	events := collector.ReadAndConsumeEventLog(d.eventLog, d.now(), d.eventLogPath)
	if len(events) == 0 {
		return
	}
	d.eventLog.Info("imported events", "count", len(events))
	// Spooled events are applied at the time they were written, not at the
	// time of this poll. Writers may interleave, so order by timestamp.
	slices.SortStableFunc(events, func(a, b collector.Event) int {
		return cmp.Compare(a.Timestamp, b.Timestamp)
	})
	for _, e := range events {
		e.Replay(d.engine)
	}
	d.record(events)
}

// apply dispatches events to the engine and records them in history.
func (d *daemon) apply(events []collector.Event) {
	for _, e := range events {
		e.Dispatch(d.engine)
	}
	d.record(events)
}

func (d *daemon) record(events []collector.Event) {
	if d.store == nil {
		return
	}
	if err := d.store.InsertEvents(events); err != nil {
		d.log.Error("store events", "err", err)
	}
}

// compute runs a pass, records and exports it, saves the snapshot and
// pushes the pass to websocket subscribers.
func (d *daemon) compute() stats.Pass {
	pass := d.engine.Pass(d.now())
	d.log.Info("compute pass", "id", pass.ID, "total_mah", pass.TotalMah, "records", len(pass.Records))

	if d.store != nil {
		if err := d.store.InsertPass(pass); err != nil {
			d.log.Error("store pass", "err", err)
		}
	}
	if d.exporter != nil {
		ctx, cancel := context.WithTimeout(context.Background(), exportTimeout)
		if err := d.exporter.Export(ctx, d.host, pass); err != nil {
			d.log.Warn("export pass", "err", err)
		}
		cancel()
	}
	if err := d.engine.SaveSnapshot(); err != nil {
		d.log.Warn("save snapshot", "err", err)
	}
	if d.hub != nil {
		d.hub.BroadcastMessage(api.MsgTypeCompute, pass)
	}
	return pass
}

// cleanup drops history older than retention.
func (d *daemon) cleanup(retention time.Duration) {
	if d.store == nil {
		return
	}
	before := d.now().Add(-retention).Unix()
	n, err := d.store.DeleteOlderThan(before)
	if err != nil {
		d.log.Error("cleanup history", "err", err)
		return
	}
	d.log.Info("cleaned up history", "deleted_rows", n, "before", before)
}
