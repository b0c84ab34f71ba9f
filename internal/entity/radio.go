package entity

import (
	"strings"

	"github.com/cptspacemanspiff/battery-stats/internal/profile"
	"github.com/cptspacemanspiff/battery-stats/internal/stats"
)

// radioEntity models the cellular modem: scan time, time at each signal
// level, and per-application traffic.
type radioEntity struct {
	base
	scanTimer *stats.ActiveTimer
	onTimers  levelTimers
	traffic   *traffic
	appPower  uidPower

	scanPowerMah  float64
	onPowerMah    float64
	totalPowerMah float64
}

func newRadio(env *Env) *radioEntity {
	return &radioEntity{
		base:      base{env: env, kind: stats.ConsumptionRadio},
		scanTimer: stats.NewActiveTimer(env.Clock),
		onTimers:  newLevelTimers(env.Clock, stats.RadioSignalBins),
		traffic: newTraffic(env, stats.CauseRadioRX, stats.CauseRadioTX,
			profile.KeyRadioRX, profile.KeyRadioTX),
		appPower: uidPower{},
	}
}

func (e *radioEntity) Calculate(uid int32) {
	if uid > stats.NoUID {
		e.appPower[uid] = e.traffic.calculate(uid)
		return
	}
	e.scanPowerMah = mah(e.env.currentMa(profile.KeyRadioScan), e.scanTimer.RunningTimeMs())
	e.onPowerMah = 0
	for level := range e.onTimers.timers {
		e.onPowerMah += mah(e.env.currentMaAt(profile.KeyRadioOn, level), e.onTimers.timeMs(int16(level)))
	}
	hardware := e.scanPowerMah + e.onPowerMah
	e.totalPowerMah = hardware + e.appPower.sum()
	e.env.Ledger.Add(hardware)
	e.record(e.totalPowerMah)
}

func (e *radioEntity) EntityPowerMah(uid int32) float64 {
	if uid <= stats.NoUID {
		return e.totalPowerMah
	}
	return e.appPower[uid]
}

func (e *radioEntity) StatsPowerMah(cause stats.Cause, uid int32) float64 {
	switch {
	case cause == stats.CauseRadioOn:
		return e.onPowerMah
	case cause == stats.CauseRadioScan:
		return e.scanPowerMah
	case e.traffic.serves(cause):
		return e.traffic.power(cause, uid)
	}
	return 0
}

// ActiveTimeMs for the on cause reports one signal level, or all of them
// for stats.NoLevel.
func (e *radioEntity) ActiveTimeMs(cause stats.Cause, uid int32, level int16) int64 {
	switch {
	case cause == stats.CauseRadioOn:
		return e.onTimers.timeMs(level)
	case cause == stats.CauseRadioScan:
		return e.scanTimer.RunningTimeMs()
	case e.traffic.serves(cause):
		return e.traffic.timeMs(cause, uid)
	}
	return 0
}

func (e *radioEntity) Count(cause stats.Cause, uid int32) int64 {
	if e.traffic.serves(cause) {
		return e.traffic.count(cause, uid)
	}
	return 0
}

func (e *radioEntity) Timer(cause stats.Cause, uid int32, level int16) *stats.ActiveTimer {
	switch {
	case cause == stats.CauseRadioScan:
		return e.scanTimer
	case cause == stats.CauseRadioOn:
		if t := e.onTimers.get(level); t != nil {
			return t
		}
	case uid > stats.NoUID && e.traffic.serves(cause):
		return e.traffic.timer(cause, uid)
	}
	return e.base.Timer(cause, uid, level)
}

func (e *radioEntity) Counter(cause stats.Cause, uid int32) *stats.Counter {
	if uid > stats.NoUID && e.traffic.serves(cause) {
		return e.traffic.counter(cause, uid)
	}
	return e.base.Counter(cause, uid)
}

func (e *radioEntity) Reset() {
	e.scanTimer.Reset()
	e.onTimers.reset()
	e.traffic.reset()
	e.appPower.reset()
	e.scanPowerMah = 0
	e.onPowerMah = 0
	e.totalPowerMah = 0
}

func (e *radioEntity) DumpInfo(b *strings.Builder, uid int32) {
	if uid > stats.NoUID {
		e.traffic.dump(b, uid)
		return
	}
	dumpLine(b, "  radio_scan: %dms, %.4fmAh", e.scanTimer.RunningTimeMs(), e.scanPowerMah)
	for level := range e.onTimers.timers {
		dumpLine(b, "  radio_on[%d]: %dms", level, e.onTimers.timeMs(int16(level)))
	}
	dumpLine(b, "  radio total: %.4fmAh", e.totalPowerMah)
}
