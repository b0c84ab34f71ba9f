package entity

import (
	"strings"

	"github.com/cptspacemanspiff/battery-stats/internal/profile"
	"github.com/cptspacemanspiff/battery-stats/internal/stats"
)

type screenEntity struct {
	base
	onTimer          *stats.ActiveTimer
	brightnessTimers levelTimers
	powerMah         float64
}

func newScreen(env *Env) *screenEntity {
	return &screenEntity{
		base:             base{env: env, kind: stats.ConsumptionScreen},
		onTimer:          stats.NewActiveTimer(env.Clock),
		brightnessTimers: newLevelTimers(env.Clock, stats.ScreenBrightnessBins),
	}
}

// Calculate charges each brightness level at the base on-current plus a
// per-level increment.
func (e *screenEntity) Calculate(int32) {
	onMa := e.env.currentMa(profile.KeyScreenOn)
	stepMa := e.env.currentMa(profile.KeyScreenBrightness)
	e.powerMah = 0
	for level := range e.brightnessTimers.timers {
		ma := stepMa*float64(level) + onMa
		e.powerMah += mah(ma, e.brightnessTimers.timeMs(int16(level)))
	}
	e.env.Ledger.Add(e.powerMah)
	e.record(e.powerMah)
}

func (e *screenEntity) EntityPowerMah(int32) float64 {
	return e.powerMah
}

func (e *screenEntity) StatsPowerMah(cause stats.Cause, _ int32) float64 {
	if cause == stats.CauseScreenOn || cause == stats.CauseScreenBrightness {
		return e.powerMah
	}
	return 0
}

func (e *screenEntity) ActiveTimeMs(cause stats.Cause, _ int32, level int16) int64 {
	switch cause {
	case stats.CauseScreenOn:
		return e.onTimer.RunningTimeMs()
	case stats.CauseScreenBrightness:
		return e.brightnessTimers.timeMs(level)
	}
	return 0
}

func (e *screenEntity) Timer(cause stats.Cause, uid int32, level int16) *stats.ActiveTimer {
	switch cause {
	case stats.CauseScreenOn:
		return e.onTimer
	case stats.CauseScreenBrightness:
		if t := e.brightnessTimers.get(level); t != nil {
			return t
		}
	}
	return e.base.Timer(cause, uid, level)
}

func (e *screenEntity) Reset() {
	e.onTimer.Reset()
	e.brightnessTimers.reset()
	e.powerMah = 0
}

func (e *screenEntity) DumpInfo(b *strings.Builder, _ int32) {
	dumpLine(b, "  screen_on: %dms, %.4fmAh", e.onTimer.RunningTimeMs(), e.powerMah)
	for level := range e.brightnessTimers.timers {
		dumpLine(b, "  screen_brightness[%d]: %dms", level, e.brightnessTimers.timeMs(int16(level)))
	}
}

// phoneEntity charges active calls at the modem's active current.
type phoneEntity struct {
	base
	activeTimer *stats.ActiveTimer
	powerMah    float64
}

func newPhone(env *Env) *phoneEntity {
	return &phoneEntity{
		base:        base{env: env, kind: stats.ConsumptionPhone},
		activeTimer: stats.NewActiveTimer(env.Clock),
	}
}

func (e *phoneEntity) Calculate(int32) {
	e.powerMah = mah(e.env.currentMa(profile.KeyRadioActive), e.activeTimer.RunningTimeMs())
	e.env.Ledger.Add(e.powerMah)
	e.record(e.powerMah)
}

func (e *phoneEntity) EntityPowerMah(int32) float64 {
	return e.powerMah
}

func (e *phoneEntity) StatsPowerMah(cause stats.Cause, _ int32) float64 {
	if cause == stats.CausePhoneActive {
		return e.powerMah
	}
	return 0
}

func (e *phoneEntity) ActiveTimeMs(cause stats.Cause, _ int32, _ int16) int64 {
	if cause == stats.CausePhoneActive {
		return e.activeTimer.RunningTimeMs()
	}
	return 0
}

func (e *phoneEntity) Timer(cause stats.Cause, uid int32, level int16) *stats.ActiveTimer {
	if cause == stats.CausePhoneActive {
		return e.activeTimer
	}
	return e.base.Timer(cause, uid, level)
}

func (e *phoneEntity) Reset() {
	e.activeTimer.Reset()
	e.powerMah = 0
}

func (e *phoneEntity) DumpInfo(b *strings.Builder, _ int32) {
	dumpLine(b, "  phone_active: %dms, %.4fmAh", e.activeTimer.RunningTimeMs(), e.powerMah)
}

// idleEntity charges the baseline: suspend current over on-battery boot
// time and idle current over on-battery awake time.
type idleEntity struct {
	base
	suspendMah float64
	idleMah    float64
}

func newIdle(env *Env) *idleEntity {
	return &idleEntity{base: base{env: env, kind: stats.ConsumptionIdle}}
}

func (e *idleEntity) Calculate(int32) {
	e.suspendMah = mah(e.env.currentMa(profile.KeyCPUSuspend), e.env.Clock.OnBatteryBootTimeMs())
	e.idleMah = mah(e.env.currentMa(profile.KeyCPUIdle), e.env.Clock.OnBatteryUpTimeMs())
	total := e.suspendMah + e.idleMah
	e.env.Ledger.Add(total)
	e.record(total)
}

func (e *idleEntity) EntityPowerMah(int32) float64 {
	return e.suspendMah + e.idleMah
}

func (e *idleEntity) StatsPowerMah(cause stats.Cause, _ int32) float64 {
	switch cause {
	case stats.CauseCPUSuspend:
		return e.suspendMah
	case stats.CausePhoneIdle:
		return e.idleMah
	}
	return 0
}

func (e *idleEntity) ActiveTimeMs(cause stats.Cause, _ int32, _ int16) int64 {
	switch cause {
	case stats.CauseCPUSuspend:
		return e.env.Clock.OnBatteryBootTimeMs()
	case stats.CausePhoneIdle:
		return e.env.Clock.OnBatteryUpTimeMs()
	}
	return 0
}

func (e *idleEntity) Reset() {
	e.suspendMah = 0
	e.idleMah = 0
}

func (e *idleEntity) DumpInfo(b *strings.Builder, _ int32) {
	dumpLine(b, "  suspend: %dms, %.4fmAh", e.env.Clock.OnBatteryBootTimeMs(), e.suspendMah)
	dumpLine(b, "  idle: %dms, %.4fmAh", e.env.Clock.OnBatteryUpTimeMs(), e.idleMah)
}
