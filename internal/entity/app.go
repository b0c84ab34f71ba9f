package entity

import (
	"strings"

	"github.com/cptspacemanspiff/battery-stats/internal/profile"
	"github.com/cptspacemanspiff/battery-stats/internal/stats"
)

// timedPart is one on/off cause charged at a fixed current while its per-uid
// timer runs.
type timedPart struct {
	cause  stats.Cause
	key    string
	timers uidTimers
	power  uidPower
}

// appEntity covers the per-application components that are pure timers:
// camera, flashlight, audio, GPS, sensors and wakelocks.
type appEntity struct {
	base
	parts []*timedPart
	power uidPower
}

func newAppEntity(env *Env, kind stats.ConsumptionType, causes map[stats.Cause]string, order ...stats.Cause) *appEntity {
	e := &appEntity{base: base{env: env, kind: kind}, power: uidPower{}}
	for _, c := range order {
		e.parts = append(e.parts, &timedPart{
			cause:  c,
			key:    causes[c],
			timers: uidTimers{},
			power:  uidPower{},
		})
	}
	return e
}

func newCamera(env *Env) *appEntity {
	return newAppEntity(env, stats.ConsumptionCamera,
		map[stats.Cause]string{stats.CauseCameraOn: profile.KeyCameraOn}, stats.CauseCameraOn)
}

func newFlashlight(env *Env) *appEntity {
	return newAppEntity(env, stats.ConsumptionFlashlight,
		map[stats.Cause]string{stats.CauseFlashlightOn: profile.KeyFlashlightOn}, stats.CauseFlashlightOn)
}

func newAudio(env *Env) *appEntity {
	return newAppEntity(env, stats.ConsumptionAudio,
		map[stats.Cause]string{stats.CauseAudioOn: profile.KeyAudioOn}, stats.CauseAudioOn)
}

func newGPS(env *Env) *appEntity {
	return newAppEntity(env, stats.ConsumptionGPS,
		map[stats.Cause]string{stats.CauseGPSOn: profile.KeyGPSOn}, stats.CauseGPSOn)
}

func newSensor(env *Env) *appEntity {
	return newAppEntity(env, stats.ConsumptionSensor,
		map[stats.Cause]string{
			stats.CauseSensorGravityOn:   profile.KeySensorGravityOn,
			stats.CauseSensorProximityOn: profile.KeySensorProximityOn,
		},
		stats.CauseSensorGravityOn, stats.CauseSensorProximityOn)
}

// Wakelocks keep the CPU awake, so they are charged at the awake current.
func newWakelock(env *Env) *appEntity {
	return newAppEntity(env, stats.ConsumptionWakelock,
		map[stats.Cause]string{stats.CauseWakelockHold: profile.KeyCPUAwake}, stats.CauseWakelockHold)
}

func (e *appEntity) part(cause stats.Cause) *timedPart {
	for _, p := range e.parts {
		if p.cause == cause {
			return p
		}
	}
	return nil
}

func (e *appEntity) Calculate(uid int32) {
	var total float64
	for _, p := range e.parts {
		p.power[uid] = mah(e.env.currentMa(p.key), p.timers.timeMs(uid))
		total += p.power[uid]
	}
	e.power[uid] = total
}

func (e *appEntity) EntityPowerMah(uid int32) float64 {
	return e.power[uid]
}

func (e *appEntity) StatsPowerMah(cause stats.Cause, uid int32) float64 {
	if p := e.part(cause); p != nil {
		return p.power[uid]
	}
	return 0
}

func (e *appEntity) ActiveTimeMs(cause stats.Cause, uid int32, _ int16) int64 {
	if p := e.part(cause); p != nil {
		return p.timers.timeMs(uid)
	}
	return 0
}

func (e *appEntity) Timer(cause stats.Cause, uid int32, level int16) *stats.ActiveTimer {
	p := e.part(cause)
	if p == nil || uid <= stats.NoUID {
		return e.base.Timer(cause, uid, level)
	}
	return p.timers.get(e.env.Clock, uid)
}

func (e *appEntity) Reset() {
	for _, p := range e.parts {
		p.timers.reset()
		p.power.reset()
	}
	e.power.reset()
}

func (e *appEntity) DumpInfo(b *strings.Builder, uid int32) {
	for _, p := range e.parts {
		if uid > stats.NoUID {
			dumpLine(b, "  %s: %dms, %.4fmAh", p.cause, p.timers.timeMs(uid), p.power[uid])
			continue
		}
		var ms int64
		for _, id := range sortedKeys(p.timers) {
			ms += p.timers.timeMs(id)
		}
		dumpLine(b, "  %s: %dms, %.4fmAh", p.cause, ms, p.power.sum())
	}
}

// alarmEntity charges a fixed cost per alarm fired.
type alarmEntity struct {
	base
	counts uidCounters
	power  uidPower
}

func newAlarm(env *Env) *alarmEntity {
	return &alarmEntity{
		base:   base{env: env, kind: stats.ConsumptionAlarm},
		counts: uidCounters{},
		power:  uidPower{},
	}
}

func (e *alarmEntity) Calculate(uid int32) {
	e.power[uid] = e.env.currentMa(profile.KeyAlarmOn) * float64(e.counts.count(uid))
}

func (e *alarmEntity) EntityPowerMah(uid int32) float64 {
	return e.power[uid]
}

func (e *alarmEntity) StatsPowerMah(cause stats.Cause, uid int32) float64 {
	if cause != stats.CauseAlarm {
		return 0
	}
	return e.power[uid]
}

func (e *alarmEntity) Count(cause stats.Cause, uid int32) int64 {
	if cause != stats.CauseAlarm {
		return 0
	}
	if uid <= stats.NoUID {
		return e.counts.total()
	}
	return e.counts.count(uid)
}

func (e *alarmEntity) Counter(cause stats.Cause, uid int32) *stats.Counter {
	if cause != stats.CauseAlarm || uid <= stats.NoUID {
		return e.base.Counter(cause, uid)
	}
	return e.counts.get(uid)
}

func (e *alarmEntity) Reset() {
	e.counts.reset()
	e.power.reset()
}

func (e *alarmEntity) DumpInfo(b *strings.Builder, uid int32) {
	if uid > stats.NoUID {
		dumpLine(b, "  alarm: %d fired, %.4fmAh", e.counts.count(uid), e.power[uid])
		return
	}
	dumpLine(b, "  alarm: %d fired, %.4fmAh", e.counts.total(), e.power.sum())
}
