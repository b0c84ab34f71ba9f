package entity

import (
	"strings"

	"github.com/cptspacemanspiff/battery-stats/internal/profile"
	"github.com/cptspacemanspiff/battery-stats/internal/stats"
)

// bluetoothEntity is both a hardware part (the radio being on) and a
// per-application model (scans and traffic).
type bluetoothEntity struct {
	base
	onTimer    *stats.ActiveTimer
	scanTimers uidTimers
	scanPower  uidPower
	traffic    *traffic
	appPower   uidPower

	onPowerMah    float64
	totalPowerMah float64
}

func newBluetooth(env *Env) *bluetoothEntity {
	return &bluetoothEntity{
		base:       base{env: env, kind: stats.ConsumptionBluetooth},
		onTimer:    stats.NewActiveTimer(env.Clock),
		scanTimers: uidTimers{},
		scanPower:  uidPower{},
		traffic: newTraffic(env, stats.CauseBluetoothRX, stats.CauseBluetoothTX,
			profile.KeyBluetoothRX, profile.KeyBluetoothTX),
		appPower: uidPower{},
	}
}

// Calculate with a uid computes that application's share. With stats.NoUID
// it computes the hardware record, which relies on the application shares
// already being current.
func (e *bluetoothEntity) Calculate(uid int32) {
	if uid > stats.NoUID {
		e.scanPower[uid] = mah(e.env.currentMa(profile.KeyBluetoothScan), e.scanTimers.timeMs(uid))
		e.appPower[uid] = e.scanPower[uid] + e.traffic.calculate(uid)
		return
	}
	e.onPowerMah = mah(e.env.currentMa(profile.KeyBluetoothOn), e.onTimer.RunningTimeMs())
	e.totalPowerMah = e.onPowerMah + e.appPower.sum()
	e.env.Ledger.Add(e.onPowerMah)
	e.record(e.totalPowerMah)
}

func (e *bluetoothEntity) EntityPowerMah(uid int32) float64 {
	if uid <= stats.NoUID {
		return e.totalPowerMah
	}
	return e.appPower[uid]
}

func (e *bluetoothEntity) StatsPowerMah(cause stats.Cause, uid int32) float64 {
	switch {
	case cause == stats.CauseBluetoothOn:
		return e.onPowerMah
	case cause == stats.CauseBluetoothScan:
		if uid <= stats.NoUID {
			return e.scanPower.sum()
		}
		return e.scanPower[uid]
	case e.traffic.serves(cause):
		return e.traffic.power(cause, uid)
	}
	return 0
}

func (e *bluetoothEntity) ActiveTimeMs(cause stats.Cause, uid int32, _ int16) int64 {
	switch {
	case cause == stats.CauseBluetoothOn:
		return e.onTimer.RunningTimeMs()
	case cause == stats.CauseBluetoothScan:
		return e.scanTimers.timeMs(uid)
	case e.traffic.serves(cause):
		return e.traffic.timeMs(cause, uid)
	}
	return 0
}

func (e *bluetoothEntity) Count(cause stats.Cause, uid int32) int64 {
	if e.traffic.serves(cause) {
		return e.traffic.count(cause, uid)
	}
	return 0
}

func (e *bluetoothEntity) Timer(cause stats.Cause, uid int32, level int16) *stats.ActiveTimer {
	switch {
	case cause == stats.CauseBluetoothOn:
		return e.onTimer
	case uid <= stats.NoUID:
	case cause == stats.CauseBluetoothScan:
		return e.scanTimers.get(e.env.Clock, uid)
	case e.traffic.serves(cause):
		return e.traffic.timer(cause, uid)
	}
	return e.base.Timer(cause, uid, level)
}

func (e *bluetoothEntity) Counter(cause stats.Cause, uid int32) *stats.Counter {
	if uid > stats.NoUID && e.traffic.serves(cause) {
		return e.traffic.counter(cause, uid)
	}
	return e.base.Counter(cause, uid)
}

func (e *bluetoothEntity) Reset() {
	e.onTimer.Reset()
	e.scanTimers.reset()
	e.scanPower.reset()
	e.traffic.reset()
	e.appPower.reset()
	e.onPowerMah = 0
	e.totalPowerMah = 0
}

func (e *bluetoothEntity) DumpInfo(b *strings.Builder, uid int32) {
	if uid > stats.NoUID {
		dumpLine(b, "  bluetooth_scan: %dms, %.4fmAh", e.scanTimers.timeMs(uid), e.scanPower[uid])
		e.traffic.dump(b, uid)
		return
	}
	dumpLine(b, "  bluetooth_on: %dms, %.4fmAh", e.onTimer.RunningTimeMs(), e.onPowerMah)
	dumpLine(b, "  bluetooth total: %.4fmAh", e.totalPowerMah)
}
