package entity

import (
	"strings"

	"github.com/cptspacemanspiff/battery-stats/internal/profile"
	"github.com/cptspacemanspiff/battery-stats/internal/stats"
)

// wifiEntity charges scans per occurrence. Scans reported without a uid
// stay on the hardware record.
type wifiEntity struct {
	base
	onTimer    *stats.ActiveTimer
	scanTimers uidTimers
	scanCounts uidCounters
	scanPower  uidPower
	traffic    *traffic
	appPower   uidPower

	onPowerMah    float64
	looseScanMah  float64
	totalPowerMah float64
}

func newWifi(env *Env) *wifiEntity {
	return &wifiEntity{
		base:       base{env: env, kind: stats.ConsumptionWifi},
		onTimer:    stats.NewActiveTimer(env.Clock),
		scanTimers: uidTimers{},
		scanCounts: uidCounters{},
		scanPower:  uidPower{},
		traffic: newTraffic(env, stats.CauseWifiRX, stats.CauseWifiTX,
			profile.KeyWifiRX, profile.KeyWifiTX),
		appPower: uidPower{},
	}
}

func (e *wifiEntity) Calculate(uid int32) {
	scanMa := e.env.currentMa(profile.KeyWifiScan)
	if uid > stats.NoUID {
		e.scanPower[uid] = scanMa * float64(e.scanCounts.count(uid))
		e.appPower[uid] = e.scanPower[uid] + e.traffic.calculate(uid)
		return
	}
	e.onPowerMah = mah(e.env.currentMa(profile.KeyWifiOn), e.onTimer.RunningTimeMs())
	e.looseScanMah = scanMa * float64(e.scanCounts.count(stats.NoUID))
	hardware := e.onPowerMah + e.looseScanMah
	e.totalPowerMah = hardware + e.appPower.sum()
	e.env.Ledger.Add(hardware)
	e.record(e.totalPowerMah)
}

func (e *wifiEntity) EntityPowerMah(uid int32) float64 {
	if uid <= stats.NoUID {
		return e.totalPowerMah
	}
	return e.appPower[uid]
}

func (e *wifiEntity) StatsPowerMah(cause stats.Cause, uid int32) float64 {
	switch {
	case cause == stats.CauseWifiOn:
		return e.onPowerMah
	case cause == stats.CauseWifiScan:
		if uid <= stats.NoUID {
			return e.looseScanMah + e.scanPower.sum()
		}
		return e.scanPower[uid]
	case e.traffic.serves(cause):
		return e.traffic.power(cause, uid)
	}
	return 0
}

func (e *wifiEntity) ActiveTimeMs(cause stats.Cause, uid int32, _ int16) int64 {
	switch {
	case cause == stats.CauseWifiOn:
		return e.onTimer.RunningTimeMs()
	case cause == stats.CauseWifiScan:
		return e.scanTimers.timeMs(uid)
	case e.traffic.serves(cause):
		return e.traffic.timeMs(cause, uid)
	}
	return 0
}

// Count for scans without a uid reports the scans of every uid plus the
// unattributed ones.
func (e *wifiEntity) Count(cause stats.Cause, uid int32) int64 {
	switch {
	case cause == stats.CauseWifiScan:
		if uid <= stats.NoUID {
			return e.scanCounts.total()
		}
		return e.scanCounts.count(uid)
	case e.traffic.serves(cause):
		return e.traffic.count(cause, uid)
	}
	return 0
}

func (e *wifiEntity) Timer(cause stats.Cause, uid int32, level int16) *stats.ActiveTimer {
	switch {
	case cause == stats.CauseWifiOn:
		return e.onTimer
	case uid <= stats.NoUID:
	case cause == stats.CauseWifiScan:
		return e.scanTimers.get(e.env.Clock, uid)
	case e.traffic.serves(cause):
		return e.traffic.timer(cause, uid)
	}
	return e.base.Timer(cause, uid, level)
}

func (e *wifiEntity) Counter(cause stats.Cause, uid int32) *stats.Counter {
	switch {
	case cause == stats.CauseWifiScan:
		if uid < stats.NoUID {
			uid = stats.NoUID
		}
		return e.scanCounts.get(uid)
	case uid > stats.NoUID && e.traffic.serves(cause):
		return e.traffic.counter(cause, uid)
	}
	return e.base.Counter(cause, uid)
}

func (e *wifiEntity) Reset() {
	e.onTimer.Reset()
	e.scanTimers.reset()
	e.scanCounts.reset()
	e.scanPower.reset()
	e.traffic.reset()
	e.appPower.reset()
	e.onPowerMah = 0
	e.looseScanMah = 0
	e.totalPowerMah = 0
}

func (e *wifiEntity) DumpInfo(b *strings.Builder, uid int32) {
	if uid > stats.NoUID {
		dumpLine(b, "  wifi_scan: %d scans, %dms, %.4fmAh",
			e.scanCounts.count(uid), e.scanTimers.timeMs(uid), e.scanPower[uid])
		e.traffic.dump(b, uid)
		return
	}
	dumpLine(b, "  wifi_on: %dms, %.4fmAh", e.onTimer.RunningTimeMs(), e.onPowerMah)
	dumpLine(b, "  wifi_scan (unattributed): %d scans, %.4fmAh", e.scanCounts.count(stats.NoUID), e.looseScanMah)
	dumpLine(b, "  wifi total: %.4fmAh", e.totalPowerMah)
}
