package entity

import (
	"strings"

	"github.com/cptspacemanspiff/battery-stats/internal/profile"
	"github.com/cptspacemanspiff/battery-stats/internal/stats"
)

// CPUTimeReader supplies per-application CPU time split by activity,
// cluster and frequency step. All times are on-battery milliseconds.
type CPUTimeReader interface {
	// Update samples the kernel counters. Deltas are only credited when
	// onBattery is set.
	Update(onBattery bool) error
	// UIDs lists every application the reader has seen.
	UIDs() []int32
	// UIDTimeMs returns the user and system time of uid.
	UIDTimeMs(uid int32) []int64
	ActiveTimeMs(uid int32) int64
	ClusterTimeMs(uid int32, cluster int) int64
	SpeedTimeMs(uid int32, cluster, speed int) int64
	// Reset drops accumulated time but keeps the last sample as baseline.
	Reset()
}

type cpuPower struct {
	total   float64
	active  float64
	cluster float64
	speed   float64
}

// CPUEntity charges CPU time against the active, per-cluster and
// per-frequency currents of the profile.
type CPUEntity struct {
	base
	reader CPUTimeReader
	timeMs map[int32]int64
	power  map[int32]cpuPower
}

func newCPU(env *Env, reader CPUTimeReader) *CPUEntity {
	return &CPUEntity{
		base:   base{env: env, kind: stats.ConsumptionCPU},
		reader: reader,
		timeMs: map[int32]int64{},
		power:  map[int32]cpuPower{},
	}
}

// UpdateCPUTime samples the reader and returns the applications it knows.
func (e *CPUEntity) UpdateCPUTime() ([]int32, error) {
	if e.reader == nil {
		return nil, nil
	}
	if err := e.reader.Update(e.env.Clock.OnBattery()); err != nil {
		return nil, err
	}
	return e.reader.UIDs(), nil
}

func (e *CPUEntity) Calculate(uid int32) {
	if e.reader == nil || uid <= stats.NoUID {
		return
	}
	var total int64
	for _, t := range e.reader.UIDTimeMs(uid) {
		total += t
	}
	e.timeMs[uid] = total

	p := e.env.Profile
	var cp cpuPower
	cp.active = mah(p.AverageCurrentMa(profile.KeyCPUActive), e.reader.ActiveTimeMs(uid))
	for c := 0; c < p.ClusterCount(); c++ {
		cp.cluster += mah(p.AverageCurrentMaAt(profile.KeyCPUClusters, c), e.reader.ClusterTimeMs(uid, c))
		key := profile.SpeedKey(c)
		for s := 0; s < p.SpeedBinCount(c); s++ {
			cp.speed += mah(p.AverageCurrentMaAt(key, s), e.reader.SpeedTimeMs(uid, c, s))
		}
	}
	cp.total = cp.active + cp.cluster + cp.speed
	e.power[uid] = cp
}

func (e *CPUEntity) EntityPowerMah(uid int32) float64 {
	return e.power[uid].total
}

func (e *CPUEntity) StatsPowerMah(cause stats.Cause, uid int32) float64 {
	p := e.power[uid]
	switch cause {
	case stats.CauseCPUActive:
		return p.active
	case stats.CauseCPUCluster:
		return p.cluster
	case stats.CauseCPUSpeed:
		return p.speed
	}
	return 0
}

// ActiveTimeMs reports the total CPU time of uid for any CPU cause.
func (e *CPUEntity) ActiveTimeMs(cause stats.Cause, uid int32, _ int16) int64 {
	switch cause {
	case stats.CauseCPUActive, stats.CauseCPUCluster, stats.CauseCPUSpeed:
		return e.timeMs[uid]
	}
	return 0
}

func (e *CPUEntity) Reset() {
	if e.reader != nil {
		e.reader.Reset()
	}
	for uid := range e.timeMs {
		e.timeMs[uid] = 0
	}
	for uid := range e.power {
		e.power[uid] = cpuPower{}
	}
}

func (e *CPUEntity) DumpInfo(b *strings.Builder, uid int32) {
	if uid <= stats.NoUID {
		var ms int64
		var total float64
		for id, t := range e.timeMs {
			ms += t
			total += e.power[id].total
		}
		dumpLine(b, "  cpu: %dms, %.4fmAh", ms, total)
		return
	}
	p := e.power[uid]
	dumpLine(b, "  cpu: %dms, %.4fmAh (active %.4f, cluster %.4f, speed %.4f)",
		e.timeMs[uid], p.total, p.active, p.cluster, p.speed)
}
