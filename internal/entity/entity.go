// Package entity implements the per-component power models. Every entity
// owns the timers and counters for the causes it serves and turns them into
// mAh on Calculate.
package entity

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/cptspacemanspiff/battery-stats/internal/profile"
	"github.com/cptspacemanspiff/battery-stats/internal/stats"
)

// Entity is a single power model. uid is stats.NoUID for hardware-level
// queries and level is stats.NoLevel for causes without levels.
type Entity interface {
	Type() stats.ConsumptionType
	// Calculate recomputes power. Hardware entities append their record to
	// the shared ledger; per-application entities only update their own maps.
	Calculate(uid int32)
	// EntityPowerMah is the last computed power for uid (or user id for the
	// user entity, or the hardware record for stats.NoUID).
	EntityPowerMah(uid int32) float64
	StatsPowerMah(cause stats.Cause, uid int32) float64
	ActiveTimeMs(cause stats.Cause, uid int32, level int16) int64
	// Count returns traffic bytes or occurrence counts.
	Count(cause stats.Cause, uid int32) int64
	// Timer returns the timer backing cause, creating it on first use, or
	// nil when the entity does not track cause for that uid and level.
	Timer(cause stats.Cause, uid int32, level int16) *stats.ActiveTimer
	Counter(cause stats.Cause, uid int32) *stats.Counter
	Reset()
	DumpInfo(b *strings.Builder, uid int32)
}

// Env is the state entities share with the core that owns them.
type Env struct {
	Profile *profile.Profile
	Clock   *stats.BatteryClock
	Ledger  *Ledger
	Logger  *slog.Logger
}

func (env *Env) currentMa(key string) float64 {
	return env.Profile.AverageCurrentMa(key)
}

func (env *Env) currentMaAt(key string, level int) float64 {
	return env.Profile.AverageCurrentMaAt(key, level)
}

// Ledger is the output of a compute pass: the grand total and the list of
// records in production order.
type Ledger struct {
	totalMah float64
	infos    []stats.Info
}

func (l *Ledger) Add(mah float64) {
	l.totalMah += mah
}

func (l *Ledger) Append(info stats.Info) {
	l.infos = append(l.infos, info)
}

func (l *Ledger) TotalMah() float64 {
	return l.totalMah
}

// Infos returns a copy of the records.
func (l *Ledger) Infos() []stats.Info {
	out := make([]stats.Info, len(l.infos))
	copy(out, l.infos)
	return out
}

// App returns the first application record for uid.
func (l *Ledger) App(uid int32) (stats.Info, bool) {
	for _, info := range l.infos {
		if info.Type == stats.ConsumptionApp && info.UID == uid {
			return info, true
		}
	}
	return stats.Info{}, false
}

// Part returns the first record of a hardware type.
func (l *Ledger) Part(t stats.ConsumptionType) (stats.Info, bool) {
	for _, info := range l.infos {
		if info.Type == t {
			return info, true
		}
	}
	return stats.Info{}, false
}

func (l *Ledger) Reset() {
	l.totalMah = 0
	l.infos = nil
}

// Restore replaces the ledger contents with a previously saved pass.
func (l *Ledger) Restore(totalMah float64, infos []stats.Info) {
	l.totalMah = totalMah
	l.infos = append([]stats.Info(nil), infos...)
}

func mah(ma float64, ms int64) float64 {
	return ma * float64(ms) / stats.MsInHour
}

// base supplies the zero answers for causes an entity does not serve.
type base struct {
	env  *Env
	kind stats.ConsumptionType
}

func (b *base) Type() stats.ConsumptionType { return b.kind }

func (b *base) Calculate(int32) {}

func (b *base) EntityPowerMah(int32) float64 { return 0 }

func (b *base) StatsPowerMah(stats.Cause, int32) float64 { return 0 }

func (b *base) ActiveTimeMs(stats.Cause, int32, int16) int64 { return 0 }

func (b *base) Count(stats.Cause, int32) int64 { return 0 }

func (b *base) Timer(cause stats.Cause, uid int32, level int16) *stats.ActiveTimer {
	b.env.Logger.Debug("no timer for cause", "entity", b.kind, "cause", cause, "uid", uid, "level", level)
	return nil
}

func (b *base) Counter(cause stats.Cause, uid int32) *stats.Counter {
	b.env.Logger.Debug("no counter for cause", "entity", b.kind, "cause", cause, "uid", uid)
	return nil
}

func (b *base) Reset() {}

func (b *base) DumpInfo(*strings.Builder, int32) {}

func (b *base) record(powerMah float64) {
	b.env.Ledger.Append(stats.Info{
		Type:     b.kind,
		UID:      stats.NoUID,
		UserID:   stats.NoUID,
		PowerMah: powerMah,
	})
}

type uidTimers map[int32]*stats.ActiveTimer

func (m uidTimers) get(clock *stats.BatteryClock, uid int32) *stats.ActiveTimer {
	t, ok := m[uid]
	if !ok {
		t = stats.NewActiveTimer(clock)
		m[uid] = t
	}
	return t
}

func (m uidTimers) timeMs(uid int32) int64 {
	if t, ok := m[uid]; ok {
		return t.RunningTimeMs()
	}
	return 0
}

func (m uidTimers) reset() {
	for _, t := range m {
		t.Reset()
	}
}

type uidCounters map[int32]*stats.Counter

func (m uidCounters) get(uid int32) *stats.Counter {
	c, ok := m[uid]
	if !ok {
		c = &stats.Counter{}
		m[uid] = c
	}
	return c
}

func (m uidCounters) count(uid int32) int64 {
	if c, ok := m[uid]; ok {
		return c.Count()
	}
	return 0
}

func (m uidCounters) total() int64 {
	var n int64
	for _, c := range m {
		n += c.Count()
	}
	return n
}

func (m uidCounters) reset() {
	for _, c := range m {
		c.Reset()
	}
}

type uidPower map[int32]float64

func (m uidPower) sum() float64 {
	var total float64
	for _, p := range m {
		total += p
	}
	return total
}

func (m uidPower) reset() {
	for k := range m {
		m[k] = 0
	}
}

// levelTimers holds one timer per level in [0, bins).
type levelTimers struct {
	timers []*stats.ActiveTimer
}

func newLevelTimers(clock *stats.BatteryClock, bins int) levelTimers {
	lt := levelTimers{timers: make([]*stats.ActiveTimer, bins)}
	for i := range lt.timers {
		lt.timers[i] = stats.NewActiveTimer(clock)
	}
	return lt
}

func (lt levelTimers) get(level int16) *stats.ActiveTimer {
	if level < 0 || int(level) >= len(lt.timers) {
		return nil
	}
	return lt.timers[level]
}

// timeMs returns one level, or the sum across levels for stats.NoLevel.
func (lt levelTimers) timeMs(level int16) int64 {
	if level == stats.NoLevel {
		var total int64
		for _, t := range lt.timers {
			total += t.RunningTimeMs()
		}
		return total
	}
	if t := lt.get(level); t != nil {
		return t.RunningTimeMs()
	}
	return 0
}

func (lt levelTimers) reset() {
	for _, t := range lt.timers {
		t.Reset()
	}
}

func sortedKeys[V any](m map[int32]V) []int32 {
	keys := make([]int32, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

func dumpLine(b *strings.Builder, format string, args ...any) {
	fmt.Fprintf(b, format, args...)
	b.WriteByte('\n')
}
