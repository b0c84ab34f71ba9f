package core

import (
	"github.com/cptspacemanspiff/battery-stats/internal/stats"
)

// BatteryStats returns a copy of the last compute pass.
func (c *Core) BatteryStats() []stats.Info {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ledger.Infos()
}

func (c *Core) TotalPowerMah() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ledger.TotalMah()
}

// AppStatsMah is the power of uid's APP record, or 0.
func (c *Core) AppStatsMah(uid int32) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	info, _ := c.ledger.App(uid)
	return info.PowerMah
}

// AppStatsPercent is uid's share of the total, or 0 when the total is 0.
func (c *Core) AppStatsPercent(uid int32) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	info, _ := c.ledger.App(uid)
	return c.percentLocked(info.PowerMah)
}

// PartStatsMah is the power of the first record of type t, or 0.
func (c *Core) PartStatsMah(t stats.ConsumptionType) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	info, _ := c.ledger.Part(t)
	return info.PowerMah
}

func (c *Core) PartStatsPercent(t stats.ConsumptionType) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	info, _ := c.ledger.Part(t)
	return c.percentLocked(info.PowerMah)
}

func (c *Core) percentLocked(mah float64) float64 {
	total := c.ledger.TotalMah()
	if total <= 0 {
		return 0
	}
	return mah / total
}

// TotalTimeMs returns the accumulated time of a hardware cause. level
// selects a brightness or signal bin; stats.NoLevel sums every bin.
func (c *Core) TotalTimeMs(cause stats.Cause, level int16) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.set.ForCause(cause)
	if e == nil {
		return 0
	}
	return e.ActiveTimeMs(cause, stats.NoUID, level)
}

// UIDTotalTimeMs returns the accumulated time of a per-application cause.
// For CPU causes this is the application's total CPU time.
func (c *Core) UIDTotalTimeMs(uid int32, cause stats.Cause, level int16) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if uid <= stats.NoUID {
		return 0
	}
	return c.set.UID.ActiveTimeMs(cause, uid, level)
}

// TotalDataCount returns the bytes of an RX/TX cause for uid, or across
// every application for stats.NoUID.
func (c *Core) TotalDataCount(cause stats.Cause, uid int32) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !cause.Traffic() {
		return 0
	}
	return c.set.ForCause(cause).Count(cause, uid)
}

// TotalConsumptionCount returns the occurrences of a per-occurrence cause.
func (c *Core) TotalConsumptionCount(cause stats.Cause, uid int32) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !cause.PerOccurrence() {
		return 0
	}
	return c.set.ForCause(cause).Count(cause, uid)
}

// UIDs lists every application seen so far.
func (c *Core) UIDs() []int32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.set.UID.UIDs()
}
