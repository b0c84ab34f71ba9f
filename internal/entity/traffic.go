package entity

import (
	"strings"

	"github.com/cptspacemanspiff/battery-stats/internal/stats"
)

// traffic tracks per-uid RX and TX time and bytes for a connectivity entity.
type traffic struct {
	env      *Env
	rxCause  stats.Cause
	txCause  stats.Cause
	rxKey    string
	txKey    string
	rxTimers uidTimers
	txTimers uidTimers
	rxBytes  uidCounters
	txBytes  uidCounters
	rxPower  uidPower
	txPower  uidPower
}

func newTraffic(env *Env, rxCause, txCause stats.Cause, rxKey, txKey string) *traffic {
	return &traffic{
		env:      env,
		rxCause:  rxCause,
		txCause:  txCause,
		rxKey:    rxKey,
		txKey:    txKey,
		rxTimers: uidTimers{},
		txTimers: uidTimers{},
		rxBytes:  uidCounters{},
		txBytes:  uidCounters{},
		rxPower:  uidPower{},
		txPower:  uidPower{},
	}
}

func (t *traffic) serves(cause stats.Cause) bool {
	return cause == t.rxCause || cause == t.txCause
}

// calculate returns rx + tx power for uid.
func (t *traffic) calculate(uid int32) float64 {
	t.rxPower[uid] = mah(t.env.currentMa(t.rxKey), t.rxTimers.timeMs(uid))
	t.txPower[uid] = mah(t.env.currentMa(t.txKey), t.txTimers.timeMs(uid))
	return t.rxPower[uid] + t.txPower[uid]
}

func (t *traffic) power(cause stats.Cause, uid int32) float64 {
	if cause == t.rxCause {
		return t.rxPower[uid]
	}
	return t.txPower[uid]
}

func (t *traffic) timeMs(cause stats.Cause, uid int32) int64 {
	if cause == t.rxCause {
		return t.rxTimers.timeMs(uid)
	}
	return t.txTimers.timeMs(uid)
}

// count returns bytes for uid, or across every uid for stats.NoUID.
func (t *traffic) count(cause stats.Cause, uid int32) int64 {
	c := t.txBytes
	if cause == t.rxCause {
		c = t.rxBytes
	}
	if uid <= stats.NoUID {
		return c.total()
	}
	return c.count(uid)
}

func (t *traffic) timer(cause stats.Cause, uid int32) *stats.ActiveTimer {
	if cause == t.rxCause {
		return t.rxTimers.get(t.env.Clock, uid)
	}
	return t.txTimers.get(t.env.Clock, uid)
}

func (t *traffic) counter(cause stats.Cause, uid int32) *stats.Counter {
	if cause == t.rxCause {
		return t.rxBytes.get(uid)
	}
	return t.txBytes.get(uid)
}

func (t *traffic) reset() {
	t.rxTimers.reset()
	t.txTimers.reset()
	t.rxBytes.reset()
	t.txBytes.reset()
	t.rxPower.reset()
	t.txPower.reset()
}

func (t *traffic) dump(b *strings.Builder, uid int32) {
	dumpLine(b, "  %s: %dms, %d bytes, %.4fmAh", t.rxCause, t.rxTimers.timeMs(uid), t.rxBytes.count(uid), t.rxPower[uid])
	dumpLine(b, "  %s: %dms, %d bytes, %.4fmAh", t.txCause, t.txTimers.timeMs(uid), t.txBytes.count(uid), t.txPower[uid])
}
