package stats

import "golang.org/x/sys/unix"

// TimeSource reports the two kernel clocks on-battery time is derived from.
type TimeSource interface {
	// BootTimeMs includes time spent suspended.
	BootTimeMs() int64
	// UpTimeMs excludes time spent suspended.
	UpTimeMs() int64
}

// SystemTime reads CLOCK_BOOTTIME and CLOCK_MONOTONIC.
type SystemTime struct{}

func (SystemTime) BootTimeMs() int64 { return clockMs(unix.CLOCK_BOOTTIME) }

func (SystemTime) UpTimeMs() int64 { return clockMs(unix.CLOCK_MONOTONIC) }

func clockMs(id int32) int64 {
	var ts unix.Timespec
	if err := unix.ClockGettime(id, &ts); err != nil {
		return 0
	}
	return ts.Nano() / 1_000_000
}

// ManualTime is a TimeSource advanced by hand.
type ManualTime struct {
	boot int64
	up   int64
}

func (m *ManualTime) BootTimeMs() int64 { return m.boot }

func (m *ManualTime) UpTimeMs() int64 { return m.up }

// Advance moves both clocks forward while the system is awake.
func (m *ManualTime) Advance(ms int64) {
	m.boot += ms
	m.up += ms
}

// Suspend moves only the boot clock forward.
func (m *ManualTime) Suspend(ms int64) {
	m.boot += ms
}

// DelayedTime reads another TimeSource shifted back by a lag, so events that
// arrive late can be applied at the moment they happened.
type DelayedTime struct {
	src   TimeSource
	lagMs int64
}

func NewDelayedTime(src TimeSource) *DelayedTime {
	if src == nil {
		src = SystemTime{}
	}
	return &DelayedTime{src: src}
}

func (d *DelayedTime) BootTimeMs() int64 { return d.src.BootTimeMs() - d.lagMs }

func (d *DelayedTime) UpTimeMs() int64 { return d.src.UpTimeMs() - d.lagMs }

// SetLag sets how far behind the source the clock reads. Negative lags read
// as zero.
func (d *DelayedTime) SetLag(ms int64) {
	d.lagMs = max(ms, 0)
}

// BatteryClock accumulates boot and up time only while the device runs on
// battery. Every ActiveTimer reads it, which is what gates accounting on
// the charge state.
type BatteryClock struct {
	src       TimeSource
	onBattery bool

	unplugBootMs int64
	unplugUpMs   int64
	bootMs       int64
	upMs         int64
}

func NewBatteryClock(src TimeSource) *BatteryClock {
	if src == nil {
		src = SystemTime{}
	}
	return &BatteryClock{src: src}
}

func (c *BatteryClock) SetOnBattery(on bool) {
	if on == c.onBattery {
		return
	}
	if on {
		c.unplugBootMs = c.src.BootTimeMs()
		c.unplugUpMs = c.src.UpTimeMs()
	} else {
		c.bootMs += c.src.BootTimeMs() - c.unplugBootMs
		c.upMs += c.src.UpTimeMs() - c.unplugUpMs
	}
	c.onBattery = on
}

func (c *BatteryClock) OnBattery() bool {
	return c.onBattery
}

// OnBatteryBootTimeMs returns the boot time spent on battery, suspend included.
// A source reading before the unplug time adds nothing.
func (c *BatteryClock) OnBatteryBootTimeMs() int64 {
	t := c.bootMs
	if d := c.src.BootTimeMs() - c.unplugBootMs; c.onBattery && d > 0 {
		t += d
	}
	return t
}

// OnBatteryUpTimeMs returns the awake time spent on battery.
func (c *BatteryClock) OnBatteryUpTimeMs() int64 {
	t := c.upMs
	if d := c.src.UpTimeMs() - c.unplugUpMs; c.onBattery && d > 0 {
		t += d
	}
	return t
}

// Reset drops the banked time. The charge state is kept; if on battery,
// accumulation restarts from now.
func (c *BatteryClock) Reset() {
	c.bootMs = 0
	c.upMs = 0
	if c.onBattery {
		c.unplugBootMs = c.src.BootTimeMs()
		c.unplugUpMs = c.src.UpTimeMs()
	}
}
