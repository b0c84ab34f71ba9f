package stats

// ActiveTimer accumulates on-battery time between StartRunning and
// StopRunning. Start and stop are idempotent.
type ActiveTimer struct {
	clock   *BatteryClock
	running bool
	startMs int64
	totalMs int64
}

func NewActiveTimer(clock *BatteryClock) *ActiveTimer {
	return &ActiveTimer{clock: clock}
}

func (t *ActiveTimer) StartRunning() {
	if t.running {
		return
	}
	t.startMs = t.clock.OnBatteryBootTimeMs()
	t.running = true
}

func (t *ActiveTimer) StopRunning() {
	if !t.running {
		return
	}
	if d := t.clock.OnBatteryBootTimeMs() - t.startMs; d > 0 {
		t.totalMs += d
	}
	t.running = false
}

func (t *ActiveTimer) Running() bool {
	return t.running
}

// RunningTimeMs returns the time accumulated up to the last stop. An
// interval still in progress is not included.
func (t *ActiveTimer) RunningTimeMs() int64 {
	return t.totalMs
}

// AddRunningTimeMs credits elapsed time reported by an external source.
func (t *ActiveTimer) AddRunningTimeMs(ms int64) {
	if ms > 0 {
		t.totalMs += ms
	}
}

func (t *ActiveTimer) Reset() {
	t.totalMs = 0
	t.running = false
	t.startMs = 0
}

// Counter is a monotonic occurrence or byte count.
type Counter struct {
	count int64
}

func (c *Counter) AddCount(n int64) {
	if n > 0 {
		c.count += n
	}
}

func (c *Counter) Count() int64 {
	return c.count
}

func (c *Counter) Reset() {
	c.count = 0
}
