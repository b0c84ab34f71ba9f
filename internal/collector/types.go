package collector

import (
	"time"

	"github.com/cptspacemanspiff/battery-stats/internal/stats"
)

// BacklightSample holds a snapshot of display backlight state.
type BacklightSample struct {
	Timestamp     int64 `json:"timestamp"`
	Brightness    int64 `json:"brightness"`
	MaxBrightness int64 `json:"max_brightness"`
	// Powered is false when the panel reports bl_power off.
	Powered bool `json:"powered"`
}

// Event is one state or traffic update destined for the engine. Traffic
// events carry ElapsedMs and Count; state events carry State and Level.
type Event struct {
	Timestamp int64
	Cause     stats.Cause
	State     stats.State
	Level     int16
	UID       int32
	ElapsedMs int64
	Count     int64
	Traffic   bool
}

// PowerPoint is one application's power in one compute pass.
type PowerPoint struct {
	Timestamp int64   `json:"timestamp"`
	PowerMah  float64 `json:"power_mah"`
}

// Sink receives dispatched events.
type Sink interface {
	UpdateState(cause stats.Cause, state stats.State, level int16, uid int32)
	UpdateTraffic(cause stats.Cause, elapsedMs, count int64, uid int32)
}

// Dispatch forwards e to the matching Sink method.
func (e Event) Dispatch(s Sink) {
	if e.Traffic {
		s.UpdateTraffic(e.Cause, e.ElapsedMs, e.Count, e.UID)
		return
	}
	s.UpdateState(e.Cause, e.State, e.Level, e.UID)
}

// TimedSink receives events together with the wall time they happened at.
type TimedSink interface {
	UpdateStateAt(at time.Time, cause stats.Cause, state stats.State, level int16, uid int32)
	UpdateTrafficAt(at time.Time, cause stats.Cause, elapsedMs, count int64, uid int32)
}

// Replay forwards e to s stamped with its own Timestamp.
func (e Event) Replay(s TimedSink) {
	at := time.Unix(e.Timestamp, 0)
	if e.Traffic {
		s.UpdateTrafficAt(at, e.Cause, e.ElapsedMs, e.Count, e.UID)
		return
	}
	s.UpdateStateAt(at, e.Cause, e.State, e.Level, e.UID)
}
