package collector

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/cptspacemanspiff/battery-stats/internal/stats"
)

func TestParseEvent(t *testing.T) {
	now := time.Unix(500, 0)

	tests := []struct {
		name    string
		line    string
		want    Event
		wantErr string
	}{
		{
			name: "state with uid",
			line: `{"ts":100,"cause":"camera_on","state":"activated","uid":1000}`,
			want: Event{Timestamp: 100, Cause: stats.CauseCameraOn, State: stats.StateActivated, Level: stats.NoLevel, UID: 1000},
		},
		{
			name: "level defaults ts to now",
			line: `{"cause":"screen_brightness","state":"display_on","level":3}`,
			want: Event{Timestamp: 500, Cause: stats.CauseScreenBrightness, State: stats.StateDisplayOn, Level: 3, UID: stats.NoUID},
		},
		{
			name: "traffic",
			line: `{"ts":7,"cause":"wifi_rx","elapsed_ms":250,"count":4096,"uid":1000}`,
			want: Event{Timestamp: 7, Cause: stats.CauseWifiRX, State: stats.StateInvalid, Level: stats.NoLevel, UID: 1000, ElapsedMs: 250, Count: 4096, Traffic: true},
		},
		{
			name: "occurrence count",
			line: `{"ts":9,"cause":"alarm","count":2,"uid":1000}`,
			want: Event{Timestamp: 9, Cause: stats.CauseAlarm, State: stats.StateInvalid, Level: stats.NoLevel, UID: 1000, Count: 2, Traffic: true},
		},
		{
			name:    "occurrence cause without count",
			line:    `{"cause":"wifi_scan","uid":1000}`,
			wantErr: "state is required",
		},
		{
			name:    "unknown cause",
			line:    `{"cause":"warp_drive","state":"activated"}`,
			wantErr: "unknown cause",
		},
		{
			name:    "unknown state",
			line:    `{"cause":"gps_on","state":"sideways"}`,
			wantErr: "unknown state",
		},
		{
			name:    "state missing on non traffic cause",
			line:    `{"cause":"gps_on","uid":1000}`,
			wantErr: "state is required",
		},
		{
			name:    "not json",
			line:    `gps_on activated`,
			wantErr: "invalid character",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseEvent([]byte(tt.line), now)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("ParseEvent() error = %v, want contains %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseEvent() error = %v", err)
			}
			if got != tt.want {
				t.Fatalf("ParseEvent() = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestReadAndConsumeEventLog(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	dir := t.TempDir()
	path := filepath.Join(dir, "events.jsonl")

	events := []Event{
		{Timestamp: 10, Cause: stats.CauseGPSOn, State: stats.StateActivated, Level: stats.NoLevel, UID: 1000},
		{Timestamp: 11, Cause: stats.CauseRadioTX, Level: stats.NoLevel, UID: 1000, State: stats.StateInvalid, ElapsedMs: 30, Count: 512, Traffic: true},
	}
	if err := AppendEventLog(path, events[0]); err != nil {
		t.Fatalf("AppendEventLog() error = %v", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := f.WriteString("{broken\n\n"); err != nil {
		t.Fatalf("write: %v", err)
	}
	f.Close()
	if err := AppendEventLog(path, events[1]); err != nil {
		t.Fatalf("AppendEventLog() error = %v", err)
	}

	got := ReadAndConsumeEventLog(logger, time.Unix(99, 0), path)
	if !reflect.DeepEqual(got, events) {
		t.Fatalf("ReadAndConsumeEventLog() = %#v, want %#v", got, events)
	}

	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("event log still exists after consume, stat err = %v", err)
	}
	if _, err := os.Stat(path + ".processing"); !os.IsNotExist(err) {
		t.Fatalf("processing file still exists after consume, stat err = %v", err)
	}

	if again := ReadAndConsumeEventLog(logger, time.Unix(99, 0), path); again != nil {
		t.Fatalf("second ReadAndConsumeEventLog() = %#v, want nil", again)
	}
}

type recordingSink struct {
	states  []Event
	traffic []Event
}

func (r *recordingSink) UpdateState(cause stats.Cause, state stats.State, level int16, uid int32) {
	r.states = append(r.states, Event{Cause: cause, State: state, Level: level, UID: uid})
}

func (r *recordingSink) UpdateTraffic(cause stats.Cause, elapsedMs, count int64, uid int32) {
	r.traffic = append(r.traffic, Event{Cause: cause, ElapsedMs: elapsedMs, Count: count, UID: uid, Traffic: true})
}

func (r *recordingSink) UpdateStateAt(at time.Time, cause stats.Cause, state stats.State, level int16, uid int32) {
	r.states = append(r.states, Event{Timestamp: at.Unix(), Cause: cause, State: state, Level: level, UID: uid})
}

func (r *recordingSink) UpdateTrafficAt(at time.Time, cause stats.Cause, elapsedMs, count int64, uid int32) {
	r.traffic = append(r.traffic, Event{Timestamp: at.Unix(), Cause: cause, ElapsedMs: elapsedMs, Count: count, UID: uid, Traffic: true})
}

func TestEventDispatch(t *testing.T) {
	sink := &recordingSink{}

	Event{Cause: stats.CauseAudioOn, State: stats.StateActivated, Level: stats.NoLevel, UID: 7}.Dispatch(sink)
	Event{Cause: stats.CauseBluetoothTX, ElapsedMs: 5, Count: 9, UID: 7, Traffic: true}.Dispatch(sink)

	if len(sink.states) != 1 || sink.states[0].Cause != stats.CauseAudioOn || sink.states[0].UID != 7 {
		t.Fatalf("states = %#v, want one audio_on event", sink.states)
	}
	if len(sink.traffic) != 1 || sink.traffic[0].Count != 9 || sink.traffic[0].ElapsedMs != 5 {
		t.Fatalf("traffic = %#v, want one bluetooth_tx event", sink.traffic)
	}
}

func TestEventReplayKeepsTimestamp(t *testing.T) {
	sink := &recordingSink{}

	Event{Timestamp: 1000, Cause: stats.CauseCameraOn, State: stats.StateActivated, Level: stats.NoLevel, UID: 7}.Replay(sink)
	Event{Timestamp: 1004, Cause: stats.CauseWifiRX, ElapsedMs: 5, Count: 9, UID: 7, Traffic: true}.Replay(sink)

	if len(sink.states) != 1 || sink.states[0].Timestamp != 1000 || sink.states[0].State != stats.StateActivated {
		t.Fatalf("states = %#v, want camera_on at 1000", sink.states)
	}
	if len(sink.traffic) != 1 || sink.traffic[0].Timestamp != 1004 || sink.traffic[0].Count != 9 {
		t.Fatalf("traffic = %#v, want wifi_rx at 1004", sink.traffic)
	}
}
