package collector

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/cptspacemanspiff/battery-stats/internal/stats"
)

// eventLogEntry is a single line of the event spool. Collaborators append
// a state entry ({"cause":"camera_on","state":"activated","uid":1000}), a
// traffic entry ({"cause":"wifi_rx","elapsed_ms":250,"count":4096}) or an
// occurrence count ({"cause":"alarm","count":2,"uid":1000}).
type eventLogEntry struct {
	Ts        int64  `json:"ts,omitempty"`
	Cause     string `json:"cause"`
	State     string `json:"state,omitempty"`
	Level     *int16 `json:"level,omitempty"`
	UID       *int32 `json:"uid,omitempty"`
	ElapsedMs int64  `json:"elapsed_ms,omitempty"`
	Count     int64  `json:"count,omitempty"`
}

var errMissingState = errors.New("state is required, or a count for wifi_scan and alarm")

// ParseEvent decodes one spool line. Missing uid and level default to
// stats.NoUID and stats.NoLevel; a missing ts defaults to now.
func ParseEvent(line []byte, now time.Time) (Event, error) {
	var entry eventLogEntry
	if err := json.Unmarshal(line, &entry); err != nil {
		return Event{}, err
	}
	return entry.event(now)
}

func (e eventLogEntry) event(now time.Time) (Event, error) {
	cause, ok := stats.ParseCause(e.Cause)
	if !ok {
		return Event{}, fmt.Errorf("unknown cause %q", e.Cause)
	}
	ev := Event{
		Timestamp: e.Ts,
		Cause:     cause,
		State:     stats.StateInvalid,
		Level:     stats.NoLevel,
		UID:       stats.NoUID,
	}
	if ev.Timestamp == 0 {
		ev.Timestamp = now.Unix()
	}
	if e.Level != nil {
		ev.Level = *e.Level
	}
	if e.UID != nil {
		ev.UID = *e.UID
	}

	if e.State == "" {
		switch {
		case cause.Traffic():
		case cause.PerOccurrence() && e.Count > 0:
			e.ElapsedMs = 0
		default:
			return Event{}, fmt.Errorf("cause %s: %w", cause, errMissingState)
		}
		ev.Traffic = true
		ev.ElapsedMs = e.ElapsedMs
		ev.Count = e.Count
		return ev, nil
	}
	if ev.State, ok = stats.ParseState(e.State); !ok {
		return Event{}, fmt.Errorf("unknown state %q", e.State)
	}
	return ev, nil
}

// EncodeEvent renders e as one spool line without the trailing newline.
func EncodeEvent(e Event) ([]byte, error) {
	level, uid := e.Level, e.UID
	entry := eventLogEntry{Ts: e.Timestamp, Cause: e.Cause.String(), Level: &level, UID: &uid}
	if e.Traffic {
		entry.ElapsedMs = e.ElapsedMs
		entry.Count = e.Count
	} else {
		entry.State = e.State.String()
	}
	return json.Marshal(entry)
}

// AppendEventLog appends e to the spool at path, creating it if needed.
func AppendEventLog(path string, e Event) error {
	line, err := EncodeEvent(e)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open event log: %w", err)
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		f.Close()
		return fmt.Errorf("write event log: %w", err)
	}
	return f.Close()
}

// ReadAndConsumeEventLog atomically takes the spool at path and returns its
// events in file order. Malformed lines are logged and skipped.
func ReadAndConsumeEventLog(logger *slog.Logger, now time.Time, path string) []Event {
	processingPath := path + ".processing"

	// Atomic rename so writers start a fresh file for new entries.
	if err := os.Rename(path, processingPath); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		logger.Error("rename failed", "err", err)
		return nil
	}

	f, err := os.Open(processingPath)
	if err != nil {
		logger.Error("open processing file", "err", err)
		return nil
	}
	defer f.Close()
	defer os.Remove(processingPath)

	var events []Event
	scanner := bufio.NewScanner(f)
	line := 0
	for scanner.Scan() {
		line++
		if len(scanner.Bytes()) == 0 {
			continue
		}
		ev, err := ParseEvent(scanner.Bytes(), now)
		if err != nil {
			logger.Warn("skip malformed line", "line", line, "err", err)
			continue
		}
		events = append(events, ev)
	}
	if err := scanner.Err(); err != nil {
		logger.Warn("read event log", "err", err)
	}
	return events
}
