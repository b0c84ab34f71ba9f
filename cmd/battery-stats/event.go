package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/cptspacemanspiff/battery-stats/internal/collector"
	"github.com/cptspacemanspiff/battery-stats/internal/stats"
)

func newEventCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "event",
		Short: "Append a state or traffic event to the daemon's spool",
		Example: `  battery-stats event --cause camera_on --state activated --uid 10001
  battery-stats event --cause wifi_rx --elapsed-ms 250 --count 4096 --uid 10001
  battery-stats event --cause alarm --count 2 --uid 10001`,
		RunE: runEvent,
	}
	cmd.Flags().String("log", "", "event spool (default: storage.event_log_path)")
	cmd.Flags().String("cause", "", "event cause, e.g. gps_on or wifi_rx")
	cmd.Flags().String("state", "", "state for state events, e.g. activated or display_on")
	cmd.Flags().Int16("level", stats.NoLevel, "brightness or signal level")
	cmd.Flags().Int32("uid", stats.NoUID, "application uid")
	cmd.Flags().Int64("elapsed-ms", 0, "active time for traffic events")
	cmd.Flags().Int64("count", 0, "bytes for traffic events, occurrences for counted causes")
	_ = cmd.MarkFlagRequired("cause")
	return cmd
}

// buildEvent validates flag values into an event.
func buildEvent(causeName, stateName string, level int16, uid int32, elapsedMs, count int64, now time.Time) (collector.Event, error) {
	cause, ok := stats.ParseCause(causeName)
	if !ok {
		return collector.Event{}, fmt.Errorf("unknown cause %q", causeName)
	}
	e := collector.Event{
		Timestamp: now.Unix(),
		Cause:     cause,
		State:     stats.StateInvalid,
		Level:     level,
		UID:       uid,
	}
	if stateName == "" {
		if elapsedMs < 0 || count < 0 {
			return collector.Event{}, fmt.Errorf("--elapsed-ms and --count must not be negative")
		}
		switch {
		case cause.Traffic():
		case cause.PerOccurrence() && count > 0:
			elapsedMs = 0
		default:
			return collector.Event{}, fmt.Errorf("--state is required for %s (or --count for wifi_scan and alarm)", cause)
		}
		e.Traffic = true
		e.ElapsedMs = elapsedMs
		e.Count = count
		return e, nil
	}
	if e.State, ok = stats.ParseState(stateName); !ok {
		return collector.Event{}, fmt.Errorf("unknown state %q", stateName)
	}
	return e, nil
}

func runEvent(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	causeName, _ := flags.GetString("cause")
	stateName, _ := flags.GetString("state")
	level, _ := flags.GetInt16("level")
	uid, _ := flags.GetInt32("uid")
	elapsedMs, _ := flags.GetInt64("elapsed-ms")
	count, _ := flags.GetInt64("count")

	e, err := buildEvent(causeName, stateName, level, uid, elapsedMs, count, time.Now())
	if err != nil {
		return err
	}
	path := stringFlagOr(cmd, "log", cfg.Storage.EventLogPath)
	if err := collector.AppendEventLog(path, e); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "queued %s event in %s\n", e.Cause, path)
	return nil
}
