package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/cptspacemanspiff/battery-stats/internal/collector"
	"github.com/cptspacemanspiff/battery-stats/internal/stats"
	"github.com/cptspacemanspiff/battery-stats/internal/storage"
)

const defaultHistoryHours = 24

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List stored compute passes",
		RunE:  runHistory,
	}
	cmd.Flags().String("db", "", "history database (default: storage.db_path)")
	cmd.Flags().Int("hours", defaultHistoryHours, "Lookback window in hours")
	cmd.Flags().Int32("uid", stats.NoUID, "Show one application's power per pass instead")
	cmd.Flags().Bool("json", false, "Output as JSON")
	return cmd
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	hours, _ := cmd.Flags().GetInt("hours")
	if hours < 1 {
		return fmt.Errorf("invalid --hours: must be >= 1")
	}
	uid, _ := cmd.Flags().GetInt32("uid")
	if uid < stats.NoUID {
		return fmt.Errorf("invalid --uid: %d", uid)
	}
	jsonOutput, _ := cmd.Flags().GetBool("json")

	db, err := storage.Open(stringFlagOr(cmd, "db", cfg.Storage.DBPath))
	if err != nil {
		return err
	}
	defer db.Close()

	to := time.Now()
	from := to.Add(-time.Duration(hours) * time.Hour)

	if uid > stats.NoUID {
		points, err := db.AppHistory(uid, from.Unix(), to.Unix())
		if err != nil {
			return fmt.Errorf("load app history: %w", err)
		}
		if points == nil {
			points = []collector.PowerPoint{}
		}
		if jsonOutput {
			return encodeJSON(cmd, points)
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintf(w, "Time\tuid %d mAh\n", uid)
		for _, p := range points {
			fmt.Fprintf(w, "%s\t%.3f\n", time.Unix(p.Timestamp, 0).Format(time.DateTime), p.PowerMah)
		}
		return w.Flush()
	}

	passes, err := db.PassesInRange(from.Unix(), to.Unix())
	if err != nil {
		return fmt.Errorf("load history: %w", err)
	}
	if passes == nil {
		passes = []stats.Pass{}
	}
	if jsonOutput {
		return encodeJSON(cmd, passes)
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "Time\tID\tBattery\tTotal mAh\tRecords")
	for _, p := range passes {
		fmt.Fprintf(w, "%s\t%s\t%t\t%.3f\t%d\n",
			p.Timestamp.Format(time.DateTime), p.ID, p.OnBattery, p.TotalMah, len(p.Records))
	}
	return w.Flush()
}

func encodeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
