package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/cptspacemanspiff/battery-stats/internal/snapshot"
	"github.com/cptspacemanspiff/battery-stats/internal/stats"
)

func newShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the last saved snapshot",
		RunE:  runShow,
	}
	cmd.Flags().String("snapshot", "", "snapshot file (default: storage.snapshot_path)")
	cmd.Flags().Bool("json", false, "Output as JSON")
	return cmd
}

func runShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	path := stringFlagOr(cmd, "snapshot", cfg.Storage.SnapshotPath)

	doc, err := snapshot.NewStore(path).Load()
	if errors.Is(err, snapshot.ErrNotFound) {
		return fmt.Errorf("no snapshot at %s; is battery-stats-daemon running?", path)
	}
	if err != nil {
		return err
	}

	if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(doc)
	}
	printSnapshot(cmd.OutOrStdout(), doc)
	return nil
}

type powerRow struct {
	key  int
	name string
	mah  float64
}

// splitPower separates application entries (uid keys) from hardware parts
// (negative consumption type keys).
func splitPower(doc *snapshot.Document) (apps, parts []powerRow) {
	for key, mah := range doc.Power {
		n, err := strconv.Atoi(key)
		if err != nil {
			continue
		}
		if n >= 0 {
			apps = append(apps, powerRow{key: n, name: key, mah: mah})
			continue
		}
		parts = append(parts, powerRow{key: n, name: stats.ConsumptionType(n).String(), mah: mah})
	}
	byPower := func(rows []powerRow) func(i, j int) bool {
		return func(i, j int) bool {
			if rows[i].mah != rows[j].mah {
				return rows[i].mah > rows[j].mah
			}
			return rows[i].key < rows[j].key
		}
	}
	sort.Slice(apps, byPower(apps))
	sort.Slice(parts, byPower(parts))
	return apps, parts
}

func percent(mah, total float64) string {
	if total <= 0 {
		return "-"
	}
	return fmt.Sprintf("%.1f%%", mah/total*100)
}

func printSnapshot(out io.Writer, doc *snapshot.Document) {
	total := doc.TotalMah()
	apps, parts := splitPower(doc)

	fmt.Fprintf(out, "Total: %.3f mAh\n\n", total)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "UID\tmAh\tShare\tCPU\tGPS\tCamera\tWakelock")
	for _, a := range apps {
		sw := doc.Software[a.name]
		fmt.Fprintf(w, "%s\t%.3f\t%s\t%s\t%s\t%s\t%s\n",
			a.name, a.mah, percent(a.mah, total),
			formatMs(sw.CPUTime), formatMs(sw.GPSOn), formatMs(sw.CameraOn), formatMs(sw.WakelockHold))
	}
	w.Flush()

	fmt.Fprintln(out)
	w = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "Part\tmAh\tShare")
	for _, p := range parts {
		fmt.Fprintf(w, "%s\t%.3f\t%s\n", p.name, p.mah, percent(p.mah, total))
	}
	w.Flush()

	hw := doc.Hardware
	fmt.Fprintln(out)
	w = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "Hardware\tTime")
	for _, row := range []struct {
		name string
		ms   int64
	}{
		{"screen_on", hw.ScreenOn},
		{"wifi_on", hw.WifiOn},
		{"bluetooth_on", hw.BluetoothOn},
		{"cpu_idle", hw.CPUIdle},
		{"radio_active", hw.RadioActive},
		{"radio_scan", hw.RadioScan},
	} {
		fmt.Fprintf(w, "%s\t%s\n", row.name, formatMs(row.ms))
	}
	w.Flush()
}

func formatMs(ms int64) string {
	if ms <= 0 {
		return "-"
	}
	return (time.Duration(ms) * time.Millisecond).Round(time.Second).String()
}
