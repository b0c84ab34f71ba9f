// Command battery-stats inspects what the battery-stats daemon has recorded
// and feeds events into its spool.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cptspacemanspiff/battery-stats/internal/config"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "battery-stats",
		Short: "Inspect battery power accounting",
		Long: `battery-stats reads the snapshot, history database and power profile
written by battery-stats-daemon, and appends events to its spool.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().String("config", "", "TOML config file (default: environment and built-in defaults)")

	root.AddCommand(
		newShowCmd(),
		newHistoryCmd(),
		newProfileCmd(),
		newEventCmd(),
		newCalibrateCmd(),
		newVersionCmd(),
	)
	return root
}

// loadConfig resolves the --config flag the same way the daemon does.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if path != "" {
		return config.Load(path)
	}
	return config.FromEnv()
}

// stringFlagOr returns the flag value when set, otherwise fallback.
func stringFlagOr(cmd *cobra.Command, name, fallback string) string {
	if v, _ := cmd.Flags().GetString(name); v != "" {
		return v
	}
	return fallback
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "battery-stats %s (commit: %s, built: %s)\n", version, commit, date)
		},
	}
}
