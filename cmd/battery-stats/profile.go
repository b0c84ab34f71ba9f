package main

import (
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/cptspacemanspiff/battery-stats/internal/profile"
)

func newProfileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Validate and list a power profile",
		RunE:  runProfile,
	}
	cmd.Flags().String("path", "", "power profile (default: profile.path)")
	cmd.Flags().Bool("json", false, "Output as JSON")
	return cmd
}

func runProfile(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	path := stringFlagOr(cmd, "path", cfg.Profile.Path)

	p, err := profile.Load(path)
	if err != nil {
		return err
	}
	entries := p.Entries()

	if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
		out := make(map[string][]float64, len(entries))
		for _, e := range entries {
			out[e.Key] = e.Values
		}
		return encodeJSON(cmd, out)
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "Key\tmA")
	for _, e := range entries {
		values := make([]string, len(e.Values))
		for i, v := range e.Values {
			values[i] = strconv.FormatFloat(v, 'g', -1, 64)
		}
		fmt.Fprintf(w, "%s\t%s\n", e.Key, strings.Join(values, " "))
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "\n%d keys, %d cpu clusters\n", len(entries), p.ClusterCount())
	return nil
}
