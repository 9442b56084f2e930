package main

import (
	"errors"
	"fmt"
	"sort"
	"text/tabwriter"

	"rungchat/internal/usage"

	"github.com/spf13/cobra"
)

var resetUsage bool

// usageCmd shows request statistics
var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Show backend request statistics",
	Long: `Prints how many requests each backend endpoint received, how many
failed, and the time spent: as reported by the backend and as measured here.`,
	Args: cobra.NoArgs,
	RunE: runUsage,
}

func init() {
	usageCmd.Flags().BoolVar(&resetUsage, "reset", false, "Clear the statistics")
	rootCmd.AddCommand(usageCmd)
}

func runUsage(cmd *cobra.Command, args []string) error {
	if cfg.Usage.Path == "" {
		return errors.New("no usage file configured")
	}
	tracker, err := usage.NewTracker(cfg.Usage.Path)
	if err != nil {
		return err
	}
	defer tracker.Close()

	out := cmd.OutOrStdout()
	if resetUsage {
		if err := tracker.Reset(); err != nil {
			return err
		}
		fmt.Fprintln(out, "Usage statistics cleared.")
		return nil
	}

	stats := tracker.Stats()
	if stats.Total.Requests == 0 {
		fmt.Fprintln(out, "No requests recorded.")
		return nil
	}

	endpoints := make([]string, 0, len(stats.ByEndpoint))
	for name := range stats.ByEndpoint {
		endpoints = append(endpoints, name)
	}
	sort.Strings(endpoints)

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ENDPOINT\tREQUESTS\tFAILED\tSERVER\tWALL")
	row := func(name string, c usage.RequestCounts) {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%.2fs\t%.2fs\n", name, c.Requests, c.Failures, c.ServerSeconds, c.WallSeconds)
	}
	for _, name := range endpoints {
		row(name, stats.ByEndpoint[name])
	}
	row("total", stats.Total)
	if err := tw.Flush(); err != nil {
		return err
	}
	if !stats.LastUsed.IsZero() {
		fmt.Fprintf(out, "Last request: %s\n", stats.LastUsed.Local().Format("2006-01-02 15:04:05"))
	}
	return nil
}
