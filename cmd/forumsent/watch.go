package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pevans/forumsent"
)

// NewWatchCmd creates the watch command.
func NewWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Crawl on a schedule until interrupted",
		Long: `Watch repeats the crawl on a cron schedule. A run that is still going when
the next one is due makes the scheduler skip that tick.

Examples:
  forumsent watch --schedule @hourly --incremental
  forumsent watch --schedule "30 2 * * *" --now`,
		Args: cobra.NoArgs,
		RunE: runWatchCmd,
	}

	addCrawlFlags(cmd)
	cmd.Flags().String("schedule", "", "Cron expression or descriptor (default from config, @daily)")
	cmd.Flags().Bool("now", false, "Run once immediately before waiting for the schedule")

	return cmd
}

func runWatchCmd(cmd *cobra.Command, _ []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := applyCrawlFlags(cmd, a.cfg); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}
	if cmd.Flags().Changed("schedule") {
		a.cfg.Watch.Schedule, _ = cmd.Flags().GetString("schedule")
	}
	if cmd.Flags().Changed("now") {
		a.cfg.Watch.RunAtStart, _ = cmd.Flags().GetBool("now")
	}

	svc, err := a.service()
	if err != nil {
		return err
	}
	opts, err := a.runOptions()
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	return svc.Watch(ctx, forumsent.WatchOptions{
		Schedule:   a.cfg.Watch.Schedule,
		RunAtStart: a.cfg.Watch.RunAtStart,
		Run:        opts,
	})
}
