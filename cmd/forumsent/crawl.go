package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pevans/forumsent/config"
)

// NewCrawlCmd creates the crawl command.
func NewCrawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Crawl the forum once and store new records",
		Long: `Crawl walks the section tree from the forum root (or --root), collects every
discussion, and stores the posts dated inside the requested range. Records
already in the store are left untouched.

Examples:
  # Everything since the start of 2023
  forumsent crawl --start 2023-01-01

  # Only two discussions, keeping local JSON copies of sections and discussions
  forumsent crawl --title "Presentazioni" --title "Regolamento" --snapshot-dir ./snapshots

  # Continue from the day of the last completed run
  forumsent crawl --incremental`,
		Args: cobra.NoArgs,
		RunE: runCrawlCmd,
	}

	addCrawlFlags(cmd)
	cmd.Flags().String("root", "", "Page to start the section walk from (default: forum root)")
	cmd.Flags().BoolP("json", "j", false, "Print the run summary as JSON")

	return cmd
}

// addCrawlFlags registers the flags shared by crawl and watch.
func addCrawlFlags(cmd *cobra.Command) {
	cmd.Flags().String("start", "", "Earliest post date to keep (YYYY-MM-DD)")
	cmd.Flags().String("end", "", "Latest post date to keep (YYYY-MM-DD)")
	cmd.Flags().StringArray("title", nil, "Only collect posts of discussions with this title (repeatable)")
	cmd.Flags().String("snapshot-dir", "", "Save sections and discussions as JSON in this directory")
	cmd.Flags().Bool("incremental", false, "Start from the day of the last completed run")
	cmd.Flags().Int("max-depth", 0, "Maximum section recursion depth (0: unbounded)")
}

// applyCrawlFlags overlays explicitly set flags on the configuration.
func applyCrawlFlags(cmd *cobra.Command, cfg *config.FileConfig) error {
	flags := cmd.Flags()
	if flags.Changed("start") {
		cfg.Crawl.StartDate, _ = flags.GetString("start")
	}
	if flags.Changed("end") {
		cfg.Crawl.EndDate, _ = flags.GetString("end")
	}
	if flags.Changed("title") {
		cfg.Crawl.Titles, _ = flags.GetStringArray("title")
	}
	if flags.Changed("snapshot-dir") {
		cfg.Crawl.SnapshotDir, _ = flags.GetString("snapshot-dir")
	}
	if flags.Changed("incremental") {
		cfg.Crawl.Incremental, _ = flags.GetBool("incremental")
	}
	if flags.Changed("max-depth") {
		cfg.Forum.MaxDepth, _ = flags.GetInt("max-depth")
	}
	return cfg.Validate()
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runCrawlCmd(cmd *cobra.Command, _ []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := applyCrawlFlags(cmd, a.cfg); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	svc, err := a.service()
	if err != nil {
		return err
	}
	opts, err := a.runOptions()
	if err != nil {
		return err
	}
	opts.Root, _ = cmd.Flags().GetString("root")

	ctx, cancel := signalContext()
	defer cancel()

	result, err := svc.Run(ctx, opts)
	if result != nil {
		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if encErr := enc.Encode(result); encErr != nil {
				return encErr
			}
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "sections: %d new, %d known\n", result.Sections.Inserted, result.Sections.Skipped)
			fmt.Fprintf(cmd.OutOrStdout(), "discussions: %d new, %d known\n", result.Discussions.Inserted, result.Discussions.Skipped)
			fmt.Fprintf(cmd.OutOrStdout(), "posts: %d new, %d known\n", result.Posts.Inserted, result.Posts.Skipped)
			fmt.Fprintf(cmd.OutOrStdout(), "authors: %d new, %d known\n", result.Authors.Inserted, result.Authors.Skipped)
		}
	}
	return err
}
