package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/pevans/forumsent"
	"github.com/pevans/forumsent/config"
	"github.com/pevans/forumsent/crawler"
	"github.com/pevans/forumsent/fetch"
	"github.com/pevans/forumsent/ingest"
	"github.com/pevans/forumsent/parse"
	"github.com/pevans/forumsent/snapshot"
	"github.com/pevans/forumsent/store"
)

// NewRootCmd creates the root command for forumsent.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "forumsent",
		Short: "Forum crawler and dataset builder",
		Long: `forumsent crawls a ForumFree board (sections, discussions and posts) into a
document store without ever duplicating a stored record, and builds an entity
annotated dataset from the stored posts.

Settings are read from ~/.forumsent/config.yaml (or --config), a .env file in
the working directory, and FORUMSENT_* environment variables.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags that apply to all commands
	cmd.PersistentFlags().StringP("config", "c", "", "Configuration file path (default: ~/.forumsent/config.yaml)")
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")

	cmd.AddCommand(NewCrawlCmd())
	cmd.AddCommand(NewWatchCmd())
	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewAnnotateCmd())
	cmd.AddCommand(NewListCmd())
	cmd.AddCommand(NewStatusCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// setupLogger creates the process logger on stderr.
func setupLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// app holds what every command needs: settings, logger and an open store.
type app struct {
	cfg    *config.FileConfig
	logger *slog.Logger
	store  *store.SQLite
	writer *ingest.Writer
}

// openApp loads the configuration and opens the store. The caller closes
// the app.
func openApp(cmd *cobra.Command) (*app, error) {
	path, _ := cmd.Flags().GetString("config")
	verbose, _ := cmd.Flags().GetBool("verbose")

	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("configuration error: %w", err)
	}

	logger := setupLogger(verbose)
	slog.SetDefault(logger)

	if dir := filepath.Dir(cfg.Storage.DSN); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("failed to create storage directory: %w", err)
		}
	}

	s, err := store.OpenSQLite(cfg.Storage.DSN)
	if err != nil {
		return nil, err
	}
	// Owner-only, like the snapshot files.
	if err := os.Chmod(cfg.Storage.DSN, 0o600); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Warn("failed to restrict store permissions", "dsn", cfg.Storage.DSN, "err", err)
	}
	logger.Debug("store opened", "dsn", cfg.Storage.DSN)

	return &app{
		cfg:    cfg,
		logger: logger,
		store:  s,
		writer: ingest.NewWriter(s, cfg.Storage.Collections, logger),
	}, nil
}

func (a *app) Close() error {
	return a.store.Close()
}

// service wires the crawler and writer into an ingestion service.
func (a *app) service() (*forumsent.Service, error) {
	f := a.cfg.Forum

	var fetcher fetch.PageFetcher = fetch.NewHTTPFetcher(
		fetch.WithTimeout(f.Timeout),
		fetch.WithUserAgent(f.UserAgent),
	)
	if f.Retries > 1 {
		fetcher = fetch.NewRetryFetcher(fetcher, f.Retries, f.Backoff, a.logger)
	}

	parser, err := parse.New(f.BaseURL, a.logger)
	if err != nil {
		return nil, err
	}

	var snapshots *snapshot.Dir
	if dir := a.cfg.Crawl.SnapshotDir; dir != "" {
		if snapshots, err = snapshot.New(dir); err != nil {
			return nil, err
		}
	}

	c := crawler.New(fetcher, parser, a.cfg.CrawlerConfig(), a.logger)
	return forumsent.NewService(c, a.writer, a.store, snapshots, a.logger), nil
}

// runOptions builds run options from the configuration.
func (a *app) runOptions() (forumsent.RunOptions, error) {
	dates, err := a.cfg.DateRange()
	if err != nil {
		return forumsent.RunOptions{}, err
	}
	return forumsent.RunOptions{
		Range:       dates,
		Titles:      a.cfg.Crawl.Titles,
		Incremental: a.cfg.Crawl.Incremental,
	}, nil
}
