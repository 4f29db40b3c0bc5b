package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pevans/forumsent/analysis"
	"github.com/pevans/forumsent/store"
)

// NewAnnotateCmd creates the annotate command.
func NewAnnotateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "annotate",
		Short: "Run entity recognition over stored posts",
		Long: `Annotate sends each stored post to one or two hosted token-classification
models (MODEL_1_ID, MODEL_2_ID), merges their entities and stores them in the
analysis collection. Posts already annotated are skipped.

Examples:
  forumsent annotate
  forumsent annotate --author mario --concurrency 2`,
		Args: cobra.NoArgs,
		RunE: runAnnotateCmd,
	}

	cmd.Flags().String("author", "", "Only annotate posts by this author")
	cmd.Flags().String("discussion", "", "Only annotate posts of this discussion title")
	cmd.Flags().Int("concurrency", 0, "Posts analyzed in parallel (default from config)")

	return cmd
}

func runAnnotateCmd(cmd *cobra.Command, _ []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	cfg := a.cfg.Analysis
	if cfg.Model1ID == "" {
		return errors.New("configuration error: analysis.model_1_id (MODEL_1_ID) is required")
	}
	if cmd.Flags().Changed("concurrency") {
		cfg.Concurrency, _ = cmd.Flags().GetInt("concurrency")
	}

	opts := []analysis.HTTPOption{analysis.WithToken(cfg.Token), analysis.WithLogger(a.logger)}
	first := analysis.NewHTTPAnalyzer(analysis.ModelEndpoint(cfg.Endpoint, cfg.Model1ID), opts...)
	var second analysis.TextAnalyzer
	if cfg.Model2ID != "" {
		second = analysis.NewHTTPAnalyzer(analysis.ModelEndpoint(cfg.Endpoint, cfg.Model2ID), opts...)
	}

	filter := store.Filter{}
	if author, _ := cmd.Flags().GetString("author"); author != "" {
		filter["author"] = author
	}
	if title, _ := cmd.Flags().GetString("discussion"); title != "" {
		filter["discussion_title"] = title
	}

	ctx, cancel := signalContext()
	defer cancel()

	annotator := analysis.NewAnnotator(a.store, a.writer, first, second, cfg.Concurrency, a.logger)
	stats, err := annotator.Annotate(ctx, filter)
	fmt.Fprintf(cmd.OutOrStdout(), "annotations: %d new, %d known, %d failed\n", stats.Inserted, stats.Skipped, stats.Failed)
	return err
}
