package main

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pevans/forumsent/ingest"
	"github.com/pevans/forumsent/store"
)

// Kinds of stored record the list command can show.
const (
	kindSections    = "sections"
	kindDiscussions = "discussions"
	kindPosts       = "posts"
	kindAuthors     = "authors"
)

var listKinds = []string{kindSections, kindDiscussions, kindPosts, kindAuthors}

// NewListCmd creates the list command.
func NewListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list <sections|discussions|posts|authors>",
		Short: "Show stored records",
		Long: `List prints records from the store, oldest first.

Examples:
  forumsent list posts --author mario --limit 20
  forumsent list discussions --section Generale --format compact
  forumsent list sections --format json`,
		Args:      cobra.ExactArgs(1),
		ValidArgs: listKinds,
		RunE:      runListCmd,
	}

	cmd.Flags().StringP("format", "f", "table", "Output format: table, compact or json")
	cmd.Flags().IntP("limit", "n", 20, "Maximum records to show (0: all)")
	cmd.Flags().Int("offset", 0, "Records to skip")
	cmd.Flags().String("author", "", "Only records by this author")
	cmd.Flags().String("section", "", "Only records of this section title")
	cmd.Flags().String("discussion", "", "Only posts of this discussion title")

	return cmd
}

// listQuery is a resolved list request.
type listQuery struct {
	collection string
	filter     store.Filter
	limit      int
	offset     int
}

// buildListQuery maps a kind and its flags onto a collection and filter.
func buildListQuery(cmd *cobra.Command, kind string, collections ingest.Collections) (listQuery, error) {
	if !slices.Contains(listKinds, kind) {
		return listQuery{}, fmt.Errorf("unknown record kind %q (want one of %s)", kind, strings.Join(listKinds, ", "))
	}

	flags := cmd.Flags()
	q := listQuery{filter: store.Filter{}}
	q.limit, _ = flags.GetInt("limit")
	q.offset, _ = flags.GetInt("offset")
	if q.limit < 0 || q.offset < 0 {
		return listQuery{}, fmt.Errorf("limit and offset must not be negative")
	}

	author, _ := flags.GetString("author")
	section, _ := flags.GetString("section")
	discussion, _ := flags.GetString("discussion")

	switch kind {
	case kindSections:
		q.collection = collections.Sections
		if section != "" {
			q.filter["title"] = section
		}
	case kindDiscussions:
		q.collection = collections.Discussions
		if section != "" {
			q.filter["section_title"] = section
		}
		if discussion != "" {
			q.filter["title"] = discussion
		}
	case kindPosts:
		q.collection = collections.Posts
		if section != "" {
			q.filter["section_title"] = section
		}
		if discussion != "" {
			q.filter["discussion_title"] = discussion
		}
	case kindAuthors:
		q.collection = collections.Authors
	}
	if author != "" {
		q.filter["author"] = author
	}
	return q, nil
}

// run reads the requested page and the total number of matches.
func (q listQuery) run(ctx context.Context, s *store.SQLite) ([]store.Document, int, error) {
	total, err := s.Count(ctx, q.collection, q.filter)
	if err != nil {
		return nil, 0, err
	}
	opts := []store.FindOption{store.WithOffset(q.offset)}
	if q.limit > 0 {
		opts = append(opts, store.WithLimit(q.limit))
	}
	docs, err := s.Find(ctx, q.collection, q.filter, opts...)
	if err != nil {
		return nil, 0, err
	}
	return docs, total, nil
}

func runListCmd(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("format")
	if format != "table" && format != "compact" && format != "json" {
		return fmt.Errorf("invalid format %q (want table, compact or json)", format)
	}

	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	q, err := buildListQuery(cmd, args[0], a.writer.Collections())
	if err != nil {
		return err
	}

	docs, total, err := q.run(cmd.Context(), a.store)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", q.collection, err)
	}

	out := cmd.OutOrStdout()
	switch format {
	case "json":
		return printListJSON(out, docs, total)
	case "compact":
		printListCompact(out, args[0], docs)
	default:
		printListTable(out, args[0], docs, total, q.offset)
	}
	return nil
}
