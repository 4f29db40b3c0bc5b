// Package forumsent crawls a forum into a document store for later
// sentiment and entity analysis.
package forumsent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pevans/forumsent/crawler"
	"github.com/pevans/forumsent/forum"
	"github.com/pevans/forumsent/ingest"
	"github.com/pevans/forumsent/snapshot"
	"github.com/pevans/forumsent/store"
)

// State keys of the run log.
const (
	LastRunKey       = "last_run"
	LastRunResultKey = "last_run_result"
)

// StateStore keeps small named values between runs.
type StateStore interface {
	GetState(ctx context.Context, key string) (string, error)
	SetState(ctx context.Context, key, value string) error
}

// Service runs ingestion passes: crawl the forum, then hand every record to
// the writer.
type Service struct {
	crawler   *crawler.Crawler
	writer    *ingest.Writer
	state     StateStore
	snapshots *snapshot.Dir
	logger    *slog.Logger
	now       func() time.Time
}

// NewService creates a service. snapshots may be nil when no local copies
// are wanted.
func NewService(c *crawler.Crawler, w *ingest.Writer, state StateStore, snapshots *snapshot.Dir, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		crawler:   c,
		writer:    w,
		state:     state,
		snapshots: snapshots,
		logger:    logger,
		now:       time.Now,
	}
}

// RunOptions selects what one ingestion pass collects.
type RunOptions struct {
	// Root is the page the section walk starts from. Empty means the
	// forum root.
	Root string

	// Range limits posts by date. Zero bounds take the defaults.
	Range forum.DateRange

	// Titles, when set, limits post collection to these discussions.
	Titles []string

	// Incremental starts the range at the day of the last completed run
	// when Range has no start.
	Incremental bool
}

// RunResult summarizes one ingestion pass.
type RunResult struct {
	StartedAt   time.Time    `json:"started_at"`
	FinishedAt  time.Time    `json:"finished_at"`
	Root        string       `json:"root"`
	RangeStart  string       `json:"range_start"`
	RangeEnd    string       `json:"range_end"`
	Sections    ingest.Stats `json:"sections"`
	Discussions ingest.Stats `json:"discussions"`
	Posts       ingest.Stats `json:"posts"`
	Authors     ingest.Stats `json:"authors"`
	Snapshots   []string     `json:"snapshots,omitempty"`
}

// Run performs one ingestion pass. Crawl and storage failures of single
// pages or records are absorbed; Run only fails when the context ends or
// the run log cannot be read or written. A cancelled run is not recorded.
func (s *Service) Run(ctx context.Context, opts RunOptions) (*RunResult, error) {
	root := opts.Root
	if root == "" {
		root = s.crawler.BaseURL()
	}

	dates, err := s.dateRange(ctx, opts)
	if err != nil {
		return nil, err
	}

	result := &RunResult{
		StartedAt:  s.now(),
		Root:       root,
		RangeStart: dates.Start.Format(time.DateOnly),
		RangeEnd:   dates.End.Format(time.DateOnly),
	}
	s.logger.Info("ingestion started", "url", root, "start", result.RangeStart, "end", result.RangeEnd)

	crawled := s.crawler.Crawl(ctx, root)

	result.Sections = s.writer.WriteSections(ctx, crawled.Sections)
	result.Discussions = s.writer.WriteDiscussions(ctx, crawled.Discussions)
	s.snapshot(result, crawled)

	authors := forum.NewAuthorSet()
	posts := s.crawler.Posts(ctx, crawled.Discussions, crawler.PostFilter{Titles: opts.Titles, Range: dates})
	result.Posts = s.writer.WritePosts(ctx, posts, authors)
	result.Authors = s.writer.WriteAuthors(ctx, authors)

	result.FinishedAt = s.now()
	if err := ctx.Err(); err != nil {
		s.logger.Warn("ingestion interrupted", "err", err)
		return result, err
	}

	if err := s.record(ctx, result); err != nil {
		return result, err
	}

	s.logger.Info("ingestion finished",
		"sections", result.Sections.Inserted,
		"discussions", result.Discussions.Inserted,
		"posts", result.Posts.Inserted,
		"authors", result.Authors.Inserted,
		"elapsed", result.FinishedAt.Sub(result.StartedAt))
	return result, nil
}

// dateRange resolves the post date range of a run.
func (s *Service) dateRange(ctx context.Context, opts RunOptions) (forum.DateRange, error) {
	dates := opts.Range
	defaults := forum.DefaultDateRange()

	if dates.Start.IsZero() && opts.Incremental {
		last, ok, err := s.LastRun(ctx)
		if err != nil {
			return forum.DateRange{}, err
		}
		if ok {
			y, m, d := last.UTC().Date()
			dates.Start = time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
			s.logger.Info("incremental run", "since", dates.Start.Format(time.DateOnly))
		}
	}

	if dates.Start.IsZero() {
		dates.Start = defaults.Start
	}
	if dates.End.IsZero() {
		dates.End = defaults.End
	}
	return dates, nil
}

// LastRun returns when the last completed run finished.
func (s *Service) LastRun(ctx context.Context) (time.Time, bool, error) {
	value, err := s.state.GetState(ctx, LastRunKey)
	if errors.Is(err, store.ErrNotFound) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to read run log: %w", err)
	}

	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("corrupt run log entry %q: %w", value, err)
	}
	return t, true, nil
}

// record writes the run log.
func (s *Service) record(ctx context.Context, result *RunResult) error {
	summary, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to encode run result: %w", err)
	}
	if err := s.state.SetState(ctx, LastRunResultKey, string(summary)); err != nil {
		return err
	}
	return s.state.SetState(ctx, LastRunKey, result.FinishedAt.UTC().Format(time.RFC3339))
}

// snapshot saves local copies of the crawled sections and discussions.
// Failures are logged only.
func (s *Service) snapshot(result *RunResult, crawled crawler.Result) {
	if s.snapshots == nil {
		return
	}

	collections := s.writer.Collections()
	for _, item := range []struct {
		base string
		data any
	}{
		{collections.Sections, crawled.Sections},
		{collections.Discussions, crawled.Discussions},
	} {
		path, err := s.snapshots.Save(item.base, item.data)
		if err != nil {
			s.logger.Error("failed to save snapshot", "collection", item.base, "err", err)
			continue
		}
		s.logger.Info("snapshot saved", "collection", item.base, "path", path)
		result.Snapshots = append(result.Snapshots, path)
	}
}
