// Package crawler walks a forum's section tree and collects its
// discussions and posts.
package crawler

import (
	"context"
	"iter"
	"log/slog"
	"slices"

	"github.com/PuerkitoBio/goquery"

	"github.com/pevans/forumsent/fetch"
	"github.com/pevans/forumsent/forum"
	"github.com/pevans/forumsent/parse"
)

// Page sizes used by the forum.
const (
	DefaultSectionPageSize    = 30
	DefaultDiscussionPageSize = 30
	DefaultPostPageSize       = 15
)

// Config holds crawl settings.
type Config struct {
	// BaseURL is the forum root. A crawl rooted here reads the root page
	// once without paginating.
	BaseURL string

	SectionPageSize    int
	DiscussionPageSize int
	PostPageSize       int

	// MaxDepth bounds section recursion below the root. Zero means no
	// bound; the visited set still guarantees termination.
	MaxDepth int

	// MaxPages caps the pages read per listing. Zero means no cap.
	MaxPages int
}

// DefaultConfig returns the settings for a ForumFree board at baseURL.
func DefaultConfig(baseURL string) Config {
	return Config{
		BaseURL:            baseURL,
		SectionPageSize:    DefaultSectionPageSize,
		DiscussionPageSize: DefaultDiscussionPageSize,
		PostPageSize:       DefaultPostPageSize,
	}
}

// Crawler turns a forum root into sections, discussions and posts. It is
// sequential and keeps no state between calls.
type Crawler struct {
	fetcher fetch.PageFetcher
	parser  *parse.Parser
	config  Config
	logger  *slog.Logger
}

// New creates a crawler. Zero page sizes fall back to the forum defaults.
func New(fetcher fetch.PageFetcher, parser *parse.Parser, config Config, logger *slog.Logger) *Crawler {
	if config.SectionPageSize <= 0 {
		config.SectionPageSize = DefaultSectionPageSize
	}
	if config.DiscussionPageSize <= 0 {
		config.DiscussionPageSize = DefaultDiscussionPageSize
	}
	if config.PostPageSize <= 0 {
		config.PostPageSize = DefaultPostPageSize
	}
	if config.BaseURL == "" {
		config.BaseURL = parser.BaseURL()
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Crawler{
		fetcher: fetcher,
		parser:  parser,
		config:  config,
		logger:  logger,
	}
}

// BaseURL returns the forum root the crawler was configured with.
func (c *Crawler) BaseURL() string {
	return c.config.BaseURL
}

func (c *Crawler) pager() Pager {
	return Pager{Fetcher: c.fetcher, Logger: c.logger, MaxPages: c.config.MaxPages}
}

// Result holds the sections and discussions of one crawl. Posts are
// streamed separately through Posts.
type Result struct {
	Sections    []forum.Section
	Discussions []forum.Discussion
}

// Crawl discovers every section under root and the discussions they list.
func (c *Crawler) Crawl(ctx context.Context, root string) Result {
	c.logger.Info("crawl started", "url", root)

	sections := c.Sections(ctx, root)
	c.logger.Info("sections discovered", "count", len(sections))

	discussions := c.Discussions(ctx, sections)
	c.logger.Info("discussions collected", "count", len(discussions))

	return Result{Sections: sections, Discussions: discussions}
}

// Sections walks the section tree depth-first from root. Sections whose
// discussion count is unknown are dropped and not descended into. No URL
// is read twice as a section root, so cyclic section links terminate.
func (c *Crawler) Sections(ctx context.Context, root string) []forum.Section {
	walk := &sectionWalk{
		crawler: c,
		visited: make(map[string]bool),
		seenIDs: make(map[string]bool),
	}
	walk.visit(ctx, root, 0)
	return walk.sections
}

type sectionWalk struct {
	crawler  *Crawler
	visited  map[string]bool
	seenIDs  map[string]bool
	sections []forum.Section
}

func (w *sectionWalk) visit(ctx context.Context, link string, depth int) {
	c := w.crawler
	key := parse.NormalizeURL(link)
	if w.visited[key] {
		c.logger.Debug("section already explored", "url", link)
		return
	}
	w.visited[key] = true

	if ctx.Err() != nil {
		return
	}

	found := c.sectionPage(ctx, link)
	var children []forum.Section
	for _, s := range found {
		if !s.DiscussionCount.Known {
			c.logger.Debug("dropping section without discussion count", "section", s.Title, "url", s.Link)
			continue
		}
		children = append(children, s)
		if !w.seenIDs[s.ID] {
			w.seenIDs[s.ID] = true
			w.sections = append(w.sections, s)
		}
	}

	if c.config.MaxDepth > 0 && depth >= c.config.MaxDepth {
		return
	}

	for _, s := range children {
		c.logger.Info("exploring section", "section", s.Title, "url", s.Link)
		w.visit(ctx, s.Link, depth+1)
	}
}

// sectionPage extracts the sections listed at link. The forum root is read
// once; any other page is paginated.
func (c *Crawler) sectionPage(ctx context.Context, link string) []forum.Section {
	if parse.NormalizeURL(link) == parse.NormalizeURL(c.config.BaseURL) {
		doc, err := c.fetcher.Fetch(ctx, link)
		if err != nil {
			c.logger.Error("failed to fetch forum root", "url", link, "err", err)
			return nil
		}
		return c.parser.Sections(doc)
	}

	return slices.Collect(Paginate(ctx, c.pager(), link, c.config.SectionPageSize, CanonicalLink, c.parser.Sections))
}

// Discussions collects the discussions of every section, tagging each with
// its section. A section that fails contributes no discussions.
func (c *Crawler) Discussions(ctx context.Context, sections []forum.Section) []forum.Discussion {
	var all []forum.Discussion
	for _, s := range sections {
		if ctx.Err() != nil {
			break
		}

		c.logger.Info("collecting discussions", "section", s.Title, "declared", s.DiscussionCount.String())

		n := 0
		for d := range Paginate(ctx, c.pager(), s.Link, c.config.DiscussionPageSize, CanonicalLink, c.parser.Discussions) {
			d.SectionTitle = s.Title
			d.SectionLink = s.Link
			all = append(all, d)
			n++
		}

		c.logger.Info("discussions extracted", "section", s.Title, "count", n)
	}
	return all
}

// PostFilter narrows which posts are collected.
type PostFilter struct {
	// Titles, when non-empty, limits collection to discussions with these
	// exact titles.
	Titles []string

	// Range keeps posts dated inside it. The zero value means the default
	// range.
	Range forum.DateRange
}

// Posts lazily collects the posts of every discussion that passes the
// filter. Each post carries its discussion and section lineage. Posts
// without a parsable date are dropped with a warning.
func (c *Crawler) Posts(ctx context.Context, discussions []forum.Discussion, filter PostFilter) iter.Seq[forum.Post] {
	dates := filter.Range
	if dates.Start.IsZero() && dates.End.IsZero() {
		dates = forum.DefaultDateRange()
	}

	return func(yield func(forum.Post) bool) {
		for _, d := range discussions {
			if len(filter.Titles) > 0 && !slices.Contains(filter.Titles, d.Title) {
				continue
			}
			if ctx.Err() != nil {
				return
			}

			c.logger.Info("collecting posts", "discussion", d.Title, "url", d.Link)

			fragments := Paginate(ctx, c.pager(), d.Link, c.config.PostPageSize, ShortPage, parse.PostFragments)
			for fragment := range fragments {
				post, ok := c.datedPost(fragment, dates)
				if !ok {
					continue
				}
				if !yield(post.WithDiscussion(d)) {
					return
				}
			}
		}
	}
}

// datedPost parses a fragment and keeps it when its date is inside dates.
func (c *Crawler) datedPost(fragment *goquery.Selection, dates forum.DateRange) (forum.Post, bool) {
	post, ok := c.parser.PostOrLog(fragment)
	if !ok {
		return forum.Post{}, false
	}

	postedOn, err := post.PostedOn()
	if err != nil {
		c.logger.Warn("dropping post with invalid date", "author", post.Author, "date", post.Date, "err", err)
		return forum.Post{}, false
	}

	return post, dates.Contains(postedOn)
}
