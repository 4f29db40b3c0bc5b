// Package ingest writes crawl output into a document store without ever
// duplicating or overwriting a stored record.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"

	"github.com/pevans/forumsent/forum"
	"github.com/pevans/forumsent/store"
)

// Natural keys per record kind.
var (
	SectionKeys    = []string{"id"}
	DiscussionKeys = []string{"title", "replies", "author"}
	PostKeys       = []string{"message", "author"}
	AuthorKeys     = []string{"author"}
)

// Collections names the collection each record kind is written to.
type Collections struct {
	Sections    string `yaml:"sections"`
	Discussions string `yaml:"discussions"`
	Posts       string `yaml:"posts"`
	Authors     string `yaml:"authors"`
	Analysis    string `yaml:"analysis"`
}

// DefaultCollections returns the collection names of the original dataset.
func DefaultCollections() Collections {
	return Collections{
		Sections:    "sezioni",
		Discussions: "discussioni",
		Posts:       "post",
		Authors:     "autori",
		Analysis:    "analisi",
	}
}

// withDefaults fills empty names from DefaultCollections.
func (c Collections) withDefaults() Collections {
	d := DefaultCollections()
	if c.Sections == "" {
		c.Sections = d.Sections
	}
	if c.Discussions == "" {
		c.Discussions = d.Discussions
	}
	if c.Posts == "" {
		c.Posts = d.Posts
	}
	if c.Authors == "" {
		c.Authors = d.Authors
	}
	if c.Analysis == "" {
		c.Analysis = d.Analysis
	}
	return c
}

// Outcome reports what InsertIfAbsent did with a record.
type Outcome int

const (
	OutcomeInserted Outcome = iota
	OutcomeSkipped
)

func (o Outcome) String() string {
	if o == OutcomeInserted {
		return "inserted"
	}
	return "skipped"
}

// Stats counts the outcomes of one batch.
type Stats struct {
	Inserted int `json:"inserted"`
	Skipped  int `json:"skipped"`
	Failed   int `json:"failed"`
}

// Total is the number of records seen.
func (s Stats) Total() int {
	return s.Inserted + s.Skipped + s.Failed
}

func (s *Stats) record(outcome Outcome, err error) {
	switch {
	case err != nil:
		s.Failed++
	case outcome == OutcomeInserted:
		s.Inserted++
	default:
		s.Skipped++
	}
}

// Writer is the only component that writes crawl output to the store.
type Writer struct {
	store       store.DocumentStore
	collections Collections
	logger      *slog.Logger
}

// NewWriter creates a writer. Empty collection names use the defaults.
func NewWriter(s store.DocumentStore, collections Collections, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{
		store:       s,
		collections: collections.withDefaults(),
		logger:      logger,
	}
}

// Collections returns the collection names in use.
func (w *Writer) Collections() Collections {
	return w.collections
}

// InsertIfAbsent stores record in collection unless a document with equal
// values for keys already exists. An existing document is never updated.
func (w *Writer) InsertIfAbsent(ctx context.Context, record any, collection string, keys []string) (Outcome, error) {
	doc, err := store.ToDocument(record)
	if err != nil {
		return OutcomeSkipped, err
	}

	filter := store.KeyFilter(doc, keys)
	_, err = w.store.FindOne(ctx, collection, filter)
	switch {
	case err == nil:
		w.logger.Info("skipped", "collection", collection, "filter", filter)
		return OutcomeSkipped, nil
	case !errors.Is(err, store.ErrNotFound):
		return OutcomeSkipped, fmt.Errorf("lookup in %s failed: %w", collection, err)
	}

	if err := w.store.InsertOne(ctx, collection, doc); err != nil {
		return OutcomeSkipped, err
	}
	w.logger.Info("inserted", "collection", collection, "filter", filter)
	return OutcomeInserted, nil
}

// write inserts one record, absorbing storage failures into the stats.
func (w *Writer) write(ctx context.Context, stats *Stats, record any, collection string, keys []string) {
	outcome, err := w.InsertIfAbsent(ctx, record, collection, keys)
	if err != nil {
		w.logger.Error("failed to store record", "collection", collection, "err", err)
	}
	stats.record(outcome, err)
}

// WriteSections stores sections keyed by id.
func (w *Writer) WriteSections(ctx context.Context, sections []forum.Section) Stats {
	var stats Stats
	for _, s := range sections {
		if ctx.Err() != nil {
			break
		}
		w.write(ctx, &stats, s, w.collections.Sections, SectionKeys)
	}
	w.logStats(w.collections.Sections, stats)
	return stats
}

// WriteDiscussions stores discussions keyed by title, replies and author.
func (w *Writer) WriteDiscussions(ctx context.Context, discussions []forum.Discussion) Stats {
	var stats Stats
	for _, d := range discussions {
		if ctx.Err() != nil {
			break
		}
		w.write(ctx, &stats, d, w.collections.Discussions, DiscussionKeys)
	}
	w.logStats(w.collections.Discussions, stats)
	return stats
}

// WritePosts drains posts into the store keyed by message and author. Every
// post seen is added to authors, when non-nil, whether or not it was new.
func (w *Writer) WritePosts(ctx context.Context, posts iter.Seq[forum.Post], authors *forum.AuthorSet) Stats {
	var stats Stats
	for p := range posts {
		if ctx.Err() != nil {
			break
		}
		if authors != nil {
			authors.Add(p.Author)
		}
		w.write(ctx, &stats, p, w.collections.Posts, PostKeys)
	}
	w.logStats(w.collections.Posts, stats)
	return stats
}

// WriteAuthors stores one document per distinct author.
func (w *Writer) WriteAuthors(ctx context.Context, authors *forum.AuthorSet) Stats {
	var stats Stats
	for _, name := range authors.Names() {
		if ctx.Err() != nil {
			break
		}
		w.write(ctx, &stats, forum.Author{Author: name}, w.collections.Authors, AuthorKeys)
	}
	w.logStats(w.collections.Authors, stats)
	return stats
}

func (w *Writer) logStats(collection string, stats Stats) {
	w.logger.Info("collection written",
		"collection", collection,
		"inserted", stats.Inserted,
		"skipped", stats.Skipped,
		"failed", stats.Failed)
}
