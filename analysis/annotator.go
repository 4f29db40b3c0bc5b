package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/pevans/forumsent/forum"
	"github.com/pevans/forumsent/ingest"
	"github.com/pevans/forumsent/store"
)

// AnnotationKeys is the natural key of an annotation.
var AnnotationKeys = []string{"message", "author"}

// Annotation is the entity analysis of one post.
type Annotation struct {
	Message string  `json:"message"`
	Author  string  `json:"author"`
	NER     []Token `json:"ner"`
}

// Annotator reads stored posts, runs them through one or two models and
// stores the merged entities. A post already annotated is not sent to the
// models again.
type Annotator struct {
	store       store.DocumentStore
	writer      *ingest.Writer
	first       TextAnalyzer
	second      TextAnalyzer
	concurrency int
	logger      *slog.Logger

	// mu serializes the check-then-insert against the store.
	mu sync.Mutex
}

// NewAnnotator creates an annotator. second may be nil, in which case only
// first is used.
func NewAnnotator(s store.DocumentStore, w *ingest.Writer, first, second TextAnalyzer, concurrency int, logger *slog.Logger) *Annotator {
	if concurrency < 1 {
		concurrency = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Annotator{
		store:       s,
		writer:      w,
		first:       first,
		second:      second,
		concurrency: concurrency,
		logger:      logger,
	}
}

// Annotate processes every post matching filter.
func (a *Annotator) Annotate(ctx context.Context, filter store.Filter) (ingest.Stats, error) {
	collections := a.writer.Collections()

	docs, err := a.store.Find(ctx, collections.Posts, filter)
	if err != nil {
		return ingest.Stats{}, fmt.Errorf("failed to read posts: %w", err)
	}
	a.logger.Info("annotating posts", "count", len(docs), "concurrency", a.concurrency)

	var (
		statsMu sync.Mutex
		stats   ingest.Stats
	)
	count := func(f func(*ingest.Stats)) {
		statsMu.Lock()
		f(&stats)
		statsMu.Unlock()
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(a.concurrency)

	for _, doc := range docs {
		post, err := forum.DecodeDocument[forum.Post](doc)
		if err != nil {
			a.logger.Warn("skipping undecodable post", "id", doc[store.IDField], "err", err)
			count(func(s *ingest.Stats) { s.Failed++ })
			continue
		}
		if post.Message == "" {
			continue
		}

		g.Go(func() error {
			if ctx.Err() != nil {
				return ctx.Err()
			}

			outcome, err := a.annotate(ctx, post, collections.Analysis)
			if err != nil {
				a.logger.Warn("annotation failed", "author", post.Author, "err", err)
				count(func(s *ingest.Stats) { s.Failed++ })
				return nil
			}
			count(func(s *ingest.Stats) {
				if outcome == ingest.OutcomeInserted {
					s.Inserted++
				} else {
					s.Skipped++
				}
			})
			return nil
		})
	}

	err = g.Wait()
	a.logger.Info("annotation complete",
		"inserted", stats.Inserted,
		"skipped", stats.Skipped,
		"failed", stats.Failed)
	return stats, err
}

func (a *Annotator) annotate(ctx context.Context, post forum.Post, collection string) (ingest.Outcome, error) {
	done, err := a.annotated(ctx, post, collection)
	if err != nil {
		return ingest.OutcomeSkipped, err
	}
	if done {
		return ingest.OutcomeSkipped, nil
	}

	entities, err := a.entities(ctx, post.Message)
	if err != nil {
		return ingest.OutcomeSkipped, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	return a.writer.InsertIfAbsent(ctx, Annotation{
		Message: post.Message,
		Author:  post.Author,
		NER:     entities,
	}, collection, AnnotationKeys)
}

func (a *Annotator) annotated(ctx context.Context, post forum.Post, collection string) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	_, err := a.store.FindOne(ctx, collection, store.Filter{"message": post.Message, "author": post.Author})
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, store.ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}

// entities runs both models and merges their words.
func (a *Annotator) entities(ctx context.Context, text string) ([]Token, error) {
	if a.second == nil {
		tokens, err := a.first.Infer(ctx, text)
		if err != nil {
			return nil, err
		}
		return ReconstructWords(tokens), nil
	}

	var first, second []Token
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		tokens, err := a.first.Infer(ctx, text)
		first = ReconstructWords(tokens)
		return err
	})
	g.Go(func() error {
		tokens, err := a.second.Infer(ctx, text)
		second = ReconstructWords(tokens)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return MergeResults(first, second), nil
}
