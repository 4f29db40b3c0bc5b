package crawler

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/pevans/forumsent/fetch"
	"github.com/pevans/forumsent/parse"
)

// Policy decides when a paginated listing has run out of pages.
type Policy int

const (
	// ShortPage stops after the first page holding fewer items than the
	// page size.
	ShortPage Policy = iota

	// CanonicalLink stops, from the second page on, when the page's
	// canonical URL differs from the requested one. The forum answers an
	// out-of-range offset with a page that points back to an earlier one.
	CanonicalLink
)

func (p Policy) String() string {
	switch p {
	case ShortPage:
		return "short-page"
	case CanonicalLink:
		return "canonical-link"
	default:
		return fmt.Sprintf("Policy(%d)", int(p))
	}
}

// Pager fetches successive pages of a listing.
type Pager struct {
	Fetcher fetch.PageFetcher
	Logger  *slog.Logger

	// MaxPages caps the pages read per listing. Zero means no cap.
	MaxPages int
}

// PageURL returns the URL of page k: the base URL itself for k == 0, and
// the base URL with st=k*pageSize appended to its query otherwise.
func PageURL(base string, k, pageSize int) string {
	if k == 0 {
		return base
	}
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return fmt.Sprintf("%s%sst=%d", base, sep, k*pageSize)
}

// Paginate lazily walks the pages of the listing at base and yields the
// items extract pulls out of each page. A failed fetch ends the sequence; the
// items already yielded stand.
func Paginate[T any](ctx context.Context, pager Pager, base string, pageSize int, policy Policy, extract func(*goquery.Document) []T) iter.Seq[T] {
	logger := pager.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return func(yield func(T) bool) {
		start := parse.NormalizeURL(base)

		for k := 0; pager.MaxPages == 0 || k < pager.MaxPages; k++ {
			if ctx.Err() != nil {
				logger.Warn("pagination cancelled", "url", start, "page", k, "err", ctx.Err())
				return
			}

			pageURL := PageURL(start, k, pageSize)
			logger.Debug("fetching page", "url", pageURL, "page", k, "policy", policy)

			doc, err := pager.Fetcher.Fetch(ctx, pageURL)
			if err != nil {
				logger.Error("page fetch failed, stopping pagination", "url", pageURL, "page", k, "err", err)
				return
			}

			if policy == CanonicalLink && k > 0 {
				canonical, ok := parse.Canonical(doc)
				if !ok {
					logger.Warn("no canonical link, treating as last page", "url", pageURL)
					return
				}
				if parse.NormalizeURL(canonical) != parse.NormalizeURL(pageURL) {
					logger.Debug("canonical link differs, pagination exhausted", "url", pageURL, "canonical", canonical)
					return
				}
			}

			items := extract(doc)
			if len(items) == 0 {
				logger.Warn("no items on page", "url", pageURL, "page", k)
			}

			for _, item := range items {
				if !yield(item) {
					return
				}
			}

			switch policy {
			case ShortPage:
				if len(items) < pageSize {
					return
				}
			case CanonicalLink:
				// A page past the end that echoes its own URL as canonical
				// and lists nothing would otherwise be fetched until MaxPages.
				if k > 0 && len(items) == 0 {
					return
				}
			}
		}

		logger.Warn("page cap reached", "url", start, "max_pages", pager.MaxPages)
	}
}
