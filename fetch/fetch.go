// Package fetch retrieves forum pages as parsed HTML documents.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// DefaultUserAgent mimics a desktop browser; the forum serves a reduced skin
// to unknown agents.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/84.0.4147.105 Safari/537.36"

// DefaultTimeout bounds a single page request.
const DefaultTimeout = 10 * time.Second

// ErrFetch is matched by every FetchError.
var ErrFetch = errors.New("fetch failed")

// FetchError reports a transport failure or a non-2xx response. StatusCode
// is zero for transport failures.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: HTTP %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrFetch) true for any FetchError.
func (e *FetchError) Is(target error) bool {
	return target == ErrFetch
}

// PageFetcher retrieves one HTML document.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) (*goquery.Document, error)
}

// HTTPFetcher fetches pages over HTTP with a fixed set of headers.
type HTTPFetcher struct {
	client  *http.Client
	timeout time.Duration
	headers http.Header
}

// Option configures an HTTPFetcher.
type Option func(*HTTPFetcher)

// WithTimeout sets the per-request timeout. It applies to a copy of the
// client, so a client passed with WithClient is never modified.
func WithTimeout(d time.Duration) Option {
	return func(f *HTTPFetcher) {
		f.timeout = d
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(f *HTTPFetcher) {
		if ua != "" {
			f.headers.Set("User-Agent", ua)
		}
	}
}

// WithHeader adds an extra request header.
func WithHeader(key, value string) Option {
	return func(f *HTTPFetcher) {
		f.headers.Set(key, value)
	}
}

// WithClient replaces the HTTP client. The client's timeout is kept unless
// WithTimeout is also given.
func WithClient(c *http.Client) Option {
	return func(f *HTTPFetcher) {
		f.client = c
	}
}

// NewHTTPFetcher creates a fetcher with a browser-like User-Agent and a 10
// second timeout.
func NewHTTPFetcher(opts ...Option) *HTTPFetcher {
	f := &HTTPFetcher{
		client:  &http.Client{Timeout: DefaultTimeout},
		headers: http.Header{},
	}
	f.headers.Set("User-Agent", DefaultUserAgent)
	f.headers.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	f.headers.Set("Accept-Language", "it-IT,it;q=0.9,en;q=0.5")

	for _, opt := range opts {
		opt(f)
	}

	if f.timeout > 0 && f.timeout != f.client.Timeout {
		client := *f.client
		client.Timeout = f.timeout
		f.client = &client
	}

	return f
}

// Fetch downloads url and parses it with goquery.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &FetchError{URL: url, Err: fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header = f.headers.Clone()

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &FetchError{
			URL:        url,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("HTTP error: %s", resp.Status),
		}
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, &FetchError{URL: url, Err: fmt.Errorf("failed to parse HTML: %w", err)}
	}

	return doc, nil
}

// RetryFetcher retries a failed fetch a bounded number of times with a
// fixed pause between attempts.
type RetryFetcher struct {
	next     PageFetcher
	attempts int
	backoff  time.Duration
	logger   *slog.Logger
}

// NewRetryFetcher wraps next. attempts below 1 are treated as 1, which
// makes the wrapper a plain pass-through.
func NewRetryFetcher(next PageFetcher, attempts int, backoff time.Duration, logger *slog.Logger) *RetryFetcher {
	if attempts < 1 {
		attempts = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RetryFetcher{
		next:     next,
		attempts: attempts,
		backoff:  backoff,
		logger:   logger,
	}
}

// Fetch tries the wrapped fetcher until it succeeds, the attempts run out,
// or ctx is done. 4xx responses are not retried.
func (r *RetryFetcher) Fetch(ctx context.Context, url string) (*goquery.Document, error) {
	var lastErr error
	for attempt := 1; attempt <= r.attempts; attempt++ {
		doc, err := r.next.Fetch(ctx, url)
		if err == nil {
			return doc, nil
		}
		lastErr = err

		if attempt == r.attempts || !retryable(err) {
			break
		}

		r.logger.Warn("page fetch failed, retrying", "url", url, "attempt", attempt, "err", err)

		select {
		case <-ctx.Done():
			return nil, &FetchError{URL: url, Err: ctx.Err()}
		case <-time.After(r.backoff):
		}
	}
	return nil, lastErr
}

// retryable reports whether a failure could plausibly succeed on a second
// attempt.
func retryable(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var fe *FetchError
	if errors.As(err, &fe) && fe.StatusCode >= 400 && fe.StatusCode < 500 {
		return fe.StatusCode == http.StatusTooManyRequests
	}
	return true
}
