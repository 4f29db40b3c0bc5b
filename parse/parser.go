// Package parse extracts sections, discussions and posts from ForumFree
// pages.
package parse

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Errors returned for fragments that lack a required field.
var (
	ErrMalformedSection    = errors.New("malformed section")
	ErrMalformedDiscussion = errors.New("malformed discussion")
	ErrMalformedPost       = errors.New("malformed post")
)

// Parser turns fetched documents into forum entities. Relative links are
// resolved against the forum base URL.
type Parser struct {
	base   *url.URL
	logger *slog.Logger
}

// New creates a parser for the forum rooted at baseURL.
func New(baseURL string, logger *slog.Logger) (*Parser, error) {
	base, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("base URL must use http or https scheme: %q", baseURL)
	}
	if base.Path == "" {
		base.Path = "/"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Parser{base: base, logger: logger}, nil
}

// BaseURL returns the forum root.
func (p *Parser) BaseURL() string {
	return p.base.String()
}

// resolve turns an href into an absolute link on the forum.
func (p *Parser) resolve(href string) (string, error) {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return "", err
	}
	return p.base.ResolveReference(ref).String(), nil
}

// Canonical returns the page's self-declared canonical URL.
func Canonical(doc *goquery.Document) (string, bool) {
	href, ok := doc.Find(`link[rel="canonical"]`).First().Attr("href")
	if !ok || strings.TrimSpace(href) == "" {
		return "", false
	}
	return href, true
}

// NormalizeURL makes URLs comparable: surrounding whitespace and the
// fragment are dropped, scheme and host are lowercased, and repeated path
// separators are collapsed. An empty path becomes "/".
func NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}

	u.Fragment = ""
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)

	path := u.Path
	for strings.Contains(path, "//") {
		path = strings.ReplaceAll(path, "//", "/")
	}
	if path == "" {
		path = "/"
	}
	u.Path = path
	u.RawPath = ""

	return u.String()
}
