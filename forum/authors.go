package forum

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"
)

// UnknownAuthor is the author recorded when a post has none.
const UnknownAuthor = "Unknown"

// AuthorSet accumulates the distinct authors seen during one run. Names are
// lowercased and the unknown-author sentinel is never kept.
type AuthorSet struct {
	seen map[string]struct{}
}

// NewAuthorSet creates an empty author set.
func NewAuthorSet() *AuthorSet {
	return &AuthorSet{seen: make(map[string]struct{})}
}

// Add records an author name.
func (s *AuthorSet) Add(name string) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" || name == strings.ToLower(UnknownAuthor) {
		return
	}
	s.seen[name] = struct{}{}
}

// Len returns the number of distinct authors.
func (s *AuthorSet) Len() int {
	return len(s.seen)
}

// Names returns the authors in sorted order.
func (s *AuthorSet) Names() []string {
	names := make([]string, 0, len(s.seen))
	for name := range s.seen {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// DateRange is an inclusive range of calendar days.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// DefaultDateRange covers every date the forum could plausibly hold.
func DefaultDateRange() DateRange {
	return DateRange{
		Start: time.Date(2001, 1, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2070, 12, 31, 0, 0, 0, 0, time.UTC),
	}
}

// NewDateRange builds a range from YYYY-MM-DD strings. Empty strings fall
// back to the default bounds.
func NewDateRange(start, end string) (DateRange, error) {
	r := DefaultDateRange()
	if start != "" {
		t, err := time.Parse(time.DateOnly, start)
		if err != nil {
			return r, fmt.Errorf("invalid start date %q: %w", start, err)
		}
		r.Start = t
	}
	if end != "" {
		t, err := time.Parse(time.DateOnly, end)
		if err != nil {
			return r, fmt.Errorf("invalid end date %q: %w", end, err)
		}
		r.End = t
	}
	if r.End.Before(r.Start) {
		return r, fmt.Errorf("end date %s is before start date %s", end, start)
	}
	return r, nil
}

// Contains reports whether t falls inside the range, bounds included.
func (r DateRange) Contains(t time.Time) bool {
	return !t.Before(r.Start) && !t.After(r.End)
}

// DecodeDocument converts a loosely-typed stored document into T. Fields
// that T does not declare, such as analysis results added later, are
// ignored.
func DecodeDocument[T any](doc map[string]any) (T, error) {
	var out T
	data, err := json.Marshal(doc)
	if err != nil {
		return out, fmt.Errorf("failed to marshal document: %w", err)
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, fmt.Errorf("failed to decode document: %w", err)
	}
	return out, nil
}
