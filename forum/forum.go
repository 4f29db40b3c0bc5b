// Package forum holds the records scraped from a ForumFree board and the
// date and count types they use.
package forum

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// NotAvailable is the stored form of a count the forum did not report.
const NotAvailable = "N/A"

// DateLayout is the day/month/year layout the forum uses for post dates.
// Single-digit days and months are accepted.
const DateLayout = "2/1/2006"

// ErrInvalidDate is returned when a post date cannot be parsed.
var ErrInvalidDate = errors.New("invalid post date")

// Count is a numeric counter scraped from the forum that may be unresolved.
type Count struct {
	Value int
	Known bool
}

// KnownCount returns a resolved count.
func KnownCount(n int) Count {
	return Count{Value: n, Known: true}
}

// UnknownCount returns an unresolved count.
func UnknownCount() Count {
	return Count{}
}

// ParseCount parses a counter as rendered by the forum. Italian thousands
// separators ("1.234") are accepted. Text that is not a number yields an
// unresolved count.
func ParseCount(text string) Count {
	n, err := parseNumber(text)
	if err != nil {
		return UnknownCount()
	}
	return KnownCount(n)
}

// ParseInt parses a counter that must be resolved.
func ParseInt(text string) (int, error) {
	return parseNumber(text)
}

func parseNumber(text string) (int, error) {
	cleaned := strings.TrimSpace(text)
	cleaned = strings.ReplaceAll(cleaned, ".", "")
	cleaned = strings.ReplaceAll(cleaned, ",", "")
	if cleaned == "" || cleaned == NotAvailable {
		return 0, fmt.Errorf("not a number: %q", text)
	}
	return strconv.Atoi(cleaned)
}

func (c Count) String() string {
	if !c.Known {
		return NotAvailable
	}
	return strconv.Itoa(c.Value)
}

// MarshalJSON writes known counts as numbers and unknown ones as "N/A".
func (c Count) MarshalJSON() ([]byte, error) {
	if !c.Known {
		return json.Marshal(NotAvailable)
	}
	return json.Marshal(c.Value)
}

// UnmarshalJSON accepts a number, a numeric string, or "N/A".
func (c *Count) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*c = UnknownCount()
		return nil
	}

	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*c = ParseCount(s)
		return nil
	}

	var n float64
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("failed to decode count: %w", err)
	}
	*c = KnownCount(int(n))
	return nil
}

// Section is a forum sub-board.
type Section struct {
	ID              string `json:"id"`
	Title           string `json:"title"`
	Description     string `json:"description"`
	DiscussionCount Count  `json:"discussion_count"`
	ReplyCount      Count  `json:"reply_count"`
	LastMessageDate string `json:"last_message_date,omitempty"`
	LastMessageTime string `json:"last_message_time,omitempty"`
	Link            string `json:"link"`
	IsPrivate       bool   `json:"is_private"`
}

// DiscussionType tells announcements apart from ordinary threads.
type DiscussionType string

const (
	TypeAnnouncement DiscussionType = "announcement"
	TypeDiscussion   DiscussionType = "discussion"
)

// Discussion is a single thread listed inside a section.
type Discussion struct {
	Title        string         `json:"title"`
	Link         string         `json:"link"`
	Author       string         `json:"author"`
	Replies      int            `json:"replies"`
	Views        int            `json:"views"`
	Type         DiscussionType `json:"type"`
	SectionTitle string         `json:"section_title"`
	SectionLink  string         `json:"section_link"`
}

// EmojiPosition records an emoji and the character index it was found at.
type EmojiPosition struct {
	Emoji string `json:"emoji"`
	Pos   int    `json:"pos"`
}

// Quote is a quoted fragment of another post, embedded in the quoting post.
type Quote struct {
	Author  string          `json:"quote_author"`
	Date    string          `json:"quote_date"`
	Time    string          `json:"quote_time"`
	Href    string          `json:"quote_href"`
	Content string          `json:"quote_content"`
	Emojis  []EmojiPosition `json:"quote_emojis,omitempty"`
}

// Post is one message inside a discussion, with the lineage needed to place
// it in the section tree without crawling again.
type Post struct {
	SectionTitle     string          `json:"section_title"`
	SectionLink      string          `json:"section_link"`
	DiscussionTitle  string          `json:"discussion_title"`
	DiscussionLink   string          `json:"discussion_link"`
	DiscussionAuthor string          `json:"discussion_author"`
	Author           string          `json:"author"`
	Date             string          `json:"date,omitempty"`
	Time             string          `json:"time,omitempty"`
	Message          string          `json:"message"`
	MessageEmojis    []EmojiPosition `json:"message_emojis,omitempty"`
	Quotes           []Quote         `json:"quotes,omitempty"`
}

// PostedOn parses the post date. Posts without a date return
// ErrInvalidDate.
func (p Post) PostedOn() (time.Time, error) {
	return ParseDate(p.Date)
}

// WithDiscussion returns a copy of the post carrying the lineage of d.
func (p Post) WithDiscussion(d Discussion) Post {
	p.SectionTitle = d.SectionTitle
	p.SectionLink = d.SectionLink
	p.DiscussionTitle = d.Title
	p.DiscussionLink = d.Link
	p.DiscussionAuthor = d.Author
	return p
}

// ParseDate parses a day/month/year date.
func ParseDate(text string) (time.Time, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return time.Time{}, fmt.Errorf("%w: empty", ErrInvalidDate)
	}
	t, err := time.Parse(DateLayout, text)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, text)
	}
	return t, nil
}

// Author is the stored form of a distinct post author.
type Author struct {
	Author string `json:"author"`
}
