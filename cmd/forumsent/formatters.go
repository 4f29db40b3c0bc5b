package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/pevans/forumsent/store"
)

// field returns a document value as display text.
func field(doc store.Document, key string) string {
	v, ok := doc[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// truncate shortens s to at most n runes.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

// printListTable prints records in a readable multi-line layout.
func printListTable(w io.Writer, kind string, docs []store.Document, total, offset int) {
	if len(docs) == 0 {
		fmt.Fprintln(w, "No records to display.")
		return
	}

	fmt.Fprintf(w, "Showing %d-%d of %d %s\n\n", offset+1, offset+len(docs), total, kind)

	for _, doc := range docs {
		switch kind {
		case kindSections:
			fmt.Fprintf(w, "%s  %s\n", field(doc, "id"), field(doc, "title"))
			fmt.Fprintf(w, "   Discussions: %s | Replies: %s | Private: %s\n",
				field(doc, "discussion_count"), field(doc, "reply_count"), field(doc, "is_private"))
			if desc := field(doc, "description"); desc != "" {
				fmt.Fprintf(w, "   %s\n", truncate(desc, 150))
			}
			fmt.Fprintf(w, "   URL: %s\n", field(doc, "link"))
		case kindDiscussions:
			fmt.Fprintf(w, "%s\n", truncate(field(doc, "title"), 70))
			fmt.Fprintf(w, "   %s | %s | Author: %s | Replies: %s | Views: %s\n",
				field(doc, "section_title"), field(doc, "type"), field(doc, "author"),
				field(doc, "replies"), field(doc, "views"))
			fmt.Fprintf(w, "   URL: %s\n", field(doc, "link"))
		case kindPosts:
			fmt.Fprintf(w, "%s on %s %s\n", field(doc, "author"), field(doc, "date"), field(doc, "time"))
			fmt.Fprintf(w, "   %s > %s\n", field(doc, "section_title"), field(doc, "discussion_title"))
			for _, line := range strings.Split(wrapText(truncate(field(doc, "message"), 400), 76), "\n") {
				fmt.Fprintf(w, "   %s\n", line)
			}
		default:
			fmt.Fprintf(w, "%s\n", field(doc, "author"))
		}
		fmt.Fprintln(w)
	}
}

// printListJSON prints records with the total number of matches.
func printListJSON(w io.Writer, docs []store.Document, total int) error {
	if docs == nil {
		docs = []store.Document{}
	}
	output := map[string]any{
		"items": docs,
		"total": total,
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(output)
}

// printListCompact prints one line per record.
func printListCompact(w io.Writer, kind string, docs []store.Document) {
	if len(docs) == 0 {
		fmt.Fprintln(w, "No records to display.")
		return
	}

	for _, doc := range docs {
		switch kind {
		case kindSections:
			fmt.Fprintf(w, "%s %s (%s)\n", field(doc, "id"), field(doc, "title"), field(doc, "discussion_count"))
		case kindDiscussions:
			fmt.Fprintf(w, "%s (%s, %s replies)\n", field(doc, "title"), field(doc, "author"), field(doc, "replies"))
		case kindPosts:
			fmt.Fprintf(w, "%s %s: %s\n", field(doc, "date"), field(doc, "author"), truncate(strings.Join(strings.Fields(field(doc, "message")), " "), 80))
		default:
			fmt.Fprintln(w, field(doc, "author"))
		}
	}
}

// wrapText wraps text to a maximum line width
func wrapText(text string, width int) string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return text
	}

	var lines []string
	var currentLine strings.Builder

	for _, word := range words {
		if currentLine.Len() == 0 {
			currentLine.WriteString(word)
		} else if currentLine.Len()+1+len(word) <= width {
			currentLine.WriteString(" ")
			currentLine.WriteString(word)
		} else {
			lines = append(lines, currentLine.String())
			currentLine.Reset()
			currentLine.WriteString(word)
		}
	}

	if currentLine.Len() > 0 {
		lines = append(lines, currentLine.String())
	}

	return strings.Join(lines, "\n")
}
