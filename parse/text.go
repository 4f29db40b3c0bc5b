package parse

import (
	"slices"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/forPelevin/gomoji"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"golang.org/x/text/unicode/norm"

	"github.com/pevans/forumsent/forum"
)

// signatureMarker starts the profile links the forum appends to every
// post body.
const signatureMarker = "PM Email"

// textOf joins the trimmed text nodes under sel with single spaces, skipping
// scripts and styles. The text is returned as found; emoji positions are
// indexes into it.
func textOf(sel *goquery.Selection) string {
	var parts []string
	for _, n := range sel.Nodes {
		collectText(n, &parts)
	}
	return strings.Join(parts, " ")
}

func collectText(n *html.Node, parts *[]string) {
	switch n.Type {
	case html.TextNode:
		if t := strings.TrimSpace(n.Data); t != "" {
			*parts = append(*parts, t)
		}
		return
	case html.ElementNode:
		if n.DataAtom == atom.Script || n.DataAtom == atom.Style {
			return
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, parts)
	}
}

// stripSignature cuts text at the first signature marker.
func stripSignature(text string) string {
	if idx := strings.Index(text, signatureMarker); idx != -1 {
		return strings.TrimSpace(text[:idx])
	}
	return text
}

// emojiPositions lists every emoji character in text with its character
// (rune) index.
func emojiPositions(text string) []forum.EmojiPosition {
	var out []forum.EmojiPosition
	for i, r := range []rune(text) {
		if r < 0x80 {
			continue
		}
		s := string(r)
		if gomoji.ContainsEmoji(s) {
			out = append(out, forum.EmojiPosition{Emoji: s, Pos: i})
		}
	}
	return out
}

// demojize replaces emojis with their textual alias, e.g. "😀" becomes
// ":grinning_face:".
func demojize(text string) string {
	found := gomoji.FindAll(text)
	if len(found) == 0 {
		return text
	}

	// Longer sequences first so skin-tone variants are not split.
	slices.SortFunc(found, func(a, b gomoji.Emoji) int {
		return len(b.Character) - len(a.Character)
	})

	for _, e := range found {
		alias := ":" + strings.ReplaceAll(e.Slug, "-", "_") + ":"
		text = strings.ReplaceAll(text, e.Character, alias)
	}
	return text
}

// normalize NFC-normalizes and demojizes text for storage.
func normalize(text string) string {
	return strings.TrimSpace(demojize(norm.NFC.String(text)))
}

// trimPeriods drops trailing periods and spaces.
func trimPeriods(text string) string {
	return strings.TrimRight(strings.TrimSpace(text), ". ")
}
