package parse

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/pevans/forumsent/forum"
)

// quotePattern matches a quote header such as
// `Quote (mario @ 12/3/2021, 10:22) ... href="..."` and captures author,
// date, time and the link to the quoted post.
var quotePattern = regexp.MustCompile(`(.*)\((.*) @ (\d{1,2}/\d{1,2}/\d{4}), (\d{2}:\d{2})\).*href="([^"]+)"`)

const postedOnMarker = "Posted on"

// PostFragments returns every post fragment on a discussion page.
func PostFragments(doc *goquery.Document) []*goquery.Selection {
	sel := doc.Find("li.post")
	fragments := make([]*goquery.Selection, 0, sel.Length())
	for i := range sel.Nodes {
		fragments = append(fragments, sel.Eq(i))
	}
	return fragments
}

// PostOrLog parses a fragment and logs it on failure.
func (p *Parser) PostOrLog(fragment *goquery.Selection) (forum.Post, bool) {
	post, err := p.Post(fragment)
	if err != nil {
		raw, _ := goquery.OuterHtml(fragment)
		p.logger.Warn("skipping post", "err", err, "fragment", raw)
		return forum.Post{}, false
	}
	return post, true
}

// Post parses a single post fragment. The message has its signature
// removed, emojis recorded and then replaced by aliases, and the text of
// every quote cut out so it is stored only once, inside the quote.
func (p *Parser) Post(fragment *goquery.Selection) (forum.Post, error) {
	post := forum.Post{Author: forum.UnknownAuthor}

	if nick := fragment.Find("div.nick a").First(); nick.Length() > 0 {
		if name := strings.TrimSpace(nick.Text()); name != "" {
			post.Author = name
		}
	}

	if when := fragment.Find("span.when").First(); when.Length() > 0 {
		post.Date, post.Time = splitTimestamp(when.Text())
	}

	body := fragment.Find("td.right.Item").First()
	if body.Length() == 0 {
		return forum.Post{}, fmt.Errorf("%w: no message body (author %q)", ErrMalformedPost, post.Author)
	}

	raw := stripSignature(textOf(body))
	if emojis := emojiPositions(raw); len(emojis) > 0 {
		post.MessageEmojis = emojis
	}
	message := normalize(raw)

	// Quotes are cut before trailing periods go, so a quote ending the
	// message still matches.
	fragment.Find("div.quote_top").Each(func(_ int, header *goquery.Selection) {
		quote, ok := p.quote(header)
		if !ok {
			return
		}
		post.Quotes = append(post.Quotes, quote)
		if quote.Content != "" {
			message = strings.TrimSpace(strings.ReplaceAll(message, quote.Content, ""))
		}
	})

	post.Message = trimPeriods(message)
	return post, nil
}

// quote pairs a quote header with the body right after it.
func (p *Parser) quote(header *goquery.Selection) (forum.Quote, bool) {
	markup, err := goquery.OuterHtml(header)
	if err != nil {
		return forum.Quote{}, false
	}
	m := quotePattern.FindStringSubmatch(markup)
	if m == nil {
		p.logger.Debug("quote header did not match", "header", markup)
		return forum.Quote{}, false
	}

	body := header.NextFiltered("div.quote")
	if body.Length() == 0 {
		p.logger.Debug("quote header without body", "header", markup)
		return forum.Quote{}, false
	}

	content := textOf(body)
	quote := forum.Quote{
		Author:  strings.TrimSpace(m[2]),
		Date:    m[3],
		Time:    m[4],
		Href:    html.UnescapeString(m[5]),
		Content: normalize(content),
	}
	if emojis := emojiPositions(content); len(emojis) > 0 {
		quote.Emojis = emojis
	}
	return quote, true
}

// splitTimestamp extracts date and time from "Posted on 12/3/2021, 10:22".
// Text it cannot split yields empty values.
func splitTimestamp(text string) (date, clock string) {
	text = strings.TrimSpace(text)
	if idx := strings.LastIndex(text, postedOnMarker); idx != -1 {
		text = text[idx+len(postedOnMarker):]
	}
	date, clock, ok := splitDateTime(strings.TrimSpace(text))
	if !ok {
		return "", ""
	}
	return date, clock
}
