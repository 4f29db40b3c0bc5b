package parse

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/pevans/forumsent/forum"
)

// Discussions extracts the discussion and announcement entries of a section
// page. An entry missing any of its fields is logged and skipped.
func (p *Parser) Discussions(doc *goquery.Document) []forum.Discussion {
	var discussions []forum.Discussion
	doc.Find("ol.big_list > li").Each(func(_ int, s *goquery.Selection) {
		d, err := p.discussion(s)
		if err != nil {
			p.logger.Warn("skipping discussion entry", "err", err)
			return
		}
		discussions = append(discussions, d)
	})
	return discussions
}

func (p *Parser) discussion(s *goquery.Selection) (forum.Discussion, error) {
	anchor := s.Find("div.bb h3.web a").First()
	if anchor.Length() == 0 {
		return forum.Discussion{}, fmt.Errorf("%w: missing title", ErrMalformedDiscussion)
	}
	title := strings.TrimSpace(anchor.Text())

	href, ok := anchor.Attr("href")
	if !ok {
		return forum.Discussion{}, fmt.Errorf("%w: %q has no link", ErrMalformedDiscussion, title)
	}
	link, err := p.resolve(href)
	if err != nil {
		return forum.Discussion{}, fmt.Errorf("%w: bad link %q: %v", ErrMalformedDiscussion, href, err)
	}

	author := s.Find("div.xx a").First()
	if author.Length() == 0 {
		return forum.Discussion{}, fmt.Errorf("%w: %q has no author", ErrMalformedDiscussion, title)
	}

	replies, err := requiredCount(s, "div.yy div.replies em")
	if err != nil {
		return forum.Discussion{}, fmt.Errorf("%w: %q replies: %v", ErrMalformedDiscussion, title, err)
	}
	views, err := requiredCount(s, "div.yy div.views em")
	if err != nil {
		return forum.Discussion{}, fmt.Errorf("%w: %q views: %v", ErrMalformedDiscussion, title, err)
	}

	kind := forum.TypeDiscussion
	if s.HasClass("annuncio") {
		kind = forum.TypeAnnouncement
	}

	return forum.Discussion{
		Title:   title,
		Link:    link,
		Author:  strings.TrimSpace(author.Text()),
		Replies: replies,
		Views:   views,
		Type:    kind,
	}, nil
}

func requiredCount(s *goquery.Selection, selector string) (int, error) {
	em := s.Find(selector).First()
	if em.Length() == 0 {
		return 0, fmt.Errorf("missing %s", selector)
	}
	return forum.ParseInt(em.Text())
}
