package parse

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/pevans/forumsent/forum"
)

var (
	sectionIDPattern = regexp.MustCompile(`\?(.?)=(\d+)`)
	errNotSection    = errors.New("not a section")
)

// Sections extracts the section entries listed on a page. Entries that are
// not sections (ads, inline discussions) are ignored; malformed sections
// are logged and skipped. Sections without counters are returned with
// unknown counts.
func (p *Parser) Sections(doc *goquery.Document) []forum.Section {
	var sections []forum.Section
	doc.Find("li.off").Each(func(_ int, s *goquery.Selection) {
		section, err := p.section(s)
		if errors.Is(err, errNotSection) {
			return
		}
		if err != nil {
			p.logger.Warn("skipping section", "err", err)
			return
		}
		sections = append(sections, section)
	})
	return sections
}

func (p *Parser) section(s *goquery.Selection) (forum.Section, error) {
	if !s.Find("div").First().HasClass("aa") {
		return forum.Section{}, errNotSection
	}

	heading := s.Find("h3.web").First()
	if heading.Length() == 0 {
		return forum.Section{}, fmt.Errorf("%w: missing title", ErrMalformedSection)
	}

	section := forum.Section{
		Title:           strings.TrimSpace(heading.Text()),
		Description:     strings.TrimSpace(s.Find("h4.desc").First().Text()),
		DiscussionCount: counter(s, "div.topics"),
		ReplyCount:      counter(s, "div.replies"),
	}

	if when := s.Find("div.zz div.when").First(); when.Length() > 0 {
		date, clock, ok := splitDateTime(strings.TrimSpace(when.Text()))
		if ok {
			section.LastMessageDate = date
			section.LastMessageTime = clock
		}
	}

	href, ok := heading.Find("a").First().Attr("href")
	if !ok {
		return forum.Section{}, fmt.Errorf("%w: %q has no link", ErrMalformedSection, section.Title)
	}
	link, err := p.resolve(href)
	if err != nil {
		return forum.Section{}, fmt.Errorf("%w: bad link %q: %v", ErrMalformedSection, href, err)
	}
	section.Link = link

	m := sectionIDPattern.FindStringSubmatch(link)
	if m == nil {
		return forum.Section{}, fmt.Errorf("%w: no id in link %q", ErrMalformedSection, link)
	}
	section.ID = m[2]

	section.IsPrivate = s.HasClass("res") ||
		strings.Contains(strings.ToLower(section.Description), "password")

	return section, nil
}

// counter reads the <em> inside the first element matching selector.
func counter(s *goquery.Selection, selector string) forum.Count {
	box := s.Find(selector).First()
	if box.Length() == 0 {
		return forum.UnknownCount()
	}
	return forum.ParseCount(box.Find("em").First().Text())
}

// splitDateTime splits "dd/mm/yyyy, hh:mm".
func splitDateTime(text string) (date, clock string, ok bool) {
	date, clock, ok = strings.Cut(text, ", ")
	if !ok {
		return "", "", false
	}
	return strings.TrimSpace(date), strings.TrimSpace(clock), true
}
