package archive

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"fandom-vis/pkg/htmlutil"
)

const workIdPrefix = "work_"

var (
	selectorWork         = htmlutil.MustCompile("li.work")
	selectorTitleAuthor  = htmlutil.MustCompile("h4.heading > a")
	selectorRelationship = htmlutil.MustCompile("li.relationships > a.tag")
	selectorCharacter    = htmlutil.MustCompile("li.characters > a.tag")
	selectorFreeform     = htmlutil.MustCompile("li.freeforms > a.tag")
	selectorDate         = htmlutil.MustCompile("p.datetime")
	selectorLanguage     = htmlutil.MustCompile("dl.stats > dd.language")
	selectorWords        = htmlutil.MustCompile("dl.stats > dd.words")
	selectorKudos        = htmlutil.MustCompile("dl.stats > dd.kudos")
	selectorHits         = htmlutil.MustCompile("dl.stats > dd.hits")
)

// ParseSearchPage turns one search results page into works, in the order they are listed.
//
// A page without any listings yields an empty slice, which is how a caller knows it has
// paged past the last result. Any listing that is missing its id, title or date, or that
// has a statistic that cannot be parsed, fails the whole page.
func ParseSearchPage(r io.Reader) ([]Work, error) {
	root, err := htmlutil.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse search page: %w", err)
	}

	listings := root.FindAll(selectorWork)
	works := make([]Work, 0, len(listings))
	for i, listing := range listings {
		work, err := listingParser{listing: listing, index: i}.parse()
		if err != nil {
			return nil, err
		}
		works = append(works, work)
	}
	return works, nil
}

type listingParser struct {
	listing htmlutil.Element
	index   int
}

func (p listingParser) structural(field string, selector string, reason string, err error) error {
	return &StructuralExtractionError{
		Listing:  p.index,
		Field:    field,
		Selector: selector,
		Reason:   reason,
		Err:      err,
	}
}

func (p listingParser) parse() (Work, error) {
	id, err := p.id()
	if err != nil {
		return Work{}, err
	}

	headings := p.listing.FindAll(selectorTitleAuthor)
	if len(headings) == 0 {
		return Work{}, p.structural("title", selectorTitleAuthor.Source, "element not found", nil)
	}
	title, ok := headings[0].Text()
	if !ok {
		return Work{}, p.structural("title", selectorTitleAuthor.Source, "element has no text", nil)
	}
	var author *string
	if len(headings) > 1 {
		text, ok := headings[1].Text()
		if ok {
			author = &text
		}
	}

	relationships, err := p.textList("relationships", selectorRelationship)
	if err != nil {
		return Work{}, err
	}
	characters, err := p.textList("characters", selectorCharacter)
	if err != nil {
		return Work{}, err
	}
	freeforms, err := p.textList("freeforms", selectorFreeform)
	if err != nil {
		return Work{}, err
	}

	date, err := p.date()
	if err != nil {
		return Work{}, err
	}

	language := p.softText(selectorLanguage)
	words, err := p.softNumber("words", selectorWords)
	if err != nil {
		return Work{}, err
	}
	kudos, err := p.softNumber("kudos", selectorKudos)
	if err != nil {
		return Work{}, err
	}
	hits, err := p.softNumber("hits", selectorHits)
	if err != nil {
		return Work{}, err
	}

	return Work{
		Id:            id,
		Title:         title,
		Author:        author,
		Relationships: relationships,
		Characters:    characters,
		Freeforms:     freeforms,
		Date:          date,
		Language:      language,
		Words:         words,
		Kudos:         kudos,
		Hits:          hits,
	}, nil
}

func (p listingParser) id() (string, error) {
	const selector = "li.work[id]"

	attr, ok := p.listing.Attr("id")
	if !ok {
		return "", p.structural("id", selector, "attribute not found", nil)
	}
	id, ok := strings.CutPrefix(attr, workIdPrefix)
	if !ok {
		return "", p.structural("id", selector, fmt.Sprintf("%q does not start with %q", attr, workIdPrefix), nil)
	}
	if id == "" {
		return "", p.structural("id", selector, "id is empty", nil)
	}
	return id, nil
}

func (p listingParser) date() (Date, error) {
	element, ok := p.listing.FindFirst(selectorDate)
	if !ok {
		return Date{}, p.structural("date", selectorDate.Source, "element not found", nil)
	}
	text, ok := element.Text()
	if !ok {
		return Date{}, p.structural("date", selectorDate.Source, "element has no text", nil)
	}
	date, err := ParseDate(DateLayout, text)
	if err != nil {
		return Date{}, p.structural(
			"date", selectorDate.Source,
			fmt.Sprintf("%q is not in the format %q", text, DateLayout),
			err,
		)
	}
	return date, nil
}

// textList collects the text of every matching element, an element without text fails
// the listing since it means the markup is not what the selector expects.
func (p listingParser) textList(field string, selector htmlutil.Selector) ([]string, error) {
	elements := p.listing.FindAll(selector)
	out := make([]string, 0, len(elements))
	for _, element := range elements {
		text, ok := element.Text()
		if !ok {
			return nil, p.structural(field, selector.Source, "tag element has no text", nil)
		}
		out = append(out, text)
	}
	return out, nil
}

func (p listingParser) softText(selector htmlutil.Selector) string {
	element, ok := p.listing.FindFirst(selector)
	if !ok {
		return ""
	}
	text, _ := element.Text()
	return text
}

// softNumber returns 0 when the statistic is not shown, a statistic that is shown
// but is not a number is an error.
func (p listingParser) softNumber(field string, selector htmlutil.Selector) (uint32, error) {
	element, ok := p.listing.FindFirst(selector)
	if !ok {
		return 0, nil
	}
	text, _ := element.Text()
	n, err := ParseCount(text)
	if err != nil {
		return 0, &FieldParseError{
			Listing:  p.index,
			Field:    field,
			Selector: selector.Source,
			Text:     text,
			Err:      err,
		}
	}
	return n, nil
}

// ParseCount parses a statistic like "1,234" into 1234.
func ParseCount(text string) (uint32, error) {
	cleaned := strings.ReplaceAll(strings.TrimSpace(text), ",", "")
	n, err := strconv.ParseUint(cleaned, 10, 32)
	if err != nil {
		return 0, err
	}
	return uint32(n), nil
}
