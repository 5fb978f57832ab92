package htmlutil

import (
	"bytes"
	"io"
	"regexp"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
)

func GetText(node *html.Node) string {
	var buffer bytes.Buffer
	getTextRecursive(node, &buffer)
	return buffer.String()
}

func getTextRecursive(node *html.Node, buffer *bytes.Buffer) {
	if node == nil {
		return
	}
	if node.Type == html.TextNode {
		buffer.WriteString(node.Data)
		return
	}
	child := node.FirstChild
	for child != nil {
		getTextRecursive(child, buffer)
		child = child.NextSibling
	}
}

var innerWhitespace = regexp.MustCompile(`\s\s+`)

func removeNonPrintable(s string) string {
	newStr := strings.Builder{}
	for _, c := range s {
		if unicode.IsPrint(c) || unicode.IsSpace(c) {
			newStr.WriteRune(c)
		}
	}
	return newStr.String()
}

// NormalizeText removes non-printable characters, trims the ends and collapses
// runs of whitespace into one space.
func NormalizeText(s string) string {
	s = removeNonPrintable(s)
	s = strings.TrimSpace(s)
	s = innerWhitespace.ReplaceAllString(s, " ")
	return s
}

// Selector is a css selector compiled once, it keeps its source around so
// errors can say which selector failed.
type Selector struct {
	Source  string
	matcher goquery.Matcher
}

// MustCompile compiles a css selector or panics, it is meant for package level selector variables.
func MustCompile(source string) Selector {
	return Selector{
		Source:  source,
		matcher: cascadia.MustCompile(source),
	}
}

func (s Selector) String() string {
	return s.Source
}

// Element is the lookup capability needed to pull fields out of a parsed page.
type Element interface {
	// FindFirst returns the first descendant matching the selector.
	FindFirst(selector Selector) (Element, bool)
	// FindAll returns every descendant matching the selector in document order.
	FindAll(selector Selector) []Element
	// Attr returns the value of an attribute on the element itself.
	Attr(name string) (string, bool)
	// Text returns the normalized text content, false if there is no readable text.
	Text() (string, bool)
}

type selection struct {
	sel *goquery.Selection
}

// Parse parses an html document and returns its root element.
func Parse(r io.Reader) (Element, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, err
	}
	return selection{sel: doc.Selection}, nil
}

// FromSelection wraps the first node of a goquery selection.
func FromSelection(sel *goquery.Selection) Element {
	return selection{sel: sel.First()}
}

func (s selection) FindFirst(selector Selector) (Element, bool) {
	found := s.sel.FindMatcher(selector.matcher)
	if found.Length() == 0 {
		return nil, false
	}
	return selection{sel: found.First()}, true
}

func (s selection) FindAll(selector Selector) []Element {
	found := s.sel.FindMatcher(selector.matcher)
	out := make([]Element, found.Length())
	found.Each(func(i int, child *goquery.Selection) {
		out[i] = selection{sel: child}
	})
	return out
}

func (s selection) Attr(name string) (string, bool) {
	return s.sel.Attr(name)
}

func (s selection) Text() (string, bool) {
	if len(s.sel.Nodes) == 0 {
		return "", false
	}
	text := NormalizeText(GetText(s.sel.Nodes[0]))
	if text == "" {
		return "", false
	}
	return text, true
}
