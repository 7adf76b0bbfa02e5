// Package highlight finds copied text inside an HTML document and wraps it in
// a visual marker.
//
// The tree is a golang.org/x/net/html parse tree. Wrapping follows the DOM's
// Range.surroundContents rules: a range can be wrapped only if no element is
// partially covered by it. Anything else fails with ErrNotWrappable and leaves
// the tree exactly as it was.
package highlight

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/hazyhaar/clipkeep/history"
)

const (
	// MarkerClass identifies highlight wrappers.
	MarkerClass = "clipkeep-highlight"
	// MarkerStyle is the inline style of highlight wrappers.
	MarkerStyle = "background-color: yellow; color: black;"
	// DefaultMinLength is the shortest text FindAndHighlight searches for.
	DefaultMinLength = 5
)

var (
	// ErrNotWrappable means the range partially covers an element.
	ErrNotWrappable = errors.New("highlight: range cannot be wrapped")
	// ErrInvalidRange means an offset is out of bounds or the end precedes the start.
	ErrInvalidRange = errors.New("highlight: invalid range")
	// ErrTooShort is returned by FindAndHighlight for text under the minimum length.
	ErrTooShort = errors.New("highlight: text too short")
)

// Document is a parsed HTML page that highlights can be applied to.
type Document struct {
	root   *html.Node
	minLen int
}

// Option configures a Document.
type Option func(*Document)

// WithMinLength sets the FindAndHighlight noise guard, in characters.
func WithMinLength(n int) Option {
	return func(d *Document) {
		if n > 0 {
			d.minLen = n
		}
	}
}

// Parse reads an HTML document.
func Parse(r io.Reader, opts ...Option) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("highlight: parse: %w", err)
	}
	d := &Document{root: root, minLen: DefaultMinLength}
	for _, o := range opts {
		o(d)
	}
	return d, nil
}

// untrusted strips scripts, event handlers, styles and unsafe URLs.
var untrusted = bluemonday.UGCPolicy()

// ParseUntrusted parses a page that came from outside, such as a saved copy of
// a web page. The markup is cleaned before parsing, so rendering the document
// afterwards never replays the page's scripts. Text content is kept, so
// highlights land where they would on the original page.
func ParseUntrusted(r io.Reader, opts ...Option) (*Document, error) {
	return Parse(untrusted.SanitizeReader(r), opts...)
}

// ParseString is Parse over a string.
func ParseString(s string, opts ...Option) (*Document, error) {
	return Parse(strings.NewReader(s), opts...)
}

// Body returns the <body> element. html.Parse always synthesizes one.
func (d *Document) Body() *html.Node {
	return findElement(d.root, atom.Body)
}

// Title returns the trimmed text of <title>, or "".
func (d *Document) Title() string {
	t := findElement(d.root, atom.Title)
	if t == nil {
		return ""
	}
	var b strings.Builder
	for c := t.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
		}
	}
	return strings.TrimSpace(b.String())
}

// Render writes the document as HTML.
func (d *Document) Render(w io.Writer) error {
	return html.Render(w, d.root)
}

// String renders the document. Render errors yield "".
func (d *Document) String() string {
	var buf bytes.Buffer
	if err := d.Render(&buf); err != nil {
		return ""
	}
	return buf.String()
}

// HighlightRange wraps r in a marker element.
func (d *Document) HighlightRange(r Range) error {
	return wrap(r)
}

// FindAndHighlight wraps the first occurrence of text found inside a single
// text node under <body>. It reports whether a match was wrapped; text that is
// not present is not an error. Later occurrences are never highlighted.
func (d *Document) FindAndHighlight(text string) (bool, error) {
	if utf8.RuneCountInString(text) < d.minLen {
		return false, ErrTooShort
	}
	body := d.Body()
	if body == nil {
		return false, nil
	}
	var match *html.Node
	idx := -1
	walkText(body, func(n *html.Node) bool {
		if i := strings.Index(n.Data, text); i >= 0 {
			match, idx = n, i
			return false
		}
		return true
	})
	if match == nil {
		return false, nil
	}
	if err := wrap(Range{StartNode: match, StartOffset: idx, EndNode: match, EndOffset: idx + len(text)}); err != nil {
		return false, err
	}
	return true, nil
}

// Source lists the stored captures of a page.
type Source interface {
	ForURL(ctx context.Context, url string) ([]history.Record, error)
}

// Restore re-applies the highlights of every stored capture of pageURL and
// returns how many were wrapped. Captures that are too short or no longer on
// the page are skipped.
func (d *Document) Restore(ctx context.Context, src Source, pageURL string) (int, error) {
	records, err := src.ForURL(ctx, pageURL)
	if err != nil {
		return 0, fmt.Errorf("highlight: restore: %w", err)
	}
	n := 0
	for _, r := range records {
		if ok, _ := d.FindAndHighlight(r.Text); ok {
			n++
		}
	}
	return n, nil
}

// Highlights returns the text of every marker in document order.
func (d *Document) Highlights() []string {
	var out []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if isMarker(n) {
			out = append(out, textContent(n))
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(d.root)
	return out
}

func newMarker() *html.Node {
	return &html.Node{
		Type:     html.ElementNode,
		DataAtom: atom.Span,
		Data:     "span",
		Attr: []html.Attribute{
			{Key: "class", Val: MarkerClass},
			{Key: "style", Val: MarkerStyle},
		},
	}
}

func isMarker(n *html.Node) bool {
	if n.Type != html.ElementNode || n.DataAtom != atom.Span {
		return false
	}
	for _, a := range n.Attr {
		if a.Key == "class" && a.Val == MarkerClass {
			return true
		}
	}
	return false
}

// walkText visits text nodes in document order, skipping the contents of
// elements that never render text. fn returns false to stop.
func walkText(n *html.Node, fn func(*html.Node) bool) bool {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		switch c.Type {
		case html.TextNode:
			if !fn(c) {
				return false
			}
		case html.ElementNode:
			if skipContents(c) {
				continue
			}
			if !walkText(c, fn) {
				return false
			}
		}
	}
	return true
}

func skipContents(n *html.Node) bool {
	switch n.DataAtom {
	case atom.Script, atom.Style, atom.Noscript, atom.Template:
		return true
	}
	return false
}

func findElement(n *html.Node, a atom.Atom) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == a {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if f := findElement(c, a); f != nil {
			return f
		}
	}
	return nil
}

func textContent(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		b.WriteString(textContent(c))
	}
	return b.String()
}
