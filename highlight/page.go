package highlight

import (
	"context"
	"strings"
	"sync"

	"golang.org/x/net/html"
)

// Page is an offline page context: a Document with a URL, a current
// selection and a log of acknowledgements shown to the user.
type Page struct {
	mu    sync.Mutex
	doc   *Document
	url   string
	title string
	sel   *Range
	acks  []string
}

// NewPage binds doc to url. The title is read from the document.
func NewPage(doc *Document, url string) *Page {
	return &Page{doc: doc, url: url, title: doc.Title()}
}

// Document returns the underlying document.
func (p *Page) Document() *Document { return p.doc }

// Select sets the current selection.
func (p *Page) Select(r Range) {
	p.mu.Lock()
	p.sel = &r
	p.mu.Unlock()
}

// SelectText selects the first occurrence of text inside a single text node
// under <body>.
func (p *Page) SelectText(text string) bool {
	if text == "" {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	body := p.doc.Body()
	if body == nil {
		return false
	}
	found := false
	walkText(body, func(n *html.Node) bool {
		if i := strings.Index(n.Data, text); i >= 0 {
			r := TextRange(n, i, i+len(text))
			p.sel, found = &r, true
			return false
		}
		return true
	})
	return found
}

// ClearSelection drops the current selection.
func (p *Page) ClearSelection() {
	p.mu.Lock()
	p.sel = nil
	p.mu.Unlock()
}

// Info returns the page URL and title.
func (p *Page) Info(context.Context) (string, string, error) {
	return p.url, p.title, nil
}

// Selection returns the selected text, "" without a selection.
func (p *Page) Selection(context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.sel == nil {
		return "", nil
	}
	return p.sel.Text(), nil
}

// HighlightSelection wraps the selection and clears it so the marker shows.
// A missing or collapsed selection is a no-op.
func (p *Page) HighlightSelection(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.sel == nil || p.sel.Collapsed() {
		return nil
	}
	if err := p.doc.HighlightRange(*p.sel); err != nil {
		return err
	}
	p.sel = nil
	return nil
}

// FindAndHighlight wraps the first occurrence of text.
func (p *Page) FindAndHighlight(_ context.Context, text string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.doc.FindAndHighlight(text)
}

// Acknowledge records a message shown to the user.
func (p *Page) Acknowledge(_ context.Context, msg string) error {
	p.mu.Lock()
	p.acks = append(p.acks, msg)
	p.mu.Unlock()
	return nil
}

// Acknowledgements returns the messages shown so far.
func (p *Page) Acknowledgements() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.acks...)
}

// HTML renders the current document.
func (p *Page) HTML() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.doc.String()
}
