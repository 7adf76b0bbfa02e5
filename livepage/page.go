package livepage

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/hazyhaar/clipkeep/bridge"
	"github.com/hazyhaar/clipkeep/shim"
)

// BindingName is the CDP binding the page listener reports copies through.
const BindingName = "__clipkeep_binding"

//go:embed listener.js
var listenerJS string

//go:embed highlight.js
var highlightJS string

// Scripts returns the page-side scripts in injection order: the clipboard
// shim, the copy listener, then the highlight and toast helpers.
func Scripts() []string {
	return []string{shim.Script(), listenerJS, highlightJS}
}

// asFunction turns a script into the function expression rod's Eval expects.
func asFunction(script string) string {
	return "() => {\n" + script + "\n}"
}

// Page is an attached tab. It implements capture.Page.
type Page struct {
	page   *rod.Page
	minLen int
	logger *slog.Logger
	loads  chan struct{}
}

// Attach prepares tab for capture. The scripts are registered for every
// future document and run once in the current one. Copy signals raised by
// the page are decoded and published to pub until ctx is done.
func (m *Manager) Attach(ctx context.Context, tab *Tab, pub bridge.Publisher) (*Page, error) {
	log := m.cfg.Logger
	page := tab.Page.Context(ctx)

	if err := (proto.RuntimeAddBinding{Name: BindingName}).Call(page); err != nil {
		log.Warn("livepage: addBinding failed (may already exist)", "error", err)
	}

	for _, s := range Scripts() {
		if _, err := page.EvalOnNewDocument(s); err != nil {
			return nil, fmt.Errorf("livepage: register script: %w", err)
		}
	}
	for _, s := range Scripts() {
		if _, err := page.Eval(asFunction(s)); err != nil {
			return nil, fmt.Errorf("livepage: inject script: %w", err)
		}
	}

	p := &Page{
		page:   tab.Page,
		minLen: m.cfg.MinHighlightLength,
		logger: log,
		loads:  make(chan struct{}, 1),
	}

	wait := page.EachEvent(
		func(e *proto.RuntimeBindingCalled) {
			if e.Name != BindingName {
				return
			}
			sig, err := bridge.DecodeBinding(e.Payload)
			if err != nil {
				log.Warn("livepage: bad binding payload", "error", err)
				return
			}
			if err := pub.Publish(ctx, sig); err != nil {
				log.Debug("livepage: publish", "error", err)
			}
		},
		func(e *proto.PageLoadEventFired) {
			select {
			case p.loads <- struct{}{}:
			default:
			}
		},
	)
	go wait()

	log.Debug("livepage: attached", "url", tab.PageURL, "page_id", tab.PageID)
	return p, nil
}

// Loads signals each document load after Attach. Loads arriving while one is
// pending are coalesced.
func (p *Page) Loads() <-chan struct{} { return p.loads }

// Info returns the current URL and title.
func (p *Page) Info(ctx context.Context) (string, string, error) {
	info, err := p.page.Context(ctx).Info()
	if err != nil {
		return "", "", fmt.Errorf("livepage: page info: %w", err)
	}
	return info.URL, info.Title, nil
}

// Selection returns the user's current selection.
func (p *Page) Selection(ctx context.Context) (string, error) {
	res, err := p.page.Context(ctx).Eval(`() => String(window.getSelection() || '')`)
	if err != nil {
		return "", fmt.Errorf("livepage: selection: %w", err)
	}
	return res.Value.Str(), nil
}

// HighlightSelection wraps the selection and clears it.
func (p *Page) HighlightSelection(ctx context.Context) error {
	if _, err := p.page.Context(ctx).Eval(`() => window.__clipkeep.highlightSelection()`); err != nil {
		return fmt.Errorf("livepage: highlight selection: %w", err)
	}
	return nil
}

// FindAndHighlight wraps the first occurrence of text in the page.
func (p *Page) FindAndHighlight(ctx context.Context, text string) (bool, error) {
	res, err := p.page.Context(ctx).Eval(`(text, min) => window.__clipkeep.findAndHighlight(text, min)`, text, p.minLen)
	if err != nil {
		return false, fmt.Errorf("livepage: find and highlight: %w", err)
	}
	return res.Value.Bool(), nil
}

// Acknowledge shows a toast in the page.
func (p *Page) Acknowledge(ctx context.Context, msg string) error {
	if _, err := p.page.Context(ctx).Eval(`(msg) => window.__clipkeep.toast(msg)`, msg); err != nil {
		return fmt.Errorf("livepage: toast: %w", err)
	}
	return nil
}
