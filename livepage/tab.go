package livepage

import (
	"context"
	"fmt"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/hazyhaar/clipkeep/idgen"
)

var tabIDs = idgen.Prefixed("tab_", idgen.Default)

// Tab is a capture tab owned by a Manager.
type Tab struct {
	Page    *rod.Page
	PageURL string
	PageID  string

	mgr *Manager
}

// Open creates a tab on pageURL and waits for its first load. A slow load is
// logged, not fatal: capture works on a partially loaded page.
func (m *Manager) Open(ctx context.Context, pageURL string) (*Tab, error) {
	b, err := m.Start(ctx)
	if err != nil {
		return nil, err
	}

	var page *rod.Page
	if m.cfg.Stealth {
		page, err = stealth.Page(b)
	} else {
		page, err = b.Page(proto.TargetCreateTarget{})
	}
	if err != nil {
		return nil, fmt.Errorf("livepage: create tab: %w", err)
	}

	navCtx, cancel := context.WithTimeout(ctx, m.cfg.NavigateTimeout)
	defer cancel()

	if err := page.Context(navCtx).Navigate(pageURL); err != nil {
		page.Close()
		return nil, fmt.Errorf("livepage: navigate %s: %w", pageURL, err)
	}
	if err := page.Context(navCtx).WaitLoad(); err != nil {
		m.cfg.Logger.Warn("livepage: slow load", "url", pageURL, "error", err)
	}

	t := &Tab{Page: page, PageURL: pageURL, PageID: tabIDs(), mgr: m}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		page.Close()
		return nil, ErrClosed
	}
	m.tabs[t.PageID] = t
	m.mu.Unlock()

	m.cfg.Logger.Debug("livepage: tab open", "url", pageURL, "page_id", t.PageID)
	return t, nil
}

// Close closes the tab and forgets it.
func (t *Tab) Close() error {
	if t.mgr != nil {
		t.mgr.mu.Lock()
		delete(t.mgr.tabs, t.PageID)
		t.mgr.mu.Unlock()
	}
	return t.close()
}

func (t *Tab) close() error {
	if t.Page == nil {
		return nil
	}
	return t.Page.Close()
}
