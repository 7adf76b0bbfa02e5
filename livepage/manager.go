// Package livepage runs capture against live Chrome tabs over CDP.
//
// A Manager owns the browser process (launched locally or reached through a
// remote DevTools endpoint) and every tab opened through it. Attach installs
// the clipboard shim, the copy listener and the highlight helpers into a tab
// and forwards the tab's copy signals to a bridge.Publisher. The resulting
// Page satisfies capture.Page.
package livepage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"

	"github.com/hazyhaar/clipkeep/highlight"
)

// ErrClosed is returned once the Manager has been closed.
var ErrClosed = errors.New("livepage: manager is closed")

// Config configures the browser manager.
type Config struct {
	// RemoteURL reaches an already running Chrome: a ws:// DevTools URL, an
	// http://host:port endpoint or a bare port. Empty launches a local Chrome.
	RemoteURL string

	// Headless launches the local Chrome without a window. Capturing real
	// user copies needs a visible browser, so the CLI leaves it off.
	Headless bool

	// Stealth opens tabs through go-rod/stealth.
	Stealth bool

	// NavigateTimeout bounds navigation and load. Default: 30s.
	NavigateTimeout time.Duration

	// MinHighlightLength is the in-page text search guard.
	MinHighlightLength int

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.NavigateTimeout <= 0 {
		c.NavigateTimeout = 30 * time.Second
	}
	if c.MinHighlightLength <= 0 {
		c.MinHighlightLength = highlight.DefaultMinLength
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Manager owns one Chrome and the capture tabs opened in it.
type Manager struct {
	cfg Config

	mu      sync.RWMutex
	browser *rod.Browser
	lnch    *launcher.Launcher
	tabs    map[string]*Tab
	closed  bool
}

// NewManager creates a Manager. Chrome is reached lazily by Start.
func NewManager(cfg Config) *Manager {
	cfg.defaults()
	return &Manager{cfg: cfg, tabs: make(map[string]*Tab)}
}

// Start connects to Chrome once; later calls return the same handle.
func (m *Manager) Start(ctx context.Context) (*rod.Browser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrClosed
	}
	if m.browser != nil {
		return m.browser, nil
	}

	controlURL, err := m.controlURL(ctx)
	if err != nil {
		return nil, err
	}
	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		m.cleanupLauncher()
		return nil, fmt.Errorf("livepage: connect: %w", err)
	}
	m.browser = b
	return b, nil
}

// controlURL resolves the DevTools WebSocket URL, launching Chrome when no
// remote endpoint is configured.
func (m *Manager) controlURL(ctx context.Context) (string, error) {
	log := m.cfg.Logger

	if m.cfg.RemoteURL != "" {
		u, err := launcher.ResolveURL(m.cfg.RemoteURL)
		if err != nil {
			return "", fmt.Errorf("livepage: resolve %s: %w", m.cfg.RemoteURL, err)
		}
		log.Info("livepage: using remote chrome", "url", u)
		return u, nil
	}

	l := launcher.New().Context(ctx).Headless(m.cfg.Headless)
	if m.cfg.Stealth {
		l = l.Set("disable-blink-features", "AutomationControlled")
	}
	u, err := l.Launch()
	if err != nil {
		return "", fmt.Errorf("livepage: launch: %w", err)
	}
	m.lnch = l
	log.Info("livepage: launched chrome", "url", u, "headless", m.cfg.Headless)
	return u, nil
}

func (m *Manager) cleanupLauncher() {
	if m.lnch != nil {
		m.lnch.Cleanup()
		m.lnch = nil
	}
}

// Tabs returns the number of tabs currently open.
func (m *Manager) Tabs() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.tabs)
}

// Close closes every open tab, then the browser. A launched Chrome is
// killed; a remote one is only disconnected.
func (m *Manager) Close() error {
	m.mu.Lock()
	tabs := m.tabs
	m.tabs = make(map[string]*Tab)
	m.closed = true
	m.mu.Unlock()

	for _, t := range tabs {
		t.close()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.browser != nil {
		if m.lnch != nil {
			m.browser.Close()
		}
		m.browser = nil
	}
	m.cleanupLauncher()
	return nil
}
