// Package clipkeep wires the clipboard history together: the persisted store,
// capture coordinators for live or offline pages, the history panel, document
// export and the MCP tool surface.
//
// Usage:
//
//	k, err := clipkeep.New(cfg, logger)
//	defer k.Close()
//	k.RegisterMCP(mcpServer)
//	go k.Watch(ctx, "https://example.com/")
//	p, _ := k.Panel()
//	http.ListenAndServe(cfg.Panel.Addr, p.Handler())
package clipkeep

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/hazyhaar/clipkeep/bridge"
	"github.com/hazyhaar/clipkeep/capture"
	"github.com/hazyhaar/clipkeep/export"
	"github.com/hazyhaar/clipkeep/highlight"
	"github.com/hazyhaar/clipkeep/history"
	"github.com/hazyhaar/clipkeep/idgen"
	"github.com/hazyhaar/clipkeep/kv"
	"github.com/hazyhaar/clipkeep/livepage"
	"github.com/hazyhaar/clipkeep/panel"
	"github.com/hazyhaar/clipkeep/shim"
)

// Keeper is the clipkeep orchestrator.
type Keeper struct {
	config  *Config
	backend kv.Backend
	store   *history.Store
	seq     *idgen.Sequence
	clip    shim.Writer
	now     func() time.Time
	logger  *slog.Logger

	mu      sync.Mutex
	browser *livepage.Manager
}

// Option customises a Keeper.
type Option func(*Keeper)

// WithClipboard replaces the system clipboard writer.
func WithClipboard(w shim.Writer) Option { return func(k *Keeper) { k.clip = w } }

// WithClock sets the capture and export clock.
func WithClock(now func() time.Time) Option { return func(k *Keeper) { k.now = now } }

// New opens the configured backend and history store.
func New(cfg *Config, logger *slog.Logger, opts ...Option) (*Keeper, error) {
	cfg.defaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	backend, err := openBackend(cfg)
	if err != nil {
		return nil, err
	}

	k := &Keeper{
		config:  cfg,
		backend: backend,
		store: history.New(backend,
			history.WithKey(cfg.History.Key),
			history.WithLimit(cfg.History.Limit),
			history.WithLogger(logger),
		),
		seq:    &idgen.Sequence{},
		now:    time.Now,
		logger: logger,
	}
	for _, o := range opts {
		o(k)
	}
	if k.clip == nil {
		if shim.Unsupported() {
			logger.Warn("clipkeep: no system clipboard, copies are recorded only")
			k.clip = shim.Unavailable()
		} else {
			k.clip = shim.System()
		}
	}

	list, err := k.store.List(context.Background())
	if err != nil {
		backend.Close()
		return nil, fmt.Errorf("clipkeep: read history: %w", err)
	}
	for _, r := range list {
		k.seq.Observe(r.ID)
	}

	logger.Info("clipkeep: opened", "storage", cfg.Storage, "records", len(list), "limit", k.store.Limit())
	return k, nil
}

func openBackend(cfg *Config) (kv.Backend, error) {
	switch cfg.Storage {
	case StorageFile:
		return kv.OpenFile(cfg.FilePath)
	case StorageMemory:
		return kv.NewMemory(), nil
	}
	return kv.OpenSQLite(cfg.DBPath, cfg.sqliteOptions()...)
}

// Close stops the browser, if any, and closes the backend.
func (k *Keeper) Close() error {
	k.mu.Lock()
	if k.browser != nil {
		k.browser.Close()
		k.browser = nil
	}
	k.mu.Unlock()
	return k.backend.Close()
}

// Store returns the history store.
func (k *Keeper) Store() *history.Store { return k.store }

// Coordinator returns a capture coordinator for page sharing the keeper's
// store and record ID sequence.
func (k *Keeper) Coordinator(page capture.Page) *capture.Coordinator {
	return capture.New(k.store, page,
		capture.WithSequence(k.seq),
		capture.WithSettleDelay(k.config.Capture.SettleDelay),
		capture.WithClock(k.now),
		capture.WithLogger(k.logger),
	)
}

// Panel returns the history panel.
func (k *Keeper) Panel() (*panel.Panel, error) {
	return panel.New(panel.Config{
		Store:     k.store,
		Clipboard: k.clip,
		Logger:    k.logger,
		Now:       k.now,
	})
}

// Copy performs a programmatic copy of text attributed to pageURL: the write
// goes through the intercepting shim to the clipboard and the intercepted
// signal is captured. The capture happens even when the clipboard write
// fails; that error is returned alongside the outcome.
func (k *Keeper) Copy(ctx context.Context, text, pageURL, title string) (capture.Outcome, error) {
	bus := bridge.NewBus(1)
	werr := shim.Intercept(k.clip, bus, k.logger).WriteText(ctx, text)
	bus.Close()

	sig, ok := <-bus.Signals()
	if !ok {
		return capture.OutcomeEmpty, werr
	}
	out, err := k.Coordinator(capture.Detached{URL: pageURL, Title: title}).Handle(ctx, sig)
	if err != nil {
		return out, err
	}
	return out, werr
}

// Export renders the whole history. It returns export.ErrEmpty for an empty
// history.
func (k *Keeper) Export(ctx context.Context, format export.Format) (doc []byte, filename string, err error) {
	list, err := k.store.List(ctx)
	if err != nil {
		return nil, "", err
	}
	now := k.now()
	doc, err = export.Render(format, list, now)
	if err != nil {
		return nil, "", err
	}
	return doc, export.Filename(now, string(format)), nil
}

// RestoreDocument re-applies the stored highlights of pageURL to a saved HTML
// page and returns the cleaned, rendered result with the number of
// highlights. The page's scripts and event handlers are stripped.
func (k *Keeper) RestoreDocument(ctx context.Context, r io.Reader, pageURL string) (string, int, error) {
	doc, err := highlight.ParseUntrusted(r, highlight.WithMinLength(k.config.Capture.MinHighlightLen))
	if err != nil {
		return "", 0, err
	}
	n, err := doc.Restore(ctx, k.store, pageURL)
	if err != nil {
		return "", 0, err
	}
	return doc.String(), n, nil
}

func (k *Keeper) startBrowser(ctx context.Context) (*livepage.Manager, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.browser != nil {
		return k.browser, nil
	}
	m := livepage.NewManager(livepage.Config{
		RemoteURL:          k.config.Browser.Remote,
		Headless:           k.config.Browser.Headless,
		Stealth:            k.config.Browser.Stealth,
		MinHighlightLength: k.config.Capture.MinHighlightLen,
		Logger:             k.logger,
	})
	if _, err := m.Start(ctx); err != nil {
		return nil, err
	}
	k.browser = m
	return m, nil
}

// Watch opens pageURL in a live tab and captures its copies until ctx is
// done. Stored highlights are restored now and after every reload.
func (k *Keeper) Watch(ctx context.Context, pageURL string) error {
	mgr, err := k.startBrowser(ctx)
	if err != nil {
		return err
	}
	tab, err := mgr.Open(ctx, pageURL)
	if err != nil {
		return err
	}
	defer tab.Close()

	bus := bridge.NewBus(64)
	defer bus.Close()

	page, err := mgr.Attach(ctx, tab, bus)
	if err != nil {
		return err
	}
	coord := k.Coordinator(page)
	if _, err := coord.Restore(ctx); err != nil {
		k.logger.Warn("clipkeep: restore highlights", "url", pageURL, "error", err)
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-page.Loads():
				if _, err := coord.Restore(ctx); err != nil && ctx.Err() == nil {
					k.logger.Warn("clipkeep: restore highlights", "url", pageURL, "error", err)
				}
			}
		}
	}()

	k.logger.Info("clipkeep: watching", "url", pageURL, "page_id", tab.PageID, "tabs", mgr.Tabs())
	err = coord.Run(ctx, bus.Signals())
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
