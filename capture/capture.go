// Package capture turns copy signals into stored history records.
//
// A Coordinator serves one page. For each signal it works out the copied
// text, appends a record to the history store, and when the record was new
// (not a repeat of the newest one) acknowledges the copy and highlights the
// text on the page. Signals are handled one at a time in arrival order.
package capture

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hazyhaar/clipkeep/bridge"
	"github.com/hazyhaar/clipkeep/history"
	"github.com/hazyhaar/clipkeep/idgen"
)

const (
	// DefaultSettleDelay lets a native copy finish before the selection is read.
	DefaultSettleDelay = 10 * time.Millisecond
	// DefaultMessage is the acknowledgement shown for a stored capture.
	DefaultMessage = "Saved & Highlighted"
)

// State is the coordinator's position in the capture cycle.
type State int32

const (
	Idle State = iota
	Deduplicating
	Persisting
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Deduplicating:
		return "deduplicating"
	case Persisting:
		return "persisting"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// Outcome is what became of a signal.
type Outcome int

const (
	// OutcomeEmpty: no text to capture. Nothing stored.
	OutcomeEmpty Outcome = iota
	// OutcomeDuplicate: same text and URL as the newest record. Nothing stored.
	OutcomeDuplicate
	// OutcomeStored: a new record heads the history.
	OutcomeStored
)

func (o Outcome) String() string {
	switch o {
	case OutcomeEmpty:
		return "empty"
	case OutcomeDuplicate:
		return "duplicate"
	case OutcomeStored:
		return "stored"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// Page is the page context a coordinator observes and decorates.
type Page interface {
	// Info returns the page URL and title.
	Info(ctx context.Context) (url, title string, err error)
	// Selection returns the user's current selection, "" when there is none.
	Selection(ctx context.Context) (string, error)
	// HighlightSelection wraps the current selection in a marker.
	HighlightSelection(ctx context.Context) error
	// FindAndHighlight wraps the first occurrence of text in a marker.
	FindAndHighlight(ctx context.Context, text string) (bool, error)
	// Acknowledge shows a transient message to the user.
	Acknowledge(ctx context.Context, msg string) error
}

// Store is the part of history.Store the coordinator uses.
type Store interface {
	Append(ctx context.Context, r history.Record) (bool, error)
	ForURL(ctx context.Context, url string) ([]history.Record, error)
}

// Coordinator drives captures for one page.
type Coordinator struct {
	store  Store
	page   Page
	seq    *idgen.Sequence
	settle time.Duration
	msg    string
	now    func() time.Time
	logger *slog.Logger

	mu    sync.Mutex
	state atomic.Int32
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithSettleDelay sets the wait before a native copy reads the selection.
func WithSettleDelay(d time.Duration) Option { return func(c *Coordinator) { c.settle = d } }

// WithSequence shares a record ID sequence between coordinators.
func WithSequence(s *idgen.Sequence) Option { return func(c *Coordinator) { c.seq = s } }

// WithMessage sets the acknowledgement text.
func WithMessage(m string) Option { return func(c *Coordinator) { c.msg = m } }

// WithClock sets the capture clock.
func WithClock(now func() time.Time) Option { return func(c *Coordinator) { c.now = now } }

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option { return func(c *Coordinator) { c.logger = l } }

// New returns a coordinator appending captures of page to store.
func New(store Store, page Page, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:  store,
		page:   page,
		settle: DefaultSettleDelay,
		msg:    DefaultMessage,
		now:    time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	if c.seq == nil {
		c.seq = &idgen.Sequence{}
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

// State returns the current state.
func (c *Coordinator) State() State { return State(c.state.Load()) }

// Handle processes one signal. Empty and duplicate captures are outcomes, not
// errors. Errors come from the page or the store; the coordinator is back to
// Idle either way.
func (c *Coordinator) Handle(ctx context.Context, sig bridge.Signal) (Outcome, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	defer c.state.Store(int32(Idle))

	text, err := c.text(ctx, sig)
	if err != nil {
		return OutcomeEmpty, err
	}
	if strings.TrimSpace(text) == "" {
		return OutcomeEmpty, nil
	}

	c.state.Store(int32(Deduplicating))
	url, title, err := c.page.Info(ctx)
	if err != nil {
		return OutcomeEmpty, fmt.Errorf("capture: page info: %w", err)
	}
	now := c.now()
	rec := history.Record{
		Text:      text,
		URL:       url,
		Title:     title,
		Timestamp: now.UTC().Truncate(time.Millisecond),
		ID:        c.seq.Next(now),
	}
	stored, err := c.store.Append(ctx, rec)
	if err != nil {
		return OutcomeEmpty, fmt.Errorf("capture: append: %w", err)
	}
	if !stored {
		c.logger.Debug("capture: duplicate", "url", url)
		return OutcomeDuplicate, nil
	}

	c.state.Store(int32(Persisting))
	c.logger.Info("capture: saved", "url", url, "id", rec.ID, "kind", string(sig.Kind))
	c.decorate(ctx, text)
	return OutcomeStored, nil
}

func (c *Coordinator) text(ctx context.Context, sig bridge.Signal) (string, error) {
	switch sig.Kind {
	case bridge.KindIntercept:
		return sig.Text, nil
	case bridge.KindCopy:
		if c.settle > 0 {
			t := time.NewTimer(c.settle)
			defer t.Stop()
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-t.C:
			}
		}
		sel, err := c.page.Selection(ctx)
		if err != nil {
			return "", fmt.Errorf("capture: read selection: %w", err)
		}
		return strings.TrimSpace(sel), nil
	}
	return "", fmt.Errorf("capture: unknown signal kind %q", sig.Kind)
}

// decorate runs the visible side effects of a stored capture. Each is best
// effort: failures are logged and the others still run.
func (c *Coordinator) decorate(ctx context.Context, text string) {
	if err := c.page.Acknowledge(ctx, c.msg); err != nil {
		c.logger.Debug("capture: acknowledge", "error", err)
	}
	if err := c.page.HighlightSelection(ctx); err != nil {
		c.logger.Debug("capture: highlight selection", "error", err)
	}
	if _, err := c.page.FindAndHighlight(ctx, text); err != nil {
		c.logger.Debug("capture: find and highlight", "error", err)
	}
}

// Run handles signals in order until the channel closes or ctx is done.
func (c *Coordinator) Run(ctx context.Context, signals <-chan bridge.Signal) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case sig, ok := <-signals:
			if !ok {
				return nil
			}
			if _, err := c.Handle(ctx, sig); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				c.logger.Warn("capture: signal dropped", "kind", string(sig.Kind), "error", err)
			}
		}
	}
}

// Restore re-highlights every stored capture of the page, as after a reload.
// It returns how many were found on the page.
func (c *Coordinator) Restore(ctx context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	url, _, err := c.page.Info(ctx)
	if err != nil {
		return 0, fmt.Errorf("capture: page info: %w", err)
	}
	records, err := c.store.ForURL(ctx, url)
	if err != nil {
		return 0, fmt.Errorf("capture: restore: %w", err)
	}
	n := 0
	for _, r := range records {
		ok, err := c.page.FindAndHighlight(ctx, r.Text)
		if err != nil {
			c.logger.Debug("capture: restore highlight", "id", r.ID, "error", err)
			continue
		}
		if ok {
			n++
		}
	}
	c.logger.Debug("capture: restored", "url", url, "records", len(records), "highlighted", n)
	return n, nil
}

// Detached is a page with no document: programmatic copies made outside any
// browser tab. Nothing is selected and nothing can be highlighted.
type Detached struct {
	URL   string
	Title string
}

func (d Detached) Info(context.Context) (string, string, error) { return d.URL, d.Title, nil }

func (Detached) Selection(context.Context) (string, error) { return "", nil }

func (Detached) HighlightSelection(context.Context) error { return nil }

func (Detached) FindAndHighlight(context.Context, string) (bool, error) { return false, nil }

func (Detached) Acknowledge(context.Context, string) error { return nil }
