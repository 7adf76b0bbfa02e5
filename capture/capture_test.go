package capture

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/hazyhaar/clipkeep/bridge"
	"github.com/hazyhaar/clipkeep/highlight"
	"github.com/hazyhaar/clipkeep/history"
	"github.com/hazyhaar/clipkeep/idgen"
	"github.com/hazyhaar/clipkeep/kv"
)

const pageHTML = `<html><head><title>Page A</title></head><body>
<p>hello world from the first paragraph</p>
<p>a second paragraph with more text</p>
</body></html>`

func testPage(t *testing.T, url string) *highlight.Page {
	t.Helper()
	d, err := highlight.ParseString(pageHTML)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return highlight.NewPage(d, url)
}

func testCoordinator(t *testing.T, page Page, opts ...Option) (*Coordinator, *history.Store) {
	t.Helper()
	store := history.New(kv.NewMemory())
	opts = append([]Option{WithSettleDelay(0)}, opts...)
	return New(store, page, opts...), store
}

func list(t *testing.T, s *history.Store) []history.Record {
	t.Helper()
	l, err := s.List(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	return l
}

func TestHandle_NativeCopy(t *testing.T) {
	ctx := context.Background()
	page := testPage(t, "https://a.test/")
	c, store := testCoordinator(t, page)

	page.SelectText("hello world")
	out, err := c.Handle(ctx, bridge.Signal{Kind: bridge.KindCopy})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if out != OutcomeStored {
		t.Fatalf("outcome: got %v, want stored", out)
	}
	l := list(t, store)
	if len(l) != 1 {
		t.Fatalf("history len: %d", len(l))
	}
	r := l[0]
	if r.Text != "hello world" || r.URL != "https://a.test/" || r.Title != "Page A" {
		t.Fatalf("record: %+v", r)
	}
	if acks := page.Acknowledgements(); len(acks) != 1 || acks[0] != DefaultMessage {
		t.Fatalf("acks: %q", acks)
	}
	hs := page.Document().Highlights()
	if len(hs) == 0 || hs[0] != "hello world" {
		t.Fatalf("highlights: %q", hs)
	}
	if sel, _ := page.Selection(ctx); sel != "" {
		t.Fatalf("selection not cleared: %q", sel)
	}
	if c.State() != Idle {
		t.Fatalf("state: %v", c.State())
	}
}

func TestHandle_NativeCopyTrimsSelection(t *testing.T) {
	page := testPage(t, "https://a.test/")
	c, store := testCoordinator(t, page)
	page.SelectText("hello world from ")
	if _, err := c.Handle(context.Background(), bridge.Signal{Kind: bridge.KindCopy}); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if got := list(t, store)[0].Text; got != "hello world from" {
		t.Fatalf("text: got %q", got)
	}
}

func TestHandle_EmptySelection(t *testing.T) {
	page := testPage(t, "https://a.test/")
	c, store := testCoordinator(t, page)

	out, err := c.Handle(context.Background(), bridge.Signal{Kind: bridge.KindCopy})
	if err != nil || out != OutcomeEmpty {
		t.Fatalf("no selection: got (%v, %v)", out, err)
	}
	page.SelectText(" ")
	out, err = c.Handle(context.Background(), bridge.Signal{Kind: bridge.KindCopy})
	if err != nil || out != OutcomeEmpty {
		t.Fatalf("blank selection: got (%v, %v)", out, err)
	}
	if len(list(t, store)) != 0 {
		t.Fatal("empty capture stored")
	}
	if len(page.Acknowledgements()) != 0 {
		t.Fatal("empty capture acknowledged")
	}
}

func TestHandle_Intercept(t *testing.T) {
	ctx := context.Background()
	page := testPage(t, "https://a.test/")
	c, store := testCoordinator(t, page)

	out, err := c.Handle(ctx, bridge.Signal{Kind: bridge.KindIntercept, Text: "  second paragraph  "})
	if err != nil || out != OutcomeStored {
		t.Fatalf("Handle: got (%v, %v)", out, err)
	}
	if got := list(t, store)[0].Text; got != "  second paragraph  " {
		t.Fatalf("intercepted text altered: %q", got)
	}

	out, err = c.Handle(ctx, bridge.Signal{Kind: bridge.KindIntercept, Text: ""})
	if err != nil || out != OutcomeEmpty {
		t.Fatalf("empty intercept: got (%v, %v)", out, err)
	}
}

func TestHandle_InterceptHighlightsByText(t *testing.T) {
	page := testPage(t, "https://a.test/")
	c, _ := testCoordinator(t, page)
	if _, err := c.Handle(context.Background(), bridge.Signal{Kind: bridge.KindIntercept, Text: "second paragraph"}); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	hs := page.Document().Highlights()
	if len(hs) != 1 || hs[0] != "second paragraph" {
		t.Fatalf("highlights: %q", hs)
	}
}

func TestHandle_Duplicate(t *testing.T) {
	ctx := context.Background()
	page := testPage(t, "https://a.test/")
	c, store := testCoordinator(t, page)

	sig := bridge.Signal{Kind: bridge.KindIntercept, Text: "hello world"}
	if out, _ := c.Handle(ctx, sig); out != OutcomeStored {
		t.Fatalf("first: %v", out)
	}
	out, err := c.Handle(ctx, sig)
	if err != nil || out != OutcomeDuplicate {
		t.Fatalf("second: got (%v, %v)", out, err)
	}
	if len(list(t, store)) != 1 {
		t.Fatal("duplicate stored")
	}
	if len(page.Acknowledgements()) != 1 {
		t.Fatal("duplicate acknowledged")
	}
}

func TestHandle_ShortTextStoredButNotSearched(t *testing.T) {
	page := testPage(t, "https://a.test/")
	c, store := testCoordinator(t, page)
	out, err := c.Handle(context.Background(), bridge.Signal{Kind: bridge.KindIntercept, Text: "hell"})
	if err != nil || out != OutcomeStored {
		t.Fatalf("Handle: got (%v, %v)", out, err)
	}
	if len(list(t, store)) != 1 {
		t.Fatal("short text not stored")
	}
	if hs := page.Document().Highlights(); len(hs) != 0 {
		t.Fatalf("short text highlighted: %q", hs)
	}
}

func TestHandle_IDsFromClock(t *testing.T) {
	ctx := context.Background()
	at := time.UnixMilli(1_700_000_000_000)
	c, store := testCoordinator(t, Detached{URL: "https://a.test/"}, WithClock(func() time.Time { return at }))
	for i := range 3 {
		c.Handle(ctx, bridge.Signal{Kind: bridge.KindIntercept, Text: fmt.Sprintf("text %d", i)})
	}
	l := list(t, store)
	if len(l) != 3 {
		t.Fatalf("len: %d", len(l))
	}
	if l[2].ID != 1_700_000_000_000 || l[1].ID != l[2].ID+1 || l[0].ID != l[1].ID+1 {
		t.Fatalf("ids: %d %d %d", l[0].ID, l[1].ID, l[2].ID)
	}
	if !l[0].Timestamp.Equal(at) {
		t.Fatalf("timestamp: %v", l[0].Timestamp)
	}
}

func TestHandle_SharedSequence(t *testing.T) {
	ctx := context.Background()
	seq := &idgen.Sequence{}
	seq.Observe(5000)
	at := time.UnixMilli(10)
	c, store := testCoordinator(t, Detached{URL: "u"}, WithSequence(seq), WithClock(func() time.Time { return at }))
	c.Handle(ctx, bridge.Signal{Kind: bridge.KindIntercept, Text: "after restart"})
	if id := list(t, store)[0].ID; id != 5001 {
		t.Fatalf("id: got %d, want 5001", id)
	}
}

func TestHandle_SettleDelayHonoursContext(t *testing.T) {
	page := testPage(t, "https://a.test/")
	c, _ := testCoordinator(t, page, WithSettleDelay(time.Hour))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.Handle(ctx, bridge.Signal{Kind: bridge.KindCopy}); !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v, want context.Canceled", err)
	}
	if c.State() != Idle {
		t.Fatalf("state: %v", c.State())
	}
}

type failingStore struct{ err error }

func (f failingStore) Append(context.Context, history.Record) (bool, error) { return false, f.err }

func (f failingStore) ForURL(context.Context, string) ([]history.Record, error) { return nil, f.err }

func TestHandle_StoreError(t *testing.T) {
	boom := errors.New("disk full")
	page := testPage(t, "https://a.test/")
	c := New(failingStore{err: boom}, page, WithSettleDelay(0))
	_, err := c.Handle(context.Background(), bridge.Signal{Kind: bridge.KindIntercept, Text: "hello world"})
	if !errors.Is(err, boom) {
		t.Fatalf("got %v, want store error", err)
	}
	if len(page.Acknowledgements()) != 0 {
		t.Fatal("failed capture acknowledged")
	}
	if c.State() != Idle {
		t.Fatalf("state: %v", c.State())
	}
}

func TestRun_InOrder(t *testing.T) {
	ctx := context.Background()
	c, store := testCoordinator(t, Detached{URL: "https://a.test/"})
	bus := bridge.NewBus(8)
	for _, s := range []string{"one one", "two two", "three three"} {
		bus.Publish(ctx, bridge.Signal{Kind: bridge.KindIntercept, Text: s})
	}
	bus.Close()
	if err := c.Run(ctx, bus.Signals()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	l := list(t, store)
	if len(l) != 3 || l[0].Text != "three three" || l[2].Text != "one one" {
		t.Fatalf("history: %+v", l)
	}
}

func TestRun_StopsOnContext(t *testing.T) {
	c, _ := testCoordinator(t, Detached{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := c.Run(ctx, make(chan bridge.Signal)); !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v", err)
	}
}

func TestRestore(t *testing.T) {
	ctx := context.Background()
	store := history.New(kv.NewMemory())
	store.Append(ctx, history.Record{Text: "hello world", URL: "https://a.test/", ID: 1})
	store.Append(ctx, history.Record{Text: "second paragraph", URL: "https://a.test/", ID: 2})
	store.Append(ctx, history.Record{Text: "more text", URL: "https://b.test/", ID: 3})

	page := testPage(t, "https://a.test/")
	n, err := New(store, page).Restore(ctx)
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if n != 2 {
		t.Fatalf("restored: got %d, want 2", n)
	}
	if hs := page.Document().Highlights(); len(hs) != 2 {
		t.Fatalf("highlights: %q", hs)
	}
}

func TestStateString(t *testing.T) {
	for s, want := range map[State]string{Idle: "idle", Deduplicating: "deduplicating", Persisting: "persisting"} {
		if s.String() != want {
			t.Errorf("%d: got %q, want %q", s, s.String(), want)
		}
	}
	if OutcomeStored.String() != "stored" {
		t.Errorf("outcome: %q", OutcomeStored.String())
	}
}

// selectionRecorder keeps the error of the selection highlight, which the
// coordinator swallows.
type selectionRecorder struct {
	*highlight.Page
	selErr error
}

func (r *selectionRecorder) HighlightSelection(ctx context.Context) error {
	r.selErr = r.Page.HighlightSelection(ctx)
	return r.selErr
}

func TestHandle_UnwrappableSelectionStillCaptures(t *testing.T) {
	d, err := highlight.ParseString(`<p>hello <b>world</b> and hello world</p>`)
	if err != nil {
		t.Fatal(err)
	}
	p := d.Body().FirstChild
	hello := p.FirstChild
	world := hello.NextSibling.FirstChild

	page := &selectionRecorder{Page: highlight.NewPage(d, "https://a.test/")}
	page.Select(highlight.Range{StartNode: hello, StartOffset: 0, EndNode: world, EndOffset: len(world.Data)})

	c, store := testCoordinator(t, page)
	out, err := c.Handle(context.Background(), bridge.Signal{Kind: bridge.KindCopy})
	if err != nil || out != OutcomeStored {
		t.Fatalf("Handle: (%v, %v), want stored", out, err)
	}
	if !errors.Is(page.selErr, highlight.ErrNotWrappable) {
		t.Fatalf("selection highlight: got %v, want ErrNotWrappable", page.selErr)
	}
	if got := list(t, store); len(got) != 1 || got[0].Text != "hello world" {
		t.Fatalf("history: %+v", got)
	}
	if acks := page.Acknowledgements(); len(acks) != 1 || acks[0] != DefaultMessage {
		t.Fatalf("acknowledgements: %q", acks)
	}
	if hl := d.Highlights(); len(hl) != 1 || hl[0] != "hello world" {
		t.Fatalf("highlights: %q", hl)
	}
	// The text search lands on the later, self-contained occurrence.
	if marker := p.LastChild; marker.FirstChild == nil || marker.FirstChild.Data != "hello world" {
		t.Fatalf("marker not on the trailing text node: %s", page.HTML())
	}
	if c.State() != Idle {
		t.Fatalf("state: %v", c.State())
	}
}
