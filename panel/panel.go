// Package panel serves the history panel: the list of captures with per-item
// delete and copy, clear-all with confirmation, and document export. A small
// JSON API mirrors the list, delete and clear actions.
package panel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/hazyhaar/clipkeep/export"
	"github.com/hazyhaar/clipkeep/history"
	"github.com/hazyhaar/clipkeep/shield"
	"github.com/hazyhaar/clipkeep/shim"
)

// Flash texts shown after panel actions.
const (
	MsgCopied      = "Copied!"
	MsgNoHistory   = "No history to export!"
	MsgNotFound    = "Record not found."
	MsgCleared     = "History cleared."
	MsgCopyFailed  = "Copy failed."
	MsgNoClipboard = "No clipboard available: nothing was copied."
)

// Store is the part of history.Store the panel uses.
type Store interface {
	List(ctx context.Context) ([]history.Record, error)
	ForURL(ctx context.Context, url string) ([]history.Record, error)
	Get(ctx context.Context, id int64) (history.Record, bool, error)
	Remove(ctx context.Context, id int64) ([]history.Record, error)
	Clear(ctx context.Context) error
}

// Config configures a Panel.
type Config struct {
	Store Store
	// Clipboard receives the text of copied records. Default: shim.System().
	Clipboard shim.Writer
	Logger    *slog.Logger
	// Now is the export clock. Default: time.Now.
	Now func() time.Time
}

// Panel is the history panel HTTP surface.
type Panel struct {
	store  Store
	clip   shim.Writer
	logger *slog.Logger
	now    func() time.Time
}

// New creates a Panel.
func New(cfg Config) (*Panel, error) {
	if cfg.Store == nil {
		return nil, errors.New("panel: Store is required")
	}
	if cfg.Clipboard == nil {
		cfg.Clipboard = shim.System()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Panel{store: cfg.Store, clip: cfg.Clipboard, logger: cfg.Logger, now: cfg.Now}, nil
}

// Handler returns the panel router.
func (p *Panel) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	for _, mw := range shield.DefaultStack(p.logger) {
		r.Use(mw)
	}

	r.Get("/", p.handleList)
	r.Post("/records/{id}/delete", p.handleDelete)
	r.Post("/records/{id}/copy", p.handleCopy)
	r.Get("/clear", p.handleClearConfirm)
	r.Post("/clear", p.handleClear)
	r.Get("/export", p.handleExport)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/records", p.apiList)
		r.Delete("/records/{id}", p.apiDelete)
		r.Post("/clear", p.apiClear)
	})
	return r
}

// Domain is the display name of a record's source: the hostname with the
// first "www." removed, "Unknown" when the URL has no host.
func Domain(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return "Unknown"
	}
	return strings.Replace(u.Hostname(), "www.", "", 1)
}

func (p *Panel) handleList(w http.ResponseWriter, r *http.Request) {
	list, err := p.store.List(r.Context())
	if err != nil {
		p.fail(w, r, err)
		return
	}
	views := make([]recordView, len(list))
	for i, rec := range list {
		views[i] = newRecordView(rec)
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := listTmpl.Execute(w, listPage{Flash: shield.GetFlash(r.Context()), Records: views}); err != nil {
		shield.GetLogger(r.Context()).Warn("panel: render list", "error", err)
	}
}

func (p *Panel) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := recordID(r)
	if !ok {
		http.Error(w, "bad record id", http.StatusBadRequest)
		return
	}
	if _, err := p.store.Remove(r.Context(), id); err != nil {
		p.fail(w, r, err)
		return
	}
	shield.GetLogger(r.Context()).Info("panel: record deleted", "id", id)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (p *Panel) handleCopy(w http.ResponseWriter, r *http.Request) {
	id, ok := recordID(r)
	if !ok {
		http.Error(w, "bad record id", http.StatusBadRequest)
		return
	}
	rec, found, err := p.store.Get(r.Context(), id)
	if err != nil {
		p.fail(w, r, err)
		return
	}
	switch {
	case !found:
		shield.SetFlash(w, shield.FlashError, MsgNotFound)
	default:
		err := p.clip.WriteText(r.Context(), rec.Text)
		switch {
		case errors.Is(err, shim.ErrNoClipboard):
			shield.SetFlash(w, shield.FlashError, MsgNoClipboard)
		case err != nil:
			shield.GetLogger(r.Context()).Warn("panel: copy", "id", id, "error", err)
			shield.SetFlash(w, shield.FlashError, MsgCopyFailed)
		default:
			shield.SetFlash(w, shield.FlashSuccess, MsgCopied)
		}
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (p *Panel) handleClearConfirm(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := clearTmpl.Execute(w, nil); err != nil {
		shield.GetLogger(r.Context()).Warn("panel: render clear", "error", err)
	}
}

func (p *Panel) handleClear(w http.ResponseWriter, r *http.Request) {
	if r.FormValue("confirm") != "yes" {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	if err := p.store.Clear(r.Context()); err != nil {
		p.fail(w, r, err)
		return
	}
	shield.GetLogger(r.Context()).Info("panel: history cleared")
	shield.SetFlash(w, shield.FlashSuccess, MsgCleared)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (p *Panel) handleExport(w http.ResponseWriter, r *http.Request) {
	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	list, err := p.store.List(r.Context())
	if err != nil {
		p.fail(w, r, err)
		return
	}
	now := p.now()
	doc, err := export.Render(format, list, now)
	if errors.Is(err, export.ErrEmpty) {
		shield.SetFlash(w, shield.FlashError, MsgNoHistory)
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	if err != nil {
		p.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.Filename(now, string(format))))
	w.Write(doc)
}

func (p *Panel) apiList(w http.ResponseWriter, r *http.Request) {
	var (
		list []history.Record
		err  error
	)
	if u := r.URL.Query().Get("url"); u != "" {
		list, err = p.store.ForURL(r.Context(), u)
	} else {
		list, err = p.store.List(r.Context())
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if list == nil {
		list = []history.Record{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (p *Panel) apiDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := recordID(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad record id"})
		return
	}
	list, err := p.store.Remove(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (p *Panel) apiClear(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("confirm") != "yes" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "confirm=yes is required"})
		return
	}
	if err := p.store.Clear(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (p *Panel) fail(w http.ResponseWriter, r *http.Request, err error) {
	shield.GetLogger(r.Context()).Error("panel: request failed", "error", err)
	http.Error(w, "internal error", http.StatusInternalServerError)
}

func recordID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id, err == nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
