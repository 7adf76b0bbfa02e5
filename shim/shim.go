// Package shim intercepts programmatic clipboard writes.
//
// Intercept decorates a Writer: every write is announced on the bridge first,
// then forwarded unchanged to the real clipboard, whose result the caller
// receives. The page-side equivalent is Script, which wraps
// navigator.clipboard.writeText the same way.
package shim

import (
	"context"
	_ "embed"
	"errors"
	"log/slog"
	"time"

	"github.com/atotto/clipboard"

	"github.com/hazyhaar/clipkeep/bridge"
)

// Writer writes text to a clipboard.
type Writer interface {
	WriteText(ctx context.Context, text string) error
}

// Func adapts a function to Writer.
type Func func(ctx context.Context, text string) error

// WriteText calls f.
func (f Func) WriteText(ctx context.Context, text string) error { return f(ctx, text) }

// Intercept returns a Writer that publishes an intercept signal carrying text
// before forwarding the write to next. A publish failure is logged and never
// blocks the write; next's error is returned as is.
func Intercept(next Writer, pub bridge.Publisher, logger *slog.Logger) Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return Func(func(ctx context.Context, text string) error {
		sig := bridge.Signal{Kind: bridge.KindIntercept, Text: text, At: time.Now()}
		if err := pub.Publish(ctx, sig); err != nil {
			logger.Debug("shim: publish intercept", "error", err)
		}
		return next.WriteText(ctx, text)
	})
}

// System writes to the operating system clipboard.
func System() Writer {
	return Func(func(_ context.Context, text string) error {
		return clipboard.WriteAll(text)
	})
}

// ErrNoClipboard is returned by Unavailable writers.
var ErrNoClipboard = errors.New("shim: no system clipboard")

// Unavailable stands in for System where no clipboard exists: every write
// fails with ErrNoClipboard.
func Unavailable() Writer {
	return Func(func(context.Context, string) error { return ErrNoClipboard })
}

// Unsupported reports whether the system clipboard is unavailable (no
// xclip, xsel or wl-clipboard on Linux).
func Unsupported() bool { return clipboard.Unsupported }

//go:embed shim.js
var script string

// Script returns the page-side shim. It dispatches bridge.EventName on the
// document with the written text as detail, then calls the original
// writeText. Running it twice is harmless.
func Script() string { return script }
