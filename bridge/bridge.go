// Package bridge carries copy signals from a page context to the observer
// that persists them. The channel is one-way and ordered: the page publishes,
// a single observer reads Signals in publish order.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"
)

// EventName is the DOM event the clipboard shim dispatches with the written
// text as its detail.
const EventName = "clipkeep:intercept"

// Kind tells how a copy was triggered.
type Kind string

const (
	// KindCopy is a native copy of the user's selection. It carries no text;
	// the observer reads the selection itself.
	KindCopy Kind = "copy"
	// KindIntercept is a programmatic clipboard write caught by the shim.
	KindIntercept Kind = "intercept"
)

// Signal is one copy notification.
type Signal struct {
	Kind Kind      `json:"kind"`
	Text string    `json:"text,omitempty"`
	At   time.Time `json:"at"`
}

// ErrClosed is returned by Publish after Close.
var ErrClosed = errors.New("bridge: bus closed")

// Publisher is the page side of the bus.
type Publisher interface {
	Publish(ctx context.Context, sig Signal) error
}

// Bus is a buffered, ordered signal channel with a single subscriber.
type Bus struct {
	mu     sync.RWMutex
	ch     chan Signal
	closed bool
}

// NewBus returns a bus buffering up to size signals. Publish blocks when the
// buffer is full.
func NewBus(size int) *Bus {
	if size < 0 {
		size = 0
	}
	return &Bus{ch: make(chan Signal, size)}
}

// Publish enqueues sig. A zero At is set to the current time.
func (b *Bus) Publish(ctx context.Context, sig Signal) error {
	if sig.At.IsZero() {
		sig.At = time.Now()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrClosed
	}
	select {
	case b.ch <- sig:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Signals returns the receive side. It is closed by Close.
func (b *Bus) Signals() <-chan Signal { return b.ch }

// Close stops the bus. Signals already buffered stay readable.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.closed {
		b.closed = true
		close(b.ch)
	}
}

// DecodeBinding decodes the JSON payload the injected page listener sends
// over the CDP binding: {"kind":"copy"} or {"kind":"intercept","text":"..."}.
func DecodeBinding(payload string) (Signal, error) {
	var sig Signal
	if err := json.Unmarshal([]byte(payload), &sig); err != nil {
		return Signal{}, fmt.Errorf("bridge: decode binding: %w", err)
	}
	switch sig.Kind {
	case KindCopy, KindIntercept:
	default:
		return Signal{}, fmt.Errorf("bridge: unknown signal kind %q", sig.Kind)
	}
	return sig, nil
}
