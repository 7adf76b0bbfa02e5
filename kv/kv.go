// Package kv is the external key-value store the clipboard history lives in.
//
// A Backend maps a fixed key to an opaque value. Update is the atomic
// read-modify-write primitive: fn sees the current value and decides whether a
// new one is written, with no other writer on the same backend interleaving.
//
// Backends:
//   - SQLite: one row per key in a kv table, Update in a single transaction.
//   - File:   one JSON document per directory entry, tmp-file + rename writes.
//   - Memory: process-local map, for tests and ephemeral sessions.
package kv

import (
	"context"
	"errors"
)

// ErrClosed is returned by operations on a closed backend.
var ErrClosed = errors.New("kv: backend closed")

// UpdateFunc receives the current value (found=false when the key is absent)
// and returns the replacement. write=false leaves the stored value untouched.
type UpdateFunc func(old []byte, found bool) (value []byte, write bool, err error)

// Backend is a persistent key-value store.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Update(ctx context.Context, key string, fn UpdateFunc) error
	Close() error
}
