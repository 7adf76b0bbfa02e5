// Package idgen produces the identifiers clipkeep hands out: integer record
// IDs derived from capture time, and prefixed UUIDv7 strings for opened tabs
// and tool calls.
package idgen

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Generator produces unique string identifiers.
type Generator func() string

// UUIDv7 returns a Generator that produces RFC 9562 UUID v7 strings.
func UUIDv7() Generator {
	return func() string {
		return uuid.Must(uuid.NewV7()).String()
	}
}

// Prefixed wraps a Generator and prepends a fixed prefix to every ID, so an ID
// read in a log tells what it names.
func Prefixed(prefix string, gen Generator) Generator {
	return func() string {
		return prefix + gen()
	}
}

// Default is the generator behind page and request identifiers.
var Default Generator = UUIDv7()

// Sequence hands out record IDs: the Unix millisecond of the capture, bumped
// past the previous ID when two captures share a millisecond or the clock
// steps backwards. Safe for concurrent use.
type Sequence struct {
	mu   sync.Mutex
	last int64
}

// Next returns the ID for a capture taken at now.
func (s *Sequence) Next(now time.Time) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := now.UnixMilli()
	if id <= s.last {
		id = s.last + 1
	}
	s.last = id
	return id
}

// Observe raises the floor of the sequence so IDs already persisted (by a
// previous run or another writer) are never reused.
func (s *Sequence) Observe(id int64) {
	s.mu.Lock()
	if id > s.last {
		s.last = id
	}
	s.mu.Unlock()
}
