// Package history is the bounded, newest-first list of clipboard captures.
//
// The whole list lives under a single key of a kv.Backend as a JSON array of
// Record, so it can be inspected or replaced by any tool that understands that
// layout. Every mutation is one Backend.Update call: the read-modify-write is
// atomic with respect to every other writer sharing the backend.
package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hazyhaar/clipkeep/kv"
)

const (
	// DefaultKey is the key the list is persisted under.
	DefaultKey = "clipboardHistory"
	// DefaultLimit caps the list; older records are evicted beyond it.
	DefaultLimit = 100
)

// ErrEmptyText is returned by Append for text that is blank after trimming.
var ErrEmptyText = errors.New("history: empty text")

// Record is one captured string and its provenance. Records are never
// modified once stored.
type Record struct {
	Text      string    `json:"text"`
	URL       string    `json:"url"`
	Title     string    `json:"title"`
	Timestamp time.Time `json:"timestamp"`
	ID        int64     `json:"id"`
}

// SameCapture reports whether r and o carry the same (text, url) pair.
func (r Record) SameCapture(o Record) bool {
	return r.Text == o.Text && r.URL == o.URL
}

// Store is the history list over a kv.Backend.
type Store struct {
	backend kv.Backend
	key     string
	limit   int
	logger  *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithKey overrides the storage key. Default: DefaultKey.
func WithKey(key string) Option { return func(s *Store) { s.key = key } }

// WithLimit overrides the cap. Default: DefaultLimit.
func WithLimit(n int) Option { return func(s *Store) { s.limit = n } }

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option { return func(s *Store) { s.logger = l } }

// New creates a Store persisting into b.
func New(b kv.Backend, opts ...Option) *Store {
	s := &Store{
		backend: b,
		key:     DefaultKey,
		limit:   DefaultLimit,
		logger:  slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	if s.limit <= 0 {
		s.limit = DefaultLimit
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// Limit returns the configured cap.
func (s *Store) Limit() int { return s.limit }

// Append inserts r at the head of the list and truncates the list to the cap.
// It returns false, without writing, when r repeats the head's (text, url).
// Duplicates further down the list are allowed.
func (s *Store) Append(ctx context.Context, r Record) (bool, error) {
	if strings.TrimSpace(r.Text) == "" {
		return false, ErrEmptyText
	}

	stored := false
	err := s.backend.Update(ctx, s.key, func(old []byte, found bool) ([]byte, bool, error) {
		stored = false
		list, err := decode(old, found)
		if err != nil {
			return nil, false, err
		}
		if len(list) > 0 && list[0].SameCapture(r) {
			return nil, false, nil
		}

		next := make([]Record, 0, min(len(list)+1, s.limit))
		next = append(next, r)
		next = append(next, list...)
		if len(next) > s.limit {
			next = next[:s.limit]
		}

		data, err := json.Marshal(next)
		if err != nil {
			return nil, false, fmt.Errorf("history: encode: %w", err)
		}
		stored = true
		return data, true, nil
	})
	if err != nil {
		return false, err
	}
	if stored {
		s.logger.Debug("history: appended", "id", r.ID, "url", r.URL)
	}
	return stored, nil
}

// List returns the full list, newest first. An absent key is an empty list.
func (s *Store) List(ctx context.Context) ([]Record, error) {
	data, found, err := s.backend.Get(ctx, s.key)
	if err != nil {
		return nil, err
	}
	return decode(data, found)
}

// ForURL returns the records captured on pageURL, newest first.
func (s *Store) ForURL(ctx context.Context, pageURL string) ([]Record, error) {
	list, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	var out []Record
	for _, r := range list {
		if r.URL == pageURL {
			out = append(out, r)
		}
	}
	return out, nil
}

// Get returns the record with the given id.
func (s *Store) Get(ctx context.Context, id int64) (Record, bool, error) {
	list, err := s.List(ctx)
	if err != nil {
		return Record{}, false, err
	}
	for _, r := range list {
		if r.ID == id {
			return r, true, nil
		}
	}
	return Record{}, false, nil
}

// Remove deletes the first record whose ID matches and returns the resulting
// list. Removing an unknown id leaves the stored list untouched.
func (s *Store) Remove(ctx context.Context, id int64) ([]Record, error) {
	var result []Record
	err := s.backend.Update(ctx, s.key, func(old []byte, found bool) ([]byte, bool, error) {
		list, err := decode(old, found)
		if err != nil {
			return nil, false, err
		}
		idx := -1
		for i, r := range list {
			if r.ID == id {
				idx = i
				break
			}
		}
		if idx == -1 {
			result = list
			return nil, false, nil
		}

		result = make([]Record, 0, len(list)-1)
		result = append(result, list[:idx]...)
		result = append(result, list[idx+1:]...)
		data, err := json.Marshal(result)
		if err != nil {
			return nil, false, fmt.Errorf("history: encode: %w", err)
		}
		return data, true, nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Clear persists an empty list.
func (s *Store) Clear(ctx context.Context) error {
	return s.backend.Set(ctx, s.key, []byte("[]"))
}

func decode(data []byte, found bool) ([]Record, error) {
	list := []Record{}
	if !found || len(data) == 0 {
		return list, nil
	}
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("history: decode: %w", err)
	}
	if list == nil {
		list = []Record{}
	}
	return list, nil
}
