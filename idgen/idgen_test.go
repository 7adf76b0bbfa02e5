package idgen

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestUUIDv7_Format(t *testing.T) {
	id := UUIDv7()()
	if len(id) != 36 {
		t.Fatalf("UUIDv7: expected length 36, got %d", len(id))
	}
	if parts := strings.Split(id, "-"); len(parts) != 5 {
		t.Fatalf("UUIDv7: expected 5 parts, got %d in %q", len(parts), id)
	}
	if _, err := uuid.Parse(id); err != nil {
		t.Fatalf("not a UUID: %v", err)
	}
}

func TestPrefixed(t *testing.T) {
	id := Prefixed("tab_", UUIDv7())()
	if !strings.HasPrefix(id, "tab_") {
		t.Fatalf("Prefixed: got %q", id)
	}
}

func TestSequence_UsesCaptureMillis(t *testing.T) {
	var s Sequence
	now := time.UnixMilli(1_700_000_000_123)
	if got := s.Next(now); got != 1_700_000_000_123 {
		t.Fatalf("Next: got %d, want %d", got, int64(1_700_000_000_123))
	}
}

func TestSequence_SameMillisecond(t *testing.T) {
	var s Sequence
	now := time.UnixMilli(5000)
	a := s.Next(now)
	b := s.Next(now)
	c := s.Next(now.Add(-time.Second))
	if !(a < b && b < c) {
		t.Fatalf("Next not monotonic: %d, %d, %d", a, b, c)
	}
}

func TestSequence_Observe(t *testing.T) {
	var s Sequence
	s.Observe(9000)
	if got := s.Next(time.UnixMilli(100)); got != 9001 {
		t.Fatalf("Next after Observe: got %d, want 9001", got)
	}
	s.Observe(10) // lower IDs never move the floor back
	if got := s.Next(time.UnixMilli(100)); got != 9002 {
		t.Fatalf("Next: got %d, want 9002", got)
	}
}

func TestSequence_Concurrent(t *testing.T) {
	var s Sequence
	now := time.UnixMilli(42)
	seen := make(map[int64]bool)
	var mu sync.Mutex
	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := s.Next(now)
			mu.Lock()
			seen[id] = true
			mu.Unlock()
		}()
	}
	wg.Wait()
	if len(seen) != 50 {
		t.Fatalf("unique IDs: got %d, want 50", len(seen))
	}
}
