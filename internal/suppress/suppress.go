// Package suppress tracks paths the agent itself just mutated so the
// watcher intake can drop the resulting filesystem events instead of
// triggering a second job for the agent's own work.
package suppress

import (
	"path/filepath"
	"sync"
	"time"
)

// DefaultTTL is how long a marked path stays ignored after its most
// recent mutation.
const DefaultTTL = 10 * time.Second

// Set is a process-global map of absolute path to ignore deadline.
// All methods are safe for concurrent use. Expired entries are dropped
// lazily on probe and opportunistically swept on mark, so no per-entry
// timers are needed.
type Set struct {
	mu      sync.Mutex
	entries map[string]time.Time
	ttl     time.Duration
	now     func() time.Time
}

// New creates a Set with [DefaultTTL].
func New() *Set {
	return NewWithTTL(DefaultTTL)
}

// NewWithTTL creates a Set with a custom TTL. Used by tests.
func NewWithTTL(ttl time.Duration) *Set {
	return &Set{
		entries: make(map[string]time.Time),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Mark records that path was just mutated. A re-mark refreshes the
// deadline of an existing entry.
func (s *Set) Mark(path string) {
	key := normalize(path)
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.entries[key] = now.Add(s.ttl)

	// Sweep expired entries while we hold the lock anyway.
	for p, deadline := range s.entries {
		if now.After(deadline) {
			delete(s.entries, p)
		}
	}
}

// IsIgnored reports whether path is currently suppressed. An expired
// entry is dropped on probe.
func (s *Set) IsIgnored(path string) bool {
	key := normalize(path)
	s.mu.Lock()
	defer s.mu.Unlock()

	deadline, ok := s.entries[key]
	if !ok {
		return false
	}
	if s.now().Before(deadline) {
		return true
	}
	delete(s.entries, key)
	return false
}

// Len returns the number of live entries. Used by tests.
func (s *Set) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func normalize(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return filepath.Clean(path)
	}
	return abs
}
