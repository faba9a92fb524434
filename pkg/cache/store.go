package cache

import (
	"sync"

	"github.com/Sternrassler/storefront-gateway/pkg/catalog"
)

// Store is the process-wide cache. It is safe for concurrent use and never
// blocks on I/O.
type Store struct {
	mu      sync.RWMutex
	entries map[catalog.Resource]map[string]*Entry
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		entries: make(map[catalog.Resource]map[string]*Entry),
	}
}

// Get returns the entry for key, regardless of its age.
func (s *Store) Get(resource catalog.Resource, key string) (*Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[resource][key]
	return e, ok
}

// Put stores e unless its payload is empty or an entry with a later
// FetchedAt is already present. It reports whether e was stored.
func (s *Store) Put(resource catalog.Resource, e *Entry) bool {
	if e == nil || len(e.Items) == 0 {
		CacheWrites.WithLabelValues(string(resource), "empty").Inc()
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ns, ok := s.entries[resource]
	if !ok {
		ns = make(map[string]*Entry)
		s.entries[resource] = ns
	}
	if cur, ok := ns[e.Key]; ok && cur.FetchedAt.After(e.FetchedAt) {
		CacheWrites.WithLabelValues(string(resource), "outdated").Inc()
		return false
	}

	ns[e.Key] = e
	CacheWrites.WithLabelValues(string(resource), "stored").Inc()
	CacheEntries.WithLabelValues(string(resource)).Set(float64(len(ns)))
	return true
}

// MostRecent returns the most recently fetched entry of a resource.
func (s *Store) MostRecent(resource catalog.Resource) (*Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var best *Entry
	for _, e := range s.entries[resource] {
		if best == nil || e.FetchedAt.After(best.FetchedAt) {
			best = e
		}
	}
	return best, best != nil
}

// Reset drops every entry.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for resource := range s.entries {
		CacheEntries.WithLabelValues(string(resource)).Set(0)
	}
	s.entries = make(map[catalog.Resource]map[string]*Entry)
}

// Len returns the number of entries across all resources.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, ns := range s.entries {
		n += len(ns)
	}
	return n
}

// Snapshot returns the number of entries per resource.
func (s *Store) Snapshot() map[catalog.Resource]int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[catalog.Resource]int, len(s.entries))
	for resource, ns := range s.entries {
		out[resource] = len(ns)
	}
	return out
}
