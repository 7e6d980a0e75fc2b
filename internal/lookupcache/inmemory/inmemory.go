package inmemory

import (
	"context"
	"sync"
	"time"

	"github.com/fieldwise/farmhand/internal/lookupcache"
)

// Store keeps lookup entries in process memory. Suitable for single-node
// deployments and tests.
type Store struct {
	entries map[string]lookupcache.Entry
	mu      sync.RWMutex
}

var _ lookupcache.Store = (*Store)(nil)

func NewStore() *Store {
	return &Store{entries: make(map[string]lookupcache.Entry)}
}

func (s *Store) Get(ctx context.Context, query string) (lookupcache.Entry, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[query]
	return entry, ok, nil
}

func (s *Store) Put(ctx context.Context, entry lookupcache.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[entry.Query] = entry
	return nil
}

func (s *Store) Sweep(ctx context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for q, e := range s.entries {
		if e.FetchedAt.Before(cutoff) {
			delete(s.entries, q)
			removed++
		}
	}
	return removed, nil
}

// Len reports how many entries are held. Used by maintenance logging.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
