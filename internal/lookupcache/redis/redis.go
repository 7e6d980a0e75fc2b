package redis_cache

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fieldwise/farmhand/internal/lookupcache"
)

// Store keeps lookup entries in Redis so replicas share one cache. Entries
// live twice as long as the caller's freshness window; stale entries past
// the TTL simply vanish, so Sweep has nothing to do here.
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

var _ lookupcache.Store = (*Store)(nil)

func NewStore(client *redis.Client, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}
	return &Store{client: client, ttl: ttl}
}

func key(query string) string {
	sum := sha1.Sum([]byte(query))
	return fmt.Sprintf("weblookup:%s", hex.EncodeToString(sum[:]))
}

func (s *Store) Get(ctx context.Context, query string) (lookupcache.Entry, bool, error) {
	val, err := s.client.Get(ctx, key(query)).Result()
	if err == redis.Nil {
		return lookupcache.Entry{}, false, nil
	}
	if err != nil {
		return lookupcache.Entry{}, false, err
	}
	var entry lookupcache.Entry
	if err := json.Unmarshal([]byte(val), &entry); err != nil {
		return lookupcache.Entry{}, false, fmt.Errorf("decode cache entry: %w", err)
	}
	return entry, true, nil
}

func (s *Store) Put(ctx context.Context, entry lookupcache.Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode cache entry: %w", err)
	}
	return s.client.Set(ctx, key(entry.Query), data, s.ttl).Err()
}

func (s *Store) Sweep(ctx context.Context, cutoff time.Time) (int, error) {
	// Expiry is delegated to the key TTLs.
	return 0, nil
}
