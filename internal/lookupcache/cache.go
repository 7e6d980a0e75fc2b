package lookupcache

import (
	"context"
	"time"

	"github.com/fieldwise/farmhand/tools/web_search/models"
)

// Entry is one cached web lookup: the exact query it answers, the search
// results, when they were fetched, and how often the cache served them.
type Entry struct {
	Query     string          `json:"query"`
	Results   []models.Result `json:"results"`
	FetchedAt time.Time       `json:"fetched_at"`
	Hits      int             `json:"hits"`
}

// Store persists lookup entries keyed by the exact query string. Freshness
// decisions belong to the caller; a Store only gets, puts and sweeps.
type Store interface {
	Get(ctx context.Context, query string) (Entry, bool, error)
	Put(ctx context.Context, entry Entry) error
	// Sweep drops entries fetched before the cutoff and reports how many
	// were removed. Backends with native expiry may make this a no-op.
	Sweep(ctx context.Context, cutoff time.Time) (int, error)
}
