package advisor

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/fieldwise/farmhand/internal/lookupcache"
	"github.com/fieldwise/farmhand/tools/web_search/models"
)

const (
	// DefaultFreshnessWindow is how long cached web results stay usable.
	DefaultFreshnessWindow = 3600 * time.Second

	defaultWebResults = 5

	// webDomainQualifier is appended to every outgoing search so results
	// stay on topic.
	webDomainQualifier = "farming agriculture"
)

// ApologyText is returned when web lookup has nothing to offer: no results,
// or the search provider failed.
const ApologyText = "I couldn't find reliable information on that right now. Please try again later or rephrase the question."

// WebLookup answers from cached or fresh web search results.
type WebLookup struct {
	llm           Completer
	searcher      Searcher
	cache         lookupcache.Store
	fetcher       WebFetcher // optional; nil disables deep fetch
	window        time.Duration
	maxResults    int
	fetchMaxChars int
	logger        *log.Logger
}

func NewWebLookup(llm Completer, searcher Searcher, cache lookupcache.Store, window time.Duration, maxResults int, fetcher WebFetcher, fetchMaxChars int) *WebLookup {
	if window <= 0 {
		window = DefaultFreshnessWindow
	}
	if maxResults <= 0 {
		maxResults = defaultWebResults
	}
	return &WebLookup{
		llm:           llm,
		searcher:      searcher,
		cache:         cache,
		fetcher:       fetcher,
		window:        window,
		maxResults:    maxResults,
		fetchMaxChars: fetchMaxChars,
		logger:        log.New(log.Writer(), "[WEBLOOKUP] ", log.LstdFlags),
	}
}

const webSystem = "You are a farm advisory assistant. Answer the question using the web results below. Mention which results support the answer. If the results do not cover the question, say so."

// Answer resolves the query from the web, reusing cached results while they
// are fresh. Search failures and empty result sets both surface as the
// apology text with no sources.
func (w *WebLookup) Answer(ctx context.Context, query string) (string, []SourceRef, error) {
	results, err := w.lookup(ctx, query)
	if err != nil {
		w.logger.Printf("web lookup failed: %v", err)
		fallbacksTotal.WithLabelValues(fallbackLookup).Inc()
		return ApologyText, nil, nil
	}
	if len(results) == 0 {
		return ApologyText, nil, nil
	}

	var b strings.Builder
	for i, r := range results {
		fmt.Fprintf(&b, "%d. %s - %s (%s)\n", i+1, r.Title, r.Snippet, r.URL)
	}
	if w.fetcher != nil {
		if page, err := w.fetcher.Exec(ctx, results[0].URL); err == nil && page.Text != "" {
			text := page.Text
			if w.fetchMaxChars > 0 && len(text) > w.fetchMaxChars {
				text = text[:w.fetchMaxChars]
			}
			fmt.Fprintf(&b, "\nTOP PAGE CONTENT:\n%s\n", text)
		} else if err != nil {
			w.logger.Printf("deep fetch failed for %s: %v", results[0].URL, err)
		}
	}
	user := fmt.Sprintf("WEB RESULTS:\n%s\nQUESTION: %s", b.String(), query)

	text, err := w.llm.Complete(ctx, webSystem, user)
	if err != nil {
		return "", nil, fmt.Errorf("web synthesis: %w", err)
	}

	sources := make([]SourceRef, len(results))
	for i, r := range results {
		sources[i] = SourceRef{Kind: SourceWeb, Title: r.Title, URL: r.URL}
	}
	return text, sources, nil
}

// lookup returns cached results while they are fresh, otherwise refetches.
//
// The read-check-write here is deliberately unguarded: two identical queries
// racing can lose a hit increment or fetch twice. Either outcome leaves a
// well-formed entry, never a corrupt one.
func (w *WebLookup) lookup(ctx context.Context, query string) ([]models.Result, error) {
	entry, ok, err := w.cache.Get(ctx, query)
	if err != nil {
		w.logger.Printf("cache read failed, treating as miss: %v", err)
		ok = false
	}
	if ok && time.Since(entry.FetchedAt) < w.window {
		cacheHitsTotal.Inc()
		entry.Hits++
		if err := w.cache.Put(ctx, entry); err != nil {
			w.logger.Printf("cache counter write-back failed: %v", err)
		}
		return entry.Results, nil
	}

	cacheMissesTotal.Inc()
	results, err := w.searcher.Discover(ctx, query+" "+webDomainQualifier, w.maxResults)
	if err != nil {
		return nil, err
	}
	fresh := lookupcache.Entry{Query: query, Results: results, FetchedAt: time.Now(), Hits: 1}
	if err := w.cache.Put(ctx, fresh); err != nil {
		w.logger.Printf("cache store failed: %v", err)
	}
	return results, nil
}
