package advisor

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fieldwise/farmhand/internal/lookupcache"
	"github.com/fieldwise/farmhand/internal/lookupcache/inmemory"
	fetchmodels "github.com/fieldwise/farmhand/tools/web_fetch/models"
	"github.com/fieldwise/farmhand/tools/web_search/models"
)

func webResults() []models.Result {
	return []models.Result{
		{Title: "Dairy hygiene rules", URL: "https://gov.example/dairy", Snippet: "Updated milk handling regulations."},
		{Title: "Parlor cleaning guide", URL: "https://extension.example/parlor", Snippet: "Cleaning schedules for milking parlors."},
	}
}

func TestWebAnswerFreshFetchStoresEntry(t *testing.T) {
	cache := inmemory.NewStore()
	searcher := &fakeSearcher{results: webResults()}
	llm := &fakeCompleter{fn: func(system, user string) (string, error) {
		return "Follow the updated hygiene rules.", nil
	}}
	web := NewWebLookup(llm, searcher, cache, time.Hour, 5, nil, 0)

	text, sources, err := web.Answer(context.Background(), "dairy regulations")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "Follow the updated hygiene rules." {
		t.Fatalf("unexpected answer: %q", text)
	}
	if len(sources) != 2 {
		t.Fatalf("expected 2 sources, got %d", len(sources))
	}
	for i, s := range sources {
		if s.Kind != SourceWeb || s.URL != webResults()[i].URL {
			t.Fatalf("unexpected source %d: %+v", i, s)
		}
	}

	// The provider sees the decorated query, the cache keys the raw one.
	if got := searcher.queries[0]; got != "dairy regulations "+webDomainQualifier {
		t.Fatalf("search query not decorated: %q", got)
	}
	if searcher.ks[0] != 5 {
		t.Fatalf("expected 5 results requested, got %d", searcher.ks[0])
	}
	entry, ok, err := cache.Get(context.Background(), "dairy regulations")
	if err != nil || !ok {
		t.Fatalf("cache entry missing: ok=%v err=%v", ok, err)
	}
	if entry.Hits != 1 {
		t.Fatalf("fresh entry hits = %d, want 1", entry.Hits)
	}
	if !reflect.DeepEqual(entry.Results, webResults()) {
		t.Fatalf("cached results differ: %+v", entry.Results)
	}
}

func TestWebAnswerReusesFreshEntry(t *testing.T) {
	cache := inmemory.NewStore()
	seed := lookupcache.Entry{
		Query:     "dairy regulations",
		Results:   webResults(),
		FetchedAt: time.Now().Add(-10 * time.Minute),
		Hits:      3,
	}
	if err := cache.Put(context.Background(), seed); err != nil {
		t.Fatalf("seed: %v", err)
	}
	searcher := &fakeSearcher{results: []models.Result{{Title: "should not appear", URL: "https://other.example"}}}
	llm := &fakeCompleter{}
	web := NewWebLookup(llm, searcher, cache, time.Hour, 5, nil, 0)

	_, sources, err := web.Answer(context.Background(), "dairy regulations")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if searcher.callCount() != 0 {
		t.Fatalf("fresh cache entry must not trigger a search")
	}
	if len(sources) != 2 || sources[0].URL != seed.Results[0].URL {
		t.Fatalf("sources not served from cache: %+v", sources)
	}
	entry, ok, _ := cache.Get(context.Background(), "dairy regulations")
	if !ok || entry.Hits != 4 {
		t.Fatalf("hit counter = %d, want 4", entry.Hits)
	}
	if !reflect.DeepEqual(entry.Results, seed.Results) {
		t.Fatalf("cached list changed on a hit: %+v", entry.Results)
	}
}

func TestWebAnswerRefetchesStaleEntry(t *testing.T) {
	cache := inmemory.NewStore()
	stale := lookupcache.Entry{
		Query:     "dairy regulations",
		Results:   []models.Result{{Title: "outdated", URL: "https://old.example"}},
		FetchedAt: time.Now().Add(-2 * time.Hour),
		Hits:      7,
	}
	if err := cache.Put(context.Background(), stale); err != nil {
		t.Fatalf("seed: %v", err)
	}
	searcher := &fakeSearcher{results: webResults()}
	llm := &fakeCompleter{}
	web := NewWebLookup(llm, searcher, cache, time.Hour, 5, nil, 0)

	_, _, err := web.Answer(context.Background(), "dairy regulations")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if searcher.callCount() != 1 {
		t.Fatalf("stale entry should refetch exactly once, got %d", searcher.callCount())
	}
	entry, ok, _ := cache.Get(context.Background(), "dairy regulations")
	if !ok {
		t.Fatalf("entry missing after refetch")
	}
	if entry.Hits != 1 {
		t.Fatalf("refetched entry hits = %d, want 1", entry.Hits)
	}
	if !reflect.DeepEqual(entry.Results, webResults()) {
		t.Fatalf("stale list not replaced: %+v", entry.Results)
	}
	if time.Since(entry.FetchedAt) > time.Minute {
		t.Fatalf("timestamp not reset: %v", entry.FetchedAt)
	}
}

func TestWebAnswerSearchFailureApologizes(t *testing.T) {
	cache := inmemory.NewStore()
	searcher := &fakeSearcher{err: errors.New("quota exceeded")}
	llm := &fakeCompleter{}
	web := NewWebLookup(llm, searcher, cache, time.Hour, 5, nil, 0)

	text, sources, err := web.Answer(context.Background(), "dairy regulations")
	if err != nil {
		t.Fatalf("search failure must not surface an error, got %v", err)
	}
	if text != ApologyText {
		t.Fatalf("got %q, want apology", text)
	}
	if sources != nil {
		t.Fatalf("apology must carry no sources, got %+v", sources)
	}
	if llm.callCount() != 0 {
		t.Fatalf("no synthesis should run without results")
	}
}

func TestWebAnswerEmptyResultsApologizes(t *testing.T) {
	cache := inmemory.NewStore()
	searcher := &fakeSearcher{}
	llm := &fakeCompleter{}
	web := NewWebLookup(llm, searcher, cache, time.Hour, 5, nil, 0)

	text, sources, err := web.Answer(context.Background(), "obscure subsidy code")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != ApologyText || sources != nil {
		t.Fatalf("expected bare apology, got %q / %+v", text, sources)
	}
}

func TestWebAnswerSynthesisErrorPropagates(t *testing.T) {
	cache := inmemory.NewStore()
	searcher := &fakeSearcher{results: webResults()}
	llm := &fakeCompleter{fn: func(system, user string) (string, error) {
		return "", errors.New("model offline")
	}}
	web := NewWebLookup(llm, searcher, cache, time.Hour, 5, nil, 0)

	_, _, err := web.Answer(context.Background(), "dairy regulations")
	if err == nil || !strings.Contains(err.Error(), "web synthesis") {
		t.Fatalf("expected wrapped synthesis error, got %v", err)
	}
}

func TestWebAnswerDeepFetchAugmentsPrompt(t *testing.T) {
	cache := inmemory.NewStore()
	searcher := &fakeSearcher{results: webResults()}
	llm := &fakeCompleter{}
	fetcher := &fakeFetcher{result: fetchmodels.Result{
		URL:   webResults()[0].URL,
		Title: "Dairy hygiene rules",
		Text:  "Full text of the hygiene regulation with tank temperature limits.",
	}}
	web := NewWebLookup(llm, searcher, cache, time.Hour, 5, fetcher, 200)

	if _, _, err := web.Answer(context.Background(), "dairy regulations"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	call := llm.lastCall()
	if !strings.Contains(call.user, "TOP PAGE CONTENT") || !strings.Contains(call.user, "tank temperature limits") {
		t.Fatalf("prompt missing fetched page content: %q", call.user)
	}
}

func TestWebAnswerDeepFetchFailureIsNonFatal(t *testing.T) {
	cache := inmemory.NewStore()
	searcher := &fakeSearcher{results: webResults()}
	llm := &fakeCompleter{}
	fetcher := &fakeFetcher{err: errors.New("browser crashed")}
	web := NewWebLookup(llm, searcher, cache, time.Hour, 5, fetcher, 200)

	text, sources, err := web.Answer(context.Background(), "dairy regulations")
	if err != nil {
		t.Fatalf("fetch failure must not fail the answer, got %v", err)
	}
	if text == ApologyText || len(sources) != 2 {
		t.Fatalf("expected a normal snippet answer, got %q / %+v", text, sources)
	}
}

// Two identical queries racing may fetch twice or lose a hit increment, but
// the entry they leave behind must always be a complete, well-formed snapshot.
func TestWebAnswerConcurrentQueriesKeepEntryWellFormed(t *testing.T) {
	cache := inmemory.NewStore()
	searcher := &fakeSearcher{results: webResults()}
	llm := &fakeCompleter{}
	web := NewWebLookup(llm, searcher, cache, time.Hour, 5, nil, 0)

	const workers = 8
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, _, err := web.Answer(context.Background(), "dairy regulations"); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent answer failed: %v", err)
	}

	entry, ok, err := cache.Get(context.Background(), "dairy regulations")
	if err != nil || !ok {
		t.Fatalf("entry missing after concurrent access: ok=%v err=%v", ok, err)
	}
	if !reflect.DeepEqual(entry.Results, webResults()) {
		t.Fatalf("entry corrupted: %+v", entry.Results)
	}
	if entry.Hits < 1 || entry.Hits > workers {
		t.Fatalf("hit counter out of range: %d", entry.Hits)
	}
	if entry.Query != "dairy regulations" {
		t.Fatalf("entry keyed wrong: %q", entry.Query)
	}
}
