package advisor

import (
	"context"
	"fmt"
	"sync"

	fetchmodels "github.com/fieldwise/farmhand/tools/web_fetch/models"
	"github.com/fieldwise/farmhand/tools/web_search/models"
)

type completerCall struct {
	system string
	user   string
}

// fakeCompleter answers via fn and records every call. A nil fn echoes a
// fixed reply.
type fakeCompleter struct {
	mu    sync.Mutex
	fn    func(system, user string) (string, error)
	calls []completerCall
}

func (f *fakeCompleter) Complete(ctx context.Context, system, user string) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, completerCall{system: system, user: user})
	fn := f.fn
	f.mu.Unlock()
	if fn == nil {
		return "stub answer", nil
	}
	return fn(system, user)
}

func (f *fakeCompleter) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeCompleter) lastCall() completerCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.calls) == 0 {
		return completerCall{}
	}
	return f.calls[len(f.calls)-1]
}

type fakeSearcher struct {
	mu      sync.Mutex
	results []models.Result
	err     error
	queries []string
	ks      []int
}

func (f *fakeSearcher) Discover(ctx context.Context, q string, k int) ([]models.Result, error) {
	f.mu.Lock()
	f.queries = append(f.queries, q)
	f.ks = append(f.ks, k)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out := make([]models.Result, len(f.results))
	copy(out, f.results)
	return out, nil
}

func (f *fakeSearcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queries)
}

type fakeExecutor struct {
	mu      sync.Mutex
	out     string
	err     error
	paths   []string
	queries []string
}

func (f *fakeExecutor) Analyze(ctx context.Context, filePath, query string) (string, error) {
	f.mu.Lock()
	f.paths = append(f.paths, filePath)
	f.queries = append(f.queries, query)
	f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	return f.out, nil
}

type fakeFetcher struct {
	result fetchmodels.Result
	err    error
}

func (f *fakeFetcher) Exec(ctx context.Context, url string) (fetchmodels.Result, error) {
	if f.err != nil {
		return fetchmodels.Result{}, f.err
	}
	return f.result, nil
}

type turnRecord struct {
	conversationID string
	role           string
	content        string
	sources        []SourceRef
	strategy       Strategy
	elapsedMS      int64
}

type touchRecord struct {
	conversationID string
	title          string
}

// fakeStorage is an in-memory Storage with per-method failure switches.
type fakeStorage struct {
	mu        sync.Mutex
	fragments []Fragment
	datasets  map[string]Dataset
	turns     []turnRecord
	events    []QueryEvent
	touches   []touchRecord

	fragErr          error
	dsErr            error
	turnErr          error
	assistantTurnErr error
	eventErr         error
	touchErr         error
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{datasets: make(map[string]Dataset)}
}

func (f *fakeStorage) FragmentsForDocuments(ctx context.Context, documentIDs []string) ([]Fragment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fragErr != nil {
		return nil, f.fragErr
	}
	want := make(map[string]bool, len(documentIDs))
	for _, id := range documentIDs {
		want[id] = true
	}
	var out []Fragment
	for _, fr := range f.fragments {
		if want[fr.DocumentID] {
			out = append(out, fr)
		}
	}
	return out, nil
}

func (f *fakeStorage) DatasetsByIDs(ctx context.Context, ids []string) ([]Dataset, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.dsErr != nil {
		return nil, f.dsErr
	}
	var out []Dataset
	for _, id := range ids {
		if ds, ok := f.datasets[id]; ok {
			out = append(out, ds)
		}
	}
	return out, nil
}

func (f *fakeStorage) AppendTurn(ctx context.Context, conversationID, role, content string, sources []SourceRef, strategy Strategy, elapsedMS int64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.turnErr != nil {
		return "", f.turnErr
	}
	if f.assistantTurnErr != nil && role == RoleAssistant {
		return "", f.assistantTurnErr
	}
	f.turns = append(f.turns, turnRecord{
		conversationID: conversationID,
		role:           role,
		content:        content,
		sources:        sources,
		strategy:       strategy,
		elapsedMS:      elapsedMS,
	})
	return fmt.Sprintf("turn-%d", len(f.turns)), nil
}

func (f *fakeStorage) RecordQueryEvent(ctx context.Context, ev QueryEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.eventErr != nil {
		return f.eventErr
	}
	f.events = append(f.events, ev)
	return nil
}

func (f *fakeStorage) TouchConversation(ctx context.Context, conversationID, title string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.touchErr != nil {
		return f.touchErr
	}
	f.touches = append(f.touches, touchRecord{conversationID: conversationID, title: title})
	return nil
}

type fakeJournal struct {
	mu     sync.Mutex
	events []QueryEvent
}

func (f *fakeJournal) Record(ev QueryEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
}
