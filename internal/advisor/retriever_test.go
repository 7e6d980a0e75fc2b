package advisor

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"
)

func frag(id int, doc, text string) Fragment {
	return Fragment{
		ID:         fmt.Sprintf("f-%d", id),
		DocumentID: "doc-" + doc,
		Document:   doc,
		Seq:        id,
		Text:       text,
	}
}

func TestRankDeterministic(t *testing.T) {
	fragments := []Fragment{
		frag(1, "pasture.md", "Rotate pasture every three weeks to keep grass cover."),
		frag(2, "pasture.md", "Clover improves pasture protein content."),
		frag(3, "feed.md", "Silage quality drives winter milk yield."),
		frag(4, "feed.md", "Grass and clover mixes balance feed costs."),
	}
	first := rank("clover pasture feed", fragments)
	for i := 0; i < 10; i++ {
		again := rank("clover pasture feed", fragments)
		if !reflect.DeepEqual(first, again) {
			t.Fatalf("run %d diverged: %v vs %v", i, again, first)
		}
	}
}

func TestRankScoresDistinctTermsOnce(t *testing.T) {
	fragments := []Fragment{
		frag(1, "a.md", "only milk appears here, milk and more milk"),
		frag(2, "b.md", "milk and cheese both appear"),
	}
	// Repeated terms collapse, so fragment 1 scores 1 and fragment 2 scores 2.
	got := rank("milk milk cheese", fragments)
	if len(got) != 2 {
		t.Fatalf("expected both fragments, got %d", len(got))
	}
	if got[0].ID != "f-2" || got[1].ID != "f-1" {
		t.Fatalf("unexpected order: %s, %s", got[0].ID, got[1].ID)
	}
}

func TestRankDropsZeroScores(t *testing.T) {
	fragments := []Fragment{
		frag(1, "a.md", "calving interval targets"),
		frag(2, "b.md", "tractor maintenance schedule"),
	}
	got := rank("calving targets", fragments)
	if len(got) != 1 || got[0].ID != "f-1" {
		t.Fatalf("expected only the matching fragment, got %v", got)
	}
}

func TestRankStableTies(t *testing.T) {
	fragments := []Fragment{
		frag(1, "a.md", "soil testing basics"),
		frag(2, "b.md", "soil sampling depth"),
		frag(3, "c.md", "soil amendment timing"),
	}
	got := rank("soil", fragments)
	if len(got) != 3 {
		t.Fatalf("expected 3 fragments, got %d", len(got))
	}
	for i, want := range []string{"f-1", "f-2", "f-3"} {
		if got[i].ID != want {
			t.Fatalf("position %d: got %s, want %s", i, got[i].ID, want)
		}
	}
}

func TestRankCapsAtFive(t *testing.T) {
	var fragments []Fragment
	for i := 1; i <= 8; i++ {
		text := "irrigation schedule notes"
		if i <= 3 {
			text = "irrigation schedule for maize and barley"
		}
		fragments = append(fragments, frag(i, "guide.md", text))
	}
	got := rank("irrigation maize barley", fragments)
	if len(got) != topFragments {
		t.Fatalf("expected %d fragments, got %d", topFragments, len(got))
	}
	// The three two-plus scorers must all survive the cut.
	seen := map[string]bool{}
	for _, f := range got {
		seen[f.ID] = true
	}
	for _, id := range []string{"f-1", "f-2", "f-3"} {
		if !seen[id] {
			t.Fatalf("high scorer %s missing from %v", id, got)
		}
	}
}

func TestAnswerExhaustedWhenNothingMatches(t *testing.T) {
	llm := &fakeCompleter{}
	fragments := []Fragment{
		frag(1, "a.md", "hedge trimming rules"),
		frag(2, "b.md", "fence post spacing"),
	}
	_, _, err := NewRetriever(llm).Answer(context.Background(), "silage inoculant dosage", fragments)
	if !errors.Is(err, ErrRetrievalExhausted) {
		t.Fatalf("expected ErrRetrievalExhausted, got %v", err)
	}
	if llm.callCount() != 0 {
		t.Fatalf("completion should not run with no matches")
	}

	_, _, err = NewRetriever(llm).Answer(context.Background(), "anything", nil)
	if !errors.Is(err, ErrRetrievalExhausted) {
		t.Fatalf("expected ErrRetrievalExhausted on empty corpus, got %v", err)
	}
}

func TestAnswerBuildsContextAndSources(t *testing.T) {
	llm := &fakeCompleter{fn: func(system, user string) (string, error) {
		return "Rotate every three weeks.", nil
	}}
	fragments := []Fragment{
		frag(1, "pasture.md", "Rotate pasture every three weeks."),
		frag(2, "pasture.md", "Soil compaction reduces pasture regrowth."),
		frag(3, "machinery.md", "Grease the baler before each season."),
	}
	text, sources, err := NewRetriever(llm).Answer(context.Background(), "pasture rotation", fragments)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "Rotate every three weeks." {
		t.Fatalf("unexpected answer: %q", text)
	}

	call := llm.lastCall()
	if call.system != retrieverSystem {
		t.Fatalf("wrong system prompt: %q", call.system)
	}
	if !strings.Contains(call.user, "[pasture.md #1]") || !strings.Contains(call.user, "[pasture.md #2]") {
		t.Fatalf("context missing fragment headers: %q", call.user)
	}
	if strings.Contains(call.user, "baler") {
		t.Fatalf("zero-score fragment leaked into the context: %q", call.user)
	}
	if !strings.Contains(call.user, fragmentDelimiter) {
		t.Fatalf("context missing delimiter: %q", call.user)
	}

	if len(sources) != 2 {
		t.Fatalf("expected 2 sources, got %d", len(sources))
	}
	for _, s := range sources {
		if s.Kind != SourceDocument || s.Title != "pasture.md" {
			t.Fatalf("unexpected source: %+v", s)
		}
	}
}

func TestAnswerCompletionErrorPropagates(t *testing.T) {
	llm := &fakeCompleter{fn: func(system, user string) (string, error) {
		return "", errors.New("model offline")
	}}
	fragments := []Fragment{frag(1, "a.md", "drainage spacing for clay soil")}
	_, _, err := NewRetriever(llm).Answer(context.Background(), "drainage spacing", fragments)
	if err == nil || !strings.Contains(err.Error(), "retrieval completion") {
		t.Fatalf("expected wrapped completion error, got %v", err)
	}
}
