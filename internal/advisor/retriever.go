package advisor

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
)

const (
	// topFragments caps how many ranked fragments feed one answer.
	topFragments = 5

	fragmentDelimiter = "\n\n---\n\n"
)

// Retriever ranks document fragments lexically and answers from the
// survivors. Ranking is a pure function of the query and fragment order, so
// identical inputs always produce identical context.
type Retriever struct {
	llm    Completer
	logger *log.Logger
}

func NewRetriever(llm Completer) *Retriever {
	return &Retriever{
		llm:    llm,
		logger: log.New(log.Writer(), "[RETRIEVER] ", log.LstdFlags),
	}
}

const retrieverSystem = "You are a farm advisory assistant. Answer only from the provided context. Cite the context where possible. If the context does not cover the question, say so."

// Answer retrieves against the candidate fragments and synthesizes a reply.
// ErrRetrievalExhausted reports that nothing matched; the caller decides the
// fallback.
func (r *Retriever) Answer(ctx context.Context, query string, fragments []Fragment) (string, []SourceRef, error) {
	picked := rank(query, fragments)
	if len(picked) == 0 {
		fallbacksTotal.WithLabelValues(fallbackRetrieval).Inc()
		return "", nil, ErrRetrievalExhausted
	}

	parts := make([]string, len(picked))
	for i, f := range picked {
		parts[i] = fmt.Sprintf("[%s #%d]\n%s", f.Document, f.Seq, f.Text)
	}
	user := fmt.Sprintf("CONTEXT:\n%s\n\nQUESTION: %s", strings.Join(parts, fragmentDelimiter), query)

	text, err := r.llm.Complete(ctx, retrieverSystem, user)
	if err != nil {
		return "", nil, fmt.Errorf("retrieval completion: %w", err)
	}

	sources := make([]SourceRef, len(picked))
	for i, f := range picked {
		sources[i] = SourceRef{Kind: SourceDocument, Title: f.Document, Fragment: f.Seq}
	}
	return text, sources, nil
}

// rank scores fragments by how many distinct query terms they contain and
// keeps the best five. A term matches as a plain substring of the lowercased
// fragment text and contributes at most once per fragment. Ties keep the
// original fragment order.
func rank(query string, fragments []Fragment) []Fragment {
	terms := queryTerms(query)
	if len(terms) == 0 {
		return nil
	}

	type scored struct {
		frag  Fragment
		score int
	}
	var hits []scored
	for _, f := range fragments {
		text := strings.ToLower(f.Text)
		score := 0
		for _, t := range terms {
			if strings.Contains(text, t) {
				score++
			}
		}
		if score > 0 {
			hits = append(hits, scored{frag: f, score: score})
		}
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })
	if len(hits) > topFragments {
		hits = hits[:topFragments]
	}

	out := make([]Fragment, len(hits))
	for i, h := range hits {
		out[i] = h.frag
	}
	return out
}

// queryTerms lowercases and whitespace-splits the query, keeping each
// distinct term once.
func queryTerms(query string) []string {
	fields := strings.Fields(strings.ToLower(query))
	seen := make(map[string]struct{}, len(fields))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	return out
}
