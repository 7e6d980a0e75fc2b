package advisor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
)

// Synthesizer resolves a strategy label to exactly one answering path. The
// strategy switch is exhaustive over the closed label set; there is no
// string-keyed handler table to drift out of sync.
type Synthesizer struct {
	llm       Completer
	retriever *Retriever
	web       *WebLookup
	tabular   *TabularDispatcher
	storage   Storage
	logger    *log.Logger
}

func NewSynthesizer(llm Completer, retriever *Retriever, web *WebLookup, tabular *TabularDispatcher, storage Storage) *Synthesizer {
	return &Synthesizer{
		llm:       llm,
		retriever: retriever,
		web:       web,
		tabular:   tabular,
		storage:   storage,
		logger:    log.New(log.Writer(), "[SYNTH] ", log.LstdFlags),
	}
}

const generalSystem = "You are a knowledgeable farm advisory assistant. Answer the question from general agricultural knowledge, clearly and practically."

const hybridSystem = "You are a farm advisory assistant. Merge the two draft answers below into one coherent answer. Prefer the document answer where they disagree and add current detail from the web answer."

// Synthesize runs the path for the given strategy and reports the answer
// text, its sources and whether a web lookup happened along the way.
func (s *Synthesizer) Synthesize(ctx context.Context, strategy Strategy, req Request) (string, []SourceRef, bool, error) {
	switch strategy {
	case StrategyTabular:
		datasets, err := s.storage.DatasetsByIDs(ctx, req.DatasetIDs)
		if err != nil {
			return "", nil, false, fmt.Errorf("load datasets: %w", err)
		}
		text, sources, err := s.tabular.Answer(ctx, req.Query, datasets)
		return text, sources, false, err

	case StrategyDocuments:
		text, sources, err := s.answerFromDocuments(ctx, req)
		if errors.Is(err, ErrRetrievalExhausted) {
			text, sources, err = s.web.Answer(ctx, req.Query)
			return text, sources, true, err
		}
		return text, sources, false, err

	case StrategyWebLookup:
		text, sources, err := s.web.Answer(ctx, req.Query)
		return text, sources, true, err

	case StrategyHybrid:
		return s.answerHybrid(ctx, req)

	case StrategyGeneral:
		text, err := s.llm.Complete(ctx, generalSystem, req.Query)
		if err != nil {
			return "", nil, false, fmt.Errorf("general completion: %w", err)
		}
		return text, nil, false, nil
	}
	return "", nil, false, fmt.Errorf("unhandled strategy %q", strategy)
}

func (s *Synthesizer) answerFromDocuments(ctx context.Context, req Request) (string, []SourceRef, error) {
	fragments, err := s.storage.FragmentsForDocuments(ctx, req.DocumentIDs)
	if err != nil {
		return "", nil, fmt.Errorf("load fragments: %w", err)
	}
	return s.retriever.Answer(ctx, req.Query, fragments)
}

// answerHybrid runs the document and web paths independently: both always
// complete, and one failing never aborts the other. Document sources are
// tagged high priority, web sources medium.
func (s *Synthesizer) answerHybrid(ctx context.Context, req Request) (string, []SourceRef, bool, error) {
	var (
		docText    string
		docSources []SourceRef
		docErr     error
		webText    string
		webSources []SourceRef
		webErr     error
	)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		docText, docSources, docErr = s.answerFromDocuments(ctx, req)
	}()
	go func() {
		defer wg.Done()
		webText, webSources, webErr = s.web.Answer(ctx, req.Query)
	}()
	wg.Wait()

	for i := range docSources {
		docSources[i].Priority = PriorityHigh
	}
	for i := range webSources {
		webSources[i].Priority = PriorityMedium
	}
	merged := make([]SourceRef, 0, len(docSources)+len(webSources))
	merged = append(merged, docSources...)
	merged = append(merged, webSources...)

	switch {
	case docErr != nil && webErr != nil:
		return "", nil, true, fmt.Errorf("hybrid paths failed: %v; %w", docErr, webErr)
	case docErr != nil:
		s.logger.Printf("hybrid document path contributed nothing: %v", docErr)
		return webText, merged, true, nil
	case webErr != nil:
		s.logger.Printf("hybrid web path contributed nothing: %v", webErr)
		return docText, merged, true, nil
	}

	user := fmt.Sprintf("DOCUMENT ANSWER:\n%s\n\nWEB ANSWER:\n%s\n\nQUESTION: %s", docText, webText, req.Query)
	text, err := s.llm.Complete(ctx, hybridSystem, user)
	if err != nil {
		s.logger.Printf("hybrid merge failed, returning document answer: %v", err)
		fallbacksTotal.WithLabelValues(fallbackSynthesis).Inc()
		return docText, merged, true, nil
	}
	return text, merged, true, nil
}
