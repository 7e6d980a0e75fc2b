package advisor

import (
	"context"
	"fmt"
	"log"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/fieldwise/farmhand/internal/lookupcache"
	"github.com/fieldwise/farmhand/utils"
)

var advisorTracer trace.Tracer = otel.Tracer("farmhand/internal/advisor")

// titleMaxChars bounds the conversation title derived from the first query.
const titleMaxChars = 50

// Options tunes the answering paths.
type Options struct {
	FreshnessWindow time.Duration
	WebResults      int
	Fetcher         WebFetcher // optional deep fetch of the top web result
	FetchMaxChars   int
	Journal         Journal // optional query-event journal
}

// Orchestrator answers conversation queries end to end: persist the
// question, classify, resolve, persist the answer, record analytics.
type Orchestrator struct {
	classifier  *Classifier
	synthesizer *Synthesizer
	storage     Storage
	journal     Journal
	logger      *log.Logger
}

// NewOrchestrator wires the answering paths around injected collaborators.
func NewOrchestrator(llm Completer, searcher Searcher, executor TabularExecutor, storage Storage, cache lookupcache.Store, opts Options) *Orchestrator {
	retriever := NewRetriever(llm)
	web := NewWebLookup(llm, searcher, cache, opts.FreshnessWindow, opts.WebResults, opts.Fetcher, opts.FetchMaxChars)
	tabular := NewTabularDispatcher(llm, executor)
	return &Orchestrator{
		classifier:  NewClassifier(llm),
		synthesizer: NewSynthesizer(llm, retriever, web, tabular, storage),
		storage:     storage,
		journal:     opts.Journal,
		logger:      log.New(log.Writer(), "[ADVISOR] ", log.LstdFlags),
	}
}

// Answer resolves one question. Component failures inside the answering
// paths resolve to their defined fallbacks; only persistence failures abort
// the request.
func (o *Orchestrator) Answer(ctx context.Context, req Request) (Answer, error) {
	ctx, span := advisorTracer.Start(ctx, "advisor.answer",
		trace.WithAttributes(attribute.String("conversation.id", req.ConversationID)))
	defer span.End()

	if _, err := o.storage.AppendTurn(ctx, req.ConversationID, RoleUser, req.Query, nil, "", 0); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Answer{}, fmt.Errorf("record question: %w", err)
	}

	start := time.Now()
	strategy := o.classifier.Classify(ctx, req.Query, len(req.DocumentIDs), len(req.DatasetIDs))
	span.SetAttributes(attribute.String("advisor.strategy", string(strategy)))

	text, sources, webUsed, err := o.synthesizer.Synthesize(ctx, strategy, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Answer{}, fmt.Errorf("resolve answer: %w", err)
	}
	elapsed := time.Since(start)
	answersTotal.WithLabelValues(string(strategy)).Inc()
	resolveSeconds.Observe(elapsed.Seconds())

	if _, err := o.storage.AppendTurn(ctx, req.ConversationID, RoleAssistant, text, sources, strategy, elapsed.Milliseconds()); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Answer{}, fmt.Errorf("record answer: %w", err)
	}

	ev := QueryEvent{
		ConversationID: req.ConversationID,
		Query:          req.Query,
		Strategy:       strategy,
		DocumentIDs:    req.DocumentIDs,
		DatasetIDs:     req.DatasetIDs,
		WebLookup:      webUsed,
	}
	if err := o.storage.RecordQueryEvent(ctx, ev); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Answer{}, fmt.Errorf("record query event: %w", err)
	}
	if o.journal != nil {
		o.journal.Record(ev)
	}

	if err := o.storage.TouchConversation(ctx, req.ConversationID, utils.Truncate(req.Query, titleMaxChars)); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Answer{}, fmt.Errorf("touch conversation: %w", err)
	}

	o.logger.Printf("answered conversation %s via %s in %v", req.ConversationID, strategy, elapsed)
	span.SetStatus(codes.Ok, "completed")
	return Answer{Text: text, Sources: sources, Strategy: strategy, Elapsed: elapsed}, nil
}
