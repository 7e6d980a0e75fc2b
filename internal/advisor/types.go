package advisor

import (
	"context"
	"errors"
	"time"

	fetchmodels "github.com/fieldwise/farmhand/tools/web_fetch/models"
	"github.com/fieldwise/farmhand/tools/web_search/models"
)

// Strategy identifies which answering path resolves a query.
type Strategy string

const (
	StrategyTabular   Strategy = "tabular_analysis"
	StrategyDocuments Strategy = "document_retrieval"
	StrategyWebLookup Strategy = "web_lookup"
	StrategyHybrid    Strategy = "hybrid"
	StrategyGeneral   Strategy = "general"
)

// Strategies lists every valid label in routing-prompt order.
var Strategies = []Strategy{
	StrategyTabular,
	StrategyDocuments,
	StrategyWebLookup,
	StrategyHybrid,
	StrategyGeneral,
}

func (s Strategy) Valid() bool {
	switch s {
	case StrategyTabular, StrategyDocuments, StrategyWebLookup, StrategyHybrid, StrategyGeneral:
		return true
	}
	return false
}

// Turn roles as persisted on conversation turns.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// SourceKind says what a source reference points at.
type SourceKind string

const (
	SourceDocument SourceKind = "document"
	SourceWeb      SourceKind = "web"
	SourceTabular  SourceKind = "tabular"
)

// SourcePriority ranks sources in hybrid answers: document material outranks
// web material.
type SourcePriority string

const (
	PriorityHigh   SourcePriority = "high"
	PriorityMedium SourcePriority = "medium"
)

// SourceRef points at the material behind an answer.
type SourceRef struct {
	Kind     SourceKind     `json:"kind"`
	Title    string         `json:"title"`
	URL      string         `json:"url,omitempty"`
	Fragment int            `json:"fragment,omitempty"` // sequence index within the document
	Priority SourcePriority `json:"priority,omitempty"`
}

// Fragment is a pre-chunked slice of a reference document. Chunking happens
// at ingestion time; the advisor only reads.
type Fragment struct {
	ID         string `json:"id"`
	DocumentID string `json:"document_id"`
	Document   string `json:"document"` // display name
	Seq        int    `json:"seq"`
	Text       string `json:"text"`
}

// Dataset describes a registered tabular data file.
type Dataset struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	StoragePath  string    `json:"storage_path"`
	Columns      []string  `json:"columns"`
	RowCount     int       `json:"row_count"`
	RegisteredAt time.Time `json:"registered_at"`
}

// Request is one question within a conversation, with the resources the
// caller attached to it.
type Request struct {
	ConversationID string
	Query          string
	DocumentIDs    []string
	DatasetIDs     []string
}

// Answer is a resolved response with its supporting sources.
type Answer struct {
	Text     string        `json:"text"`
	Sources  []SourceRef   `json:"sources"`
	Strategy Strategy      `json:"strategy"`
	Elapsed  time.Duration `json:"elapsed"`
}

// QueryEvent is the analytics record appended after every answered query.
type QueryEvent struct {
	ConversationID string   `json:"conversation_id"`
	Query          string   `json:"query"`
	Strategy       Strategy `json:"strategy"`
	DocumentIDs    []string `json:"document_ids,omitempty"`
	DatasetIDs     []string `json:"dataset_ids,omitempty"`
	WebLookup      bool     `json:"web_lookup"`
}

// Completer produces a completion for a system+user prompt pair. The client
// is injected at construction; nothing in this package builds one.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// Searcher finds web results for a query.
type Searcher interface {
	Discover(ctx context.Context, q string, k int) ([]models.Result, error)
}

// WebFetcher optionally pulls full page text for a web result.
type WebFetcher interface {
	Exec(ctx context.Context, url string) (fetchmodels.Result, error)
}

// TabularExecutor runs the actual data-file analysis. Implementations pick
// their own heuristic; the advisor only passes the path and the question.
type TabularExecutor interface {
	Analyze(ctx context.Context, filePath, query string) (string, error)
}

// Storage is the persistence surface the advisor needs. Failures here are
// the only failures that abort a request.
type Storage interface {
	FragmentsForDocuments(ctx context.Context, documentIDs []string) ([]Fragment, error)
	DatasetsByIDs(ctx context.Context, ids []string) ([]Dataset, error)
	AppendTurn(ctx context.Context, conversationID, role, content string, sources []SourceRef, strategy Strategy, elapsedMS int64) (string, error)
	RecordQueryEvent(ctx context.Context, ev QueryEvent) error
	// TouchConversation bumps last activity and sets the title when the
	// conversation does not have one yet.
	TouchConversation(ctx context.Context, conversationID, title string) error
}

// Journal receives a copy of every query event for offline analysis.
type Journal interface {
	Record(ev QueryEvent)
}

// ErrRetrievalExhausted reports that no fragment matched the query, which
// sends the document-retrieval path to its web-lookup fallback.
var ErrRetrievalExhausted = errors.New("no fragments matched the query")
