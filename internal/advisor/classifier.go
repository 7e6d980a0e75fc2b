package advisor

import (
	"context"
	"fmt"
	"log"
	"strings"
)

// Classifier picks the answering strategy for a query by asking the
// completion model to route it.
type Classifier struct {
	llm    Completer
	logger *log.Logger
}

func NewClassifier(llm Completer) *Classifier {
	return &Classifier{
		llm:    llm,
		logger: log.New(log.Writer(), "[CLASSIFIER] ", log.LstdFlags),
	}
}

const classifierSystem = "You route questions for a farm advisory assistant. Reply with exactly one strategy label and nothing else."

// Classify returns one of the five strategy labels. It never fails: an
// unrecognized reply or a completion error resolves to general.
func (c *Classifier) Classify(ctx context.Context, query string, documentCount, datasetCount int) Strategy {
	user := fmt.Sprintf(`Pick the single best strategy for answering the question below.

STRATEGIES:
- tabular_analysis: the question asks for numbers, statistics or trends from an attached data file
- document_retrieval: the question can be answered from the attached reference documents
- web_lookup: the question needs current information from the public web
- hybrid: the question needs both the attached documents and current web information
- general: none of the above fits, answer from general farming knowledge

ATTACHED RESOURCES: %d reference documents, %d data files

QUESTION: %s

Reply with exactly one label from the list above.`, documentCount, datasetCount, query)

	reply, err := c.llm.Complete(ctx, classifierSystem, user)
	if err != nil {
		c.logger.Printf("classification failed, using general: %v", err)
		fallbacksTotal.WithLabelValues(fallbackClassification).Inc()
		return StrategyGeneral
	}
	label := Strategy(strings.ToLower(strings.Trim(strings.TrimSpace(reply), "\"'`.")))
	if !label.Valid() {
		c.logger.Printf("unrecognized strategy %q, using general", reply)
		fallbacksTotal.WithLabelValues(fallbackClassification).Inc()
		return StrategyGeneral
	}
	return label
}
