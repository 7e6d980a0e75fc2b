package advisor

import (
	"context"
	"fmt"
	"log"
)

// NoDatasetText is returned when the tabular path has no data file to work
// with.
const NoDatasetText = "I need a data file to answer that. Please register a dataset and attach it to your question."

// TabularDispatcher routes dataset questions to the analysis executor and
// narrates the result.
type TabularDispatcher struct {
	llm      Completer
	executor TabularExecutor
	logger   *log.Logger
}

func NewTabularDispatcher(llm Completer, executor TabularExecutor) *TabularDispatcher {
	return &TabularDispatcher{
		llm:      llm,
		executor: executor,
		logger:   log.New(log.Writer(), "[TABULAR] ", log.LstdFlags),
	}
}

const tabularSystem = "You are a farm advisory assistant. Explain the data analysis below to an operator who is not a data specialist. Keep the numbers exact and the language plain."

// Answer analyzes the most recently registered of the supplied datasets.
// Executor failures surface as a user-facing message, not an error.
func (d *TabularDispatcher) Answer(ctx context.Context, query string, datasets []Dataset) (string, []SourceRef, error) {
	if len(datasets) == 0 {
		return NoDatasetText, nil, nil
	}

	target := datasets[0]
	for _, ds := range datasets[1:] {
		if ds.RegisteredAt.After(target.RegisteredAt) {
			target = ds
		}
	}

	raw, err := d.executor.Analyze(ctx, target.StoragePath, query)
	if err != nil {
		d.logger.Printf("analysis failed for dataset %s (%s): %v", target.Name, target.ID, err)
		fallbacksTotal.WithLabelValues(fallbackTabular).Inc()
		return fmt.Sprintf("I couldn't analyze %s: %v. Please check the file and try again.", target.Name, err), nil, nil
	}

	user := fmt.Sprintf("QUESTION: %s\n\nANALYSIS OF %s:\n%s", query, target.Name, raw)
	text, err := d.llm.Complete(ctx, tabularSystem, user)
	if err != nil {
		return "", nil, fmt.Errorf("tabular narration: %w", err)
	}

	return text, []SourceRef{{Kind: SourceTabular, Title: target.Name}}, nil
}
