package tabular

import (
	"context"
	"errors"

	"github.com/fieldwise/farmhand/tools/tabular/csv"
)

// Executor answers a natural-language question about one data file and
// returns a plain-text analysis. Implementations pick their own heuristic
// (statistics, group-by, preview); callers only pass the file path and the
// question as arguments.
type Executor interface {
	Analyze(ctx context.Context, filePath, query string) (string, error)
}

type ExecutorType string

const (
	CSVExecutorType ExecutorType = "csv"
)

var ErrUnsupportedExecutor = errors.New("unsupported executor type")

func NewExecutor(executorType ExecutorType, dataRoot string, previewRows int) (Executor, error) {
	switch executorType {
	case CSVExecutorType:
		return csv.Engine{DataRoot: dataRoot, PreviewRows: previewRows}, nil
	default:
		return nil, ErrUnsupportedExecutor
	}
}
