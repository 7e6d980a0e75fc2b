package csv

import (
	"context"
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// Engine answers dataset questions by inspecting a CSV file directly. The
// question steers which summary is produced; no query text is ever executed.
type Engine struct {
	DataRoot    string // relative storage paths resolve under this directory
	PreviewRows int
}

const defaultPreviewRows = 5

func (e Engine) Analyze(ctx context.Context, filePath, query string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	path, err := e.resolve(filePath)
	if err != nil {
		return "", err
	}
	t, err := load(path)
	if err != nil {
		return "", err
	}
	q := strings.ToLower(query)

	if out, ok := t.groupBy(q); ok {
		return out, nil
	}
	if wantsStats(q) {
		return t.stats(q), nil
	}
	if wantsPreview(q) {
		return t.preview(e.previewRows()), nil
	}
	return t.overview(e.previewRows()), nil
}

func (e Engine) previewRows() int {
	if e.PreviewRows > 0 {
		return e.PreviewRows
	}
	return defaultPreviewRows
}

// resolve joins relative paths under DataRoot and rejects paths that climb
// back out of it. Absolute paths are taken as registered.
func (e Engine) resolve(p string) (string, error) {
	if strings.TrimSpace(p) == "" {
		return "", fmt.Errorf("empty data file path")
	}
	if e.DataRoot == "" || filepath.IsAbs(p) {
		return p, nil
	}
	root, err := filepath.Abs(e.DataRoot)
	if err != nil {
		return "", err
	}
	full, err := filepath.Abs(filepath.Join(root, p))
	if err != nil {
		return "", err
	}
	if full != root && !strings.HasPrefix(full, root+string(filepath.Separator)) {
		return "", fmt.Errorf("data file path %q escapes data directory", p)
	}
	return full, nil
}

type table struct {
	header  []string
	rows    [][]string
	numeric map[int]bool
}

func load(path string) (*table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open data file: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.TrimLeadingSpace = true
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("data file has no rows")
	}
	t := &table{header: records[0], rows: records[1:], numeric: map[int]bool{}}
	for i := range t.header {
		t.header[i] = strings.TrimSpace(t.header[i])
		t.numeric[i] = t.columnNumeric(i)
	}
	return t, nil
}

func (t *table) columnNumeric(col int) bool {
	seen := false
	for _, row := range t.rows {
		if col >= len(row) {
			continue
		}
		v := strings.TrimSpace(row[col])
		if v == "" {
			continue
		}
		if _, err := strconv.ParseFloat(v, 64); err != nil {
			return false
		}
		seen = true
	}
	return seen
}

// columnsIn returns indexes of columns whose names appear in the query,
// matching snake_case names against their spaced form too.
func (t *table) columnsIn(q string) []int {
	var out []int
	for i, name := range t.header {
		n := strings.ToLower(name)
		if n == "" {
			continue
		}
		if strings.Contains(q, n) || strings.Contains(q, strings.ReplaceAll(n, "_", " ")) {
			out = append(out, i)
		}
	}
	return out
}

func (t *table) values(col int) []float64 {
	var out []float64
	for _, row := range t.rows {
		if col >= len(row) {
			continue
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(row[col]), 64)
		if err != nil {
			continue
		}
		out = append(out, v)
	}
	return out
}

var statWords = []string{"average", "mean", "sum", "total", "min", "max", "median", "count", "statistic", "how many", "highest", "lowest"}

func wantsStats(q string) bool {
	for _, w := range statWords {
		if strings.Contains(q, w) {
			return true
		}
	}
	return false
}

var previewWords = []string{"preview", "show", "sample", "first", "head", "column", "structure", "look like"}

func wantsPreview(q string) bool {
	for _, w := range previewWords {
		if strings.Contains(q, w) {
			return true
		}
	}
	return false
}

func (t *table) stats(q string) string {
	var cols []int
	for _, c := range t.columnsIn(q) {
		if t.numeric[c] {
			cols = append(cols, c)
		}
	}
	if len(cols) == 0 {
		for i := range t.header {
			if t.numeric[i] {
				cols = append(cols, i)
			}
		}
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Rows: %d\n", len(t.rows))
	for _, c := range cols {
		vals := t.values(c)
		if len(vals) == 0 {
			continue
		}
		fmt.Fprintf(&b, "%s: count=%d mean=%s min=%s max=%s sum=%s\n",
			t.header[c], len(vals), fmtNum(mean(vals)), fmtNum(minOf(vals)), fmtNum(maxOf(vals)), fmtNum(sum(vals)))
	}
	return strings.TrimRight(b.String(), "\n")
}

func (t *table) groupBy(q string) (string, bool) {
	if !strings.Contains(q, " by ") && !strings.Contains(q, " per ") &&
		!strings.Contains(q, "group") && !strings.Contains(q, " each ") {
		return "", false
	}
	key, val := -1, -1
	for _, c := range t.columnsIn(q) {
		if t.numeric[c] && val == -1 {
			val = c
		}
		if !t.numeric[c] && key == -1 {
			key = c
		}
	}
	if key == -1 || val == -1 {
		return "", false
	}

	groups := map[string][]float64{}
	for _, row := range t.rows {
		if key >= len(row) || val >= len(row) {
			continue
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(row[val]), 64)
		if err != nil {
			continue
		}
		groups[strings.TrimSpace(row[key])] = append(groups[strings.TrimSpace(row[key])], v)
	}
	if len(groups) == 0 {
		return "", false
	}

	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	useSum := strings.Contains(q, "sum") || strings.Contains(q, "total")
	agg := "mean"
	if useSum {
		agg = "sum"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s by %s:\n", agg, t.header[val], t.header[key])
	for _, k := range keys {
		vals := groups[k]
		v := mean(vals)
		if useSum {
			v = sum(vals)
		}
		fmt.Fprintf(&b, "  %s: %s (n=%d)\n", k, fmtNum(v), len(vals))
	}
	return strings.TrimRight(b.String(), "\n"), true
}

func (t *table) preview(n int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Columns: %s\n", strings.Join(t.header, ", "))
	limit := n
	if limit > len(t.rows) {
		limit = len(t.rows)
	}
	for i := 0; i < limit; i++ {
		fmt.Fprintf(&b, "%s\n", strings.Join(t.rows[i], ", "))
	}
	fmt.Fprintf(&b, "(%d of %d rows)", limit, len(t.rows))
	return b.String()
}

func (t *table) overview(n int) string {
	var kinds []string
	for i, name := range t.header {
		kind := "text"
		if t.numeric[i] {
			kind = "numeric"
		}
		kinds = append(kinds, fmt.Sprintf("%s (%s)", name, kind))
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Rows: %d\n", len(t.rows))
	fmt.Fprintf(&b, "Columns: %s\n", strings.Join(kinds, ", "))
	b.WriteString(t.preview(n))
	return b.String()
}

func mean(vals []float64) float64 {
	return sum(vals) / float64(len(vals))
}

func sum(vals []float64) float64 {
	var s float64
	for _, v := range vals {
		s += v
	}
	return s
}

func minOf(vals []float64) float64 {
	m := vals[0]
	for _, v := range vals[1:] {
		if v < m {
			m = v
		}
	}
	return m
}

func maxOf(vals []float64) float64 {
	m := vals[0]
	for _, v := range vals[1:] {
		if v > m {
			m = v
		}
	}
	return m
}

func fmtNum(v float64) string {
	if v == math.Trunc(v) {
		return strconv.FormatFloat(v, 'f', 0, 64)
	}
	return strconv.FormatFloat(v, 'f', 2, 64)
}
