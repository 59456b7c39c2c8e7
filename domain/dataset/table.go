package dataset

import (
	"fmt"

	"pmuplace/domain/core"
	"pmuplace/domain/placement"

	"github.com/montanaflynn/stats"
)

// Table is a numeric dataset held column-major. Every column has Rows values.
type Table struct {
	Name    string
	Headers []string
	Columns map[string][]float64
	Rows    int
}

// NewTable builds a table from headers and column data, checking lengths
func NewTable(name string, headers []string, columns map[string][]float64) (*Table, error) {
	if len(headers) == 0 {
		return nil, fmt.Errorf("%w: table %s has no columns", core.ErrInsufficientData, name)
	}
	rows := -1
	for _, h := range headers {
		col, ok := columns[h]
		if !ok {
			return nil, fmt.Errorf("%w: column %s", core.ErrColumnMissing, h)
		}
		if rows >= 0 && len(col) != rows {
			return nil, fmt.Errorf("column %s has %d rows, expected %d", h, len(col), rows)
		}
		rows = len(col)
	}
	if rows == 0 {
		return nil, fmt.Errorf("%w: table %s has no rows", core.ErrInsufficientData, name)
	}
	return &Table{Name: name, Headers: headers, Columns: columns, Rows: rows}, nil
}

// Column returns the values of a column
func (t *Table) Column(v placement.Variable) ([]float64, error) {
	col, ok := t.Columns[string(v)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrColumnMissing, v)
	}
	return col, nil
}

// Has reports whether the table has a column named v
func (t *Table) Has(v placement.Variable) bool {
	_, ok := t.Columns[string(v)]
	return ok
}

// SplitTarget returns the resolved target and the remaining headers as
// candidates. A missing target falls back to the first column; fellBack
// reports when that happened.
func (t *Table) SplitTarget(target placement.Variable) (resolved placement.Variable, candidates []placement.Variable, fellBack bool) {
	resolved = target
	if !t.Has(target) {
		resolved = placement.Variable(t.Headers[0])
		fellBack = true
	}
	for _, h := range t.Headers {
		if placement.Variable(h) != resolved {
			candidates = append(candidates, placement.Variable(h))
		}
	}
	return resolved, candidates, fellBack
}

// ColumnSummary is a short description of one column
type ColumnSummary struct {
	Name   string  `json:"name"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std_dev"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
}

// Summarize describes every column in header order
func (t *Table) Summarize() []ColumnSummary {
	out := make([]ColumnSummary, 0, len(t.Headers))
	for _, h := range t.Headers {
		data := stats.Float64Data(t.Columns[h])
		mean, _ := data.Mean()
		std, _ := data.StandardDeviation()
		min, _ := data.Min()
		max, _ := data.Max()
		out = append(out, ColumnSummary{Name: h, Mean: mean, StdDev: std, Min: min, Max: max})
	}
	return out
}
