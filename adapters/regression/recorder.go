package regression

import (
	"context"
	"sync"

	"pmuplace/domain/dataset"
	"pmuplace/domain/placement"
	"pmuplace/ports"
)

// Recorder wraps an oracle and keeps the successful fits the selector reports
// for the verbose output table
type Recorder struct {
	next ports.FittingOracle
	mu   sync.Mutex
	rows []placement.VerboseRow
}

// NewRecorder wraps next
func NewRecorder(next ports.FittingOracle) *Recorder {
	return &Recorder{next: next}
}

var (
	_ ports.FittingOracle = (*Recorder)(nil)
	_ ports.FitRecorder   = (*Recorder)(nil)
)

func (r *Recorder) Fit(ctx context.Context, target placement.Variable, predictors []placement.Variable, degree int) (placement.FitResult, error) {
	return r.next.Fit(ctx, target, predictors, degree)
}

// RecordFits appends one step's fits
func (r *Recorder) RecordFits(rows []placement.VerboseRow) {
	r.mu.Lock()
	r.rows = append(r.rows, rows...)
	r.mu.Unlock()
}

// Rows returns a copy of everything recorded so far
func (r *Recorder) Rows() []placement.VerboseRow {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]placement.VerboseRow(nil), r.rows...)
}

// Reset drops the recorded rows
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.rows = nil
	r.mu.Unlock()
}

// RecordingFactory returns a factory that binds a recorded polynomial oracle
// to each dataset
func RecordingFactory(opts ...Option) ports.OracleFactory {
	return func(table *dataset.Table) ports.FittingOracle {
		return NewRecorder(NewPolynomialOracle(table, opts...))
	}
}
