package ports

import (
	"context"

	"pmuplace/domain/dataset"
	"pmuplace/domain/placement"
)

// FittingOracle fits a polynomial regression of target on predictors, each
// predictor contributing degree raw polynomial terms. Implementations must be
// deterministic for a fixed dataset and safe for concurrent read-only calls.
// An unidentifiable model is reported as an error wrapping search.ErrFit.
type FittingOracle interface {
	Fit(ctx context.Context, target placement.Variable, predictors []placement.Variable, degree int) (placement.FitResult, error)
}

// OracleFactory binds a fitting oracle to one dataset
type OracleFactory func(table *dataset.Table) FittingOracle

// FitRecorder is implemented by oracles that keep a verbose log of their fits.
// The selector reports each step's successful fits to it in trial order, so
// the log does not depend on how concurrent fits interleave.
type FitRecorder interface {
	RecordFits(rows []placement.VerboseRow)
}
