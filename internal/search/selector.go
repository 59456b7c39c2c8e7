package search

import (
	"context"
	"errors"
	"math"

	"pmuplace/domain/placement"
	"pmuplace/internal"
	"pmuplace/ports"

	"golang.org/x/sync/errgroup"
)

// trialFit is the outcome of fitting one trial predictor list
type trialFit struct {
	vars []placement.Variable
	fit  placement.FitResult
	err  error
}

// Selector runs the forward and backward selection steps against an oracle
type Selector struct {
	oracle  ports.FittingOracle
	workers int
	log     *internal.Logger
}

// NewSelector creates a selector evaluating up to workers trials at once
func NewSelector(oracle ports.FittingOracle, workers int, logger *internal.Logger) *Selector {
	if workers < 1 {
		workers = 1
	}
	if logger == nil {
		logger = internal.DefaultLogger
	}
	return &Selector{oracle: oracle, workers: workers, log: logger}
}

// AddBestPMU evaluates every eligible unplaced candidate appended to the
// current set and returns the best scoring extension.
func (s *Selector) AddBestPMU(ctx context.Context, pool *VariablePool, cfg placement.Config, current placement.PlacementSet) (placement.PlacementSet, placement.FitResult, error) {
	trials := pool.Trials(current)
	if len(trials) == 0 {
		return current, placement.FitResult{}, ErrExhausted
	}

	lists := make([][]placement.Variable, len(trials))
	for i, v := range trials {
		lists[i] = current.With(v)
	}
	return s.pick(ctx, placement.MoveAdd, pool.Target(), cfg.PolynomialDegree, lists)
}

// RemoveWorstPMU evaluates the current set with each member removed and
// returns the removal that keeps the highest score, i.e. drops the least
// necessary variable.
func (s *Selector) RemoveWorstPMU(ctx context.Context, pool *VariablePool, cfg placement.Config, current placement.PlacementSet) (placement.PlacementSet, placement.FitResult, error) {
	if current.Len() < 2 {
		return current, placement.FitResult{}, ErrExhausted
	}

	lists := make([][]placement.Variable, current.Len())
	for i, v := range current.Variables {
		lists[i] = current.Without(v)
	}
	return s.pick(ctx, placement.MoveRemove, pool.Target(), cfg.PolynomialDegree, lists)
}

func (s *Selector) pick(ctx context.Context, move placement.Move, target placement.Variable, degree int, lists [][]placement.Variable) (placement.PlacementSet, placement.FitResult, error) {
	results, err := s.evaluate(ctx, target, degree, lists)
	if err != nil {
		return placement.PlacementSet{}, placement.FitResult{}, err
	}

	s.record(results)

	best := -1
	var causes []error
	for i, r := range results {
		if r.err != nil {
			s.log.Trace("%s candidate %v skipped: %v", move, r.vars, r.err)
			causes = append(causes, r.err)
			continue
		}
		if best < 0 || rankBefore(r, results[best]) {
			best = i
		}
	}
	if best < 0 {
		return placement.PlacementSet{}, placement.FitResult{}, &NoViableCandidateError{
			Operation: move,
			Attempted: len(lists),
			Causes:    causes,
		}
	}

	chosen := results[best]
	return placement.PlacementSet{
		Variables: chosen.vars,
		Score:     chosen.fit.Score,
		Scored:    true,
	}, chosen.fit, nil
}

// record reports the successful fits, in trial order, to an oracle keeping a
// verbose log
func (s *Selector) record(results []trialFit) {
	rec, ok := s.oracle.(ports.FitRecorder)
	if !ok {
		return
	}
	rows := make([]placement.VerboseRow, 0, len(results))
	for _, r := range results {
		if r.err != nil {
			continue
		}
		rows = append(rows, placement.VerboseRow{
			Score:        r.fit.Score,
			Formula:      r.fit.Formula,
			Predictors:   append([]placement.Variable(nil), r.vars...),
			Coefficients: r.fit.Coefficients,
		})
	}
	if len(rows) > 0 {
		rec.RecordFits(rows)
	}
}

// evaluate fits every trial list. Fit errors stay attached to their trial;
// any other error (cancellation, oracle breakage) aborts the step.
func (s *Selector) evaluate(ctx context.Context, target placement.Variable, degree int, lists [][]placement.Variable) ([]trialFit, error) {
	results := make([]trialFit, len(lists))

	if s.workers == 1 {
		for i, vars := range lists {
			r, err := s.fitOne(ctx, target, degree, vars)
			if err != nil {
				return nil, err
			}
			results[i] = r
		}
		return results, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i, vars := range lists {
		g.Go(func() error {
			r, err := s.fitOne(gctx, target, degree, vars)
			if err != nil {
				return err
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Selector) fitOne(ctx context.Context, target placement.Variable, degree int, vars []placement.Variable) (trialFit, error) {
	if err := ctx.Err(); err != nil {
		return trialFit{}, err
	}
	fit, err := s.oracle.Fit(ctx, target, vars, degree)
	switch {
	case err == nil && (math.IsNaN(fit.Score) || math.IsInf(fit.Score, 0)):
		return trialFit{vars: vars, err: NewFitError(vars, errors.New("score is not finite"))}, nil
	case err == nil:
		return trialFit{vars: vars, fit: fit}, nil
	case errors.Is(err, ErrFit):
		return trialFit{vars: vars, err: err}, nil
	default:
		return trialFit{}, err
	}
}

// rankBefore orders by score descending, then by the predictor list in
// descending lexicographic order
func rankBefore(a, b trialFit) bool {
	if a.fit.Score != b.fit.Score {
		return a.fit.Score > b.fit.Score
	}
	return compareVariables(a.vars, b.vars) > 0
}

func compareVariables(a, b []placement.Variable) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		switch {
		case a[i] < b[i]:
			return -1
		case a[i] > b[i]:
			return 1
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	}
	return 0
}
