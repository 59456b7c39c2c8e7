package search

import (
	"context"
	"errors"

	"pmuplace/domain/placement"
	"pmuplace/internal"
	"pmuplace/ports"
)

// GrowingSize is the number of placements added unconditionally before the
// remove/re-add oscillation starts
const GrowingSize = 4

// Driver runs the stepwise add/remove placement search over one dataset.
// It is not safe for concurrent use; one driver owns its memo and trace.
type Driver struct {
	oracle    ports.FittingOracle
	log       *internal.Logger
	sel       *Selector
	cfg       placement.Config
	pool      *VariablePool
	ready     bool
	placed    placement.PlacementSet
	memo      *VisitedStateMemo
	trace     placement.SearchTrace
	steps     int
	exhausted bool
	onStep    func(entries []placement.TraceEntry)
}

// NewDriver creates a driver fitting through oracle
func NewDriver(oracle ports.FittingOracle, logger *internal.Logger) *Driver {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	return &Driver{
		oracle: oracle,
		log:    logger.With("search"),
		memo:   NewVisitedStateMemo(),
	}
}

// ValidateConfig checks a config against a pool
func ValidateConfig(cfg placement.Config, pool *VariablePool) error {
	switch {
	case pool == nil:
		return &ConfigurationError{Field: "pool", Reason: "is required"}
	case cfg.TargetVariable == "":
		return &ConfigurationError{Field: "TargetVariable", Reason: "is empty"}
	case cfg.MaxPlacements <= 0:
		return &ConfigurationError{Field: "MaxPlacements", Reason: "must be positive"}
	case cfg.PolynomialDegree <= 0:
		return &ConfigurationError{Field: "PolynomialDegree", Reason: "must be positive"}
	case cfg.Workers < 0:
		return &ConfigurationError{Field: "Workers", Reason: "must not be negative"}
	case pool.Target() != cfg.TargetVariable:
		return &ConfigurationError{Field: "TargetVariable", Reason: "differs from the pool target"}
	case pool.containsCandidate(cfg.TargetVariable):
		return &ConfigurationError{Field: "TargetVariable", Reason: "is also a candidate"}
	}
	return nil
}

// Initialize validates and installs a config and pool, then resets all
// search state
func (d *Driver) Initialize(cfg placement.Config, pool *VariablePool) error {
	if err := ValidateConfig(cfg, pool); err != nil {
		return err
	}
	if cfg.Workers == 0 {
		cfg.Workers = 1
	}
	cfg.ExcludedVariables = pool.Excluded()

	d.cfg = cfg
	d.pool = pool
	d.sel = NewSelector(d.oracle, cfg.Workers, d.log)
	d.ready = true
	d.Reset()

	if pool.EligibleCount() < cfg.MaxPlacements {
		d.log.Debug("max placements %d capped at %d eligible candidates", cfg.MaxPlacements, pool.EligibleCount())
	}
	return nil
}

// Reset clears the placement set, memo and trace. Required between datasets.
func (d *Driver) Reset() {
	d.placed = placement.PlacementSet{}
	d.memo.Reset()
	d.trace = nil
	d.steps = 0
	d.exhausted = false
}

// OnStep registers a callback receiving the entries accepted by each step
func (d *Driver) OnStep(fn func(entries []placement.TraceEntry)) {
	d.onStep = fn
}

// Config returns the installed config
func (d *Driver) Config() placement.Config { return d.cfg }

// Limit is min(MaxPlacements, eligible candidates)
func (d *Driver) Limit() int {
	if d.pool == nil {
		return 0
	}
	limit := d.cfg.MaxPlacements
	if eligible := d.pool.EligibleCount(); eligible < limit {
		limit = eligible
	}
	return limit
}

// Done reports whether the search reached its terminal state
func (d *Driver) Done() bool {
	return d.exhausted || d.placed.Len() >= d.Limit()
}

// Phase returns the state machine phase the next step will run in
func (d *Driver) Phase() placement.Phase {
	switch {
	case d.Done():
		return placement.PhaseTerminal
	case d.placed.Len() < GrowingSize:
		return placement.PhaseGrowing
	default:
		return placement.PhaseOscillating
	}
}

// Placed returns a copy of the current placement set
func (d *Driver) Placed() placement.PlacementSet { return d.placed.Clone() }

// Trace returns a copy of the accepted states so far
func (d *Driver) Trace() placement.SearchTrace {
	out := make(placement.SearchTrace, len(d.trace))
	copy(out, d.trace)
	return out
}

// Visited returns the memo's keys in acceptance order
func (d *Driver) Visited() []placement.StateKey { return d.memo.Keys() }

// RunBatchSearch steps until terminal and returns the whole trace. On error no
// trace is returned; the driver keeps the states of completed steps.
func (d *Driver) RunBatchSearch(ctx context.Context) (placement.SearchTrace, error) {
	if !d.ready {
		return nil, ErrNotInitialized
	}
	for !d.Done() {
		if _, err := d.RunSingleStep(ctx); err != nil {
			return nil, err
		}
	}
	d.log.Info("search finished: %d placed, %d states accepted", d.placed.Len(), len(d.trace))
	return d.Trace(), nil
}

// RunSingleStep applies one growing addition or one oscillation iteration and
// returns only the entries it accepted
func (d *Driver) RunSingleStep(ctx context.Context) ([]placement.TraceEntry, error) {
	if !d.ready {
		return nil, ErrNotInitialized
	}
	if d.Done() {
		return nil, ErrTerminal
	}

	snap := d.snapshot()
	d.steps++
	var err error
	if d.Phase() == placement.PhaseGrowing {
		err = d.grow(ctx)
	} else {
		err = d.oscillate(ctx)
	}
	if errors.Is(err, ErrExhausted) {
		// the pool ran dry mid-step: cap here, keeping what was accepted
		d.exhausted = true
		err = nil
	}
	if err != nil {
		d.restore(snap)
		return nil, err
	}

	accepted := make([]placement.TraceEntry, len(d.trace)-snap.traceLen)
	copy(accepted, d.trace[snap.traceLen:])
	if d.onStep != nil && len(accepted) > 0 {
		d.onStep(accepted)
	}
	return accepted, nil
}

func (d *Driver) grow(ctx context.Context) error {
	fit, err := d.add(ctx)
	if err != nil {
		return err
	}
	d.record(placement.PhaseGrowing, placement.MoveAdd, fit)
	d.log.Info("opening placements: placed %d, score %.6f", d.placed.Len(), d.placed.Score)
	return nil
}

// oscillate is the "one back, two forward" iteration
func (d *Driver) oscillate(ctx context.Context) error {
	hold := d.placed.Clone()
	removed, removedFit, err := d.sel.RemoveWorstPMU(ctx, d.pool, d.cfg, d.placed)
	if err != nil {
		return err
	}

	var fit placement.FitResult
	if d.memo.Contains(removed.Key()) {
		d.log.Debug("retrograde removal to %s undone", removed.Key())
		d.placed = hold
		if fit, err = d.add(ctx); err != nil {
			return err
		}
	} else {
		d.placed = removed
		d.record(placement.PhaseOscillating, placement.MoveRemove, removedFit)
		d.log.Debug("new diminished state %s", removed.Key())

		if !d.cfg.Parsimonious {
			if fit, err = d.add(ctx); err != nil {
				return err
			}
			d.record(placement.PhaseOscillating, placement.MoveAdd, fit)
		}
		if fit, err = d.add(ctx); err != nil {
			return err
		}
	}

	d.record(placement.PhaseOscillating, placement.MoveAdd, fit)
	d.log.Info("one back two forward: placed %d, score %.6f", d.placed.Len(), d.placed.Score)
	return nil
}

// add moves the placement set to its best one-variable extension
func (d *Driver) add(ctx context.Context) (placement.FitResult, error) {
	if d.placed.Len() >= d.pool.EligibleCount() {
		return placement.FitResult{}, ErrExhausted
	}
	next, fit, err := d.sel.AddBestPMU(ctx, d.pool, d.cfg, d.placed)
	if err != nil {
		return placement.FitResult{}, err
	}
	d.placed = next
	return fit, nil
}

// record appends the current placement to the trace if its state is new
func (d *Driver) record(phase placement.Phase, move placement.Move, fit placement.FitResult) bool {
	if !d.memo.Visit(d.placed.Key()) {
		return false
	}
	d.trace = append(d.trace, placement.TraceEntry{
		Step:      d.steps,
		Phase:     phase,
		Move:      move,
		Placement: d.placed.Clone(),
		Fit:       fit,
	})
	return true
}

type driverSnapshot struct {
	placed   placement.PlacementSet
	traceLen int
	memoLen  int
	steps    int
}

func (d *Driver) snapshot() driverSnapshot {
	return driverSnapshot{
		placed:   d.placed.Clone(),
		traceLen: len(d.trace),
		memoLen:  d.memo.Len(),
		steps:    d.steps,
	}
}

func (d *Driver) restore(s driverSnapshot) {
	d.placed = s.placed
	d.trace = d.trace[:s.traceLen]
	d.memo.truncate(s.memoLen)
	d.steps = s.steps
}
