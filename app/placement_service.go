package app

import (
	"context"
	stderrors "errors"
	"fmt"
	"path/filepath"
	"time"

	"pmuplace/domain/core"
	"pmuplace/domain/dataset"
	"pmuplace/domain/placement"
	"pmuplace/internal"
	"pmuplace/internal/errors"
	"pmuplace/internal/search"
	"pmuplace/ports"
)

// Run modes
const (
	ModeBatch       = "batch"
	ModeIncremental = "incremental"
	ModeFailover    = "failover"
)

// verboseSource is implemented by oracles that keep every fit they perform
type verboseSource interface {
	Rows() []placement.VerboseRow
	Reset()
}

// PlacementService runs placement searches over dataset files and streams the
// accepted states into its sinks
type PlacementService struct {
	reader    ports.DatasetReader
	newOracle ports.OracleFactory
	sinks     MultiSink
	log       *internal.Logger
}

// RunRequest describes one search over one dataset file
type RunRequest struct {
	Path   string
	Config placement.Config
	// Mode is batch, incremental or failover; empty means batch
	Mode       string
	Retries    int
	RetryDelay time.Duration
	// RunID is optional, will be generated if empty
	RunID core.RunID
}

// RunResult summarises a finished search
type RunResult struct {
	RunID       core.RunID            `json:"run_id"`
	Dataset     string                `json:"dataset"`
	Path        string                `json:"path"`
	Target      placement.Variable    `json:"target"`
	FellBack    bool                  `json:"target_fell_back"`
	Config      placement.Config      `json:"config"`
	Trace       placement.SearchTrace `json:"trace"`
	Best        *placement.TraceEntry `json:"best,omitempty"`
	Attempts    int                   `json:"attempts"`
	Evaluations int                   `json:"evaluations"`
	RuntimeMs   int64                 `json:"runtime_ms"`

	// Columns describes the target and candidate columns of the dataset
	Columns []dataset.ColumnSummary `json:"columns"`
}

// NewPlacementService creates a placement service
func NewPlacementService(reader ports.DatasetReader, newOracle ports.OracleFactory, sinks []ports.TraceSink, logger *internal.Logger) *PlacementService {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	return &PlacementService{
		reader:    reader,
		newOracle: newOracle,
		sinks:     MultiSink(sinks),
		log:       logger.With("placement"),
	}
}

// RunDataset reads one file and searches it. Failover mode retries the whole
// search from a reset driver up to Retries times; the sinks restart with it.
func (s *PlacementService) RunDataset(ctx context.Context, req RunRequest) (*RunResult, error) {
	start := time.Now()
	s.log.Info("###### Starting on %s ######", filepath.Base(req.Path))

	table, err := s.reader.ReadTable(req.Path)
	if err != nil {
		return nil, errors.DatasetInvalid(req.Path, err)
	}
	s.log.Info("data loaded: %d columns, %d rows", len(table.Headers), table.Rows)

	target, candidates, fellBack := table.SplitTarget(req.Config.TargetVariable)
	if fellBack {
		s.log.Warn("target %s not found in %s, using first column %s", req.Config.TargetVariable, table.Name, target)
	}
	cfg := req.Config
	cfg.TargetVariable = target

	oracle := s.newOracle(table)
	driver := search.NewDriver(oracle, s.log)
	if err := driver.Initialize(cfg, search.NewVariablePool(target, candidates, cfg.ExcludedVariables)); err != nil {
		return nil, errors.WithCode(errors.CodeConfigInvalid, err)
	}

	hash, err := core.HashFile(req.Path)
	if err != nil {
		s.log.Warn("could not hash %s: %v", req.Path, err)
	}
	runID := req.RunID
	if runID == "" {
		runID = core.NewRunID()
	}
	info := ports.RunInfo{
		ID:            runID,
		Dataset:       table.Name,
		DatasetHash:   hash,
		Config:        driver.Config(),
		HeaderLength:  driver.Limit(),
		CandidateSize: len(candidates),
	}

	attempts := 1
	if req.Mode == ModeFailover && req.Retries > 1 {
		attempts = req.Retries
	}

	var trace placement.SearchTrace
	var attempt int
	for attempt = 1; ; attempt++ {
		trace, err = s.attempt(ctx, req.Mode, driver, oracle, info)
		if err == nil {
			break
		}
		driver.Reset()
		if attempt >= attempts || ctx.Err() != nil {
			return nil, errors.SearchFailed(table.Name, err)
		}
		s.log.Warn("failed %d time(s) on %s: %v", attempt, table.Name, err)
		if err := sleep(ctx, req.RetryDelay); err != nil {
			return nil, errors.SearchFailed(table.Name, err)
		}
	}

	result := &RunResult{
		RunID:     runID,
		Dataset:   table.Name,
		Path:      req.Path,
		Target:    target,
		FellBack:  fellBack,
		Config:    info.Config,
		Trace:     trace,
		Attempts:  attempt,
		RuntimeMs: time.Since(start).Milliseconds(),
		Columns:   table.Summarize(),
	}
	if best, ok := trace.Best(); ok {
		result.Best = &best
		s.log.Info("best state %s with score %.6f", best.Key(), best.Placement.Score)
	}
	if v, ok := oracle.(verboseSource); ok {
		result.Evaluations = len(v.Rows())
	}
	driver.Reset()
	return result, nil
}

// attempt runs one search from a clean driver into freshly begun sinks
func (s *PlacementService) attempt(ctx context.Context, mode string, driver *search.Driver, oracle ports.FittingOracle, info ports.RunInfo) (placement.SearchTrace, error) {
	driver.Reset()
	verbose, _ := oracle.(verboseSource)
	if verbose != nil {
		verbose.Reset()
	}
	if err := s.sinks.Begin(ctx, info); err != nil {
		return nil, err
	}

	var trace placement.SearchTrace
	var err error
	if mode == ModeIncremental {
		trace, err = s.stepwise(ctx, driver)
	} else {
		trace, err = driver.RunBatchSearch(ctx)
		if err == nil {
			err = s.sinks.Append(ctx, trace)
		}
	}
	if err != nil {
		// release the sinks even when ctx is already cancelled
		if abortErr := s.sinks.Abort(context.WithoutCancel(ctx), err); abortErr != nil {
			s.log.Warn("failed to abort sinks for %s: %v", info.Dataset, abortErr)
		}
		return nil, err
	}

	var rows []placement.VerboseRow
	if verbose != nil {
		rows = verbose.Rows()
	}
	if err := s.sinks.Close(ctx, rows); err != nil {
		return nil, err
	}
	return trace, nil
}

// stepwise drives single steps, appending each step's entries as they are
// accepted
func (s *PlacementService) stepwise(ctx context.Context, driver *search.Driver) (placement.SearchTrace, error) {
	for !driver.Done() {
		entries, err := driver.RunSingleStep(ctx)
		if err != nil {
			return nil, err
		}
		if len(entries) == 0 {
			continue
		}
		if err := s.sinks.Append(ctx, entries); err != nil {
			return nil, err
		}
	}
	return driver.Trace(), nil
}

// RunAll searches every file at every degree. Batch and incremental modes
// stop at the first failing dataset; failover mode logs it and moves on,
// returning every failure joined.
func (s *PlacementService) RunAll(ctx context.Context, paths []string, base RunRequest, degrees []int) ([]*RunResult, error) {
	var results []*RunResult
	var failures []error
	for _, path := range paths {
		for _, degree := range degrees {
			req := base
			req.Path = path
			req.RunID = ""
			req.Config.PolynomialDegree = degree

			res, err := s.RunDataset(ctx, req)
			if err != nil {
				if req.Mode != ModeFailover || ctx.Err() != nil {
					return results, err
				}
				s.log.Error("giving up on %s (degree %d): %v", filepath.Base(path), degree, err)
				failures = append(failures, fmt.Errorf("%s degree %d: %w", filepath.Base(path), degree, err))
				continue
			}
			results = append(results, res)
		}
	}
	return results, stderrors.Join(failures...)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
