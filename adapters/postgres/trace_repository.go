package postgres

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"

	"pmuplace/domain/core"
	"pmuplace/domain/placement"
	"pmuplace/internal/errors"
	"pmuplace/models"
	"pmuplace/ports"

	"github.com/jmoiron/sqlx"
)

// TraceRepository stores search traces in PostgreSQL. As a sink it tracks a
// single run at a time; reads are safe from any goroutine.
type TraceRepository struct {
	db  *sqlx.DB
	run ports.RunInfo
	seq int
}

var (
	_ ports.TraceSink     = (*TraceRepository)(nil)
	_ ports.RunRepository = (*TraceRepository)(nil)
	_ ports.TraceAborter  = (*TraceRepository)(nil)
)

// NewTraceRepository creates a new PostgreSQL trace repository
func NewTraceRepository(db *sqlx.DB) *TraceRepository {
	return &TraceRepository{db: db}
}

// Begin registers the run. Beginning an existing run again, as failover
// retries do, resets it and drops the states of the failed attempt.
func (r *TraceRepository) Begin(ctx context.Context, run ports.RunInfo) error {
	if run.ID == "" {
		run.ID = core.NewRunID()
	}
	r.run = run
	r.seq = 0

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.DatabaseError("failed to begin transaction", err)
	}
	defer tx.Rollback()

	rec := models.NewRunRecord(run)
	_, err = tx.NamedExecContext(ctx, `
		INSERT INTO placement_runs (id, dataset, dataset_hash, config, header_length, candidate_size, status, verbose_evaluations, created_at)
		VALUES (:id, :dataset, :dataset_hash, :config, :header_length, :candidate_size, :status, :verbose_evaluations, :created_at)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			verbose_evaluations = 0,
			completed_at = NULL
	`, rec)
	if err != nil {
		return errors.DatabaseError("failed to insert placement run", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM placement_states WHERE run_id = $1`, run.ID.String()); err != nil {
		return errors.DatabaseError("failed to clear placement states", err)
	}
	if err := tx.Commit(); err != nil {
		return errors.DatabaseError("failed to commit placement run", err)
	}
	return nil
}

// Append inserts the accepted states in one transaction
func (r *TraceRepository) Append(ctx context.Context, entries []placement.TraceEntry) error {
	if r.run.ID == "" {
		return errors.InvalidInput("trace repository used before Begin")
	}
	if len(entries) == 0 {
		return nil
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.DatabaseError("failed to begin transaction", err)
	}
	defer tx.Rollback()

	for i, e := range entries {
		rec := models.NewStateRecord(r.run.ID, r.seq+i+1, e)
		_, err := tx.NamedExecContext(ctx, `
			INSERT INTO placement_states (run_id, seq, step, phase, move, state_hash, variables, score, formula, coefficients)
			VALUES (:run_id, :seq, :step, :phase, :move, :state_hash, :variables, :score, :formula, :coefficients)
		`, rec)
		if err != nil {
			return errors.DatabaseError(fmt.Sprintf("failed to insert state %s", e.Key()), err)
		}
	}
	if err := tx.Commit(); err != nil {
		return errors.DatabaseError("failed to commit states", err)
	}
	r.seq += len(entries)
	return nil
}

// Close marks the run complete
func (r *TraceRepository) Close(ctx context.Context, verbose []placement.VerboseRow) error {
	if r.run.ID == "" {
		return nil
	}
	_, err := r.db.ExecContext(ctx, `
		UPDATE placement_runs
		SET status = $2, verbose_evaluations = $3, completed_at = NOW()
		WHERE id = $1
	`, r.run.ID.String(), models.RunStatusComplete, len(verbose))
	if err != nil {
		return errors.DatabaseError("failed to complete placement run", err)
	}
	return nil
}

// Abort marks the run failed
func (r *TraceRepository) Abort(ctx context.Context, cause error) error {
	if r.run.ID == "" {
		return nil
	}
	_, err := r.db.ExecContext(ctx, `
		UPDATE placement_runs
		SET status = $2, completed_at = NOW()
		WHERE id = $1
	`, r.run.ID.String(), models.RunStatusFailed)
	if err != nil {
		return errors.DatabaseError("failed to mark placement run failed", err)
	}
	return nil
}

// GetRun loads a run and its states in acceptance order
func (r *TraceRepository) GetRun(ctx context.Context, id core.RunID) (*ports.StoredRun, error) {
	var rec models.RunRecord
	err := r.db.GetContext(ctx, &rec, `
		SELECT id, dataset, dataset_hash, config, header_length, candidate_size, status, verbose_evaluations, created_at, completed_at
		FROM placement_runs
		WHERE id = $1
	`, id.String())
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", core.ErrRunNotFound, id)
	}
	if err != nil {
		return nil, errors.DatabaseError("failed to load placement run", err)
	}
	return r.withStates(ctx, rec)
}

// ListRuns returns the most recent runs, newest first
func (r *TraceRepository) ListRuns(ctx context.Context, limit int) ([]*ports.StoredRun, error) {
	query := `
		SELECT id, dataset, dataset_hash, config, header_length, candidate_size, status, verbose_evaluations, created_at, completed_at
		FROM placement_runs
		ORDER BY created_at DESC
	`
	args := []interface{}{}
	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}

	var recs []models.RunRecord
	if err := r.db.SelectContext(ctx, &recs, query, args...); err != nil {
		return nil, errors.DatabaseError("failed to list placement runs", err)
	}

	runs := make([]*ports.StoredRun, 0, len(recs))
	for _, rec := range recs {
		run, err := r.withStates(ctx, rec)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, nil
}

func (r *TraceRepository) withStates(ctx context.Context, rec models.RunRecord) (*ports.StoredRun, error) {
	var states []models.StateRecord
	err := r.db.SelectContext(ctx, &states, `
		SELECT run_id, seq, step, phase, move, state_hash, variables, score, formula, coefficients
		FROM placement_states
		WHERE run_id = $1
		ORDER BY seq
	`, rec.ID)
	if err != nil {
		return nil, errors.DatabaseError("failed to load placement states", err)
	}

	trace := make(placement.SearchTrace, len(states))
	for i, s := range states {
		trace[i] = s.Entry()
	}
	return &ports.StoredRun{Info: rec.Info(), Trace: trace}, nil
}
