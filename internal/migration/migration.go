package migration

import (
	"context"

	"pmuplace/internal/errors"

	"github.com/jmoiron/sqlx"
)

// Migrator defines the interface for database migration operations
type Migrator interface {
	Run(ctx context.Context, db *sqlx.DB) error
	Version() string
}

// MigrationRunner handles database schema migrations
type MigrationRunner struct {
	version string
}

// NewRunner creates a new migration runner
func NewRunner() *MigrationRunner {
	return &MigrationRunner{
		version: "1.0.0",
	}
}

var _ Migrator = (*MigrationRunner)(nil)

// Version returns the migration version
func (r *MigrationRunner) Version() string {
	return r.version
}

// Statements returns the DDL executed by Run, in order
func (r *MigrationRunner) Statements() []string {
	return []string{
		createRunsTable,
		createStatesTable,
		createIndexes,
	}
}

// Run executes all database migrations in the correct order
func (r *MigrationRunner) Run(ctx context.Context, db *sqlx.DB) error {
	names := []string{"placement_runs table", "placement_states table", "indexes"}
	for i, stmt := range r.Statements() {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return errors.Wrapf(err, "failed to create %s", names[i])
		}
	}
	return nil
}

const createRunsTable = `
	CREATE TABLE IF NOT EXISTS placement_runs (
		id UUID PRIMARY KEY,
		dataset VARCHAR(255) NOT NULL,
		dataset_hash VARCHAR(64),
		config JSONB NOT NULL,
		header_length INTEGER NOT NULL,
		candidate_size INTEGER NOT NULL,
		status VARCHAR(20) NOT NULL DEFAULT 'running',
		verbose_evaluations INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
		completed_at TIMESTAMP WITH TIME ZONE
	)
`

const createStatesTable = `
	CREATE TABLE IF NOT EXISTS placement_states (
		run_id UUID NOT NULL REFERENCES placement_runs(id) ON DELETE CASCADE,
		seq INTEGER NOT NULL,
		step INTEGER NOT NULL,
		phase VARCHAR(20) NOT NULL,
		move VARCHAR(10) NOT NULL,
		state_hash BIGINT NOT NULL,
		variables JSONB NOT NULL,
		score DOUBLE PRECISION NOT NULL,
		formula TEXT NOT NULL,
		coefficients JSONB,
		PRIMARY KEY (run_id, seq),
		UNIQUE (run_id, state_hash)
	)
`

const createIndexes = `
	CREATE INDEX IF NOT EXISTS idx_placement_runs_dataset ON placement_runs(dataset);
	CREATE INDEX IF NOT EXISTS idx_placement_runs_created_at ON placement_runs(created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_placement_states_score ON placement_states(run_id, score DESC);
`
