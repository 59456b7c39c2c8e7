package models

import (
	"time"

	"pmuplace/domain/core"
	"pmuplace/domain/placement"
	"pmuplace/ports"
)

// RunStatus is the lifecycle state of a stored run
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// RunRecord is a row of placement_runs
type RunRecord struct {
	ID                 string                  `db:"id"`
	Dataset            string                  `db:"dataset"`
	DatasetHash        string                  `db:"dataset_hash"`
	Config             JSONB[placement.Config] `db:"config"`
	HeaderLength       int                     `db:"header_length"`
	CandidateSize      int                     `db:"candidate_size"`
	Status             RunStatus               `db:"status"`
	VerboseEvaluations int                     `db:"verbose_evaluations"`
	CreatedAt          time.Time               `db:"created_at"`
	CompletedAt        *time.Time              `db:"completed_at"`
}

// NewRunRecord converts run info into a row
func NewRunRecord(run ports.RunInfo) RunRecord {
	return RunRecord{
		ID:            run.ID.String(),
		Dataset:       run.Dataset,
		DatasetHash:   run.DatasetHash.String(),
		Config:        NewJSONB(run.Config),
		HeaderLength:  run.HeaderLength,
		CandidateSize: run.CandidateSize,
		Status:        RunStatusRunning,
		CreatedAt:     time.Now(),
	}
}

// Info converts the row back into run info
func (r RunRecord) Info() ports.RunInfo {
	return ports.RunInfo{
		ID:            core.RunID(r.ID),
		Dataset:       r.Dataset,
		DatasetHash:   core.Hash(r.DatasetHash),
		Config:        r.Config.V,
		HeaderLength:  r.HeaderLength,
		CandidateSize: r.CandidateSize,
	}
}

// StateRecord is a row of placement_states, one per accepted state
type StateRecord struct {
	RunID        string                      `db:"run_id"`
	Seq          int                         `db:"seq"`
	Step         int                         `db:"step"`
	Phase        string                      `db:"phase"`
	Move         string                      `db:"move"`
	StateHash    int64                       `db:"state_hash"`
	Variables    JSONB[[]placement.Variable] `db:"variables"`
	Score        float64                     `db:"score"`
	Formula      string                      `db:"formula"`
	Coefficients JSONB[[]float64]            `db:"coefficients"`
}

// NewStateRecord converts a trace entry into a row. The state hash is the
// key fingerprint reinterpreted as a signed BIGINT.
func NewStateRecord(runID core.RunID, seq int, e placement.TraceEntry) StateRecord {
	return StateRecord{
		RunID:        runID.String(),
		Seq:          seq,
		Step:         e.Step,
		Phase:        string(e.Phase),
		Move:         string(e.Move),
		StateHash:    int64(e.Key().Fingerprint()),
		Variables:    NewJSONB(e.Placement.Variables),
		Score:        e.Placement.Score,
		Formula:      e.Fit.Formula,
		Coefficients: NewJSONB(e.Fit.Coefficients),
	}
}

// Entry converts the row back into a trace entry
func (s StateRecord) Entry() placement.TraceEntry {
	return placement.TraceEntry{
		Step:  s.Step,
		Phase: placement.Phase(s.Phase),
		Move:  placement.Move(s.Move),
		Placement: placement.PlacementSet{
			Variables: s.Variables.V,
			Score:     s.Score,
			Scored:    true,
		},
		Fit: placement.FitResult{
			Score:        s.Score,
			Formula:      s.Formula,
			Coefficients: s.Coefficients.V,
		},
	}
}
