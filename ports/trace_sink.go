package ports

import (
	"context"

	"pmuplace/domain/core"
	"pmuplace/domain/placement"
)

// RunInfo describes the search a sink is receiving entries for
type RunInfo struct {
	ID            core.RunID
	Dataset       string
	DatasetHash   core.Hash
	Config        placement.Config
	HeaderLength  int
	CandidateSize int
}

// TraceSink durably stores accepted states. Begin is called once per run,
// Append once per batch of newly accepted entries (the whole trace in batch
// mode, one step's entries in incremental mode), Close when the run ends.
type TraceSink interface {
	Begin(ctx context.Context, run RunInfo) error
	Append(ctx context.Context, entries []placement.TraceEntry) error
	Close(ctx context.Context, verbose []placement.VerboseRow) error
}

// TraceAborter is implemented by sinks that hold resources between Begin and
// Close. Abort releases them when a run fails before Close; a later Begin
// restarts the sink.
type TraceAborter interface {
	Abort(ctx context.Context, cause error) error
}

// RunRepository reads stored runs back
type RunRepository interface {
	GetRun(ctx context.Context, id core.RunID) (*StoredRun, error)
	ListRuns(ctx context.Context, limit int) ([]*StoredRun, error)
}

// StoredRun is a persisted run with its trace
type StoredRun struct {
	Info  RunInfo               `json:"info"`
	Trace placement.SearchTrace `json:"trace"`
}
