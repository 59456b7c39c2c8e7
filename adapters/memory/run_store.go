package memory

import (
	"context"
	"fmt"
	"sync"

	"pmuplace/domain/core"
	"pmuplace/domain/placement"
	"pmuplace/ports"
)

// RunStore keeps runs and their traces in memory. It serves the API when no
// database is configured.
type RunStore struct {
	runs  map[core.RunID]*ports.StoredRun
	order []core.RunID
	mu    sync.RWMutex
}

var _ ports.RunRepository = (*RunStore)(nil)

func NewRunStore() *RunStore {
	return &RunStore{runs: make(map[core.RunID]*ports.StoredRun)}
}

// Sink returns a trace sink writing one run into the store
func (s *RunStore) Sink() ports.TraceSink {
	return &storeSink{store: s}
}

func (s *RunStore) begin(run ports.RunInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.runs[run.ID]; !exists {
		s.order = append(s.order, run.ID)
	}
	s.runs[run.ID] = &ports.StoredRun{Info: run}
}

func (s *RunStore) append(id core.RunID, entries []placement.TraceEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[id]
	if !ok {
		return fmt.Errorf("%w: %s", core.ErrRunNotFound, id)
	}
	run.Trace = append(run.Trace, entries...)
	return nil
}

func (s *RunStore) GetRun(ctx context.Context, id core.RunID) (*ports.StoredRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrRunNotFound, id)
	}
	return cloneRun(run), nil
}

// ListRuns returns runs newest first
func (s *RunStore) ListRuns(ctx context.Context, limit int) ([]*ports.StoredRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]core.RunID, len(s.order))
	copy(ids, s.order)
	for i, j := 0, len(ids)-1; i < j; i, j = i+1, j-1 {
		ids[i], ids[j] = ids[j], ids[i]
	}

	var out []*ports.StoredRun
	for _, id := range ids {
		out = append(out, cloneRun(s.runs[id]))
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func cloneRun(run *ports.StoredRun) *ports.StoredRun {
	trace := make(placement.SearchTrace, len(run.Trace))
	copy(trace, run.Trace)
	return &ports.StoredRun{Info: run.Info, Trace: trace}
}

type storeSink struct {
	store *RunStore
	id    core.RunID
}

func (k *storeSink) Begin(ctx context.Context, run ports.RunInfo) error {
	if run.ID == "" {
		return fmt.Errorf("run has no ID")
	}
	k.id = run.ID
	k.store.begin(run)
	return nil
}

func (k *storeSink) Append(ctx context.Context, entries []placement.TraceEntry) error {
	return k.store.append(k.id, entries)
}

func (k *storeSink) Close(ctx context.Context, verbose []placement.VerboseRow) error {
	return nil
}
