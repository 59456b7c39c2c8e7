package testkit

import (
	"context"
	"errors"
	"sync"

	"pmuplace/domain/placement"
	"pmuplace/ports"
)

// RecordingSink implements TraceSink by keeping every call in memory. FailOn
// makes the named call ("begin", "append" or "close") return an error.
type RecordingSink struct {
	mu      sync.Mutex
	Runs    []ports.RunInfo
	Batches [][]placement.TraceEntry
	Verbose []placement.VerboseRow
	Closed  int
	Aborted []error
	FailOn  string
}

// ErrSinkFailure is returned by a RecordingSink configured to fail
var ErrSinkFailure = errors.New("recording sink failure")

var (
	_ ports.TraceSink    = (*RecordingSink)(nil)
	_ ports.TraceAborter = (*RecordingSink)(nil)
)

func (s *RecordingSink) Begin(ctx context.Context, run ports.RunInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailOn == "begin" {
		return ErrSinkFailure
	}
	s.Runs = append(s.Runs, run)
	return nil
}

func (s *RecordingSink) Append(ctx context.Context, entries []placement.TraceEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailOn == "append" {
		return ErrSinkFailure
	}
	batch := make([]placement.TraceEntry, len(entries))
	copy(batch, entries)
	s.Batches = append(s.Batches, batch)
	return nil
}

func (s *RecordingSink) Close(ctx context.Context, verbose []placement.VerboseRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailOn == "close" {
		return ErrSinkFailure
	}
	s.Verbose = append(s.Verbose, verbose...)
	s.Closed++
	return nil
}

func (s *RecordingSink) Abort(ctx context.Context, cause error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Aborted = append(s.Aborted, cause)
	return nil
}

// Entries flattens every appended batch
func (s *RecordingSink) Entries() []placement.TraceEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []placement.TraceEntry
	for _, b := range s.Batches {
		out = append(out, b...)
	}
	return out
}
