package app

import (
	"context"
	stderrors "errors"

	"pmuplace/domain/placement"
	"pmuplace/ports"
)

// MultiSink fans every call out to several sinks in order. Begin and Append
// stop at the first failure; Close and Abort run every sink and join the
// errors.
type MultiSink []ports.TraceSink

var (
	_ ports.TraceSink    = MultiSink(nil)
	_ ports.TraceAborter = MultiSink(nil)
)

func (m MultiSink) Begin(ctx context.Context, run ports.RunInfo) error {
	for _, s := range m {
		if err := s.Begin(ctx, run); err != nil {
			return err
		}
	}
	return nil
}

func (m MultiSink) Append(ctx context.Context, entries []placement.TraceEntry) error {
	for _, s := range m {
		if err := s.Append(ctx, entries); err != nil {
			return err
		}
	}
	return nil
}

func (m MultiSink) Close(ctx context.Context, verbose []placement.VerboseRow) error {
	var errs []error
	for _, s := range m {
		if err := s.Close(ctx, verbose); err != nil {
			errs = append(errs, err)
		}
	}
	return stderrors.Join(errs...)
}

// Abort forwards to every sink implementing ports.TraceAborter
func (m MultiSink) Abort(ctx context.Context, cause error) error {
	var errs []error
	for _, s := range m {
		a, ok := s.(ports.TraceAborter)
		if !ok {
			continue
		}
		if err := a.Abort(ctx, cause); err != nil {
			errs = append(errs, err)
		}
	}
	return stderrors.Join(errs...)
}
