package excel

import (
	"context"
	"encoding/csv"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"pmuplace/domain/placement"
	"pmuplace/internal/errors"
	"pmuplace/ports"
)

// CSVSink writes the placement, metadata and verbose tables as CSV files
// under Output/, MetaData/ and VerboseOutput/ of a root directory. Rows are
// appended as they arrive so an interrupted run keeps every completed step.
type CSVSink struct {
	dir   string
	opts  Options
	run   ports.RunInfo
	paths map[string]string
}

// NewCSVSink creates a sink rooted at dir
func NewCSVSink(dir string, opts Options) *CSVSink {
	return &CSVSink{dir: dir, opts: opts}
}

// Path returns the file a table is written to for the current run
func (s *CSVSink) Path(table string) string {
	return s.paths[table]
}

// Begin creates (or truncates) the run's files and writes their headers
func (s *CSVSink) Begin(ctx context.Context, run ports.RunInfo) error {
	s.run = run
	s.paths = map[string]string{}

	tables := map[string][]string{OutputTable: PlacementHeader(run.HeaderLength)}
	if s.opts.MetaData {
		tables[MetaDataTable] = MetaDataHeader(run.Config.PolynomialDegree)
	}
	if s.opts.Verbose {
		tables[VerboseTable] = nil
	}

	for table, header := range tables {
		path := filepath.Join(s.dir, table, BaseName(run, table)+".csv")
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return errors.StorageError(path, err)
		}
		if err := writeCSV(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, headerRows(header)); err != nil {
			return err
		}
		s.paths[table] = path
	}
	log.Printf("[CSVSink] writing to %s", s.paths[OutputTable])
	return nil
}

// Append adds rows for newly accepted entries
func (s *CSVSink) Append(ctx context.Context, entries []placement.TraceEntry) error {
	if s.paths == nil {
		return errors.InvalidInput("csv sink used before Begin")
	}
	width := len(PlacementHeader(s.run.HeaderLength))
	rows := make([][]string, len(entries))
	meta := make([][]string, len(entries))
	for i, e := range entries {
		rows[i] = PlacementRow(e, width)
		meta[i] = MetaDataRow(e)
	}
	if err := s.appendTo(OutputTable, rows); err != nil {
		return err
	}
	if s.opts.MetaData {
		return s.appendTo(MetaDataTable, meta)
	}
	return nil
}

// Close writes the verbose table
func (s *CSVSink) Close(ctx context.Context, verbose []placement.VerboseRow) error {
	if !s.opts.Verbose || s.paths == nil {
		return nil
	}
	rows := make([][]string, len(verbose))
	for i, r := range verbose {
		rows[i] = VerboseRow(r)
	}
	return s.appendTo(VerboseTable, rows)
}

func (s *CSVSink) appendTo(table string, rows [][]string) error {
	path, ok := s.paths[table]
	if !ok {
		return nil
	}
	return writeCSV(path, os.O_APPEND|os.O_WRONLY, rows)
}

func headerRows(header []string) [][]string {
	if header == nil {
		return nil
	}
	return [][]string{header}
}

func writeCSV(path string, flag int, rows [][]string) error {
	f, err := os.OpenFile(path, flag, 0o644)
	if err != nil {
		return errors.StorageError(path, err)
	}
	w := csv.NewWriter(f)
	if err := w.WriteAll(rows); err != nil {
		f.Close()
		return errors.StorageError(path, fmt.Errorf("write rows: %w", err))
	}
	if err := f.Close(); err != nil {
		return errors.StorageError(path, err)
	}
	return nil
}
