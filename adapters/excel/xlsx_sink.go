package excel

import (
	"context"
	"log"
	"os"
	"path/filepath"

	"pmuplace/domain/placement"
	"pmuplace/internal/errors"
	"pmuplace/ports"

	"github.com/xuri/excelize/v2"
)

// XLSXSink writes one workbook per run with Output, MetaData and
// VerboseOutput sheets. The workbook is saved after every Append.
type XLSXSink struct {
	dir  string
	opts Options
	run  ports.RunInfo
	file *excelize.File
	path string
	next map[string]int
}

// NewXLSXSink creates a sink writing workbooks into dir
func NewXLSXSink(dir string, opts Options) *XLSXSink {
	return &XLSXSink{dir: dir, opts: opts}
}

// Path returns the workbook path of the current run
func (s *XLSXSink) Path() string { return s.path }

// Begin creates the workbook and writes the sheet headers
func (s *XLSXSink) Begin(ctx context.Context, run ports.RunInfo) error {
	if s.file != nil {
		s.file.Close()
	}
	s.run = run
	s.path = filepath.Join(s.dir, BaseName(run, OutputTable)+".xlsx")
	s.file = excelize.NewFile()
	s.next = map[string]int{}

	if err := s.file.SetSheetName("Sheet1", OutputTable); err != nil {
		return errors.StorageError(s.path, err)
	}
	if err := s.writeRow(OutputTable, headerCells(PlacementHeader(run.HeaderLength))); err != nil {
		return err
	}
	if s.opts.MetaData {
		if _, err := s.file.NewSheet(MetaDataTable); err != nil {
			return errors.StorageError(s.path, err)
		}
		if err := s.writeRow(MetaDataTable, headerCells(MetaDataHeader(run.Config.PolynomialDegree))); err != nil {
			return err
		}
	}
	if s.opts.Verbose {
		if _, err := s.file.NewSheet(VerboseTable); err != nil {
			return errors.StorageError(s.path, err)
		}
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return errors.StorageError(s.path, err)
	}
	log.Printf("[XLSXSink] writing to %s", s.path)
	return s.save()
}

// Append writes rows for newly accepted entries and saves the workbook
func (s *XLSXSink) Append(ctx context.Context, entries []placement.TraceEntry) error {
	if s.file == nil {
		return errors.InvalidInput("xlsx sink used before Begin")
	}
	width := len(PlacementHeader(s.run.HeaderLength))
	for _, e := range entries {
		if err := s.writeRow(OutputTable, PlacementCells(e, width)); err != nil {
			return err
		}
		if s.opts.MetaData {
			if err := s.writeRow(MetaDataTable, MetaDataCells(e)); err != nil {
				return err
			}
		}
	}
	return s.save()
}

// Close writes the verbose sheet, saves and releases the workbook
func (s *XLSXSink) Close(ctx context.Context, verbose []placement.VerboseRow) error {
	if s.file == nil {
		return nil
	}
	defer func() {
		s.file.Close()
		s.file = nil
	}()
	if s.opts.Verbose {
		for _, r := range verbose {
			if err := s.writeRow(VerboseTable, VerboseCells(r)); err != nil {
				return err
			}
		}
	}
	return s.save()
}

// Abort saves the rows written so far and releases the workbook
func (s *XLSXSink) Abort(ctx context.Context, cause error) error {
	if s.file == nil {
		return nil
	}
	defer func() {
		s.file.Close()
		s.file = nil
	}()
	log.Printf("[XLSXSink] run aborted, keeping %s: %v", s.path, cause)
	return s.save()
}

func (s *XLSXSink) writeRow(sheet string, row []interface{}) error {
	s.next[sheet]++
	cell, err := excelize.CoordinatesToCellName(1, s.next[sheet])
	if err != nil {
		return errors.StorageError(s.path, err)
	}
	if err := s.file.SetSheetRow(sheet, cell, &row); err != nil {
		return errors.StorageError(s.path, err)
	}
	return nil
}

func (s *XLSXSink) save() error {
	if err := s.file.SaveAs(s.path); err != nil {
		return errors.StorageError(s.path, err)
	}
	return nil
}
