package excel

import (
	"encoding/csv"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"pmuplace/domain/core"
	"pmuplace/domain/dataset"

	"github.com/xuri/excelize/v2"
)

// DataReader reads numeric tables from CSV or XLSX files. The first row holds
// the column headers; every other cell must parse as a float.
type DataReader struct {
	sheet string
}

// NewDataReader creates a reader. XLSX files are read from the first sheet
// unless WithSheet is used.
func NewDataReader() *DataReader {
	return &DataReader{}
}

// WithSheet selects the XLSX sheet to read
func (r *DataReader) WithSheet(name string) *DataReader {
	r.sheet = name
	return r
}

// FileType returns "csv" or "xlsx" for supported extensions, "" otherwise
func FileType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return "csv"
	case ".xlsx":
		return "xlsx"
	default:
		return ""
	}
}

// ReadTable reads a dataset file into a table named after the file
func (r *DataReader) ReadTable(path string) (*dataset.Table, error) {
	fileType := FileType(path)
	log.Printf("[DataReader] Starting to read %s file: %s", fileType, path)

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", core.ErrNotFound, path)
	}

	var rows [][]string
	var err error
	start := time.Now()
	switch fileType {
	case "csv":
		rows, err = r.readCSVRows(path)
	case "xlsx":
		rows, err = r.readExcelRows(path)
	default:
		return nil, fmt.Errorf("%w: %s", core.ErrUnsupportedFile, path)
	}
	if err != nil {
		return nil, err
	}
	log.Printf("[DataReader] %s read in %.2fms (%d rows)", filepath.Base(path), float64(time.Since(start).Nanoseconds())/1e6, len(rows))

	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return processRows(name, rows)
}

func (r *DataReader) readExcelRows(path string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel file: %w", err)
	}
	defer f.Close()

	sheet := r.sheet
	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, fmt.Errorf("%w: workbook %s has no sheets", core.ErrInsufficientData, path)
		}
		sheet = sheets[0]
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %s: %w", sheet, err)
	}
	return rows, nil
}

func (r *DataReader) readCSVRows(path string) ([][]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.TrimLeadingSpace = true
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV file: %w", err)
	}
	return rows, nil
}

// processRows converts raw string rows into a numeric column-major table
func processRows(name string, rows [][]string) (*dataset.Table, error) {
	if len(rows) < 2 {
		return nil, fmt.Errorf("%w: need a header row and at least one data row", core.ErrInsufficientData)
	}

	headers := make([]string, len(rows[0]))
	columns := make(map[string][]float64, len(headers))
	for i, h := range rows[0] {
		h = strings.TrimSpace(h)
		if h == "" {
			return nil, fmt.Errorf("column %d has an empty header", i+1)
		}
		if _, dup := columns[h]; dup {
			return nil, fmt.Errorf("duplicate column header %q", h)
		}
		headers[i] = h
		columns[h] = make([]float64, 0, len(rows)-1)
	}

	for i, row := range rows[1:] {
		if isBlank(row) {
			continue
		}
		if len(row) < len(headers) {
			return nil, fmt.Errorf("row %d has %d cells, expected %d", i+2, len(row), len(headers))
		}
		for j, h := range headers {
			cell := strings.TrimSpace(row[j])
			v, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				return nil, core.NewNonNumericError(h, i+2, cell)
			}
			columns[h] = append(columns[h], v)
		}
	}

	log.Printf("[DataReader] %s processed (%d columns, %d rows)", name, len(headers), len(columns[headers[0]]))
	return dataset.NewTable(name, headers, columns)
}

func isBlank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
