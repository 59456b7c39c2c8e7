package excel

import (
	"fmt"
	"strconv"
	"strings"

	"pmuplace/domain/placement"
	"pmuplace/ports"
)

// Padding fills placement columns a state does not use
const Padding = "-"

// Output sub-directories (CSV) or sheet names (XLSX)
const (
	OutputTable   = "Output"
	MetaDataTable = "MetaData"
	VerboseTable  = "VerboseOutput"
)

// Options selects which tables a sink writes besides the placement table
type Options struct {
	MetaData bool
	Verbose  bool
}

// PlacementHeader is "Res^2, B1..Bn"
func PlacementHeader(n int) []string {
	header := make([]string, 0, n+1)
	header = append(header, "Res^2")
	for i := 1; i <= n; i++ {
		header = append(header, "B"+strconv.Itoa(i))
	}
	return header
}

// MetaDataHeader is "Formula, Intercept, x^1..x^d"
func MetaDataHeader(degree int) []string {
	header := []string{"Formula", "Intercept"}
	for i := 1; i <= degree; i++ {
		header = append(header, "x^"+strconv.Itoa(i))
	}
	return header
}

// PlacementCells are the cells of an entry padded to the header width.
// Scores stay float64, names and padding are strings.
func PlacementCells(e placement.TraceEntry, width int) []interface{} {
	row := make([]interface{}, 0, width)
	row = append(row, e.Placement.Score)
	for _, v := range e.Placement.Variables {
		row = append(row, string(v))
	}
	for len(row) < width {
		row = append(row, Padding)
	}
	return row
}

// MetaDataCells are the formula and coefficients of an entry
func MetaDataCells(e placement.TraceEntry) []interface{} {
	row := []interface{}{e.Fit.Formula}
	for _, c := range e.Fit.Coefficients {
		row = append(row, c)
	}
	return row
}

// VerboseCells are the cells of one oracle evaluation
func VerboseCells(r placement.VerboseRow) []interface{} {
	row := []interface{}{r.Score, r.Formula}
	for _, p := range r.Predictors {
		row = append(row, string(p))
	}
	for _, c := range r.Coefficients {
		row = append(row, c)
	}
	return row
}

// PlacementRow renders PlacementCells as text
func PlacementRow(e placement.TraceEntry, width int) []string {
	return text(PlacementCells(e, width))
}

// MetaDataRow renders MetaDataCells as text
func MetaDataRow(e placement.TraceEntry) []string {
	return text(MetaDataCells(e))
}

// VerboseRow renders VerboseCells as text
func VerboseRow(r placement.VerboseRow) []string {
	return text(VerboseCells(r))
}

func text(cells []interface{}) []string {
	row := make([]string, len(cells))
	for i, c := range cells {
		switch v := c.(type) {
		case float64:
			row[i] = formatFloat(v)
		default:
			row[i] = fmt.Sprint(v)
		}
	}
	return row
}

func headerCells(header []string) []interface{} {
	row := make([]interface{}, len(header))
	for i, h := range header {
		row[i] = h
	}
	return row
}

// BaseName builds the file stem for a run, e.g.
// "ieee14_angDiff Very Parsimonius Table - degree 3 Busses X1 X2 Excluded"
func BaseName(run ports.RunInfo, table string) string {
	mode := "Parsimonius Table"
	if run.Config.Parsimonious {
		mode = "Very Parsimonius Table"
	}
	switch table {
	case MetaDataTable:
		mode = "Coeff for " + mode
	case VerboseTable:
		mode = "Verbose Parsimonius Table"
	}

	var excluded string
	if len(run.Config.ExcludedVariables) > 0 {
		names := make([]string, len(run.Config.ExcludedVariables))
		for i, v := range run.Config.ExcludedVariables {
			names[i] = string(v)
		}
		excluded = " Busses " + strings.Join(names, " ") + " Excluded"
	}
	return fmt.Sprintf("%s_%s %s - degree %d%s", run.Dataset, run.Config.TargetVariable, mode, run.Config.PolynomialDegree, excluded)
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}
