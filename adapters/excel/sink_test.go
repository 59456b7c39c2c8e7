package excel

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"pmuplace/domain/placement"
	"pmuplace/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func sampleRun() ports.RunInfo {
	return ports.RunInfo{
		Dataset: "ieee14",
		Config: placement.Config{
			TargetVariable:    "angDiff",
			MaxPlacements:     3,
			ExcludedVariables: placement.Variables("B7"),
			PolynomialDegree:  2,
			Parsimonious:      true,
		},
		HeaderLength:  3,
		CandidateSize: 5,
	}
}

func sampleEntries() []placement.TraceEntry {
	return []placement.TraceEntry{
		{
			Step:      1,
			Placement: placement.PlacementSet{Variables: placement.Variables("B3"), Score: 0.5, Scored: true},
			Fit:       placement.FitResult{Score: 0.5, Formula: "angDiff ~ poly(B3, 2, raw = TRUE)", Coefficients: []float64{1, 2, 3}},
		},
		{
			Step:      2,
			Placement: placement.PlacementSet{Variables: placement.Variables("B3", "B1"), Score: 0.75, Scored: true},
			Fit:       placement.FitResult{Score: 0.75, Formula: "f2", Coefficients: []float64{1, 2, 3, 4, 5}},
		},
	}
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	require.NoError(t, err)
	return rows
}

func TestBaseName(t *testing.T) {
	run := sampleRun()
	assert.Equal(t, "ieee14_angDiff Very Parsimonius Table - degree 2 Busses B7 Excluded", BaseName(run, OutputTable))
	assert.Equal(t, "ieee14_angDiff Coeff for Very Parsimonius Table - degree 2 Busses B7 Excluded", BaseName(run, MetaDataTable))
	assert.Equal(t, "ieee14_angDiff Verbose Parsimonius Table - degree 2 Busses B7 Excluded", BaseName(run, VerboseTable))

	run.Config.Parsimonious = false
	run.Config.ExcludedVariables = nil
	assert.Equal(t, "ieee14_angDiff Parsimonius Table - degree 2", BaseName(run, OutputTable))
}

func TestCSVSink_WritesAllTables(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	sink := NewCSVSink(dir, Options{MetaData: true, Verbose: true})

	require.NoError(t, sink.Begin(ctx, sampleRun()))
	entries := sampleEntries()
	require.NoError(t, sink.Append(ctx, entries[:1]))
	require.NoError(t, sink.Append(ctx, entries[1:]))
	require.NoError(t, sink.Close(ctx, []placement.VerboseRow{
		{Score: 0.25, Formula: "f", Predictors: placement.Variables("B2"), Coefficients: []float64{0, 1, 2}},
	}))

	out := sink.Path(OutputTable)
	assert.Equal(t, filepath.Join(dir, "Output", BaseName(sampleRun(), OutputTable)+".csv"), out)
	assert.Equal(t, [][]string{
		{"Res^2", "B1", "B2", "B3"},
		{"0.5", "B3", "-", "-"},
		{"0.75", "B3", "B1", "-"},
	}, readCSV(t, out))

	meta := readCSV(t, sink.Path(MetaDataTable))
	assert.Equal(t, []string{"Formula", "Intercept", "x^1", "x^2"}, meta[0])
	assert.Equal(t, []string{"angDiff ~ poly(B3, 2, raw = TRUE)", "1", "2", "3"}, meta[1])
	assert.Len(t, meta, 3)

	verbose := readCSV(t, sink.Path(VerboseTable))
	assert.Equal(t, [][]string{{"0.25", "f", "B2", "0", "1", "2"}}, verbose)
}

func TestCSVSink_BeginTruncates(t *testing.T) {
	ctx := context.Background()
	sink := NewCSVSink(t.TempDir(), Options{})

	require.NoError(t, sink.Begin(ctx, sampleRun()))
	require.NoError(t, sink.Append(ctx, sampleEntries()))
	require.NoError(t, sink.Begin(ctx, sampleRun()))

	assert.Len(t, readCSV(t, sink.Path(OutputTable)), 1)
	assert.Empty(t, sink.Path(MetaDataTable))
	require.NoError(t, sink.Close(ctx, nil))
}

func TestCSVSink_AppendBeforeBegin(t *testing.T) {
	err := NewCSVSink(t.TempDir(), Options{}).Append(context.Background(), sampleEntries())
	assert.Error(t, err)
}

func TestXLSXSink_WritesSheets(t *testing.T) {
	ctx := context.Background()
	sink := NewXLSXSink(t.TempDir(), Options{MetaData: true, Verbose: true})

	require.NoError(t, sink.Begin(ctx, sampleRun()))
	require.NoError(t, sink.Append(ctx, sampleEntries()))
	require.NoError(t, sink.Close(ctx, []placement.VerboseRow{
		{Score: 0.25, Formula: "f", Predictors: placement.Variables("B2"), Coefficients: []float64{0, 1, 2}},
	}))

	f, err := excelize.OpenFile(sink.Path())
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(OutputTable)
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		{"Res^2", "B1", "B2", "B3"},
		{"0.5", "B3", "-", "-"},
		{"0.75", "B3", "B1", "-"},
	}, rows)

	meta, err := f.GetRows(MetaDataTable)
	require.NoError(t, err)
	assert.Equal(t, []string{"f2", "1", "2", "3", "4", "5"}, meta[2])

	verbose, err := f.GetRows(VerboseTable)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"0.25", "f", "B2", "0", "1", "2"}}, verbose)

	for _, c := range []struct{ sheet, cell string }{{OutputTable, "A2"}, {MetaDataTable, "B2"}, {VerboseTable, "A1"}, {VerboseTable, "D1"}} {
		typ, err := f.GetCellType(c.sheet, c.cell)
		require.NoError(t, err)
		assert.Equal(t, excelize.CellTypeUnset, typ, "%s!%s should be a number cell", c.sheet, c.cell)
	}
	typ, err := f.GetCellType(OutputTable, "B2")
	require.NoError(t, err)
	assert.Equal(t, excelize.CellTypeSharedString, typ)
}

func TestXLSXSink_AbortKeepsWrittenRows(t *testing.T) {
	ctx := context.Background()
	sink := NewXLSXSink(t.TempDir(), Options{})

	require.NoError(t, sink.Begin(ctx, sampleRun()))
	require.NoError(t, sink.Append(ctx, sampleEntries()[:1]))
	require.NoError(t, sink.Abort(ctx, assert.AnError))
	assert.Error(t, sink.Append(ctx, sampleEntries()[1:]), "an aborted sink needs a new Begin")

	f, err := excelize.OpenFile(sink.Path())
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(OutputTable)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}
