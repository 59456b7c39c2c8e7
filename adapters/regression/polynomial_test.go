package regression

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"testing"

	"pmuplace/domain/core"
	"pmuplace/domain/dataset"
	"pmuplace/domain/placement"
	"pmuplace/internal/search"
)

func table(t *testing.T, columns map[string][]float64, headers ...string) *dataset.Table {
	t.Helper()
	tbl, err := dataset.NewTable("test", headers, columns)
	if err != nil {
		t.Fatalf("NewTable: %v", err)
	}
	return tbl
}

func TestFit_ExactQuadraticRecoversCoefficients(t *testing.T) {
	n := 30
	x := make([]float64, n)
	y := make([]float64, n)
	for i := range x {
		x[i] = float64(i)/3 - 4
		y[i] = 2 + 3*x[i] - 0.5*x[i]*x[i]
	}
	oracle := NewPolynomialOracle(table(t, map[string][]float64{"Y": y, "X1": x}, "Y", "X1"))

	fit, err := oracle.Fit(context.Background(), "Y", placement.Variables("X1"), 2)
	if err != nil {
		t.Fatalf("Fit: %v", err)
	}
	if math.Abs(fit.Score-1) > 1e-9 {
		t.Errorf("expected R² = 1, got %v", fit.Score)
	}
	want := []float64{2, 3, -0.5}
	if len(fit.Coefficients) != len(want) {
		t.Fatalf("expected %d coefficients, got %d", len(want), len(fit.Coefficients))
	}
	for i, w := range want {
		if math.Abs(fit.Coefficients[i]-w) > 1e-8 {
			t.Errorf("coefficient %d: expected %v, got %v", i, w, fit.Coefficients[i])
		}
	}
	if fit.Formula != "Y ~ poly(X1, 2, raw = TRUE)" {
		t.Errorf("unexpected formula %q", fit.Formula)
	}
}

func TestFit_InformativePredictorRaisesScore(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	n := 200
	cols := map[string][]float64{"Y": make([]float64, n), "X1": make([]float64, n), "X2": make([]float64, n)}
	for i := 0; i < n; i++ {
		a, b := rng.NormFloat64(), rng.NormFloat64()
		cols["X1"][i] = a
		cols["X2"][i] = b
		cols["Y"][i] = a + 0.8*b*b + 0.1*rng.NormFloat64()
	}
	oracle := NewPolynomialOracle(table(t, cols, "Y", "X1", "X2"))
	ctx := context.Background()

	one, err := oracle.Fit(ctx, "Y", placement.Variables("X1"), 2)
	if err != nil {
		t.Fatal(err)
	}
	both, err := oracle.Fit(ctx, "Y", placement.Variables("X1", "X2"), 2)
	if err != nil {
		t.Fatal(err)
	}
	if one.Score <= 0 || one.Score >= 1 {
		t.Errorf("single predictor R² should be in (0,1), got %v", one.Score)
	}
	if both.Score <= one.Score {
		t.Errorf("adding X2 should raise R²: %v -> %v", one.Score, both.Score)
	}
	if len(both.Coefficients) != 5 {
		t.Errorf("expected intercept + 2x2 coefficients, got %d", len(both.Coefficients))
	}
}

func TestFit_UnidentifiableModelsAreFitErrors(t *testing.T) {
	n := 20
	cols := map[string][]float64{
		"Y": make([]float64, n), "X1": make([]float64, n), "X2": make([]float64, n), "K": make([]float64, n),
	}
	for i := 0; i < n; i++ {
		cols["X1"][i] = float64(i)
		cols["X2"][i] = 2 * float64(i)
		cols["Y"][i] = float64(i*i) + 1
		cols["K"][i] = 5
	}
	oracle := NewPolynomialOracle(table(t, cols, "Y", "X1", "X2", "K"))
	ctx := context.Background()

	cases := []struct {
		name       string
		target     placement.Variable
		predictors []placement.Variable
		degree     int
	}{
		{"collinear", "Y", placement.Variables("X1", "X2"), 1},
		{"constant predictor", "Y", placement.Variables("K"), 1},
		{"constant target", "K", placement.Variables("X1"), 1},
		{"too few rows", "Y", placement.Variables("X1"), 19},
		{"repeated predictor", "Y", placement.Variables("X1", "X1"), 1},
		{"no predictors", "Y", nil, 1},
		{"zero degree", "Y", placement.Variables("X1"), 0},
		{"missing column", "Y", placement.Variables("X9"), 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := oracle.Fit(ctx, tc.target, tc.predictors, tc.degree)
			if !errors.Is(err, search.ErrFit) {
				t.Fatalf("expected ErrFit, got %v", err)
			}
		})
	}

	_, err := oracle.Fit(ctx, "Y", placement.Variables("X9"), 1)
	if !errors.Is(err, core.ErrColumnMissing) {
		t.Errorf("missing column should keep its cause, got %v", err)
	}
}

func TestFit_HonoursCancelledContext(t *testing.T) {
	oracle := NewPolynomialOracle(table(t, map[string][]float64{"Y": {1, 2, 3}, "X1": {1, 2, 4}}, "Y", "X1"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := oracle.Fit(ctx, "Y", placement.Variables("X1"), 1); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestRecorder_LogsSelectorFitsInTrialOrder(t *testing.T) {
	n := 40
	rng := rand.New(rand.NewSource(7))
	cols := map[string][]float64{"Y": make([]float64, n)}
	names := []string{"X1", "X2", "X3", "X4", "X5", "X6"}
	for _, name := range names {
		cols[name] = make([]float64, n)
		for i := range cols[name] {
			cols[name][i] = rng.NormFloat64()
		}
	}
	for i := range cols["Y"] {
		cols["Y"][i] = cols["X3"][i] + 0.1*rng.NormFloat64()
	}
	tbl := table(t, cols, append([]string{"Y"}, names...)...)
	pool := search.NewVariablePool("Y", placement.Variables(names...), nil)
	cfg := placement.Config{TargetVariable: "Y", MaxPlacements: 3, PolynomialDegree: 1}

	run := func() []placement.VerboseRow {
		rec := NewRecorder(NewPolynomialOracle(tbl))
		sel := search.NewSelector(rec, 4, nil)
		first, _, err := sel.AddBestPMU(context.Background(), pool, cfg, placement.PlacementSet{})
		if err != nil {
			t.Fatal(err)
		}
		if _, _, err := sel.AddBestPMU(context.Background(), pool, cfg, first); err != nil {
			t.Fatal(err)
		}
		return rec.Rows()
	}

	want := run()
	if len(want) != 6+5 {
		t.Fatalf("expected 11 logged fits, got %d", len(want))
	}
	for i, name := range names {
		if got := want[i].Predictors; len(got) != 1 || string(got[0]) != name {
			t.Fatalf("row %d should be the %s trial, got %v", i, name, got)
		}
	}
	for attempt := 0; attempt < 10; attempt++ {
		got := run()
		for i := range want {
			if got[i].Formula != want[i].Formula || got[i].Score != want[i].Score {
				t.Fatalf("attempt %d row %d differs: %+v vs %+v", attempt, i, got[i], want[i])
			}
		}
	}

	rec := NewRecorder(NewPolynomialOracle(tbl))
	if _, err := rec.Fit(context.Background(), "Y", placement.Variables("X1"), 2); err != nil {
		t.Fatal(err)
	}
	if len(rec.Rows()) != 0 {
		t.Error("direct fits are not logged")
	}
	rec.RecordFits(want[:2])
	rec.Reset()
	if len(rec.Rows()) != 0 {
		t.Error("Reset should drop rows")
	}
}

func TestFormula(t *testing.T) {
	got := Formula("angDiff", placement.Variables("X1", "X7"), 3)
	want := "angDiff ~ poly(X1, 3, raw = TRUE) + poly(X7, 3, raw = TRUE)"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}
