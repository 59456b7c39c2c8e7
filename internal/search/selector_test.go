package search

import (
	"context"
	"errors"
	"testing"

	"pmuplace/domain/placement"
	"pmuplace/internal"
)

var quiet = internal.NewLogger(internal.LogLevelError)

func scenarioOracle() *tableOracle {
	return newTableOracle(map[string]float64{
		"A":   0.9,
		"B":   0.5,
		"C":   0.8,
		"D":   0.1,
		"E":   0.2,
		"A,B": 0.92,
		"A,C": 0.95,
		"A,D": 0.91,
		"A,E": 0.90,
	})
}

func scenarioPool() *VariablePool {
	return NewVariablePool("Y", varsOf("A,B,C,D,E"), nil)
}

func TestAddBestPMU_SelectsHighestScore(t *testing.T) {
	oracle := scenarioOracle()
	sel := NewSelector(oracle, 1, quiet)
	cfg := placement.Config{TargetVariable: "Y", MaxPlacements: 2, PolynomialDegree: 1}
	ctx := context.Background()

	first, fit, err := sel.AddBestPMU(ctx, scenarioPool(), cfg, placement.PlacementSet{})
	if err != nil {
		t.Fatalf("first add: %v", err)
	}
	if first.Key() != keyOf("A") || first.Score != 0.9 || !first.Scored {
		t.Fatalf("expected {A} at 0.9, got %v at %v", first.Variables, first.Score)
	}
	if fit.Score != 0.9 {
		t.Errorf("fit score %v, expected 0.9", fit.Score)
	}

	before := oracle.callCount()
	second, _, err := sel.AddBestPMU(ctx, scenarioPool(), cfg, first)
	if err != nil {
		t.Fatalf("second add: %v", err)
	}
	if second.Key() != keyOf("A,C") || second.Score != 0.95 {
		t.Fatalf("expected {A,C} at 0.95, got %v at %v", second.Variables, second.Score)
	}
	if got := oracle.callCount() - before; got != 4 {
		t.Errorf("expected 4 trial fits from {A}, got %d", got)
	}
	for _, call := range oracle.calls[before:] {
		if call[0] != "A" || len(call) != 2 {
			t.Errorf("trial %v should extend [A] by one variable", call)
		}
	}
}

func TestAddBestPMU_TieBreaksDescendingLexicographic(t *testing.T) {
	oracle := newTableOracle(map[string]float64{"A": 0.3, "B": 0.7, "C": 0.1, "D": 0.7})
	sel := NewSelector(oracle, 1, quiet)
	cfg := placement.Config{TargetVariable: "Y", MaxPlacements: 1, PolynomialDegree: 1}
	pool := NewVariablePool("Y", varsOf("A,B,C,D"), nil)

	got, _, err := sel.AddBestPMU(context.Background(), pool, cfg, placement.PlacementSet{})
	if err != nil {
		t.Fatal(err)
	}
	if got.Key() != keyOf("D") {
		t.Errorf("tie between B and D should pick D, got %v", got.Variables)
	}
}

func TestAddBestPMU_SkipsExcludedAndFailedCandidates(t *testing.T) {
	oracle := newTableOracle(map[string]float64{"A": 0.2, "C": 0.4})
	oracle.fail = func(vars []placement.Variable) error {
		if vars[len(vars)-1] == "D" {
			return NewFitError(vars, errors.New("singular"))
		}
		return nil
	}
	oracle.scores[keyOf("D")] = 0.99
	sel := NewSelector(oracle, 1, quiet)
	cfg := placement.Config{TargetVariable: "Y", MaxPlacements: 1, PolynomialDegree: 1}
	pool := NewVariablePool("Y", varsOf("A,B,C,D"), varsOf("C"))

	got, _, err := sel.AddBestPMU(context.Background(), pool, cfg, placement.PlacementSet{})
	if err != nil {
		t.Fatal(err)
	}
	if got.Key() != keyOf("A") {
		t.Errorf("expected A (C excluded, D singular, B unknown), got %v", got.Variables)
	}
	for _, call := range oracle.calls {
		if call[0] == "C" {
			t.Errorf("excluded variable C was evaluated")
		}
	}
}

func TestAddBestPMU_AllFailuresIsNoViableCandidate(t *testing.T) {
	oracle := newTableOracle(nil)
	sel := NewSelector(oracle, 1, quiet)
	cfg := placement.Config{TargetVariable: "Y", MaxPlacements: 1, PolynomialDegree: 1}

	_, _, err := sel.AddBestPMU(context.Background(), scenarioPool(), cfg, placement.PlacementSet{})
	if !errors.Is(err, ErrNoViableCandidate) {
		t.Fatalf("expected ErrNoViableCandidate, got %v", err)
	}
	var nv *NoViableCandidateError
	if !errors.As(err, &nv) {
		t.Fatalf("expected *NoViableCandidateError, got %T", err)
	}
	if nv.Attempted != 5 || len(nv.Causes) != 5 || nv.Operation != placement.MoveAdd {
		t.Errorf("unexpected error detail: %+v", nv)
	}
	if errors.Is(err, ErrFit) {
		t.Errorf("step failure must not look like a single fit failure")
	}
}

func TestAddBestPMU_ExhaustedWhenNothingLeft(t *testing.T) {
	sel := NewSelector(scenarioOracle(), 1, quiet)
	cfg := placement.Config{TargetVariable: "Y", MaxPlacements: 2, PolynomialDegree: 1}
	pool := NewVariablePool("Y", varsOf("A,B"), varsOf("B"))
	current := placement.PlacementSet{Variables: varsOf("A"), Score: 0.9, Scored: true}

	got, _, err := sel.AddBestPMU(context.Background(), pool, cfg, current)
	if !errors.Is(err, ErrExhausted) {
		t.Fatalf("expected ErrExhausted, got %v", err)
	}
	if got.Key() != current.Key() {
		t.Errorf("exhausted add must leave the set unchanged")
	}
}

func TestRemoveWorstPMU_DropsLeastNecessary(t *testing.T) {
	oracle := newTableOracle(map[string]float64{
		"B,C": 0.60, // without A
		"A,C": 0.93, // without B: B contributes least
		"A,B": 0.80, // without C
	})
	sel := NewSelector(oracle, 1, quiet)
	cfg := placement.Config{TargetVariable: "Y", MaxPlacements: 3, PolynomialDegree: 1}
	current := placement.PlacementSet{Variables: varsOf("A,B,C"), Score: 0.95, Scored: true}

	got, _, err := sel.RemoveWorstPMU(context.Background(), scenarioPool(), cfg, current)
	if err != nil {
		t.Fatal(err)
	}
	if got.Key() != keyOf("A,C") || got.Score != 0.93 {
		t.Errorf("expected {A,C} at 0.93, got %v at %v", got.Variables, got.Score)
	}
	if got.Variables[0] != "A" || got.Variables[1] != "C" {
		t.Errorf("removal must preserve insertion order, got %v", got.Variables)
	}
}

func TestRemoveWorstPMU_RequiresTwoMembers(t *testing.T) {
	sel := NewSelector(scenarioOracle(), 1, quiet)
	cfg := placement.Config{TargetVariable: "Y", MaxPlacements: 3, PolynomialDegree: 1}
	current := placement.PlacementSet{Variables: varsOf("A"), Score: 0.9, Scored: true}

	if _, _, err := sel.RemoveWorstPMU(context.Background(), scenarioPool(), cfg, current); !errors.Is(err, ErrExhausted) {
		t.Errorf("expected ErrExhausted, got %v", err)
	}
}

func TestSelector_ParallelMatchesSequential(t *testing.T) {
	weights, names := busWeights(12)
	cfg := placement.Config{TargetVariable: "Y", MaxPlacements: 6, PolynomialDegree: 2}
	pool := NewVariablePool("Y", names, nil)
	current := placement.PlacementSet{Variables: names[3:6], Scored: true}

	seqOracle := newTableOracle(nil)
	seqOracle.score = additiveScore(weights, names)
	parOracle := newTableOracle(nil)
	parOracle.score = additiveScore(weights, names)

	seq, _, err := NewSelector(seqOracle, 1, quiet).AddBestPMU(context.Background(), pool, cfg, current)
	if err != nil {
		t.Fatal(err)
	}
	par, _, err := NewSelector(parOracle, 4, quiet).AddBestPMU(context.Background(), pool, cfg, current)
	if err != nil {
		t.Fatal(err)
	}
	if seq.Key() != par.Key() || seq.Score != par.Score {
		t.Errorf("parallel pick %v (%v) differs from sequential %v (%v)", par.Variables, par.Score, seq.Variables, seq.Score)
	}
	if seqOracle.callCount() != parOracle.callCount() {
		t.Errorf("call counts differ: %d vs %d", seqOracle.callCount(), parOracle.callCount())
	}
}

func TestSelector_OracleBreakageAbortsStep(t *testing.T) {
	boom := errors.New("oracle unavailable")
	oracle := scenarioOracle()
	oracle.fail = func(vars []placement.Variable) error {
		if vars[0] == "C" {
			return boom
		}
		return nil
	}
	cfg := placement.Config{TargetVariable: "Y", MaxPlacements: 1, PolynomialDegree: 1}

	for _, workers := range []int{1, 3} {
		_, _, err := NewSelector(oracle, workers, quiet).AddBestPMU(context.Background(), scenarioPool(), cfg, placement.PlacementSet{})
		if !errors.Is(err, boom) {
			t.Errorf("workers=%d: expected oracle error to abort, got %v", workers, err)
		}
	}
}

func TestSelector_NonFiniteScoreIsFitError(t *testing.T) {
	oracle := newTableOracle(map[string]float64{"A": 0.5, "B": 0.4})
	oracle.scores[keyOf("A")] = nan()
	cfg := placement.Config{TargetVariable: "Y", MaxPlacements: 1, PolynomialDegree: 1}
	pool := NewVariablePool("Y", varsOf("A,B"), nil)

	got, _, err := NewSelector(oracle, 1, quiet).AddBestPMU(context.Background(), pool, cfg, placement.PlacementSet{})
	if err != nil {
		t.Fatal(err)
	}
	if got.Key() != keyOf("B") {
		t.Errorf("NaN-scored A must be skipped, got %v", got.Variables)
	}
}

func TestCompareVariables(t *testing.T) {
	cases := []struct {
		a, b string
		want int
	}{
		{"A,C", "A,B", 1},
		{"A,B", "A,C", -1},
		{"A,B", "A,B", 0},
		{"A", "A,B", -1},
		{"B", "A,Z", 1},
	}
	for _, c := range cases {
		if got := compareVariables(varsOf(c.a), varsOf(c.b)); got != c.want {
			t.Errorf("compare(%s, %s) = %d, want %d", c.a, c.b, got, c.want)
		}
	}
}
