package search

import (
	"testing"

	"pmuplace/domain/placement"
)

func TestVisitedStateMemo_OrderIndependent(t *testing.T) {
	m := NewVisitedStateMemo()
	if !m.Visit(placement.NewStateKey(varsOf("A,C,B"))) {
		t.Fatal("first visit should be new")
	}
	if m.Visit(placement.NewStateKey(varsOf("B,A,C"))) {
		t.Error("permutation of a visited set must not be new")
	}
	if !m.Contains(keyOf("C,B,A")) {
		t.Error("memo should contain {A,B,C}")
	}
	if m.Contains(keyOf("A,B")) {
		t.Error("memo should not contain {A,B}")
	}
	if m.Len() != 1 {
		t.Errorf("expected 1 key, got %d", m.Len())
	}
}

func TestVisitedStateMemo_TruncateAndReset(t *testing.T) {
	m := NewVisitedStateMemo()
	for _, s := range []string{"A", "A,B", "A,B,C"} {
		m.Visit(keyOf(s))
	}
	m.truncate(1)
	if m.Len() != 1 || !m.Contains(keyOf("A")) || m.Contains(keyOf("A,B")) {
		t.Errorf("truncate(1) left %v", m.Keys())
	}
	if !m.Visit(keyOf("A,B")) {
		t.Error("truncated key should be visitable again")
	}

	m.Reset()
	if m.Len() != 0 || m.Contains(keyOf("A")) {
		t.Error("reset should empty the memo")
	}
}

func TestVariablePool(t *testing.T) {
	p := NewVariablePool("Y", varsOf("A,B,B,C,D"), varsOf("C,Z"))
	if got := len(p.Candidates()); got != 4 {
		t.Errorf("duplicates should be dropped, got %d candidates", got)
	}
	if got := p.EligibleCount(); got != 3 {
		t.Errorf("expected 3 eligible, got %d", got)
	}
	if p.IsEligible("C") || p.IsEligible("Z") || p.IsEligible("Y") {
		t.Error("excluded, unknown and target variables are never eligible")
	}
	current := placement.PlacementSet{Variables: varsOf("B")}
	trials := p.Trials(current)
	if len(trials) != 2 || trials[0] != "A" || trials[1] != "D" {
		t.Errorf("expected trials [A D], got %v", trials)
	}
}
