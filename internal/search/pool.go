package search

import (
	"pmuplace/domain/placement"
)

// VariablePool holds the target, candidate and excluded variables of one
// dataset. Candidates keep their column order; duplicates are dropped.
type VariablePool struct {
	target     placement.Variable
	candidates []placement.Variable
	excluded   map[placement.Variable]bool
}

// NewVariablePool builds a pool. Excluded names that are not candidates are
// ignored.
func NewVariablePool(target placement.Variable, candidates, excluded []placement.Variable) *VariablePool {
	p := &VariablePool{
		target:   target,
		excluded: make(map[placement.Variable]bool, len(excluded)),
	}
	seen := make(map[placement.Variable]bool, len(candidates))
	for _, c := range candidates {
		if seen[c] {
			continue
		}
		seen[c] = true
		p.candidates = append(p.candidates, c)
	}
	for _, e := range excluded {
		if seen[e] {
			p.excluded[e] = true
		}
	}
	return p
}

func (p *VariablePool) Target() placement.Variable { return p.target }

// Candidates returns every candidate, excluded ones included
func (p *VariablePool) Candidates() []placement.Variable {
	out := make([]placement.Variable, len(p.candidates))
	copy(out, p.candidates)
	return out
}

// Excluded returns the excluded candidates in candidate order
func (p *VariablePool) Excluded() []placement.Variable {
	var out []placement.Variable
	for _, c := range p.candidates {
		if p.excluded[c] {
			out = append(out, c)
		}
	}
	return out
}

// IsEligible reports whether v may ever be placed
func (p *VariablePool) IsEligible(v placement.Variable) bool {
	if v == p.target || p.excluded[v] {
		return false
	}
	for _, c := range p.candidates {
		if c == v {
			return true
		}
	}
	return false
}

// EligibleCount is |Candidates| - |Excluded|
func (p *VariablePool) EligibleCount() int {
	return len(p.candidates) - len(p.excluded)
}

// Trials returns the eligible candidates not yet in the placement set
func (p *VariablePool) Trials(current placement.PlacementSet) []placement.Variable {
	var out []placement.Variable
	for _, c := range p.candidates {
		if p.excluded[c] || c == p.target || current.Contains(c) {
			continue
		}
		out = append(out, c)
	}
	return out
}

func (p *VariablePool) containsCandidate(v placement.Variable) bool {
	for _, c := range p.candidates {
		if c == v {
			return true
		}
	}
	return false
}
