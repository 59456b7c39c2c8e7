package search

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"pmuplace/domain/placement"
)

// tableOracle scores predictor sets from a lookup keyed by StateKey. Sets
// missing from the table fall back to score(), then to a fit error.
type tableOracle struct {
	mu     sync.Mutex
	scores map[placement.StateKey]float64
	score  func(vars []placement.Variable) (float64, bool)
	fail   func(vars []placement.Variable) error
	calls  [][]placement.Variable
}

func newTableOracle(scores map[string]float64) *tableOracle {
	o := &tableOracle{scores: make(map[placement.StateKey]float64, len(scores))}
	for set, s := range scores {
		o.scores[keyOf(set)] = s
	}
	return o
}

// keyOf turns "A,C" into the StateKey of {A, C}
func keyOf(set string) placement.StateKey {
	return placement.NewStateKey(varsOf(set))
}

func varsOf(set string) []placement.Variable {
	if set == "" {
		return nil
	}
	return placement.Variables(strings.Split(set, ",")...)
}

func (o *tableOracle) Fit(ctx context.Context, target placement.Variable, predictors []placement.Variable, degree int) (placement.FitResult, error) {
	o.mu.Lock()
	o.calls = append(o.calls, append([]placement.Variable(nil), predictors...))
	o.mu.Unlock()

	if o.fail != nil {
		if err := o.fail(predictors); err != nil {
			return placement.FitResult{}, err
		}
	}
	s, ok := o.scores[placement.NewStateKey(predictors)]
	if !ok && o.score != nil {
		s, ok = o.score(predictors)
	}
	if !ok {
		return placement.FitResult{}, NewFitError(predictors, errors.New("no such model"))
	}
	return placement.FitResult{
		Score:        s,
		Formula:      fmt.Sprintf("%s ~ %v^%d", target, predictors, degree),
		Coefficients: make([]float64, 1+len(predictors)*degree),
	}, nil
}

func (o *tableOracle) callCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.calls)
}

// additiveScore is a deterministic score with redundancy between neighbouring
// candidates so removals are informative. Sums run in name order so equal
// sets score bit-identically whatever order they are listed in.
func additiveScore(weights map[placement.Variable]float64, names []placement.Variable) func([]placement.Variable) (float64, bool) {
	total := 0.0
	for _, n := range names {
		total += weights[n]
	}
	return func(vars []placement.Variable) (float64, bool) {
		sorted := append([]placement.Variable(nil), vars...)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
		sum := 0.0
		for i, v := range sorted {
			w, ok := weights[v]
			if !ok {
				return 0, false
			}
			sum += w
			for _, u := range sorted[:i] {
				if adjacent(u, v) {
					sum -= 0.4 * min(weights[u], w)
				}
			}
		}
		return sum / total, true
	}
}

func adjacent(a, b placement.Variable) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	d := int(a[len(a)-1]) - int(b[len(b)-1])
	return d == 1 || d == -1
}

func busWeights(n int) (map[placement.Variable]float64, []placement.Variable) {
	weights := make(map[placement.Variable]float64, n)
	var names []placement.Variable
	for i := 0; i < n; i++ {
		v := placement.Variable(fmt.Sprintf("B%c", 'a'+i))
		names = append(names, v)
		weights[v] = 1.0 + float64((i*7)%n)/float64(n)
	}
	return weights, names
}

func nan() float64 {
	zero := 0.0
	return zero / zero
}
