package placement

import (
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Variable names a column of the dataset (a bus, a sensor, the target)
type Variable string

// String returns the variable name
func (v Variable) String() string { return string(v) }

// Variables converts plain column names to variables
func Variables(names ...string) []Variable {
	out := make([]Variable, len(names))
	for i, n := range names {
		out[i] = Variable(n)
	}
	return out
}

// StateKey is the order-independent identity of a placement set
type StateKey string

const stateKeySep = "\x1f"

// NewStateKey canonicalises a variable list by sorting its members
func NewStateKey(vars []Variable) StateKey {
	names := make([]string, len(vars))
	for i, v := range vars {
		names[i] = string(v)
	}
	sort.Strings(names)
	return StateKey(strings.Join(names, stateKeySep))
}

// Fingerprint is a stable 64-bit digest of the key, used as a storage column
func (k StateKey) Fingerprint() uint64 {
	return xxhash.Sum64String(string(k))
}

// String renders the key as a readable set
func (k StateKey) String() string {
	return "{" + strings.ReplaceAll(string(k), stateKeySep, ",") + "}"
}

// PlacementSet is an ordered, duplicate-free list of placed variables together
// with the best known fit score of exactly that list. Scored is false until the
// set has been evaluated.
type PlacementSet struct {
	Variables []Variable `json:"variables"`
	Score     float64    `json:"score"`
	Scored    bool       `json:"scored"`
}

// Len returns the number of placed variables
func (p PlacementSet) Len() int { return len(p.Variables) }

// Key returns the order-independent state key
func (p PlacementSet) Key() StateKey { return NewStateKey(p.Variables) }

// Contains reports whether v is placed
func (p PlacementSet) Contains(v Variable) bool {
	for _, placed := range p.Variables {
		if placed == v {
			return true
		}
	}
	return false
}

// Clone returns a deep copy
func (p PlacementSet) Clone() PlacementSet {
	vars := make([]Variable, len(p.Variables))
	copy(vars, p.Variables)
	return PlacementSet{Variables: vars, Score: p.Score, Scored: p.Scored}
}

// With returns the variables with v appended
func (p PlacementSet) With(v Variable) []Variable {
	vars := make([]Variable, 0, len(p.Variables)+1)
	vars = append(vars, p.Variables...)
	return append(vars, v)
}

// Without returns the variables with v removed, preserving order
func (p PlacementSet) Without(v Variable) []Variable {
	vars := make([]Variable, 0, len(p.Variables))
	for _, placed := range p.Variables {
		if placed != v {
			vars = append(vars, placed)
		}
	}
	return vars
}

// FitResult is what a fitting oracle returns for one predictor list
type FitResult struct {
	Score        float64   `json:"score"`
	Formula      string    `json:"formula"`
	Coefficients []float64 `json:"coefficients"`
}

// Phase is the search driver state in which an entry was accepted
type Phase string

const (
	PhaseGrowing     Phase = "growing"
	PhaseOscillating Phase = "oscillating"
	PhaseTerminal    Phase = "terminal"
)

// Move is the transition that produced an accepted state
type Move string

const (
	MoveAdd    Move = "add"
	MoveRemove Move = "remove"
)

// TraceEntry is one accepted state of a search
type TraceEntry struct {
	Step      int          `json:"step"`
	Phase     Phase        `json:"phase"`
	Move      Move         `json:"move"`
	Placement PlacementSet `json:"placement"`
	Fit       FitResult    `json:"fit"`
}

// Key returns the state key of the entry's placement
func (e TraceEntry) Key() StateKey { return e.Placement.Key() }

// SearchTrace is the ordered record of every distinct accepted state
type SearchTrace []TraceEntry

// Keys returns the state keys in visitation order
func (t SearchTrace) Keys() []StateKey {
	keys := make([]StateKey, len(t))
	for i, e := range t {
		keys[i] = e.Key()
	}
	return keys
}

// MetaData is the formula and coefficient vector of one accepted state
type MetaData struct {
	Formula      string    `json:"formula"`
	Coefficients []float64 `json:"coefficients"`
}

// MetaData returns the metadata trace parallel to the search trace
func (t SearchTrace) MetaData() []MetaData {
	out := make([]MetaData, len(t))
	for i, e := range t {
		out[i] = MetaData{Formula: e.Fit.Formula, Coefficients: e.Fit.Coefficients}
	}
	return out
}

// Best returns the highest scoring entry; ties keep the earliest
func (t SearchTrace) Best() (TraceEntry, bool) {
	if len(t) == 0 {
		return TraceEntry{}, false
	}
	best := t[0]
	for _, e := range t[1:] {
		if e.Placement.Score > best.Placement.Score {
			best = e
		}
	}
	return best, true
}

// VerboseRow records a single oracle evaluation, accepted or not
type VerboseRow struct {
	Score        float64    `json:"score"`
	Formula      string     `json:"formula"`
	Predictors   []Variable `json:"predictors"`
	Coefficients []float64  `json:"coefficients"`
}

// Config is the immutable configuration of one search run
type Config struct {
	TargetVariable    Variable   `json:"target_variable" yaml:"target"`
	MaxPlacements     int        `json:"max_placements" yaml:"max_placements"`
	ExcludedVariables []Variable `json:"excluded_variables" yaml:"excluded"`
	PolynomialDegree  int        `json:"polynomial_degree" yaml:"degree"`
	Parsimonious      bool       `json:"parsimonious" yaml:"parsimonious"`
	// Workers bounds concurrent oracle calls within one selection step
	Workers int `json:"workers" yaml:"workers"`
}
