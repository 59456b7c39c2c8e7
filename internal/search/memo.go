package search

import (
	"pmuplace/domain/placement"
)

// VisitedStateMemo is the set of accepted placement states, keyed by the
// order-independent StateKey. Insertion order is kept so a failed step can be
// rolled back.
type VisitedStateMemo struct {
	seen  map[placement.StateKey]struct{}
	order []placement.StateKey
}

func NewVisitedStateMemo() *VisitedStateMemo {
	return &VisitedStateMemo{seen: make(map[placement.StateKey]struct{})}
}

// Visit records key and reports whether it was new
func (m *VisitedStateMemo) Visit(key placement.StateKey) bool {
	if _, ok := m.seen[key]; ok {
		return false
	}
	m.seen[key] = struct{}{}
	m.order = append(m.order, key)
	return true
}

func (m *VisitedStateMemo) Contains(key placement.StateKey) bool {
	_, ok := m.seen[key]
	return ok
}

func (m *VisitedStateMemo) Len() int { return len(m.order) }

// Keys returns the visited keys in insertion order
func (m *VisitedStateMemo) Keys() []placement.StateKey {
	out := make([]placement.StateKey, len(m.order))
	copy(out, m.order)
	return out
}

// Reset empties the memo
func (m *VisitedStateMemo) Reset() {
	m.seen = make(map[placement.StateKey]struct{})
	m.order = nil
}

// truncate forgets every key visited after the first n
func (m *VisitedStateMemo) truncate(n int) {
	if n >= len(m.order) {
		return
	}
	for _, k := range m.order[n:] {
		delete(m.seen, k)
	}
	m.order = m.order[:n]
}
