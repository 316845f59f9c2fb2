// Copyright 2024 The Herbgrind Authors
// This file is part of Herbgrind.

package opinfo

// InfluenceSet is an ordered, deduplicated collection of the op sites whose
// error has measurably contributed to a value or mark (spec §3, glossary
// "Influence"). Insertion order is preserved (first-influenced-first) since
// the reporter's "repeated variables" heuristic and sub-expression pruning
// both want a stable iteration order, not map order.
type InfluenceSet struct {
	order []*Info
	has   map[*Info]bool
}

// NewInfluenceSet returns an empty set.
func NewInfluenceSet() *InfluenceSet {
	return &InfluenceSet{has: map[*Info]bool{}}
}

// Add inserts info if not already present.
func (s *InfluenceSet) Add(info *Info) {
	if info == nil || s.has[info] {
		return
	}
	s.has[info] = true
	s.order = append(s.order, info)
}

// Merge folds other's members into s pointwise, preserving s's existing
// order and appending any new members in other's order (spec §3
// "merged pointwise, de-duplicated").
func (s *InfluenceSet) Merge(other *InfluenceSet) {
	if other == nil {
		return
	}
	for _, info := range other.order {
		s.Add(info)
	}
}

// Clone returns an independent copy of s.
func (s *InfluenceSet) Clone() *InfluenceSet {
	c := NewInfluenceSet()
	for _, info := range s.order {
		c.Add(info)
	}
	return c
}

// Contains reports whether info is a member of s.
func (s *InfluenceSet) Contains(info *Info) bool { return s.has[info] }

// Len returns the number of members.
func (s *InfluenceSet) Len() int { return len(s.order) }

// Members returns the set's members in insertion order; callers must not
// mutate the returned slice.
func (s *InfluenceSet) Members() []*Info { return s.order }
