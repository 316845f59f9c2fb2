// Copyright 2024 The Herbgrind Authors
// This file is part of Herbgrind.

// Package ledger implements the OwnershipLedger (spec §4.6): the
// per-block set of temps with a live shadow, torn down at block exit so
// shadows never leak across blocks. Grounded on
// probe-lang/lang/types/linear.go's LinearChecker, which tracks exactly
// this kind of "every registered resource must be consumed exactly once"
// bookkeeping for the compiler's move-semantics checker; here the
// resource is a ShadowTemp's ownership of the temp-table slot rather than
// a linear value binding.
package ledger

import (
	"github.com/herbgrind/shadowvm/internal/irstmt"
	"github.com/herbgrind/shadowvm/internal/state"
)

// Ledger is the per-block registry of temps currently holding a live
// shadow. It is a thin, intentionally unordered-elimination-safe wrapper:
// Register is idempotent (a temp registered twice is only torn down
// once), matching "registers the temp (once)" in spec §4.6.
type Ledger struct {
	registered map[irstmt.IRTemp]bool
	order      []irstmt.IRTemp
}

// New returns an empty Ledger, ready for one block.
func New() *Ledger {
	return &Ledger{registered: map[irstmt.IRTemp]bool{}}
}

// Register records that temp now holds a live shadow (called by every
// emitted store into the temp table, spec §4.6).
func (l *Ledger) Register(temp irstmt.IRTemp) {
	if l.registered[temp] {
		return
	}
	l.registered[temp] = true
	l.order = append(l.order, temp)
}

// Teardown disowns and frees every registered temp's shadow via s, in
// registration order, and resets the ledger for the next block. This is
// the dirty helper the emitter inserts once at ordinary block exit (spec
// §4.6).
func (l *Ledger) Teardown(s *state.State) {
	for _, temp := range l.order {
		s.ClearTemp(temp)
	}
	l.registered = map[irstmt.IRTemp]bool{}
	l.order = nil
}

// GuardedTeardown is the abort-path variant (spec §4.6): it tears down
// only the temps in keep's complement -- temps the abort path knows are
// still needed downstream (e.g. already returned to the caller) are left
// alone. Passing a nil or empty keep behaves exactly like Teardown.
func (l *Ledger) GuardedTeardown(s *state.State, keep map[irstmt.IRTemp]bool) {
	var remaining []irstmt.IRTemp
	for _, temp := range l.order {
		if keep[temp] {
			remaining = append(remaining, temp)
			continue
		}
		s.ClearTemp(temp)
		delete(l.registered, temp)
	}
	l.order = remaining
}

// Registered returns a copy of the currently tracked temps in registration
// order, for
// property tests asserting the ref-count balance invariant holds exactly
// at block boundaries.
func (l *Ledger) Registered() []irstmt.IRTemp {
	out := make([]irstmt.IRTemp, len(l.order))
	copy(out, l.order)
	return out
}
