// Copyright 2024 The Herbgrind Authors
// This file is part of Herbgrind.

// Package state implements ShadowState (spec §4.3): the three parallel
// shadow stores that mirror host state (temp table, thread-state table,
// memory table). Grounded on probe-lang/lang/vm/memory.go's map-keyed
// store shape, generalized from "base address -> allocation" to "IR temp
// or byte offset -> shadow value/temp".
package state

import (
	"github.com/herbgrind/shadowvm/internal/irstmt"
	"github.com/herbgrind/shadowvm/internal/shadow"
)

// State is one host thread's shadow state plus the block-scoped temp
// table. The design assumes a single host thread (spec §5); an embedder
// supporting more would hold one State per thread.
type State struct {
	temps       map[irstmt.IRTemp]*shadow.Temp
	threadState map[int]*shadow.Value
	Mem         *MemTable

	trackExprs bool
}

// New returns an empty State. trackExprs mirrors the !no-exprs
// configuration flag and is threaded down to Widen.
func New(trackExprs bool) *State {
	return &State{
		temps:       map[irstmt.IRTemp]*shadow.Temp{},
		threadState: map[int]*shadow.Value{},
		Mem:         NewMemTable(trackExprs),
		trackExprs:  trackExprs,
	}
}

// LoadTemp returns the ShadowTemp at t, or nil if the slot has no shadow
// (spec §4.3 "load(i) = temp_table[i]").
func (s *State) LoadTemp(t irstmt.IRTemp) *shadow.Temp {
	return s.temps[t]
}

// StoreTemp installs temp at t, overwriting any existing entry. The
// caller (the emitter's dirty helper) is responsible for only calling this
// on a slot the static tracker proved Unknown/Unshadowed; State itself
// does not re-derive that proof.
func (s *State) StoreTemp(t irstmt.IRTemp, temp *shadow.Temp) {
	s.temps[t] = temp
}

// ClearTemp disowns and frees the ShadowTemp at t, if any, and removes the
// slot -- the per-temp action the OwnershipLedger's block-exit teardown
// performs.
func (s *State) ClearTemp(t irstmt.IRTemp) {
	if temp, ok := s.temps[t]; ok {
		shadow.FreeTemp(temp)
		delete(s.temps, t)
	}
}

// LiveTemps returns every IRTemp currently holding a shadow, in no
// particular order, for property tests.
func (s *State) LiveTemps() []irstmt.IRTemp {
	out := make([]irstmt.IRTemp, 0, len(s.temps))
	for t := range s.temps {
		out = append(out, t)
	}
	return out
}

// GetTS returns the thread-state shadow at byte offset off, or nil.
func (s *State) GetTS(off int) *shadow.Value {
	return s.threadState[off]
}

// SetTS disowns whatever shadow currently occupies off and installs v
// (spec §4.3 "set disowns the prior value"). Passing a nil v clears the
// slot.
func (s *State) SetTS(off int, v *shadow.Value) {
	if prior, ok := s.threadState[off]; ok {
		shadow.Disown(prior)
	}
	if v == nil {
		delete(s.threadState, off)
		return
	}
	s.threadState[off] = v
}

// TrackExprs reports whether symbolic expression tracking is enabled.
func (s *State) TrackExprs() bool { return s.trackExprs }
