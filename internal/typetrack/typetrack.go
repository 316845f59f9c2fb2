// Copyright 2024 The Herbgrind Authors
// This file is part of Herbgrind.

// Package typetrack implements the StaticTypeTracker (spec §4.4): a
// per-block abstract interpretation of "what could live at this IR temp
// or thread-state offset", used by internal/emit to decide between a
// constant-folded instrumentation path and a dynamic guard. Grounded on
// probe-lang/lang/types/types.go's Kind-enum-plus-environment-map shape,
// generalized from a type checker's single persistent environment to a
// per-block one that resets at every block entry (spec §4.4's "Join rule
// at block entry is havoc").
package typetrack

import (
	"github.com/herbgrind/shadowvm/internal/fttype"
	"github.com/herbgrind/shadowvm/internal/irstmt"
)

// Tracker holds the two abstract environments spec §4.4 names:
// tempContext (per IR temp) and tsContext (per thread-state byte offset).
// Both are havoc'd (all reads return Unknown) at the start of every block;
// Reset performs that havoc rather than literally filling every possible
// key, since Go's zero-value-on-miss map semantics make an implicit
// "Unknown" cheap to express as "absent".
type Tracker struct {
	tempContext map[irstmt.IRTemp]fttype.FloatType
	tsContext   map[int]fttype.FloatType
}

// New returns a Tracker in its post-Reset state.
func New() *Tracker {
	t := &Tracker{}
	t.Reset()
	return t
}

// Reset havocs both environments to Unknown, as required at every block
// entry (spec §4.4: "Join rule at block entry is havoc").
func (t *Tracker) Reset() {
	t.tempContext = map[irstmt.IRTemp]fttype.FloatType{}
	t.tsContext = map[int]fttype.FloatType{}
}

// TempType returns the static type of temp, Unknown if never written this
// block.
func (t *Tracker) TempType(temp irstmt.IRTemp) fttype.FloatType {
	if ty, ok := t.tempContext[temp]; ok {
		return ty
	}
	return fttype.Unknown
}

// SetTempType records that temp now statically holds ty, called at every
// emitted store (spec §4.4: "At every emitted store, update the static
// entry").
func (t *Tracker) SetTempType(temp irstmt.IRTemp, ty fttype.FloatType) {
	t.tempContext[temp] = ty
}

// TSType returns the static type of thread-state offset off, Unknown if
// never written this block.
func (t *Tracker) TSType(off int) fttype.FloatType {
	if ty, ok := t.tsContext[off]; ok {
		return ty
	}
	return fttype.Unknown
}

// SetTSType records that thread-state offset off now statically holds ty.
func (t *Tracker) SetTSType(off int, ty fttype.FloatType) {
	t.tsContext[off] = ty
}

// IsFloat reports whether ty denotes a floating type at the IR level.
func IsFloat(ty irstmt.IRType) bool { return ty.IsFloat() }

// CanBeFloat reports whether operand e could possibly carry a float
// shadow, from its static IR type alone.
func CanBeFloat(e irstmt.Expr) bool { return e.Type.IsFloat() }

// CanHaveShadow reports whether e is eligible to carry a shadow at all:
// float-typed and not a bare inline constant (constants never get a
// shadow attached -- they fold straight to a literal leaf when the
// executor needs a Real, spec §4.7 step 2).
func CanHaveShadow(e irstmt.Expr) bool {
	return CanBeFloat(e) && !e.IsConst
}

// CanStoreShadow reports whether a write of e is eligible to persist a
// shadow into the destination slot -- identical eligibility to
// CanHaveShadow from the emitter's point of view (spec §4.5's Put/PutI
// handling gates on "if e has a shadow", which is exactly this test).
func CanStoreShadow(e irstmt.Expr) bool { return CanHaveShadow(e) }

// SizeOf returns e's width in 4-byte words (spec §3/§4.4's size_of, units
// of 4 bytes).
func SizeOf(e irstmt.Expr) int { return e.Type.Words4() }

// HasStaticShadow reports whether temp's current static entry asserts a
// concrete shadow width (Single or Double).
func (t *Tracker) HasStaticShadow(temp irstmt.IRTemp) bool {
	return t.TempType(temp).HasStaticShadow()
}

// HasStaticShadowTS is HasStaticShadow for a thread-state offset.
func (t *Tracker) HasStaticShadowTS(off int) bool {
	return t.TSType(off).HasStaticShadow()
}
