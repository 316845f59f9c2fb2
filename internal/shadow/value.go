// Copyright 2024 The Herbgrind Authors
// This file is part of Herbgrind.

// Package shadow implements ShadowValue and ShadowTemp (spec §4.2): the
// reference-counted, pool-allocated records that shadow every host float.
// Grounded on probe-lang/lang/types/linear.go's move-once/consume
// bookkeeping for the ref-count discipline, and on
// probe-lang/lang/vm/memory.go's free-list-backed allocator shape for the
// typed pools.
package shadow

import (
	"github.com/herbgrind/shadowvm/internal/fttype"
	"github.com/herbgrind/shadowvm/internal/opinfo"
	"github.com/herbgrind/shadowvm/internal/real"
	"github.com/herbgrind/shadowvm/internal/symbolic"
)

// Value is a ShadowValue: a shared, reference-counted high-precision
// companion to one host float (spec §3). Type is always fttype.Single or
// fttype.Double; it is never constructed with anything else.
type Value struct {
	Type       fttype.FloatType
	Real       *real.Real
	Expr       *symbolic.Expr // owned; non-nil unless expression tracking is disabled
	Influences *opinfo.InfluenceSet

	refCount int
}

// NewValue returns an owned (refCount=1) Value. It takes ownership of expr
// (pass nil when expression tracking is disabled) and infl (pass nil for a
// fresh empty set).
func NewValue(ty fttype.FloatType, r *real.Real, expr *symbolic.Expr, infl *opinfo.InfluenceSet) *Value {
	if ty != fttype.Single && ty != fttype.Double {
		panic("shadow: NewValue requires Single or Double")
	}
	v := valuePool.get()
	v.Type = ty
	v.Real = r
	v.Expr = expr
	if infl == nil {
		infl = opinfo.NewInfluenceSet()
	}
	v.Influences = infl
	v.refCount = 1
	return v
}

// Own increments v's reference count (spec §4.2).
func Own(v *Value) {
	if v == nil {
		return
	}
	v.refCount++
}

// Disown decrements v's reference count; at zero it disowns the symbolic
// expression, releases the real, and returns v to its pool (spec §4.2).
func Disown(v *Value) {
	if v == nil {
		return
	}
	v.refCount--
	if v.refCount > 0 {
		return
	}
	if v.refCount < 0 {
		panic("shadow: ref-count went negative, invariant violated")
	}
	symbolic.Disown(v.Expr)
	v.Real = nil
	v.Expr = nil
	v.Influences = nil
	valuePool.put(v)
}

// RefCount returns v's current reference count, for diagnostics and
// property tests only -- production code must never branch on it besides
// through Own/Disown.
func (v *Value) RefCount() int { return v.refCount }

// Widen synthesizes a fresh Value from concrete host bits when a slot has
// no shadow but is read as part of a wider quantity (spec §4.3's
// tie-break). ty must be fttype.Single or fttype.Double.
func Widen(ty fttype.FloatType, concrete float64, trackExprs bool) *Value {
	var r *real.Real
	var expr *symbolic.Expr
	switch ty {
	case fttype.Single:
		r = real.FromFloat32(float32(concrete))
	case fttype.Double:
		r = real.FromFloat64(concrete)
	default:
		panic("shadow: Widen requires Single or Double")
	}
	if trackExprs {
		expr = symbolic.NewLeafVar(r.Copy())
	}
	malloc.record(mallocWiden)
	return NewValue(ty, r, expr, nil)
}
