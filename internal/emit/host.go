// Copyright 2024 The Herbgrind Authors
// This file is part of Herbgrind.

// Package emit implements the InstrumentationEmitter (spec §4.5): the
// per-statement dispatch table that decides, for each host IR statement
// handed over by the translator, what shadow bookkeeping (if any) it
// implies. The translator itself, and the live host process it drives,
// are external collaborators (spec §1) -- Host is this package's seam
// onto them, supplying the concrete bits the emitter needs to synthesise
// a fresh shadow or evaluate a guard, without this package knowing
// anything about how those bits actually got produced.
package emit

import (
	"math"

	"github.com/herbgrind/shadowvm/internal/fttype"
	"github.com/herbgrind/shadowvm/internal/irstmt"
)

// Host is the runtime's view of concrete (unshadowed) state: whatever the
// host CPU actually computed. A real binary-translation embedder backs
// this with the live guest state and process memory; internal/bench backs
// it with a plain in-memory fake for the scenario replays.
type Host interface {
	// TempBits returns the current raw bit pattern of IR temp t.
	TempBits(t irstmt.IRTemp) uint64
	// TSFloat returns the concrete float at thread-state byte offset off,
	// interpreted at width ty.
	TSFloat(off int, ty fttype.FloatType) float64
	// MemFloat returns the concrete float at memory address addr,
	// interpreted at width ty.
	MemFloat(addr uint64, ty fttype.FloatType) float64
}

// floatFromBits interprets bits as ty's concrete float value.
func floatFromBits(bits uint64, ty irstmt.IRType) float64 {
	switch ty {
	case irstmt.TyF32:
		return float64(math.Float32frombits(uint32(bits)))
	case irstmt.TyF64:
		return math.Float64frombits(bits)
	default:
		return float64(bits)
	}
}

// rawBitsOf returns e's raw bit pattern: its literal Const, or the live
// value of the temp it references.
func rawBitsOf(e irstmt.Expr, host Host) uint64 {
	if e.IsConst {
		return e.Const
	}
	return host.TempBits(e.Temp)
}

// concreteFloat returns e's concrete value interpreted as a float of e's
// own static type.
func concreteFloat(e irstmt.Expr, host Host) float64 {
	return floatFromBits(rawBitsOf(e, host), e.Type)
}

// guardTrue evaluates a condition expression the VEX way: nonzero is true.
func guardTrue(e irstmt.Expr, host Host) bool {
	return rawBitsOf(e, host) != 0
}

// lanesOf describes how many float shadow lanes a value of IR type ty
// occupies, their common width, and the byte stride between consecutive
// lanes. V128 is modelled as exactly two Double lanes (the common case for
// the floating-point workloads this tool targets); a SIMD convention using
// four Single lanes is out of scope for this model.
func lanesOf(ty irstmt.IRType) (laneTy fttype.FloatType, n int, strideBytes int) {
	switch ty {
	case irstmt.TyF32:
		return fttype.Single, 1, 4
	case irstmt.TyF64:
		return fttype.Double, 1, 8
	case irstmt.TyV128:
		return fttype.Double, 2, 8
	default:
		return fttype.NonFloat, 0, 0
	}
}
