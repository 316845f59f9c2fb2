// Copyright 2024 The Herbgrind Authors
// This file is part of Herbgrind.

package bench

import (
	"math"

	"github.com/herbgrind/shadowvm/internal/config"
	"github.com/herbgrind/shadowvm/internal/engine"
	"github.com/herbgrind/shadowvm/internal/hglog"
	"github.com/herbgrind/shadowvm/internal/irstmt"
	"github.com/herbgrind/shadowvm/internal/shadow"
)

// Scenario is one of the seed end-to-end cases: a sequence of basic
// blocks to replay against a fresh Host, plus an optional direct-call step
// for the mark-engine entry points a real embedder invokes outside of
// ordinary block instrumentation (HERBGRIND_MARK_IMPORTANT,
// HERBGRIND_ESCAPE).
type Scenario struct {
	Name   string
	Blocks []irstmt.BasicBlock
	Host   *Host
	// Marks runs after every block has been processed, against the fully
	// wired Engine -- S5's escape-from-float call, for instance.
	Marks func(e *engine.Engine)
}

// Run replays s against a fresh Engine built from cfg and returns it for
// inspection (Registry.All(), Marks.Marks(), or End(path) to produce a
// report).
func Run(cfg config.Config, s Scenario) *engine.Engine {
	return RunTraced(cfg, s, nil)
}

// RunTraced is Run with an explicit tracer, for cmd/herbgrind's -replay
// flag when print-value-moves/print-temp-moves are set.
func RunTraced(cfg config.Config, s Scenario, tracer *hglog.Tracer) *engine.Engine {
	e := engine.New(cfg, tracer)
	for _, block := range s.Blocks {
		e.ProcessBlock(block, s.Host)
	}
	if s.Marks != nil {
		s.Marks(e)
	}
	return e
}

const (
	addrAdd     uint64 = 0x401000 // the "+" inside add(), shared by both calls
	addrZPlus6  uint64 = 0x401100 // the standalone "z+6" addition
	addrMinus   uint64 = 0x402000 // S2's "-"
	addrPlus    uint64 = 0x402010 // S2's "+"
	addrAddXX   uint64 = 0x406000 // S6's add(x, x)
	callFloor   uint64 = 0x403000 // S5's HERBGRIND_ESCAPE call site
	tsOffsetX   int    = 0x80     // thread-state slot S2 and S5 park "x" in
	tsOffsetX1  int    = 0x90     // S6's first call's "x"
	tsOffsetX2  int    = 0x98     // S6's second call's "x"
	memAddrLane uint64 = 0x7fff0000
)

func f64(v float64) uint64 { return math.Float64bits(v) }

// S1 builds the trivial-addition scenario: z=5; x=add(4,5); y=add(6,z+6).
// add()'s internal "+" is the same static instruction both times it
// executes, so the two dynamic calls land on one op site (addrAdd,
// NumEvals=2); z+6 is a distinct static site (addrZPlus6, NumEvals=1).
// Every operand here is an exact double, so every site's max-error is 0.
func S1() Scenario {
	const tZ, tX, tZPlus6, tY irstmt.IRTemp = 0, 1, 2, 3
	host := NewHost()
	host.SetTempF64(tZ, 5)
	host.SetTempF64(tX, 9)
	host.SetTempF64(tZPlus6, 11)
	host.SetTempF64(tY, 17)

	block := irstmt.BasicBlock{Addr: 0x1000, Stmts: []irstmt.Stmt{
		{Kind: irstmt.KindWrConst, Dst: tZ, Type: irstmt.TyF64, Src: irstmt.ConstExpr(f64(5), irstmt.TyF64)},
		{
			Kind: irstmt.KindOp, Addr: addrAdd, Dst: tX, Type: irstmt.TyF64, Op: irstmt.OpAdd,
			A: irstmt.ConstExpr(f64(4), irstmt.TyF64), B: irstmt.ConstExpr(f64(5), irstmt.TyF64),
		},
		{
			Kind: irstmt.KindOp, Addr: addrZPlus6, Dst: tZPlus6, Type: irstmt.TyF64, Op: irstmt.OpAdd,
			A: irstmt.TmpExpr(tZ, irstmt.TyF64), B: irstmt.ConstExpr(f64(6), irstmt.TyF64),
		},
		{
			Kind: irstmt.KindOp, Addr: addrAdd, Dst: tY, Type: irstmt.TyF64, Op: irstmt.OpAdd,
			A: irstmt.ConstExpr(f64(6), irstmt.TyF64), B: irstmt.TmpExpr(tZPlus6, irstmt.TyF64),
		},
	}}
	return Scenario{Name: "S1-trivial-addition", Blocks: []irstmt.BasicBlock{block}, Host: host}
}

// S2 builds the cancellation scenario: f(x) = (x+1) - x over x = 1e16.
// x is Get from thread state (a real shadow, full precision); the host's
// float64 arithmetic rounds x+1 back down to x (1e16's ULP is 2), so the
// subtraction's shadow result (exactly 1) diverges sharply from the host's
// (exactly 0) -- the canonical catastrophic-cancellation trace.
func S2() Scenario {
	const tX, tXPlus1, tResult irstmt.IRTemp = 0, 1, 2
	const x = 1e16
	host := NewHost()
	host.SetTSF64(tsOffsetX, x)

	hostXPlus1 := x + 1 // rounds to x in float64
	host.SetTempF64(tXPlus1, hostXPlus1)
	host.SetTempF64(tResult, hostXPlus1-x)

	block := irstmt.BasicBlock{Addr: 0x2000, Stmts: []irstmt.Stmt{
		{Kind: irstmt.KindGet, Dst: tX, Type: irstmt.TyF64, Src: irstmt.ConstExpr(uint64(tsOffsetX), irstmt.TyF64)},
		{
			Kind: irstmt.KindOp, Addr: addrPlus, Dst: tXPlus1, Type: irstmt.TyF64, Op: irstmt.OpAdd,
			A: irstmt.TmpExpr(tX, irstmt.TyF64), B: irstmt.ConstExpr(f64(1), irstmt.TyF64),
		},
		{
			Kind: irstmt.KindOp, Addr: addrMinus, Dst: tResult, Type: irstmt.TyF64, Op: irstmt.OpSub,
			A: irstmt.TmpExpr(tXPlus1, irstmt.TyF64), B: irstmt.TmpExpr(tX, irstmt.TyF64),
		},
	}}
	return Scenario{Name: "S2-cancellation", Blocks: []irstmt.BasicBlock{block}, Host: host}
}

// S3 builds the no-float-path scenario: a block of plain integer
// arithmetic. A real translator never routes an integer IROp through
// instrumentation in the first place (only the floating-point IROp
// variants are instrumented at all), so this block contains no KindOp
// statement whatsoever -- just the RdTmp/Put bookkeeping a host integer
// add would still need. The static tracker should leave every temp
// NonFloat and the registry should stay empty.
func S3() Scenario {
	const tA, tB irstmt.IRTemp = 0, 1
	host := NewHost()
	host.SetTempI(tA, 7)
	host.SetTempI(tB, 7)

	block := irstmt.BasicBlock{Addr: 0x3000, Stmts: []irstmt.Stmt{
		{Kind: irstmt.KindWrConst, Dst: tA, Type: irstmt.TyI64, Src: irstmt.ConstExpr(7, irstmt.TyI64)},
		{Kind: irstmt.KindRdTmp, Dst: tB, Type: irstmt.TyI64, Src: irstmt.TmpExpr(tA, irstmt.TyI64)},
		{Kind: irstmt.KindPut, Type: irstmt.TyI64, Src: irstmt.TmpExpr(tB, irstmt.TyI64), PutOffset: 0x40},
	}}
	return Scenario{Name: "S3-no-float-path", Blocks: []irstmt.BasicBlock{block}, Host: host}
}

// S4 builds the SIMD double-pair scenario: a 128-bit load of two doubles
// followed by a 128-bit store, round-tripping through the memory table.
// V128 is modelled as exactly two Double lanes (internal/emit's documented
// simplification), so the single Load/Store pair already exercises "two
// memory-table entries, one 2-lane result temp, independent per-lane
// shadows" without needing a separate lane-wise add statement (this
// harness's IR has no lane-extraction statement to express that step
// concretely; see DESIGN.md).
func S4() Scenario {
	const tPair irstmt.IRTemp = 0
	host := NewHost()
	host.SetMemF64(memAddrLane, 1.5)
	host.SetMemF64(memAddrLane+8, 2.5)

	block := irstmt.BasicBlock{Addr: 0x4000, Stmts: []irstmt.Stmt{
		{Kind: irstmt.KindLoad, Dst: tPair, Type: irstmt.TyV128, Addr2: irstmt.ConstExpr(memAddrLane, irstmt.TyI64)},
		{Kind: irstmt.KindStore, Type: irstmt.TyV128, Src: irstmt.TmpExpr(tPair, irstmt.TyV128), Addr2: irstmt.ConstExpr(memAddrLane+256, irstmt.TyI64)},
	}}
	return Scenario{Name: "S4-simd-double-pair", Blocks: []irstmt.BasicBlock{block}, Host: host}
}

// S5 builds the escape-to-int scenario: int n = (int) floor(x), guarded by
// HERBGRIND_ESCAPE("floor->int", mismatch, {shadow(x)}). x is Get from
// thread state first (so it carries a real shadow), then the escape call
// is made directly against the engine -- mark calls are an explicit
// external collaborator's own entry point, not routed through
// ProcessBlock.
func S5() Scenario {
	const tX irstmt.IRTemp = 0
	const x = 2.2
	host := NewHost()
	host.SetTSF64(tsOffsetX, x)

	block := irstmt.BasicBlock{Addr: 0x5000, Stmts: []irstmt.Stmt{
		{Kind: irstmt.KindGet, Dst: tX, Type: irstmt.TyF64, Src: irstmt.ConstExpr(uint64(tsOffsetX), irstmt.TyF64)},
		{Kind: irstmt.KindPut, PutOffset: tsOffsetX, Type: irstmt.TyF64, Src: irstmt.TmpExpr(tX, irstmt.TyF64)},
	}}
	return Scenario{
		Name:   "S5-escape-to-int",
		Blocks: []irstmt.BasicBlock{block},
		Host:   host,
		Marks: func(e *engine.Engine) {
			xShadow := e.State.GetTS(tsOffsetX)
			const hostFloor = 2.0 // host's (int) floor(2.2) == 2
			mismatch := hostFloor != math.Floor(x)
			e.EscapeFromFloat(callFloor, "floor->int", mismatch, []*shadow.Value{xShadow})
		},
	}
}

// S6 builds the variable-reuse scenario: two dynamic calls to add(x, x)
// with different x each time, both operands of the same call referencing
// the same live temp. Because both operands resolve to the exact same
// *shadow.Value (same pointer, ref-count bumped rather than cloned), the
// op site's var_map collapses them into a single group and the expression
// prints as "(+ x x)".
func S6() Scenario {
	const tX1, tSum1, tX2, tSum2 irstmt.IRTemp = 0, 1, 2, 3
	host := NewHost()
	host.SetTSF64(tsOffsetX1, 3.0)
	host.SetTSF64(tsOffsetX2, 9.0)
	host.SetTempF64(tSum1, 6.0)
	host.SetTempF64(tSum2, 18.0)

	first := irstmt.BasicBlock{Addr: 0x6000, Stmts: []irstmt.Stmt{
		{Kind: irstmt.KindGet, Dst: tX1, Type: irstmt.TyF64, Src: irstmt.ConstExpr(uint64(tsOffsetX1), irstmt.TyF64)},
		{
			Kind: irstmt.KindOp, Addr: addrAddXX, Dst: tSum1, Type: irstmt.TyF64, Op: irstmt.OpAdd,
			A: irstmt.TmpExpr(tX1, irstmt.TyF64), B: irstmt.TmpExpr(tX1, irstmt.TyF64),
		},
	}}
	second := irstmt.BasicBlock{Addr: 0x6000, Stmts: []irstmt.Stmt{
		{Kind: irstmt.KindGet, Dst: tX2, Type: irstmt.TyF64, Src: irstmt.ConstExpr(uint64(tsOffsetX2), irstmt.TyF64)},
		{
			Kind: irstmt.KindOp, Addr: addrAddXX, Dst: tSum2, Type: irstmt.TyF64, Op: irstmt.OpAdd,
			A: irstmt.TmpExpr(tX2, irstmt.TyF64), B: irstmt.TmpExpr(tX2, irstmt.TyF64),
		},
	}}
	return Scenario{Name: "S6-variable-reuse", Blocks: []irstmt.BasicBlock{first, second}, Host: host}
}
