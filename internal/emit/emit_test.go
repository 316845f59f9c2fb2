// Copyright 2024 The Herbgrind Authors
// This file is part of Herbgrind.

package emit

import (
	"math"
	"testing"

	"github.com/herbgrind/shadowvm/internal/config"
	"github.com/herbgrind/shadowvm/internal/executor"
	"github.com/herbgrind/shadowvm/internal/fttype"
	"github.com/herbgrind/shadowvm/internal/irstmt"
	"github.com/herbgrind/shadowvm/internal/opinfo"
	"github.com/herbgrind/shadowvm/internal/state"
	"github.com/herbgrind/shadowvm/internal/typetrack"
)

type fakeHost struct {
	temps map[irstmt.IRTemp]uint64
	ts    map[int]float64
	mem   map[uint64]float64
}

func newFakeHost() *fakeHost {
	return &fakeHost{temps: map[irstmt.IRTemp]uint64{}, ts: map[int]float64{}, mem: map[uint64]float64{}}
}

func (h *fakeHost) TempBits(t irstmt.IRTemp) uint64                   { return h.temps[t] }
func (h *fakeHost) TSFloat(off int, ty fttype.FloatType) float64      { return h.ts[off] }
func (h *fakeHost) MemFloat(addr uint64, ty fttype.FloatType) float64 { return h.mem[addr] }

func f64bits(f float64) uint64 { return math.Float64bits(f) }

func newEmitter(cfg config.Config) (*Emitter, *fakeHost) {
	st := state.New(!cfg.NoExprs)
	tr := typetrack.New()
	ex := executor.New(opinfo.NewRegistry(!cfg.NoExprs), cfg, nil)
	return New(st, tr, ex, cfg), newFakeHost()
}

// Every temp an emitted block touches is torn down by the ownership ledger
// at the block's own exit (spec §4.6) -- a temp's shadow only outlives its
// block if some statement also copies it into thread-state or memory.
// These tests therefore always route the value of interest through a Put
// (or Store) before inspecting it.

func TestOpStatementProducesShadowResult(t *testing.T) {
	em, host := newEmitter(config.Default())
	host.temps[2] = f64bits(9)

	block := irstmt.BasicBlock{Addr: 0x100, Stmts: []irstmt.Stmt{
		{
			Kind: irstmt.KindOp, Addr: 0x104, Dst: 2, Type: irstmt.TyF64, Op: irstmt.OpAdd,
			A: irstmt.ConstExpr(f64bits(4), irstmt.TyF64),
			B: irstmt.ConstExpr(f64bits(5), irstmt.TyF64),
		},
		{Kind: irstmt.KindPut, PutOffset: 300, Type: irstmt.TyF64, Src: irstmt.TmpExpr(2, irstmt.TyF64)},
	}}
	em.ProcessBlock(block, host)

	v := em.State.GetTS(300)
	if v == nil {
		t.Fatal("expected a shadow value parked at TS[300] after the Op+Put pair")
	}
	if v.Real.Float64() != 9 {
		t.Fatalf("shadow result = %v, want 9", v.Real.Float64())
	}
	if em.Tracker.TempType(2) != fttype.Double {
		t.Fatalf("TempType(2) = %v, want Double", em.Tracker.TempType(2))
	}
}

func TestRdTmpCopiesSharedShadow(t *testing.T) {
	em, host := newEmitter(config.Default())
	host.temps[1] = f64bits(-1)

	block := irstmt.BasicBlock{Addr: 0x200, Stmts: []irstmt.Stmt{
		{Kind: irstmt.KindOp, Addr: 0x204, Dst: 1, Type: irstmt.TyF64, Op: irstmt.OpNeg,
			A: irstmt.ConstExpr(f64bits(1), irstmt.TyF64)},
		{Kind: irstmt.KindRdTmp, Dst: 2, Type: irstmt.TyF64, Src: irstmt.TmpExpr(1, irstmt.TyF64)},
		{Kind: irstmt.KindPut, PutOffset: 400, Type: irstmt.TyF64, Src: irstmt.TmpExpr(1, irstmt.TyF64)},
		{Kind: irstmt.KindPut, PutOffset: 408, Type: irstmt.TyF64, Src: irstmt.TmpExpr(2, irstmt.TyF64)},
	}}
	em.ProcessBlock(block, host)

	a := em.State.GetTS(400)
	b := em.State.GetTS(408)
	if a == nil || b == nil {
		t.Fatal("expected both Put destinations to hold a shadow")
	}
	if a != b {
		t.Fatal("expected RdTmp's copy to share the same underlying shadow value as its source")
	}
	if a.RefCount() != 2 {
		t.Fatalf("RefCount() = %d, want 2 (one reference per surviving TS slot)", a.RefCount())
	}
}

func TestLedgerTeardownClearsTempsAtBlockExit(t *testing.T) {
	em, host := newEmitter(config.Default())
	host.temps[5] = f64bits(2)

	block := irstmt.BasicBlock{Addr: 0x300, Stmts: []irstmt.Stmt{
		{Kind: irstmt.KindOp, Addr: 0x304, Dst: 5, Type: irstmt.TyF64, Op: irstmt.OpNeg,
			A: irstmt.ConstExpr(f64bits(2), irstmt.TyF64)},
	}}
	em.ProcessBlock(block, host)

	if len(em.State.LiveTemps()) != 0 {
		t.Fatalf("LiveTemps() len = %d, want 0 after block-exit teardown", len(em.State.LiveTemps()))
	}
}

func TestPutThenGetRoundTrip(t *testing.T) {
	em, host := newEmitter(config.Default())
	host.temps[7] = f64bits(3)

	block := irstmt.BasicBlock{Addr: 0x400, Stmts: []irstmt.Stmt{
		{Kind: irstmt.KindOp, Addr: 0x404, Dst: 7, Type: irstmt.TyF64, Op: irstmt.OpNeg,
			A: irstmt.ConstExpr(f64bits(3), irstmt.TyF64)},
		{Kind: irstmt.KindPut, PutOffset: 64, Type: irstmt.TyF64, Src: irstmt.TmpExpr(7, irstmt.TyF64)},
		{Kind: irstmt.KindGet, Dst: 8, Type: irstmt.TyF64, Src: irstmt.ConstExpr(64, irstmt.TyI64)},
		{Kind: irstmt.KindPut, PutOffset: 80, Type: irstmt.TyF64, Src: irstmt.TmpExpr(8, irstmt.TyF64)},
	}}
	em.ProcessBlock(block, host)

	original := em.State.GetTS(64)
	roundTripped := em.State.GetTS(80)
	if original == nil || roundTripped == nil {
		t.Fatal("expected both TS slots to hold a shadow")
	}
	if original != roundTripped {
		t.Fatal("expected Get to return the exact shadow value Put installed")
	}
	if original.Real.Float64() != -3 {
		t.Fatalf("shadow value = %v, want -3", original.Real.Float64())
	}
}

func TestStoreThenLoadRoundTrip(t *testing.T) {
	em, host := newEmitter(config.Default())
	host.temps[11] = f64bits(7)
	host.mem[0x8000] = 7 // concrete fallback, unused once the shadow is present

	block := irstmt.BasicBlock{Addr: 0x500, Stmts: []irstmt.Stmt{
		{Kind: irstmt.KindOp, Addr: 0x504, Dst: 11, Type: irstmt.TyF64, Op: irstmt.OpNeg,
			A: irstmt.ConstExpr(f64bits(7), irstmt.TyF64)},
		{Kind: irstmt.KindStore, Type: irstmt.TyF64, Src: irstmt.TmpExpr(11, irstmt.TyF64),
			Addr2: irstmt.ConstExpr(0x8000, irstmt.TyI64)},
		{Kind: irstmt.KindLoad, Dst: 12, Type: irstmt.TyF64, Addr2: irstmt.ConstExpr(0x8000, irstmt.TyI64)},
		{Kind: irstmt.KindPut, PutOffset: 200, Type: irstmt.TyF64, Src: irstmt.TmpExpr(12, irstmt.TyF64)},
	}}
	em.ProcessBlock(block, host)

	got := em.State.GetTS(200)
	if got == nil {
		t.Fatal("expected Load's result to have reached TS[200] via Put")
	}
	if got.Real.Float64() != -7 {
		t.Fatalf("loaded shadow = %v, want -7", got.Real.Float64())
	}
}

func TestWrConstClearsShadow(t *testing.T) {
	em, host := newEmitter(config.Default())
	host.temps[4] = f64bits(1)

	block := irstmt.BasicBlock{Addr: 0x600, Stmts: []irstmt.Stmt{
		{Kind: irstmt.KindOp, Addr: 0x604, Dst: 4, Type: irstmt.TyF64, Op: irstmt.OpNeg,
			A: irstmt.ConstExpr(f64bits(1), irstmt.TyF64)},
		{Kind: irstmt.KindWrConst, Dst: 4, Type: irstmt.TyI64, Src: irstmt.ConstExpr(0, irstmt.TyI64)},
	}}
	em.ProcessBlock(block, host)

	if em.State.LoadTemp(4) != nil {
		t.Fatal("expected WrConst to clear any prior shadow at its destination")
	}
	if em.Tracker.TempType(4) != fttype.NonFloat {
		t.Fatalf("TempType(4) = %v, want NonFloat", em.Tracker.TempType(4))
	}
}
