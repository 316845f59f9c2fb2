// Copyright 2024 The Herbgrind Authors
// This file is part of Herbgrind.

package engine

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/herbgrind/shadowvm/internal/config"
	"github.com/herbgrind/shadowvm/internal/fttype"
	"github.com/herbgrind/shadowvm/internal/irstmt"
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

func TestEngineProcessBlockThenEndWritesReport(t *testing.T) {
	cfg := config.Default()
	cfg.ReportExprs = true
	e := New(cfg, nil)
	host := newFakeHost()
	host.temps[1] = f64bits(9)

	block := irstmt.BasicBlock{Addr: 0x1000, Stmts: []irstmt.Stmt{
		{
			Kind: irstmt.KindOp, Addr: 0x401abc, Dst: 1, Type: irstmt.TyF64, Op: irstmt.OpAdd,
			A: irstmt.ConstExpr(f64bits(4), irstmt.TyF64),
			B: irstmt.ConstExpr(f64bits(5), irstmt.TyF64),
		},
	}}
	e.ProcessBlock(block, host)

	info := e.Registry.All()
	if len(info) != 1 {
		t.Fatalf("Registry.All() len = %d, want 1", len(info))
	}
	info[0].FunctionName = "add"
	info[0].FileName = "file.c"
	info[0].Line = 42

	path := filepath.Join(t.TempDir(), "report.txt")
	if err := e.End(path); err != nil {
		t.Fatalf("End: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading report: %v", err)
	}
	got := string(data)
	if !strings.Contains(got, `(function "add")`) {
		t.Fatalf("report missing the observed op site: %s", got)
	}
	if !strings.Contains(got, "401abc") {
		t.Fatalf("report missing the instruction address: %s", got)
	}
}

func TestEngineMarkImportantRecordsEvenWithoutShadow(t *testing.T) {
	e := New(config.Default(), nil)
	e.MarkImportant(0x2000, nil, 1.0)
	if len(e.Marks.Marks()) != 1 {
		t.Fatalf("len(Marks()) = %d, want 1", len(e.Marks.Marks()))
	}
}
