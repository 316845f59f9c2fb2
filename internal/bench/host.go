// Copyright 2024 The Herbgrind Authors
// This file is part of Herbgrind.

// Package bench is a tiny in-process stand-in for the real dynamic binary
// translator (an explicit external collaborator, spec §1): it builds
// []irstmt.Stmt blocks, "executes" the host side concretely with plain
// float64/float32 arithmetic, and feeds the same statements through
// internal/engine -- mirroring how probe-lang/integration.Execute drives
// probevm.New(...).Run() against bytecode lang/codegen produced, minus the
// actual bytecode step (there is nothing here for a real guest CPU to run;
// bench is its own host). It exists only to drive the S1-S6 scenario
// replays below and cmd/herbgrind's -replay flag; it is not a production
// DBA and never will be.
package bench

import (
	"math"

	"github.com/herbgrind/shadowvm/internal/fttype"
	"github.com/herbgrind/shadowvm/internal/irstmt"
)

// Host is a plain in-memory emit.Host: three maps a scenario script fills
// in with the concrete bits a real guest CPU would already hold by the
// time the translator calls into instrumentation.
type Host struct {
	Temps map[irstmt.IRTemp]uint64
	TS    map[int]uint64
	Mem   map[uint64]uint64
}

// NewHost returns an empty Host.
func NewHost() *Host {
	return &Host{Temps: map[irstmt.IRTemp]uint64{}, TS: map[int]uint64{}, Mem: map[uint64]uint64{}}
}

// TempBits implements emit.Host.
func (h *Host) TempBits(t irstmt.IRTemp) uint64 { return h.Temps[t] }

// TSFloat implements emit.Host.
func (h *Host) TSFloat(off int, ty fttype.FloatType) float64 { return floatAt(h.TS[off], ty) }

// MemFloat implements emit.Host.
func (h *Host) MemFloat(addr uint64, ty fttype.FloatType) float64 { return floatAt(h.Mem[addr], ty) }

func floatAt(bits uint64, ty fttype.FloatType) float64 {
	if ty == fttype.Single {
		return float64(math.Float32frombits(uint32(bits)))
	}
	return math.Float64frombits(bits)
}

// SetTempF64 installs host double f as the concrete bits of temp t, the
// way a real guest instruction would have already computed it before the
// translator calls into instrumentation for the statement that reads it.
func (h *Host) SetTempF64(t irstmt.IRTemp, f float64) { h.Temps[t] = math.Float64bits(f) }

// SetTempF32 is SetTempF64 for a single-precision temp.
func (h *Host) SetTempF32(t irstmt.IRTemp, f float32) { h.Temps[t] = uint64(math.Float32bits(f)) }

// SetTempI installs an integer temp's raw bits directly (no float
// reinterpretation), for the non-float statements of S3.
func (h *Host) SetTempI(t irstmt.IRTemp, v uint64) { h.Temps[t] = v }

// SetTSF64 installs host double f at thread-state byte offset off.
func (h *Host) SetTSF64(off int, f float64) { h.TS[off] = math.Float64bits(f) }

// SetMemF64 installs host double f at memory address addr.
func (h *Host) SetMemF64(addr uint64, f float64) { h.Mem[addr] = math.Float64bits(f) }
