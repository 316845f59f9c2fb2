// Copyright 2024 The Herbgrind Authors
// This file is part of Herbgrind.

// Package opinfo defines the per-static-op-site bookkeeping record (spec
// §3's ShadowOpInfo) and its two accumulators: an error aggregate and an
// influence set. Grounded on probe-lang/lang/vm/opcodes.go's opcodeTable,
// which is keyed and looked up the same way (a small dense registry plus a
// String() table), and on probe-lang/lang/vm/vm.go's gas accounting, the
// closest analog to rolling up a running statistic per executed operation.
package opinfo

import (
	"fmt"

	"github.com/herbgrind/shadowvm/internal/irstmt"
	"github.com/herbgrind/shadowvm/internal/symbolic"
)

// ErrorAggregate rolls up the local/total error observed at one op site
// across every dynamic evaluation (spec §3, §4.7 step 4).
type ErrorAggregate struct {
	MaxTotal   float64
	TotalTotal float64
	MaxLocal   float64
	TotalLocal float64
	NumEvals   uint64
}

// Observe folds one evaluation's local/total error into the aggregate.
func (a *ErrorAggregate) Observe(local, total float64) {
	if total > a.MaxTotal {
		a.MaxTotal = total
	}
	if local > a.MaxLocal {
		a.MaxLocal = local
	}
	a.TotalTotal += total
	a.TotalLocal += local
	a.NumEvals++
}

// AvgTotal returns the mean total error, or 0 with no observations yet.
func (a *ErrorAggregate) AvgTotal() float64 {
	if a.NumEvals == 0 {
		return 0
	}
	return a.TotalTotal / float64(a.NumEvals)
}

// AvgLocal returns the mean local error, or 0 with no observations yet.
func (a *ErrorAggregate) AvgLocal() float64 {
	if a.NumEvals == 0 {
		return 0
	}
	return a.TotalLocal / float64(a.NumEvals)
}

// Site identifies a static op by its instruction address, block address,
// and opcode -- the "op site" of spec.md's glossary.
type Site struct {
	OpCode    irstmt.Op
	Addr      uint64
	BlockAddr uint64
}

// Info is the per-op-site accumulator: ShadowOpInfo in spec §3.
type Info struct {
	Site Site

	Eagg ErrorAggregate
	Expr *symbolic.Site // nil when expression tracking is disabled (no-exprs)

	// FunctionName, FileName, Line are resolved lazily by the embedding
	// tool's symbol resolver (an explicit external collaborator, spec §1)
	// and cached here once known so the reporter doesn't re-resolve.
	FunctionName string
	FileName     string
	Line         int
}

func (s Site) String() string {
	return fmt.Sprintf("%s@0x%x", s.OpCode, s.Addr)
}

// Registry maps a static op address to its Info, created once, reused on
// every subsequent evaluation of that op. Grounded on
// probe-lang/lang/vm/opcodes.go's flat lookup table, widened from a fixed
// 256-entry array to a map since op addresses are sparse 64-bit values
// rather than small dense opcodes.
type Registry struct {
	bySite map[uint64]*Info
	track  bool // whether to allocate an expression Site (config.NoExprs)
}

// NewRegistry returns an empty Registry. trackExprs mirrors the
// !no-exprs configuration flag.
func NewRegistry(trackExprs bool) *Registry {
	return &Registry{bySite: map[uint64]*Info{}, track: trackExprs}
}

// Resolve returns the Info for addr, creating one on first sight (spec
// §4.7 step 1).
func (r *Registry) Resolve(site Site) *Info {
	info, ok := r.bySite[site.Addr]
	if ok {
		return info
	}
	info = &Info{Site: site}
	if r.track {
		info.Expr = symbolic.NewSite()
	}
	r.bySite[site.Addr] = info
	return info
}

// All returns every registered Info, in no particular order; the reporter
// sorts its own copy.
func (r *Registry) All() []*Info {
	out := make([]*Info, 0, len(r.bySite))
	for _, info := range r.bySite {
		out = append(out, info)
	}
	return out
}

// Len reports how many distinct op sites have been observed.
func (r *Registry) Len() int { return len(r.bySite) }
