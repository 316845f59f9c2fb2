// Copyright 2024 The Herbgrind Authors
// This file is part of Herbgrind.

// Package engine is the single entry point gluing every other package
// together, grounded on probe-lang/integration/engine.go's Execute: that
// function constructs a VM from a contract and gas limit, sets its
// blockchain context, runs it to completion, and translates whatever it
// produced into an ExecutionResult, tolerating a failed run by still
// returning partial results. Engine follows the same shape for the shadow
// side of the tool: build the full collaborator graph from a Config once,
// drive it block-by-block and mark-by-mark for the life of a host run, and
// on HERBGRIND_END produce the final report the same forgiving way Execute
// still returns a result even when v.Run() errors.
package engine

import (
	"github.com/herbgrind/shadowvm/internal/config"
	"github.com/herbgrind/shadowvm/internal/emit"
	"github.com/herbgrind/shadowvm/internal/executor"
	"github.com/herbgrind/shadowvm/internal/hglog"
	"github.com/herbgrind/shadowvm/internal/irstmt"
	"github.com/herbgrind/shadowvm/internal/mark"
	"github.com/herbgrind/shadowvm/internal/opinfo"
	"github.com/herbgrind/shadowvm/internal/real"
	"github.com/herbgrind/shadowvm/internal/report"
	"github.com/herbgrind/shadowvm/internal/shadow"
	"github.com/herbgrind/shadowvm/internal/state"
	"github.com/herbgrind/shadowvm/internal/typetrack"
)

// Engine owns every per-run collaborator: the shadow state, the static type
// tracker, the op-site registry and its executor, the mark engine, the
// instrumentation emitter built on top of all of them, and the reporter
// that drains the registry at the end of the run.
type Engine struct {
	Cfg config.Config

	State    *state.State
	Tracker  *typetrack.Tracker
	Registry *opinfo.Registry
	Executor *executor.Executor
	Marks    *mark.Engine
	Emitter  *emit.Emitter

	tracer *hglog.Tracer
}

// New builds a fully wired Engine from cfg. The tracer is shared by every
// collaborator that emits print-* diagnostics; pass nil to disable tracing
// entirely regardless of cfg's print-* flags.
func New(cfg config.Config, tracer *hglog.Tracer) *Engine {
	real.Precision = cfg.PrecisionBits
	st := state.New(!cfg.NoExprs)
	tr := typetrack.New()
	registry := opinfo.NewRegistry(!cfg.NoExprs)
	exec := executor.New(registry, cfg, tracer)
	marks := mark.New(cfg, tracer)
	emitter := emit.New(st, tr, exec, cfg)

	return &Engine{
		Cfg:      cfg,
		State:    st,
		Tracker:  tr,
		Registry: registry,
		Executor: exec,
		Marks:    marks,
		Emitter:  emitter,
		tracer:   tracer,
	}
}

// ProcessBlock runs one host basic block of instrumented IR through the
// emitter (HERBGRIND_BEGIN having already enabled shadowing).
func (e *Engine) ProcessBlock(block irstmt.BasicBlock, host emit.Host) {
	e.Emitter.ProcessBlock(block, host)
}

// MarkImportant is HERBGRIND_MARK_IMPORTANT: force an error evaluation at
// callAddr for val (nil if the caller couldn't resolve a shadow), against
// the host's concrete value there.
func (e *Engine) MarkImportant(callAddr uint64, val *shadow.Value, concrete float64) {
	e.Marks.MarkImportant(callAddr, val, concrete)
}

// MaybeMarkImportant is HERBGRIND_MAYBE_MARK_IMPORTANT: the same, but a
// silent no-op when val is nil.
func (e *Engine) MaybeMarkImportant(callAddr uint64, val *shadow.Value, concrete float64) {
	e.Marks.MaybeMarkImportant(callAddr, val, concrete)
}

// EscapeFromFloat is HERBGRIND_ESCAPE: a float value observed escaping into
// integer/pointer context.
func (e *Engine) EscapeFromFloat(callAddr uint64, markType string, mismatch bool, vals []*shadow.Value) {
	e.Marks.EscapeFromFloat(callAddr, markType, mismatch, vals)
}

// End is HERBGRIND_END: build and write the final report from every op site
// observed so far. It neither stops tracking nor clears the registry: blocks
// processed after End are still shadowed, and a second End on the same
// Engine reports every site observed up to that point again.
func (e *Engine) End(path string) error {
	r := report.New(e.Cfg, e.tracer)
	records := r.BuildRecords(e.Registry.All())
	return r.WriteReport(path, records)
}
