// Copyright 2024 The Herbgrind Authors
// This file is part of Herbgrind.

// Package mark implements the MarkEngine (spec §4.9): the handful of
// call sites an embedding tool invokes directly (rather than through the
// instrumentation emitter) to say "this value, right here, is important"
// or "a float just escaped into integer/pointer context". Grounded on
// original_source/src/runtime/op-shadowstate/marks.c's
// markImportant/maybeMarkImportant/markEscapeFromFloat trio, translated
// from a permanent-allocation hash table per mark kind to two Go maps.
package mark

import (
	"fmt"

	"github.com/herbgrind/shadowvm/internal/config"
	"github.com/herbgrind/shadowvm/internal/hglog"
	"github.com/herbgrind/shadowvm/internal/opinfo"
	"github.com/herbgrind/shadowvm/internal/real"
	"github.com/herbgrind/shadowvm/internal/shadow"
	"github.com/herbgrind/shadowvm/internal/symbolic"
)

// Info is the per-call-site accumulator for a plain mark (MarkInfo in
// marks.c): it rolls up error exactly like opinfo.Info but is keyed by the
// call site rather than a static arithmetic op.
type Info struct {
	Addr       uint64
	Eagg       opinfo.ErrorAggregate
	Influences *opinfo.InfluenceSet
	Expr       *symbolic.Site // nil when expression tracking is disabled
}

func (i *Info) String() string { return fmt.Sprintf("mark@0x%x", i.Addr) }

// IntInfo is the per-call-site accumulator for an escape-from-float mark
// (IntMarkInfo in marks.c): it tracks how often a float's integer/pointer
// reinterpretation disagreed with its shadow, across up to two operand
// positions.
type IntInfo struct {
	Addr          uint64
	MarkType      string
	NumHits       uint64
	NumMismatches uint64
	NArgs         int
	Influences    *opinfo.InfluenceSet
	Exprs         [2]*symbolic.Site
}

func (i *IntInfo) String() string { return fmt.Sprintf("%s@0x%x", i.MarkType, i.Addr) }

// Engine owns both mark registries plus the configuration that gates
// influence tracking and expression tracking.
type Engine struct {
	marks    map[uint64]*Info
	intMarks map[uint64]map[string]*IntInfo

	cfg    config.Config
	tracer *hglog.Tracer
}

// New returns an empty Engine.
func New(cfg config.Config, tracer *hglog.Tracer) *Engine {
	return &Engine{
		marks:    map[uint64]*Info{},
		intMarks: map[uint64]map[string]*IntInfo{},
		cfg:      cfg,
		tracer:   tracer,
	}
}

// infoFor resolves or creates the Info for callAddr (getMarkInfo).
func (e *Engine) infoFor(callAddr uint64) *Info {
	info, ok := e.marks[callAddr]
	if ok {
		return info
	}
	info = &Info{Addr: callAddr, Influences: opinfo.NewInfluenceSet()}
	if !e.cfg.NoExprs {
		info.Expr = symbolic.NewSite()
	}
	e.marks[callAddr] = info
	return info
}

// intInfoFor resolves or creates the IntInfo for (callAddr, markType)
// (getIntMarkInfo).
func (e *Engine) intInfoFor(callAddr uint64, markType string) *IntInfo {
	byType, ok := e.intMarks[callAddr]
	if !ok {
		byType = map[string]*IntInfo{}
		e.intMarks[callAddr] = byType
	}
	info, ok := byType[markType]
	if ok {
		return info
	}
	info = &IntInfo{Addr: callAddr, MarkType: markType, Influences: opinfo.NewInfluenceSet()}
	byType[markType] = info
	return info
}

// observe folds val's disagreement with concrete into info's aggregate,
// merges influences when the error clears the threshold, and generalizes
// info's expression against val's -- the three steps common to
// MaybeMarkImportant and MarkImportant.
func (e *Engine) observe(info *Info, val *shadow.Value, concrete float64) {
	thisError := real.BitsDiff(val.Real, concrete)
	info.Eagg.Observe(thisError, thisError)
	if !e.cfg.NoInfluences && thisError >= e.cfg.ErrorThresholdBits {
		info.Influences.Merge(val.Influences)
	}
	if !e.cfg.NoExprs && val.Expr != nil {
		symbolic.Generalize(info.Expr, val.Expr)
	}
}

// MaybeMarkImportant is maybeMarkImportant: a best-effort mark that is a
// silent no-op when varAddr has no shadow at all -- used at sites where
// "this might be a float of interest" can't be guaranteed statically.
// val is the shadow the caller's memory table already resolved for
// varAddr (nil if none); concrete is the host's current bits there.
func (e *Engine) MaybeMarkImportant(callAddr uint64, val *shadow.Value, concrete float64) {
	if val == nil {
		return
	}
	info := e.infoFor(callAddr)
	e.observe(info, val, concrete)
	e.trace("maybe-mark", info)
}

// MarkImportant is markImportant: an unconditional mark. When val is nil
// (the tool lost the shadow, or no float op ever touched this value), the
// aggregate still records a zero-error hit rather than being silently
// skipped, matching marks.c's "couldn't find a shadow value" path.
func (e *Engine) MarkImportant(callAddr uint64, val *shadow.Value, concrete float64) {
	info := e.infoFor(callAddr)
	if val == nil {
		// marks.c resets eagg.max_error from its sentinel -1 to 0 here; our
		// ErrorAggregate's zero value already floors at 0, so only the
		// count needs bumping.
		info.Eagg.NumEvals++
		e.trace("mark-no-shadow", info)
		return
	}
	e.observe(info, val, concrete)
	e.trace("mark", info)
}

// EscapeFromFloat is markEscapeFromFloat: recorded whenever a float value
// is reinterpreted as an integer or pointer and used as such. markType
// names the escape kind (e.g. "int-cast", "ptr-deref"); mismatch reports
// whether the concrete and shadow values disagreed about whether this was
// really a float; vals are the shadow values observed at the escape (up
// to two operand positions, matching marks.c's fixed Exprs[2]).
func (e *Engine) EscapeFromFloat(callAddr uint64, markType string, mismatch bool, vals []*shadow.Value) {
	info := e.intInfoFor(callAddr, markType)
	info.NumHits++
	if mismatch {
		info.NumMismatches++
	}
	if len(vals) > info.NArgs {
		info.NArgs = len(vals)
	}
	for i, v := range vals {
		if v == nil {
			continue
		}
		if !e.cfg.NoInfluences && mismatch {
			info.Influences.Merge(v.Influences)
		}
		if !e.cfg.NoExprs && v.Expr != nil && i < 2 {
			if info.Exprs[i] == nil {
				info.Exprs[i] = symbolic.NewSite()
			}
			symbolic.Generalize(info.Exprs[i], v.Expr)
		}
	}
	e.trace("escape-from-float", info)
}

func (e *Engine) trace(event string, subject fmt.Stringer) {
	if e.tracer != nil {
		e.tracer.Trace(event, subject)
	}
}

// Marks returns every registered plain mark, in no particular order.
func (e *Engine) Marks() []*Info {
	out := make([]*Info, 0, len(e.marks))
	for _, info := range e.marks {
		out = append(out, info)
	}
	return out
}

// IntMarks returns every registered escape-from-float mark, in no
// particular order.
func (e *Engine) IntMarks() []*IntInfo {
	out := make([]*IntInfo, 0)
	for _, byType := range e.intMarks {
		for _, info := range byType {
			out = append(out, info)
		}
	}
	return out
}
