// Copyright 2024 The Herbgrind Authors
// This file is part of Herbgrind.

// Package report implements the Reporter (spec §4.10): it turns the
// registry of observed op sites into the final report artifact, sorted by
// error and, when expressions are tracked, pruned of sub-expressions
// already covered by a larger reported site. Grounded directly on
// original_source/src/runtime/hg_op_tracker.c's writeReport, which sorts by
// max_error (cmp_debuginfo), recursively clears subexpression entries when
// report_exprs is set, and writes either the human-readable paragraph or
// the S-expression record per entry.
package report

import (
	"fmt"
	"sort"

	"github.com/herbgrind/shadowvm/internal/config"
	"github.com/herbgrind/shadowvm/internal/hglog"
	"github.com/herbgrind/shadowvm/internal/opinfo"
	"github.com/herbgrind/shadowvm/internal/symbolic"
)

// Record is one reportable entry: the flattened fields spec §6's two report
// formats both draw from.
type Record struct {
	Expr      string // empty when report-exprs is off
	PlainName string
	Function  string
	Filename  string
	Line      int
	InstrAddr uint64
	AvgError  float64
	MaxError  float64
	NumCalls  uint64
}

// Reporter builds and writes report records from a run's op-site registry.
type Reporter struct {
	cfg    config.Config
	tracer *hglog.Tracer
}

// New returns a Reporter bound to cfg.
func New(cfg config.Config, tracer *hglog.Tracer) *Reporter {
	return &Reporter{cfg: cfg, tracer: tracer}
}

// BuildRecords sorts infos by max total error descending, drops entries with
// no resolved symbol (the translator never attached debug info, mirroring
// writeReport's "fnname == NULL" skip), prunes sub-expressions when
// ReportExprs is set, and flattens what remains into Records in report order.
func (r *Reporter) BuildRecords(infos []*opinfo.Info) []Record {
	kept := make([]*opinfo.Info, 0, len(infos))
	for _, info := range infos {
		if info.FunctionName == "" {
			continue
		}
		kept = append(kept, info)
	}

	sort.Slice(kept, func(i, j int) bool {
		return kept[i].Eagg.MaxTotal > kept[j].Eagg.MaxTotal
	})

	if r.cfg.ReportExprs {
		kept = pruneSubexprSites(kept, r.cfg.MaxExprBlockDepth*2)
	}

	records := make([]Record, 0, len(kept))
	for _, info := range kept {
		rec := Record{
			PlainName: info.Site.OpCode.String(),
			Function:  info.FunctionName,
			Filename:  info.FileName,
			Line:      info.Line,
			InstrAddr: info.Site.Addr,
			AvgError:  info.Eagg.AvgTotal(),
			MaxError:  info.Eagg.MaxTotal,
			NumCalls:  info.Eagg.NumEvals,
		}
		if r.cfg.ReportExprs && info.Expr != nil && info.Expr.Root != nil {
			rec.Expr = info.Expr.Root.String()
		}
		records = append(records, rec)
	}
	if r.tracer != nil {
		r.tracer.Trace("report-built", reportSummary{total: len(infos), kept: len(records)})
	}
	return records
}

type reportSummary struct{ total, kept int }

func (s reportSummary) String() string {
	return fmt.Sprintf("sites=%d kept=%d", s.total, s.kept)
}

// pruneSubexprSites removes any site whose generalized expression is a
// strict sub-expression (bounded by depth) of another surviving site's
// expression -- writeReport's recursivelyClearChildren, translated from
// identity-based child lookup (the original's per-instance AST nodes carry
// a direct back-reference to the Op_Info that produced them) to structural
// equality over the generalized trees this design keeps instead (see
// DESIGN.md). Sites with no tracked expression are never pruned and never
// used to prune others.
func pruneSubexprSites(infos []*opinfo.Info, depth int) []*opinfo.Info {
	roots := make([]*symbolic.Expr, len(infos))
	for i, info := range infos {
		if info.Expr != nil {
			roots[i] = info.Expr.Root
		}
	}

	kept := make([]*opinfo.Info, 0, len(infos))
	for i, info := range infos {
		if roots[i] == nil {
			kept = append(kept, info)
			continue
		}
		subsumed := false
		for j, other := range roots {
			if j == i || other == nil {
				continue
			}
			if isStrictSubexpr(roots[i], other, depth) {
				subsumed = true
				break
			}
		}
		if !subsumed {
			kept = append(kept, info)
		}
	}
	return kept
}

// isStrictSubexpr reports whether needle's rendered shape matches some
// proper descendant of haystack (never haystack itself), bounded by depth.
// Expr.String renders variable leaves by position rather than identity, so
// two structurally identical trees always render identically regardless of
// which instance produced them -- exactly the "same expression, modulo
// variable naming" equality the original's identity check achieved for
// free within a single shared AST.
func isStrictSubexpr(needle, haystack *symbolic.Expr, depth int) bool {
	if depth < 1 || haystack.IsLeaf() {
		return false
	}
	needleStr := needle.String()
	for _, child := range haystack.Args() {
		if child.String() == needleStr || isStrictSubexpr(needle, child, depth-1) {
			return true
		}
	}
	return false
}
