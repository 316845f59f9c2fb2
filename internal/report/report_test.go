// Copyright 2024 The Herbgrind Authors
// This file is part of Herbgrind.

package report

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/herbgrind/shadowvm/internal/config"
	"github.com/herbgrind/shadowvm/internal/irstmt"
	"github.com/herbgrind/shadowvm/internal/opinfo"
	"github.com/herbgrind/shadowvm/internal/real"
	"github.com/herbgrind/shadowvm/internal/symbolic"
)

func leaf(v float64) *symbolic.Expr { return symbolic.NewLeafConst(real.FromFloat64(v)) }

func siteWithExpr(e *symbolic.Expr) *symbolic.Site {
	return &symbolic.Site{State: symbolic.SiteSpecific, Root: e}
}

func infoAt(addr uint64, fn string, maxErr float64, expr *symbolic.Expr) *opinfo.Info {
	info := &opinfo.Info{
		Site:         opinfo.Site{OpCode: irstmt.OpAdd, Addr: addr},
		FunctionName: fn,
		FileName:     "demo.c",
		Line:         10,
	}
	info.Eagg.Observe(maxErr, maxErr)
	if expr != nil {
		info.Expr = siteWithExpr(expr)
	}
	return info
}

func TestBuildRecordsSortsByMaxErrorDescending(t *testing.T) {
	cfg := config.Default()
	r := New(cfg, nil)

	small := infoAt(0x1, "f", 1.0, nil)
	big := infoAt(0x2, "f", 9.0, nil)
	mid := infoAt(0x3, "f", 5.0, nil)

	recs := r.BuildRecords([]*opinfo.Info{small, big, mid})
	if len(recs) != 3 {
		t.Fatalf("len(recs) = %d, want 3", len(recs))
	}
	if recs[0].MaxError != 9.0 || recs[1].MaxError != 5.0 || recs[2].MaxError != 1.0 {
		t.Fatalf("records not sorted descending by max error: %+v", recs)
	}
}

func TestBuildRecordsSkipsUnresolvedSymbols(t *testing.T) {
	cfg := config.Default()
	r := New(cfg, nil)

	resolved := infoAt(0x1, "f", 3.0, nil)
	unresolved := infoAt(0x2, "", 9.0, nil)

	recs := r.BuildRecords([]*opinfo.Info{resolved, unresolved})
	if len(recs) != 1 {
		t.Fatalf("len(recs) = %d, want 1 (unresolved site dropped)", len(recs))
	}
	if recs[0].Function != "f" {
		t.Fatalf("kept the wrong record: %+v", recs[0])
	}
}

func TestBuildRecordsPrunesSubexpressions(t *testing.T) {
	cfg := config.Default()
	cfg.ReportExprs = true
	r := New(cfg, nil)

	inner := symbolic.NewBranch(irstmt.OpAdd, leaf(1), leaf(2))
	symbolic.Own(inner)
	outer := symbolic.NewBranch(irstmt.OpMul, inner, leaf(3))

	innerInfo := infoAt(0x1, "f", 5.0, inner)
	outerInfo := infoAt(0x2, "f", 9.0, outer)

	recs := r.BuildRecords([]*opinfo.Info{innerInfo, outerInfo})
	if len(recs) != 1 {
		t.Fatalf("len(recs) = %d, want 1 (inner pruned as a subexpression of outer)", len(recs))
	}
	if recs[0].InstrAddr != 0x2 {
		t.Fatalf("kept the wrong site: %+v", recs[0])
	}
}

func TestBuildRecordsLeavesDistinctExpressionsAlone(t *testing.T) {
	cfg := config.Default()
	cfg.ReportExprs = true
	r := New(cfg, nil)

	a := infoAt(0x1, "f", 5.0, symbolic.NewBranch(irstmt.OpAdd, leaf(1), leaf(2)))
	b := infoAt(0x2, "f", 9.0, symbolic.NewBranch(irstmt.OpSub, leaf(3), leaf(4)))

	recs := r.BuildRecords([]*opinfo.Info{a, b})
	if len(recs) != 2 {
		t.Fatalf("len(recs) = %d, want 2 (unrelated expressions, nothing to prune)", len(recs))
	}
}

func TestWriteReportSExprRoundTrip(t *testing.T) {
	cfg := config.Default()
	r := New(cfg, nil)
	recs := r.BuildRecords([]*opinfo.Info{infoAt(0x401abc, "add", 1.3, nil)})

	path := filepath.Join(t.TempDir(), "report.txt")
	if err := r.WriteReport(path, recs); err != nil {
		t.Fatalf("WriteReport: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading report: %v", err)
	}
	got := string(data)
	if !strings.Contains(got, `(function "add")`) || !strings.Contains(got, `(line-num 10)`) {
		t.Fatalf("report missing expected fields: %s", got)
	}
}

func TestWriteReportEmptySetSaysNoErrors(t *testing.T) {
	r := New(config.Default(), nil)
	path := filepath.Join(t.TempDir(), "report.txt")
	if err := r.WriteReport(path, nil); err != nil {
		t.Fatalf("WriteReport: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading report: %v", err)
	}
	if !strings.Contains(string(data), "No errors found.") {
		t.Fatalf("expected the no-errors sentinel, got: %s", data)
	}
}

func TestWriteReportOpenFailureIsNonFatal(t *testing.T) {
	r := New(config.Default(), nil)
	// A path under a file (not a directory) can never be created.
	blocked := filepath.Join(t.TempDir(), "not-a-dir")
	if err := os.WriteFile(blocked, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := r.WriteReport(filepath.Join(blocked, "report.txt"), nil); err != nil {
		t.Fatalf("WriteReport should swallow an open failure, got: %v", err)
	}
}

func TestFilterInfluenceSubexprsDropsNestedInfluence(t *testing.T) {
	inner := symbolic.NewBranch(irstmt.OpAdd, leaf(1), leaf(2))
	symbolic.Own(inner)
	outer := symbolic.NewBranch(irstmt.OpMul, inner, leaf(3))

	set := opinfo.NewInfluenceSet()
	set.Add(infoAt(0x1, "f", 1.0, inner))
	set.Add(infoAt(0x2, "f", 1.0, outer))

	filtered := FilterInfluenceSubexprs(set, 8)
	if filtered.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", filtered.Len())
	}
	if filtered.Members()[0].Site.Addr != 0x2 {
		t.Fatalf("kept the wrong influence: %+v", filtered.Members()[0])
	}
}

func TestFilterUnimprovableInfluencesKeepsOnlyRepeatedVars(t *testing.T) {
	varLeaf := symbolic.NewLeafVar(real.FromFloat64(1))
	symbolic.Own(varLeaf)
	repeated := symbolic.NewBranch(irstmt.OpSub, varLeaf, varLeaf)
	vmRepeated := &symbolic.VarMap{
		GroupOf: map[*symbolic.Expr]int{varLeaf: 0},
		Groups:  [][]*symbolic.Expr{{varLeaf, varLeaf}},
	}
	siteRepeated := &symbolic.Site{State: symbolic.SiteSpecific, Root: repeated, VarMap: vmRepeated}

	distinctA := symbolic.NewLeafVar(real.FromFloat64(1))
	distinctB := symbolic.NewLeafVar(real.FromFloat64(2))
	plain := symbolic.NewBranch(irstmt.OpAdd, distinctA, distinctB)
	vmPlain := &symbolic.VarMap{
		GroupOf: map[*symbolic.Expr]int{distinctA: 0, distinctB: 1},
		Groups:  [][]*symbolic.Expr{{distinctA}, {distinctB}},
	}
	sitePlain := &symbolic.Site{State: symbolic.SiteSpecific, Root: plain, VarMap: vmPlain}

	repeatedInfo := &opinfo.Info{Site: opinfo.Site{Addr: 0x1}, Expr: siteRepeated}
	plainInfo := &opinfo.Info{Site: opinfo.Site{Addr: 0x2}, Expr: sitePlain}

	set := opinfo.NewInfluenceSet()
	set.Add(repeatedInfo)
	set.Add(plainInfo)

	filtered := FilterUnimprovableInfluences(set)
	if filtered.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", filtered.Len())
	}
	if filtered.Members()[0].Site.Addr != 0x1 {
		t.Fatalf("kept the wrong influence: %+v", filtered.Members()[0])
	}
}
