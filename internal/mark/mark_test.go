// Copyright 2024 The Herbgrind Authors
// This file is part of Herbgrind.

package mark

import (
	"testing"

	"github.com/herbgrind/shadowvm/internal/config"
	"github.com/herbgrind/shadowvm/internal/fttype"
	"github.com/herbgrind/shadowvm/internal/opinfo"
	"github.com/herbgrind/shadowvm/internal/real"
	"github.com/herbgrind/shadowvm/internal/shadow"
)

func TestMaybeMarkImportantNoShadowIsNoop(t *testing.T) {
	e := New(config.Default(), nil)
	e.MaybeMarkImportant(0x100, nil, 1.0)
	if len(e.Marks()) != 0 {
		t.Fatal("expected no mark to be created for a missing shadow")
	}
}

func TestMarkImportantRecordsZeroErrorOnMissingShadow(t *testing.T) {
	e := New(config.Default(), nil)
	e.MarkImportant(0x200, nil, 1.0)
	marks := e.Marks()
	if len(marks) != 1 {
		t.Fatalf("len(Marks()) = %d, want 1", len(marks))
	}
	if marks[0].Eagg.NumEvals != 1 {
		t.Fatalf("NumEvals = %d, want 1", marks[0].Eagg.NumEvals)
	}
}

func TestMarkImportantObservesError(t *testing.T) {
	e := New(config.Default(), nil)
	v := shadow.NewValue(fttype.Double, real.FromFloat64(1.0), nil, nil)
	e.MarkImportant(0x300, v, 1.0)
	marks := e.Marks()
	if len(marks) != 1 || marks[0].Eagg.NumEvals != 1 {
		t.Fatal("expected exactly one observation recorded")
	}
}

func TestMarkImportantMergesInfluenceAboveThreshold(t *testing.T) {
	cfg := config.Default()
	cfg.ErrorThresholdBits = -1
	e := New(cfg, nil)

	infl := opinfo.NewInfluenceSet()
	infl.Add(&opinfo.Info{Site: opinfo.Site{Addr: 0x1}})
	v := shadow.NewValue(fttype.Double, real.FromFloat64(1.0), nil, infl)

	e.MarkImportant(0x400, v, 1.0)
	marks := e.Marks()
	if marks[0].Influences.Len() == 0 {
		t.Fatal("expected the value's influence to merge in")
	}
}

func TestEscapeFromFloatTracksMismatchCount(t *testing.T) {
	e := New(config.Default(), nil)
	v := shadow.NewValue(fttype.Double, real.FromFloat64(1.0), nil, nil)

	e.EscapeFromFloat(0x500, "int-cast", true, []*shadow.Value{v})
	e.EscapeFromFloat(0x500, "int-cast", false, []*shadow.Value{v})

	marks := e.IntMarks()
	if len(marks) != 1 {
		t.Fatalf("len(IntMarks()) = %d, want 1", len(marks))
	}
	if marks[0].NumHits != 2 {
		t.Fatalf("NumHits = %d, want 2", marks[0].NumHits)
	}
	if marks[0].NumMismatches != 1 {
		t.Fatalf("NumMismatches = %d, want 1", marks[0].NumMismatches)
	}
}

func TestMarkImportantStillRecordsWithNoInfluences(t *testing.T) {
	cfg := config.Default()
	cfg.NoInfluences = true
	cfg.ErrorThresholdBits = -1
	e := New(cfg, nil)

	infl := opinfo.NewInfluenceSet()
	infl.Add(&opinfo.Info{Site: opinfo.Site{Addr: 0x1}})
	v := shadow.NewValue(fttype.Double, real.FromFloat64(1.0), nil, infl)

	e.MarkImportant(0x700, v, 1.0)
	marks := e.Marks()
	if len(marks) != 1 || marks[0].Eagg.NumEvals != 1 {
		t.Fatal("expected the mark to still be recorded as a pure error report")
	}
	if marks[0].Influences.Len() != 0 {
		t.Fatal("expected no influence merge when NoInfluences is set")
	}
}

func TestEscapeFromFloatStillRecordsWithNoInfluences(t *testing.T) {
	cfg := config.Default()
	cfg.NoInfluences = true
	e := New(cfg, nil)

	infl := opinfo.NewInfluenceSet()
	infl.Add(&opinfo.Info{Site: opinfo.Site{Addr: 0x1}})
	v := shadow.NewValue(fttype.Double, real.FromFloat64(1.0), nil, infl)

	e.EscapeFromFloat(0x800, "int-cast", true, []*shadow.Value{v})
	marks := e.IntMarks()
	if len(marks) != 1 || marks[0].NumHits != 1 {
		t.Fatal("expected the escape mark to still be recorded")
	}
	if marks[0].Influences.Len() != 0 {
		t.Fatal("expected no influence merge when NoInfluences is set")
	}
}

func TestEscapeFromFloatSeparatesMarkTypes(t *testing.T) {
	e := New(config.Default(), nil)
	e.EscapeFromFloat(0x600, "int-cast", false, nil)
	e.EscapeFromFloat(0x600, "ptr-deref", false, nil)
	if len(e.IntMarks()) != 2 {
		t.Fatalf("len(IntMarks()) = %d, want 2 (distinct mark types at the same address)", len(e.IntMarks()))
	}
}
