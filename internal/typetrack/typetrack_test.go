// Copyright 2024 The Herbgrind Authors
// This file is part of Herbgrind.

package typetrack

import (
	"testing"

	"github.com/herbgrind/shadowvm/internal/fttype"
	"github.com/herbgrind/shadowvm/internal/irstmt"
)

func TestResetHavocsToUnknown(t *testing.T) {
	tr := New()
	tr.SetTempType(1, fttype.Double)
	if tr.TempType(1) != fttype.Double {
		t.Fatal("expected Double before reset")
	}
	tr.Reset()
	if tr.TempType(1) != fttype.Unknown {
		t.Fatal("expected Unknown after reset (block-entry havoc)")
	}
}

func TestCanHaveShadowExcludesConstants(t *testing.T) {
	constExpr := irstmt.ConstExpr(0x4000000000000000, irstmt.TyF64)
	if CanHaveShadow(constExpr) {
		t.Fatal("a bare constant should never be eligible for a shadow")
	}
	tmpExpr := irstmt.TmpExpr(5, irstmt.TyF64)
	if !CanHaveShadow(tmpExpr) {
		t.Fatal("a float-typed temp reference should be shadow-eligible")
	}
}

func TestSizeOf(t *testing.T) {
	if SizeOf(irstmt.TmpExpr(0, irstmt.TyF64)) != 2 {
		t.Fatal("a double should be 2 words (8 bytes)")
	}
	if SizeOf(irstmt.TmpExpr(0, irstmt.TyF32)) != 1 {
		t.Fatal("a single should be 1 word (4 bytes)")
	}
}

func TestHasStaticShadow(t *testing.T) {
	tr := New()
	if tr.HasStaticShadow(2) {
		t.Fatal("unwritten temp should not assert a static shadow")
	}
	tr.SetTempType(2, fttype.Single)
	if !tr.HasStaticShadow(2) {
		t.Fatal("Single should assert a static shadow")
	}
}
