// Copyright 2024 The Herbgrind Authors
// This file is part of Herbgrind.

package shadow

import (
	"testing"

	"github.com/herbgrind/shadowvm/internal/fttype"
	"github.com/herbgrind/shadowvm/internal/real"
)

func TestValueRefCounting(t *testing.T) {
	v := NewValue(fttype.Double, real.FromFloat64(1.5), nil, nil)
	if v.RefCount() != 1 {
		t.Fatalf("RefCount() = %d, want 1", v.RefCount())
	}
	Own(v)
	if v.RefCount() != 2 {
		t.Fatalf("RefCount() = %d, want 2", v.RefCount())
	}
	Disown(v)
	if v.RefCount() != 1 {
		t.Fatalf("RefCount() = %d, want 1", v.RefCount())
	}
	Disown(v)
}

func TestValuePanicsOnNonFloatWidth(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected a panic constructing a Value with a non-shadow FloatType")
		}
	}()
	NewValue(fttype.Unknown, real.New(), nil, nil)
}

func TestTempFreeListRecycles(t *testing.T) {
	t1 := NewTemp(2)
	t1.Values[0] = NewValue(fttype.Double, real.FromFloat64(1), nil, nil)
	t1.Values[1] = NewValue(fttype.Double, real.FromFloat64(2), nil, nil)
	FreeTemp(t1)

	t2 := NewTemp(2)
	if t2.NumVals() != 2 {
		t.Fatalf("NumVals() = %d, want 2", t2.NumVals())
	}
	for i, v := range t2.Values {
		if v != nil {
			t.Fatalf("recycled temp lane %d should start nil, got %v", i, v)
		}
	}
}

func TestWidenProducesCorrectWidth(t *testing.T) {
	v := Widen(fttype.Single, 3.5, true)
	if v.Type != fttype.Single {
		t.Fatalf("Type = %v, want Single", v.Type)
	}
	if v.Expr == nil {
		t.Fatal("expression tracking enabled, Widen should attach an Expr")
	}
	if !v.Expr.IsVariable() {
		t.Fatal("a widened value's expr should be an opaque variable leaf")
	}
	Disown(v)
}

func TestMallocLogRoundTrip(t *testing.T) {
	if err := EnableMallocLog(8); err != nil {
		t.Fatalf("EnableMallocLog: %v", err)
	}
	defer DisableMallocLog()

	malloc.record(mallocValue)
	malloc.record(mallocTemp)

	events := MallocEvents()
	if len(events) != 2 {
		t.Fatalf("len(events) = %d, want 2", len(events))
	}
	if events[0].Kind != mallocValue || events[1].Kind != mallocTemp {
		t.Fatalf("events = %v, want [value temp]", events)
	}
}
