// Copyright 2024 The Herbgrind Authors
// This file is part of Herbgrind.

package opinfo

import (
	"testing"

	"github.com/herbgrind/shadowvm/internal/irstmt"
)

func TestRegistryResolveIsStable(t *testing.T) {
	r := NewRegistry(true)
	site := Site{OpCode: irstmt.OpAdd, Addr: 0x1000, BlockAddr: 0xf00}

	a := r.Resolve(site)
	b := r.Resolve(site)
	if a != b {
		t.Fatal("Resolve should return the same *Info for a repeated address")
	}
	if r.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", r.Len())
	}
	if a.Expr == nil {
		t.Fatal("expression tracking enabled, Expr should not be nil")
	}
}

func TestRegistryNoExprs(t *testing.T) {
	r := NewRegistry(false)
	info := r.Resolve(Site{OpCode: irstmt.OpMul, Addr: 0x2000})
	if info.Expr != nil {
		t.Fatal("expression tracking disabled, Expr should be nil")
	}
}

func TestErrorAggregateObserve(t *testing.T) {
	var agg ErrorAggregate
	agg.Observe(1, 2)
	agg.Observe(3, 1)

	if agg.MaxLocal != 3 {
		t.Errorf("MaxLocal = %v, want 3", agg.MaxLocal)
	}
	if agg.MaxTotal != 2 {
		t.Errorf("MaxTotal = %v, want 2", agg.MaxTotal)
	}
	if agg.NumEvals != 2 {
		t.Errorf("NumEvals = %d, want 2", agg.NumEvals)
	}
	if agg.AvgLocal() != 2 {
		t.Errorf("AvgLocal() = %v, want 2", agg.AvgLocal())
	}
	if agg.AvgTotal() != 1.5 {
		t.Errorf("AvgTotal() = %v, want 1.5", agg.AvgTotal())
	}
}

func TestInfluenceSetDedupAndOrder(t *testing.T) {
	r := NewRegistry(false)
	a := r.Resolve(Site{OpCode: irstmt.OpAdd, Addr: 1})
	b := r.Resolve(Site{OpCode: irstmt.OpSub, Addr: 2})

	s := NewInfluenceSet()
	s.Add(a)
	s.Add(b)
	s.Add(a) // duplicate, should not double up or reorder

	if s.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", s.Len())
	}
	members := s.Members()
	if members[0] != a || members[1] != b {
		t.Fatalf("insertion order not preserved: %v", members)
	}
}

func TestInfluenceSetMerge(t *testing.T) {
	r := NewRegistry(false)
	a := r.Resolve(Site{OpCode: irstmt.OpAdd, Addr: 1})
	b := r.Resolve(Site{OpCode: irstmt.OpSub, Addr: 2})
	c := r.Resolve(Site{OpCode: irstmt.OpMul, Addr: 3})

	s1 := NewInfluenceSet()
	s1.Add(a)
	s2 := NewInfluenceSet()
	s2.Add(b)
	s2.Add(c)

	s1.Merge(s2)
	if s1.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", s1.Len())
	}
	if !s1.Contains(a) || !s1.Contains(b) || !s1.Contains(c) {
		t.Fatal("merged set missing a member")
	}
}
