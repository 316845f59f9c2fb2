// Copyright 2024 The Herbgrind Authors
// This file is part of Herbgrind.

package symbolic

import lru "github.com/hashicorp/golang-lru"

// dedupWindow bounds the per-site memo of recently observed trace hashes
// (see Site.dedup). 256 entries comfortably covers a tight hot loop without
// growing unboundedly for sites with genuinely varied traffic.
const dedupWindow = 256

// SiteState is the Empty/Specific/Generalised state machine spec §4.8
// attaches to every static op site's accumulated expression.
type SiteState int

const (
	// SiteEmpty: no trace has reached this site yet.
	SiteEmpty SiteState = iota
	// SiteSpecific: exactly one trace has been observed; the site's
	// expression is that trace's tree, verbatim.
	SiteSpecific
	// SiteGeneralised: two or more traces disagreed somewhere, and the
	// site's expression has at least one variable leaf.
	SiteGeneralised
)

// Site holds a static op site's accumulated symbolic expression and its
// var_map, refined across every trace that has passed through it.
type Site struct {
	State  SiteState
	Root   *Expr
	VarMap *VarMap

	// dedup recognizes a just-seen, bit-identical trace so a tight loop
	// hammering the same op site doesn't redo the lock-step walk and
	// var_map refinement on input it has already folded in once.
	dedup *lru.Cache
}

// NewSite returns an empty site ready for its first observation.
func NewSite() *Site {
	c, _ := lru.New(dedupWindow)
	return &Site{State: SiteEmpty, dedup: c}
}

// Generalize folds one freshly observed per-call expression tree into s,
// per spec §4.8:
//
//   - Empty -> Specific: adopt value verbatim.
//   - Specific/Generalised: walk s.Root and value in lock-step; a leaf
//     pair with equal constants is kept; any other pairing (differing
//     constants, a leaf against a branch, or branches with different ops)
//     collapses that position of s.Root to a variable leaf, discarding
//     whatever subtree of value sat there without exploring into it.
//
// Generalize takes no ownership of value; the caller still owns it and
// must Disown it once done (the site always works on its own Clone).
func Generalize(s *Site, value *Expr) {
	if s.State == SiteEmpty {
		s.Root = Clone(value)
		s.VarMap = buildValueVarMap(s.Root)
		s.State = SiteSpecific
		if s.dedup != nil {
			s.dedup.Add(structuralHash(value), struct{}{})
		}
		return
	}

	if s.dedup != nil {
		key := structuralHash(value)
		if s.dedup.Contains(key) {
			return
		}
		s.dedup.Add(key, struct{}{})
	}

	g := &generalizer{valueGroups: buildValueVarMap(value), varMap: s.VarMap}
	s.Root = g.node(s.Root, value)
	s.VarMap.refine(g.matches)
	if hasVariableLeaf(s.Root) {
		s.State = SiteGeneralised
	}
}

func hasVariableLeaf(n *Expr) bool {
	if n.leaf {
		return n.IsVariable()
	}
	for _, a := range n.args {
		if hasVariableLeaf(a) {
			return true
		}
	}
	return false
}

type generalizer struct {
	valueGroups *VarMap
	varMap      *VarMap
	matches     []leafMatch
}

// node returns the (possibly replaced) node that should sit at site's
// position after folding in value.
func (g *generalizer) node(site, value *Expr) *Expr {
	if site.IsVariable() {
		// Already collapsed; stays a variable regardless of what value
		// looks like here. Its var_map membership (assigned when it was
		// first introduced) carries no further per-trace correspondence,
		// so it is simply left out of this round's matches.
		return site
	}

	if site.leaf && value.leaf {
		if site.constVal != nil && value.constVal != nil && site.constVal.Float64() == value.constVal.Float64() {
			g.matches = append(g.matches, leafMatch{siteLeaf: site, traceGroup: g.valueGroups.GroupOf[value]})
			return site
		}
		return g.collapse(site, value)
	}

	if !site.leaf && !value.leaf && site.op == value.op && len(site.args) == len(value.args) {
		for i := range site.args {
			site.args[i] = g.node(site.args[i], value.args[i])
		}
		return site
	}

	return g.collapse(site, value)
}

// collapse replaces site (a leaf or an entire mismatched branch) with a
// fresh variable leaf. Every leaf identity inside the discarded subtree is
// purged from the var_map before it is disowned and returned to the shared
// free-list, since a later, unrelated leaf can reuse that same *Expr and
// must not inherit its old group membership. The fresh leaf is registered
// as an unconstrained singleton.
func (g *generalizer) collapse(site, value *Expr) *Expr {
	g.purgeLeaves(site)
	fresh := NewLeafVar(leftmostLeaf(value).leafValue().Copy())
	Disown(site)
	g.varMap.registerFresh(fresh)
	return fresh
}

func (g *generalizer) purgeLeaves(n *Expr) {
	if n.leaf {
		if gidx, ok := g.varMap.GroupOf[n]; ok {
			g.varMap.removeMember(gidx, n)
			delete(g.varMap.GroupOf, n)
		}
		return
	}
	for _, a := range n.args {
		g.purgeLeaves(a)
	}
}

// leftmostLeaf returns the left-most leaf reachable from n, used to give a
// freshly collapsed variable leaf a concrete value to print and to group
// future traces against.
func leftmostLeaf(n *Expr) *Expr {
	if n.leaf {
		return n
	}
	return leftmostLeaf(n.args[0])
}
