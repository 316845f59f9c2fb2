// Copyright 2024 The Herbgrind Authors
// This file is part of Herbgrind.

package symbolic

// VarMap groups the leaves of an expression tree into equivalence classes
// of "the same variable" (spec §4.8, grounded on
// original_source/src/types/hg_ast.c's initValValarMap/registerLeaf pair).
// It is kept in the two representations the original maintains side by
// side: leaf -> group id for an O(1) membership test, and group id ->
// members for iterating a class.
type VarMap struct {
	GroupOf map[*Expr]int
	Groups  [][]*Expr
}

func newVarMap() *VarMap {
	return &VarMap{GroupOf: map[*Expr]int{}}
}

func (vm *VarMap) add(leaf *Expr, group int) {
	for group >= len(vm.Groups) {
		vm.Groups = append(vm.Groups, nil)
	}
	vm.Groups[group] = append(vm.Groups[group], leaf)
	vm.GroupOf[leaf] = group
}

// removeMember drops leaf from group g's member list. Called when a
// subtree collapses and its old leaf identities are about to be returned
// to the shared free-list (internal/symbolic's pool.go) -- without this, a
// later, wholly unrelated leaf that reuses the same freed *Expr could
// spuriously inherit the stale leaf's group membership by pointer identity.
func (vm *VarMap) removeMember(g int, leaf *Expr) {
	if g < 0 || g >= len(vm.Groups) {
		return
	}
	members := vm.Groups[g]
	for i, m := range members {
		if m == leaf {
			vm.Groups[g] = append(members[:i], members[i+1:]...)
			return
		}
	}
}

// buildValueVarMap groups the leaves of a single, freshly built per-call
// expression tree by raw float32 value (every leaf, constant or variable,
// carries a concrete value in its own trace; registerLeaf in the original
// groups purely on that value, irrespective of const/variable status).
// Two leaves land in the same group iff their values round to the same
// float32 bit pattern -- the intentional precision loss the spec calls out
// in its var_map note (SPEC_FULL §"Supplemental features").
func buildValueVarMap(root *Expr) *VarMap {
	vm := newVarMap()
	bitsToGroup := map[uint32]int{}
	var walk func(*Expr)
	walk = func(n *Expr) {
		if n.leaf {
			bits := n.leafValue().Float32Bits()
			g, ok := bitsToGroup[bits]
			if !ok {
				g = len(vm.Groups)
				bitsToGroup[bits] = g
			}
			vm.add(n, g)
			return
		}
		for _, a := range n.args {
			walk(a)
		}
	}
	walk(root)
	return vm
}

// leafMatch pairs a site leaf that survived a generalization round with the
// per-call variable-group id its corresponding value leaf fell into.
type leafMatch struct {
	siteLeaf   *Expr
	traceGroup int
}

// refine intersects vm's current partition with the one implied by
// matches: two site leaves that used to share a group are split apart the
// moment any single trace places their corresponding value leaves in
// different groups. Repeated application converges to the coarsest
// partition consistent with every trace observed so far (spec §8's
// var-map monotonicity property).
func (vm *VarMap) refine(matches []leafMatch) {
	traceGroupOf := make(map[*Expr]int, len(matches))
	for _, m := range matches {
		traceGroupOf[m.siteLeaf] = m.traceGroup
	}

	oldGroups := vm.Groups
	vm.Groups = nil
	vm.GroupOf = map[*Expr]int{}

	for _, members := range oldGroups {
		buckets := map[int][]*Expr{}
		order := []int{}
		var untouched []*Expr
		for _, leaf := range members {
			tg, ok := traceGroupOf[leaf]
			if !ok {
				// Leaf wasn't part of this trace's correspondence (it was
				// collapsed away, or the trace's tree didn't reach it);
				// carry it forward unsplit.
				untouched = append(untouched, leaf)
				continue
			}
			if _, seen := buckets[tg]; !seen {
				order = append(order, tg)
			}
			buckets[tg] = append(buckets[tg], leaf)
		}
		for _, tg := range order {
			g := len(vm.Groups)
			vm.Groups = append(vm.Groups, nil)
			for _, leaf := range buckets[tg] {
				vm.add(leaf, g)
			}
		}
		if len(untouched) > 0 {
			g := len(vm.Groups)
			vm.Groups = append(vm.Groups, nil)
			for _, leaf := range untouched {
				vm.add(leaf, g)
			}
		}
	}
}

// registerFresh adds a brand-new, unconstrained site leaf (one introduced
// this round, e.g. by a collapse) as a singleton group.
func (vm *VarMap) registerFresh(leaf *Expr) {
	vm.add(leaf, len(vm.Groups))
}

// SameVariable reports whether a and b are in the same variable-group of
// vm; two leaves not tracked by vm at all are never considered the same.
func (vm *VarMap) SameVariable(a, b *Expr) bool {
	ga, ok := vm.GroupOf[a]
	if !ok {
		return false
	}
	gb, ok := vm.GroupOf[b]
	return ok && ga == gb
}
