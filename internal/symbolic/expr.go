// Copyright 2024 The Herbgrind Authors
// This file is part of Herbgrind.

// Package symbolic implements the symbolic-expression tree (spec §4.8) and
// its per-op-site generalizer. An Expr is either a Leaf (a literal constant
// or a "variable" position of unknown provenance) or a Branch (an operator
// applied to argument sub-expressions). Expressions are shared, reference
// counted values (spec §4.2's ref-count discipline, grounded on
// probe-lang/lang/types/linear.go's move-once bookkeeping), not exclusively
// owned by any single ShadowValue.
package symbolic

import (
	"strings"

	"github.com/herbgrind/shadowvm/internal/irstmt"
	"github.com/herbgrind/shadowvm/internal/real"
)

// Expr is a node of a symbolic expression tree.
type Expr struct {
	leaf     bool
	constVal *real.Real // nil on a leaf means "variable position"; always nil on a branch
	varVal   *real.Real // set only on a variable leaf; see NewLeafVar
	op       irstmt.Op
	args     []*Expr

	refCount int
}

// NewLeafConst returns an owned (refCount=1) leaf carrying a literal value.
func NewLeafConst(v *real.Real) *Expr {
	e := leafPool.get()
	e.leaf = true
	e.constVal = v
	e.refCount = 1
	return e
}

// NewLeafVar returns an owned leaf at a "variable" (unknown provenance)
// position. val is still recorded (every leaf, const or variable, carries a
// concrete value in a given trace -- spec §4.8's var_map is built from it)
// but it is not treated as a reportable literal.
func NewLeafVar(val *real.Real) *Expr {
	e := leafPool.get()
	e.leaf = true
	e.constVal = nil
	e.refCount = 1
	e.varVal = val
	return e
}

// NewBranch returns an owned branch node over args. It adopts the caller's
// reference to each argument without taking a new one: a caller that keeps
// using an argument elsewhere must Own it before passing it here (as the
// executor does with each operand's expression).
func NewBranch(op irstmt.Op, args ...*Expr) *Expr {
	if len(args) == 0 {
		panic("symbolic: NewBranch requires at least one argument")
	}
	e := &Expr{op: op, args: args, refCount: 1}
	return e
}

// IsLeaf reports whether e is a leaf node.
func (e *Expr) IsLeaf() bool { return e.leaf }

// IsVariable reports whether e is a leaf at a variable (non-literal)
// position.
func (e *Expr) IsVariable() bool { return e.leaf && e.constVal == nil }

// Const returns the literal value of a constant leaf, or nil if e is a
// variable leaf or a branch.
func (e *Expr) Const() *real.Real {
	if e.leaf {
		return e.constVal
	}
	return nil
}

// Op returns the operator of a branch node; on a leaf it returns Op's zero
// value (OpAdd).
func (e *Expr) Op() irstmt.Op { return e.op }

// Args returns the argument sub-expressions of a branch node (nil for a
// leaf). The returned slice must not be mutated.
func (e *Expr) Args() []*Expr { return e.args }

// leafValue returns the concrete value attached to a leaf, whether constant
// or variable -- used by var-map construction, which groups purely on value
// regardless of constant/variable status (spec §4.8).
func (e *Expr) leafValue() *real.Real {
	if e.constVal != nil {
		return e.constVal
	}
	return e.varVal
}

// Own increments e's reference count.
func Own(e *Expr) {
	if e == nil {
		return
	}
	e.refCount++
}

// Disown decrements e's reference count; at zero it recursively disowns its
// args (branch) and releases e to the appropriate pool (spec §4.2).
func Disown(e *Expr) {
	if e == nil {
		return
	}
	e.refCount--
	if e.refCount > 0 {
		return
	}
	if e.refCount < 0 {
		panic("symbolic: ref-count went negative, invariant violated")
	}
	if e.leaf {
		e.constVal = nil
		e.varVal = nil
		leafPool.put(e)
		return
	}
	for _, a := range e.args {
		Disown(a)
	}
	e.args = nil
}

// Clone returns a fresh, owned deep copy of e with its own leaf identities
// (used when a site adopts a value's expression verbatim -- the site must
// own an independent tree it can later mutate in place during
// generalization without disturbing the value's own expr). A leaf that e
// reaches more than once is copied once and shared the same way in the copy.
func Clone(e *Expr) *Expr {
	return cloneWith(e, map[*Expr]*Expr{})
}

func cloneWith(e *Expr, leaves map[*Expr]*Expr) *Expr {
	if e.leaf {
		if c, ok := leaves[e]; ok {
			Own(c)
			return c
		}
		c := NewLeafVar(nil)
		if e.constVal != nil {
			c.constVal = e.constVal.Copy()
		} else {
			c.varVal = e.varVal.Copy()
		}
		leaves[e] = c
		return c
	}
	args := make([]*Expr, len(e.args))
	for i, a := range e.args {
		args[i] = cloneWith(a, leaves)
	}
	return NewBranch(e.op, args...)
}

// String renders e as an S-expression, e.g. "(+ x y)" or "(+ 4 5)",
// matching the report examples in spec §6: add, sub, mul and div print as
// +, -, * and /, any other op under its irstmt name. Variable leaves print
// as sequential single letters assigned in depth-first order; a leaf node
// reached more than once keeps the letter of its first appearance.
func (e *Expr) String() string {
	names := map[*Expr]string{}
	next := byte('x')
	var assign func(*Expr)
	assign = func(n *Expr) {
		if n.leaf {
			if n.IsVariable() {
				if _, ok := names[n]; !ok {
					names[n] = string(next)
					next++
				}
			}
			return
		}
		for _, a := range n.args {
			assign(a)
		}
	}
	assign(e)
	return e.stringWithNames(names)
}

func (e *Expr) stringWithNames(names map[*Expr]string) string {
	if e.leaf {
		if e.IsVariable() {
			if n, ok := names[e]; ok {
				return n
			}
			return "?"
		}
		return e.constVal.String()
	}
	parts := make([]string, 0, len(e.args)+1)
	parts = append(parts, opSymbol(e.op))
	for _, a := range e.args {
		parts = append(parts, a.stringWithNames(names))
	}
	return "(" + strings.Join(parts, " ") + ")"
}

// opSymbol returns the S-expression head String prints for op.
func opSymbol(op irstmt.Op) string {
	switch op {
	case irstmt.OpAdd:
		return "+"
	case irstmt.OpSub:
		return "-"
	case irstmt.OpMul:
		return "*"
	case irstmt.OpDiv:
		return "/"
	}
	return op.String()
}

// Depth returns the tree's depth (a leaf has depth 0).
func (e *Expr) Depth() int {
	if e.leaf {
		return 0
	}
	max := 0
	for _, a := range e.args {
		if d := a.Depth(); d > max {
			max = d
		}
	}
	return max + 1
}

// Contains reports whether needle appears as a node within e (itself
// included), comparing nodes by pointer identity. Search depth is bounded by maxDepth (0 = unbounded).
func (e *Expr) Contains(needle *Expr, maxDepth int) bool {
	return containsAt(e, needle, maxDepth, 0)
}

func containsAt(n, needle *Expr, maxDepth, depth int) bool {
	if n == needle {
		return true
	}
	if maxDepth > 0 && depth >= maxDepth {
		return false
	}
	if n.leaf {
		return false
	}
	for _, a := range n.args {
		if containsAt(a, needle, maxDepth, depth+1) {
			return true
		}
	}
	return false
}
