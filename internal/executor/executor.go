// Copyright 2024 The Herbgrind Authors
// This file is part of Herbgrind.

// Package executor implements the ShadowOpExecutor (spec §4.7): the
// runtime entry point invoked once per dynamically executed arithmetic
// operation. It resolves the op's ShadowOpInfo, computes the operation at
// high precision, folds the resulting error into the op's aggregate,
// grows the op site's symbolic expression, and produces the result
// ShadowValue. Grounded on probe-lang/lang/vm/vm.go's execute dispatch
// (one function per opcode, updating a running per-instruction
// accounting record -- there useGas, here the error aggregate).
package executor

import (
	"github.com/herbgrind/shadowvm/internal/config"
	"github.com/herbgrind/shadowvm/internal/fttype"
	"github.com/herbgrind/shadowvm/internal/hglog"
	"github.com/herbgrind/shadowvm/internal/irstmt"
	"github.com/herbgrind/shadowvm/internal/opinfo"
	"github.com/herbgrind/shadowvm/internal/real"
	"github.com/herbgrind/shadowvm/internal/shadow"
	"github.com/herbgrind/shadowvm/internal/symbolic"
)

// Operand is one argument to a dynamically executed operation: the live
// shadow value if the operand already carries one (nil otherwise), and
// the operand's concrete host bits, from which a Real is synthesised on
// the fly when no shadow exists (spec §4.7 step 2).
type Operand struct {
	Shadow   *shadow.Value // nil if this operand carries no shadow
	Concrete float64
}

// Executor runs ShadowOpExecutor.Execute against one shared op-site
// registry. A single Executor is meant to be reused across an entire run
// (it owns no per-call state beyond the registry and config).
type Executor struct {
	Registry *opinfo.Registry
	Config   config.Config
	Tracer   *hglog.Tracer
}

// New returns an Executor backed by registry, configured by cfg.
func New(registry *opinfo.Registry, cfg config.Config, tracer *hglog.Tracer) *Executor {
	return &Executor{Registry: registry, Config: cfg, Tracer: tracer}
}

// Execute runs one dynamic evaluation of opCode at site, over operands, and
// returns the result ShadowValue of type resultType, whose concrete host
// result is resultConcrete (spec §4.7's full seven-step sequence). It
// takes ownership of nothing in operands; the caller still owns each
// operand's existing shadow afterward (Execute only Owns references it
// keeps, such as into the influence merge).
func (ex *Executor) Execute(site opinfo.Site, opCode irstmt.Op, operands []Operand, resultType fttype.FloatType, resultConcrete float64) *shadow.Value {
	info := ex.Registry.Resolve(site)

	reals := make([]*real.Real, len(operands))
	leaves := make([]*symbolic.Expr, len(operands))
	trackExprs := !ex.Config.NoExprs && info.Expr != nil

	for i, o := range operands {
		if o.Shadow != nil {
			reals[i] = o.Shadow.Real
			if trackExprs && o.Shadow.Expr != nil {
				symbolic.Own(o.Shadow.Expr)
				leaves[i] = o.Shadow.Expr
			}
		} else {
			reals[i] = concreteToReal(resultType, o.Concrete)
		}
		if leaves[i] == nil && trackExprs {
			leaves[i] = symbolic.NewLeafConst(reals[i].Copy())
		}
	}

	resultReal, arithErr := real.Arith(toRealOp(opCode), reals[0], operandOrSelf(reals, 1))
	if arithErr != nil {
		// Division by a real zero: spec §4.7 edge case. resultReal is
		// already a zero-valued sentinel from real.Arith; proceed with it
		// so the op's error and influence are still recorded.
		ex.trace("div-by-zero", site)
	}

	localErr := real.BitsDiff(roundToWidth(resultType, resultReal), resultConcrete)
	totalErr := real.BitsDiff(resultReal, resultConcrete)
	info.Eagg.Observe(localErr, totalErr)

	var resultExpr *symbolic.Expr
	if trackExprs {
		args := make([]*symbolic.Expr, len(leaves))
		copy(args, leaves)
		branch := symbolic.NewBranch(opCode, args...)
		// Generalize only reads branch's shape; it never retains a pointer
		// into it (a collapse copies the concrete value out, it doesn't
		// borrow the node), so the site's own tree and the result's tree
		// stay fully independent without an extra clone/disown round trip.
		symbolic.Generalize(info.Expr, branch)
		resultExpr = branch
	}

	influences := opinfo.NewInfluenceSet()
	if !ex.Config.NoInfluences && totalErr >= ex.Config.ErrorThresholdBits {
		influences.Add(info)
		for _, o := range operands {
			if o.Shadow != nil {
				influences.Merge(o.Shadow.Influences)
			}
		}
	}

	result := shadow.NewValue(resultType, resultReal, resultExpr, influences)
	ex.trace("execute", site)
	return result
}

func (ex *Executor) trace(event string, site opinfo.Site) {
	if ex.Tracer != nil {
		ex.Tracer.Trace(event, site)
	}
}

// operandOrSelf returns reals[i] if present, or reals[0] for a unary op
// whose Arith signature still expects a second argument (real.Arith
// ignores b for unary ops).
func operandOrSelf(reals []*real.Real, i int) *real.Real {
	if i < len(reals) {
		return reals[i]
	}
	return reals[0]
}

// toRealOp maps the IR-level opcode to the equivalent real.Op; the two
// enums are deliberately kept in the same order and spelling.
func toRealOp(op irstmt.Op) real.Op {
	switch op {
	case irstmt.OpAdd:
		return real.OpAdd
	case irstmt.OpSub:
		return real.OpSub
	case irstmt.OpMul:
		return real.OpMul
	case irstmt.OpDiv:
		return real.OpDiv
	case irstmt.OpNeg:
		return real.OpNeg
	case irstmt.OpAbs:
		return real.OpAbs
	case irstmt.OpSqrt:
		return real.OpSqrt
	default:
		panic("executor: unknown opcode")
	}
}

// concreteToReal synthesises a Real from a missing operand's raw concrete
// bits, at the width the site expects it to be (spec §4.7 step 2).
func concreteToReal(ty fttype.FloatType, concrete float64) *real.Real {
	if ty == fttype.Single {
		return real.FromFloat32(float32(concrete))
	}
	return real.FromFloat64(concrete)
}

// roundToWidth returns a copy of r rounded to ty's concrete width, the
// reference point local error is measured against (spec §4.7 step 4:
// "result_real rounded to the host width"). Total error is measured
// against the unrounded r. Both start from the same r, computed from the
// operands' shadow reals, so both include precision already lost in
// upstream operands; they differ only by this final rounding.
func roundToWidth(ty fttype.FloatType, r *real.Real) *real.Real {
	if ty == fttype.Single {
		return real.FromFloat32(r.Float32())
	}
	return real.FromFloat64(r.Float64())
}
