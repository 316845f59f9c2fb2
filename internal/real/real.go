// Copyright 2024 The Herbgrind Authors
// This file is part of Herbgrind.

// Package real is a thin, fixed-precision wrapper over an arbitrary-precision
// binary float, standing in for the MPFR binding the design treats as an
// opaque external collaborator (spec §4.1). No third-party arbitrary
// precision library in the example corpus fits this role (see DESIGN.md), so
// this wraps the standard library's math/big.Float directly.
package real

import (
	"errors"
	"fmt"
	"math"
	"math/big"
)

// ErrDivisionByZero is returned by Arith when dividing by a real zero.
// Per spec §4.7 this is not fatal: the caller short-circuits to a sentinel
// and still aggregates error.
var ErrDivisionByZero = errors.New("real: division by zero")

// Op identifies an arithmetic operation understood by Arith.
type Op int

const (
	OpAdd Op = iota
	OpSub
	OpMul
	OpDiv
	OpNeg
	OpAbs
	OpSqrt
)

func (op Op) String() string {
	switch op {
	case OpAdd:
		return "add"
	case OpSub:
		return "sub"
	case OpMul:
		return "mul"
	case OpDiv:
		return "div"
	case OpNeg:
		return "neg"
	case OpAbs:
		return "abs"
	case OpSqrt:
		return "sqrt"
	default:
		return fmt.Sprintf("op(%d)", int(op))
	}
}

// Real is a fixed-precision, round-to-nearest arbitrary precision number.
// The zero value is not usable; use New. big.Float has no NaN
// representation of its own (SetFloat64 and most arithmetic methods panic
// with big.ErrNaN rather than produce one), so a NaN real is tracked
// out-of-band via nan rather than ever being handed to v -- matching
// spec §4.7/§7's "NaN/Inf are computed honestly ... and compared by bit
// pattern", not "a NaN operand aborts the run".
type Real struct {
	v   *big.Float
	nan bool
}

// Precision is the number of bits of mantissa every Real in the process
// carries, set once at startup from the `precision` configuration flag
// (default 1000, per spec §6).
var Precision uint = 1000

// New returns a Real initialized to zero at the configured Precision.
func New() *Real {
	return &Real{v: new(big.Float).SetPrec(Precision).SetMode(big.ToNearestEven)}
}

// nanReal returns a Real carrying a NaN, without ever calling into
// big.Float with one.
func nanReal() *Real {
	r := New()
	r.nan = true
	return r
}

// FromFloat64 returns a Real initialized from a concrete double.
func FromFloat64(f float64) *Real {
	if math.IsNaN(f) {
		return nanReal()
	}
	r := New()
	r.v.SetFloat64(f)
	return r
}

// FromFloat32 returns a Real initialized from a concrete single, widened
// exactly (every float32 value is exactly representable as a big.Float).
func FromFloat32(f float32) *Real {
	return FromFloat64(float64(f))
}

// Set copies src's value into r.
func (r *Real) Set(src *Real) *Real {
	r.v.Copy(src.v)
	r.nan = src.nan
	return r
}

// Copy returns a fresh Real with the same value as r.
func (r *Real) Copy() *Real {
	return New().Set(r)
}

// IsNaN reports whether r carries a NaN.
func (r *Real) IsNaN() bool {
	return r.nan
}

// Float64 rounds r to the nearest double.
func (r *Real) Float64() float64 {
	if r.nan {
		return math.NaN()
	}
	f, _ := r.v.Float64()
	return f
}

// Float32 rounds r to the nearest single.
func (r *Real) Float32() float32 {
	if r.nan {
		return float32(math.NaN())
	}
	f, _ := r.v.Float32()
	return f
}

// Float32Bits rounds r to the nearest single and returns its bit pattern --
// the intentionally lossy key symbolic.VarMap uses to group leaves as "the
// same variable" (spec §4.8's var_map note).
func (r *Real) Float32Bits() uint32 {
	return math.Float32bits(r.Float32())
}

// IsZero reports whether r is exactly zero. A NaN is never zero.
func (r *Real) IsZero() bool {
	return !r.nan && r.v.Sign() == 0
}

func (r *Real) String() string {
	if r.nan {
		return "NaN"
	}
	return r.v.Text('g', 10)
}

// Arith computes c = op(a, b) (b is ignored for unary ops) at the
// package-wide Precision, round-to-nearest. Division by a real zero returns
// ErrDivisionByZero along with a zero-valued sentinel result, per §4.7 edge
// cases. A NaN operand, or an operation whose exact result is NaN (Inf-Inf,
// 0*Inf, Inf/Inf, sqrt of a negative), yields a NaN result rather than
// panicking or aborting the run -- big.Float itself has no NaN value and
// panics with ErrNaN in exactly these cases, so that panic is recovered and
// turned into the honestly-computed NaN spec §4.7/§7 calls for.
func Arith(op Op, a, b *Real) (result *Real, err error) {
	if a.nan || (b != nil && b.nan) {
		return nanReal(), nil
	}
	if op == OpSqrt && a.v.Sign() < 0 {
		return nanReal(), nil
	}

	defer func() {
		if rec := recover(); rec != nil {
			if _, ok := rec.(big.ErrNaN); ok {
				result, err = nanReal(), nil
				return
			}
			panic(rec)
		}
	}()

	c := New()
	switch op {
	case OpAdd:
		c.v.Add(a.v, b.v)
	case OpSub:
		c.v.Sub(a.v, b.v)
	case OpMul:
		c.v.Mul(a.v, b.v)
	case OpDiv:
		if b.IsZero() {
			return c, ErrDivisionByZero
		}
		c.v.Quo(a.v, b.v)
	case OpNeg:
		c.v.Neg(a.v)
	case OpAbs:
		c.v.Abs(a.v)
	case OpSqrt:
		c.v.Sqrt(a.v)
	default:
		panic(fmt.Sprintf("real: unknown op %v", op))
	}
	return c, nil
}

// BitsDiff returns the number of bits of disagreement between r and
// concrete: 0 when r rounded to the nearest double equals concrete,
// otherwise log2 of the exact |r - concrete| measured in ULPs of concrete. Used to compute local/total error (spec §4.7, §4.8 "Local error").
//
// A NaN on either side is only "equal" to a bit-identical NaN; any other
// combination is reported as an unbounded (math.Inf) error, matching "NaN/Inf
// are computed honestly ... and compared by bit pattern" (spec §4.7).
func BitsDiff(r *Real, concrete float64) float64 {
	rf := r.Float64()
	if math.IsNaN(rf) || math.IsNaN(concrete) {
		if math.IsNaN(rf) && math.IsNaN(concrete) {
			return 0
		}
		return math.Inf(1)
	}
	if math.IsInf(rf, 0) || math.IsInf(concrete, 0) {
		if rf == concrete {
			return 0
		}
		return math.Inf(1)
	}
	if rf == concrete {
		return 0
	}
	diff := new(big.Float).SetPrec(Precision)
	diff.Sub(r.v, big.NewFloat(concrete))
	diff.Abs(diff)
	if diff.Sign() == 0 {
		return 0
	}
	// ULP(concrete) approximates one step at concrete's magnitude; bits of
	// error is log2(|diff| / ulp).
	ulp := math.Nextafter(concrete, math.Inf(1)) - concrete
	if ulp == 0 {
		ulp = math.SmallestNonzeroFloat64
	}
	ratio := new(big.Float).SetPrec(Precision).Quo(diff, big.NewFloat(math.Abs(ulp)))
	rf64, _ := ratio.Float64()
	if rf64 <= 0 {
		return 0
	}
	return math.Log2(rf64)
}
