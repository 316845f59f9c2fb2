// Copyright 2024 The Herbgrind Authors
// This file is part of Herbgrind.

package symbolic

import (
	"encoding/binary"
	"math"

	"golang.org/x/crypto/blake2b"
)

// structuralHash returns a content hash of e's shape and leaf values,
// used purely to recognize "this op site just saw the bit-identical trace
// again" -- extremely common under a tight loop, and the reason
// internal/hglog's Tracer separately rate-limits its own output. Two
// distinct trees never collide in practice (blake2b-256), but a false
// positive here only costs a skipped generalization pass on an
// already-settled site, never an incorrect one: Generalize is idempotent
// on a repeat of a trace it has already folded in.
func structuralHash(e *Expr) [32]byte {
	h, _ := blake2b.New256(nil)
	var buf [8]byte
	var walk func(*Expr)
	walk = func(n *Expr) {
		if n.leaf {
			h.Write([]byte{1})
			binary.LittleEndian.PutUint64(buf[:], math.Float64bits(n.leafValue().Float64()))
			h.Write(buf[:])
			return
		}
		h.Write([]byte{0, byte(n.op)})
		for _, a := range n.args {
			walk(a)
		}
	}
	walk(e)
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}
