// Copyright 2024 The Herbgrind Authors
// This file is part of Herbgrind.

package shadow

// Temp is a ShadowTemp: the per-IR-temp holder of 1, 2, or 4 lane Values
// (spec §3; §4.2). Temps themselves are not reference-counted -- the
// OwnershipLedger owns table slots exclusively and disowns their Values at
// block exit.
type Temp struct {
	Values []*Value
}

// NewTemp returns a Temp of n lanes (n ∈ {1,2,4}), pulled from the
// matching free-list when available. Every lane starts nil ("no shadow
// yet").
func NewTemp(n int) *Temp {
	return tempPool.get(n)
}

// FreeTemp disowns every live lane value, clears the slots, and returns t
// to the free-list matching its width (spec §4.2 "free_temp(t) pushes to
// the free-list for its n" -- the disown of contained values happens here
// so a recycled Temp never carries a stale reference into its next use).
func FreeTemp(t *Temp) {
	for i, v := range t.Values {
		if v != nil {
			Disown(v)
			t.Values[i] = nil
		}
	}
	tempPool.put(t)
}

// NumVals returns t's lane count (1, 2, or 4).
func (t *Temp) NumVals() int { return len(t.Values) }

// ReleaseWrapper returns t's container to the free-list without touching
// its lanes' reference counts -- for a Temp whose Values have already been
// handed off elsewhere (e.g. into a MemTable entry via SetMem), where the
// wrapper itself is now garbage but the lanes are still live references
// owned by their new home.
func ReleaseWrapper(t *Temp) {
	for i := range t.Values {
		t.Values[i] = nil
	}
	tempPool.put(t)
}

// CopyTemp returns a fresh Temp of the same width as src, sharing src's
// lane Values by pointer with their reference counts bumped (spec §4.5's
// RdTmp handling: "copy shadow-temp pointer with ref-count increment").
// The two Temps are independent containers from then on; freeing one does
// not affect the other's lanes beyond the ref-count decrement each lane
// already expects.
func CopyTemp(src *Temp) *Temp {
	dst := NewTemp(src.NumVals())
	for i, v := range src.Values {
		Own(v)
		dst.Values[i] = v
	}
	return dst
}
