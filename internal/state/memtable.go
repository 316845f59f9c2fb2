// Copyright 2024 The Herbgrind Authors
// This file is part of Herbgrind.

package state

import (
	"hash"

	"github.com/herbgrind/shadowvm/internal/fttype"
	"github.com/herbgrind/shadowvm/internal/shadow"
	bloomfilter "github.com/holiman/bloomfilter/v2"
)

// MemTable is the memory shadow store of spec §3/§4.3: a map keyed by
// 4-byte-aligned host address, one *shadow.Value per lane (a lane's base
// address is its key; a Double lane owns one entry, not two -- this keeps
// scenario S4's "two entries at addr and addr+8" exactly, rather than
// splitting a double across two 4-byte sub-entries for no behavioral
// gain). A bloomfilter.Filter accelerates the overwhelmingly common case
// of "this address was never shadowed", short-circuiting the map probe
// before it happens -- most host memory never gets a float shadow
// attached at all.
type MemTable struct {
	entries    map[uint64]*shadow.Value
	bloom      *bloomfilter.Filter
	trackExprs bool
}

// NewMemTable returns an empty MemTable sized for roughly a million
// distinct shadowed addresses before the bloom filter's false-positive
// rate starts costing more map probes than it saves.
func NewMemTable(trackExprs bool) *MemTable {
	f, err := bloomfilter.NewOptimal(1<<20, 0.001)
	if err != nil {
		// Only returns an error for a nonsensical (n, p); our constants are
		// fixed and valid, so this is unreachable in practice.
		panic(err)
	}
	return &MemTable{entries: map[uint64]*shadow.Value{}, bloom: f, trackExprs: trackExprs}
}

// addrHash adapts a plain uint64 address to the hash.Hash64 interface
// bloomfilter.Filter expects, without hashing it again -- host addresses
// are already well distributed.
type addrHash uint64

func (h addrHash) Sum64() uint64               { return uint64(h) }
func (h addrHash) Write(p []byte) (int, error) { return len(p), nil }
func (h addrHash) Sum(b []byte) []byte         { return b }
func (h addrHash) Reset()                      {}
func (h addrHash) Size() int                   { return 8 }
func (h addrHash) BlockSize() int              { return 8 }

var _ hash.Hash64 = addrHash(0)

// maybeShadowed reports whether addr might have a shadow -- a false here
// is conclusive (no map probe needed); a true still requires the map
// lookup to confirm.
func (m *MemTable) maybeShadowed(addr uint64) bool {
	return m.bloom.Contains(addrHash(addr))
}

// get returns the raw entry at addr, or nil.
func (m *MemTable) get(addr uint64) *shadow.Value {
	if !m.maybeShadowed(addr) {
		return nil
	}
	return m.entries[addr]
}

// set installs v at addr, disowning whatever was there, and records addr
// in the bloom filter. A nil v clears the slot instead.
func (m *MemTable) set(addr uint64, v *shadow.Value) {
	if prior, ok := m.entries[addr]; ok {
		shadow.Disown(prior)
	}
	if v == nil {
		delete(m.entries, addr)
		return
	}
	m.entries[addr] = v
	m.bloom.Add(addrHash(addr))
}

// GetMem returns a fresh Temp of len(lanes) values read starting at addr.
// lanes[i] is the statically- or dynamically-determined type of lane i
// (Single or Double); concrete[i] is the host's actual bit pattern for
// that lane, supplied by the caller (the translator's load helper is an
// external collaborator -- MemTable has no notion of host memory on its
// own), used to synthesize a fresh shadow on a miss (spec §4.3's
// tie-break). Own is called on every hit so the returned Temp holds an
// independent reference from the table's.
func (m *MemTable) GetMem(addr uint64, lanes []fttype.FloatType, concrete []float64) *shadow.Temp {
	temp := shadow.NewTemp(len(lanes))
	word := addr
	for i, ty := range lanes {
		if v := m.get(word); v != nil {
			shadow.Own(v)
			temp.Values[i] = v
		} else {
			temp.Values[i] = shadow.Widen(ty, concrete[i], m.trackExprs)
		}
		word += uint64(ty.Width()) * 4
	}
	return temp
}

// SetMem inserts or overwrites each lane of temp starting at addr,
// disowning whatever previously occupied each slot (spec §4.3
// "set_mem ... disowning prior occupants"). It takes ownership of temp's
// values (the caller must not separately disown them) but not of temp
// itself.
func (m *MemTable) SetMem(addr uint64, temp *shadow.Temp, lanes []fttype.FloatType) {
	word := addr
	for i, ty := range lanes {
		m.set(word, temp.Values[i])
		word += uint64(ty.Width()) * 4
	}
}

// ClearMem disowns, without inserting, every lane described by lanes
// starting at addr (spec §4.3 "clear_mem ... disowns without inserting").
func (m *MemTable) ClearMem(addr uint64, lanes []fttype.FloatType) {
	word := addr
	for _, ty := range lanes {
		m.set(word, nil)
		word += uint64(ty.Width()) * 4
	}
}
