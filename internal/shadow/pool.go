// Copyright 2024 The Herbgrind Authors
// This file is part of Herbgrind.

package shadow

// valueFreelist is a per-process, unbounded, never-shrunk free-list of
// Values (spec §4.2's "Free-lists are per-process, unbounded; never shrunk
// during the run"). A pool miss falls through to a fresh allocation and is
// recorded in the malloc log when print-mallocs is enabled.
type valueFreelist struct {
	free []*Value
}

func (p *valueFreelist) get() *Value {
	n := len(p.free)
	if n == 0 {
		malloc.record(mallocValue)
		return &Value{}
	}
	v := p.free[n-1]
	p.free = p.free[:n-1]
	*v = Value{}
	return v
}

func (p *valueFreelist) put(v *Value) {
	p.free = append(p.free, v)
}

var valuePool valueFreelist

// tempFreelist is a bank of three free-lists, one per legal ShadowTemp
// width (spec §3: num_vals ∈ {1,2,4}; Design Notes' freedTemps[1|2|4]).
type tempFreelist struct {
	free1, free2, free4 []*Temp
}

func (p *tempFreelist) bucket(n int) *[]*Temp {
	switch n {
	case 1:
		return &p.free1
	case 2:
		return &p.free2
	case 4:
		return &p.free4
	default:
		panic("shadow: num_vals must be 1, 2, or 4")
	}
}

func (p *tempFreelist) get(n int) *Temp {
	b := p.bucket(n)
	if len(*b) == 0 {
		malloc.record(mallocTemp)
		return &Temp{Values: make([]*Value, n)}
	}
	last := len(*b) - 1
	t := (*b)[last]
	*b = (*b)[:last]
	return t
}

func (p *tempFreelist) put(t *Temp) {
	b := p.bucket(len(t.Values))
	*b = append(*b, t)
}

var tempPool tempFreelist
