// Copyright 2024 The Herbgrind Authors
// This file is part of Herbgrind.

package shadow

import (
	"encoding/binary"
	"fmt"
	"os"

	mmap "github.com/edsrzf/mmap-go"
	"github.com/fjl/memsize"
)

// malloc record kinds, one byte each, written into the malloc log.
const (
	mallocValue byte = iota + 1
	mallocTemp
	mallocWiden
)

const mallocRecordSize = 9 // 1 kind byte + 8 little-endian sequence bytes

// mallocLog is a memory-mapped ring buffer of pool-miss events, used only
// when the print-mallocs diagnostic flag is set. A pool miss happens on
// the hottest path in the engine (every single shadowed operation can
// allocate a fresh Value or Temp under sustained load); routing that
// through internal/hglog's mutex-guarded, formatting logger on every miss
// would itself dominate the cost being measured, so this instead does a
// raw, lock-free write into a pre-sized mmap'd file and leaves formatting
// to whoever inspects the log afterward.
type mallocLog struct {
	enabled bool
	region  mmap.MMap
	file    *os.File
	seq     uint64
	slots   uint64
}

var malloc mallocLog

// EnableMallocLog backs the malloc log with a temp file holding capacity
// ring slots and turns on recording. Call once at engine start when
// config.PrintMallocs is set; DisableMallocLog releases the mapping.
func EnableMallocLog(capacity int) error {
	if capacity <= 0 {
		capacity = 4096
	}
	f, err := os.CreateTemp("", "herbgrind-malloc-*.log")
	if err != nil {
		return fmt.Errorf("shadow: creating malloc log: %w", err)
	}
	size := int64(capacity) * mallocRecordSize
	if err := f.Truncate(size); err != nil {
		f.Close()
		os.Remove(f.Name())
		return fmt.Errorf("shadow: sizing malloc log: %w", err)
	}
	region, err := mmap.Map(f, mmap.RDWR, 0)
	if err != nil {
		f.Close()
		os.Remove(f.Name())
		return fmt.Errorf("shadow: mapping malloc log: %w", err)
	}
	malloc = mallocLog{enabled: true, region: region, file: f, slots: uint64(capacity)}
	return nil
}

// DisableMallocLog unmaps and removes the backing file, if any.
func DisableMallocLog() {
	if !malloc.enabled {
		return
	}
	name := malloc.file.Name()
	malloc.region.Unmap()
	malloc.file.Close()
	os.Remove(name)
	malloc = mallocLog{}
}

func (l *mallocLog) record(kind byte) {
	if !l.enabled {
		return
	}
	slot := l.seq % l.slots
	l.seq++
	off := slot * mallocRecordSize
	l.region[off] = kind
	binary.LittleEndian.PutUint64(l.region[off+1:off+9], l.seq)
}

// MallocEvents returns the recorded (kind, sequence) pairs in ring order,
// oldest-recorded-in-the-currently-live-window first, for the CLI's
// print-mallocs diagnostic to render.
func MallocEvents() []MallocEvent {
	if !malloc.enabled {
		return nil
	}
	n := malloc.slots
	if malloc.seq < n {
		n = malloc.seq
	}
	out := make([]MallocEvent, 0, n)
	start := malloc.seq - n
	for i := uint64(0); i < n; i++ {
		slot := (start + i) % malloc.slots
		off := slot * mallocRecordSize
		kind := malloc.region[off]
		seq := binary.LittleEndian.Uint64(malloc.region[off+1 : off+9])
		out = append(out, MallocEvent{Kind: kind, Seq: seq})
	}
	return out
}

// MallocEvent is one decoded entry from the malloc log.
type MallocEvent struct {
	Kind byte
	Seq  uint64
}

func (e MallocEvent) String() string {
	var kind string
	switch e.Kind {
	case mallocValue:
		kind = "value"
	case mallocTemp:
		kind = "temp"
	case mallocWiden:
		kind = "widen"
	default:
		kind = "?"
	}
	return fmt.Sprintf("#%d %s", e.Seq, kind)
}

// PoolFootprint reports the retained heap size of the typed pools.
func PoolFootprint() string {
	sizes := memsize.Scan(&valuePool)
	tsizes := memsize.Scan(&tempPool)
	return fmt.Sprintf("values pool: %d bytes; temps pool: %d bytes", uint64(sizes.Total), uint64(tsizes.Total))
}
