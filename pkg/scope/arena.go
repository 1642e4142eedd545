package scope

import (
	"sync/atomic"
)

// Frame is a published acquisition: the readable raw slot together with the
// trigger found in it. A Frame is never modified after it is published.
type Frame struct {
	Data    []byte // interleaved CH1/CH2 bytes, 2*Depth long
	Depth   int
	Trigger int // coarse trigger sample index, 0 if none
	Edge    Edge
	Seq     uint64

	slot int
}

// Arena is the two-slot raw buffer shared by the acquisition loop and the
// display. At any time one slot is published (readable) and the other is
// being filled. The published slot and its trigger index change together
// through a single atomic pointer.
//
// Readers lease the published slot with Acquire and return it with Release;
// the producer does not fill a leased slot.
type Arena struct {
	slots  [2][]byte
	active atomic.Pointer[Frame]
	leases [2]atomic.Int32

	// producer only
	write int
	seq   uint64
}

// NewArena allocates both slots for maxDepth sample pairs.
func NewArena(maxDepth int) *Arena {
	a := &Arena{}
	for i := range a.slots {
		a.slots[i] = make([]byte, 2*maxDepth)
	}
	return a
}

// Capacity returns the number of sample pairs a slot holds.
func (a *Arena) Capacity() int {
	return len(a.slots[0]) / 2
}

// writable returns the slot the producer may fill, or nil while a reader
// still holds it.
func (a *Arena) writable() []byte {
	if a.leases[a.write].Load() != 0 {
		return nil
	}
	return a.slots[a.write]
}

// publish makes the slot just filled readable and moves the producer to the
// other slot.
func (a *Arena) publish(depth, trigger int, edge Edge) *Frame {
	a.seq++
	f := &Frame{
		Data:    a.slots[a.write][:2*depth],
		Depth:   depth,
		Trigger: trigger,
		Edge:    edge,
		Seq:     a.seq,
		slot:    a.write,
	}
	a.active.Store(f)
	a.write ^= 1
	return f
}

// Current returns the published frame without leasing it. Its metadata is
// stable but the bytes may be refilled after the next swap.
func (a *Arena) Current() *Frame {
	return a.active.Load()
}

// Acquire leases the published frame. It returns nil before the first
// publication. Every non-nil result must be passed to Release.
func (a *Arena) Acquire() *Frame {
	for {
		f := a.active.Load()
		if f == nil {
			return nil
		}
		a.leases[f.slot].Add(1)
		if a.active.Load() == f {
			return f
		}
		// swapped underneath us; the producer may already be filling it
		a.leases[f.slot].Add(-1)
	}
}

// Release returns a frame obtained from Acquire.
func (a *Arena) Release(f *Frame) {
	if f == nil {
		return
	}
	a.leases[f.slot].Add(-1)
}
