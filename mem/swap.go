package mem

import (
	"sync"

	"kernelcore/defs"
	"kernelcore/vfs"
)

// SwapState is the lifecycle of the swap subsystem, spec.md section 4.2:
// no backing device is ever configured (Uninit stays NoSwap forever), or
// one is attached and ready to serve evictions.
type SwapState int

const (
	SwapUninit SwapState = iota
	SwapNoSwap
	SwapReady
)

// Swap is the slot allocator sitting on top of a single vfs.Vnode backing
// store, mirroring the teacher's direct use of a raw vnode for its own
// disk-backed structures (mem/mem.go's blockmem, fs/super.go's super
// block) rather than a generic filesystem path.
type Swap struct {
	mu         sync.Mutex
	state      SwapState
	backend    vfs.Vnode
	slotUsed   []bool
	nextVictim int
}

// NewSwap constructs a swap subsystem. A nil backend leaves the subsystem
// permanently in SwapNoSwap, matching spec.md's "swap disabled entirely"
// configuration. nslots bounds how many PAGE_SIZE slots the backend can
// hold; it is ignored when backend is nil.
func NewSwap(backend vfs.Vnode, nslots int) *Swap {
	if backend == nil {
		return &Swap{state: SwapNoSwap}
	}
	return &Swap{
		state:    SwapReady,
		backend:  backend,
		slotUsed: make([]bool, nslots),
	}
}

// Ready reports whether the swap subsystem can currently serve evictions
// and swap-ins.
func (s *Swap) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == SwapReady
}

// allocSlotLocked must be called with s.mu held.
func (s *Swap) allocSlotLocked() (int, bool) {
	for i, used := range s.slotUsed {
		if !used {
			s.slotUsed[i] = true
			return i, true
		}
	}
	return 0, false
}

// FreeSlot releases a swap slot previously returned by an eviction, per
// spec.md section 4.2's "Free(slot): mark slot free".
func (s *Swap) FreeSlot(slot int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if slot < 0 || slot >= len(s.slotUsed) || !s.slotUsed[slot] {
		defs.Panicf("swap: free of unallocated slot %d", slot)
	}
	s.slotUsed[slot] = false
}

// writeSlotLocked must be called with s.mu held; it is also invoked by
// the coremap's eviction campaign, which already holds s.mu across the
// whole campaign.
func (s *Swap) writeSlotLocked(slot int, data []byte) defs.Err_t {
	_, err := s.backend.WriteAt(data, int64(slot)*int64(defs.PAGE_SIZE))
	return err
}

// ReadSlot copies slot's contents into dst (which must be PAGE_SIZE
// bytes), for the swap-in half of the page-fault handler (spec.md
// section 4.3 step 4).
func (s *Swap) ReadSlot(slot int, dst []byte) defs.Err_t {
	s.mu.Lock()
	defer s.mu.Unlock()
	if slot < 0 || slot >= len(s.slotUsed) || !s.slotUsed[slot] {
		defs.Panicf("swap: read of unallocated slot %d", slot)
	}
	_, err := s.backend.ReadAt(dst, int64(slot)*int64(defs.PAGE_SIZE))
	return err
}
