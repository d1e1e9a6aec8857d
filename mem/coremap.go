// Package mem implements the physical-frame allocator (coremap) and its
// swap-to-disk path, spec.md section 4.1 and 4.2. It mirrors the
// teacher's mem package (Physmem_t: one array of frame metadata, one
// coarse mutex, first-fit allocation, refcount-free ownership by pointer)
// retargeted from biscuit's hardware-walked x86-64 page tables to a
// simulated MIPS-like physical memory arena.
package mem

import (
	"fmt"
	"sync"

	"kernelcore/defs"
)

// FrameOwner is implemented by address spaces (vm.AddrSpace) so the
// coremap's swap-out campaign can locate and evict the page mapping a
// given frame without this package importing vm. A nil FrameOwner means
// the kernel itself owns the frame, matching spec.md's "owner reference
// (nullable); null => owned by kernel".
type FrameOwner interface {
	// EvictFrame locates the page mapped at physical address paddr and
	// returns its virtual page number. ok is false if no such mapping
	// exists any more (a benign race with a concurrent free).
	EvictFrame(paddr int) (vpn int, ok bool)
	// FinishEvict marks the page previously reported at vpn as swapped
	// out to the given slot.
	FinishEvict(vpn int, slot int)
	// HasLiveTLB reports whether vpn currently holds a valid TLB
	// mapping, so the coremap never evicts an address space's own
	// working set while resolving that same address space's fault.
	HasLiveTLB(vpn int) bool
}

type frame struct {
	inUse      bool
	dirty      bool
	owner      FrameOwner
	chunkStart int
}

// Coremap is the frame allocator of spec.md section 4.1: a single
// array-based table serving both kernel and user allocations, backed by
// a simulated physical memory arena.
type Coremap struct {
	mu        sync.Mutex
	frames    []frame
	ram       []byte
	freeCount int
	swap      *Swap
}

// NewCoremap allocates a coremap covering npages frames of simulated
// physical memory, mirroring vm_bootstrap's placement of the coremap at
// first_free and rounding the remaining pages down to page_count.
func NewCoremap(npages int) *Coremap {
	if npages <= 0 {
		defs.Panicf("coremap: npages must be positive, got %d", npages)
	}
	c := &Coremap{
		frames:    make([]frame, npages),
		ram:       make([]byte, npages*defs.PAGE_SIZE),
		freeCount: npages,
	}
	return c
}

// AttachSwap wires a swap subsystem into the coremap so that OOM
// allocations can trigger an eviction campaign, per spec.md section 4.1's
// "if swap is READY invoke the swap-out campaign and retry once".
func (c *Coremap) AttachSwap(s *Swap) {
	c.mu.Lock()
	c.swap = s
	c.mu.Unlock()
}

// PageCount reports the number of frames this coremap manages.
func (c *Coremap) PageCount() int {
	return len(c.frames)
}

// FrameBytes returns the direct-mapped slice of simulated physical memory
// backing the frame starting at paddr, exactly PAGE_SIZE bytes long. It
// plays the role of the teacher's Dmap: a raw window onto physical
// memory addressed by frame number.
func (c *Coremap) FrameBytes(paddr int) []byte {
	i := paddr / defs.PAGE_SIZE
	if i < 0 || i >= len(c.frames) {
		defs.Panicf("coremap: paddr %d out of range", paddr)
	}
	return c.ram[i*defs.PAGE_SIZE : (i+1)*defs.PAGE_SIZE]
}

// AllocUser performs the linear first-fit scan for a run of npages
// clean-free frames described in spec.md section 4.1. owner may be nil
// for kernel allocations. It returns the physical address of the first
// frame in the run, or (0, false) if none is available even after one
// swap-out retry.
func (c *Coremap) AllocUser(npages int, owner FrameOwner) (int, bool) {
	c.mu.Lock()
	paddr, ok := c.tryAlloc(npages, owner)
	if ok {
		c.mu.Unlock()
		c.zero(paddr, npages)
		return paddr, true
	}
	swap := c.swap
	c.mu.Unlock()

	if swap == nil || !swap.Ready() {
		return 0, false
	}
	if !c.evictCampaign(npages, owner) {
		return 0, false
	}

	c.mu.Lock()
	paddr, ok = c.tryAlloc(npages, owner)
	c.mu.Unlock()
	if !ok {
		return 0, false
	}
	c.zero(paddr, npages)
	return paddr, true
}

// AllocKernel is alloc_kpages: a kernel-owned allocation, equivalent to
// AllocUser(npages, nil). The teacher translates the physical address
// into a kernel-direct virtual address; this simulation has no separate
// kernel address space, so the physical address doubles as the kernel
// pointer.
func (c *Coremap) AllocKernel(npages int) (int, bool) {
	return c.AllocUser(npages, nil)
}

// tryAlloc must be called with c.mu held. It performs the first-fit scan
// without retrying or zeroing, matching coremap_allocuserpages's inner
// loop before the lock is dropped.
func (c *Coremap) tryAlloc(npages int, owner FrameOwner) (int, bool) {
	n := len(c.frames)
	for i := 0; i < n; i++ {
		if c.frames[i].inUse {
			continue
		}
		j := i
		for j < n && j-i < npages && !c.frames[j].inUse {
			j++
		}
		if j-i == npages {
			for k := i; k < j; k++ {
				c.frames[k].inUse = true
				c.frames[k].dirty = true
				c.frames[k].owner = owner
				c.frames[k].chunkStart = i
			}
			c.freeCount -= npages
			return i * defs.PAGE_SIZE, true
		}
		i = j
	}
	return 0, false
}

// zero clears npages frames starting at paddr. The original's
// coremap_allocuserpages calls bzero only after releasing the coremap
// spinlock (see the comment in coremap_allocuserpages); this mirrors that
// ordering so the lock is never held across the memclear.
func (c *Coremap) zero(paddr, npages int) {
	b := c.ram[paddr : paddr+npages*defs.PAGE_SIZE]
	for i := range b {
		b[i] = 0
	}
}

// Free releases the contiguous run starting at the frame whose physical
// address is paddr, per spec.md section 4.1: "freeing by start frame
// frees exactly (chunk_start == i0)-runs". Freeing an address that is not
// a live allocation start is a fatal, invariant-breaking condition.
func (c *Coremap) Free(paddr int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.freeLocked(paddr)
}

func (c *Coremap) freeLocked(paddr int) {
	i0 := paddr / defs.PAGE_SIZE
	if i0 < 0 || i0 >= len(c.frames) || !c.frames[i0].inUse || c.frames[i0].chunkStart != i0 {
		defs.Panicf("coremap: free of unknown allocation start at paddr %#x", paddr)
	}
	chunk := c.frames[i0].chunkStart
	j := i0
	for j < len(c.frames) && c.frames[j].inUse && c.frames[j].chunkStart == chunk {
		c.frames[j].inUse = false
		c.frames[j].dirty = false
		c.frames[j].owner = nil
		c.freeCount++
		j++
	}
}

// UsedBytes reports how many bytes are currently allocated.
func (c *Coremap) UsedBytes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	used := 0
	for i := range c.frames {
		if c.frames[i].inUse {
			used++
		}
	}
	return used * defs.PAGE_SIZE
}

// FreeCount reports the number of free frames, for tests and diagnostics.
func (c *Coremap) FreeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.freeCount
}

// evictCampaign is the swap-out campaign of spec.md section 4.2,
// renamed from the original's confusingly-named swapin() (which, despite
// its name, evicts pages to make room rather than bringing any in). It
// scans the coremap circularly starting at the swap cursor for npages
// in-use, user-owned frames, skipping any frame belonging to requester
// that currently has a live TLB mapping (so a fault never evicts its own
// address space's working set), evicting each chosen victim to swap. It
// reports whether at least one frame was evicted.
func (c *Coremap) evictCampaign(npages int, requester FrameOwner) bool {
	swap := c.swap
	if swap == nil {
		return false
	}
	swap.mu.Lock()
	defer swap.mu.Unlock()
	if swap.state != SwapReady {
		return false
	}

	c.mu.Lock()
	n := len(c.frames)
	start := swap.nextVictim % n
	evicted := 0
	i := start
	for scanned := 0; scanned < n && evicted < npages; scanned++ {
		idx := (start + scanned) % n
		i = idx
		f := &c.frames[idx]
		if !f.inUse || f.owner == nil {
			continue
		}
		paddr := idx * defs.PAGE_SIZE
		vpn, ok := f.owner.EvictFrame(paddr)
		if !ok {
			continue
		}
		if f.owner == requester && f.owner.HasLiveTLB(vpn) {
			continue
		}

		slot, ok := swap.allocSlotLocked()
		if !ok {
			defs.Panicf("swap: out of swap slots during eviction")
		}

		// Drop the coremap lock across the simulated device write, per
		// spec.md section 4.2 and section 5: "the swap path explicitly
		// drops the coremap spinlock across VFS operations."
		data := make([]byte, defs.PAGE_SIZE)
		copy(data, c.FrameBytes(paddr))
		owner := f.owner
		c.mu.Unlock()
		if err := swap.writeSlotLocked(slot, data); err != 0 {
			defs.Panicf("swap: write failed: %v", err)
		}
		c.mu.Lock()

		// Re-validate after reacquiring the lock: the frame may have been
		// freed, or handed to another owner, while the lock was dropped.
		if !f.inUse || f.owner != owner {
			swap.slotUsed[slot] = false
			continue
		}
		f.owner.FinishEvict(vpn, slot)
		f.inUse = false
		f.dirty = false
		f.owner = nil
		c.freeCount++
		evicted++
	}
	swap.nextVictim = (i + 1) % n
	c.mu.Unlock()

	return evicted > 0
}

// String renders a short usage summary, useful for debugging kernel boot.
func (c *Coremap) String() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return fmt.Sprintf("coremap: %d/%d pages free (%dKiB used)",
		c.freeCount, len(c.frames), (len(c.frames)-c.freeCount)*defs.PAGE_SIZE/1024)
}
