package vm

import (
	"sync"
	"sync/atomic"

	"kernelcore/defs"
	"kernelcore/mem"
	"kernelcore/util"
)

var nextASID int64

// AddrSpace is a process's virtual layout: regions, a demand-filled page
// table, and the heap cursor sbrk moves. It implements mem.FrameOwner so
// the coremap's swap-out campaign can evict its pages without mem
// importing vm, mirroring the teacher's pattern of defining narrow
// callback interfaces in the lower-level package (mem.Page_i) rather than
// importing the higher-level one.
type AddrSpace struct {
	mu sync.Mutex

	ID int64

	regions []*Region
	pages   []*Page

	stackPageCount int
	heapCursor     int
	heapBase       int
	heapBaseSet    bool

	coremap *mem.Coremap
	swap    *mem.Swap
	tlb     *TLB
}

// Create returns a fresh, empty address space, spec.md section 4.4's
// create(). The coremap and TLB are process-wide singletons wired in at
// boot; swap may be nil when no backing store is configured.
func Create(coremap *mem.Coremap, swap *mem.Swap, tlb *TLB) *AddrSpace {
	return &AddrSpace{
		ID:      atomic.AddInt64(&nextASID, 1),
		coremap: coremap,
		swap:    swap,
		tlb:     tlb,
	}
}

// DefineRegion appends a region spanning [vaddr, vaddr+size) with the
// given permissions and advances heap_cursor to the page-rounded end of
// the region, per spec.md section 4.4.
func (as *AddrSpace) DefineRegion(vaddr, size int, readable, writeable, executable bool) {
	as.mu.Lock()
	defer as.mu.Unlock()
	as.regions = append(as.regions, &Region{
		Vaddr: vaddr, Size: size,
		Readable: readable, Writeable: writeable, Executable: executable,
	})
	as.heapCursor = util.Roundup(vaddr+size, defs.PAGE_SIZE)
}

// DefineStack returns the initial stack pointer and resets
// stack_page_count, per spec.md section 4.4.
func (as *AddrSpace) DefineStack() int {
	as.mu.Lock()
	defer as.mu.Unlock()
	as.stackPageCount = 0
	return defs.USERSTACK
}

// Activate installs as as the TLB's active address space, flushing all
// entries, per spec.md section 4.4.
func (as *AddrSpace) Activate() {
	as.tlb.Activate(as)
}

// findRegionLocked returns the region containing vaddr, if any. Must be
// called with as.mu held.
func (as *AddrSpace) findRegionLocked(vaddr int) (*Region, bool) {
	for _, r := range as.regions {
		if r.contains(vaddr) {
			return r, true
		}
	}
	return nil, false
}

// findPageLocked returns the page for virtual page number vpn, if any.
func (as *AddrSpace) findPageLocked(vpn int) (*Page, bool) {
	for _, p := range as.pages {
		if p.VirtBase == vpn {
			return p, true
		}
	}
	return nil, false
}

// InStackGrowthWindow reports whether vaddr lies within stack_page_count+1
// pages below USERSTACK, the implicit stack-growth test of spec.md
// section 4.3 step 2.
func (as *AddrSpace) InStackGrowthWindow(vaddr int) bool {
	as.mu.Lock()
	defer as.mu.Unlock()
	lo := defs.USERSTACK - (as.stackPageCount+1)*defs.PAGE_SIZE
	return vaddr >= lo && vaddr < defs.USERSTACK
}

// GrowStack records that one more stack page is now resident, called
// after a successful stack-growth fault.
func (as *AddrSpace) GrowStack() {
	as.mu.Lock()
	defer as.mu.Unlock()
	as.stackPageCount++
}

// FindOrCreatePage returns the page backing the page-aligned address of
// vaddr, creating a freshly zeroed, coremap-backed page if none exists
// yet. It is step 3 of the fault handler.
func (as *AddrSpace) FindOrCreatePage(vaddr int) (*Page, defs.Err_t) {
	vpn := pageAligned(vaddr)

	as.mu.Lock()
	if p, ok := as.findPageLocked(vpn); ok {
		as.mu.Unlock()
		return p, 0
	}
	as.mu.Unlock()

	paddr, ok := as.coremap.AllocUser(1, as)
	if !ok {
		return nil, defs.ENOMEM
	}
	p := &Page{VirtBase: vpn, PhysBase: paddr / defs.PAGE_SIZE, State: Mapped}

	as.mu.Lock()
	as.pages = append(as.pages, p)
	as.mu.Unlock()
	return p, 0
}

// WriteBytes copies data into the address space starting at vaddr,
// creating whatever pages are needed along the way (as FindOrCreatePage
// would for a fault). It is used by the loader to place ELF segment
// bytes and marshalled argv data directly into a freshly built address
// space, before any real instruction fetch has a chance to fault them in.
func (as *AddrSpace) WriteBytes(vaddr int, data []byte) defs.Err_t {
	for len(data) > 0 {
		p, err := as.FindOrCreatePage(vaddr)
		if err != 0 {
			return err
		}
		off := vaddr - p.VirtBase
		n := defs.PAGE_SIZE - off
		if n > len(data) {
			n = len(data)
		}
		copy(as.coremap.FrameBytes(p.PhysBase*defs.PAGE_SIZE)[off:off+n], data[:n])
		data = data[n:]
		vaddr += n
	}
	return 0
}

// SwapIn restores a Swapped page into a freshly allocated frame, spec.md
// section 4.2's swap_in. It is called by the fault handler when the page
// found by FindOrCreatePage is not resident.
func (as *AddrSpace) SwapIn(p *Page) defs.Err_t {
	if as.swap == nil {
		defs.Panicf("vm: swap_in called with no swap subsystem attached")
	}
	paddr, ok := as.coremap.AllocUser(1, as)
	if !ok {
		return defs.ENOMEM
	}
	if err := as.swap.ReadSlot(p.SwapSlot, as.coremap.FrameBytes(paddr)); err != 0 {
		as.coremap.Free(paddr)
		return err
	}
	as.swap.FreeSlot(p.SwapSlot)

	as.mu.Lock()
	p.State = Mapped
	p.PhysBase = paddr / defs.PAGE_SIZE
	p.SwapSlot = 0
	as.mu.Unlock()
	return 0
}

// --- mem.FrameOwner ---

// EvictFrame implements mem.FrameOwner: it locates the page currently
// mapped at paddr and reports its virtual page number (the TLB's unit,
// vaddr/PAGE_SIZE — distinct from Page.VirtBase, which stores the
// page-aligned address).
func (as *AddrSpace) EvictFrame(paddr int) (int, bool) {
	as.mu.Lock()
	defer as.mu.Unlock()
	ppn := paddr / defs.PAGE_SIZE
	for _, p := range as.pages {
		if p.State == Mapped && p.PhysBase == ppn {
			return p.VirtBase / defs.PAGE_SIZE, true
		}
	}
	return 0, false
}

// FinishEvict implements mem.FrameOwner: the page at vpn (a TLB-unit
// virtual page number, see EvictFrame) is now resident in a swap slot
// instead of a frame.
func (as *AddrSpace) FinishEvict(vpn int, slot int) {
	as.tlb.Invalidate(as, vpn)
	as.mu.Lock()
	defer as.mu.Unlock()
	if p, ok := as.findPageLocked(vpn * defs.PAGE_SIZE); ok {
		p.State = Swapped
		p.SwapSlot = slot
		p.PhysBase = 0
	}
}

// HasLiveTLB implements mem.FrameOwner.
func (as *AddrSpace) HasLiveTLB(vpn int) bool {
	return as.tlb.HasLiveMapping(as, vpn)
}

// Copy duplicates old's regions and pages into a fresh address space,
// spec.md section 4.4's copy(): every mapped page is cloned byte-for-byte
// through a fresh coremap allocation; swapped pages are brought back in
// first so the clone always starts fully resident.
func Copy(old *AddrSpace) (*AddrSpace, defs.Err_t) {
	old.mu.Lock()
	regions := make([]*Region, len(old.regions))
	for i, r := range old.regions {
		cp := *r
		regions[i] = &cp
	}
	oldPages := make([]*Page, len(old.pages))
	copy(oldPages, old.pages)
	heapCursor, heapBase, heapBaseSet := old.heapCursor, old.heapBase, old.heapBaseSet
	stackPageCount := old.stackPageCount
	old.mu.Unlock()

	as := Create(old.coremap, old.swap, old.tlb)
	as.regions = regions
	as.heapCursor = heapCursor
	as.heapBase = heapBase
	as.heapBaseSet = heapBaseSet
	as.stackPageCount = stackPageCount

	for _, op := range oldPages {
		paddr, ok := as.coremap.AllocUser(1, as)
		if !ok {
			Destroy(as)
			return nil, defs.ENOMEM
		}
		// The allocation above may have evicted op itself, so its state is
		// checked only now. Swapping it back in cannot evict paddr, whose
		// page is not yet in as.pages.
		if op.State == Swapped {
			if err := old.SwapIn(op); err != 0 {
				as.coremap.Free(paddr)
				Destroy(as)
				return nil, err
			}
		}
		src := old.coremap.FrameBytes(op.PhysBase * defs.PAGE_SIZE)
		dst := as.coremap.FrameBytes(paddr)
		copy(dst, src)
		as.pages = append(as.pages, &Page{VirtBase: op.VirtBase, PhysBase: paddr / defs.PAGE_SIZE, State: Mapped})
	}
	return as, 0
}

// Destroy releases every page's frame (or swap slot) and drops the
// address space, spec.md section 4.4's destroy().
func Destroy(as *AddrSpace) {
	as.mu.Lock()
	pages := as.pages
	as.pages = nil
	as.regions = nil
	as.mu.Unlock()

	for _, p := range pages {
		switch p.State {
		case Mapped:
			as.coremap.Free(p.PhysBase * defs.PAGE_SIZE)
		case Swapped:
			if as.swap != nil {
				as.swap.FreeSlot(p.SwapSlot)
			}
		}
	}
}

// Sbrk implements spec.md section 4.5.
func (as *AddrSpace) Sbrk(delta int) (int, defs.Err_t) {
	if delta%defs.PAGE_SIZE != 0 {
		return 0, defs.EINVAL
	}
	if delta > defs.SBRK_MAX_DELTA || delta < -defs.SBRK_MAX_DELTA {
		return 0, defs.ENOMEM
	}

	as.mu.Lock()
	if !as.heapBaseSet {
		as.heapBase = as.heapCursor
		as.heapBaseSet = true
	}
	old := as.heapCursor
	if delta == 0 {
		as.mu.Unlock()
		return old, 0
	}

	newCursor := old + delta
	if delta < 0 && newCursor < as.heapBase {
		as.mu.Unlock()
		return 0, defs.EINVAL
	}
	as.mu.Unlock()

	if delta > 0 {
		as.DefineRegion(old, delta, true, true, false)
		return old, 0
	}

	as.shrink(newCursor)
	as.tlb.InvalidateAll()
	as.mu.Lock()
	as.heapCursor = newCursor
	as.mu.Unlock()
	return old, 0
}

// shrink implements the three-way region classification of spec.md
// section 4.5: regions wholly above newCursor are deleted outright (and
// their pages freed); a region straddling newCursor is truncated (pages
// above the cursor freed); regions wholly below are untouched. Regions
// reaching into the stack-growth window are never touched here since
// DefineStack never registers the stack as a Region.
func (as *AddrSpace) shrink(newCursor int) {
	as.mu.Lock()
	var kept []*Region
	var freedVPNs []int
	for _, r := range as.regions {
		switch {
		case r.Vaddr >= newCursor:
			// Wholly above: drop the region, free every page inside it.
			for vpn := pageAligned(r.Vaddr); vpn < r.end(); vpn += defs.PAGE_SIZE {
				freedVPNs = append(freedVPNs, vpn)
			}
		case r.end() > newCursor:
			// Straddles: truncate, free pages above the new cursor.
			for vpn := util.Roundup(newCursor, defs.PAGE_SIZE); vpn < r.end(); vpn += defs.PAGE_SIZE {
				freedVPNs = append(freedVPNs, vpn)
			}
			r.Size = newCursor - r.Vaddr
			kept = append(kept, r)
		default:
			kept = append(kept, r)
		}
	}
	as.regions = kept

	var remaining []*Page
	freed := map[int]bool{}
	for _, vpn := range freedVPNs {
		freed[vpn] = true
	}
	for _, p := range as.pages {
		if freed[p.VirtBase] {
			continue
		}
		remaining = append(remaining, p)
	}
	var toFree []*Page
	for _, p := range as.pages {
		if freed[p.VirtBase] {
			toFree = append(toFree, p)
		}
	}
	as.pages = remaining
	as.mu.Unlock()

	for _, p := range toFree {
		switch p.State {
		case Mapped:
			as.coremap.Free(p.PhysBase * defs.PAGE_SIZE)
		case Swapped:
			if as.swap != nil {
				as.swap.FreeSlot(p.SwapSlot)
			}
		}
	}
}
