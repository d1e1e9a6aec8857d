package vm

import "kernelcore/defs"

// PageState tags which of Page's two union members is meaningful,
// spec.md section 3's "exactly one of {phys_base, swap_slot} is
// meaningful per state" invariant.
type PageState int

const (
	Mapped PageState = iota
	Swapped
)

// Page is a single PAGE_SIZE virtual page owned by exactly one address
// space.
type Page struct {
	VirtBase int // page-aligned virtual address (vaddr rounded down to PAGE_SIZE)
	PhysBase int // frame number, meaningful when State == Mapped
	SwapSlot int // slot index, meaningful when State == Swapped
	State    PageState
}

func pageAligned(vaddr int) int {
	return (vaddr / defs.PAGE_SIZE) * defs.PAGE_SIZE
}
