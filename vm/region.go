// Package vm implements the per-process address space: regions, the
// demand-filled page table, fork-time copy, sbrk, the software TLB, and
// the page-fault handler, spec.md sections 4.3-4.5. It is grounded on the
// teacher's vm package layout (one file per concern: addr space, fault,
// TLB) retargeted from biscuit's hardware-walked x86-64 page tables to
// the flat page-array model this spec's MIPS-like machine uses.
package vm

// Region is a contiguous, uniform-permission virtual range within an
// address space, spec.md section 3.
type Region struct {
	Vaddr      int
	Size       int
	Readable   bool
	Writeable  bool
	Executable bool
}

func (r *Region) contains(vaddr int) bool {
	return vaddr >= r.Vaddr && vaddr < r.Vaddr+r.Size
}

func (r *Region) end() int {
	return r.Vaddr + r.Size
}
