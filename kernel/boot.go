// Package kernel wires the process-wide singletons together at boot:
// the coremap, the optional swap subsystem, the software TLB, the
// process table, and the kernel process itself, mirroring
// vm_bootstrap/proc_bootstrap in the original and the teacher's own
// physmem-construction-and-log idiom in mem/mem.go.
package kernel

import (
	"fmt"

	"kernelcore/defs"
	"kernelcore/mem"
	"kernelcore/proc"
	"kernelcore/vfs"
	"kernelcore/vm"
)

// Kernel holds every process-wide singleton this core needs: the frame
// allocator, the (possibly disabled) swap path, the single software TLB,
// the process table, the console device, and the kernel process itself
// (spec.md's analogue of biscuit's kproc).
type Kernel struct {
	Coremap *mem.Coremap
	Swap    *mem.Swap
	TLB     *vm.TLB
	Procs   *proc.Table
	Console *vfs.MemVnode
	KProc   *proc.Process
}

// Boot constructs the kernel singletons. npages sizes the coremap;
// swapBackend may be nil, leaving the swap subsystem permanently
// NoSwap, per spec.md section 4.2's initialization rule ("If absent,
// set NoSwap and disable all swap calls"). nswapSlots is ignored when
// swapBackend is nil.
func Boot(npages int, swapBackend vfs.Vnode, nswapSlots int) *Kernel {
	coremap := mem.NewCoremap(npages)
	swap := mem.NewSwap(swapBackend, nswapSlots)
	coremap.AttachSwap(swap)
	tlb := vm.NewTLB()

	table := proc.NewTable()
	console := vfs.NewConsoleVnode()

	kproc := proc.NewRunprogram(table, "[kernel]", nil, console)

	fmt.Printf("Reserved %v pages (%vMB)\n", npages, npages*defs.PAGE_SIZE>>20)

	return &Kernel{
		Coremap: coremap,
		Swap:    swap,
		TLB:     tlb,
		Procs:   table,
		Console: console,
		KProc:   kproc,
	}
}

// NewUserProcess creates a fresh process ready for Execv, with standard
// fds bound to the kernel's console and cwd inherited from the kernel
// process, mirroring proc_create_runprogram's callers in runprogram2.
func (k *Kernel) NewUserProcess(name string) *proc.Process {
	return proc.NewRunprogram(k.Procs, name, k.KProc.Cwd, k.Console)
}
