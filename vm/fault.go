package vm

import "kernelcore/defs"

// FaultType classifies why the CPU trapped into the VM subsystem.
// Per-region permission enforcement against FaultType is a planned
// extension, not yet implemented (spec.md section 4.3).
type FaultType int

const (
	FaultRead FaultType = iota
	FaultWrite
	FaultReadOnly
)

// Fault is the page-fault handler of spec.md section 4.3: resolve a
// faulting address to a physical frame, creating or swapping in the page
// as needed, and install a TLB entry for it.
func Fault(as *AddrSpace, faultType FaultType, faultAddr int) defs.Err_t {
	if as == nil {
		return defs.EFAULT
	}

	as.mu.Lock()
	_, inRegion := as.findRegionLocked(faultAddr)
	as.mu.Unlock()

	growingStack := false
	if !inRegion {
		if !as.InStackGrowthWindow(faultAddr) {
			return defs.EFAULT
		}
		growingStack = true
	}

	p, err := as.FindOrCreatePage(faultAddr)
	if err != 0 {
		return defs.EFAULT
	}
	if growingStack {
		as.GrowStack()
	}

	if p.State == Swapped {
		if err := as.SwapIn(p); err != 0 {
			return err
		}
	}

	// Interrupts are conceptually disabled for the duration of this
	// write; the TLB's own lock provides the same atomicity guarantee on
	// this single-core machine.
	as.tlb.WriteRandom(p.VirtBase/defs.PAGE_SIZE, p.PhysBase)
	return 0
}
