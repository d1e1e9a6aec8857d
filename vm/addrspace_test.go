package vm

import (
	"testing"

	"kernelcore/defs"
	"kernelcore/mem"
)

func newTestAS(npages int) (*AddrSpace, *mem.Coremap) {
	c := mem.NewCoremap(npages)
	tlb := NewTLB()
	as := Create(c, nil, tlb)
	as.Activate()
	return as, c
}

func TestFaultCreatesPageAndInstallsTLB(t *testing.T) {
	as, _ := newTestAS(16)
	as.DefineRegion(0x1000, defs.PAGE_SIZE, true, true, false)

	if err := Fault(as, FaultWrite, 0x1000); err != 0 {
		t.Fatalf("fault: %v", err)
	}
	p, ok := as.findPageLocked(0x1000)
	if !ok {
		t.Fatalf("expected page to exist after fault")
	}
	if p.State != Mapped {
		t.Fatalf("expected page mapped")
	}
}

func TestFaultOutsideRegionAndStackWindowFails(t *testing.T) {
	as, _ := newTestAS(16)
	as.DefineRegion(0x1000, defs.PAGE_SIZE, true, true, false)

	if err := Fault(as, FaultRead, 0x500000); err != defs.EFAULT {
		t.Fatalf("expected EFAULT, got %v", err)
	}
}

func TestFaultGrowsStack(t *testing.T) {
	as, _ := newTestAS(16)
	addr := defs.USERSTACK - defs.PAGE_SIZE
	if err := Fault(as, FaultWrite, addr); err != 0 {
		t.Fatalf("stack fault: %v", err)
	}
	as.mu.Lock()
	got := as.stackPageCount
	as.mu.Unlock()
	if got != 1 {
		t.Fatalf("stack_page_count = %d, want 1", got)
	}
}

func TestSbrkGrowThenShrinkFaults(t *testing.T) {
	as, _ := newTestAS(64)
	as.DefineRegion(0x10000, defs.PAGE_SIZE, true, true, false)

	p0, err := as.Sbrk(0)
	if err != 0 {
		t.Fatalf("sbrk(0): %v", err)
	}

	old, err := as.Sbrk(defs.PAGE_SIZE * 4)
	if err != 0 {
		t.Fatalf("sbrk(+4): %v", err)
	}
	if old != p0 {
		t.Fatalf("sbrk(+4) old break = %#x, want %#x", old, p0)
	}

	for i := 0; i < 4; i++ {
		if err := Fault(as, FaultWrite, old+i*defs.PAGE_SIZE); err != 0 {
			t.Fatalf("fault at heap page %d: %v", i, err)
		}
	}

	shrunkTo, err := as.Sbrk(-defs.PAGE_SIZE * 2)
	if err != 0 {
		t.Fatalf("sbrk(-2): %v", err)
	}
	if shrunkTo != old+4*defs.PAGE_SIZE {
		t.Fatalf("sbrk(-2) returned %#x, want %#x", shrunkTo, old+4*defs.PAGE_SIZE)
	}

	if err := Fault(as, FaultRead, old+3*defs.PAGE_SIZE); err != defs.EFAULT {
		t.Fatalf("expected EFAULT after shrink, got %v", err)
	}
}

func TestSbrkRejectsUnalignedAndOversizedDeltas(t *testing.T) {
	as, _ := newTestAS(16)
	if _, err := as.Sbrk(1); err != defs.EINVAL {
		t.Fatalf("expected EINVAL for unaligned delta, got %v", err)
	}
	if _, err := as.Sbrk(defs.SBRK_MAX_DELTA + defs.PAGE_SIZE); err != defs.ENOMEM {
		t.Fatalf("expected ENOMEM for oversized delta, got %v", err)
	}
}

func TestAddrSpaceCopyClonesPageContents(t *testing.T) {
	as, c := newTestAS(16)
	as.DefineRegion(0x2000, defs.PAGE_SIZE, true, true, false)
	if err := Fault(as, FaultWrite, 0x2000); err != 0 {
		t.Fatalf("fault: %v", err)
	}
	p, _ := as.findPageLocked(0x2000)
	c.FrameBytes(p.PhysBase * defs.PAGE_SIZE)[0] = 0x42

	clone, err := Copy(as)
	if err != 0 {
		t.Fatalf("copy: %v", err)
	}
	cp, ok := clone.findPageLocked(0x2000)
	if !ok {
		t.Fatalf("clone missing page")
	}
	if cp.PhysBase == p.PhysBase {
		t.Fatalf("clone should get a distinct frame")
	}
	if c.FrameBytes(cp.PhysBase*defs.PAGE_SIZE)[0] != 0x42 {
		t.Fatalf("clone did not copy frame contents")
	}
}

func TestDestroyFreesAllFrames(t *testing.T) {
	as, c := newTestAS(4)
	as.DefineRegion(0x3000, defs.PAGE_SIZE*2, true, true, false)
	if err := Fault(as, FaultWrite, 0x3000); err != 0 {
		t.Fatalf("fault: %v", err)
	}
	if err := Fault(as, FaultWrite, 0x3000+defs.PAGE_SIZE); err != 0 {
		t.Fatalf("fault: %v", err)
	}
	Destroy(as)
	if got := c.FreeCount(); got != 4 {
		t.Fatalf("free count after destroy = %d, want 4", got)
	}
}
