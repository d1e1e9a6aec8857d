package vm

import "testing"

func TestTLBOnlyActiveAddrSpaceHasLiveEntries(t *testing.T) {
	tlb := NewTLB()
	as1 := &AddrSpace{}
	as2 := &AddrSpace{}

	tlb.Activate(as1)
	tlb.WriteRandom(5, 9)

	if !tlb.HasLiveMapping(as1, 5) {
		t.Fatalf("expected as1 to observe its own mapping")
	}
	if tlb.HasLiveMapping(as2, 5) {
		t.Fatalf("inactive address space must never observe a live mapping")
	}
}

func TestTLBActivateFlushesEntries(t *testing.T) {
	tlb := NewTLB()
	as1 := &AddrSpace{}
	tlb.Activate(as1)
	tlb.WriteRandom(1, 2)

	tlb.Activate(as1)
	if tlb.HasLiveMapping(as1, 1) {
		t.Fatalf("activate must flush all entries, even for the same address space")
	}
}

func TestTLBInvalidateRemovesOneEntry(t *testing.T) {
	tlb := NewTLB()
	as := &AddrSpace{}
	tlb.Activate(as)
	tlb.WriteRandom(3, 4)
	tlb.Invalidate(as, 3)
	if tlb.HasLiveMapping(as, 3) {
		t.Fatalf("entry should have been invalidated")
	}
}
