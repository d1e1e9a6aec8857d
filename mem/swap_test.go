package mem

import (
	"bytes"
	"testing"

	"kernelcore/defs"
	"kernelcore/vfs"
)

func TestSwapNilBackendIsNoSwap(t *testing.T) {
	s := NewSwap(nil, 0)
	if s.Ready() {
		t.Fatalf("swap with nil backend must not be ready")
	}
}

func TestSwapWriteReadRoundTrip(t *testing.T) {
	s := NewSwap(vfs.NewMemVnode(), 4)
	if !s.Ready() {
		t.Fatalf("swap with backend should be ready")
	}

	s.mu.Lock()
	slot, ok := s.allocSlotLocked()
	s.mu.Unlock()
	if !ok {
		t.Fatalf("allocSlotLocked failed")
	}

	want := bytes.Repeat([]byte{0xAB}, defs.PAGE_SIZE)
	s.mu.Lock()
	err := s.writeSlotLocked(slot, want)
	s.mu.Unlock()
	if err != 0 {
		t.Fatalf("writeSlotLocked: %v", err)
	}

	got := make([]byte, defs.PAGE_SIZE)
	if err := s.ReadSlot(slot, got); err != 0 {
		t.Fatalf("ReadSlot: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("round trip mismatch")
	}

	s.FreeSlot(slot)
}

func TestSwapFreeUnallocatedSlotPanics(t *testing.T) {
	s := NewSwap(vfs.NewMemVnode(), 2)
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic")
		}
	}()
	s.FreeSlot(0)
}

func TestSwapSlotsExhausted(t *testing.T) {
	s := NewSwap(vfs.NewMemVnode(), 1)
	s.mu.Lock()
	_, ok := s.allocSlotLocked()
	s.mu.Unlock()
	if !ok {
		t.Fatalf("first alloc should succeed")
	}
	s.mu.Lock()
	_, ok = s.allocSlotLocked()
	s.mu.Unlock()
	if ok {
		t.Fatalf("second alloc should fail: slots exhausted")
	}
}
