package kernel

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"testing"

	"kernelcore/defs"
	"kernelcore/proc"
	"kernelcore/vfs"
	"kernelcore/vm"
)

func buildMinimalELF(vaddr uint64, payload []byte) []byte {
	const ehsize = 64
	const phsize = 56
	phoff := uint64(ehsize)
	dataOff := phoff + phsize

	var buf bytes.Buffer
	ident := [16]byte{0x7f, 'E', 'L', 'F', 2, 1, 1}
	buf.Write(ident[:])
	binary.Write(&buf, binary.LittleEndian, uint16(elf.ET_EXEC))
	binary.Write(&buf, binary.LittleEndian, uint16(elf.EM_MIPS))
	binary.Write(&buf, binary.LittleEndian, uint32(1))
	binary.Write(&buf, binary.LittleEndian, vaddr)
	binary.Write(&buf, binary.LittleEndian, phoff)
	binary.Write(&buf, binary.LittleEndian, uint64(0))
	binary.Write(&buf, binary.LittleEndian, uint32(0))
	binary.Write(&buf, binary.LittleEndian, uint16(ehsize))
	binary.Write(&buf, binary.LittleEndian, uint16(phsize))
	binary.Write(&buf, binary.LittleEndian, uint16(1))
	binary.Write(&buf, binary.LittleEndian, uint16(0))
	binary.Write(&buf, binary.LittleEndian, uint16(0))
	binary.Write(&buf, binary.LittleEndian, uint16(0))

	binary.Write(&buf, binary.LittleEndian, uint32(elf.PT_LOAD))
	binary.Write(&buf, binary.LittleEndian, uint32(elf.PF_R|elf.PF_X))
	binary.Write(&buf, binary.LittleEndian, dataOff)
	binary.Write(&buf, binary.LittleEndian, vaddr)
	binary.Write(&buf, binary.LittleEndian, vaddr)
	binary.Write(&buf, binary.LittleEndian, uint64(len(payload)))
	binary.Write(&buf, binary.LittleEndian, uint64(len(payload)))
	binary.Write(&buf, binary.LittleEndian, uint64(0x1000))

	buf.Write(payload)
	return buf.Bytes()
}

// TestForkExecWaitpid exercises scenario 2 of spec.md section 8: a
// parent forks, the child execs a tiny program, the parent waits and
// observes the child's exit status.
func TestForkExecWaitpid(t *testing.T) {
	k := Boot(256, nil, 0)
	parent := k.NewUserProcess("parent")

	prog := vfs.NewMemVnode()
	prog.WriteAt(buildMinimalELF(0x400000, bytes.Repeat([]byte{0x00}, 16)), 0)

	child, err := proc.Fork(k.Procs, parent)
	if err != 0 {
		t.Fatalf("fork: %v", err)
	}

	_, _, err = proc.Execv(child, k.Coremap, k.Swap, k.TLB, prog, "echo", []string{"echo", "a", "b"})
	if err != 0 {
		t.Fatalf("execv: %v", err)
	}

	done := make(chan struct{})
	go func() {
		proc.Exit(child, 0)
		close(done)
	}()

	status, pid, err := proc.Waitpid(k.Procs, parent, child.PID, 0)
	<-done
	if err != 0 {
		t.Fatalf("waitpid: %v", err)
	}
	if pid != child.PID {
		t.Fatalf("waitpid pid = %d, want %d", pid, child.PID)
	}
	if proc.DecodeExitStatus(status) != 0 {
		t.Fatalf("exit status = %d, want 0", proc.DecodeExitStatus(status))
	}
}

// TestOpenWriteReadSeekScenario exercises scenario 1 of spec.md
// section 8 directly against a process's file table.
func TestOpenWriteReadSeekScenario(t *testing.T) {
	k := Boot(64, nil, 0)
	p := k.NewUserProcess("proc")

	foo := vfs.NewMemVnode()
	fdnum, err := p.Files.Open(foo, defs.O_RDWR|defs.O_CREAT)
	if err != 0 {
		t.Fatalf("open: %v", err)
	}
	if n, err := p.Files.Write(fdnum, []byte("hello")); err != 0 || n != 5 {
		t.Fatalf("write: n=%d err=%v", n, err)
	}
	if _, err := p.Files.Seek(fdnum, 0, defs.SEEK_SET); err != 0 {
		t.Fatalf("seek: %v", err)
	}
	buf := make([]byte, 5)
	if n, err := p.Files.Read(fdnum, buf); err != 0 || n != 5 || string(buf) != "hello" {
		t.Fatalf("read: n=%d err=%v buf=%q", n, err, buf)
	}
	if err := p.Files.Close(fdnum); err != 0 {
		t.Fatalf("close: %v", err)
	}
}

// TestSwapStress exercises scenario 3: allocate enough pages to exceed
// the coremap's capacity with swap backing the overflow, then confirm
// every page reads back its original pattern.
func TestSwapStress(t *testing.T) {
	// The coremap holds only 4 frames. Two address spaces take turns
	// being active; each fills the coremap on its own, forcing the
	// other (inactive, and so TLB-cold) address space's pages out to
	// swap. Re-activating the first must bring its pages back with
	// their original contents intact.
	k := Boot(4, vfs.NewMemVnode(), 32)

	asA := vm.Create(k.Coremap, k.Swap, k.TLB)
	asA.DefineRegion(0x10000, defs.PAGE_SIZE*4, true, true, false)
	asA.Activate()
	for i := 0; i < 4; i++ {
		addr := 0x10000 + i*defs.PAGE_SIZE
		if err := vm.Fault(asA, vm.FaultWrite, addr); err != 0 {
			t.Fatalf("asA fault on page %d: %v", i, err)
		}
		p, _ := asA.FindOrCreatePage(addr)
		k.Coremap.FrameBytes(p.PhysBase * defs.PAGE_SIZE)[0] = byte(0x10 + i)
	}

	asB := vm.Create(k.Coremap, k.Swap, k.TLB)
	asB.DefineRegion(0x20000, defs.PAGE_SIZE*4, true, true, false)
	asB.Activate() // flushes the TLB; asA's entries are now all cold.
	for i := 0; i < 4; i++ {
		addr := 0x20000 + i*defs.PAGE_SIZE
		if err := vm.Fault(asB, vm.FaultWrite, addr); err != 0 {
			t.Fatalf("asB fault on page %d: %v", i, err)
		}
		p, _ := asB.FindOrCreatePage(addr)
		k.Coremap.FrameBytes(p.PhysBase * defs.PAGE_SIZE)[0] = byte(0x20 + i)
	}

	asA.Activate()
	for i := 0; i < 4; i++ {
		addr := 0x10000 + i*defs.PAGE_SIZE
		if err := vm.Fault(asA, vm.FaultRead, addr); err != 0 {
			t.Fatalf("asA re-fault on page %d: %v", i, err)
		}
		p, _ := asA.FindOrCreatePage(addr)
		if got := k.Coremap.FrameBytes(p.PhysBase * defs.PAGE_SIZE)[0]; got != byte(0x10+i) {
			t.Fatalf("asA page %d byte = %#x, want %#x", i, got, 0x10+i)
		}
	}
}
