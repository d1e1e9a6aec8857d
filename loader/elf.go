// Package loader implements user-program launch: parsing an ELF image
// into a fresh address space and marshalling argv onto the user stack,
// spec.md section 4.7's runprogram2 and section 6's argv layout. ELF
// parsing is grounded on the teacher's kernel/chentry.go, the one place
// in the pack that reads a real ELF file with the standard library's
// debug/elf rather than a hand-rolled parser.
package loader

import (
	"debug/elf"
	"io"

	"kernelcore/defs"
	"kernelcore/mem"
	"kernelcore/vfs"
	"kernelcore/vm"
)

// vnodeReaderAt adapts a vfs.Vnode to io.ReaderAt so debug/elf can read
// directly from it without ever touching a real filesystem.
type vnodeReaderAt struct {
	v vfs.Vnode
}

func (r vnodeReaderAt) ReadAt(p []byte, off int64) (int, error) {
	n, err := r.v.ReadAt(p, off)
	if err != 0 {
		return n, err
	}
	return n, nil
}

// Loaded describes the result of loading an ELF image: where user
// execution would begin and the initial (pre-argv) stack pointer.
type Loaded struct {
	AS       *vm.AddrSpace
	Entry    int
	StackPtr int
}

// Load parses the ELF image in prog and populates a fresh address space
// with one Region and one eagerly-loaded set of pages per PT_LOAD
// segment, mirroring the original load_elf()'s eager VOP_READ into
// prepared pages rather than this system's own lazy page-fault path (ELF
// text/data is paged in once, at exec time, not demand-faulted).
func Load(coremap *mem.Coremap, swap *mem.Swap, tlb *vm.TLB, prog vfs.Vnode) (*Loaded, defs.Err_t) {
	ef, err := elf.NewFile(vnodeReaderAt{prog})
	if err != nil {
		return nil, defs.EINVAL
	}
	if ef.Type != elf.ET_EXEC {
		return nil, defs.EINVAL
	}

	as := vm.Create(coremap, swap, tlb)
	as.Activate()

	for _, seg := range ef.Progs {
		if seg.Type != elf.PT_LOAD {
			continue
		}
		readable := seg.Flags&elf.PF_R != 0
		writeable := seg.Flags&elf.PF_W != 0
		executable := seg.Flags&elf.PF_X != 0

		vaddr := int(seg.Vaddr)
		memsz := int(seg.Memsz)
		as.DefineRegion(vaddr, memsz, readable, writeable, executable)

		data := make([]byte, seg.Filesz)
		sr := io.NewSectionReader(vnodeReaderAt{prog}, int64(seg.Off), int64(seg.Filesz))
		if _, err := io.ReadFull(sr, data); err != nil {
			vm.Destroy(as)
			return nil, defs.EIO
		}
		if werr := as.WriteBytes(vaddr, data); werr != 0 {
			vm.Destroy(as)
			return nil, werr
		}
		// Bytes beyond Filesz up to Memsz (BSS) are left as the coremap's
		// zeroed allocation already provides.
	}

	stackptr := as.DefineStack()
	return &Loaded{AS: as, Entry: int(ef.Entry), StackPtr: stackptr}, 0
}
