// Package vfs defines the contract the core kernel consumes from the
// filesystem layer without implementing it. spec.md treats the VFS, vnode
// operation locks, and the backing disk filesystem as an external
// collaborator; this package is that contract (a Vnode interface) plus one
// in-memory implementation used to exercise open/read/write/seek, swap,
// and the console device in tests.
package vfs

import (
	"sync"

	"kernelcore/defs"
)

// Vnode is the minimal surface the kernel core needs from a filesystem
// object: byte-range read/write, size, seekability, and an operation lock
// serializing concurrent access to one handle's offset, matching
// spec.md section 3's FileHandle invariant ("operations on a handle
// serialize via the vnode's op-lock").
type Vnode interface {
	// ReadAt reads into p starting at off, returning the number of bytes
	// actually read (which may be less than len(p) at EOF).
	ReadAt(p []byte, off int64) (int, defs.Err_t)
	// WriteAt writes p at off, returning the number of bytes written.
	WriteAt(p []byte, off int64) (int, defs.Err_t)
	// Size returns the current byte length of the vnode's contents.
	Size() int64
	// Seekable reports whether lseek is permitted on this vnode.
	Seekable() bool
	// OpLock returns the lock serializing read/write/lseek against this
	// vnode, per spec.md section 4.8 and section 5.
	OpLock() sync.Locker
	// Incref/Decref track how many file handles reference this vnode.
	// Decref returns true when the last reference was dropped and the
	// vnode should be considered closed.
	Incref()
	Decref() bool
}

// MemVnode is an in-memory Vnode backed by a growable byte slice. It
// stands in for a real on-disk file: every read/write/seek/refcount
// invariant spec.md names is honored, but persistence is just a slice.
//
// opLock is the vnode operation lock spec.md's FileHandle invariant
// refers to: callers (fd.Table) hold it across a whole read/write/lseek,
// including the offset update. dataMu is a separate, narrower lock
// guarding the byte slice itself so ReadAt/WriteAt/Size stay safe even
// when called without opLock held (e.g. by the swap path, which never
// goes through a FileHandle).
type MemVnode struct {
	opLock   sync.Mutex
	dataMu   sync.Mutex
	data     []byte
	seekable bool
	refs     int
}

// NewMemVnode creates a fresh, empty, seekable vnode with one reference.
func NewMemVnode() *MemVnode {
	return &MemVnode{seekable: true, refs: 1}
}

// NewConsoleVnode creates a non-seekable vnode modeling "con:", the
// console device opened for the standard fds in proc.NewRunprogram.
func NewConsoleVnode() *MemVnode {
	return &MemVnode{seekable: false, refs: 0}
}

func (v *MemVnode) ReadAt(p []byte, off int64) (int, defs.Err_t) {
	v.dataMu.Lock()
	defer v.dataMu.Unlock()
	if off < 0 || off >= int64(len(v.data)) {
		return 0, 0
	}
	n := copy(p, v.data[off:])
	return n, 0
}

func (v *MemVnode) WriteAt(p []byte, off int64) (int, defs.Err_t) {
	v.dataMu.Lock()
	defer v.dataMu.Unlock()
	end := off + int64(len(p))
	if end > int64(len(v.data)) {
		grown := make([]byte, end)
		copy(grown, v.data)
		v.data = grown
	}
	copy(v.data[off:end], p)
	return len(p), 0
}

func (v *MemVnode) Size() int64 {
	v.dataMu.Lock()
	defer v.dataMu.Unlock()
	return int64(len(v.data))
}

func (v *MemVnode) Seekable() bool {
	return v.seekable
}

func (v *MemVnode) OpLock() sync.Locker {
	return &v.opLock
}

func (v *MemVnode) Incref() {
	v.dataMu.Lock()
	v.refs++
	v.dataMu.Unlock()
}

func (v *MemVnode) Decref() bool {
	v.dataMu.Lock()
	defer v.dataMu.Unlock()
	v.refs--
	if v.refs < 0 {
		defs.Panicf("vnode refcount underflow")
	}
	return v.refs == 0
}
