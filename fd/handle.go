// Package fd implements the per-process file-descriptor table over
// shared, reference-counted file handles, spec.md section 4.8. It is
// grounded on the original kernel's file_syscalls.c semantics (flag
// validation, permission checks, dup2's incref/decref dance) expressed
// in the teacher's style: small structs, an explicit mutex per shared
// object, defs.Err_t return values.
package fd

import (
	"sync"

	"kernelcore/defs"
	"kernelcore/vfs"
)

// Handle is a shared, reference-counted open-file object, spec.md
// section 3's FileHandle. Multiple FileTableEntries across multiple
// processes (after fork or dup2) may point at the same Handle; its
// offset is mutated only under its vnode's op-lock.
type Handle struct {
	mu     sync.Mutex
	Vnode  vfs.Vnode
	offset int64
	flags  int
	refs   int
}

// NewHandle creates a handle over vnode with one reference, offset 0,
// and the given open flags. The caller is assumed to already hold a
// vnode reference (e.g. from a successful VFS open); NewHandle does not
// call Incref itself.
func NewHandle(v vfs.Vnode, flags int) *Handle {
	return &Handle{Vnode: v, flags: flags, refs: 1}
}

func (h *Handle) readable() bool {
	return h.flags&defs.O_WRONLY == 0
}

func (h *Handle) writeable() bool {
	return h.flags&defs.O_WRONLY != 0 || h.flags&defs.O_RDWR != 0
}

// Incref bumps the handle's reference count, used by fork (sharing the
// parent's handles) and dup2 (retargeting a descriptor onto an existing
// handle).
func (h *Handle) Incref() {
	h.mu.Lock()
	h.refs++
	h.mu.Unlock()
}

// Decref drops a reference and reports whether it was the last one, in
// which case the caller must close the underlying vnode.
func (h *Handle) Decref() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.refs--
	if h.refs < 0 {
		defs.Panicf("fd: handle refcount underflow")
	}
	return h.refs == 0
}

// Read performs a permission-checked, offset-advancing read. It holds
// the vnode's op-lock across the read and the offset update, per spec.md
// section 4.8: "under the vnode op-lock: perform a VFS read ... update
// offset."
func (h *Handle) Read(p []byte) (int, defs.Err_t) {
	if !h.readable() {
		return 0, defs.EINVAL
	}
	h.Vnode.OpLock().Lock()
	defer h.Vnode.OpLock().Unlock()

	h.mu.Lock()
	off := h.offset
	h.mu.Unlock()

	n, err := h.Vnode.ReadAt(p, off)
	if err != 0 {
		return 0, err
	}
	h.mu.Lock()
	h.offset += int64(n)
	h.mu.Unlock()
	return n, 0
}

// Write is the symmetric write path.
func (h *Handle) Write(p []byte) (int, defs.Err_t) {
	if !h.writeable() {
		return 0, defs.EINVAL
	}
	h.Vnode.OpLock().Lock()
	defer h.Vnode.OpLock().Unlock()

	h.mu.Lock()
	off := h.offset
	h.mu.Unlock()

	n, err := h.Vnode.WriteAt(p, off)
	if err != 0 {
		return 0, err
	}
	h.mu.Lock()
	h.offset += int64(n)
	h.mu.Unlock()
	return n, 0
}

// Seek implements lseek under the vnode op-lock.
func (h *Handle) Seek(pos int64, whence int) (int64, defs.Err_t) {
	if !h.Vnode.Seekable() {
		return 0, defs.ESPIPE
	}
	h.Vnode.OpLock().Lock()
	defer h.Vnode.OpLock().Unlock()

	h.mu.Lock()
	cur := h.offset
	h.mu.Unlock()

	var newOff int64
	switch whence {
	case defs.SEEK_SET:
		newOff = pos
	case defs.SEEK_CUR:
		newOff = cur + pos
	case defs.SEEK_END:
		newOff = h.Vnode.Size() + pos
	default:
		return 0, defs.EINVAL
	}
	if newOff < 0 {
		return 0, defs.EINVAL
	}

	h.mu.Lock()
	h.offset = newOff
	h.mu.Unlock()
	return newOff, 0
}
