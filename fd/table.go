package fd

import (
	"sync"

	"kernelcore/defs"
	"kernelcore/vfs"
)

// Table is a single process's descriptor table: fd -> shared Handle.
// Mutated only by threads of the owning process (spec.md section 5: "no
// additional synchronization is required unless multithreaded user
// processes are supported"), so the mutex here only protects the map and
// fd_counter against that process's own concurrent syscalls, never
// against other processes.
type Table struct {
	mu        sync.Mutex
	entries   map[int]*Handle
	fdCounter int
}

// NewTable returns an empty file table with fd_counter starting at 0.
func NewTable() *Table {
	return &Table{entries: map[int]*Handle{}}
}

// SetupConsole binds fds 0, 1, 2 to console, with permissions R, W, W
// respectively, spec.md section 4.8's "standard descriptors" note. It
// must be called before any other fd has been allocated.
func (t *Table) SetupConsole(console vfs.Vnode) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.fdCounter != 0 {
		defs.Panicf("fd: SetupConsole called after descriptors were already allocated")
	}
	console.Incref()
	t.entries[0] = NewHandle(console, defs.O_RDONLY)
	console.Incref()
	t.entries[1] = NewHandle(console, defs.O_WRONLY)
	console.Incref()
	t.entries[2] = NewHandle(console, defs.O_WRONLY)
	t.fdCounter = 3
}

// validateFlags rejects nonsensical open flag combinations, spec.md
// section 4.8: "flag bits > 128 or O_EXCL without O_CREAT ⇒ EINVAL".
func validateFlags(flags int) defs.Err_t {
	if flags > 128 {
		return defs.EINVAL
	}
	if flags&defs.O_EXCL != 0 && flags&defs.O_CREAT == 0 {
		return defs.EINVAL
	}
	return 0
}

// Open creates a new handle over an already VFS-opened vnode and binds
// it to a fresh fd. path resolution and vnode creation are the VFS
// collaborator's responsibility; this is the table-level bookkeeping
// half of spec.md section 4.8's open().
func (t *Table) Open(v vfs.Vnode, flags int) (int, defs.Err_t) {
	if err := validateFlags(flags); err != 0 {
		return 0, err
	}
	v.Incref()
	h := NewHandle(v, flags)

	t.mu.Lock()
	defer t.mu.Unlock()
	newFd := t.fdCounter
	t.fdCounter++
	t.entries[newFd] = h
	return newFd, 0
}

func (t *Table) get(fd int) (*Handle, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	h, ok := t.entries[fd]
	return h, ok
}

// Read implements the read() syscall's table-level half.
func (t *Table) Read(fd int, buf []byte) (int, defs.Err_t) {
	h, ok := t.get(fd)
	if !ok {
		return 0, defs.EBADF
	}
	return h.Read(buf)
}

// Write implements the write() syscall's table-level half.
func (t *Table) Write(fd int, buf []byte) (int, defs.Err_t) {
	h, ok := t.get(fd)
	if !ok {
		return 0, defs.EBADF
	}
	return h.Write(buf)
}

// Seek implements lseek.
func (t *Table) Seek(fd int, pos int64, whence int) (int64, defs.Err_t) {
	h, ok := t.get(fd)
	if !ok {
		return 0, defs.EBADF
	}
	if whence != defs.SEEK_SET && whence != defs.SEEK_CUR && whence != defs.SEEK_END {
		return 0, defs.EINVAL
	}
	return h.Seek(pos, whence)
}

// Close drops fd's entry, decrementing its handle's refcount and
// releasing the vnode when it reaches zero.
func (t *Table) Close(fd int) defs.Err_t {
	t.mu.Lock()
	h, ok := t.entries[fd]
	if !ok {
		t.mu.Unlock()
		return defs.EBADF
	}
	delete(t.entries, fd)
	t.mu.Unlock()

	if h.Decref() {
		h.Vnode.Decref()
	}
	return 0
}

// Dup2 implements spec.md section 4.8's dup2: old absent is EBADF; an
// existing new is released first; the new fd ends up sharing old's
// offset and permissions (the same Handle).
func (t *Table) Dup2(oldfd, newfd int) (int, defs.Err_t) {
	old, ok := t.get(oldfd)
	if !ok {
		return 0, defs.EBADF
	}
	if oldfd == newfd {
		return newfd, 0
	}

	t.mu.Lock()
	existing, hadExisting := t.entries[newfd]
	old.Incref()
	t.entries[newfd] = old
	t.mu.Unlock()

	if hadExisting {
		if existing.Decref() {
			existing.Vnode.Decref()
		}
	}
	return newfd, 0
}

// Clone duplicates the table for fork: every handle is shared by
// reference (ref-bumped), and fd_counter is copied so the child
// allocates fresh fds starting where the parent left off.
func (t *Table) Clone() *Table {
	t.mu.Lock()
	defer t.mu.Unlock()

	clone := NewTable()
	for fd, h := range t.entries {
		h.Incref()
		clone.entries[fd] = h
	}
	clone.fdCounter = t.fdCounter
	return clone
}

// CloseAll releases every entry, used when a process exits.
func (t *Table) CloseAll() {
	t.mu.Lock()
	fds := make([]int, 0, len(t.entries))
	for fd := range t.entries {
		fds = append(fds, fd)
	}
	t.mu.Unlock()

	for _, fd := range fds {
		t.Close(fd)
	}
}
