// Package proc implements the process table and the fork/execv/waitpid/
// exit lifecycle of spec.md sections 4.6-4.7, grounded on the original
// kernel's proc.c/processtable.c/proc_syscalls.c semantics (p_lock,
// p_waitcvlock/p_waitcv rendezvous, pid_counter with a free-pid list)
// expressed in the teacher's style of small structs guarded by an
// explicit sync.Mutex.
package proc

import (
	"sync"

	"kernelcore/fd"
	"kernelcore/vfs"
	"kernelcore/vm"
)

// State is a process's lifecycle stage, spec.md section 3.
type State int

const (
	Running State = iota
	Completed
)

// Process is a unit of address-space and file-table ownership. mu guards
// the pointer fields (AS, Cwd), mirroring the original's p_lock
// discipline of protecting pointers, not the work done through them.
// waitMu/waitCV are the separate rendezvous lock the original calls
// p_waitcvlock/p_waitcv; see DESIGN.md for the documented lock order
// between the two (process-table lock is always acquired before a
// process's own waitMu, never the reverse).
type Process struct {
	mu sync.Mutex

	Name  string
	AS    *vm.AddrSpace
	Cwd   vfs.Vnode
	Files *fd.Table

	PID  int
	PPID int

	waitMu      sync.Mutex
	waitCV      *sync.Cond
	state       State
	returnValue int
}

// newProcess constructs a Process with no PID yet assigned; the process
// table assigns one when the process is registered.
func newProcess(name string, cwd vfs.Vnode) *Process {
	p := &Process{
		Name:  name,
		Cwd:   cwd,
		Files: fd.NewTable(),
		state: Running,
	}
	p.waitCV = sync.NewCond(&p.waitMu)
	return p
}

// SetAddrSpace installs as as the process's address space, under the
// process's pointer lock.
func (p *Process) SetAddrSpace(as *vm.AddrSpace) {
	p.mu.Lock()
	p.AS = as
	p.mu.Unlock()
}

// AddrSpace returns the process's current address space.
func (p *Process) AddrSpace() *vm.AddrSpace {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.AS
}

// EncodeExitStatus wraps an exit code with the standard normal-exit
// encoding, mirroring the usual W*-macro convention: the low byte is the
// "exited normally" tag (0), the exit code occupies the next byte up.
func EncodeExitStatus(code int) int {
	return (code & 0xff) << 8
}

// DecodeExitStatus is EncodeExitStatus's inverse.
func DecodeExitStatus(status int) int {
	return (status >> 8) & 0xff
}
