package proc

import (
	"kernelcore/defs"
	"kernelcore/loader"
	"kernelcore/mem"
	"kernelcore/vfs"
	"kernelcore/vm"
)

// NewRunprogram creates a fresh process for use by runprogram2/Execv:
// no address space yet, standard fds 0/1/2 bound to console, cwd
// inherited from the given parent-ish process (the kernel process at
// boot), and registers it with the table. Mirrors
// proc_create_runprogram.
func NewRunprogram(table *Table, name string, cwd vfs.Vnode, console vfs.Vnode) *Process {
	p := newProcess(name, cwd)
	p.Files.SetupConsole(console)
	table.Add(p)
	return p
}

// Fork implements spec.md section 4.7's fork(): the child is a fresh
// process object sharing the parent's file-table entries by reference
// (ref-bumped), with its own copy of the parent's address space. There
// is no simulated trapframe or kernel thread here — this core stops at
// the point where the original would call thread_fork; the caller is
// responsible for driving the child's further execution (typically by
// calling Execv and then Exit on it), matching the fact that actual
// user-mode instruction execution is outside this core's scope.
func Fork(table *Table, parent *Process) (*Process, defs.Err_t) {
	child := newProcess(parent.Name, parent.Cwd)
	if parent.Cwd != nil {
		parent.mu.Lock()
		parent.Cwd.Incref()
		parent.mu.Unlock()
	}
	child.Files = parent.Files.Clone()
	child.PPID = parent.PID

	parentAS := parent.AddrSpace()
	if parentAS != nil {
		childAS, err := vm.Copy(parentAS)
		if err != 0 {
			child.Files.CloseAll()
			if parent.Cwd != nil {
				parent.Cwd.Decref()
			}
			return nil, defs.ENOMEM
		}
		child.AS = childAS
	}

	table.Add(child)
	return child, 0
}

// Execv implements spec.md section 4.7's execv()/runprogram2(): argument
// validation, loading a fresh address space from prog, and defining the
// stack with argv marshalled onto it. It never returns on success in the
// original; here it returns the entry point and stack pointer the caller
// would hand to "enter user mode", since this core does not itself
// execute user instructions.
func Execv(p *Process, coremap *mem.Coremap, swap *mem.Swap, tlb *vm.TLB, prog vfs.Vnode, progname string, argv []string) (entry int, stackptr int, err defs.Err_t) {
	if progname == "" {
		return 0, 0, defs.EINVAL
	}

	loaded, lerr := loader.Load(coremap, swap, tlb, prog)
	if lerr != 0 {
		return 0, 0, lerr
	}

	oldAS := p.AddrSpace()
	p.SetAddrSpace(loaded.AS)
	if oldAS != nil {
		vm.Destroy(oldAS)
	}

	sp := loaded.StackPtr
	if len(argv) > 0 {
		newSP, merr := loader.MarshalArgv(loaded.AS, argv)
		if merr != 0 {
			return 0, 0, merr
		}
		sp = newSP
	}
	return loaded.Entry, sp, 0
}

// Waitpid implements spec.md section 4.7's waitpid().
func Waitpid(table *Table, caller *Process, pid int, options int) (status int, retPID int, err defs.Err_t) {
	if options != 0 {
		return 0, 0, defs.EINVAL
	}
	if pid < defs.PID_MIN || pid > defs.PID_MAX {
		return 0, 0, defs.ESRCH
	}
	if pid == caller.PID || pid == caller.PPID {
		return 0, 0, defs.ECHILD
	}

	target, ok := table.Lookup(pid)
	if !ok {
		return 0, 0, defs.ESRCH
	}
	if target.PPID != caller.PID {
		return 0, 0, defs.ECHILD
	}

	target.waitMu.Lock()
	for target.state != Completed {
		target.waitCV.Wait()
	}
	ret := target.returnValue
	target.waitMu.Unlock()

	table.Remove(pid)
	return ret, pid, 0
}

// Exit implements spec.md section 4.7's _exit(): store the encoded exit
// status, mark Completed, release the address space, then broadcast so
// any waiter wakes, in exactly that order — matching the original's
// "acquire wait-lock, store return value, set Completed, release address
// space, broadcast, release the lock."
func Exit(p *Process, code int) {
	p.waitMu.Lock()
	p.returnValue = EncodeExitStatus(code)
	p.state = Completed

	as := p.AddrSpace()
	p.SetAddrSpace(nil)
	if as != nil {
		vm.Destroy(as)
	}
	p.Files.CloseAll()

	p.waitCV.Broadcast()
	p.waitMu.Unlock()
}
