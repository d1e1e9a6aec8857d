package proc

import (
	"sync"

	"kernelcore/defs"
)

// Table is the process-wide registry of live and zombie processes,
// spec.md section 3's ProcessTable. The original leaves this structure
// unsynchronized (see spec.md section 9's open question); here it owns
// its own mutex, acquired before a target process's own waitMu whenever
// both are needed (Waitpid looks a process up under the table lock,
// releases it, then takes the target's waitMu — see lifecycle.go).
//
// lookup is a map keyed by PID rather than the original's linear scan
// over an array: nothing in spec.md's invariants depends on scan order
// or cost, so the idiomatic Go collection is used instead of literally
// porting the O(n) array walk.
type Table struct {
	mu         sync.Mutex
	processes  map[int]*Process
	pidCounter int
	freePIDs   []int
}

// NewTable returns an empty process table with pid_counter starting at
// PID_MIN, spec.md section 4.6's init().
func NewTable() *Table {
	return &Table{
		processes:  map[int]*Process{},
		pidCounter: defs.PID_MIN,
	}
}

func (t *Table) fetchPID() int {
	if n := len(t.freePIDs); n > 0 {
		pid := t.freePIDs[n-1]
		t.freePIDs = t.freePIDs[:n-1]
		return pid
	}
	pid := t.pidCounter
	t.pidCounter++
	return pid
}

// Add assigns p a PID (reusing a freed one when available) and registers
// it, spec.md section 4.6's add().
func (t *Table) Add(p *Process) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	pid := t.fetchPID()
	p.PID = pid
	t.processes[pid] = p
	return pid
}

// Remove drops pid's entry and pushes it onto the free-PID list,
// spec.md section 4.6's remove().
func (t *Table) Remove(pid int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.processes[pid]; !ok {
		return
	}
	delete(t.processes, pid)
	t.freePIDs = append(t.freePIDs, pid)
}

// Lookup returns the process registered under pid, if any.
func (t *Table) Lookup(pid int) (*Process, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.processes[pid]
	return p, ok
}
