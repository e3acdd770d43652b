// Package signal implements the KOS per-process signal handler registry:
// registration, blocking/pending accumulation, and delivery, with
// SIGKILL/SIGTERM/SIGINT forwarded to the host OS.
package signal

import (
	"sync"

	"golang.org/x/sys/unix"

	"github.com/kaedeos/kos/internal/klog"
	"github.com/kaedeos/kos/pkg/types"
)

// Handler is invoked (on its own goroutine) when a signal is delivered.
type Handler func(signum int, data any)

type perProcess struct {
	mu       sync.Mutex
	handlers map[int]Handler
	blocked  map[int]bool
	pending  map[int]int
}

func newPerProcess() *perProcess {
	return &perProcess{
		handlers: make(map[int]Handler),
		blocked:  make(map[int]bool),
		pending:  make(map[int]int),
	}
}

// Table is the process-wide signal handler registry.
type Table struct {
	mu        sync.Mutex
	processes map[int]*perProcess
	exists    func(pid int) bool
	terminate func(pid int, force bool) error
}

// NewTable constructs a Table. exists and terminate delegate liveness
// checks and default-action termination to the process table (pkg/process)
// so this package does not import it directly.
func NewTable(exists func(pid int) bool, terminate func(pid int, force bool) error) *Table {
	return &Table{processes: make(map[int]*perProcess), exists: exists, terminate: terminate}
}

func (t *Table) proc(pid int) *perProcess {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.processes[pid]
	if !ok {
		p = newPerProcess()
		t.processes[pid] = p
	}
	return p
}

// RegisterHandler installs handler for signum on pid, returning the
// previous handler (nil if none). A nil handler resets to default action.
func (t *Table) RegisterHandler(pid, signum int, handler Handler) Handler {
	p := t.proc(pid)
	p.mu.Lock()
	defer p.mu.Unlock()
	prev := p.handlers[signum]
	if handler == nil {
		delete(p.handlers, signum)
	} else {
		p.handlers[signum] = handler
	}
	return prev
}

// Block marks signum blocked for pid; subsequent deliveries accumulate as
// pending instead of firing immediately.
func (t *Table) Block(pid, signum int) {
	p := t.proc(pid)
	p.mu.Lock()
	defer p.mu.Unlock()
	p.blocked[signum] = true
}

// Unblock unmasks signum for pid and drains any pending deliveries.
func (t *Table) Unblock(pid, signum int) int {
	p := t.proc(pid)
	p.mu.Lock()
	delete(p.blocked, signum)
	pending := p.pending[signum]
	p.mu.Unlock()

	processed := 0
	for i := 0; i < pending; i++ {
		p.mu.Lock()
		handler, ok := p.handlers[signum]
		p.mu.Unlock()
		if !ok {
			break
		}
		t.fire(pid, signum, handler, nil)
		p.mu.Lock()
		if p.pending[signum] > 1 {
			p.pending[signum]--
		} else {
			delete(p.pending, signum)
		}
		p.mu.Unlock()
		processed++
	}
	return processed
}

func (t *Table) IsBlocked(pid, signum int) bool {
	p := t.proc(pid)
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.blocked[signum]
}

// Send delivers signum to pid. SIGKILL/SIGTERM/SIGINT are also forwarded to
// the host OS signal delivery mechanism.
func (t *Table) Send(pid, signum int, data any) error {
	if !t.exists(pid) {
		return types.ErrNotFound
	}

	if signum == types.SIGKILL || signum == types.SIGTERM || signum == types.SIGINT {
		if err := unix.Kill(pid, unix.Signal(signum)); err != nil && err != unix.ESRCH {
			return err
		}
	}

	p := t.proc(pid)
	p.mu.Lock()
	if p.blocked[signum] {
		p.pending[signum]++
		p.mu.Unlock()
		return nil
	}
	handler, ok := p.handlers[signum]
	p.mu.Unlock()

	if ok {
		t.fire(pid, signum, handler, data)
		return nil
	}

	if signum == types.SIGKILL || signum == types.SIGTERM {
		return t.terminate(pid, signum == types.SIGKILL)
	}
	return nil
}

func (t *Table) fire(pid, signum int, handler Handler, data any) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				klog.WithPID(pid).Error("signal handler panicked")
			}
		}()
		handler(signum, data)
	}()
}

// ProcessPending processes any pending signals for pid that are still
// unblocked, returning the number handled.
func (t *Table) ProcessPending(pid int) int {
	p := t.proc(pid)
	p.mu.Lock()
	pending := make(map[int]int, len(p.pending))
	for k, v := range p.pending {
		pending[k] = v
	}
	p.mu.Unlock()

	count := 0
	for signum := range pending {
		if t.IsBlocked(pid, signum) {
			continue
		}
		p.mu.Lock()
		handler, ok := p.handlers[signum]
		p.mu.Unlock()
		if !ok {
			continue
		}
		t.fire(pid, signum, handler, nil)
		p.mu.Lock()
		if p.pending[signum] > 1 {
			p.pending[signum]--
		} else {
			delete(p.pending, signum)
		}
		p.mu.Unlock()
		count++
	}
	return count
}

// Cleanup drops the signal handler state for a terminated process.
func (t *Table) Cleanup(pid int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.processes, pid)
}
