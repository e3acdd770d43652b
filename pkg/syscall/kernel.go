package syscall

import (
	"github.com/kaedeos/kos/pkg/ipc/mqueue"
	"github.com/kaedeos/kos/pkg/ipc/pipe"
	"github.com/kaedeos/kos/pkg/ipc/semaphore"
	"github.com/kaedeos/kos/pkg/ipc/shm"
	"github.com/kaedeos/kos/pkg/ipc/signal"
	"github.com/kaedeos/kos/pkg/process"
	"github.com/kaedeos/kos/pkg/scheduler"
	"github.com/kaedeos/kos/pkg/service"
)

// Kernel bundles the subsystem handles the registered syscalls are wired
// against. It is constructed once by internal/runtime and never mutated
// after RegisterAll.
type Kernel struct {
	Processes  *process.Table
	Pipes      *pipe.Registry
	Queues     *mqueue.Registry
	SharedMem  *shm.Registry
	Semaphores *semaphore.Registry
	Signals    *signal.Table
	Services   *service.Registry
	Jobs       *scheduler.Registry
}

// RegisterAll installs every syscall this kernel exposes onto d.
func (k *Kernel) RegisterAll(d *Dispatcher) {
	k.registerProcessSyscalls(d)
	k.registerIPCSyscalls(d)
	k.registerSystemSyscalls(d)
	k.registerFilesystemSyscalls(d)
	k.registerServiceSyscalls(d)
	k.registerSchedulerSyscalls(d)
}
