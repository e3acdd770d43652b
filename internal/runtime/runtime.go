// Package runtime wires every KOS subsystem together, starts their
// background loops, and shuts them down when the run context is cancelled.
package runtime

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/kaedeos/kos/internal/config"
	"github.com/kaedeos/kos/internal/klog"
	"github.com/kaedeos/kos/internal/store"
	"github.com/kaedeos/kos/pkg/events"
	"github.com/kaedeos/kos/pkg/ipc/mqueue"
	"github.com/kaedeos/kos/pkg/ipc/pipe"
	"github.com/kaedeos/kos/pkg/ipc/semaphore"
	"github.com/kaedeos/kos/pkg/ipc/shm"
	"github.com/kaedeos/kos/pkg/ipc/signal"
	"github.com/kaedeos/kos/pkg/process"
	"github.com/kaedeos/kos/pkg/scheduler"
	"github.com/kaedeos/kos/pkg/service"
	"github.com/kaedeos/kos/pkg/syscall"
)

// Runtime holds every constructed subsystem plus the syscall dispatcher
// that fronts them.
type Runtime struct {
	Config config.Config

	Root       *store.Root
	Broker     *events.Broker
	Processes  *process.Table
	Pipes      *pipe.Registry
	Queues     *mqueue.Registry
	SharedMem  *shm.Registry
	Semaphores *semaphore.Registry
	Signals    *signal.Table
	Services   *service.Registry
	Jobs       *scheduler.Registry
	Dispatcher *syscall.Dispatcher
}

// New constructs every subsystem from cfg but does not start any
// background loop.
func New(cfg config.Config) (*Runtime, error) {
	klog.Init(klog.Config{
		Level:           cfg.LogLevel,
		JSONOutput:      cfg.LogJSON,
		ComponentLevels: cfg.LogLevelComponents,
	})

	root, err := store.New(cfg.Root)
	if err != nil {
		return nil, err
	}

	broker := events.NewBroker()
	procs := process.NewTable(broker)
	signals := signal.NewTable(procs.Exists, procs.Terminate)
	pipes := pipe.NewRegistry(root)

	services, err := service.NewRegistry(root, procs, broker, pipes)
	if err != nil {
		return nil, err
	}
	jobs, err := scheduler.NewRegistry(root, broker, pipes)
	if err != nil {
		return nil, err
	}

	rt := &Runtime{
		Config:     cfg,
		Root:       root,
		Broker:     broker,
		Processes:  procs,
		Pipes:      pipes,
		Queues:     mqueue.NewRegistry(root),
		SharedMem:  shm.NewRegistry(root),
		Semaphores: semaphore.NewRegistry(root),
		Signals:    signals,
		Services:   services,
		Jobs:       jobs,
		Dispatcher: syscall.NewDispatcher(),
	}

	kernel := &syscall.Kernel{
		Processes: procs, Pipes: rt.Pipes, Queues: rt.Queues, SharedMem: rt.SharedMem,
		Semaphores: rt.Semaphores, Signals: signals, Services: services, Jobs: jobs,
	}
	kernel.RegisterAll(rt.Dispatcher)

	return rt, nil
}

// Run starts every background loop (event broker, service supervisor,
// scheduler ticker, job executor) and blocks until ctx is cancelled, then
// shuts down the services, the jobs and the broker, in that order.
func (rt *Runtime) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	rt.Broker.Start()
	rt.Services.Run()
	rt.Jobs.Run()

	g.Go(func() error {
		<-ctx.Done()
		klog.Info("runtime shutting down")
		rt.Services.Shutdown()
		rt.Jobs.Shutdown()
		rt.Broker.Stop()
		return ctx.Err()
	})

	klog.Info("runtime started")
	err := g.Wait()
	if ctx.Err() != nil {
		return nil
	}
	return err
}
