// Package service is the KOS service supervisor (L3a): a systemd-like state
// machine per service with dependency/conflict resolution, restart
// policies, and watchdog monitoring.
package service

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kaedeos/kos/internal/klog"
	"github.com/kaedeos/kos/internal/store"
	"github.com/kaedeos/kos/pkg/events"
	"github.com/kaedeos/kos/pkg/ipc/pipe"
	"github.com/kaedeos/kos/pkg/process"
	"github.com/kaedeos/kos/pkg/types"
)

// controlPipeBufferSize sizes the stdout/stderr/control pipes a service's
// environment points its process at (KOS_STDOUT_PIPE etc.), per spec.md's
// external-interfaces contract.
const controlPipeBufferSize = 65536

// Registry owns every service definition and its runtime state, and runs
// the 2-second supervisor loop that reconciles desired vs. actual state.
type Registry struct {
	root   *store.Root
	procs  *process.Table
	broker *events.Broker
	pipes  *pipe.Registry

	mu       sync.Mutex
	services map[string]*types.Service
	pidOwner map[int]string // pid -> service name, for exit correlation

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewRegistry constructs a service registry, loading any persisted service
// definitions from root.
func NewRegistry(root *store.Root, procs *process.Table, broker *events.Broker, pipes *pipe.Registry) (*Registry, error) {
	r := &Registry{
		root: root, procs: procs, broker: broker, pipes: pipes,
		services: make(map[string]*types.Service),
		pidOwner: make(map[int]string),
		stopCh:   make(chan struct{}),
	}
	if err := r.loadAll(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Registry) loadAll() error {
	entries, err := store.ReadDirNames(r.root.ServiceConfigDir())
	if err != nil {
		return nil // fresh storage root, nothing to load
	}
	for _, name := range entries {
		if !strings.HasSuffix(name, ".service") {
			continue
		}
		var svc types.Service
		if err := store.ReadJSON(filepath.Join(r.root.ServiceConfigDir(), name), &svc); err != nil {
			continue
		}
		var state types.Service
		statePath := filepath.Join(r.root.ServiceStateDir(), svc.StateFile())
		if err := store.ReadJSON(statePath, &state); err == nil {
			svc.State = state.State
			svc.PID = state.PID
			svc.StartTime = state.StartTime
			svc.StopTime = state.StopTime
			svc.RestartCount = state.RestartCount
			svc.LastExitCode = state.LastExitCode
			svc.LastExitTime = state.LastExitTime
		} else {
			svc.State = types.ServiceInactive
		}
		// A service can never resume into a RUNNING state across a KOS
		// restart since its PID table is gone; treat it as inactive so the
		// supervisor loop restarts it if policy says to.
		if svc.State == types.ServiceRunning || svc.State == types.ServiceStarting {
			svc.State = types.ServiceInactive
			svc.PID = 0
		}
		r.services[svc.Name] = &svc
	}
	return nil
}

func (r *Registry) saveConfig(s *types.Service) error {
	return store.AtomicWriteJSON(filepath.Join(r.root.ServiceConfigDir(), s.ConfigFile()), s)
}

func (r *Registry) saveState(s *types.Service) error {
	return store.AtomicWriteJSON(filepath.Join(r.root.ServiceStateDir(), s.StateFile()), s)
}

// Create registers a new service definition in the INACTIVE state.
func (r *Registry) Create(svc types.Service) (*types.Service, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.services[svc.Name]; exists {
		return nil, fmt.Errorf("service: %w: %s", types.ErrAlreadyExists, svc.Name)
	}
	if svc.ID == "" {
		svc.ID = uuid.NewString()
	}
	if svc.Type == "" {
		svc.Type = types.ServiceSimple
	}
	if svc.Restart == "" {
		svc.Restart = types.RestartNo
	}
	svc.State = types.ServiceInactive

	if svc.StdoutPipe == "" {
		if id, err := r.pipes.Create(svc.Name+".stdout", controlPipeBufferSize); err == nil {
			svc.StdoutPipe = id
		}
	}
	if svc.StderrPipe == "" {
		if id, err := r.pipes.Create(svc.Name+".stderr", controlPipeBufferSize); err == nil {
			svc.StderrPipe = id
		}
	}
	if svc.ControlPipe == "" {
		if id, err := r.pipes.Create(svc.Name+".control", controlPipeBufferSize); err == nil {
			svc.ControlPipe = id
		}
	}

	if err := r.saveConfig(&svc); err != nil {
		return nil, err
	}
	if err := r.saveState(&svc); err != nil {
		return nil, err
	}
	r.services[svc.Name] = &svc
	return &svc, nil
}

// Delete removes a service definition, along with its persisted config and
// state files. The service must be inactive or failed.
func (r *Registry) Delete(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	svc, ok := r.services[name]
	if !ok {
		return fmt.Errorf("service: %w: %s", types.ErrNotFound, name)
	}
	if svc.State != types.ServiceInactive && svc.State != types.ServiceFailed {
		return fmt.Errorf("service: %w: %s is %s", types.ErrInvalidState, name, svc.State)
	}
	if err := os.Remove(filepath.Join(r.root.ServiceConfigDir(), svc.ConfigFile())); err != nil && !os.IsNotExist(err) {
		return err
	}
	if err := os.Remove(filepath.Join(r.root.ServiceStateDir(), svc.StateFile())); err != nil && !os.IsNotExist(err) {
		return err
	}
	delete(r.services, name)
	return nil
}

// Get returns a copy of a service's current state.
func (r *Registry) Get(name string) (types.Service, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	svc, ok := r.services[name]
	if !ok {
		return types.Service{}, fmt.Errorf("service: %w: %s", types.ErrNotFound, name)
	}
	return *svc, nil
}

// List returns a snapshot of every registered service.
func (r *Registry) List() []types.Service {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]types.Service, 0, len(r.services))
	for _, svc := range r.services {
		out = append(out, *svc)
	}
	return out
}

// Start brings up name and, transitively, every service it depends on, in
// dependency order. Cycles are rejected with ErrInvalidArgument.
func (r *Registry) Start(name string) error {
	order, err := r.resolveStartOrder(name)
	if err != nil {
		return err
	}
	for _, svc := range order {
		if err := r.startOne(svc); err != nil {
			return fmt.Errorf("service: start %s: %w", svc, err)
		}
	}
	return nil
}

// resolveStartOrder performs a depth-first topological walk of name's
// dependency graph, detecting cycles via a visiting set, and checks that no
// conflicting service is currently active.
func (r *Registry) resolveStartOrder(name string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var order []string
	visited := make(map[string]bool)
	visiting := make(map[string]bool)

	var visit func(n string) error
	visit = func(n string) error {
		if visited[n] {
			return nil
		}
		if visiting[n] {
			return fmt.Errorf("%w: dependency cycle at %s", types.ErrInvalidArgument, n)
		}
		visiting[n] = true

		svc, ok := r.services[n]
		if !ok {
			return fmt.Errorf("%w: %s", types.ErrNotFound, n)
		}
		for _, conflict := range svc.Conflicts {
			if other, ok := r.services[conflict]; ok && isActive(other.State) {
				return fmt.Errorf("%w: %s conflicts with active service %s", types.ErrResourceBusy, n, conflict)
			}
		}
		for _, dep := range svc.Dependencies {
			if err := visit(dep); err != nil {
				return err
			}
		}

		visiting[n] = false
		visited[n] = true
		order = append(order, n)
		return nil
	}

	if err := visit(name); err != nil {
		return nil, err
	}
	return order, nil
}

func isActive(s types.ServiceState) bool {
	switch s {
	case types.ServiceActivating, types.ServiceStarting, types.ServiceRunning:
		return true
	default:
		return false
	}
}

// startOne launches a single service's ExecStart without touching its
// dependencies (callers resolve order first).
func (r *Registry) startOne(name string) error {
	r.mu.Lock()
	svc, ok := r.services[name]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", types.ErrNotFound, name)
	}
	if isActive(svc.State) {
		r.mu.Unlock()
		return nil
	}
	svc.State = types.ServiceActivating
	r.mu.Unlock()

	pid, err := r.procs.Spawn(svc.Name, svc.ExecStart, svc.WorkingDirectory, serviceEnv(svc), 0)
	if err != nil {
		r.mu.Lock()
		svc.State = types.ServiceFailed
		svc.FailureReason = err.Error()
		r.saveState(svc)
		r.mu.Unlock()
		r.publish(events.ServiceFailed, name, err.Error())
		return err
	}

	r.mu.Lock()
	svc.PID = pid
	svc.StartTime = time.Now()
	svc.LastWatchdog = time.Now()
	if svc.Type == types.ServiceOneshot {
		svc.State = types.ServiceStarting
	} else {
		svc.State = types.ServiceRunning
	}
	r.pidOwner[pid] = name
	r.saveState(svc)
	r.mu.Unlock()

	r.publish(events.ServiceStarted, name, fmt.Sprintf("pid=%d", pid))
	return nil
}

func envSlice(m map[string]string) []string {
	if len(m) == 0 {
		return nil
	}
	out := make([]string, 0, len(m))
	for k, v := range m {
		out = append(out, k+"="+v)
	}
	return out
}

// serviceEnv builds a service's child process environment: its declared
// Environment plus the KOS_SERVICE_*/KOS_*_PIPE variables spec.md's external
// interfaces section requires every supervised service process receive.
func serviceEnv(svc *types.Service) []string {
	out := envSlice(svc.Environment)
	out = append(out,
		"KOS_SERVICE_NAME="+svc.Name,
		"KOS_SERVICE_ID="+svc.ID,
		"KOS_STDOUT_PIPE="+svc.StdoutPipe,
		"KOS_STDERR_PIPE="+svc.StderrPipe,
		"KOS_CONTROL_PIPE="+svc.ControlPipe,
	)
	return out
}

// Stop sends the service's stop sequence: SIGTERM, wait up to 10s, then
// SIGKILL.
func (r *Registry) Stop(name string) error {
	r.mu.Lock()
	svc, ok := r.services[name]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", types.ErrNotFound, name)
	}
	pid := svc.PID
	svc.State = types.ServiceStopping
	r.mu.Unlock()

	if pid == 0 || !r.procs.Exists(pid) {
		r.mu.Lock()
		svc.State = types.ServiceInactive
		svc.StopTime = time.Now()
		r.saveState(svc)
		r.mu.Unlock()
		return nil
	}

	if err := r.procs.Terminate(pid, false); err != nil {
		return fmt.Errorf("service: stop %s: %w", name, err)
	}
	if _, exited, _ := r.procs.Wait(pid, 10*time.Second); !exited {
		if err := r.procs.Terminate(pid, true); err != nil {
			return fmt.Errorf("service: kill %s: %w", name, err)
		}
		r.procs.Wait(pid, 2*time.Second)
	}

	r.mu.Lock()
	svc.State = types.ServiceInactive
	svc.PID = 0
	svc.StopTime = time.Now()
	r.saveState(svc)
	r.mu.Unlock()

	r.publish(events.ServiceStopped, name, "")
	return nil
}

// Restart stops then starts name.
func (r *Registry) Restart(name string) error {
	if err := r.Stop(name); err != nil {
		return err
	}
	return r.Start(name)
}

// NotifyWatchdog records a watchdog keepalive from a NOTIFY service.
func (r *Registry) NotifyWatchdog(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	svc, ok := r.services[name]
	if !ok {
		return fmt.Errorf("%w: %s", types.ErrNotFound, name)
	}
	svc.LastWatchdog = time.Now()
	return nil
}

// Run starts the 2-second supervisor loop, which runs until Shutdown closes
// the stop channel: it reaps exited services and applies restart policy.
func (r *Registry) Run() {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(2 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				r.reconcile()
			case <-r.stopCh:
				return
			}
		}
	}()
}

// Shutdown stops the supervisor loop and waits for it to exit.
func (r *Registry) Shutdown() {
	close(r.stopCh)
	r.wg.Wait()
}

func (r *Registry) reconcile() {
	r.mu.Lock()
	var toCheck []*types.Service
	for _, svc := range r.services {
		toCheck = append(toCheck, svc)
	}
	r.mu.Unlock()

	for _, svc := range toCheck {
		r.reconcileOne(svc)
	}
}

func (r *Registry) reconcileOne(svc *types.Service) {
	r.mu.Lock()
	name := svc.Name
	pid := svc.PID
	state := svc.State
	watchdogTimer := svc.WatchdogTimer
	lastWatchdog := svc.LastWatchdog
	restart := svc.Restart
	r.mu.Unlock()

	if state != types.ServiceRunning {
		return
	}

	if svc.Type == types.ServiceNotify && watchdogTimer > 0 && time.Since(lastWatchdog) > watchdogTimer {
		klog.WithServiceName(name).Warn("watchdog timeout")
		r.handleExit(name, -1, types.RestartOnWatchdog == restart || shouldRestart(restart, -1, true))
		return
	}

	if pid == 0 || r.procs.Exists(pid) {
		return
	}

	info, err := r.procs.Info(pid)
	exitCode := 0
	if err == nil {
		exitCode = info.ExitCode
	}
	r.handleExit(name, exitCode, shouldRestart(restart, exitCode, false))
}

func shouldRestart(policy types.RestartPolicy, exitCode int, abnormal bool) bool {
	switch policy {
	case types.RestartAlways:
		return true
	case types.RestartOnSuccess:
		return exitCode == 0
	case types.RestartOnFailure:
		return exitCode != 0
	case types.RestartOnAbnormal:
		return abnormal || exitCode != 0
	case types.RestartOnAbort:
		return exitCode < 0
	case types.RestartOnWatchdog:
		return abnormal
	default:
		return false
	}
}

func (r *Registry) handleExit(name string, exitCode int, restart bool) {
	r.mu.Lock()
	svc, ok := r.services[name]
	if !ok {
		r.mu.Unlock()
		return
	}
	svc.LastExitCode = exitCode
	svc.LastExitTime = time.Now()
	delete(r.pidOwner, svc.PID)
	svc.PID = 0
	if restart {
		svc.State = types.ServiceInactive
		svc.RestartCount++
	} else {
		svc.State = types.ServiceFailed
		svc.FailureReason = fmt.Sprintf("exit_code=%d", exitCode)
	}
	r.saveState(svc)
	r.mu.Unlock()

	if restart {
		r.publish(events.ServiceRestarted, name, fmt.Sprintf("exit_code=%d", exitCode))
		if err := r.startOne(name); err != nil {
			klog.WithServiceName(name).Error("restart failed: " + err.Error())
		}
		return
	}
	r.publish(events.ServiceFailed, name, fmt.Sprintf("exit_code=%d", exitCode))
}

func (r *Registry) publish(typ events.EventType, name, msg string) {
	if r.broker == nil {
		return
	}
	r.broker.Publish(&events.Event{Type: typ, Subject: name, Message: msg})
}
