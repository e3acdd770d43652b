// Package syscall is the KOS syscall dispatcher (L4): the single boundary
// through which every other subsystem is invoked by name, with uniform
// argument validation, timing, and result wrapping.
package syscall

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kaedeos/kos/internal/klog"
	"github.com/kaedeos/kos/pkg/types"
)

// ParamType is the coarse argument type a ParamSpec checks for.
type ParamType int

const (
	TypeString ParamType = iota
	TypeInt
	TypeFloat
	TypeBool
	TypeMap
	TypeAny
)

// ParamSpec describes one named argument a syscall handler expects,
// reproducing the bind()/apply_defaults() validation the original source
// got for free from signature introspection.
type ParamSpec struct {
	Name     string
	Type     ParamType
	Required bool
	Default  any
}

// Handler is a registered syscall implementation.
type Handler func(ctx context.Context, args map[string]any) (any, error)

type descriptor struct {
	category types.SyscallCategory
	name     string
	params   []ParamSpec
	handler  Handler
}

// Dispatcher is the process-wide syscall registry.
type Dispatcher struct {
	mu    sync.RWMutex
	calls map[string]*descriptor
}

// NewDispatcher constructs an empty dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{calls: make(map[string]*descriptor)}
}

// Register installs handler under "category.name". Re-registering the same
// key replaces the previous handler, matching module re-import semantics in
// the original source.
func (d *Dispatcher) Register(category types.SyscallCategory, name string, params []ParamSpec, handler Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	id := syscallID(category, name)
	d.calls[id] = &descriptor{category: category, name: name, params: params, handler: handler}
}

func syscallID(category types.SyscallCategory, name string) string {
	return fmt.Sprintf("%s.%s", category, name)
}

// Info describes one registered syscall for introspection.
type Info struct {
	ID       string
	Category types.SyscallCategory
	Name     string
	Params   []ParamSpec
}

// List returns every registered syscall.
func (d *Dispatcher) List() []Info {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]Info, 0, len(d.calls))
	for id, desc := range d.calls {
		out = append(out, Info{ID: id, Category: desc.category, Name: desc.name, Params: desc.params})
	}
	return out
}

// Invoke validates args against the registered ParamSpecs, applies
// defaults, executes the handler, and wraps the outcome in a
// types.SyscallResult. It never panics out to the caller: a handler panic
// is recovered and reported as SyscallError INTERNAL_ERROR.
func (d *Dispatcher) Invoke(ctx context.Context, id string, args map[string]any) (result types.SyscallResult) {
	d.mu.RLock()
	desc, ok := d.calls[id]
	d.mu.RUnlock()
	if !ok {
		return types.Fail(types.NotFound, fmt.Sprintf("syscall %q not found", id))
	}

	bound, err := bindArgs(desc.params, args)
	if err != nil {
		return types.Fail(types.InvalidArgument, err.Error())
	}

	klog.Debug("syscall invoked: " + id)

	defer func() {
		if r := recover(); r != nil {
			klog.Error(fmt.Sprintf("syscall %s panicked: %v", id, r))
			result = types.Fail(types.InternalError, fmt.Sprintf("internal error: %v", r))
		}
	}()

	start := time.Now()
	data, err := desc.handler(ctx, bound)
	elapsed := time.Since(start)
	klog.Debug(fmt.Sprintf("syscall %s executed in %s", id, elapsed))

	if err != nil {
		return types.Fail(mapError(err), err.Error())
	}
	return types.Ok(data)
}

func bindArgs(params []ParamSpec, args map[string]any) (map[string]any, error) {
	bound := make(map[string]any, len(params))
	for _, p := range params {
		v, present := args[p.Name]
		if !present {
			if p.Required {
				return nil, fmt.Errorf("missing required argument %q", p.Name)
			}
			bound[p.Name] = p.Default
			continue
		}
		if err := checkType(p, v); err != nil {
			return nil, err
		}
		bound[p.Name] = v
	}
	return bound, nil
}

func checkType(p ParamSpec, v any) error {
	if v == nil {
		return nil
	}
	ok := true
	switch p.Type {
	case TypeString:
		_, ok = v.(string)
	case TypeInt:
		switch v.(type) {
		case int, int32, int64:
		default:
			ok = false
		}
	case TypeFloat:
		switch v.(type) {
		case float32, float64:
		default:
			ok = false
		}
	case TypeBool:
		_, ok = v.(bool)
	case TypeMap:
		_, ok = v.(map[string]string)
	case TypeAny:
		ok = true
	}
	if !ok {
		return fmt.Errorf("argument %q has the wrong type", p.Name)
	}
	return nil
}

// mapError translates a sentinel error from pkg/types into its matching
// SyscallError code; anything unrecognized becomes INTERNAL_ERROR.
func mapError(err error) types.SyscallError {
	switch {
	case errors.Is(err, types.ErrNotFound):
		return types.NotFound
	case errors.Is(err, types.ErrAlreadyExists):
		return types.AlreadyExists
	case errors.Is(err, types.ErrInvalidState):
		return types.InvalidState
	case errors.Is(err, types.ErrInvalidArgument):
		return types.InvalidArgument
	case errors.Is(err, types.ErrResourceBusy):
		return types.ResourceBusy
	case errors.Is(err, types.ErrResourceUnavail):
		return types.ResourceUnavailable
	case errors.Is(err, types.ErrInsufficientRes):
		return types.InsufficientResource
	case errors.Is(err, types.ErrPermissionDenied):
		return types.PermissionDenied
	case errors.Is(err, types.ErrNotImplemented):
		return types.NotImplemented
	case errors.Is(err, types.ErrTimeout):
		return types.Timeout
	case errors.Is(err, types.ErrInterrupted):
		return types.Interrupted
	case errors.Is(err, types.ErrLimitExceeded):
		return types.LimitExceeded
	case errors.Is(err, types.ErrNotSupported):
		return types.NotSupported
	default:
		return types.InternalError
	}
}
