package syscall

import (
	"context"
	"time"

	"github.com/kaedeos/kos/pkg/types"
)

func (k *Kernel) registerProcessSyscalls(d *Dispatcher) {
	d.Register(types.CategoryProcess, "create_process", []ParamSpec{
		{Name: "name", Type: TypeString, Required: true},
		{Name: "command", Type: TypeString, Required: true},
		{Name: "working_directory", Type: TypeString},
		{Name: "environment", Type: TypeMap},
		{Name: "priority", Type: TypeInt},
	}, func(ctx context.Context, args map[string]any) (any, error) {
		env := argStringMap(args, "environment")
		var envSlice []string
		for key, val := range env {
			envSlice = append(envSlice, key+"="+val)
		}
		pid, err := k.Processes.Spawn(argString(args, "name"), argString(args, "command"),
			argString(args, "working_directory"), envSlice, argInt(args, "priority"))
		if err != nil {
			return nil, err
		}
		return pid, nil
	})

	d.Register(types.CategoryProcess, "terminate_process", []ParamSpec{
		{Name: "pid", Type: TypeInt, Required: true},
		{Name: "force", Type: TypeBool},
	}, func(ctx context.Context, args map[string]any) (any, error) {
		return true, k.Processes.Terminate(argInt(args, "pid"), argBool(args, "force"))
	})

	d.Register(types.CategoryProcess, "get_process_info", []ParamSpec{
		{Name: "pid", Type: TypeInt, Required: true},
	}, func(ctx context.Context, args map[string]any) (any, error) {
		return k.Processes.Info(argInt(args, "pid"))
	})

	d.Register(types.CategoryProcess, "get_all_processes", nil,
		func(ctx context.Context, args map[string]any) (any, error) {
			return k.Processes.List(), nil
		})

	d.Register(types.CategoryProcess, "set_process_priority", []ParamSpec{
		{Name: "pid", Type: TypeInt, Required: true},
		{Name: "priority", Type: TypeInt, Required: true},
	}, func(ctx context.Context, args map[string]any) (any, error) {
		return true, k.Processes.SetPriority(argInt(args, "pid"), argInt(args, "priority"))
	})

	d.Register(types.CategoryProcess, "wait_process", []ParamSpec{
		{Name: "pid", Type: TypeInt, Required: true},
		{Name: "timeout", Type: TypeFloat, Default: 0.0},
	}, func(ctx context.Context, args map[string]any) (any, error) {
		timeout := time.Duration(argFloat(args, "timeout") * float64(time.Second))
		if timeout <= 0 {
			timeout = 24 * time.Hour
		}
		exitCode, exited, err := k.Processes.Wait(argInt(args, "pid"), timeout)
		if err != nil {
			return nil, err
		}
		return map[string]any{"exited": exited, "exit_code": exitCode}, nil
	})

	d.Register(types.CategoryProcess, "suspend_process", []ParamSpec{
		{Name: "pid", Type: TypeInt, Required: true},
	}, func(ctx context.Context, args map[string]any) (any, error) {
		return true, k.Processes.Suspend(argInt(args, "pid"))
	})

	d.Register(types.CategoryProcess, "resume_process", []ParamSpec{
		{Name: "pid", Type: TypeInt, Required: true},
	}, func(ctx context.Context, args map[string]any) (any, error) {
		return true, k.Processes.Resume(argInt(args, "pid"))
	})

	d.Register(types.CategoryProcess, "get_process_children", []ParamSpec{
		{Name: "pid", Type: TypeInt, Required: true},
	}, func(ctx context.Context, args map[string]any) (any, error) {
		return k.Processes.Children(argInt(args, "pid")), nil
	})

	d.Register(types.CategoryProcess, "send_signal", []ParamSpec{
		{Name: "pid", Type: TypeInt, Required: true},
		{Name: "signal", Type: TypeInt, Required: true},
	}, func(ctx context.Context, args map[string]any) (any, error) {
		return true, k.Signals.Send(argInt(args, "pid"), argInt(args, "signal"), nil)
	})
}
