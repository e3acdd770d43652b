package syscall

import (
	"context"

	"github.com/kaedeos/kos/pkg/types"
)

func (k *Kernel) registerSchedulerSyscalls(d *Dispatcher) {
	d.Register(types.CategoryScheduler, "create_job", []ParamSpec{
		{Name: "name", Type: TypeString, Required: true},
		{Name: "command", Type: TypeString, Required: true},
		{Name: "schedule", Type: TypeString},
		{Name: "enabled", Type: TypeBool, Default: true},
		{Name: "working_directory", Type: TypeString},
		{Name: "environment", Type: TypeMap},
		{Name: "user", Type: TypeString},
		{Name: "description", Type: TypeString},
	}, func(ctx context.Context, args map[string]any) (any, error) {
		enabled := true
		if v, ok := args["enabled"].(bool); ok {
			enabled = v
		}
		job := types.Job{
			Name:             argString(args, "name"),
			Command:          argString(args, "command"),
			Schedule:         argString(args, "schedule"),
			Enabled:          enabled,
			WorkingDirectory: argString(args, "working_directory"),
			Environment:      argStringMap(args, "environment"),
			User:             argString(args, "user"),
			Description:      argString(args, "description"),
		}
		return k.Jobs.Create(job)
	})

	d.Register(types.CategoryScheduler, "delete_job", []ParamSpec{
		{Name: "name", Type: TypeString, Required: true},
	}, func(ctx context.Context, args map[string]any) (any, error) {
		return true, k.Jobs.Delete(argString(args, "name"))
	})

	d.Register(types.CategoryScheduler, "run_job_now", []ParamSpec{
		{Name: "name", Type: TypeString, Required: true},
	}, func(ctx context.Context, args map[string]any) (any, error) {
		return true, k.Jobs.RunNow(argString(args, "name"))
	})

	d.Register(types.CategoryScheduler, "enable_job", []ParamSpec{
		{Name: "name", Type: TypeString, Required: true},
		{Name: "enabled", Type: TypeBool, Default: true},
	}, func(ctx context.Context, args map[string]any) (any, error) {
		return true, k.Jobs.Enable(argString(args, "name"), argBool(args, "enabled"))
	})

	d.Register(types.CategoryScheduler, "list_jobs", nil,
		func(ctx context.Context, args map[string]any) (any, error) {
			return k.Jobs.List(), nil
		})

	d.Register(types.CategoryScheduler, "get_job_status", []ParamSpec{
		{Name: "name", Type: TypeString, Required: true},
	}, func(ctx context.Context, args map[string]any) (any, error) {
		return k.Jobs.Get(argString(args, "name"))
	})

	d.Register(types.CategoryScheduler, "get_job_history", []ParamSpec{
		{Name: "name", Type: TypeString, Required: true},
		{Name: "limit", Type: TypeInt, Default: 10},
	}, func(ctx context.Context, args map[string]any) (any, error) {
		limit := argInt(args, "limit")
		if limit <= 0 {
			limit = 10
		}
		return k.Jobs.History(argString(args, "name"), limit)
	})

	d.Register(types.CategoryScheduler, "cancel_job", []ParamSpec{
		{Name: "name", Type: TypeString, Required: true},
	}, func(ctx context.Context, args map[string]any) (any, error) {
		return true, k.Jobs.Cancel(argString(args, "name"))
	})
}
