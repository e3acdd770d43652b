package syscall

import (
	"context"

	"github.com/kaedeos/kos/pkg/types"
)

func (k *Kernel) registerServiceSyscalls(d *Dispatcher) {
	d.Register(types.CategoryService, "create_service", []ParamSpec{
		{Name: "name", Type: TypeString, Required: true},
		{Name: "exec_start", Type: TypeString, Required: true},
		{Name: "type", Type: TypeString},
		{Name: "restart_policy", Type: TypeString},
		{Name: "working_directory", Type: TypeString},
		{Name: "environment", Type: TypeMap},
		{Name: "dependencies", Type: TypeAny},
		{Name: "conflicts", Type: TypeAny},
	}, func(ctx context.Context, args map[string]any) (any, error) {
		svc := types.Service{
			Name:             argString(args, "name"),
			ExecStart:        argString(args, "exec_start"),
			Type:             types.ServiceType(argString(args, "type")),
			Restart:          types.RestartPolicy(argString(args, "restart_policy")),
			WorkingDirectory: argString(args, "working_directory"),
			Environment:      argStringMap(args, "environment"),
			Dependencies:     argStringSlice(args, "dependencies"),
			Conflicts:        argStringSlice(args, "conflicts"),
		}
		return k.Services.Create(svc)
	})

	d.Register(types.CategoryService, "start_service", []ParamSpec{
		{Name: "name", Type: TypeString, Required: true},
	}, func(ctx context.Context, args map[string]any) (any, error) {
		return true, k.Services.Start(argString(args, "name"))
	})

	d.Register(types.CategoryService, "stop_service", []ParamSpec{
		{Name: "name", Type: TypeString, Required: true},
	}, func(ctx context.Context, args map[string]any) (any, error) {
		return true, k.Services.Stop(argString(args, "name"))
	})

	d.Register(types.CategoryService, "restart_service", []ParamSpec{
		{Name: "name", Type: TypeString, Required: true},
	}, func(ctx context.Context, args map[string]any) (any, error) {
		return true, k.Services.Restart(argString(args, "name"))
	})

	d.Register(types.CategoryService, "get_service_status", []ParamSpec{
		{Name: "name", Type: TypeString, Required: true},
	}, func(ctx context.Context, args map[string]any) (any, error) {
		return k.Services.Get(argString(args, "name"))
	})

	d.Register(types.CategoryService, "list_services", nil,
		func(ctx context.Context, args map[string]any) (any, error) {
			return k.Services.List(), nil
		})

	d.Register(types.CategoryService, "delete_service", []ParamSpec{
		{Name: "name", Type: TypeString, Required: true},
	}, func(ctx context.Context, args map[string]any) (any, error) {
		return true, k.Services.Delete(argString(args, "name"))
	})

	d.Register(types.CategoryService, "notify_watchdog", []ParamSpec{
		{Name: "name", Type: TypeString, Required: true},
	}, func(ctx context.Context, args map[string]any) (any, error) {
		return true, k.Services.NotifyWatchdog(argString(args, "name"))
	})
}
