package syscall

import (
	"context"
	"time"

	"github.com/kaedeos/kos/internal/klog"
	"github.com/kaedeos/kos/pkg/types"
)

func (k *Kernel) registerIPCSyscalls(d *Dispatcher) {
	d.Register(types.CategoryIPC, "create_pipe", []ParamSpec{
		{Name: "name", Type: TypeString},
		{Name: "buffer_size", Type: TypeInt, Default: 4096},
	}, func(ctx context.Context, args map[string]any) (any, error) {
		return k.Pipes.Create(argString(args, "name"), uint32(argInt(args, "buffer_size")))
	})

	d.Register(types.CategoryIPC, "close_pipe", []ParamSpec{
		{Name: "pipe_id", Type: TypeString, Required: true},
	}, func(ctx context.Context, args map[string]any) (any, error) {
		return true, k.Pipes.Close(argString(args, "pipe_id"))
	})

	d.Register(types.CategoryIPC, "write_pipe", []ParamSpec{
		{Name: "pipe_id", Type: TypeString, Required: true},
		{Name: "data", Type: TypeAny, Required: true},
		{Name: "nonblocking", Type: TypeBool},
	}, func(ctx context.Context, args map[string]any) (any, error) {
		data, err := asBytes(args["data"])
		if err != nil {
			return nil, err
		}
		return k.Pipes.Write(argString(args, "pipe_id"), data, argBool(args, "nonblocking"))
	})

	d.Register(types.CategoryIPC, "read_pipe", []ParamSpec{
		{Name: "pipe_id", Type: TypeString, Required: true},
		{Name: "size", Type: TypeInt, Required: true},
		{Name: "nonblocking", Type: TypeBool},
	}, func(ctx context.Context, args map[string]any) (any, error) {
		return k.Pipes.Read(argString(args, "pipe_id"), argInt(args, "size"), argBool(args, "nonblocking"))
	})

	d.Register(types.CategoryIPC, "create_message_queue", []ParamSpec{
		{Name: "name", Type: TypeString},
		{Name: "max_messages", Type: TypeInt, Default: 100},
		{Name: "max_message_size", Type: TypeInt, Default: 65536},
	}, func(ctx context.Context, args map[string]any) (any, error) {
		return k.Queues.Create(argString(args, "name"), argInt(args, "max_messages"), argInt(args, "max_message_size"))
	})

	d.Register(types.CategoryIPC, "delete_message_queue", []ParamSpec{
		{Name: "queue_id", Type: TypeString, Required: true},
	}, func(ctx context.Context, args map[string]any) (any, error) {
		return true, k.Queues.Delete(argString(args, "queue_id"))
	})

	d.Register(types.CategoryIPC, "send_message", []ParamSpec{
		{Name: "queue_id", Type: TypeString, Required: true},
		{Name: "message", Type: TypeAny, Required: true},
		{Name: "msg_type", Type: TypeInt, Default: 0},
		{Name: "priority", Type: TypeInt, Default: 0},
		{Name: "nonblocking", Type: TypeBool},
	}, func(ctx context.Context, args map[string]any) (any, error) {
		err := k.Queues.Send(argString(args, "queue_id"), argAny(args, "message"),
			argInt(args, "msg_type"), argInt(args, "priority"), argBool(args, "nonblocking"))
		return true, err
	})

	d.Register(types.CategoryIPC, "receive_message", []ParamSpec{
		{Name: "queue_id", Type: TypeString, Required: true},
		{Name: "msg_type", Type: TypeInt, Default: 0},
		{Name: "nonblocking", Type: TypeBool},
	}, func(ctx context.Context, args map[string]any) (any, error) {
		return k.Queues.Receive(argString(args, "queue_id"), argInt(args, "msg_type"), argBool(args, "nonblocking"))
	})

	d.Register(types.CategoryIPC, "send_signal_to_process", []ParamSpec{
		{Name: "pid", Type: TypeInt, Required: true},
		{Name: "signal", Type: TypeInt, Required: true},
		{Name: "data", Type: TypeAny},
	}, func(ctx context.Context, args map[string]any) (any, error) {
		return true, k.Signals.Send(argInt(args, "pid"), argInt(args, "signal"), argAny(args, "data"))
	})

	d.Register(types.CategoryIPC, "register_signal_handler", []ParamSpec{
		{Name: "pid", Type: TypeInt, Required: true},
		{Name: "signal", Type: TypeInt, Required: true},
		{Name: "enabled", Type: TypeBool, Default: true},
	}, func(ctx context.Context, args map[string]any) (any, error) {
		pid, signum := argInt(args, "pid"), argInt(args, "signal")
		if !argBool(args, "enabled") {
			k.Signals.RegisterHandler(pid, signum, nil)
			return true, nil
		}
		// A syscall argument map cannot carry a callback across the
		// boundary, so the registered handler logs delivery rather than
		// running caller code. It replaces the default action of
		// terminating through the process table; SIGKILL/SIGTERM/SIGINT
		// are still forwarded to the host process first.
		k.Signals.RegisterHandler(pid, signum, func(sig int, data any) {
			klog.WithPID(pid).Info().Int("signal", sig).Msg("signal delivered")
		})
		return true, nil
	})

	d.Register(types.CategoryIPC, "create_shared_memory", []ParamSpec{
		{Name: "name", Type: TypeString},
		{Name: "size", Type: TypeInt, Default: 4096},
		{Name: "permissions", Type: TypeInt, Default: 0o600},
	}, func(ctx context.Context, args map[string]any) (any, error) {
		return k.SharedMem.Create(argString(args, "name"), uint32(argInt(args, "size")),
			uint32(argInt(args, "permissions")), 0)
	})

	d.Register(types.CategoryIPC, "delete_shared_memory", []ParamSpec{
		{Name: "shm_id", Type: TypeString, Required: true},
	}, func(ctx context.Context, args map[string]any) (any, error) {
		return true, k.SharedMem.Delete(argString(args, "shm_id"))
	})

	d.Register(types.CategoryIPC, "write_shared_memory", []ParamSpec{
		{Name: "shm_id", Type: TypeString, Required: true},
		{Name: "data", Type: TypeAny, Required: true},
		{Name: "offset", Type: TypeInt, Default: 0},
	}, func(ctx context.Context, args map[string]any) (any, error) {
		data, err := asBytes(args["data"])
		if err != nil {
			return nil, err
		}
		if err := k.SharedMem.Attach(argString(args, "shm_id")); err != nil {
			return nil, err
		}
		return k.SharedMem.Write(argString(args, "shm_id"), data, int64(argInt(args, "offset")))
	})

	d.Register(types.CategoryIPC, "read_shared_memory", []ParamSpec{
		{Name: "shm_id", Type: TypeString, Required: true},
		{Name: "size", Type: TypeInt, Required: true},
		{Name: "offset", Type: TypeInt, Default: 0},
	}, func(ctx context.Context, args map[string]any) (any, error) {
		if err := k.SharedMem.Attach(argString(args, "shm_id")); err != nil {
			return nil, err
		}
		return k.SharedMem.Read(argString(args, "shm_id"), int64(argInt(args, "offset")), argInt(args, "size"))
	})

	d.Register(types.CategoryIPC, "create_semaphore", []ParamSpec{
		{Name: "name", Type: TypeString},
		{Name: "value", Type: TypeInt, Default: 1},
		{Name: "max_value", Type: TypeInt, Default: 1},
	}, func(ctx context.Context, args map[string]any) (any, error) {
		return k.Semaphores.Create(argString(args, "name"), uint32(argInt(args, "value")), uint32(argInt(args, "max_value")))
	})

	d.Register(types.CategoryIPC, "delete_semaphore", []ParamSpec{
		{Name: "sem_id", Type: TypeString, Required: true},
	}, func(ctx context.Context, args map[string]any) (any, error) {
		return true, k.Semaphores.Delete(argString(args, "sem_id"))
	})

	d.Register(types.CategoryIPC, "acquire_semaphore", []ParamSpec{
		{Name: "sem_id", Type: TypeString, Required: true},
		{Name: "timeout", Type: TypeFloat, Default: 0.0},
	}, func(ctx context.Context, args map[string]any) (any, error) {
		timeout := time.Duration(argFloat(args, "timeout") * float64(time.Second))
		return k.Semaphores.Acquire(argString(args, "sem_id"), false, timeout)
	})

	d.Register(types.CategoryIPC, "release_semaphore", []ParamSpec{
		{Name: "sem_id", Type: TypeString, Required: true},
	}, func(ctx context.Context, args map[string]any) (any, error) {
		return true, k.Semaphores.Release(argString(args, "sem_id"), 1)
	})
}

func asBytes(v any) ([]byte, error) {
	switch d := v.(type) {
	case []byte:
		return d, nil
	case string:
		return []byte(d), nil
	default:
		return nil, errf("unsupported payload type for raw IPC write")
	}
}
