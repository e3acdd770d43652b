package syscall

import (
	"context"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"github.com/kaedeos/kos/pkg/types"
)

var bootTime = time.Now()

func (k *Kernel) registerSystemSyscalls(d *Dispatcher) {
	d.Register(types.CategorySystem, "get_system_info", nil,
		func(ctx context.Context, args map[string]any) (any, error) {
			return map[string]any{
				"os":        runtime.GOOS,
				"arch":      runtime.GOARCH,
				"num_cpu":   runtime.NumCPU(),
				"go_routines": runtime.NumGoroutine(),
			}, nil
		})

	d.Register(types.CategorySystem, "get_environment_variable", []ParamSpec{
		{Name: "name", Type: TypeString, Required: true},
	}, func(ctx context.Context, args map[string]any) (any, error) {
		return os.Getenv(argString(args, "name")), nil
	})

	d.Register(types.CategorySystem, "set_environment_variable", []ParamSpec{
		{Name: "name", Type: TypeString, Required: true},
		{Name: "value", Type: TypeString, Required: true},
	}, func(ctx context.Context, args map[string]any) (any, error) {
		return true, os.Setenv(argString(args, "name"), argString(args, "value"))
	})

	d.Register(types.CategorySystem, "get_all_environment_variables", nil,
		func(ctx context.Context, args map[string]any) (any, error) {
			out := make(map[string]string)
			for _, kv := range os.Environ() {
				for i := 0; i < len(kv); i++ {
					if kv[i] == '=' {
						out[kv[:i]] = kv[i+1:]
						break
					}
				}
			}
			return out, nil
		})

	d.Register(types.CategorySystem, "get_current_time", nil,
		func(ctx context.Context, args map[string]any) (any, error) {
			return float64(time.Now().UnixNano()) / 1e9, nil
		})

	d.Register(types.CategorySystem, "sleep", []ParamSpec{
		{Name: "seconds", Type: TypeFloat, Required: true},
	}, func(ctx context.Context, args map[string]any) (any, error) {
		duration := time.Duration(argFloat(args, "seconds") * float64(time.Second))
		select {
		case <-time.After(duration):
			return true, nil
		case <-ctx.Done():
			return nil, types.ErrInterrupted
		}
	})

	d.Register(types.CategorySystem, "get_system_uptime", nil,
		func(ctx context.Context, args map[string]any) (any, error) {
			return time.Since(bootTime).Seconds(), nil
		})

	d.Register(types.CategorySystem, "get_system_load", nil,
		func(ctx context.Context, args map[string]any) (any, error) {
			return readLoadAverage()
		})

	d.Register(types.CategorySystem, "shutdown_system", nil,
		func(ctx context.Context, args map[string]any) (any, error) {
			for _, svc := range k.Services.List() {
				if svc.State == types.ServiceRunning || svc.State == types.ServiceStarting {
					_ = k.Services.Stop(svc.Name)
				}
			}
			for _, job := range k.Jobs.List() {
				if job.Enabled {
					_ = k.Jobs.Enable(job.Name, false)
				}
			}
			return true, nil
		})

	d.Register(types.CategorySystem, "get_hostname", nil,
		func(ctx context.Context, args map[string]any) (any, error) {
			return os.Hostname()
		})

	d.Register(types.CategorySystem, "set_hostname", []ParamSpec{
		{Name: "hostname", Type: TypeString, Required: true},
	}, func(ctx context.Context, args map[string]any) (any, error) {
		return true, unix.Sethostname([]byte(argString(args, "hostname")))
	})
}

// readLoadAverage parses /proc/loadavg (Linux) into the 1/5/15-minute
// load averages; unsupported platforms report zeros rather than failing
// the syscall.
func readLoadAverage() (map[string]any, error) {
	data, err := os.ReadFile("/proc/loadavg")
	if err != nil {
		return map[string]any{"load_1": 0.0, "load_5": 0.0, "load_15": 0.0}, nil
	}
	fields := strings.Fields(string(data))
	if len(fields) < 3 {
		return map[string]any{"load_1": 0.0, "load_5": 0.0, "load_15": 0.0}, nil
	}
	load1, _ := strconv.ParseFloat(fields[0], 64)
	load5, _ := strconv.ParseFloat(fields[1], 64)
	load15, _ := strconv.ParseFloat(fields[2], 64)
	return map[string]any{"load_1": load1, "load_5": load5, "load_15": load15}, nil
}
