package syscall

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kaedeos/kos/pkg/types"
)

func TestInvokeUnknownSyscallReturnsNotFound(t *testing.T) {
	d := NewDispatcher()
	result := d.Invoke(context.Background(), "process.does_not_exist", nil)
	require.False(t, result.Success)
	require.Equal(t, types.NotFound, result.ErrorCode)
}

func TestInvokeMissingRequiredArgument(t *testing.T) {
	d := NewDispatcher()
	d.Register(types.CategoryProcess, "echo", []ParamSpec{
		{Name: "value", Type: TypeString, Required: true},
	}, func(ctx context.Context, args map[string]any) (any, error) {
		return args["value"], nil
	})

	result := d.Invoke(context.Background(), "process.echo", map[string]any{})
	require.False(t, result.Success)
	require.Equal(t, types.InvalidArgument, result.ErrorCode)
}

func TestInvokeAppliesDefaultsAndSucceeds(t *testing.T) {
	d := NewDispatcher()
	d.Register(types.CategoryProcess, "greet", []ParamSpec{
		{Name: "name", Type: TypeString, Default: "world"},
	}, func(ctx context.Context, args map[string]any) (any, error) {
		return "hello " + args["name"].(string), nil
	})

	result := d.Invoke(context.Background(), "process.greet", nil)
	require.True(t, result.Success)
	require.Equal(t, "hello world", result.Data)
}

func TestInvokeMapsSentinelErrorToSyscallError(t *testing.T) {
	d := NewDispatcher()
	d.Register(types.CategoryProcess, "boom", nil, func(ctx context.Context, args map[string]any) (any, error) {
		return nil, types.ErrResourceBusy
	})

	result := d.Invoke(context.Background(), "process.boom", nil)
	require.False(t, result.Success)
	require.Equal(t, types.ResourceBusy, result.ErrorCode)
}

func TestInvokeRecoversFromPanic(t *testing.T) {
	d := NewDispatcher()
	d.Register(types.CategoryProcess, "panics", nil, func(ctx context.Context, args map[string]any) (any, error) {
		panic("boom")
	})

	result := d.Invoke(context.Background(), "process.panics", nil)
	require.False(t, result.Success)
	require.Equal(t, types.InternalError, result.ErrorCode)
}
