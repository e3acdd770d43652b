package process

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kaedeos/kos/pkg/events"
	"github.com/kaedeos/kos/pkg/types"
)

func TestSpawnAndWait(t *testing.T) {
	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	table := NewTable(broker)
	pid, err := table.Spawn("echo-job", "exit 0", ".", nil, 0)
	require.NoError(t, err)
	require.Greater(t, pid, 0)

	exitCode, exited, err := table.Wait(pid, 2*time.Second)
	require.NoError(t, err)
	require.True(t, exited)
	require.Equal(t, 0, exitCode)

	info, err := table.Info(pid)
	require.NoError(t, err)
	require.Equal(t, types.ProcessTerminated, info.State)
}

func TestExistsBecomesFalseAfterExit(t *testing.T) {
	table := NewTable(nil)
	pid, err := table.Spawn("quick", "exit 1", ".", nil, 0)
	require.NoError(t, err)

	_, _, err = table.Wait(pid, 2*time.Second)
	require.NoError(t, err)
	require.False(t, table.Exists(pid))
}

func TestTerminateForce(t *testing.T) {
	table := NewTable(nil)
	pid, err := table.Spawn("sleeper", "sleep 30", ".", nil, 0)
	require.NoError(t, err)

	require.NoError(t, table.Terminate(pid, true))

	_, exited, err := table.Wait(pid, 2*time.Second)
	require.NoError(t, err)
	require.True(t, exited)
}
