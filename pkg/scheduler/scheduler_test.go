package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kaedeos/kos/internal/store"
	"github.com/kaedeos/kos/pkg/ipc/pipe"
	"github.com/kaedeos/kos/pkg/types"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	root, err := store.New(t.TempDir())
	require.NoError(t, err)
	reg, err := NewRegistry(root, nil, pipe.NewRegistry(root))
	require.NoError(t, err)
	return reg
}

func TestCreateRejectsInvalidSchedule(t *testing.T) {
	reg := newTestRegistry(t)
	_, err := reg.Create(types.Job{Name: "bad", Command: "true", Schedule: "garbage"})
	require.Error(t, err)
}

func TestRunNowExecutesAndRecordsHistory(t *testing.T) {
	reg := newTestRegistry(t)
	_, err := reg.Create(types.Job{Name: "echoer", Command: "echo hello", Enabled: true})
	require.NoError(t, err)

	reg.Run()
	defer reg.Shutdown()

	require.NoError(t, reg.RunNow("echoer"))

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		j, _ := reg.Get("echoer")
		if j.Status == types.JobSucceeded {
			break
		}
		time.Sleep(100 * time.Millisecond)
	}

	j, err := reg.Get("echoer")
	require.NoError(t, err)
	require.Equal(t, types.JobSucceeded, j.Status)
	require.Equal(t, 1, j.SuccessCount)

	history, err := reg.History("echoer", 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.Contains(t, history[0].Stdout, "hello")
}

func TestCancelRunningJob(t *testing.T) {
	reg := newTestRegistry(t)
	_, err := reg.Create(types.Job{Name: "sleeper", Command: "sleep 30", Enabled: true})
	require.NoError(t, err)

	reg.Run()
	defer reg.Shutdown()

	require.NoError(t, reg.RunNow("sleeper"))

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		j, _ := reg.Get("sleeper")
		if j.Status == types.JobRunning {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}

	require.NoError(t, reg.Cancel("sleeper"))

	j, err := reg.Get("sleeper")
	require.NoError(t, err)
	require.Equal(t, types.JobCancelled, j.Status)
}
