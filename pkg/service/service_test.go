package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kaedeos/kos/internal/store"
	"github.com/kaedeos/kos/pkg/events"
	"github.com/kaedeos/kos/pkg/ipc/pipe"
	"github.com/kaedeos/kos/pkg/process"
	"github.com/kaedeos/kos/pkg/types"
)

func newTestRegistry(t *testing.T) (*Registry, *process.Table) {
	t.Helper()
	root, err := store.New(t.TempDir())
	require.NoError(t, err)
	procs := process.NewTable(nil)
	reg, err := NewRegistry(root, procs, nil, pipe.NewRegistry(root))
	require.NoError(t, err)
	return reg, procs
}

func TestCreateAndStartSimpleService(t *testing.T) {
	reg, _ := newTestRegistry(t)

	_, err := reg.Create(types.Service{
		Name:      "web",
		ExecStart: "sleep 5",
		Type:      types.ServiceSimple,
		Restart:   types.RestartNo,
	})
	require.NoError(t, err)

	require.NoError(t, reg.Start("web"))

	svc, err := reg.Get("web")
	require.NoError(t, err)
	require.Equal(t, types.ServiceRunning, svc.State)
	require.Greater(t, svc.PID, 0)

	require.NoError(t, reg.Stop("web"))
	svc, err = reg.Get("web")
	require.NoError(t, err)
	require.Equal(t, types.ServiceInactive, svc.State)
}

func TestStartResolvesDependencyOrder(t *testing.T) {
	reg, _ := newTestRegistry(t)

	_, err := reg.Create(types.Service{Name: "db", ExecStart: "sleep 5", Type: types.ServiceSimple})
	require.NoError(t, err)
	_, err = reg.Create(types.Service{Name: "api", ExecStart: "sleep 5", Type: types.ServiceSimple, Dependencies: []string{"db"}})
	require.NoError(t, err)

	require.NoError(t, reg.Start("api"))

	db, err := reg.Get("db")
	require.NoError(t, err)
	require.Equal(t, types.ServiceRunning, db.State)

	api, err := reg.Get("api")
	require.NoError(t, err)
	require.Equal(t, types.ServiceRunning, api.State)
}

func TestStartDetectsDependencyCycle(t *testing.T) {
	reg, _ := newTestRegistry(t)

	_, err := reg.Create(types.Service{Name: "a", ExecStart: "sleep 5", Dependencies: []string{"b"}})
	require.NoError(t, err)
	_, err = reg.Create(types.Service{Name: "b", ExecStart: "sleep 5", Dependencies: []string{"a"}})
	require.NoError(t, err)

	err = reg.Start("a")
	require.Error(t, err)
}

func TestConflictingServiceBlocksStart(t *testing.T) {
	reg, _ := newTestRegistry(t)

	_, err := reg.Create(types.Service{Name: "x", ExecStart: "sleep 5", Conflicts: []string{"y"}})
	require.NoError(t, err)
	_, err = reg.Create(types.Service{Name: "y", ExecStart: "sleep 5"})
	require.NoError(t, err)

	require.NoError(t, reg.Start("y"))
	err = reg.Start("x")
	require.Error(t, err)
}

func TestSupervisorRestartsOnFailure(t *testing.T) {
	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	root, err := store.New(t.TempDir())
	require.NoError(t, err)
	procs := process.NewTable(broker)
	reg, err := NewRegistry(root, procs, broker, pipe.NewRegistry(root))
	require.NoError(t, err)

	_, err = reg.Create(types.Service{
		Name: "flaky", ExecStart: "exit 1", Type: types.ServiceSimple, Restart: types.RestartOnFailure,
	})
	require.NoError(t, err)
	require.NoError(t, reg.startOne("flaky"))

	reg.Run()
	defer reg.Shutdown()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		svc, _ := reg.Get("flaky")
		if svc.RestartCount > 0 {
			return
		}
		time.Sleep(100 * time.Millisecond)
	}
	t.Fatal("expected supervisor to restart the failing service")
}
