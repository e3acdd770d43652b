package signal

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kaedeos/kos/pkg/types"
)

func alwaysExists(pid int) bool        { return true }
func noopTerminate(pid int, f bool) error { return nil }

func TestRegisterAndDeliver(t *testing.T) {
	table := NewTable(alwaysExists, noopTerminate)

	var mu sync.Mutex
	var got int
	done := make(chan struct{})
	table.RegisterHandler(1, types.SIGUSER, func(signum int, data any) {
		mu.Lock()
		got = signum
		mu.Unlock()
		close(done)
	})

	require.NoError(t, table.Send(1, types.SIGUSER, nil))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("handler never fired")
	}
	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, types.SIGUSER, got)
}

func TestBlockAccumulatesPending(t *testing.T) {
	table := NewTable(alwaysExists, noopTerminate)
	table.Block(1, types.SIGUSER)

	require.NoError(t, table.Send(1, types.SIGUSER, nil))
	require.NoError(t, table.Send(1, types.SIGUSER, nil))

	var count int
	var mu sync.Mutex
	fired := make(chan struct{}, 2)
	table.RegisterHandler(1, types.SIGUSER, func(signum int, data any) {
		mu.Lock()
		count++
		mu.Unlock()
		fired <- struct{}{}
	})

	processed := table.Unblock(1, types.SIGUSER)
	require.Equal(t, 2, processed)

	for i := 0; i < 2; i++ {
		select {
		case <-fired:
		case <-time.After(time.Second):
			t.Fatal("pending handler never fired")
		}
	}
	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, 2, count)
}
