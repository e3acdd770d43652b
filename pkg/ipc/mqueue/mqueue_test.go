package mqueue

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kaedeos/kos/internal/store"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	root, err := store.New(t.TempDir())
	require.NoError(t, err)
	return NewRegistry(root)
}

// E2: priority queue ordering — receive returns messages in non-increasing
// priority order, FIFO within a priority.
func TestPriorityQueueOrdering(t *testing.T) {
	r := newTestRegistry(t)
	id, err := r.Create("q", 4, 1024)
	require.NoError(t, err)

	require.NoError(t, r.Send(id, map[string]any{"v": "a"}, 0, 1, false))
	require.NoError(t, r.Send(id, map[string]any{"v": "b"}, 0, 5, false))
	require.NoError(t, r.Send(id, map[string]any{"v": "c"}, 0, 5, false))
	require.NoError(t, r.Send(id, map[string]any{"v": "d"}, 0, 3, false))

	var order []string
	for i := 0; i < 4; i++ {
		msg, err := r.Receive(id, 0, false)
		require.NoError(t, err)
		payload := msg.Payload.(map[any]any)
		order = append(order, payload["v"].(string))
	}
	require.Equal(t, []string{"b", "c", "d", "a"}, order)
}

func TestSendFullNonblockingReturnsBusy(t *testing.T) {
	r := newTestRegistry(t)
	id, err := r.Create("q", 1, 1024)
	require.NoError(t, err)

	require.NoError(t, r.Send(id, "x", 0, 0, false))
	err = r.Send(id, "y", 0, 0, true)
	require.Error(t, err)
}

func TestReceiveEmptyNonblockingReturnsUnavailable(t *testing.T) {
	r := newTestRegistry(t)
	id, err := r.Create("q", 4, 1024)
	require.NoError(t, err)

	_, err = r.Receive(id, 0, true)
	require.Error(t, err)
}

func TestTypeFilter(t *testing.T) {
	r := newTestRegistry(t)
	id, err := r.Create("q", 4, 1024)
	require.NoError(t, err)

	require.NoError(t, r.Send(id, "a", 1, 0, false))
	require.NoError(t, r.Send(id, "b", 2, 0, false))

	msg, err := r.Receive(id, 2, false)
	require.NoError(t, err)
	require.Equal(t, "b", msg.Payload)
}
