package semaphore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kaedeos/kos/internal/store"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	root, err := store.New(t.TempDir())
	require.NoError(t, err)
	return NewRegistry(root)
}

// E3: semaphore fairness/timeout.
func TestSemaphoreTimeoutThenRelease(t *testing.T) {
	r := newTestRegistry(t)
	id, err := r.Create("s", 1, 1)
	require.NoError(t, err)

	ok, err := r.Acquire(id, false, 0)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = r.Acquire(id, false, 200*time.Millisecond)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, r.Release(id, 1))

	ok, err = r.Acquire(id, false, time.Second)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestSemaphoreSaturatesAtMax(t *testing.T) {
	r := newTestRegistry(t)
	id, err := r.Create("s", 0, 2)
	require.NoError(t, err)

	require.NoError(t, r.Release(id, 5))
	v, err := r.Value(id)
	require.NoError(t, err)
	require.Equal(t, uint32(2), v)
}

func TestSemaphoreNonblockingFailsImmediately(t *testing.T) {
	r := newTestRegistry(t)
	id, err := r.Create("s", 0, 1)
	require.NoError(t, err)

	ok, err := r.Acquire(id, true, 0)
	require.NoError(t, err)
	require.False(t, ok)
}
