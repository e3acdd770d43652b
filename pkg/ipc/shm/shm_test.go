package shm

import (
	"sync"
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

func TestReadWriteRoundTrip(t *testing.T) {
	r := newTestRegistry(t)
	id, err := r.Create("seg", 64, 0o644, 1)
	require.NoError(t, err)

	n, err := r.Write(id, []byte("hello"), 0)
	require.NoError(t, err)
	require.Equal(t, 5, n)

	got, err := r.Read(id, 0, 5)
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), got)
}

func TestWriteOutOfBounds(t *testing.T) {
	r := newTestRegistry(t)
	id, err := r.Create("seg", 8, 0o644, 1)
	require.NoError(t, err)

	_, err = r.Write(id, []byte("too long for this segment"), 0)
	require.Error(t, err)
}

// E4-adjacent: exclusive lock serializes concurrent writers so a reader
// holding it observes a whole write, never a mixture.
func TestExclusiveLockSerializesWrites(t *testing.T) {
	r := newTestRegistry(t)
	id, err := r.Create("seg", 8, 0o644, 1)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			require.NoError(t, r.Lock(id, false))
			_, err := r.Write(id, []byte("AAAAAAAA"), 0)
			require.NoError(t, err)
			require.NoError(t, r.Unlock(id))
		}()
	}
	wg.Wait()

	got, err := r.Read(id, 0, 8)
	require.NoError(t, err)
	require.Equal(t, []byte("AAAAAAAA"), got)
}

func TestAttachDetachUserCount(t *testing.T) {
	r := newTestRegistry(t)
	id, err := r.Create("seg", 8, 0o644, 1)
	require.NoError(t, err)

	require.NoError(t, r.Attach(id))
	info, err := r.Info(id)
	require.NoError(t, err)
	require.Equal(t, uint32(1), info.UserCount)

	require.NoError(t, r.Detach(id, false))
	info, err = r.Info(id)
	require.NoError(t, err)
	require.Equal(t, uint32(0), info.UserCount)
}
