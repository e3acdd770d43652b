package pipe

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

// E1: pipe echo — write/read round-trips bytes, and a write larger than the
// free space (12 bytes into 9 free) stores what fits and returns a nonzero
// count while a concurrent reader drains the pipe.
func TestPipeEcho(t *testing.T) {
	r := newTestRegistry(t)
	id, err := r.Create("echo", 16)
	require.NoError(t, err)

	n, err := r.Write(id, []byte("hello"), false)
	require.NoError(t, err)
	require.Equal(t, 5, n)

	got, err := r.Read(id, 16, false)
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), got)

	n, err = r.Write(id, []byte("world!"), false)
	require.NoError(t, err)
	require.Equal(t, 6, n)

	done := make(chan int, 1)
	go func() {
		n, err := r.Write(id, []byte("XXXXXXXXXXXX"), false)
		require.NoError(t, err)
		done <- n
	}()

	time.Sleep(50 * time.Millisecond)
	first, err := r.Read(id, 5, false)
	require.NoError(t, err)
	require.Equal(t, 5, len(first))

	select {
	case n := <-done:
		require.Greater(t, n, 0)
	case <-time.After(2 * time.Second):
		t.Fatal("writer never unblocked")
	}
}

func TestPipeNonblockingEmptyRead(t *testing.T) {
	r := newTestRegistry(t)
	id, err := r.Create("p", 8)
	require.NoError(t, err)

	got, err := r.Read(id, 4, true)
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestPipeZeroLengthWrite(t *testing.T) {
	r := newTestRegistry(t)
	id, err := r.Create("p", 8)
	require.NoError(t, err)

	n, err := r.Write(id, nil, false)
	require.NoError(t, err)
	require.Equal(t, 0, n)
}

func TestPipeCloseUnblocksReader(t *testing.T) {
	r := newTestRegistry(t)
	id, err := r.Create("p", 8)
	require.NoError(t, err)

	done := make(chan []byte, 1)
	go func() {
		got, _ := r.Read(id, 4, false)
		done <- got
	}()

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, r.Close(id))

	select {
	case got := <-done:
		require.Empty(t, got)
	case <-time.After(2 * time.Second):
		t.Fatal("reader never unblocked on close")
	}
}
