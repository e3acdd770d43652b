// Package lockfile abstracts the cross-process advisory lock primitive used
// by every IPC entity's critical sections. flock semantics differ across
// hosts; this is the single seam a portable implementation swaps out.
// Concurrent writers on different hosts sharing the same storage root over a
// network filesystem are not supported — locking is single-host only.
package lockfile

import (
	"time"

	"github.com/gofrs/flock"
)

// Lock is an exclusive advisory lock on a single file.
type Lock struct {
	fl *flock.Flock
}

// New returns a Lock backed by the file at path, creating it if necessary.
func New(path string) *Lock {
	return &Lock{fl: flock.New(path)}
}

// Lock blocks until the exclusive lock is acquired.
func (l *Lock) Lock() error {
	return l.fl.Lock()
}

// TryLock attempts to acquire the lock without blocking.
func (l *Lock) TryLock() (bool, error) {
	return l.fl.TryLock()
}

// LockWithRetry polls TryLock at the given interval until acquired or the
// deadline passes.
func (l *Lock) LockWithRetry(interval time.Duration, deadline time.Time) (bool, error) {
	for {
		ok, err := l.fl.TryLock()
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
		if time.Now().After(deadline) {
			return false, nil
		}
		time.Sleep(interval)
	}
}

// Unlock releases the lock.
func (l *Lock) Unlock() error {
	return l.fl.Unlock()
}
