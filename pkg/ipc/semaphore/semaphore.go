// Package semaphore implements the KOS counting semaphore primitive backed
// by a small fixed-layout file, matching SPEC_FULL.md §6.
package semaphore

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kaedeos/kos/internal/lockfile"
	"github.com/kaedeos/kos/internal/store"
	"github.com/kaedeos/kos/pkg/types"
)

const (
	offMagic    = 0
	offVersion  = 4
	offValue    = 8
	offMaxValue = 12
	offWaiters  = 16
	offLastOp   = 20
	fileBytes   = 28
)

type header struct {
	value, maxValue, waiters uint32
	lastOp                   float64
}

func writeHeader(f *os.File, h header) error {
	buf := make([]byte, fileBytes)
	copy(buf[offMagic:], types.SemMagic)
	binary.LittleEndian.PutUint32(buf[offVersion:], types.FormatVer)
	binary.LittleEndian.PutUint32(buf[offValue:], h.value)
	binary.LittleEndian.PutUint32(buf[offMaxValue:], h.maxValue)
	binary.LittleEndian.PutUint32(buf[offWaiters:], h.waiters)
	binary.LittleEndian.PutUint64(buf[offLastOp:], math.Float64bits(h.lastOp))
	_, err := f.WriteAt(buf, 0)
	return err
}

func readHeader(f *os.File) (header, error) {
	buf := make([]byte, fileBytes)
	if _, err := f.ReadAt(buf, 0); err != nil {
		return header{}, err
	}
	if string(buf[offMagic:offMagic+4]) != types.SemMagic {
		return header{}, fmt.Errorf("semaphore: bad magic")
	}
	return header{
		value:    binary.LittleEndian.Uint32(buf[offValue:]),
		maxValue: binary.LittleEndian.Uint32(buf[offMaxValue:]),
		waiters:  binary.LittleEndian.Uint32(buf[offWaiters:]),
		lastOp:   math.Float64frombits(binary.LittleEndian.Uint64(buf[offLastOp:])),
	}, nil
}

type sem struct {
	id   string
	name string
	path string
	data *os.File
	lock *lockfile.Lock

	mu        sync.Mutex
	available *sync.Cond
}

// Registry owns every open semaphore under one storage root.
type Registry struct {
	root *store.Root

	mu   sync.Mutex
	sems map[string]*sem
}

func NewRegistry(root *store.Root) *Registry {
	return &Registry{root: root, sems: make(map[string]*sem)}
}

// Create allocates a new semaphore with an initial and maximum value.
func (r *Registry) Create(name string, value, maxValue uint32) (string, error) {
	if value > maxValue {
		return "", fmt.Errorf("semaphore: %w: value exceeds max_value", types.ErrInvalidArgument)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	id := uuid.NewString()
	path := filepath.Join(r.root.SemaphoreDir(), id+".sem")
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("semaphore: create: %w", err)
	}
	if err := writeHeader(f, header{value: value, maxValue: maxValue, lastOp: nowSeconds()}); err != nil {
		f.Close()
		return "", err
	}

	lockPath := filepath.Join(r.root.SemaphoreDir(), id+".lock")
	s := &sem{id: id, name: name, path: path, data: f, lock: lockfile.New(lockPath)}
	s.available = sync.NewCond(&s.mu)
	r.sems[id] = s
	return id, nil
}

// Delete removes a semaphore's backing files.
func (r *Registry) Delete(id string) error {
	r.mu.Lock()
	s, ok := r.sems[id]
	if ok {
		delete(r.sems, id)
	}
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("semaphore: %w: %s", types.ErrNotFound, id)
	}
	s.data.Close()
	os.Remove(s.path)
	os.Remove(filepath.Join(filepath.Dir(s.path), s.id+".lock"))
	return nil
}

func (r *Registry) get(id string) (*sem, error) {
	r.mu.Lock()
	s, ok := r.sems[id]
	r.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("semaphore: %w: %s", types.ErrNotFound, id)
	}
	return s, nil
}

func nowSeconds() float64 { return float64(time.Now().UnixNano()) / 1e9 }

// Acquire decrements the semaphore's value, blocking up to timeout (0 means
// block forever, when nonblocking is false) for a unit to become available.
func (r *Registry) Acquire(id string, nonblocking bool, timeout time.Duration) (bool, error) {
	s, err := r.get(id)
	if err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	deadline := time.Now().Add(timeout)
	hasDeadline := timeout > 0

	for {
		if err := s.lock.Lock(); err != nil {
			return false, fmt.Errorf("semaphore: lock: %w", err)
		}
		hdr, err := readHeader(s.data)
		if err != nil {
			s.lock.Unlock()
			return false, fmt.Errorf("semaphore: %w", types.ErrInvalidState)
		}
		if hdr.value > 0 {
			hdr.value--
			hdr.lastOp = nowSeconds()
			werr := writeHeader(s.data, hdr)
			s.lock.Unlock()
			return werr == nil, werr
		}
		s.lock.Unlock()

		if nonblocking {
			return false, nil
		}

		wait := 1 * time.Second
		if hasDeadline {
			remaining := time.Until(deadline)
			if remaining <= 0 {
				return false, nil
			}
			if remaining < wait {
				wait = remaining
			}
		}
		waitTimeout(s.available, &s.mu, wait)
	}
}

// Release increments the semaphore's value by count, saturating at
// max_value; excess releases are silently absorbed.
func (r *Registry) Release(id string, count uint32) error {
	s, err := r.get(id)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.lock.Lock(); err != nil {
		return fmt.Errorf("semaphore: lock: %w", err)
	}
	hdr, err := readHeader(s.data)
	if err != nil {
		s.lock.Unlock()
		return fmt.Errorf("semaphore: %w", types.ErrInvalidState)
	}
	hdr.value += count
	if hdr.value > hdr.maxValue {
		hdr.value = hdr.maxValue
	}
	hdr.lastOp = nowSeconds()
	err = writeHeader(s.data, hdr)
	s.lock.Unlock()
	if err != nil {
		return err
	}
	s.available.Broadcast()
	return nil
}

// Value returns the semaphore's current value.
func (r *Registry) Value(id string) (uint32, error) {
	s, err := r.get(id)
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	hdr, err := readHeader(s.data)
	if err != nil {
		return 0, fmt.Errorf("semaphore: %w", types.ErrInvalidState)
	}
	return hdr.value, nil
}

// Info returns the current externally visible snapshot.
func (r *Registry) Info(id string) (types.SemaphoreInfo, error) {
	s, err := r.get(id)
	if err != nil {
		return types.SemaphoreInfo{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	hdr, err := readHeader(s.data)
	if err != nil {
		return types.SemaphoreInfo{}, fmt.Errorf("semaphore: %w", types.ErrInvalidState)
	}
	return types.SemaphoreInfo{ID: s.id, Name: s.name, Value: hdr.value, MaxValue: hdr.maxValue, Waiters: hdr.waiters}, nil
}

func waitTimeout(c *sync.Cond, l sync.Locker, d time.Duration) {
	timer := time.AfterFunc(d, func() {
		l.Lock()
		c.Broadcast()
		l.Unlock()
	})
	c.Wait()
	timer.Stop()
}
