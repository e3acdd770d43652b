// Package shm implements the KOS shared-memory primitive: a typed byte
// region with a 128-byte header tracking attach count, creator, access
// time, and an explicit exclusive lock layered atop the per-op advisory
// lock, matching SPEC_FULL.md §6.
package shm

import (
	"encoding/binary"
	"fmt"
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
	offMagic       = 0
	offVersion     = 4
	offFlags       = 8
	offSize        = 12
	offUserCount   = 16
	offCreatorPID  = 20
	offAtimeS      = 24
	offAtimeUs     = 28
	offPermissions = 32
)

type header struct {
	flags       uint32
	size        uint32
	userCount   uint32
	creatorPID  uint32
	permissions uint32
}

func writeHeader(f *os.File, h header) error {
	buf := make([]byte, types.HeaderBytes)
	copy(buf[offMagic:], types.ShmMagic)
	now := time.Now()
	binary.LittleEndian.PutUint32(buf[offVersion:], types.FormatVer)
	binary.LittleEndian.PutUint32(buf[offFlags:], h.flags)
	binary.LittleEndian.PutUint32(buf[offSize:], h.size)
	binary.LittleEndian.PutUint32(buf[offUserCount:], h.userCount)
	binary.LittleEndian.PutUint32(buf[offCreatorPID:], h.creatorPID)
	binary.LittleEndian.PutUint32(buf[offAtimeS:], uint32(now.Unix()))
	binary.LittleEndian.PutUint32(buf[offAtimeUs:], uint32(now.Nanosecond()/1000))
	binary.LittleEndian.PutUint32(buf[offPermissions:], h.permissions)
	_, err := f.WriteAt(buf, 0)
	return err
}

func readHeader(f *os.File) (header, error) {
	buf := make([]byte, types.HeaderBytes)
	if _, err := f.ReadAt(buf, 0); err != nil {
		return header{}, err
	}
	if string(buf[offMagic:offMagic+4]) != types.ShmMagic {
		return header{}, fmt.Errorf("shm: bad magic")
	}
	return header{
		flags:       binary.LittleEndian.Uint32(buf[offFlags:]),
		size:        binary.LittleEndian.Uint32(buf[offSize:]),
		userCount:   binary.LittleEndian.Uint32(buf[offUserCount:]),
		creatorPID:  binary.LittleEndian.Uint32(buf[offCreatorPID:]),
		permissions: binary.LittleEndian.Uint32(buf[offPermissions:]),
	}, nil
}

type segment struct {
	id   string
	name string
	path string
	data *os.File
	lock *lockfile.Lock
	mu   sync.Mutex

	exclusiveHolders chan struct{}
}

// Registry owns every attached shared-memory segment under one storage
// root.
type Registry struct {
	root *store.Root

	mu       sync.Mutex
	segments map[string]*segment
}

func NewRegistry(root *store.Root) *Registry {
	return &Registry{root: root, segments: make(map[string]*segment)}
}

// Create allocates a new segment of the given size, returning its ID.
func (r *Registry) Create(name string, size uint32, permissions uint32, creatorPID int) (string, error) {
	if size == 0 {
		return "", fmt.Errorf("shm: %w", types.ErrInvalidArgument)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	id := uuid.NewString()
	path := filepath.Join(r.root.SharedMemoryDir(), id+".shm")
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("shm: create: %w", err)
	}
	if err := f.Truncate(int64(types.HeaderBytes) + int64(size)); err != nil {
		f.Close()
		return "", err
	}
	if err := writeHeader(f, header{size: size, permissions: permissions, creatorPID: uint32(creatorPID)}); err != nil {
		f.Close()
		return "", err
	}

	lockPath := filepath.Join(r.root.SharedMemoryDir(), id+".lock")
	seg := &segment{id: id, name: name, path: path, data: f, lock: lockfile.New(lockPath), exclusiveHolders: make(chan struct{}, 1)}
	r.segments[id] = seg
	return id, nil
}

// Attach increments the user count for a segment, loading it from disk into
// the registry if it isn't already open.
func (r *Registry) Attach(id string) error {
	r.mu.Lock()
	seg, ok := r.segments[id]
	if !ok {
		path := filepath.Join(r.root.SharedMemoryDir(), id+".shm")
		if !store.Exists(path) {
			r.mu.Unlock()
			return fmt.Errorf("shm: %w: %s", types.ErrNotFound, id)
		}
		f, err := os.OpenFile(path, os.O_RDWR, 0o644)
		if err != nil {
			r.mu.Unlock()
			return fmt.Errorf("shm: open: %w", err)
		}
		lockPath := filepath.Join(r.root.SharedMemoryDir(), id+".lock")
		seg = &segment{id: id, path: path, data: f, lock: lockfile.New(lockPath), exclusiveHolders: make(chan struct{}, 1)}
		r.segments[id] = seg
	}
	r.mu.Unlock()

	seg.mu.Lock()
	defer seg.mu.Unlock()
	if err := seg.lock.Lock(); err != nil {
		return fmt.Errorf("shm: lock: %w", err)
	}
	defer seg.lock.Unlock()
	hdr, err := readHeader(seg.data)
	if err != nil {
		return fmt.Errorf("shm: %w", types.ErrInvalidState)
	}
	hdr.userCount++
	return writeHeader(seg.data, hdr)
}

// Detach decrements the user count; when it reaches zero and delete is
// requested the backing files are removed.
func (r *Registry) Detach(id string, deleteIfUnused bool) error {
	r.mu.Lock()
	seg, ok := r.segments[id]
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("shm: %w: %s", types.ErrNotFound, id)
	}

	seg.mu.Lock()
	if err := seg.lock.Lock(); err != nil {
		seg.mu.Unlock()
		return fmt.Errorf("shm: lock: %w", err)
	}
	hdr, err := readHeader(seg.data)
	if err != nil {
		seg.lock.Unlock()
		seg.mu.Unlock()
		return fmt.Errorf("shm: %w", types.ErrInvalidState)
	}
	if hdr.userCount > 0 {
		hdr.userCount--
	}
	shouldDelete := deleteIfUnused && hdr.userCount == 0
	writeErr := writeHeader(seg.data, hdr)
	seg.lock.Unlock()
	seg.mu.Unlock()
	if writeErr != nil {
		return writeErr
	}

	if shouldDelete {
		return r.Delete(id)
	}
	return nil
}

// Delete removes a segment's backing files and drops its in-memory handle.
func (r *Registry) Delete(id string) error {
	r.mu.Lock()
	seg, ok := r.segments[id]
	if ok {
		delete(r.segments, id)
	}
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("shm: %w: %s", types.ErrNotFound, id)
	}
	seg.data.Close()
	os.Remove(seg.path)
	os.Remove(filepath.Join(filepath.Dir(seg.path), seg.id+".lock"))
	return nil
}

func (r *Registry) get(id string) (*segment, error) {
	r.mu.Lock()
	seg, ok := r.segments[id]
	r.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("shm: %w: %s", types.ErrNotFound, id)
	}
	return seg, nil
}

// Read returns size bytes starting at offset, bounds-checked against the
// segment's size.
func (r *Registry) Read(id string, offset int64, size int) ([]byte, error) {
	seg, err := r.get(id)
	if err != nil {
		return nil, err
	}
	if offset < 0 || size < 0 {
		return nil, fmt.Errorf("shm: %w", types.ErrInvalidArgument)
	}

	seg.mu.Lock()
	defer seg.mu.Unlock()
	if err := seg.lock.Lock(); err != nil {
		return nil, fmt.Errorf("shm: lock: %w", err)
	}
	defer seg.lock.Unlock()

	hdr, err := readHeader(seg.data)
	if err != nil {
		return nil, fmt.Errorf("shm: %w", types.ErrInvalidState)
	}
	if offset+int64(size) > int64(hdr.size) {
		return nil, fmt.Errorf("shm: %w: out of bounds", types.ErrInvalidArgument)
	}
	buf := make([]byte, size)
	if _, err := seg.data.ReadAt(buf, int64(types.HeaderBytes)+offset); err != nil {
		return nil, fmt.Errorf("shm: read: %w", err)
	}
	return buf, nil
}

// Write copies data into the segment at offset, bounds-checked against the
// segment's size. The in_use flag is set for the duration of the copy.
func (r *Registry) Write(id string, data []byte, offset int64) (int, error) {
	seg, err := r.get(id)
	if err != nil {
		return 0, err
	}
	if offset < 0 {
		return 0, fmt.Errorf("shm: %w", types.ErrInvalidArgument)
	}

	seg.mu.Lock()
	defer seg.mu.Unlock()
	if err := seg.lock.Lock(); err != nil {
		return 0, fmt.Errorf("shm: lock: %w", err)
	}
	defer seg.lock.Unlock()

	hdr, err := readHeader(seg.data)
	if err != nil {
		return 0, fmt.Errorf("shm: %w", types.ErrInvalidState)
	}
	if offset+int64(len(data)) > int64(hdr.size) {
		return 0, fmt.Errorf("shm: %w: out of bounds", types.ErrInvalidArgument)
	}

	hdr.flags |= types.ShmFlagInUse
	if err := writeHeader(seg.data, hdr); err != nil {
		return 0, err
	}
	n, err := seg.data.WriteAt(data, int64(types.HeaderBytes)+offset)
	hdr.flags &^= types.ShmFlagInUse
	if werr := writeHeader(seg.data, hdr); werr != nil && err == nil {
		err = werr
	}
	return n, err
}

// Lock acquires the segment's exclusive lock, on top of the per-op advisory
// lock, blocking unless nonblocking is set.
func (r *Registry) Lock(id string, nonblocking bool) error {
	seg, err := r.get(id)
	if err != nil {
		return err
	}
	if nonblocking {
		select {
		case seg.exclusiveHolders <- struct{}{}:
		default:
			return fmt.Errorf("shm: %w", types.ErrResourceBusy)
		}
	} else {
		seg.exclusiveHolders <- struct{}{}
	}

	seg.mu.Lock()
	defer seg.mu.Unlock()
	if err := seg.lock.Lock(); err != nil {
		<-seg.exclusiveHolders
		return fmt.Errorf("shm: lock: %w", err)
	}
	defer seg.lock.Unlock()
	hdr, err := readHeader(seg.data)
	if err != nil {
		<-seg.exclusiveHolders
		return fmt.Errorf("shm: %w", types.ErrInvalidState)
	}
	hdr.flags |= types.ShmFlagLocked
	return writeHeader(seg.data, hdr)
}

// Unlock releases the segment's exclusive lock.
func (r *Registry) Unlock(id string) error {
	seg, err := r.get(id)
	if err != nil {
		return err
	}

	seg.mu.Lock()
	if err := seg.lock.Lock(); err != nil {
		seg.mu.Unlock()
		return fmt.Errorf("shm: lock: %w", err)
	}
	hdr, err := readHeader(seg.data)
	if err == nil {
		hdr.flags &^= types.ShmFlagLocked
		err = writeHeader(seg.data, hdr)
	}
	seg.lock.Unlock()
	seg.mu.Unlock()

	select {
	case <-seg.exclusiveHolders:
	default:
	}
	return err
}

// Info returns the current externally visible snapshot of a segment.
func (r *Registry) Info(id string) (types.SharedMemoryInfo, error) {
	seg, err := r.get(id)
	if err != nil {
		return types.SharedMemoryInfo{}, err
	}
	seg.mu.Lock()
	defer seg.mu.Unlock()
	hdr, err := readHeader(seg.data)
	if err != nil {
		return types.SharedMemoryInfo{}, fmt.Errorf("shm: %w", types.ErrInvalidState)
	}
	return types.SharedMemoryInfo{
		ID: seg.id, Name: seg.name, Size: hdr.size, UserCount: hdr.userCount,
		CreatorPID: hdr.creatorPID, Permissions: hdr.permissions,
		Locked: hdr.flags&types.ShmFlagLocked != 0,
	}, nil
}
