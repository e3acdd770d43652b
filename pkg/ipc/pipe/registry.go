package pipe

import (
	"fmt"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/kaedeos/kos/internal/lockfile"
	"github.com/kaedeos/kos/internal/store"
	"github.com/kaedeos/kos/pkg/types"
)

// Registry owns every open pipe under one storage root. It is constructed
// explicitly (no package-level global) so tests and multiple runtimes can
// each own an independent registry.
type Registry struct {
	root *store.Root

	mu    chan struct{} // binary semaphore acting as the registry's single reentrant-style lock
	pipes map[string]*Pipe
}

// NewRegistry constructs a Registry rooted at root.
func NewRegistry(root *store.Root) *Registry {
	r := &Registry{root: root, pipes: make(map[string]*Pipe)}
	r.mu = make(chan struct{}, 1)
	r.mu <- struct{}{}
	return r
}

func (r *Registry) lock()   { <-r.mu }
func (r *Registry) unlock() { r.mu <- struct{}{} }

// Create allocates a new pipe with the given buffer size, returning its ID.
func (r *Registry) Create(name string, bufferSize uint32) (string, error) {
	if bufferSize == 0 {
		return "", fmt.Errorf("pipe: %w: buffer_size must be > 0", types.ErrInvalidArgument)
	}

	r.lock()
	defer r.unlock()

	id := uuid.NewString()
	dataPath := filepath.Join(r.root.PipeDir(), id+".pipe")
	lockPath := filepath.Join(r.root.PipeDir(), id+".lock")

	f, err := create(dataPath, bufferSize)
	if err != nil {
		return "", fmt.Errorf("pipe: create: %w", err)
	}

	p := &Pipe{id: id, name: name, bufferSize: bufferSize, dataPath: dataPath, data: f, lock: lockfile.New(lockPath)}
	p.notEmpty = newBoundedCond(&p.mu)
	p.notFull = newBoundedCond(&p.mu)

	r.pipes[id] = p
	return id, nil
}

// Open attaches to an existing pipe by ID, loading it from disk if this
// registry does not already hold it. Reader and writer counts are not
// changed.
func (r *Registry) Open(id string) error {
	r.lock()
	defer r.unlock()

	if _, ok := r.pipes[id]; ok {
		return nil
	}

	dataPath := filepath.Join(r.root.PipeDir(), id+".pipe")
	if !store.Exists(dataPath) {
		return fmt.Errorf("pipe: %w: %s", types.ErrNotFound, id)
	}
	f, err := open(dataPath)
	if err != nil {
		return fmt.Errorf("pipe: open: %w", err)
	}
	hdr, err := readHeader(f)
	if err != nil {
		f.Close()
		return fmt.Errorf("pipe: %w: corrupt header", types.ErrInvalidState)
	}
	lockPath := filepath.Join(r.root.PipeDir(), id+".lock")
	p := &Pipe{id: id, bufferSize: hdr.bufferSize, dataPath: dataPath, data: f, lock: lockfile.New(lockPath)}
	p.notEmpty = newBoundedCond(&p.mu)
	p.notFull = newBoundedCond(&p.mu)
	r.pipes[id] = p
	return nil
}

// Close marks a pipe closed, waking any blocked readers/writers, then drops
// it from the registry and closes the registry's file handle.
func (r *Registry) Close(id string) error {
	r.lock()
	p, ok := r.pipes[id]
	r.unlock()
	if !ok {
		return fmt.Errorf("pipe: %w: %s", types.ErrNotFound, id)
	}

	p.mu.Lock()
	if err := p.lock.Lock(); err != nil {
		p.mu.Unlock()
		return fmt.Errorf("pipe: lock: %w", err)
	}
	hdr, err := readHeader(p.data)
	if err == nil {
		_ = writeHeader(p.data, hdr.flags|types.PipeFlagClosed, hdr.bufferSize, hdr.readPos, hdr.writePos, hdr.readerCount, hdr.writerCount, hdr.lastError)
	}
	p.lock.Unlock()
	p.notEmpty.Broadcast()
	p.notFull.Broadcast()
	p.mu.Unlock()

	r.lock()
	delete(r.pipes, id)
	r.unlock()

	return p.data.Close()
}

// Write copies up to len(data) bytes into the pipe, blocking for space
// unless nonblocking is set. Returns the number of bytes actually written.
func (r *Registry) Write(id string, data []byte, nonblocking bool) (int, error) {
	r.lock()
	p, ok := r.pipes[id]
	r.unlock()
	if !ok {
		return 0, fmt.Errorf("pipe: %w: %s", types.ErrNotFound, id)
	}
	if len(data) == 0 {
		return 0, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	for {
		if err := p.lock.Lock(); err != nil {
			return 0, fmt.Errorf("pipe: lock: %w", err)
		}
		hdr, err := readHeader(p.data)
		if err != nil {
			p.lock.Unlock()
			return 0, fmt.Errorf("pipe: %w", types.ErrInvalidState)
		}
		free := space(hdr.readPos, hdr.writePos, hdr.bufferSize)
		if free == 0 {
			p.lock.Unlock()
			if nonblocking {
				return 0, nil
			}
			p.notFull.WaitTimeout(waitPoll)
			continue
		}

		n := uint32(len(data))
		if n > free {
			n = free
		}
		writePos := hdr.writePos
		remaining := n
		off := uint32(0)
		for remaining > 0 {
			chunk := hdr.bufferSize - writePos
			if chunk > remaining {
				chunk = remaining
			}
			if _, err := p.data.WriteAt(data[off:off+chunk], p.ringOffset(writePos)); err != nil {
				p.lock.Unlock()
				return 0, fmt.Errorf("pipe: write: %w", err)
			}
			writePos = (writePos + chunk) % hdr.bufferSize
			off += chunk
			remaining -= chunk
		}

		if err := writeHeader(p.data, hdr.flags, hdr.bufferSize, hdr.readPos, writePos, hdr.readerCount, hdr.writerCount, hdr.lastError); err != nil {
			p.lock.Unlock()
			return 0, fmt.Errorf("pipe: write header: %w", err)
		}
		p.lock.Unlock()
		p.notEmpty.Broadcast()
		return int(n), nil
	}
}

// Read copies up to maxSize bytes out of the pipe, blocking for data unless
// nonblocking is set. Returns empty immediately if the pipe is closed and
// drained.
func (r *Registry) Read(id string, maxSize int, nonblocking bool) ([]byte, error) {
	r.lock()
	p, ok := r.pipes[id]
	r.unlock()
	if !ok {
		return nil, fmt.Errorf("pipe: %w: %s", types.ErrNotFound, id)
	}
	if maxSize <= 0 {
		return nil, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	for {
		if err := p.lock.Lock(); err != nil {
			return nil, fmt.Errorf("pipe: lock: %w", err)
		}
		hdr, err := readHeader(p.data)
		if err != nil {
			p.lock.Unlock()
			return nil, fmt.Errorf("pipe: %w", types.ErrInvalidState)
		}
		avail := available(hdr.readPos, hdr.writePos, hdr.bufferSize)
		if avail == 0 {
			closed := hdr.flags&types.PipeFlagClosed != 0
			p.lock.Unlock()
			if closed {
				return []byte{}, nil
			}
			if nonblocking {
				return []byte{}, nil
			}
			p.notEmpty.WaitTimeout(waitPoll)
			continue
		}

		n := uint32(maxSize)
		if n > avail {
			n = avail
		}
		out := make([]byte, n)
		readPos := hdr.readPos
		remaining := n
		off := uint32(0)
		for remaining > 0 {
			chunk := hdr.bufferSize - readPos
			if chunk > remaining {
				chunk = remaining
			}
			if _, err := p.data.ReadAt(out[off:off+chunk], p.ringOffset(readPos)); err != nil {
				p.lock.Unlock()
				return nil, fmt.Errorf("pipe: read: %w", err)
			}
			readPos = (readPos + chunk) % hdr.bufferSize
			off += chunk
			remaining -= chunk
		}

		if err := writeHeader(p.data, hdr.flags, hdr.bufferSize, readPos, hdr.writePos, hdr.readerCount, hdr.writerCount, hdr.lastError); err != nil {
			p.lock.Unlock()
			return nil, fmt.Errorf("pipe: write header: %w", err)
		}
		p.lock.Unlock()
		p.notFull.Broadcast()
		return out, nil
	}
}

// Info returns the current externally visible snapshot of a pipe.
func (r *Registry) Info(id string) (types.PipeInfo, error) {
	r.lock()
	p, ok := r.pipes[id]
	r.unlock()
	if !ok {
		return types.PipeInfo{}, fmt.Errorf("pipe: %w: %s", types.ErrNotFound, id)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	hdr, err := readHeader(p.data)
	if err != nil {
		return types.PipeInfo{}, fmt.Errorf("pipe: %w", types.ErrInvalidState)
	}
	return types.PipeInfo{
		ID:          p.id,
		Name:        p.name,
		BufferSize:  hdr.bufferSize,
		ReaderCount: hdr.readerCount,
		WriterCount: hdr.writerCount,
		Closed:      hdr.flags&types.PipeFlagClosed != 0,
	}, nil
}
