// Package mqueue implements the KOS message queue primitive: a priority +
// FIFO queue where the directory listing under messages/ IS the queue,
// matching SPEC_FULL.md §6. Payloads are framed with CBOR (see
// SPEC_FULL.md's Domain stack section) rather than a language-specific
// pickling format.
package mqueue

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"

	"github.com/kaedeos/kos/internal/lockfile"
	"github.com/kaedeos/kos/internal/store"
	"github.com/kaedeos/kos/pkg/types"
)

const waitPoll = 1 * time.Second

type metadata struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	MaxMessages int    `json:"max_messages"`
	MaxSize     int    `json:"max_size"`
	NextMsgID   uint64 `json:"next_msg_id"`
}

type queue struct {
	id       string
	dir      string
	msgDir   string
	metaPath string
	lock     *lockfile.Lock

	mu       sync.Mutex
	notEmpty *sync.Cond
	notFull  *sync.Cond
}

// Registry owns every open message queue under one storage root.
type Registry struct {
	root *store.Root

	mu     sync.Mutex
	queues map[string]*queue
}

func NewRegistry(root *store.Root) *Registry {
	return &Registry{root: root, queues: make(map[string]*queue)}
}

// Create allocates a new message queue, returning its ID.
func (r *Registry) Create(name string, maxMessages, maxSize int) (string, error) {
	if maxMessages <= 0 || maxSize <= 0 {
		return "", fmt.Errorf("mqueue: %w", types.ErrInvalidArgument)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	id := uuid.NewString()
	dir := filepath.Join(r.root.MessageQueueDir(), id)
	msgDir := filepath.Join(dir, "messages")
	if err := os.MkdirAll(msgDir, 0o755); err != nil {
		return "", fmt.Errorf("mqueue: create: %w", err)
	}
	metaPath := filepath.Join(dir, "metadata.json")
	meta := metadata{ID: id, Name: name, MaxMessages: maxMessages, MaxSize: maxSize}
	if err := store.AtomicWriteJSON(metaPath, meta); err != nil {
		return "", fmt.Errorf("mqueue: write metadata: %w", err)
	}
	lockPath := filepath.Join(dir, "lock")
	if f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDONLY, 0o644); err == nil {
		f.Close()
	}

	q := &queue{id: id, dir: dir, msgDir: msgDir, metaPath: metaPath, lock: lockfile.New(lockPath)}
	q.notEmpty = sync.NewCond(&q.mu)
	q.notFull = sync.NewCond(&q.mu)
	r.queues[id] = q
	return id, nil
}

// Delete removes a queue's directory tree and drops its in-memory handle.
func (r *Registry) Delete(id string) error {
	r.mu.Lock()
	q, ok := r.queues[id]
	if ok {
		delete(r.queues, id)
	}
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("mqueue: %w: %s", types.ErrNotFound, id)
	}
	return os.RemoveAll(q.dir)
}

func (r *Registry) get(id string) (*queue, error) {
	r.mu.Lock()
	q, ok := r.queues[id]
	r.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("mqueue: %w: %s", types.ErrNotFound, id)
	}
	return q, nil
}

func clampByte(v, lo, hi int) uint8 {
	if v < lo {
		v = lo
	}
	if v > hi {
		v = hi
	}
	return uint8(v)
}

// entry describes one on-disk message file name: PRI_TYPE_SEQ.msg
type entry struct {
	priority uint8
	msgType  uint8
	seq      uint64
	name     string
}

func listEntries(msgDir string, typeFilter uint8) ([]entry, error) {
	files, err := os.ReadDir(msgDir)
	if err != nil {
		return nil, err
	}
	var out []entry
	for _, f := range files {
		name := f.Name()
		if !strings.HasSuffix(name, ".msg") {
			continue
		}
		parts := strings.SplitN(strings.TrimSuffix(name, ".msg"), "_", 3)
		if len(parts) != 3 {
			continue
		}
		pri, err1 := strconv.Atoi(parts[0])
		typ, err2 := strconv.Atoi(parts[1])
		seq, err3 := strconv.ParseUint(parts[2], 10, 64)
		if err1 != nil || err2 != nil || err3 != nil {
			continue
		}
		if typeFilter != 0 && uint8(typ) != typeFilter {
			continue
		}
		out = append(out, entry{priority: uint8(pri), msgType: uint8(typ), seq: seq, name: name})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].priority != out[j].priority {
			return out[i].priority > out[j].priority
		}
		return out[i].seq < out[j].seq
	})
	return out, nil
}

func readMeta(path string) (metadata, error) {
	var m metadata
	err := store.ReadJSON(path, &m)
	return m, err
}

// Send enqueues payload with the given type and priority, blocking if the
// queue is full unless nonblocking is set. The cross-process lock is
// released during the wait and reacquired on wake-up, mirroring the
// original implementation's send().
func (r *Registry) Send(id string, payload any, msgType, priority int, nonblocking bool) error {
	q, err := r.get(id)
	if err != nil {
		return err
	}
	pt := clampByte(msgType, 0, 255)
	pr := clampByte(priority, 0, 255)

	encoded, err := cbor.Marshal(payload)
	if err != nil {
		return fmt.Errorf("mqueue: encode: %w", err)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	for {
		if err := q.lock.Lock(); err != nil {
			return fmt.Errorf("mqueue: lock: %w", err)
		}
		meta, err := readMeta(q.metaPath)
		if err != nil {
			q.lock.Unlock()
			return fmt.Errorf("mqueue: %w", types.ErrInvalidState)
		}
		entries, err := listEntries(q.msgDir, 0)
		if err != nil {
			q.lock.Unlock()
			return fmt.Errorf("mqueue: list: %w", err)
		}
		if len(entries) >= meta.MaxMessages {
			q.lock.Unlock()
			if nonblocking {
				return fmt.Errorf("mqueue: %w", types.ErrResourceBusy)
			}
			waitTimeout(q.notFull, &q.mu, waitPoll)
			continue
		}

		msgID := meta.NextMsgID
		meta.NextMsgID++
		name := fmt.Sprintf("%03d_%03d_%010d.msg", pr, pt, msgID)
		if err := os.WriteFile(filepath.Join(q.msgDir, name), encoded, 0o644); err != nil {
			q.lock.Unlock()
			return fmt.Errorf("mqueue: write: %w", err)
		}
		if err := store.AtomicWriteJSON(q.metaPath, meta); err != nil {
			q.lock.Unlock()
			return fmt.Errorf("mqueue: write metadata: %w", err)
		}
		q.lock.Unlock()
		q.notEmpty.Broadcast()
		return nil
	}
}

// Receive dequeues the highest-priority, lowest-sequence message matching
// typeFilter (0 = any), blocking if empty unless nonblocking is set.
func (r *Registry) Receive(id string, typeFilter int, nonblocking bool) (types.Message, error) {
	q, err := r.get(id)
	if err != nil {
		return types.Message{}, err
	}
	tf := clampByte(typeFilter, 0, 255)

	q.mu.Lock()
	defer q.mu.Unlock()

	for {
		if err := q.lock.Lock(); err != nil {
			return types.Message{}, fmt.Errorf("mqueue: lock: %w", err)
		}
		entries, err := listEntries(q.msgDir, tf)
		if err != nil {
			q.lock.Unlock()
			return types.Message{}, fmt.Errorf("mqueue: list: %w", err)
		}
		if len(entries) == 0 {
			q.lock.Unlock()
			if nonblocking {
				return types.Message{}, fmt.Errorf("mqueue: %w", types.ErrResourceUnavail)
			}
			waitTimeout(q.notEmpty, &q.mu, waitPoll)
			continue
		}

		e := entries[0]
		path := filepath.Join(q.msgDir, e.name)
		data, err := os.ReadFile(path)
		if err != nil {
			q.lock.Unlock()
			return types.Message{}, fmt.Errorf("mqueue: read: %w", err)
		}
		var payload any
		if err := cbor.Unmarshal(data, &payload); err != nil {
			q.lock.Unlock()
			return types.Message{}, fmt.Errorf("mqueue: decode: %w", err)
		}
		if err := os.Remove(path); err != nil {
			q.lock.Unlock()
			return types.Message{}, fmt.Errorf("mqueue: remove: %w", err)
		}
		q.lock.Unlock()
		q.notFull.Broadcast()
		return types.Message{ID: e.seq, Type: e.msgType, Priority: e.priority, Payload: payload}, nil
	}
}

// Info returns the current externally visible snapshot of a queue.
func (r *Registry) Info(id string) (types.MessageQueueInfo, error) {
	q, err := r.get(id)
	if err != nil {
		return types.MessageQueueInfo{}, err
	}
	meta, err := readMeta(q.metaPath)
	if err != nil {
		return types.MessageQueueInfo{}, fmt.Errorf("mqueue: %w", types.ErrInvalidState)
	}
	entries, err := listEntries(q.msgDir, 0)
	if err != nil {
		return types.MessageQueueInfo{}, fmt.Errorf("mqueue: list: %w", err)
	}
	return types.MessageQueueInfo{
		ID: meta.ID, Name: meta.Name, MaxMessages: meta.MaxMessages, MaxSize: meta.MaxSize,
		NextMsgID: meta.NextMsgID, MessageCount: len(entries),
	}, nil
}

// waitTimeout waits on cond, waking itself after d even without a Broadcast.
func waitTimeout(c *sync.Cond, l sync.Locker, d time.Duration) {
	timer := time.AfterFunc(d, func() {
		l.Lock()
		c.Broadcast()
		l.Unlock()
	})
	c.Wait()
	timer.Stop()
}
