// Package pipe implements the KOS named-pipe primitive: a unidirectional
// byte stream backed by a file-system ring buffer, matching the on-disk
// layout in SPEC_FULL.md §6 so unrelated processes sharing a storage root
// can rendezvous.
package pipe

import (
	"encoding/binary"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/kaedeos/kos/internal/lockfile"
	"github.com/kaedeos/kos/pkg/types"
)

// header field byte offsets within the fixed 128-byte header.
const (
	offMagic       = 0
	offVersion     = 4
	offFlags       = 8
	offBufferSize  = 12
	offReadPos     = 16
	offWritePos    = 20
	offReaderCount = 24
	offWriterCount = 28
	offLastError   = 32
)

// waitPoll bounds every internal condition wait so shutdown is observed
// promptly, per the spec's cooperative-cancellation requirement.
const waitPoll = 1 * time.Second

// Pipe is one open handle onto a pipe's on-disk ring buffer.
type Pipe struct {
	id         string
	name       string
	bufferSize uint32

	dataPath string
	data     *os.File
	lock     *lockfile.Lock

	mu       sync.Mutex
	notEmpty *boundedCond
	notFull  *boundedCond
}

func writeHeader(f *os.File, flags, bufferSize, readPos, writePos, readerCount, writerCount, lastError uint32) error {
	buf := make([]byte, types.HeaderBytes)
	copy(buf[offMagic:], types.PipeMagic)
	binary.LittleEndian.PutUint32(buf[offVersion:], types.FormatVer)
	binary.LittleEndian.PutUint32(buf[offFlags:], flags)
	binary.LittleEndian.PutUint32(buf[offBufferSize:], bufferSize)
	binary.LittleEndian.PutUint32(buf[offReadPos:], readPos)
	binary.LittleEndian.PutUint32(buf[offWritePos:], writePos)
	binary.LittleEndian.PutUint32(buf[offReaderCount:], readerCount)
	binary.LittleEndian.PutUint32(buf[offWriterCount:], writerCount)
	binary.LittleEndian.PutUint32(buf[offLastError:], lastError)
	_, err := f.WriteAt(buf, 0)
	return err
}

type header struct {
	flags       uint32
	bufferSize  uint32
	readPos     uint32
	writePos    uint32
	readerCount uint32
	writerCount uint32
	lastError   uint32
}

func readHeader(f *os.File) (header, error) {
	buf := make([]byte, types.HeaderBytes)
	if _, err := f.ReadAt(buf, 0); err != nil {
		return header{}, err
	}
	if string(buf[offMagic:offMagic+4]) != types.PipeMagic {
		return header{}, fmt.Errorf("pipe: bad magic")
	}
	return header{
		flags:       binary.LittleEndian.Uint32(buf[offFlags:]),
		bufferSize:  binary.LittleEndian.Uint32(buf[offBufferSize:]),
		readPos:     binary.LittleEndian.Uint32(buf[offReadPos:]),
		writePos:    binary.LittleEndian.Uint32(buf[offWritePos:]),
		readerCount: binary.LittleEndian.Uint32(buf[offReaderCount:]),
		writerCount: binary.LittleEndian.Uint32(buf[offWriterCount:]),
		lastError:   binary.LittleEndian.Uint32(buf[offLastError:]),
	}, nil
}

func create(path string, bufferSize uint32) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, err
	}
	if err := f.Truncate(int64(types.HeaderBytes) + int64(bufferSize)); err != nil {
		f.Close()
		return nil, err
	}
	if err := writeHeader(f, 0, bufferSize, 0, 0, 0, 0, 0); err != nil {
		f.Close()
		return nil, err
	}
	return f, nil
}

func open(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_RDWR, 0o644)
}

// available returns the number of unread bytes given a ring of size n.
func available(readPos, writePos, n uint32) uint32 {
	if writePos >= readPos {
		return writePos - readPos
	}
	return n - readPos + writePos
}

// space returns free capacity, always keeping one slot empty to disambiguate
// full from empty.
func space(readPos, writePos, n uint32) uint32 {
	return n - 1 - available(readPos, writePos, n)
}

func (p *Pipe) ringOffset(pos uint32) int64 {
	return int64(types.HeaderBytes) + int64(pos)
}
