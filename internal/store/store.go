// Package store owns the on-disk storage root (L0) that every other KOS
// subsystem persists its artefacts under.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Root is the filesystem root all KOS state lives under, matching the
// directory layout documented in SPEC_FULL.md §6.
type Root struct {
	path string
}

// New returns a Root rooted at path, creating the top-level directories if
// they do not yet exist.
func New(path string) (*Root, error) {
	r := &Root{path: path}
	for _, dir := range []string{
		r.PipeDir(), r.MessageQueueDir(), r.SharedMemoryDir(), r.SemaphoreDir(),
		r.ServiceConfigDir(), r.ServiceStateDir(),
		r.JobConfigDir(), r.JobStateDir(), r.JobHistoryDir(),
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("store: create %s: %w", dir, err)
		}
	}
	return r, nil
}

func (r *Root) Path() string { return r.path }

func (r *Root) PipeDir() string          { return filepath.Join(r.path, "ipc", "pipe") }
func (r *Root) MessageQueueDir() string  { return filepath.Join(r.path, "ipc", "message_queue") }
func (r *Root) SharedMemoryDir() string  { return filepath.Join(r.path, "ipc", "shared_memory") }
func (r *Root) SemaphoreDir() string     { return filepath.Join(r.path, "ipc", "semaphore") }
func (r *Root) ServiceConfigDir() string { return filepath.Join(r.path, "services", "config") }
func (r *Root) ServiceStateDir() string  { return filepath.Join(r.path, "services", "state") }
func (r *Root) JobConfigDir() string     { return filepath.Join(r.path, "scheduler", "config") }
func (r *Root) JobStateDir() string      { return filepath.Join(r.path, "scheduler", "state") }
func (r *Root) JobHistoryDir() string    { return filepath.Join(r.path, "scheduler", "history") }

// AtomicWriteJSON marshals v and replaces path with it atomically: the new
// content is written to a temp file in the same directory and renamed over
// path, so a crash mid-write never corrupts a previously valid file.
func AtomicWriteJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("store: marshal %s: %w", path, err)
	}
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("store: create temp in %s: %w", dir, err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("store: write temp %s: %w", tmpPath, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("store: close temp %s: %w", tmpPath, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("store: rename %s -> %s: %w", tmpPath, path, err)
	}
	return nil
}

// ReadJSON loads and unmarshals path into v.
func ReadJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// Exists reports whether path exists.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// ReadDirNames lists the base names of entries directly under dir.
func ReadDirNames(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names, nil
}
