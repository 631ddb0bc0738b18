package snapshot

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

var (
	// ErrSlotFull is returned by a slot that rejects a write for capacity.
	ErrSlotFull = errors.New("snapshot: storage slot is full")
	// ErrInvalidKey is returned for keys a slot cannot address.
	ErrInvalidKey = errors.New("snapshot: invalid slot key")
)

// Slot is a persistent key-value slot holding text values. A snapshot is
// always written wholesale, so implementations only need whole-value
// semantics.
type Slot interface {
	// Get returns the stored value and whether the key was present.
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	// Remove deletes the key. Removing a missing key is not an error.
	Remove(ctx context.Context, key string) error
}

// MemorySlot keeps values in memory. A positive quota caps the total size of
// keys and values, mimicking browser storage limits.
type MemorySlot struct {
	mu     sync.Mutex
	values map[string]string
	quota  int
}

// NewMemorySlot returns an empty, unbounded MemorySlot.
func NewMemorySlot() *MemorySlot {
	return &MemorySlot{values: make(map[string]string)}
}

// SetQuota limits the slot to n bytes. Zero disables the limit.
func (s *MemorySlot) SetQuota(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quota = n
}

// Get implements Slot.
func (s *MemorySlot) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	return v, ok, nil
}

// Set implements Slot.
func (s *MemorySlot) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.quota > 0 {
		used := len(key) + len(value)
		for k, v := range s.values {
			if k != key {
				used += len(k) + len(v)
			}
		}
		if used > s.quota {
			return fmt.Errorf("%w: %d bytes exceeds quota of %d", ErrSlotFull, used, s.quota)
		}
	}
	s.values[key] = value
	return nil
}

// Remove implements Slot.
func (s *MemorySlot) Remove(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
	return nil
}

// FileSlot stores each key as a file in a directory. Writes go to a
// temporary file that is renamed over the target, so a reader never sees a
// partial snapshot.
type FileSlot struct {
	dir string
}

// NewFileSlot creates dir if needed and returns a slot rooted there.
func NewFileSlot(dir string) (*FileSlot, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("snapshot: create slot dir: %w", err)
	}
	return &FileSlot{dir: dir}, nil
}

// Dir returns the directory backing the slot.
func (s *FileSlot) Dir() string { return s.dir }

func (s *FileSlot) path(key string) (string, error) {
	if key == "" || key == "." || key == ".." || strings.ContainsAny(key, `/\`) {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return filepath.Join(s.dir, key), nil
}

// Get implements Slot.
func (s *FileSlot) Get(ctx context.Context, key string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	p, err := s.path(key)
	if err != nil {
		return "", false, err
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, os.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("snapshot: read slot: %w", err)
	}
	return string(data), true, nil
}

// Set implements Slot.
func (s *FileSlot) Set(ctx context.Context, key, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := s.path(key)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.dir, key+".*.tmp")
	if err != nil {
		return fmt.Errorf("snapshot: create temp: %w", err)
	}
	tmpPath := tmp.Name()
	cleanup := true
	defer func() {
		if cleanup {
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.WriteString(value); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("snapshot: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("snapshot: sync temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("snapshot: close temp: %w", err)
	}
	if err := os.Rename(tmpPath, p); err != nil {
		return fmt.Errorf("snapshot: rename: %w", err)
	}
	cleanup = false
	return nil
}

// Remove implements Slot.
func (s *FileSlot) Remove(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("snapshot: remove slot: %w", err)
	}
	return nil
}
