package kvstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
)

const fileSnapshotVersion = "1.0"

// fileEntry is a single key-value pair in the snapshot file.
type fileEntry struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// fileSnapshot is the on-disk layout of a FileStore.
type fileSnapshot struct {
	Version   string      `json:"version"`
	Timestamp time.Time   `json:"timestamp"`
	Entries   []fileEntry `json:"entries"`
}

// FileStore keeps all keys in memory and rewrites a JSON snapshot on every
// mutation. Suited to the small, rarely written values of a device store.
type FileStore struct {
	mu     sync.Mutex
	path   string
	data   map[string]string
	closed bool
}

// OpenFileStore loads the snapshot at path. A missing, empty or unreadable
// snapshot yields an empty store rather than an error, so an interrupted
// write never blocks startup.
func OpenFileStore(path string) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("kvstore: create data directory: %w", err)
	}
	s := &FileStore{path: path, data: make(map[string]string)}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *FileStore) load() error {
	b, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("kvstore: read snapshot: %w", err)
	}
	if len(b) == 0 {
		return nil
	}
	var snap fileSnapshot
	if err := json.Unmarshal(b, &snap); err != nil {
		log.Warnf("kvstore: ignoring corrupt snapshot %s: %v", s.path, err)
		return nil
	}
	for _, e := range snap.Entries {
		s.data[e.Key] = e.Value
	}
	return nil
}

// persist writes the snapshot to a temporary file and renames it into place.
// Callers hold s.mu.
func (s *FileStore) persist() error {
	snap := fileSnapshot{
		Version:   fileSnapshotVersion,
		Timestamp: time.Now().UTC(),
		Entries:   make([]fileEntry, 0, len(s.data)),
	}
	for k, v := range s.data {
		snap.Entries = append(snap.Entries, fileEntry{Key: k, Value: v})
	}
	sort.Slice(snap.Entries, func(i, j int) bool { return snap.Entries[i].Key < snap.Entries[j].Key })

	tmpPath := s.path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("kvstore: create snapshot: %w", err)
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(snap); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("kvstore: encode snapshot: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("kvstore: sync snapshot: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("kvstore: close snapshot: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("kvstore: rename snapshot: %w", err)
	}
	return nil
}

func (s *FileStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", false, ErrClosed
	}
	v, ok := s.data[key]
	return v, ok, nil
}

// Set updates memory only after the snapshot hit the disk, so a failed write
// leaves both views unchanged.
func (s *FileStore) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	prev, had := s.data[key]
	s.data[key] = value
	if err := s.persist(); err != nil {
		s.restore(key, prev, had)
		return err
	}
	return nil
}

func (s *FileStore) Remove(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	prev, had := s.data[key]
	if !had {
		return nil
	}
	delete(s.data, key)
	if err := s.persist(); err != nil {
		s.restore(key, prev, had)
		return err
	}
	return nil
}

func (s *FileStore) Update(_ context.Context, key string, fn UpdateFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	cur, ok := s.data[key]
	next, err := fn(cur, ok)
	if err != nil {
		if errors.Is(err, ErrSkip) {
			return nil
		}
		return err
	}
	s.data[key] = next
	if err := s.persist(); err != nil {
		s.restore(key, cur, ok)
		return err
	}
	return nil
}

func (s *FileStore) restore(key, prev string, had bool) {
	if had {
		s.data[key] = prev
		return
	}
	delete(s.data, key)
}

// Close marks the store closed. Every mutation is already on disk.
func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
