// Package filestore provides a file-backed implementation of kv.Store, one
// JSON document per key under a data directory. Writes go through a temp file
// and rename so readers never observe a partial document.
package filestore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/linnemanlabs/go-core/log"
)

const (
	fileExt      = ".json"
	debounceTime = 500 * time.Millisecond
)

// Store persists values as files under a single directory. Keys map to file
// names verbatim (plus a .json extension); path separators are replaced so a
// key can never escape the directory.
type Store struct {
	dir    string
	logger log.Logger

	mu sync.Mutex // serializes temp-file writes per store
}

// New creates the data directory if needed and returns a Store over it.
func New(dir string, logger log.Logger) (*Store, error) {
	if logger == nil {
		logger = log.Nop()
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("filestore: create dir: %w", err)
	}
	return &Store{dir: dir, logger: logger}, nil
}

// Dir returns the data directory the store writes under.
func (s *Store) Dir() string { return s.dir }

func (s *Store) pathFor(key string) string {
	name := strings.ReplaceAll(key, string(os.PathSeparator), "-")
	return filepath.Join(s.dir, name+fileExt)
}

// keyFor is the inverse of pathFor for names inside the data directory.
func keyFor(name string) (string, bool) {
	base := filepath.Base(name)
	if !strings.HasSuffix(base, fileExt) {
		return "", false
	}
	return strings.TrimSuffix(base, fileExt), true
}

// Get reads the value for key from disk.
func (s *Store) Get(_ context.Context, key string) ([]byte, bool, error) {
	data, err := os.ReadFile(s.pathFor(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("filestore: read %s: %w", key, err)
	}
	return data, true, nil
}

// Set writes value to a temp file and renames it over the key's file.
func (s *Store) Set(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dst := s.pathFor(key)
	tmp, err := os.CreateTemp(s.dir, filepath.Base(dst)+".tmp-*")
	if err != nil {
		return fmt.Errorf("filestore: create temp: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(value); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("filestore: write %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("filestore: close temp for %s: %w", key, err)
	}
	if err := os.Rename(tmpName, dst); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("filestore: rename %s: %w", key, err)
	}
	return nil
}

// Delete removes the key's file. Deleting a missing key is not an error.
func (s *Store) Delete(_ context.Context, key string) error {
	err := os.Remove(s.pathFor(key))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("filestore: delete %s: %w", key, err)
	}
	return nil
}

// Watch reports keys whose files change on disk, debounced so bursts collapse
// into one callback. It sees this process's own writes too; callers that only
// care about external writers distinguish them by record version. Watch blocks
// until ctx is done.
func (s *Store) Watch(ctx context.Context, fn func(keys []string)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("filestore: create watcher: %w", err)
	}
	defer func() { _ = w.Close() }()

	if err := w.Add(s.dir); err != nil {
		return fmt.Errorf("filestore: watch %s: %w", s.dir, err)
	}

	pending := make(map[string]bool)
	ticker := time.NewTicker(debounceTime)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) && !ev.Has(fsnotify.Remove) {
				continue
			}
			// temp files never carry the .json suffix, so renames surface
			// exactly once, under the destination name
			if key, ok := keyFor(ev.Name); ok {
				pending[key] = true
			}

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn(ctx, "filestore watcher error", "error", err)

		case <-ticker.C:
			if len(pending) == 0 {
				continue
			}
			keys := make([]string, 0, len(pending))
			for k := range pending {
				keys = append(keys, k)
			}
			pending = make(map[string]bool)
			fn(keys)
		}
	}
}
