package filestore

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/linnemanlabs/go-core/log"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(t.TempDir(), log.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func TestStore_SetAndGet(t *testing.T) {
	t.Parallel()

	s := newStore(t)
	ctx := context.Background()

	if err := s.Set(ctx, "scribe:session-state", []byte(`{"session_id":"abc"}`)); err != nil {
		t.Fatalf("Set: %v", err)
	}

	got, ok, err := s.Get(ctx, "scribe:session-state")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !ok {
		t.Fatal("expected value to be found")
	}
	if string(got) != `{"session_id":"abc"}` {
		t.Errorf("value = %q, want %q", got, `{"session_id":"abc"}`)
	}
}

func TestStore_GetMissing(t *testing.T) {
	t.Parallel()

	s := newStore(t)
	_, ok, err := s.Get(context.Background(), "nope")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok {
		t.Error("expected ok=false for missing key")
	}
}

func TestStore_SetOverwrites(t *testing.T) {
	t.Parallel()

	s := newStore(t)
	ctx := context.Background()
	_ = s.Set(ctx, "k", []byte("old"))
	if err := s.Set(ctx, "k", []byte("new")); err != nil {
		t.Fatalf("Set: %v", err)
	}

	got, _, _ := s.Get(ctx, "k")
	if string(got) != "new" {
		t.Errorf("value = %q, want %q", got, "new")
	}
}

func TestStore_Delete(t *testing.T) {
	t.Parallel()

	s := newStore(t)
	ctx := context.Background()
	_ = s.Set(ctx, "k", []byte("v"))

	if err := s.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok, _ := s.Get(ctx, "k"); ok {
		t.Error("expected key to be gone after Delete")
	}
	if err := s.Delete(ctx, "k"); err != nil {
		t.Errorf("Delete missing: %v", err)
	}
}

func TestStore_SurvivesReopen(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	ctx := context.Background()

	s1, err := New(dir, log.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s1.Set(ctx, "k", []byte("persisted")); err != nil {
		t.Fatalf("Set: %v", err)
	}

	s2, err := New(dir, log.Nop())
	if err != nil {
		t.Fatalf("New reopen: %v", err)
	}
	got, ok, err := s2.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get after reopen: %v", err)
	}
	if !ok {
		t.Fatal("expected value after reopen")
	}
	if string(got) != "persisted" {
		t.Errorf("value = %q, want %q", got, "persisted")
	}
}

func TestStore_KeyCannotEscapeDir(t *testing.T) {
	t.Parallel()

	s := newStore(t)
	ctx := context.Background()

	if err := s.Set(ctx, "../escape", []byte("v")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if _, err := os.Stat(filepath.Join(s.Dir(), "..-escape.json")); err != nil {
		t.Errorf("expected sanitized file inside dir: %v", err)
	}
	if _, err := os.Stat(filepath.Join(filepath.Dir(s.Dir()), "escape.json")); err == nil {
		t.Error("value escaped the data directory")
	}
}

func TestStore_NoTempFilesLeftBehind(t *testing.T) {
	t.Parallel()

	s := newStore(t)
	ctx := context.Background()
	for range 10 {
		if err := s.Set(ctx, "k", []byte("v")); err != nil {
			t.Fatalf("Set: %v", err)
		}
	}

	entries, err := os.ReadDir(s.Dir())
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 {
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Errorf("dir entries = %v, want exactly [k.json]", names)
	}
}

func TestStore_WatchReportsExternalWrite(t *testing.T) {
	t.Parallel()

	s := newStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan []string, 4)
	go func() {
		_ = s.Watch(ctx, func(keys []string) {
			got <- keys
		})
	}()

	// Give the watcher a moment to register before writing.
	time.Sleep(100 * time.Millisecond)

	// Simulate another process writing the state file directly.
	path := filepath.Join(s.Dir(), "scribe:session-state.json")
	if err := os.WriteFile(path, []byte(`{"version":2}`), 0o600); err != nil {
		t.Fatalf("external write: %v", err)
	}

	select {
	case keys := <-got:
		found := false
		for _, k := range keys {
			if k == "scribe:session-state" {
				found = true
			}
		}
		if !found {
			t.Errorf("watch keys = %v, want to contain scribe:session-state", keys)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("watch did not report the external write")
	}
}

func TestStore_WatchCollapsesBursts(t *testing.T) {
	t.Parallel()

	s := newStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	calls := make(chan []string, 16)
	go func() {
		_ = s.Watch(ctx, func(keys []string) { calls <- keys })
	}()
	time.Sleep(100 * time.Millisecond)

	for range 5 {
		if err := s.Set(ctx, "burst", []byte("v")); err != nil {
			t.Fatalf("Set: %v", err)
		}
	}

	select {
	case keys := <-calls:
		if len(keys) != 1 || keys[0] != "burst" {
			t.Errorf("keys = %v, want [burst]", keys)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("watch did not fire")
	}

	// The burst should have collapsed; allow the debounce window to pass and
	// verify no flood of extra callbacks arrived.
	time.Sleep(2 * debounceTime)
	if len(calls) > 1 {
		t.Errorf("got %d extra callbacks, want at most 1", len(calls))
	}
}
