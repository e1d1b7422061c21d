package redistore

import (
	"context"
	"os"
	"testing"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	url := os.Getenv("SCRIBE_TEST_REDIS_URL")
	if url == "" {
		t.Skip("SCRIBE_TEST_REDIS_URL not set, skipping integration test")
	}
	s, err := New(context.Background(), url)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSetAndGet(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	if err := s.Set(ctx, "scribe-test:set-get", []byte(`{"a":1}`)); err != nil {
		t.Fatalf("Set: %v", err)
	}
	t.Cleanup(func() { _ = s.Delete(ctx, "scribe-test:set-get") })

	got, ok, err := s.Get(ctx, "scribe-test:set-get")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !ok {
		t.Fatal("Get returned ok=false, want true")
	}
	if string(got) != `{"a":1}` {
		t.Errorf("value = %q, want %q", got, `{"a":1}`)
	}
}

func TestGetMissing(t *testing.T) {
	s := openStore(t)

	_, ok, err := s.Get(context.Background(), "scribe-test:nonexistent")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok {
		t.Error("Get returned ok=true for nonexistent key")
	}
}

func TestDelete(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	if err := s.Set(ctx, "scribe-test:delete", []byte("v")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := s.Delete(ctx, "scribe-test:delete"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok, _ := s.Get(ctx, "scribe-test:delete"); ok {
		t.Error("expected key to be gone after Delete")
	}
	if err := s.Delete(ctx, "scribe-test:delete"); err != nil {
		t.Errorf("Delete missing: %v", err)
	}
}
