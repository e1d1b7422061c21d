package pgstore_test

import (
	"context"
	"os"
	"testing"

	"github.com/linnemanlabs/scribe/internal/kv/pgstore"
	"github.com/linnemanlabs/scribe/internal/postgres"
)

func openStore(t *testing.T) *pgstore.Store {
	t.Helper()
	dsn := os.Getenv("SCRIBE_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("SCRIBE_TEST_DATABASE_URL not set, skipping integration test")
	}
	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, dsn)
	if err != nil {
		t.Fatalf("postgres.NewPool: %v", err)
	}
	t.Cleanup(pool.Close)
	s, err := pgstore.New(ctx, pool)
	if err != nil {
		t.Fatalf("pgstore.New: %v", err)
	}
	return s
}

func TestSetAndGet(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	if err := s.Set(ctx, "test-set-get", []byte(`{"session_id":"x"}`)); err != nil {
		t.Fatalf("Set: %v", err)
	}

	got, ok, err := s.Get(ctx, "test-set-get")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !ok {
		t.Fatal("Get returned ok=false, want true")
	}
	if string(got) != `{"session_id":"x"}` {
		t.Errorf("value = %q, want %q", got, `{"session_id":"x"}`)
	}
}

func TestGetMissing(t *testing.T) {
	s := openStore(t)

	_, ok, err := s.Get(context.Background(), "nonexistent-key")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok {
		t.Error("Get returned ok=true for nonexistent key")
	}
}

func TestUpsert(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	if err := s.Set(ctx, "test-upsert", []byte("old")); err != nil {
		t.Fatalf("Set initial: %v", err)
	}
	if err := s.Set(ctx, "test-upsert", []byte("new")); err != nil {
		t.Fatalf("Set update: %v", err)
	}

	got, ok, err := s.Get(ctx, "test-upsert")
	if err != nil {
		t.Fatalf("Get after upsert: %v", err)
	}
	if !ok {
		t.Fatal("Get returned ok=false after upsert")
	}
	if string(got) != "new" {
		t.Errorf("value = %q, want %q", got, "new")
	}
}

func TestDelete(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	if err := s.Set(ctx, "test-delete", []byte("v")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := s.Delete(ctx, "test-delete"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok, _ := s.Get(ctx, "test-delete"); ok {
		t.Error("expected key to be gone after Delete")
	}
	if err := s.Delete(ctx, "test-delete"); err != nil {
		t.Errorf("Delete missing: %v", err)
	}
}
