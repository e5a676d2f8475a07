package flock

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/cocoonstack/localnet/lock"
)

func TestTryLock_Contended(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "registry.lock")

	first := New(path)
	if err := first.Lock(ctx); err != nil {
		t.Fatalf("Lock: %v", err)
	}

	// flock(2) locks belong to the open file description, so a second
	// handle on the same path contends even inside one process.
	second := New(path)
	if err := second.TryLock(ctx); !errors.Is(err, lock.ErrLocked) {
		t.Fatalf("expected ErrLocked, got %v", err)
	}

	if err := first.Unlock(ctx); err != nil {
		t.Fatalf("Unlock: %v", err)
	}
	if err := second.TryLock(ctx); err != nil {
		t.Fatalf("TryLock after release: %v", err)
	}
	_ = second.Unlock(ctx)
}

func TestLock_ContextDone(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.lock")
	holder := New(path)
	if err := holder.Lock(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer holder.Unlock(context.Background()) //nolint:errcheck

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	if err := New(path).Lock(ctx); err == nil {
		t.Fatal("expected lock to fail once the context is done")
	}
}

func TestWithLock_ReleasesOnError(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "registry.lock")
	boom := errors.New("boom")

	if err := lock.WithLock(ctx, New(path), func() error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if err := lock.WithTryLock(ctx, New(path), func() error { return nil }); err != nil {
		t.Fatalf("lock not released: %v", err)
	}
}
