package lock

import (
	"context"
	"testing"
	"time"
)

func TestMemoryLockerExclusion(t *testing.T) {
	l := NewMemoryLocker()
	ctx := context.Background()

	ok, err := l.Acquire(ctx, "mongo1", "run-a", time.Minute)
	if err != nil || !ok {
		t.Fatalf("first acquire: ok=%v err=%v", ok, err)
	}

	ok, err = l.Acquire(ctx, "mongo1", "run-b", time.Minute)
	if err != nil {
		t.Fatalf("second acquire errored: %v", err)
	}
	if ok {
		t.Fatal("second holder must not acquire a held lock")
	}

	// A different node is independent.
	ok, _ = l.Acquire(ctx, "cassandra1", "run-b", time.Minute)
	if !ok {
		t.Error("different node should be acquirable")
	}
}

func TestMemoryLockerReentrant(t *testing.T) {
	l := NewMemoryLocker()
	ctx := context.Background()

	if ok, _ := l.Acquire(ctx, "mongo1", "run-a", time.Minute); !ok {
		t.Fatal("first acquire failed")
	}
	if ok, _ := l.Acquire(ctx, "mongo1", "run-a", time.Minute); !ok {
		t.Error("same holder should reacquire its own lock")
	}
}

func TestMemoryLockerRelease(t *testing.T) {
	l := NewMemoryLocker()
	ctx := context.Background()

	l.Acquire(ctx, "mongo1", "run-a", time.Minute)
	if err := l.Release(ctx, "mongo1", "run-a"); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if ok, _ := l.Acquire(ctx, "mongo1", "run-b", time.Minute); !ok {
		t.Error("released lock should be acquirable by a new holder")
	}
}

func TestMemoryLockerReleaseByNonHolder(t *testing.T) {
	l := NewMemoryLocker()
	ctx := context.Background()

	l.Acquire(ctx, "mongo1", "run-a", time.Minute)
	if err := l.Release(ctx, "mongo1", "run-b"); err != nil {
		t.Fatalf("Release by non-holder errored: %v", err)
	}
	if ok, _ := l.Acquire(ctx, "mongo1", "run-b", time.Minute); ok {
		t.Error("non-holder release must not free the lock")
	}
}

func TestMemoryLockerExpiry(t *testing.T) {
	l := NewMemoryLocker()
	now := time.Now()
	l.now = func() time.Time { return now }
	ctx := context.Background()

	l.Acquire(ctx, "mongo1", "run-a", time.Second)
	now = now.Add(2 * time.Second)
	if ok, _ := l.Acquire(ctx, "mongo1", "run-b", time.Second); !ok {
		t.Error("expired lock should be acquirable")
	}
}
