// Package lock provides per-node mutual exclusion so two scenarios never
// manipulate the same container at the same time. The in-memory locker covers
// a single daemon; the Redis locker covers several daemons sharing a cluster.
package lock

import (
	"context"
	"sync"
	"time"
)

// Locker grants exclusive, expiring holds on node names.
type Locker interface {
	// Acquire attempts to take the lock for node on behalf of holder.
	// It returns false without error when someone else holds it.
	Acquire(ctx context.Context, node, holder string, ttl time.Duration) (bool, error)

	// Release frees the lock if, and only if, holder still owns it.
	Release(ctx context.Context, node, holder string) error
}

type memoryHold struct {
	holder  string
	expires time.Time
}

// MemoryLocker is a process-local Locker.
type MemoryLocker struct {
	mu    sync.Mutex
	holds map[string]memoryHold
	now   func() time.Time
}

// NewMemoryLocker creates an empty in-process locker.
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{
		holds: make(map[string]memoryHold),
		now:   time.Now,
	}
}

func (m *MemoryLocker) Acquire(ctx context.Context, node, holder string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if h, ok := m.holds[node]; ok && m.now().Before(h.expires) && h.holder != holder {
		return false, nil
	}
	m.holds[node] = memoryHold{holder: holder, expires: m.now().Add(ttl)}
	return true, nil
}

func (m *MemoryLocker) Release(ctx context.Context, node, holder string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if h, ok := m.holds[node]; ok && h.holder == holder {
		delete(m.holds, node)
	}
	return nil
}
