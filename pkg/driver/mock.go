package driver

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Mock is an in-memory Driver for tests. Failures and latency are
// configurable per operation kind.
type Mock struct {
	name string

	mu     sync.Mutex
	tables map[string][]Record

	// Latency is applied before every operation.
	Latency time.Duration

	// FailConnect/FailInsert/FailFind/FailUpdate/FailTruncate make the
	// corresponding operation return an error.
	FailConnect  bool
	FailInsert   bool
	FailFind     bool
	FailUpdate   bool
	FailTruncate bool

	// Consistency records the last level passed to SetConsistency.
	Consistency string

	// Counters for assertions.
	Inserts   int
	Finds     int
	Updates   int
	Truncates int
}

// NewMock creates a mock driver reporting the given store name.
func NewMock(name string) *Mock {
	return &Mock{
		name:   name,
		tables: make(map[string][]Record),
	}
}

func (m *Mock) Name() string { return m.name }

func (m *Mock) sleep(ctx context.Context) error {
	if m.Latency <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(m.Latency):
		return nil
	}
}

func (m *Mock) Connect(ctx context.Context) error {
	if m.FailConnect {
		return fmt.Errorf("mock %s: connect failed", m.name)
	}
	return m.sleep(ctx)
}

func (m *Mock) EnsureTable(ctx context.Context, table string) error {
	if err := m.sleep(ctx); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tables[table]; !ok {
		m.tables[table] = nil
	}
	return nil
}

func (m *Mock) Insert(ctx context.Context, table string, rec Record) error {
	if err := m.sleep(ctx); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Inserts++
	if m.FailInsert {
		return fmt.Errorf("mock %s: insert failed", m.name)
	}
	cp := make(Record, len(rec))
	for k, v := range rec {
		cp[k] = v
	}
	m.tables[table] = append(m.tables[table], cp)
	return nil
}

func (m *Mock) Find(ctx context.Context, table string, filter Filter) ([]Record, error) {
	if err := m.sleep(ctx); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Finds++
	if m.FailFind {
		return nil, fmt.Errorf("mock %s: find failed", m.name)
	}
	var out []Record
	for _, rec := range m.tables[table] {
		if matches(rec, filter) {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (m *Mock) Update(ctx context.Context, table string, filter Filter, patch Patch) error {
	if err := m.sleep(ctx); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Updates++
	if m.FailUpdate {
		return fmt.Errorf("mock %s: update failed", m.name)
	}
	for _, rec := range m.tables[table] {
		if matches(rec, filter) {
			for k, v := range patch {
				rec[k] = v
			}
		}
	}
	return nil
}

func (m *Mock) Truncate(ctx context.Context, table string) error {
	if err := m.sleep(ctx); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Truncates++
	if m.FailTruncate {
		return fmt.Errorf("mock %s: truncate failed", m.name)
	}
	m.tables[table] = nil
	return nil
}

func (m *Mock) Close(ctx context.Context) error { return nil }

func (m *Mock) SetConsistency(level string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Consistency = level
}

// Rows returns a copy of the stored rows for a table.
func (m *Mock) Rows(table string) []Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Record, len(m.tables[table]))
	copy(out, m.tables[table])
	return out
}

func matches(rec Record, filter Filter) bool {
	for k, want := range filter {
		if rec[k] != want {
			return false
		}
	}
	return true
}
