package driver

import (
	"context"
)

// Store identifiers for the two clusters under test.
const (
	StoreMongoDB   = "mongodb"
	StoreCassandra = "cassandra"
)

// Record is a single row/document with the fixed benchmark schema
// (id, name, status, type, value, timestamp) plus whatever a caller adds.
type Record map[string]interface{}

// Filter matches records by field equality.
type Filter map[string]interface{}

// Patch is the set of fields applied by an update.
type Patch map[string]interface{}

// Driver is the narrow contract the harness needs from a store. Both
// implementations are invoked with a context; the Cassandra driver is
// additionally routed through the worker pool by its callers because gocql
// calls can block past a tick budget.
type Driver interface {
	// Name returns the store identifier (StoreMongoDB or StoreCassandra).
	Name() string

	// Connect establishes the session. Idempotent.
	Connect(ctx context.Context) error

	// EnsureTable creates the table/collection with the fixed benchmark
	// schema if it does not exist. Idempotent.
	EnsureTable(ctx context.Context, table string) error

	// Insert writes one record.
	Insert(ctx context.Context, table string, rec Record) error

	// Find returns all records matching the filter by field equality.
	Find(ctx context.Context, table string, filter Filter) ([]Record, error)

	// Update applies the patch to all records matching the filter.
	Update(ctx context.Context, table string, filter Filter, patch Patch) error

	// Truncate removes all rows from the table. Missing table is not an error.
	Truncate(ctx context.Context, table string) error

	// Close tears down the session.
	Close(ctx context.Context) error
}

// ConsistencySetter is implemented by drivers that can map the benchmark's
// consistency level ("eventual" or "strong") onto a native setting.
type ConsistencySetter interface {
	SetConsistency(level string)
}
