// Package benchmark runs concurrent synthetic workloads against both store
// clusters and aggregates per-operation latency and throughput.
package benchmark

import (
	"fmt"
	"time"
)

// Operation kinds in the latency mapping.
const (
	OpInsert = "insert"
	OpRead   = "read"
	OpUpdate = "update"
)

// Test types select which timed operations run per batch.
const (
	TestMixed  = "mixed"
	TestRead   = "read"
	TestWrite  = "write"
	TestUpdate = "update"
)

// Consistency levels accepted from the API and mapped onto each driver.
const (
	ConsistencyEventual = "eventual"
	ConsistencyStrong   = "strong"
)

// Bounds on one benchmark run.
const (
	MinOperations = 1
	MaxOperations = 10000
	MinBatchSize  = 1
	MaxBatchSize  = 1000
)

// Config describes one benchmark run, shared by both stores.
type Config struct {
	OperationCount   int    `json:"operationCount"`
	BatchSize        int    `json:"batchSize"`
	ConsistencyLevel string `json:"consistencyLevel"`
	TestType         string `json:"testType"`
}

// Validate rejects malformed configurations before any store is touched.
func (c Config) Validate() error {
	if c.OperationCount < MinOperations || c.OperationCount > MaxOperations {
		return fmt.Errorf("operationCount must be between %d and %d, got %d",
			MinOperations, MaxOperations, c.OperationCount)
	}
	if c.BatchSize < MinBatchSize || c.BatchSize > MaxBatchSize {
		return fmt.Errorf("batchSize must be between %d and %d, got %d",
			MinBatchSize, MaxBatchSize, c.BatchSize)
	}
	switch c.ConsistencyLevel {
	case ConsistencyEventual, ConsistencyStrong:
	default:
		return fmt.Errorf("unknown consistency level %q", c.ConsistencyLevel)
	}
	switch c.TestType {
	case TestMixed, TestRead, TestWrite, TestUpdate:
	default:
		return fmt.Errorf("unknown test type %q", c.TestType)
	}
	return nil
}

// StoreResult aggregates one store's run.
type StoreResult struct {
	Store string `json:"store"`

	// Latencies holds per-batch timings in seconds, keyed by operation kind.
	// A batch that errored is absent from the series, not zero-filled.
	Latencies map[string][]float64 `json:"latencies"`

	ThroughputOpsPerSec float64 `json:"throughputOpsPerSec"`
	ErrorCount          int     `json:"errorCount"`
	TotalTimeSeconds    float64 `json:"totalTimeSeconds"`

	// Failure is set when the store's whole task failed (connect error,
	// panic); the sibling store's result is unaffected.
	Failure string `json:"failure,omitempty"`
}

// MeanLatency returns the mean for one operation kind, or 0 with ok=false
// when no batch of that kind succeeded.
func (r *StoreResult) MeanLatency(op string) (float64, bool) {
	series := r.Latencies[op]
	if len(series) == 0 {
		return 0, false
	}
	var sum float64
	for _, v := range series {
		sum += v
	}
	return sum / float64(len(series)), true
}

// Result is the outcome of one run across both stores.
type Result struct {
	Config     Config                  `json:"config"`
	StartedAt  time.Time               `json:"startedAt"`
	FinishedAt time.Time               `json:"finishedAt"`
	Stores     map[string]*StoreResult `json:"stores"`
}
