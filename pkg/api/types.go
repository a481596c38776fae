package api

import (
	"context"
	"time"

	"github.com/Sadoklaoo/distributed-database-tradeoff/pkg/benchmark"
	"github.com/Sadoklaoo/distributed-database-tradeoff/pkg/failure"
	"github.com/Sadoklaoo/distributed-database-tradeoff/pkg/reports"
	"github.com/Sadoklaoo/distributed-database-tradeoff/pkg/store"
)

// Interfaces for dependencies to enable mocking

type ScenarioRunner interface {
	Run(ctx context.Context, sc failure.Scenario) *failure.Result
}

type BenchmarkRunner interface {
	Run(ctx context.Context, cfg benchmark.Config) (*benchmark.Result, error)
}

type RunStore interface {
	AppendRun(ctx context.Context, run store.Run) error
	RecentRuns(ctx context.Context, limit int) ([]store.Run, error)
}

type ReportSink interface {
	Save(prefix string, timestamp time.Time, summary map[string]any, series ...reports.Series) (string, error)
}

// API request/response structs

type simulateRequest struct {
	FailureType string `json:"failureType"`
	TargetNode  string `json:"targetNode"`
	Duration    int    `json:"duration"`

	// TestOperations is accepted for wire compatibility with older clients.
	// Availability probes run on every monitoring tick regardless, so the
	// flag has no effect.
	TestOperations bool `json:"testOperations"`
}

type simulateResponse struct {
	Summary             map[string]any   `json:"summary"`
	RecoveryMetrics     []map[string]any `json:"recoveryMetrics"`
	AvailabilityMetrics []map[string]any `json:"availabilityMetrics"`
	DetailedResults     *failure.Result  `json:"detailedResults"`
}

type stopResponse struct {
	Restored []string `json:"restored"`
	Failed   []string `json:"failed,omitempty"`
}

type performanceResponse struct {
	Summary           map[string]any    `json:"summary"`
	LatencyMetrics    []map[string]any  `json:"latencyMetrics"`
	ThroughputMetrics []map[string]any  `json:"throughputMetrics"`
	DetailedResults   *benchmark.Result `json:"detailedResults"`
	ReportPath        string            `json:"reportPath,omitempty"`
}

type runsResponse struct {
	Runs []store.Run `json:"runs"`
}
