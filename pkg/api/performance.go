package api

import (
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/Sadoklaoo/distributed-database-tradeoff/pkg/benchmark"
	"github.com/Sadoklaoo/distributed-database-tradeoff/pkg/reports"
	"github.com/Sadoklaoo/distributed-database-tradeoff/pkg/store"
)

func (s *Server) handlePerformanceRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, `{"error":"method_not_allowed"}`, http.StatusMethodNotAllowed)
		return
	}
	var cfg benchmark.Config
	if err := decodeJSON(r, &cfg); err != nil {
		http.Error(w, `{"error":"invalid_json_body"}`, http.StatusBadRequest)
		return
	}
	if err := cfg.Validate(); err != nil {
		http.Error(w, fmt.Sprintf(`{"error":"invalid_config","details":%q}`, err.Error()), http.StatusBadRequest)
		return
	}

	res, err := s.benchmarks.Run(r.Context(), cfg)
	if err != nil {
		http.Error(w, fmt.Sprintf(`{"error":"benchmark_failed","details":%q}`, err.Error()), http.StatusInternalServerError)
		return
	}

	var (
		latency    []map[string]any
		throughput []map[string]any
		totalErrs  int
		success    = true
	)
	for name, sr := range res.Stores {
		if sr.Failure != "" {
			success = false
		}
		totalErrs += sr.ErrorCount
		for _, op := range []string{benchmark.OpInsert, benchmark.OpRead, benchmark.OpUpdate} {
			if mean, ok := sr.MeanLatency(op); ok {
				latency = append(latency, map[string]any{
					"store":       name,
					"operation":   op,
					"meanSeconds": mean,
					"batches":     len(sr.Latencies[op]),
				})
			}
		}
		row := map[string]any{
			"store":               name,
			"throughputOpsPerSec": sr.ThroughputOpsPerSec,
			"totalTimeSeconds":    sr.TotalTimeSeconds,
			"errorCount":          sr.ErrorCount,
		}
		if sr.Failure != "" {
			row["failure"] = sr.Failure
		}
		throughput = append(throughput, row)
	}

	summary := map[string]any{
		"operationCount":   cfg.OperationCount,
		"batchSize":        cfg.BatchSize,
		"consistencyLevel": cfg.ConsistencyLevel,
		"testType":         cfg.TestType,
		"totalErrors":      totalErrs,
		"success":          success,
		"wallTimeSeconds":  res.FinishedAt.Sub(res.StartedAt).Seconds(),
	}

	path := s.persistRun(r, store.Run{
		RunID:      uuid.NewString(),
		Kind:       store.KindPerformance,
		StartedAt:  res.StartedAt,
		FinishedAt: res.FinishedAt,
		Success:    success,
		Mode:       "live",
		Summary:    summary,
	}, "performance", summary,
		reports.Series{Name: "latency", Rows: latency},
		reports.Series{Name: "throughput", Rows: throughput},
	)

	writeJSON(w, http.StatusOK, performanceResponse{
		Summary:           summary,
		LatencyMetrics:    latency,
		ThroughputMetrics: throughput,
		DetailedResults:   res,
		ReportPath:        path,
	})
}
