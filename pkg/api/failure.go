package api

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Sadoklaoo/distributed-database-tradeoff/pkg/driver"
	"github.com/Sadoklaoo/distributed-database-tradeoff/pkg/failure"
	"github.com/Sadoklaoo/distributed-database-tradeoff/pkg/infra"
	"github.com/Sadoklaoo/distributed-database-tradeoff/pkg/reports"
	"github.com/Sadoklaoo/distributed-database-tradeoff/pkg/store"
)

func (s *Server) handleSimulate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, `{"error":"method_not_allowed"}`, http.StatusMethodNotAllowed)
		return
	}
	var req simulateRequest
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, `{"error":"invalid_json_body"}`, http.StatusBadRequest)
		return
	}

	var targets []string
	for _, t := range strings.Split(req.TargetNode, ",") {
		if t = strings.TrimSpace(t); t != "" {
			targets = append(targets, t)
		}
	}
	sc := failure.Scenario{
		ID:              uuid.NewString(),
		Kind:            failure.Kind(req.FailureType),
		Targets:         targets,
		DurationSeconds: req.Duration,
	}
	if err := sc.Validate(); err != nil {
		http.Error(w, fmt.Sprintf(`{"error":"invalid_scenario","details":%q}`, err.Error()), http.StatusBadRequest)
		return
	}

	res := s.scenarios.Run(r.Context(), sc)

	recovery := make([]map[string]any, 0, len(res.Recovery))
	for _, rs := range res.Recovery {
		recovery = append(recovery, map[string]any{
			"tick":        rs.Tick,
			"storeOnline": rs.Online,
		})
	}
	availability := make([]map[string]any, 0, len(res.Availability))
	for _, as := range res.Availability {
		row := map[string]any{
			"tick":    as.Tick,
			"store":   as.Store,
			"success": as.Success,
		}
		if as.LatencyMs != nil {
			row["latencyMs"] = *as.LatencyMs
		}
		if as.Error != "" {
			row["error"] = as.Error
		}
		availability = append(availability, row)
	}

	summary := map[string]any{
		"failureType":       string(res.Kind),
		"targets":           res.Targets,
		"mongodbDowntime":   res.Downtime(driver.StoreMongoDB),
		"cassandraDowntime": res.Downtime(driver.StoreCassandra),
		"dataLoss":          res.DataLoss,
		"mode":              string(res.Mode),
		"success":           res.Success,
		"actualDuration":    res.ActualDuration,
	}
	if res.RecoveryTimeSeconds != nil {
		summary["recoveryTime"] = *res.RecoveryTimeSeconds
	}

	s.persistRun(r, store.Run{
		RunID:      res.ScenarioID,
		Kind:       store.KindFailure,
		StartedAt:  res.StartedAt,
		FinishedAt: res.FinishedAt,
		Success:    res.Success,
		Mode:       string(res.Mode),
		Summary:    summary,
	}, "failure", summary,
		reports.Series{Name: "availability", Rows: availability},
		reports.Series{Name: "recovery", Rows: recovery},
	)

	writeJSON(w, http.StatusOK, simulateResponse{
		Summary:             summary,
		RecoveryMetrics:     recovery,
		AvailabilityMetrics: availability,
		DetailedResults:     res,
	})
}

func (s *Server) handleContainerUptimes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, `{"error":"method_not_allowed"}`, http.StatusMethodNotAllowed)
		return
	}
	var names []string
	for _, n := range strings.Split(r.URL.Query().Get("names"), ",") {
		if n = strings.TrimSpace(n); n != "" {
			names = append(names, n)
		}
	}
	if len(names) == 0 {
		names = s.knownNodes
	}

	// A just-started node reports explicit zeros, not an empty object, so
	// the entry shape only varies on error.
	uptimes := make(map[string]map[string]any, len(names))
	for _, name := range names {
		up, err := s.infra.Uptime(r.Context(), name)
		if err != nil {
			uptimes[name] = map[string]any{"error": err.Error()}
			continue
		}
		st, err := s.infra.Status(r.Context(), name)
		status := "unknown"
		if err == nil {
			status = st.State.String()
		}
		uptimes[name] = map[string]any{
			"seconds": up.Seconds(),
			"hours":   up.Hours(),
			"status":  status,
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"uptimes": uptimes, "mode": string(s.infra.Mode())})
}

// handleStop restarts every node in the fixed known set, best effort.
func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, `{"error":"method_not_allowed"}`, http.StatusMethodNotAllowed)
		return
	}
	resp := stopResponse{Restored: []string{}}
	for _, node := range s.knownNodes {
		st, err := s.infra.Status(r.Context(), node)
		if err == nil && st.State == infra.StateRunning {
			continue
		}
		if err := s.infra.Start(r.Context(), node); err != nil {
			s.logger.Warn("node restart failed", zap.String("node", node), zap.Error(err))
			resp.Failed = append(resp.Failed, node)
			continue
		}
		resp.Restored = append(resp.Restored, node)
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleCapAnalysis serves the static trade-off scorecard. Qualitative
// reference material, not computed from live runs.
func (s *Server) handleCapAnalysis(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, `{"error":"method_not_allowed"}`, http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, capAnalysis)
}

var capAnalysis = map[string]any{
	"mongodb": map[string]any{
		"consistency": map[string]any{
			"level":       "Strong",
			"description": "ACID transactions with replica set consistency",
			"score":       90,
		},
		"availability": map[string]any{
			"level":       "High",
			"description": "Automatic failover with replica sets",
			"score":       75,
		},
		"partitionTolerance": map[string]any{
			"level":       "High",
			"description": "Handles network partitions with replica sets",
			"score":       85,
		},
		"capClassification": "CP",
	},
	"cassandra": map[string]any{
		"consistency": map[string]any{
			"level":       "Tunable",
			"description": "Configurable consistency levels",
			"score":       60,
		},
		"availability": map[string]any{
			"level":       "Very High",
			"description": "No single point of failure",
			"score":       95,
		},
		"partitionTolerance": map[string]any{
			"level":       "Very High",
			"description": "Designed for network partitions",
			"score":       95,
		},
		"capClassification": "AP",
	},
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, `{"error":"method_not_allowed"}`, http.StatusMethodNotAllowed)
		return
	}
	if s.runs == nil {
		writeJSON(w, http.StatusOK, runsResponse{Runs: []store.Run{}})
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		fmt.Sscanf(v, "%d", &limit)
	}
	runs, err := s.runs.RecentRuns(r.Context(), limit)
	if err != nil {
		s.logger.Error("run history query failed", zap.Error(err))
		http.Error(w, `{"error":"run_history_unavailable"}`, http.StatusInternalServerError)
		return
	}
	if runs == nil {
		runs = []store.Run{}
	}
	writeJSON(w, http.StatusOK, runsResponse{Runs: runs})
}

// persistRun saves the report files and appends the run record. Both are
// best effort: a broken sink never fails the API response.
func (s *Server) persistRun(r *http.Request, run store.Run, prefix string, summary map[string]any, series ...reports.Series) string {
	var path string
	if s.sink != nil {
		var err error
		path, err = s.sink.Save(prefix, time.Now(), summary, series...)
		if err != nil {
			s.logger.Warn("report save failed", zap.Error(err))
		}
	}
	if s.runs != nil {
		if err := s.runs.AppendRun(r.Context(), run); err != nil {
			s.logger.Warn("run history append failed", zap.Error(err))
		}
	}
	return path
}
