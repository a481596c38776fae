package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/Sadoklaoo/distributed-database-tradeoff/pkg/benchmark"
	"github.com/Sadoklaoo/distributed-database-tradeoff/pkg/driver"
	"github.com/Sadoklaoo/distributed-database-tradeoff/pkg/failure"
	"github.com/Sadoklaoo/distributed-database-tradeoff/pkg/infra"
	"github.com/Sadoklaoo/distributed-database-tradeoff/pkg/metrics"
	"github.com/Sadoklaoo/distributed-database-tradeoff/pkg/reports"
	"github.com/Sadoklaoo/distributed-database-tradeoff/pkg/store"
)

// Stub collaborators

type stubScenarios struct {
	lastScenario failure.Scenario
	result       *failure.Result
}

func (s *stubScenarios) Run(ctx context.Context, sc failure.Scenario) *failure.Result {
	s.lastScenario = sc
	if s.result != nil {
		return s.result
	}
	lat := 1.5
	return &failure.Result{
		ScenarioID:        sc.ID,
		Kind:              sc.Kind,
		Targets:           sc.Targets,
		RequestedDuration: sc.DurationSeconds,
		StartedAt:         time.Now().UTC(),
		FinishedAt:        time.Now().UTC(),
		Availability: []failure.AvailabilitySample{
			{Tick: 1, Store: driver.StoreMongoDB, Success: false, Error: "node offline (failure injected)"},
			{Tick: 1, Store: driver.StoreCassandra, Success: true, LatencyMs: &lat},
		},
		Mode:    infra.ModeSynthetic,
		Success: true,
	}
}

type stubBenchmarks struct {
	lastConfig benchmark.Config
}

func (s *stubBenchmarks) Run(ctx context.Context, cfg benchmark.Config) (*benchmark.Result, error) {
	s.lastConfig = cfg
	return &benchmark.Result{
		Config:     cfg,
		StartedAt:  time.Now().UTC().Add(-time.Second),
		FinishedAt: time.Now().UTC(),
		Stores: map[string]*benchmark.StoreResult{
			driver.StoreMongoDB: {
				Store:               driver.StoreMongoDB,
				Latencies:           map[string][]float64{benchmark.OpInsert: {0.01, 0.02}},
				ThroughputOpsPerSec: 500,
				TotalTimeSeconds:    0.04,
			},
			driver.StoreCassandra: {
				Store:               driver.StoreCassandra,
				Latencies:           map[string][]float64{benchmark.OpInsert: {0.03}},
				ThroughputOpsPerSec: 300,
				TotalTimeSeconds:    0.066,
				ErrorCount:          1,
			},
		},
	}, nil
}

type stubRuns struct {
	appended []store.Run
}

func (s *stubRuns) AppendRun(ctx context.Context, run store.Run) error {
	s.appended = append(s.appended, run)
	return nil
}

func (s *stubRuns) RecentRuns(ctx context.Context, limit int) ([]store.Run, error) {
	if limit < len(s.appended) {
		return s.appended[:limit], nil
	}
	return s.appended, nil
}

type stubSink struct {
	saves int
}

func (s *stubSink) Save(prefix string, ts time.Time, summary map[string]any, series ...reports.Series) (string, error) {
	s.saves++
	return "/tmp/" + prefix + ".md", nil
}

type testDeps struct {
	scenarios  *stubScenarios
	benchmarks *stubBenchmarks
	runs       *stubRuns
	sink       *stubSink
	synthetic  *infra.Synthetic
}

func testServer(t *testing.T) (*Server, *testDeps) {
	t.Helper()
	deps := &testDeps{
		scenarios:  &stubScenarios{},
		benchmarks: &stubBenchmarks{},
		runs:       &stubRuns{},
		sink:       &stubSink{},
		synthetic:  infra.NewSynthetic(DefaultKnownNodes, "dbnet"),
	}
	srv := NewServer(Config{
		Scenarios:  deps.scenarios,
		Benchmarks: deps.benchmarks,
		Infra:      deps.synthetic,
		Drivers: map[string]driver.Driver{
			driver.StoreMongoDB: driver.NewMock(driver.StoreMongoDB),
		},
		Runs:   deps.runs,
		Sink:   deps.sink,
		Meters: metrics.NewCollector(),
		Logger: zap.NewNop(),
	})
	return srv, deps
}

func doJSON(t *testing.T, srv *Server, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var rd *bytes.Reader
	if body == "" {
		rd = bytes.NewReader(nil)
	} else {
		rd = bytes.NewReader([]byte(body))
	}
	req := httptest.NewRequest(method, path, rd)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	out := map[string]any{}
	if rec.Body.Len() > 0 {
		_ = json.Unmarshal(rec.Body.Bytes(), &out)
	}
	return rec, out
}

func TestSimulateEndpoint(t *testing.T) {
	srv, deps := testServer(t)

	rec, body := doJSON(t, srv, http.MethodPost, "/failure/simulate",
		`{"failureType":"node","targetNode":"mongo1, mongo2","duration":5,"testOperations":true}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	sc := deps.scenarios.lastScenario
	if sc.Kind != failure.KindNode || sc.DurationSeconds != 5 {
		t.Errorf("scenario not passed through: %+v", sc)
	}
	if len(sc.Targets) != 2 || sc.Targets[1] != "mongo2" {
		t.Errorf("comma list not split: %v", sc.Targets)
	}

	summary, ok := body["summary"].(map[string]any)
	if !ok {
		t.Fatalf("missing summary: %v", body)
	}
	for _, key := range []string{"mongodbDowntime", "cassandraDowntime", "dataLoss", "mode", "success"} {
		if _, ok := summary[key]; !ok {
			t.Errorf("summary missing %q", key)
		}
	}
	if _, ok := body["availabilityMetrics"]; !ok {
		t.Error("missing availabilityMetrics")
	}

	if deps.sink.saves != 1 {
		t.Errorf("expected one report save, got %d", deps.sink.saves)
	}
	if len(deps.runs.appended) != 1 || deps.runs.appended[0].Kind != store.KindFailure {
		t.Errorf("run not recorded: %+v", deps.runs.appended)
	}
}

func TestSimulateRejectsInvalidScenario(t *testing.T) {
	srv, _ := testServer(t)

	rec, _ := doJSON(t, srv, http.MethodPost, "/failure/simulate",
		`{"failureType":"node","targetNode":"mongo1","duration":0}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}

	rec, _ = doJSON(t, srv, http.MethodGet, "/failure/simulate", "")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", rec.Code)
	}
}

func TestContainerUptimes(t *testing.T) {
	srv, _ := testServer(t)

	rec, body := doJSON(t, srv, http.MethodGet, "/failure/container-uptimes?names=mongo1,cassandra1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	uptimes, ok := body["uptimes"].(map[string]any)
	if !ok {
		t.Fatalf("missing uptimes: %v", body)
	}
	entry, ok := uptimes["mongo1"].(map[string]any)
	if !ok {
		t.Fatalf("missing mongo1 entry: %v", uptimes)
	}
	if entry["status"] != "running" {
		t.Errorf("expected running status, got %v", entry["status"])
	}
	if _, ok := entry["seconds"]; !ok {
		t.Error("expected a seconds field")
	}
}

func TestContainerUptimesFreshNodeReportsZeros(t *testing.T) {
	srv, deps := testServer(t)
	ctx := context.Background()

	// A restart resets the clock; the entry must carry explicit zeros.
	if err := deps.synthetic.Stop(ctx, "mongo1"); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if err := deps.synthetic.Start(ctx, "mongo1"); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	// Stopped nodes have no uptime at all.
	if err := deps.synthetic.Stop(ctx, "cassandra2"); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	rec, body := doJSON(t, srv, http.MethodGet, "/failure/container-uptimes?names=mongo1,cassandra2", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	uptimes := body["uptimes"].(map[string]any)

	fresh, ok := uptimes["mongo1"].(map[string]any)
	if !ok {
		t.Fatalf("missing mongo1 entry: %v", uptimes)
	}
	secs, ok := fresh["seconds"].(float64)
	if !ok {
		t.Fatal("just-started node must serialize an explicit seconds field")
	}
	if secs > 5 {
		t.Errorf("expected near-zero uptime, got %v", secs)
	}
	if _, ok := fresh["hours"]; !ok {
		t.Error("just-started node must serialize an explicit hours field")
	}
	if fresh["status"] != "running" {
		t.Errorf("expected running status, got %v", fresh["status"])
	}

	down, ok := uptimes["cassandra2"].(map[string]any)
	if !ok {
		t.Fatalf("missing cassandra2 entry: %v", uptimes)
	}
	if _, ok := down["error"]; !ok {
		t.Error("stopped node must report an error")
	}
	if _, ok := down["seconds"]; ok {
		t.Error("stopped node must not report an uptime")
	}
}

func TestStopRestoresStoppedNodes(t *testing.T) {
	srv, deps := testServer(t)
	deps.synthetic.Stop(context.Background(), "mongo2")
	deps.synthetic.Stop(context.Background(), "cassandra3")

	rec, body := doJSON(t, srv, http.MethodPost, "/failure/stop", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	restored, ok := body["restored"].([]any)
	if !ok {
		t.Fatalf("missing restored list: %v", body)
	}
	if len(restored) != 2 {
		t.Errorf("expected 2 restored nodes, got %v", restored)
	}

	st, _ := deps.synthetic.Status(context.Background(), "mongo2")
	if st.State != infra.StateRunning {
		t.Error("mongo2 should be running after stop endpoint")
	}
}

func TestCapAnalysisIsStatic(t *testing.T) {
	srv, _ := testServer(t)

	rec, body := doJSON(t, srv, http.MethodGet, "/failure/cap-analysis", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	mongo, ok := body["mongodb"].(map[string]any)
	if !ok {
		t.Fatalf("missing mongodb section: %v", body)
	}
	if mongo["capClassification"] != "CP" {
		t.Errorf("expected CP, got %v", mongo["capClassification"])
	}
	cass := body["cassandra"].(map[string]any)
	if cass["capClassification"] != "AP" {
		t.Errorf("expected AP, got %v", cass["capClassification"])
	}
}

func TestPerformanceRunEndpoint(t *testing.T) {
	srv, deps := testServer(t)

	rec, body := doJSON(t, srv, http.MethodPost, "/performance/run",
		`{"operationCount":100,"batchSize":10,"consistencyLevel":"eventual","testType":"mixed"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	if deps.benchmarks.lastConfig.OperationCount != 100 {
		t.Errorf("config not passed through: %+v", deps.benchmarks.lastConfig)
	}
	if _, ok := body["latencyMetrics"]; !ok {
		t.Error("missing latencyMetrics")
	}
	if _, ok := body["throughputMetrics"]; !ok {
		t.Error("missing throughputMetrics")
	}
	summary := body["summary"].(map[string]any)
	if summary["totalErrors"] != float64(1) {
		t.Errorf("expected totalErrors 1, got %v", summary["totalErrors"])
	}
	if len(deps.runs.appended) != 1 || deps.runs.appended[0].Kind != store.KindPerformance {
		t.Errorf("run not recorded: %+v", deps.runs.appended)
	}
}

func TestPerformanceRunValidation(t *testing.T) {
	srv, _ := testServer(t)

	rec, _ := doJSON(t, srv, http.MethodPost, "/performance/run",
		`{"operationCount":0,"batchSize":10,"consistencyLevel":"eventual","testType":"mixed"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestRunsEndpoint(t *testing.T) {
	srv, deps := testServer(t)
	deps.runs.appended = []store.Run{
		{RunID: "r1", Kind: store.KindFailure, Summary: map[string]any{}},
	}

	rec, body := doJSON(t, srv, http.MethodGet, "/runs", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	runs, ok := body["runs"].([]any)
	if !ok || len(runs) != 1 {
		t.Errorf("expected one run, got %v", body["runs"])
	}
}

func TestStorePassthrough(t *testing.T) {
	srv, _ := testServer(t)

	rec, _ := doJSON(t, srv, http.MethodPost, "/store/mongodb/devices",
		`{"id":"d1","name":"Device 1","status":"ACTIVE"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("insert: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	rec, body := doJSON(t, srv, http.MethodGet, "/store/mongodb/devices?status=ACTIVE", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("find: expected 200, got %d", rec.Code)
	}
	if body["count"] != float64(1) {
		t.Errorf("expected 1 record, got %v", body["count"])
	}

	rec, _ = doJSON(t, srv, http.MethodPut, "/store/mongodb/devices",
		`{"filter":{"id":"d1"},"patch":{"status":"INACTIVE"}}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("update: expected 200, got %d", rec.Code)
	}

	rec, _ = doJSON(t, srv, http.MethodDelete, "/store/mongodb/devices", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("truncate: expected 200, got %d", rec.Code)
	}

	rec, _ = doJSON(t, srv, http.MethodGet, "/store/redis/devices", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown store: expected 404, got %d", rec.Code)
	}
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := testServer(t)

	rec, body := doJSON(t, srv, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if body["status"] != "ok" {
		t.Errorf("expected ok, got %v", body["status"])
	}
	if body["mode"] != string(infra.ModeSynthetic) {
		t.Errorf("expected synthetic mode, got %v", body["mode"])
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := testServer(t)

	// A request to generate at least one counter sample.
	doJSON(t, srv, http.MethodGet, "/health", "")

	rec, _ := doJSON(t, srv, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "tradeoff_http_requests_total") {
		t.Error("metrics output missing request counter")
	}
}

func TestRecoveryPanicsBecome500(t *testing.T) {
	srv, deps := testServer(t)
	deps.scenarios.result = nil
	// Replace the benchmark runner with one that panics via nil map write.
	panicking := &panicBenchmarks{}
	srv.benchmarks = panicking

	rec, _ := doJSON(t, srv, http.MethodPost, "/performance/run",
		`{"operationCount":10,"batchSize":5,"consistencyLevel":"eventual","testType":"mixed"}`)
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected 500 from recovered panic, got %d", rec.Code)
	}
}

type panicBenchmarks struct{}

func (p *panicBenchmarks) Run(ctx context.Context, cfg benchmark.Config) (*benchmark.Result, error) {
	panic("benchmark exploded")
}
