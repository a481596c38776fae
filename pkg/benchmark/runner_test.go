package benchmark

import (
	"context"
	"math"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/Sadoklaoo/distributed-database-tradeoff/pkg/driver"
	"github.com/Sadoklaoo/distributed-database-tradeoff/pkg/workerpool"
)

func mockTargets() (map[string]Target, *driver.Mock, *driver.Mock) {
	mongo := driver.NewMock(driver.StoreMongoDB)
	cass := driver.NewMock(driver.StoreCassandra)
	return map[string]Target{
		driver.StoreMongoDB:   {Driver: mongo},
		driver.StoreCassandra: {Driver: cass},
	}, mongo, cass
}

func TestRunCoversBothStores(t *testing.T) {
	targets, mongo, cass := mockTargets()
	r, err := NewRunner(targets, nil, zap.NewNop())
	if err != nil {
		t.Fatalf("NewRunner failed: %v", err)
	}

	res, err := r.Run(context.Background(), Config{
		OperationCount:   20,
		BatchSize:        5,
		ConsistencyLevel: ConsistencyEventual,
		TestType:         TestMixed,
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	for _, store := range []string{driver.StoreMongoDB, driver.StoreCassandra} {
		sr := res.Stores[store]
		if sr == nil {
			t.Fatalf("missing result for %s", store)
		}
		if sr.Failure != "" {
			t.Fatalf("store %s failed: %s", store, sr.Failure)
		}
		// 20 ops in batches of 5: four insert, read and update series each.
		for _, op := range []string{OpInsert, OpRead, OpUpdate} {
			if got := len(sr.Latencies[op]); got != 4 {
				t.Errorf("store %s op %s: expected 4 batch latencies, got %d", store, op, got)
			}
		}
		if sr.ErrorCount != 0 {
			t.Errorf("store %s: unexpected errors %d", store, sr.ErrorCount)
		}
	}

	if mongo.Inserts != 20 || cass.Inserts != 20 {
		t.Errorf("expected 20 inserts per store, got %d/%d", mongo.Inserts, cass.Inserts)
	}
	if mongo.Consistency != ConsistencyEventual {
		t.Errorf("consistency level not applied, got %q", mongo.Consistency)
	}
	// Teardown before and after the run.
	if mongo.Truncates != 2 {
		t.Errorf("expected two truncates, got %d", mongo.Truncates)
	}
}

func TestThroughputMatchesWallClock(t *testing.T) {
	targets, _, _ := mockTargets()
	r, _ := NewRunner(targets, nil, zap.NewNop())

	res, err := r.Run(context.Background(), Config{
		OperationCount:   50,
		BatchSize:        10,
		ConsistencyLevel: ConsistencyStrong,
		TestType:         TestWrite,
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	for store, sr := range res.Stores {
		want := float64(50) / sr.TotalTimeSeconds
		if math.Abs(sr.ThroughputOpsPerSec-want) > 1e-9 {
			t.Errorf("store %s: throughput %v, want %v", store, sr.ThroughputOpsPerSec, want)
		}
	}
}

func TestSingleBatchWhenBatchSizeExceedsOperationCount(t *testing.T) {
	targets, mongo, _ := mockTargets()
	r, _ := NewRunner(targets, nil, zap.NewNop())

	res, err := r.Run(context.Background(), Config{
		OperationCount:   7,
		BatchSize:        100,
		ConsistencyLevel: ConsistencyEventual,
		TestType:         TestWrite,
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	sr := res.Stores[driver.StoreMongoDB]
	if got := len(sr.Latencies[OpInsert]); got != 1 {
		t.Errorf("expected exactly one insert batch, got %d", got)
	}
	if mongo.Inserts != 7 {
		t.Errorf("expected 7 inserts, got %d", mongo.Inserts)
	}
	// Write-only runs record no read or update latencies.
	if len(sr.Latencies[OpRead]) != 0 || len(sr.Latencies[OpUpdate]) != 0 {
		t.Error("write test type must not run reads or updates")
	}
}

func TestBatchErrorIncrementsCounterAndOmitsLatency(t *testing.T) {
	targets, mongo, _ := mockTargets()
	mongo.FailInsert = true
	r, _ := NewRunner(targets, nil, zap.NewNop())

	res, err := r.Run(context.Background(), Config{
		OperationCount:   10,
		BatchSize:        5,
		ConsistencyLevel: ConsistencyEventual,
		TestType:         TestWrite,
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	sr := res.Stores[driver.StoreMongoDB]
	if sr.ErrorCount != 2 {
		t.Errorf("expected 2 batch errors, got %d", sr.ErrorCount)
	}
	if len(sr.Latencies[OpInsert]) != 0 {
		t.Error("failed batches must not contribute latencies")
	}

	// The sibling store is unaffected.
	other := res.Stores[driver.StoreCassandra]
	if other.ErrorCount != 0 || len(other.Latencies[OpInsert]) != 2 {
		t.Errorf("sibling store affected: errors=%d batches=%d",
			other.ErrorCount, len(other.Latencies[OpInsert]))
	}
}

func TestRunThroughWorkerPool(t *testing.T) {
	pool := workerpool.New("bench-test", 2, 8, zap.NewNop())
	defer pool.Stop(time.Second)

	cass := driver.NewMock(driver.StoreCassandra)
	r, _ := NewRunner(map[string]Target{
		driver.StoreCassandra: {Driver: cass, Pool: pool},
	}, nil, zap.NewNop())

	res, err := r.Run(context.Background(), Config{
		OperationCount:   8,
		BatchSize:        4,
		ConsistencyLevel: ConsistencyEventual,
		TestType:         TestMixed,
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	sr := res.Stores[driver.StoreCassandra]
	if sr.Failure != "" {
		t.Fatalf("store failed: %s", sr.Failure)
	}
	if cass.Inserts != 8 {
		t.Errorf("expected 8 inserts, got %d", cass.Inserts)
	}
}

func TestConfigValidation(t *testing.T) {
	base := Config{OperationCount: 10, BatchSize: 5, ConsistencyLevel: ConsistencyEventual, TestType: TestMixed}
	if err := base.Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	bad := []Config{
		{OperationCount: 0, BatchSize: 5, ConsistencyLevel: ConsistencyEventual, TestType: TestMixed},
		{OperationCount: 10001, BatchSize: 5, ConsistencyLevel: ConsistencyEventual, TestType: TestMixed},
		{OperationCount: 10, BatchSize: 0, ConsistencyLevel: ConsistencyEventual, TestType: TestMixed},
		{OperationCount: 10, BatchSize: 1001, ConsistencyLevel: ConsistencyEventual, TestType: TestMixed},
		{OperationCount: 10, BatchSize: 5, ConsistencyLevel: "linearizable", TestType: TestMixed},
		{OperationCount: 10, BatchSize: 5, ConsistencyLevel: ConsistencyEventual, TestType: "chaos"},
	}
	for i, cfg := range bad {
		if err := cfg.Validate(); err == nil {
			t.Errorf("case %d: expected validation error", i)
		}
	}

	targets, _, _ := mockTargets()
	r, _ := NewRunner(targets, nil, zap.NewNop())
	if _, err := r.Run(context.Background(), bad[0]); err == nil {
		t.Error("Run must reject invalid configs")
	}
}
