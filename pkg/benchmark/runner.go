package benchmark

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Sadoklaoo/distributed-database-tradeoff/pkg/driver"
	"github.com/Sadoklaoo/distributed-database-tradeoff/pkg/metrics"
	"github.com/Sadoklaoo/distributed-database-tradeoff/pkg/workerpool"
)

const benchTable = "performance_test"

var (
	statuses    = []string{"ACTIVE", "INACTIVE", "MAINTENANCE"}
	deviceTypes = []string{"sensor", "actuator", "controller"}
)

// Target binds a store driver to the runner. Pool is nil for drivers that
// honor context deadlines natively; blocking drivers get their calls routed
// through the pool.
type Target struct {
	Driver driver.Driver
	Pool   *workerpool.Pool
}

// Runner executes benchmark runs over a fixed set of store targets.
type Runner struct {
	targets map[string]Target
	meters  *metrics.Collector
	logger  *zap.Logger
}

// NewRunner validates the wiring and builds a Runner.
func NewRunner(targets map[string]Target, meters *metrics.Collector, logger *zap.Logger) (*Runner, error) {
	if len(targets) == 0 {
		return nil, fmt.Errorf("at least one store target is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{targets: targets, meters: meters, logger: logger}, nil
}

// Run executes the benchmark against every target concurrently. Wall time is
// roughly the slowest store, not the sum. A failing store yields a typed
// failure in its own result and never aborts the sibling.
func (r *Runner) Run(ctx context.Context, cfg Config) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	res := &Result{
		Config:    cfg,
		StartedAt: time.Now().UTC(),
		Stores:    make(map[string]*StoreResult, len(r.targets)),
	}

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for store, target := range r.targets {
		wg.Add(1)
		go func(store string, target Target) {
			defer wg.Done()
			sr := r.runStore(ctx, store, target, cfg)
			mu.Lock()
			res.Stores[store] = sr
			mu.Unlock()
		}(store, target)
	}
	wg.Wait()

	res.FinishedAt = time.Now().UTC()
	return res, nil
}

// runStore executes the whole workload for one store. Panics in driver code
// become a store-level failure.
func (r *Runner) runStore(ctx context.Context, store string, target Target, cfg Config) (sr *StoreResult) {
	sr = &StoreResult{
		Store:     store,
		Latencies: make(map[string][]float64),
	}
	logger := r.logger.With(zap.String("store", store))

	defer func() {
		if rec := recover(); rec != nil {
			sr.Failure = fmt.Sprintf("benchmark task panicked: %v", rec)
			logger.Error("benchmark task panic", zap.Any("panic", rec))
		}
	}()

	if cs, ok := target.Driver.(driver.ConsistencySetter); ok {
		cs.SetConsistency(cfg.ConsistencyLevel)
	}

	call := func(ctx context.Context, fn func(context.Context) error) error {
		if target.Pool == nil {
			return fn(ctx)
		}
		_, err := target.Pool.Do(ctx, func(ctx context.Context) (interface{}, error) {
			return nil, fn(ctx)
		})
		return err
	}

	if err := call(ctx, func(ctx context.Context) error {
		return target.Driver.EnsureTable(ctx, benchTable)
	}); err != nil {
		sr.Failure = fmt.Sprintf("table setup failed: %v", err)
		return sr
	}

	r.teardown(ctx, store, target, call, logger)
	defer r.teardown(ctx, store, target, call, logger)

	// Record generation is untimed.
	records := generateRecords(cfg.OperationCount)

	start := time.Now()
	for batchStart := 0; batchStart < len(records); batchStart += cfg.BatchSize {
		end := batchStart + cfg.BatchSize
		if end > len(records) {
			end = len(records)
		}
		batch := records[batchStart:end]

		r.timedBatch(ctx, sr, store, OpInsert, len(batch), func() error {
			return call(ctx, func(ctx context.Context) error {
				for _, rec := range batch {
					if err := target.Driver.Insert(ctx, benchTable, rec); err != nil {
						return err
					}
				}
				return nil
			})
		})

		if cfg.TestType == TestMixed || cfg.TestType == TestRead {
			r.timedBatch(ctx, sr, store, OpRead, len(batch), func() error {
				return call(ctx, func(ctx context.Context) error {
					_, err := target.Driver.Find(ctx, benchTable, driver.Filter{"status": "ACTIVE"})
					return err
				})
			})
		}

		if cfg.TestType == TestMixed || cfg.TestType == TestUpdate {
			r.timedBatch(ctx, sr, store, OpUpdate, len(batch), func() error {
				return call(ctx, func(ctx context.Context) error {
					for _, rec := range batch {
						err := target.Driver.Update(ctx, benchTable,
							driver.Filter{"id": rec["id"]},
							driver.Patch{"status": "INACTIVE"})
						if err != nil {
							return err
						}
					}
					return nil
				})
			})
		}
	}
	sr.TotalTimeSeconds = time.Since(start).Seconds()

	if sr.TotalTimeSeconds > 0 {
		sr.ThroughputOpsPerSec = float64(cfg.OperationCount) / sr.TotalTimeSeconds
	}
	if r.meters != nil {
		r.meters.BenchThroughput.WithLabelValues(store).Set(sr.ThroughputOpsPerSec)
	}
	logger.Info("benchmark store run finished",
		zap.Float64("throughput", sr.ThroughputOpsPerSec),
		zap.Int("errors", sr.ErrorCount),
		zap.Float64("seconds", sr.TotalTimeSeconds))
	return sr
}

// timedBatch times one batch-level operation. An error counts once and the
// batch's latency is omitted from the series.
func (r *Runner) timedBatch(ctx context.Context, sr *StoreResult, store, op string, size int, fn func() error) {
	start := time.Now()
	err := fn()
	elapsed := time.Since(start).Seconds()

	if err != nil {
		sr.ErrorCount++
		if r.meters != nil {
			r.meters.BenchOpsTotal.WithLabelValues(store, op, "failure").Add(float64(size))
		}
		r.logger.Debug("benchmark batch failed",
			zap.String("store", store), zap.String("op", op), zap.Error(err))
		return
	}
	sr.Latencies[op] = append(sr.Latencies[op], elapsed)
	if r.meters != nil {
		r.meters.BenchOpsTotal.WithLabelValues(store, op, "success").Add(float64(size))
		r.meters.BenchOpLatency.WithLabelValues(store, op).Observe(elapsed)
	}
}

// teardown truncates the benchmark table so every run starts and ends empty.
// Failure is logged, never fatal.
func (r *Runner) teardown(ctx context.Context, store string, target Target, call func(context.Context, func(context.Context) error) error, logger *zap.Logger) {
	err := call(ctx, func(ctx context.Context) error {
		return target.Driver.Truncate(ctx, benchTable)
	})
	if err != nil {
		logger.Warn("benchmark teardown failed", zap.Error(err))
	}
}

func generateRecords(n int) []driver.Record {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	out := make([]driver.Record, n)
	now := time.Now().UTC().Format(time.RFC3339)
	for i := range out {
		out[i] = driver.Record{
			"id":        uuid.NewString(),
			"name":      fmt.Sprintf("Device %d", i),
			"status":    statuses[rng.Intn(len(statuses))],
			"type":      deviceTypes[rng.Intn(len(deviceTypes))],
			"value":     rng.Float64() * 100,
			"timestamp": now,
		}
	}
	return out
}
