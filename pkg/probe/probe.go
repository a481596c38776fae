// Package probe measures store availability with a short write-then-read
// round trip. A probe never returns a Go error: every outcome, including a
// timeout, is a data point in the availability series.
package probe

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Sadoklaoo/distributed-database-tradeoff/pkg/driver"
	"github.com/Sadoklaoo/distributed-database-tradeoff/pkg/workerpool"
)

const (
	defaultTable   = "health_check"
	defaultTimeout = 2 * time.Second
)

// Result is one availability sample for one store.
type Result struct {
	Store     string   `json:"store"`
	Success   bool     `json:"success"`
	LatencyMs *float64 `json:"latencyMs,omitempty"`
	Err       string   `json:"error,omitempty"`
}

// Prober issues health probes against a single store.
type Prober struct {
	store   string
	drv     driver.Driver
	pool    *workerpool.Pool // nil means call the driver directly
	table   string
	timeout time.Duration
	logger  *zap.Logger
}

// Option customizes a Prober.
type Option func(*Prober)

// WithTable overrides the probe table name.
func WithTable(table string) Option {
	return func(p *Prober) { p.table = table }
}

// WithTimeout overrides the per-probe deadline.
func WithTimeout(d time.Duration) Option {
	return func(p *Prober) { p.timeout = d }
}

// WithPool routes driver calls through a worker pool. Used for drivers whose
// client blocks without honoring context deadlines.
func WithPool(pool *workerpool.Pool) Option {
	return func(p *Prober) { p.pool = pool }
}

// New builds a Prober for the named store.
func New(store string, drv driver.Driver, logger *zap.Logger, opts ...Option) *Prober {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Prober{
		store:   store,
		drv:     drv,
		table:   defaultTable,
		timeout: defaultTimeout,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Store returns the store name this prober targets.
func (p *Prober) Store() string { return p.store }

// Probe writes a marker record and reads it back, timing the round trip.
func (p *Prober) Probe(ctx context.Context) Result {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	id := uuid.NewString()
	rec := driver.Record{
		"id":        id,
		"name":      "probe",
		"status":    "ACTIVE",
		"type":      "probe",
		"value":     0.0,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}

	start := time.Now()
	err := p.call(ctx, func(ctx context.Context) error {
		if err := p.drv.Insert(ctx, p.table, rec); err != nil {
			return fmt.Errorf("insert: %w", err)
		}
		rows, err := p.drv.Find(ctx, p.table, driver.Filter{"id": id})
		if err != nil {
			return fmt.Errorf("find: %w", err)
		}
		if len(rows) == 0 {
			return fmt.Errorf("probe record %s not found", id)
		}
		return nil
	})
	elapsed := float64(time.Since(start)) / float64(time.Millisecond)

	if err != nil {
		p.logger.Debug("probe failed",
			zap.String("store", p.store), zap.Error(err))
		return Result{Store: p.store, Success: false, Err: err.Error()}
	}
	return Result{Store: p.store, Success: true, LatencyMs: &elapsed}
}

func (p *Prober) call(ctx context.Context, fn func(context.Context) error) error {
	if p.pool == nil {
		return fn(ctx)
	}
	_, err := p.pool.Do(ctx, func(ctx context.Context) (interface{}, error) {
		return nil, fn(ctx)
	})
	return err
}
