package failure

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Sadoklaoo/distributed-database-tradeoff/pkg/infra"
	"github.com/Sadoklaoo/distributed-database-tradeoff/pkg/lock"
	"github.com/Sadoklaoo/distributed-database-tradeoff/pkg/metrics"
	"github.com/Sadoklaoo/distributed-database-tradeoff/pkg/probe"
)

// Prober is the slice of a store probe the runner needs.
type Prober interface {
	Probe(ctx context.Context) probe.Result
}

// Config wires a Runner.
type Config struct {
	Infra  infra.Controller
	Probes map[string]Prober // store name -> prober
	Locker lock.Locker
	Meters *metrics.Collector
	Logger *zap.Logger

	// TickInterval is the wall-clock length of one logical second.
	// Production uses the default of one second; tests shrink it.
	TickInterval time.Duration

	// LockTTL bounds how long a crashed scenario can keep nodes locked.
	LockTTL time.Duration
}

// Runner executes failure scenarios one state-machine phase at a time.
type Runner struct {
	infra   infra.Controller
	probes  map[string]Prober
	locker  lock.Locker
	meters  *metrics.Collector
	logger  *zap.Logger
	tick    time.Duration
	lockTTL time.Duration
}

// NewRunner validates the wiring and builds a Runner.
func NewRunner(cfg Config) (*Runner, error) {
	if cfg.Infra == nil {
		return nil, fmt.Errorf("infrastructure controller is required")
	}
	if len(cfg.Probes) == 0 {
		return nil, fmt.Errorf("at least one store probe is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	locker := cfg.Locker
	if locker == nil {
		locker = lock.NewMemoryLocker()
	}
	tick := cfg.TickInterval
	if tick <= 0 {
		tick = time.Second
	}
	ttl := cfg.LockTTL
	if ttl <= 0 {
		// Monitoring plus the recovery ceiling, with headroom.
		ttl = (MaxDurationSeconds + 2*RecoveryCeilingTicks) * time.Second
	}
	return &Runner{
		infra:   cfg.Infra,
		probes:  cfg.Probes,
		locker:  locker,
		meters:  cfg.Meters,
		logger:  logger,
		tick:    tick,
		lockTTL: ttl,
	}, nil
}

// Run executes one scenario to completion. It never returns a Go error:
// failures are typed into the Result so callers always get a full outcome.
func (r *Runner) Run(ctx context.Context, sc Scenario) *Result {
	if sc.ID == "" {
		sc.ID = uuid.NewString()
	}
	res := &Result{
		ScenarioID:        sc.ID,
		Kind:              sc.Kind,
		Targets:           sc.Targets,
		RequestedDuration: sc.DurationSeconds,
		StartedAt:         time.Now().UTC(),
		Mode:              r.infra.Mode(),
	}
	logger := r.logger.With(
		zap.String("scenario", sc.ID),
		zap.String("kind", string(sc.Kind)),
		zap.Strings("targets", sc.Targets))

	defer func() {
		res.FinishedAt = time.Now().UTC()
		res.ActualDuration = res.FinishedAt.Sub(res.StartedAt).Seconds()
		res.Mode = r.infra.Mode()
		r.countScenario(sc, res)
		logger.Info("scenario finished",
			zap.Bool("success", res.Success),
			zap.Float64("actualDuration", res.ActualDuration),
			zap.Strings("errors", res.Errors))
	}()

	res.Phase = PhaseIdle
	if err := sc.Validate(); err != nil {
		return r.fail(res, fmt.Errorf("validation: %w", err))
	}

	// Preparing: take the locks and resolve everything before touching
	// any node.
	r.setPhase(res, PhasePreparing, logger)
	locked, err := r.acquireLocks(ctx, sc)
	if err != nil {
		return r.fail(res, err)
	}
	defer r.releaseLocks(sc, locked)

	logger.Info("scenario starting", zap.Int("duration", sc.DurationSeconds))
	var networkName string
	if sc.Kind == KindNetwork {
		networkName, err = r.infra.ResolveNetwork(ctx, sc.Targets[0])
		if err != nil {
			return r.fail(res, fmt.Errorf("network resolution failed: %w", err))
		}
	}

	// Injecting, all-or-nothing.
	r.setPhase(res, PhaseInjecting, logger)
	if err := r.inject(ctx, sc, networkName, logger); err != nil {
		return r.fail(res, err)
	}

	r.setPhase(res, PhaseMonitoring, logger)
	r.monitor(ctx, sc, res, logger)

	r.setPhase(res, PhaseRestoring, logger)
	r.restore(sc, networkName, res, logger)

	if sc.Kind == KindNode {
		r.setPhase(res, PhaseRecoveryWatch, logger)
		r.watchRecovery(sc, res, logger)
	}

	r.setPhase(res, PhaseCompleted, logger)
	res.Success = true
	return res
}

func (r *Runner) setPhase(res *Result, p Phase, logger *zap.Logger) {
	res.Phase = p
	logger.Debug("phase change", zap.String("phase", string(p)))
}

func (r *Runner) fail(res *Result, err error) *Result {
	res.Success = false
	res.Errors = append(res.Errors, err.Error())
	return res
}

func (r *Runner) countScenario(sc Scenario, res *Result) {
	if r.meters == nil {
		return
	}
	outcome := "failed"
	if res.Success {
		outcome = "completed"
	}
	r.meters.ScenariosTotal.WithLabelValues(string(sc.Kind), outcome).Inc()
	if res.RecoveryTimeSeconds != nil {
		r.meters.RecoverySeconds.Observe(*res.RecoveryTimeSeconds)
	}
}

func (r *Runner) acquireLocks(ctx context.Context, sc Scenario) ([]string, error) {
	var locked []string
	for _, node := range sc.Targets {
		ok, err := r.locker.Acquire(ctx, node, sc.ID, r.lockTTL)
		if err == nil && !ok {
			err = fmt.Errorf("node %s is locked by another scenario", node)
		}
		if err != nil {
			r.releaseLocks(sc, locked)
			return nil, err
		}
		locked = append(locked, node)
	}
	return locked, nil
}

func (r *Runner) releaseLocks(sc Scenario, locked []string) {
	for _, node := range locked {
		// Best effort with a fresh context: the scenario context may be done.
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := r.locker.Release(ctx, node, sc.ID); err != nil {
			r.logger.Warn("node lock release failed",
				zap.String("node", node), zap.Error(err))
		}
		cancel()
	}
}

// inject applies the failure to every target. On a partial failure the
// already-mutated prefix is rolled back before the error is returned.
func (r *Runner) inject(ctx context.Context, sc Scenario, networkName string, logger *zap.Logger) error {
	for i, node := range sc.Targets {
		var err error
		switch sc.Kind {
		case KindNode:
			err = r.infra.Stop(ctx, node)
		case KindNetwork:
			err = r.infra.Disconnect(ctx, node, networkName)
		}
		if err == nil {
			continue
		}
		logger.Error("injection failed, rolling back",
			zap.String("node", node), zap.Error(err))
		r.rollback(sc, sc.Targets[:i], networkName, logger)
		return fmt.Errorf("injection failed on %s: %w", node, err)
	}
	return nil
}

func (r *Runner) rollback(sc Scenario, mutated []string, networkName string, logger *zap.Logger) {
	for i := len(mutated) - 1; i >= 0; i-- {
		node := mutated[i]
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		var err error
		switch sc.Kind {
		case KindNode:
			err = r.infra.Start(ctx, node)
		case KindNetwork:
			err = r.infra.Connect(ctx, node, networkName)
		}
		cancel()
		if err != nil {
			logger.Error("rollback failed", zap.String("node", node), zap.Error(err))
		}
	}
}

// monitor runs exactly DurationSeconds ticks, probing both stores
// concurrently each tick. Samples for a targeted store are overridden to
// failure so live and synthetic runs report the outage identically.
func (r *Runner) monitor(ctx context.Context, sc Scenario, res *Result, logger *zap.Logger) {
	targeted := make(map[string]bool)
	for _, node := range sc.Targets {
		if store := StoreOf(node); store != "" {
			targeted[store] = true
		}
	}

	for tick := 1; tick <= sc.DurationSeconds; tick++ {
		samples := r.probeAll(ctx, tick, targeted)
		res.Availability = append(res.Availability, samples...)

		if !r.waitTick(ctx) {
			res.Errors = append(res.Errors, fmt.Sprintf(
				"monitoring cancelled at tick %d: %v", tick, ctx.Err()))
			// Pad the series so downstream aggregation still sees a full
			// sample grid, then move on to restoration.
			for t := tick + 1; t <= sc.DurationSeconds; t++ {
				for store := range r.probes {
					res.Availability = append(res.Availability, AvailabilitySample{
						Tick: t, Store: store, Error: "monitoring cancelled",
					})
				}
			}
			return
		}
	}
}

// probeAll probes every store concurrently and returns one sample per store,
// in stable store order within the tick.
func (r *Runner) probeAll(ctx context.Context, tick int, targeted map[string]bool) []AvailabilitySample {
	type keyed struct {
		store  string
		sample AvailabilitySample
	}
	ch := make(chan keyed, len(r.probes))
	var wg sync.WaitGroup
	for store, p := range r.probes {
		if targeted[store] {
			ch <- keyed{store: store, sample: AvailabilitySample{
				Tick:    tick,
				Store:   store,
				Success: false,
				Error:   "node offline (failure injected)",
			}}
			continue
		}
		wg.Add(1)
		go func(store string, p Prober) {
			defer wg.Done()
			pr := p.Probe(ctx)
			ch <- keyed{store: store, sample: AvailabilitySample{
				Tick:      tick,
				Store:     store,
				Success:   pr.Success,
				LatencyMs: pr.LatencyMs,
				Error:     pr.Err,
			}}
		}(store, p)
	}
	wg.Wait()
	close(ch)

	byStore := make(map[string]AvailabilitySample, len(r.probes))
	for k := range ch {
		byStore[k.store] = k.sample
	}
	out := make([]AvailabilitySample, 0, len(byStore))
	for _, store := range sortedStores(byStore) {
		s := byStore[store]
		out = append(out, s)
		r.countProbe(s)
	}
	return out
}

func (r *Runner) countProbe(s AvailabilitySample) {
	if r.meters == nil {
		return
	}
	result := "failure"
	if s.Success {
		result = "success"
		if s.LatencyMs != nil {
			r.meters.ProbeLatency.WithLabelValues(s.Store).Observe(*s.LatencyMs / 1000)
		}
	}
	r.meters.ProbesTotal.WithLabelValues(s.Store, result).Inc()
}

// restore always runs on fresh contexts: the scenario context may have been
// cancelled mid-monitoring, and an injected failure must still be reversed.
func (r *Runner) restore(sc Scenario, networkName string, res *Result, logger *zap.Logger) {
	for _, node := range sc.Targets {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		var err error
		switch sc.Kind {
		case KindNode:
			err = r.infra.Start(ctx, node)
		case KindNetwork:
			err = r.infra.Connect(ctx, node, networkName)
		}
		cancel()
		if err != nil {
			logger.Error("restoration failed", zap.String("node", node), zap.Error(err))
			res.Errors = append(res.Errors, fmt.Sprintf("restoration of %s failed: %v", node, err))
		}
	}
}

// watchRecovery polls restarted nodes for up to the ceiling, stopping as soon
// as every target reports running. Like restore it is detached from the
// scenario context; the ceiling alone bounds it.
func (r *Runner) watchRecovery(sc Scenario, res *Result, logger *zap.Logger) {
	start := time.Now()
	for tick := 1; tick <= RecoveryCeilingTicks; tick++ {
		online := true
		for _, node := range sc.Targets {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			st, err := r.infra.Status(ctx, node)
			cancel()
			if err != nil || st.State != infra.StateRunning {
				online = false
				break
			}
		}
		res.Recovery = append(res.Recovery, RecoverySample{Tick: tick, Online: online})
		if online {
			elapsed := time.Since(start).Seconds()
			if elapsed > RecoveryCeilingTicks {
				elapsed = RecoveryCeilingTicks
			}
			res.RecoveryTimeSeconds = &elapsed
			logger.Info("targets recovered",
				zap.Int("ticks", tick), zap.Float64("seconds", elapsed))
			return
		}
		time.Sleep(r.tick)
	}
	ceiling := float64(RecoveryCeilingTicks)
	res.RecoveryTimeSeconds = &ceiling
	res.RecoveryIncomplete = true
	res.Errors = append(res.Errors, fmt.Sprintf(
		"recovery not observed within %d ticks", RecoveryCeilingTicks))
}

// waitTick sleeps one logical second, honoring cancellation.
func (r *Runner) waitTick(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(r.tick):
		return true
	}
}

func sortedStores(m map[string]AvailabilitySample) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
