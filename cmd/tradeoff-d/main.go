package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Sadoklaoo/distributed-database-tradeoff/pkg/api"
	"github.com/Sadoklaoo/distributed-database-tradeoff/pkg/benchmark"
	"github.com/Sadoklaoo/distributed-database-tradeoff/pkg/driver"
	"github.com/Sadoklaoo/distributed-database-tradeoff/pkg/driver/cassandra"
	"github.com/Sadoklaoo/distributed-database-tradeoff/pkg/driver/mongo"
	"github.com/Sadoklaoo/distributed-database-tradeoff/pkg/failure"
	"github.com/Sadoklaoo/distributed-database-tradeoff/pkg/infra"
	"github.com/Sadoklaoo/distributed-database-tradeoff/pkg/lock"
	"github.com/Sadoklaoo/distributed-database-tradeoff/pkg/metrics"
	"github.com/Sadoklaoo/distributed-database-tradeoff/pkg/probe"
	"github.com/Sadoklaoo/distributed-database-tradeoff/pkg/reports"
	"github.com/Sadoklaoo/distributed-database-tradeoff/pkg/store"
	"github.com/Sadoklaoo/distributed-database-tradeoff/pkg/workerpool"
)

func main() {
	cfg, err := LoadConfig(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "tradeoff-d: %v\n", err)
		os.Exit(1)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "tradeoff-d: failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("daemon failed", zap.Error(err))
	}
}

func run(cfg Config, logger *zap.Logger) error {
	logger.Info("tradeoff-d starting", zap.String("addr", cfg.Addr))

	runStore, err := store.NewStore(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("run history store: %w", err)
	}
	defer runStore.Close()
	logger.Info("run history store initialized", zap.String("path", cfg.DBPath))

	meters := metrics.NewCollector()
	sink := reports.NewFileSink(cfg.ReportDir, logger)

	knownNodes := cfg.KnownNodes
	if len(knownNodes) == 0 {
		knownNodes = api.DefaultKnownNodes
	}
	controller := infra.NewDocker(infra.DockerConfig{
		Network:    cfg.Network,
		KnownNodes: knownNodes,
		Logger:     logger,
	})

	mongoDrv := mongo.New(cfg.MongoURI, cfg.MongoDatabase, logger)
	cassDrv := cassandra.New(cfg.CassandraHosts, cfg.CassandraKeyspace, logger)
	connectDriver(mongoDrv, logger)
	connectDriver(cassDrv, logger)
	defer closeDriver(mongoDrv, logger)
	defer closeDriver(cassDrv, logger)

	// The gocql client blocks without honoring deadlines, so everything
	// touching Cassandra goes through the pool.
	pool := workerpool.New("cassandra", cfg.PoolWorkers, cfg.PoolQueue, logger)
	defer pool.Stop(10 * time.Second)

	var locker lock.Locker = lock.NewMemoryLocker()
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer client.Close()
		locker = lock.NewRedisLocker(client)
		logger.Info("using shared redis node locker", zap.String("addr", cfg.RedisAddr))
	}

	probes := map[string]failure.Prober{
		driver.StoreMongoDB:   probe.New(driver.StoreMongoDB, mongoDrv, logger),
		driver.StoreCassandra: probe.New(driver.StoreCassandra, cassDrv, logger, probe.WithPool(pool)),
	}
	scenarios, err := failure.NewRunner(failure.Config{
		Infra:  controller,
		Probes: probes,
		Locker: locker,
		Meters: meters,
		Logger: logger,
	})
	if err != nil {
		return fmt.Errorf("scenario runner: %w", err)
	}

	benchmarks, err := benchmark.NewRunner(map[string]benchmark.Target{
		driver.StoreMongoDB:   {Driver: mongoDrv},
		driver.StoreCassandra: {Driver: cassDrv, Pool: pool},
	}, meters, logger)
	if err != nil {
		return fmt.Errorf("benchmark runner: %w", err)
	}

	server := api.NewServer(api.Config{
		Addr:       cfg.Addr,
		Scenarios:  scenarios,
		Benchmarks: benchmarks,
		Infra:      controller,
		Drivers: map[string]driver.Driver{
			driver.StoreMongoDB:   mongoDrv,
			driver.StoreCassandra: cassDrv,
		},
		Runs:       runStore,
		Sink:       sink,
		Meters:     meters,
		Logger:     logger,
		KnownNodes: knownNodes,
	})

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		logger.Info("shutdown initiated", zap.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("api server: %w", err)
		}
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Stop(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info("shutdown complete")
	return nil
}

// connectDriver tries the initial connection. Failure is not fatal: the
// daemon still serves, and probes report the store as unavailable.
func connectDriver(d driver.Driver, logger *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := d.Connect(ctx); err != nil {
		logger.Warn("store connection failed at startup",
			zap.String("store", d.Name()), zap.Error(err))
		return
	}
	logger.Info("store connected", zap.String("store", d.Name()))
}

func closeDriver(d driver.Driver, logger *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.Close(ctx); err != nil {
		logger.Warn("store close failed",
			zap.String("store", d.Name()), zap.Error(err))
	}
}
