package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	defaultAddr        = "127.0.0.1:8080"
	defaultMongoURI    = "mongodb://localhost:27017"
	defaultMongoDB     = "tradeoff"
	defaultCassHosts   = "localhost:9042"
	defaultKeyspace    = "tradeoff"
	defaultNetwork     = "db-network"
	defaultReportDir   = "logs/performance_reports"
	defaultPoolWorkers = 8
	defaultPoolQueue   = 64
)

type Config struct {
	Addr      string `yaml:"addr"`
	DBPath    string `yaml:"dbPath"`
	ReportDir string `yaml:"reportDir"`

	Network    string   `yaml:"network"`
	KnownNodes []string `yaml:"knownNodes"`

	MongoURI          string   `yaml:"mongoUri"`
	MongoDatabase     string   `yaml:"mongoDatabase"`
	CassandraHosts    []string `yaml:"cassandraHosts"`
	CassandraKeyspace string   `yaml:"cassandraKeyspace"`

	// RedisAddr enables the shared node locker; empty keeps the in-process
	// locker.
	RedisAddr string `yaml:"redisAddr"`

	PoolWorkers int `yaml:"poolWorkers"`
	PoolQueue   int `yaml:"poolQueue"`
}

// LoadConfig layers defaults, an optional YAML file, TRADEOFF_* environment
// variables and flags, in that order.
func LoadConfig(args []string) (Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return Config{}, fmt.Errorf("failed to get cwd: %w", err)
	}

	cfg := Config{
		Addr:              defaultAddr,
		DBPath:            filepath.Join(cwd, "tradeoff.db"),
		ReportDir:         defaultReportDir,
		Network:           defaultNetwork,
		MongoURI:          defaultMongoURI,
		MongoDatabase:     defaultMongoDB,
		CassandraHosts:    splitList(defaultCassHosts),
		CassandraKeyspace: defaultKeyspace,
		PoolWorkers:       defaultPoolWorkers,
		PoolQueue:         defaultPoolQueue,
	}

	// The config file path itself comes from env or the -config flag; the
	// flag needs a pre-pass because the file is applied before env and flags.
	configPath := os.Getenv("TRADEOFF_CONFIG")
	for i, a := range args {
		if a == "-config" || a == "--config" {
			if i+1 < len(args) {
				configPath = args[i+1]
			}
		} else if v, ok := strings.CutPrefix(a, "-config="); ok {
			configPath = v
		} else if v, ok := strings.CutPrefix(a, "--config="); ok {
			configPath = v
		}
	}
	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnv(&cfg)

	flagSet := flag.NewFlagSet("tradeoff-d", flag.ContinueOnError)
	flagSet.SetOutput(io.Discard)
	flagSet.String("config", configPath, "path to YAML config file")
	flagAddr := flagSet.String("addr", cfg.Addr, "HTTP listen address")
	flagDB := flagSet.String("db", cfg.DBPath, "path to SQLite run history database")
	flagReportDir := flagSet.String("report-dir", cfg.ReportDir, "directory for report files")
	flagNetwork := flagSet.String("network", cfg.Network, "well-known container network name")
	flagMongoURI := flagSet.String("mongo-uri", cfg.MongoURI, "MongoDB connection URI")
	flagMongoDB := flagSet.String("mongo-db", cfg.MongoDatabase, "MongoDB database name")
	flagCassHosts := flagSet.String("cassandra-hosts", strings.Join(cfg.CassandraHosts, ","), "comma-separated Cassandra hosts")
	flagKeyspace := flagSet.String("cassandra-keyspace", cfg.CassandraKeyspace, "Cassandra keyspace")
	flagRedis := flagSet.String("redis-addr", cfg.RedisAddr, "Redis address for the shared node locker (optional)")
	flagWorkers := flagSet.Int("pool-workers", cfg.PoolWorkers, "worker pool size for blocking store calls")
	flagQueue := flagSet.Int("pool-queue", cfg.PoolQueue, "worker pool queue capacity")
	flagNodes := flagSet.String("known-nodes", strings.Join(cfg.KnownNodes, ","), "comma-separated node names for stop/uptime endpoints")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			flagSet.SetOutput(os.Stdout)
			flagSet.PrintDefaults()
		}
		return Config{}, err
	}

	cfg.Addr = strings.TrimSpace(*flagAddr)
	cfg.DBPath = resolvePath(*flagDB, cwd)
	cfg.ReportDir = *flagReportDir
	cfg.Network = strings.TrimSpace(*flagNetwork)
	cfg.MongoURI = strings.TrimSpace(*flagMongoURI)
	cfg.MongoDatabase = strings.TrimSpace(*flagMongoDB)
	cfg.CassandraHosts = splitList(*flagCassHosts)
	cfg.CassandraKeyspace = strings.TrimSpace(*flagKeyspace)
	cfg.RedisAddr = strings.TrimSpace(*flagRedis)
	cfg.PoolWorkers = *flagWorkers
	cfg.PoolQueue = *flagQueue
	cfg.KnownNodes = splitList(*flagNodes)

	if cfg.Addr == "" {
		return Config{}, errors.New("addr cannot be empty")
	}
	if len(cfg.CassandraHosts) == 0 {
		return Config{}, errors.New("at least one cassandra host is required")
	}
	if cfg.PoolWorkers <= 0 || cfg.PoolQueue <= 0 {
		return Config{}, errors.New("pool sizes must be positive")
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setString("TRADEOFF_ADDR", &cfg.Addr)
	setString("TRADEOFF_DB_PATH", &cfg.DBPath)
	setString("TRADEOFF_REPORT_DIR", &cfg.ReportDir)
	setString("TRADEOFF_NETWORK", &cfg.Network)
	setString("TRADEOFF_MONGO_URI", &cfg.MongoURI)
	setString("TRADEOFF_MONGO_DB", &cfg.MongoDatabase)
	setString("TRADEOFF_CASSANDRA_KEYSPACE", &cfg.CassandraKeyspace)
	setString("TRADEOFF_REDIS_ADDR", &cfg.RedisAddr)
	if v := os.Getenv("TRADEOFF_CASSANDRA_HOSTS"); v != "" {
		cfg.CassandraHosts = splitList(v)
	}
	if v := os.Getenv("TRADEOFF_KNOWN_NODES"); v != "" {
		cfg.KnownNodes = splitList(v)
	}
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func resolvePath(path, cwd string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(cwd, path)
}
