package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type DatabaseCfg struct {
	Driver           string
	DSN              string
	MaxOpenConns     int
	MaxIdleConns     int
	ConnMaxLifetime  time.Duration
	StatementTimeout time.Duration
	BatchSize        int
	ReferenceTables  string
}

type CacheCfg struct {
	Enabled   bool
	RedisAddr string
	TTL       time.Duration
	OpTimeout time.Duration
}

type IngestCfg struct {
	Enabled bool
	Brokers string
	Topic   string
	GroupID string
}

type Config struct {
	Addr            string
	LogLevel        string
	LogConsole      bool
	LogSampleN      int
	MetricsEnabled  bool
	CleanupInterval time.Duration
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
	Database        DatabaseCfg
	Cache           CacheCfg
	Ingest          IngestCfg
}

// FromEnv reads the service configuration. DB_DSN falls back to PG_* pieces
// for postgres and to a local file for sqlite.
func FromEnv() Config {
	driver := strings.ToLower(getenv("DB_DRIVER", "postgres"))
	dsn := os.Getenv("DB_DSN")
	if dsn == "" && driver == "sqlite" {
		dsn = "geometry.db"
	}

	return Config{
		Addr:            getenv("ADDR", ":8090"),
		LogLevel:        getenv("LOG_LEVEL", "info"),
		LogConsole:      getbool("LOG_CONSOLE", false),
		LogSampleN:      getint("LOG_SAMPLE_N", 0),
		MetricsEnabled:  getbool("METRICS_ENABLED", true),
		CleanupInterval: getduration("CLEANUP_INTERVAL", 0),
		RequestTimeout:  getduration("REQUEST_TIMEOUT", 30*time.Second),
		ShutdownTimeout: getduration("SHUTDOWN_TIMEOUT", 10*time.Second),
		Database: DatabaseCfg{
			Driver:           driver,
			DSN:              dsn,
			MaxOpenConns:     getint("DB_MAX_OPEN_CONNS", 50),
			MaxIdleConns:     getint("DB_MAX_IDLE_CONNS", 25),
			ConnMaxLifetime:  getduration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
			StatementTimeout: getduration("DB_STATEMENT_TIMEOUT", 0),
			BatchSize:        getint("DB_BATCH_SIZE", 200),
			ReferenceTables:  getenv("REFERENCE_TABLES", "osm_quests"),
		},
		Cache: CacheCfg{
			Enabled:   getbool("CACHE_ENABLED", false),
			RedisAddr: getenv("REDIS_ADDR", "localhost:6379"),
			TTL:       getduration("CACHE_TTL", 10*time.Minute),
			OpTimeout: getduration("CACHE_OP_TIMEOUT", 250*time.Millisecond),
		},
		Ingest: IngestCfg{
			Enabled: getbool("INGEST_ENABLED", false),
			Brokers: getenv("KAFKA_BROKERS", "localhost:9092"),
			Topic:   getenv("KAFKA_TOPIC", "element-geometry"),
			GroupID: getenv("KAFKA_GROUP_ID", "geometry-store"),
		},
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getint(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v := os.Getenv(k); v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "t", "true", "y", "yes":
			return true
		case "0", "f", "false", "n", "no":
			return false
		}
	}
	return def
}

func getduration(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
