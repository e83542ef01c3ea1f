package app

import (
	"strings"
	"time"

	"github.com/yungbote/branchgraph/internal/data/aggregates"
	"github.com/yungbote/branchgraph/internal/data/db"
	"github.com/yungbote/branchgraph/internal/observability"
	"github.com/yungbote/branchgraph/internal/platform/envutil"
	"github.com/yungbote/branchgraph/internal/platform/logger"
	"github.com/yungbote/branchgraph/internal/platform/neo4jdb"
	"github.com/yungbote/branchgraph/internal/temporalx"
)

const (
	GraphBackendNeo4j  = "neo4j"
	GraphBackendMemory = "memory"
)

type Config struct {
	LogMode       string
	HTTPAddr      string
	DefaultBranch string
	SchemaPath    string
	CORSOrigins   []string

	GraphBackend string
	Neo4j        neo4jdb.Config
	DB           db.Config

	RedisAddr    string
	RedisChannel string

	WriteRetry aggregates.RetryPolicy

	Otel     observability.OtelConfig
	Temporal temporalx.Config
}

func LoadConfig(log *logger.Logger) Config {
	cfg := Config{
		LogMode:       envutil.String("LOG_MODE", "development"),
		HTTPAddr:      envutil.String("HTTP_ADDR", ":8080"),
		DefaultBranch: envutil.String("DEFAULT_BRANCH", "main"),
		SchemaPath:    envutil.String("SCHEMA_PATH", ""),
		GraphBackend:  strings.ToLower(envutil.String("GRAPH_BACKEND", GraphBackendNeo4j)),
		Neo4j:         neo4jdb.ConfigFromEnv(),
		DB:            db.ConfigFromEnv(),
		RedisAddr:     envutil.String("REDIS_ADDR", ""),
		RedisChannel:  envutil.String("REDIS_CHANNEL", "branchgraph.branches"),
		WriteRetry: aggregates.RetryPolicy{
			MaxAttempts: envutil.Int("WRITE_MAX_ATTEMPTS", 3),
			MinBackoff:  envutil.Millis("WRITE_MIN_BACKOFF_MS", 50*time.Millisecond),
			MaxBackoff:  envutil.Millis("WRITE_MAX_BACKOFF_MS", 2*time.Second),
			JitterFrac:  0.20,
		},
		Otel: observability.OtelConfig{
			Enabled:     envutil.Bool("OTEL_ENABLED", false),
			ServiceName: envutil.String("OTEL_SERVICE_NAME", "branchgraph"),
			Environment: envutil.String("OTEL_ENVIRONMENT", "development"),
			Version:     envutil.String("OTEL_SERVICE_VERSION", "dev"),
			Endpoint:    envutil.String("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
			Headers:     envutil.List("OTEL_EXPORTER_OTLP_HEADERS"),
			Insecure:    envutil.Bool("OTEL_EXPORTER_OTLP_INSECURE", false),
			SampleRatio: envutil.Float("OTEL_SAMPLER_RATIO", 0.1),
		},
		CORSOrigins: envutil.List("CORS_ORIGINS"),
		Temporal:    temporalx.LoadConfig(),
	}
	log.Info("config loaded",
		"graph_backend", cfg.GraphBackend,
		"db_driver", cfg.DB.Driver,
		"default_branch", cfg.DefaultBranch,
		"redis", cfg.RedisAddr != "",
		"temporal", cfg.Temporal.Enabled(),
	)
	return cfg
}
