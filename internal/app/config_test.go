package app

import (
	"testing"
	"time"

	"github.com/yungbote/branchgraph/internal/platform/logger"
)

func TestLoadConfigDefaults(t *testing.T) {
	for _, k := range []string{"HTTP_ADDR", "DEFAULT_BRANCH", "GRAPH_BACKEND", "CORS_ORIGINS", "WRITE_MAX_ATTEMPTS", "WRITE_MIN_BACKOFF_MS"} {
		t.Setenv(k, "")
	}
	cfg := LoadConfig(logger.Nop())
	if cfg.HTTPAddr != ":8080" {
		t.Fatalf("http addr: want=:8080 got=%q", cfg.HTTPAddr)
	}
	if cfg.DefaultBranch != "main" || cfg.GraphBackend != GraphBackendNeo4j {
		t.Fatalf("defaults: got branch=%q backend=%q", cfg.DefaultBranch, cfg.GraphBackend)
	}
	if cfg.WriteRetry.MaxAttempts != 3 || cfg.WriteRetry.MinBackoff != 50*time.Millisecond {
		t.Fatalf("write retry: got=%+v", cfg.WriteRetry)
	}
	if len(cfg.CORSOrigins) != 0 {
		t.Fatalf("cors: want none got=%v", cfg.CORSOrigins)
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("GRAPH_BACKEND", "Memory")
	t.Setenv("CORS_ORIGINS", "https://a.example, ,https://b.example")
	t.Setenv("WRITE_MAX_BACKOFF_MS", "750")
	cfg := LoadConfig(logger.Nop())
	if cfg.GraphBackend != GraphBackendMemory {
		t.Fatalf("backend: want=memory got=%q", cfg.GraphBackend)
	}
	if len(cfg.CORSOrigins) != 2 || cfg.CORSOrigins[1] != "https://b.example" {
		t.Fatalf("cors: got=%v", cfg.CORSOrigins)
	}
	if cfg.WriteRetry.MaxBackoff != 750*time.Millisecond {
		t.Fatalf("max backoff: want=750ms got=%v", cfg.WriteRetry.MaxBackoff)
	}
}

func TestLoadSchemasWithoutFileRejectsEveryKind(t *testing.T) {
	cache, err := loadSchemas(logger.Nop(), Config{DefaultBranch: "main"})
	if err != nil {
		t.Fatalf("loadSchemas: %v", err)
	}
	if _, ok := cache.Node("main", "Person"); ok {
		t.Fatalf("empty schema resolved a kind")
	}
	if _, err := loadSchemas(logger.Nop(), Config{DefaultBranch: "main", SchemaPath: "/nonexistent/schema.yaml"}); err == nil {
		t.Fatalf("missing schema file: want error")
	}
}
