package app

import (
	"context"
	"fmt"

	temporalsdkclient "go.temporal.io/sdk/client"

	domaingraph "github.com/yungbote/branchgraph/internal/domain/graph"
	"github.com/yungbote/branchgraph/internal/data/graph"
	"github.com/yungbote/branchgraph/internal/data/graph/memgraph"
	"github.com/yungbote/branchgraph/internal/platform/logger"
	"github.com/yungbote/branchgraph/internal/platform/neo4jdb"
	"github.com/yungbote/branchgraph/internal/realtime/bus"
	"github.com/yungbote/branchgraph/internal/temporalx"
)

type Clients struct {
	Neo4j    *neo4jdb.Client
	Graph    domaingraph.Store
	Bus      bus.Bus
	Temporal temporalsdkclient.Client
}

func wireClients(ctx context.Context, log *logger.Logger, cfg Config) (Clients, error) {
	log.Info("Wiring clients...")
	var out Clients

	// Graph store
	switch cfg.GraphBackend {
	case GraphBackendMemory:
		log.Warn("GRAPH_BACKEND=memory; graph state is lost on exit")
		out.Graph = memgraph.New()
	case GraphBackendNeo4j, "":
		client, err := neo4jdb.New(log, cfg.Neo4j)
		if err != nil {
			return Clients{}, fmt.Errorf("init neo4j: %w", err)
		}
		store, err := graph.NewNeo4jStore(client, log)
		if err != nil {
			_ = client.Close(ctx)
			return Clients{}, err
		}
		if err := store.EnsureSchema(ctx); err != nil {
			_ = client.Close(ctx)
			return Clients{}, fmt.Errorf("neo4j schema: %w", err)
		}
		out.Neo4j = client
		out.Graph = store
	default:
		return Clients{}, fmt.Errorf("unknown GRAPH_BACKEND %q", cfg.GraphBackend)
	}

	// Redis
	if cfg.RedisAddr != "" {
		b, err := bus.NewRedisBus(log, bus.RedisConfig{Addr: cfg.RedisAddr, Channel: cfg.RedisChannel})
		if err != nil {
			out.Close(ctx)
			return Clients{}, fmt.Errorf("init redis branch bus: %w", err)
		}
		out.Bus = b
	} else {
		log.Warn("REDIS_ADDR not set; branch events stay in this process")
		out.Bus = bus.NewMemoryBus()
	}

	// Temporal
	tc, err := temporalx.NewClient(log, cfg.Temporal)
	if err != nil {
		out.Close(ctx)
		return Clients{}, fmt.Errorf("init temporal: %w", err)
	}
	out.Temporal = tc

	return out, nil
}

func (c *Clients) Close(ctx context.Context) {
	if c == nil {
		return
	}
	if c.Temporal != nil {
		c.Temporal.Close()
	}
	if c.Bus != nil {
		_ = c.Bus.Close()
	}
	if c.Neo4j != nil {
		_ = c.Neo4j.Close(ctx)
	}
}
