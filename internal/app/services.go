package app

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/yungbote/branchgraph/internal/data/aggregates"
	"github.com/yungbote/branchgraph/internal/domain/schema"
	"github.com/yungbote/branchgraph/internal/observability"
	"github.com/yungbote/branchgraph/internal/platform/logger"
	"github.com/yungbote/branchgraph/internal/services"
	"github.com/yungbote/branchgraph/internal/temporalx/mergerun"
	"github.com/yungbote/branchgraph/internal/temporalx/temporalworker"
)

type Services struct {
	Schemas  *schema.Cache
	Registry services.BranchRegistry
	Diff     services.DiffService
	Merge    services.MergeService
	Nodes    services.NodeService
	Rels     services.RelationshipService

	// Durable merges; nil when Temporal is not configured.
	MergeStarter   *mergerun.Starter
	TemporalWorker *temporalworker.Runner
}

func wireServices(db *gorm.DB, log *logger.Logger, cfg Config, repos Repos, clients Clients, metrics *observability.Metrics) (Services, error) {
	log.Info("Wiring services...")

	schemas, err := loadSchemas(log, cfg)
	if err != nil {
		return Services{}, err
	}

	graph := aggregates.BaseDeps{
		Store: clients.Graph,
		Log:   log,
		Hooks: aggregates.NewObservabilityHooks(metrics),
		Retry: cfg.WriteRetry,
	}

	registry := services.NewBranchRegistry(services.BranchRegistryDeps{
		DB:            db,
		Log:           log,
		Repo:          repos.Branch,
		Graph:         graph,
		Schemas:       schemas,
		Bus:           clients.Bus,
		Metrics:       metrics,
		DefaultBranch: cfg.DefaultBranch,
	})

	diff := services.NewDiffService(log, clients.Graph, registry, schemas, metrics)
	merge := services.NewMergeService(services.MergeServiceDeps{
		Log:      log,
		Graph:    graph,
		Registry: registry,
		Diff:     diff,
		Metrics:  metrics,
		Merge: aggregates.NewMergeAggregate(aggregates.MergeAggregateDeps{
			Base:      graph,
			Branches:  registry,
			Conflicts: diff,
		}),
	})
	rels := services.NewRelationshipService(log, clients.Graph, registry,
		aggregates.NewRelationshipAggregate(aggregates.RelationshipAggregateDeps{
			Base:     graph,
			Branches: registry,
			Schemas:  schemas,
		}), metrics)

	out := Services{
		Schemas:  schemas,
		Registry: registry,
		Diff:     diff,
		Merge:    merge,
		Nodes:    services.NewNodeService(log, graph, registry),
		Rels:     rels,
	}

	if clients.Temporal != nil {
		starter, err := mergerun.NewStarter(log, clients.Temporal, cfg.Temporal.TaskQueue)
		if err != nil {
			return Services{}, fmt.Errorf("init merge starter: %w", err)
		}
		runner, err := temporalworker.NewRunner(log, clients.Temporal, cfg.Temporal, diff, merge)
		if err != nil {
			return Services{}, fmt.Errorf("init temporal worker: %w", err)
		}
		out.MergeStarter = starter
		out.TemporalWorker = runner
	}
	return out, nil
}

// loadSchemas seeds the default branch schema from SCHEMA_PATH. Without a
// schema file every node kind is rejected, which is only useful for tooling.
func loadSchemas(log *logger.Logger, cfg Config) (*schema.Cache, error) {
	cache := schema.NewCache(cfg.DefaultBranch)
	if cfg.SchemaPath == "" {
		log.Warn("SCHEMA_PATH not set; starting with an empty schema")
		sb, err := schema.NewSchemaBranch(nil)
		if err != nil {
			return nil, err
		}
		cache.Set(cfg.DefaultBranch, sb)
		return cache, nil
	}
	sb, err := schema.LoadFile(cfg.SchemaPath)
	if err != nil {
		return nil, fmt.Errorf("load schema %s: %w", cfg.SchemaPath, err)
	}
	hash := cache.Set(cfg.DefaultBranch, sb)
	log.Info("schema loaded", "path", cfg.SchemaPath, "kinds", len(sb.Kinds()), "hash", hash)
	return cache, nil
}
