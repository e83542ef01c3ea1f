package app

import (
	"github.com/yungbote/branchgraph/internal/http"
	httpH "github.com/yungbote/branchgraph/internal/http/handlers"
	"github.com/yungbote/branchgraph/internal/observability"
	"github.com/yungbote/branchgraph/internal/platform/logger"
	"github.com/yungbote/branchgraph/internal/realtime"
)

type Handlers struct {
	Health *httpH.HealthHandler
	Branch *httpH.BranchHandler
	Diff   *httpH.DiffHandler
	Node   *httpH.NodeHandler
	Events *httpH.EventsHandler
}

func wireHandlers(log *logger.Logger, services Services, hub *realtime.Hub) Handlers {
	log.Info("Wiring handlers...")
	// a nil *mergerun.Starter must not become a non-nil Merger
	var merger httpH.Merger
	if services.MergeStarter != nil {
		merger = services.MergeStarter
	}
	return Handlers{
		Health: httpH.NewHealthHandler(services.Registry),
		Branch: httpH.NewBranchHandler(log, services.Registry, merger, services.Merge),
		Diff:   httpH.NewDiffHandler(services.Diff),
		Node:   httpH.NewNodeHandler(services.Nodes, services.Rels),
		Events: httpH.NewEventsHandler(log, hub),
	}
}

func routerConfig(log *logger.Logger, cfg Config, handlers Handlers, metrics *observability.Metrics) http.RouterConfig {
	return http.RouterConfig{
		Log:           log,
		Metrics:       metrics,
		ServiceName:   cfg.Otel.ServiceName,
		CORSOrigins:   cfg.CORSOrigins,
		HealthHandler: handlers.Health,
		BranchHandler: handlers.Branch,
		DiffHandler:   handlers.Diff,
		NodeHandler:   handlers.Node,
		EventsHandler: handlers.Events,
	}
}
