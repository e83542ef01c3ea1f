package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/branchgraph/internal/http/handlers"
	httpMW "github.com/yungbote/branchgraph/internal/http/middleware"
	"github.com/yungbote/branchgraph/internal/observability"
	"github.com/yungbote/branchgraph/internal/platform/logger"
)

type RouterConfig struct {
	Log         *logger.Logger
	Metrics     *observability.Metrics
	ServiceName string
	CORSOrigins []string

	BranchHandler *httpH.BranchHandler
	DiffHandler   *httpH.DiffHandler
	NodeHandler   *httpH.NodeHandler
	HealthHandler *httpH.HealthHandler
	EventsHandler *httpH.EventsHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.ServiceName != "" {
		r.Use(otelgin.Middleware(cfg.ServiceName))
	}
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.Metrics(cfg.Metrics))
	r.Use(httpMW.CORS(cfg.CORSOrigins))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
		r.GET("/readyz", cfg.HealthHandler.Ready)
	}
	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))
	}

	api := r.Group("/api")
	{
		if cfg.EventsHandler != nil {
			api.GET("/events", cfg.EventsHandler.Stream)
		}

		// Branches
		if cfg.BranchHandler != nil {
			api.GET("/branches", cfg.BranchHandler.List)
			api.POST("/branches", cfg.BranchHandler.Create)
			api.GET("/branches/:name", cfg.BranchHandler.Get)
			api.DELETE("/branches/:name", cfg.BranchHandler.Delete)
			api.POST("/branches/:name/merge", cfg.BranchHandler.Merge)
			api.POST("/branches/:name/rebase", cfg.BranchHandler.Rebase)
			api.GET("/branches/:name/query-filter", cfg.BranchHandler.QueryFilter)
		}

		// Diff
		if cfg.DiffHandler != nil {
			api.GET("/branches/:name/diff", cfg.DiffHandler.ModifiedPaths)
			api.GET("/branches/:name/validate", cfg.DiffHandler.Validate)
			api.GET("/branches/:name/summary", cfg.DiffHandler.Summary)
		}

		// Nodes
		if cfg.NodeHandler != nil {
			api.GET("/branches/:name/nodes", cfg.NodeHandler.List)
			api.POST("/branches/:name/nodes", cfg.NodeHandler.Create)
			api.GET("/branches/:name/nodes/:id", cfg.NodeHandler.Get)
			api.DELETE("/branches/:name/nodes/:id", cfg.NodeHandler.Delete)
			api.PATCH("/branches/:name/nodes/:id/attributes/:attr", cfg.NodeHandler.UpdateAttribute)
			api.GET("/branches/:name/nodes/:id/relationships/:field", cfg.NodeHandler.Relationship)
			api.PUT("/branches/:name/nodes/:id/relationships/:field", cfg.NodeHandler.ReconcileRelationship)
		}
	}

	return r
}
