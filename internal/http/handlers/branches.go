package handlers

import (
	"context"
	"sort"

	"github.com/gin-gonic/gin"

	domainagg "github.com/yungbote/branchgraph/internal/domain/aggregates"
	"github.com/yungbote/branchgraph/internal/domain/timestamp"
	"github.com/yungbote/branchgraph/internal/http/response"
	"github.com/yungbote/branchgraph/internal/platform/logger"
	"github.com/yungbote/branchgraph/internal/services"
)

// Merger runs a merge either inline or as a durable workflow.
type Merger interface {
	Merge(ctx context.Context, branch string) (domainagg.MergeGraphResult, error)
}

type BranchHandler struct {
	log      *logger.Logger
	registry services.BranchRegistry
	merger   Merger
	merges   services.MergeService
}

func NewBranchHandler(log *logger.Logger, registry services.BranchRegistry, merger Merger, merges services.MergeService) *BranchHandler {
	if merger == nil {
		merger = merges
	}
	return &BranchHandler{
		log:      log.With("handler", "BranchHandler"),
		registry: registry,
		merger:   merger,
		merges:   merges,
	}
}

// GET /api/branches
func (h *BranchHandler) List(c *gin.Context) {
	response.RespondOK(c, gin.H{"branches": h.registry.List(c.Request.Context())})
}

// POST /api/branches
func (h *BranchHandler) Create(c *gin.Context) {
	var in services.CreateBranchInput
	if err := bindJSON(c, &in); err != nil {
		response.RespondAPIError(c, err)
		return
	}
	b, err := h.registry.Create(c.Request.Context(), in)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondCreated(c, gin.H{"branch": b})
}

// GET /api/branches/:name
func (h *BranchHandler) Get(c *gin.Context) {
	b, err := h.registry.Branch(c.Request.Context(), c.Param("name"))
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"branch": b})
}

// DELETE /api/branches/:name?at=
func (h *BranchHandler) Delete(c *gin.Context) {
	at, err := queryTime(c, "at")
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	if err := h.registry.Delete(c.Request.Context(), c.Param("name"), at); err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"deleted": c.Param("name")})
}

// POST /api/branches/:name/merge
func (h *BranchHandler) Merge(c *gin.Context) {
	res, err := h.merger.Merge(c.Request.Context(), c.Param("name"))
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"merge": res})
}

// POST /api/branches/:name/rebase
func (h *BranchHandler) Rebase(c *gin.Context) {
	b, err := h.merges.Rebase(c.Request.Context(), c.Param("name"))
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"branch": b})
}

// GET /api/branches/:name/query-filter?at=&labels=r1,r2&ephemeral_rebase=
//
// Returns the Cypher filter fragments and parameters a time-scoped query on
// the branch would use.
func (h *BranchHandler) QueryFilter(c *gin.Context) {
	b, err := h.registry.Branch(c.Request.Context(), c.Param("name"))
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	at, err := queryTime(c, "at")
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	if at.IsZero() {
		at = timestamp.Now()
	}
	ephemeral, err := queryBool(c, "ephemeral_rebase")
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	if ephemeral {
		b = b.WithEphemeralRebase()
	}
	labels := queryList(c, "labels")
	if len(labels) == 0 {
		labels = []string{"r"}
	}
	filters, params := b.QueryFilterRelationships(labels, at)
	names := make([]string, 0, len(params))
	for k := range params {
		names = append(names, k)
	}
	sort.Strings(names)
	response.RespondOK(c, gin.H{
		"branch":      b.Name,
		"at":          at,
		"filters":     filters,
		"params":      params,
		"param_names": names,
	})
}
