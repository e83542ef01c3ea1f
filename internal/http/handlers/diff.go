package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/yungbote/branchgraph/internal/http/response"
	"github.com/yungbote/branchgraph/internal/services"
)

type DiffHandler struct {
	diff services.DiffService
}

func NewDiffHandler(diff services.DiffService) *DiffHandler {
	return &DiffHandler{diff: diff}
}

// GET /api/branches/:name/diff?since=&until=&branch_only=
func (h *DiffHandler) ModifiedPaths(c *gin.Context) {
	var opts services.DiffOptions
	var err error
	if opts.Since, err = queryTime(c, "since"); err != nil {
		response.RespondAPIError(c, err)
		return
	}
	if opts.Until, err = queryTime(c, "until"); err != nil {
		response.RespondAPIError(c, err)
		return
	}
	if opts.BranchOnly, err = queryBool(c, "branch_only"); err != nil {
		response.RespondAPIError(c, err)
		return
	}
	d, err := h.diff.ModifiedPaths(c.Request.Context(), c.Param("name"), opts)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	paths := make(map[string][]string, len(d.Paths))
	for name, ps := range d.Paths {
		out := make([]string, 0, len(ps))
		for _, p := range ps {
			out = append(out, p.String())
		}
		paths[name] = out
	}
	response.RespondOK(c, gin.H{
		"branch":      d.Branch,
		"since":       d.Since,
		"until":       d.Until,
		"paths":       paths,
		"has_changes": len(d.Paths[d.Branch]) > 0,
	})
}

// GET /api/branches/:name/validate
func (h *DiffHandler) Validate(c *gin.Context) {
	res, err := h.diff.ValidateGraph(c.Request.Context(), c.Param("name"))
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"passed": res.Passed, "messages": res.Messages})
}

// GET /api/branches/:name/summary?from=&to=&branch_only=
func (h *DiffHandler) Summary(c *gin.Context) {
	in := services.SummaryInput{Branch: c.Param("name")}
	var err error
	if in.From, err = queryTime(c, "from"); err != nil {
		response.RespondAPIError(c, err)
		return
	}
	if in.To, err = queryTime(c, "to"); err != nil {
		response.RespondAPIError(c, err)
		return
	}
	if in.BranchOnly, err = queryBool(c, "branch_only"); err != nil {
		response.RespondAPIError(c, err)
		return
	}
	out, err := h.diff.GetSummary(c.Request.Context(), in)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"summary": out})
}
