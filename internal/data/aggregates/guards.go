package aggregates

import (
	"context"
	"strings"

	domaingraph "github.com/yungbote/branchgraph/internal/domain/graph"
)

// RequireVertex loads a vertex or fails with a not-found error.
func RequireVertex(ctx context.Context, r domaingraph.Reader, id string, kind domaingraph.VertexKind) (domaingraph.Vertex, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domaingraph.Vertex{}, ValidationError("vertex id is required")
	}
	v, ok, err := r.Vertex(ctx, id)
	if err != nil {
		return domaingraph.Vertex{}, err
	}
	if !ok || (kind != "" && v.Kind != kind) {
		return domaingraph.Vertex{}, NotFoundError(string(kind) + " " + id)
	}
	return v, nil
}

// RequireOpenEdge re-reads e inside the transaction and fails with a conflict
// when another writer closed it since it was selected.
func RequireOpenEdge(ctx context.Context, r domaingraph.Reader, e domaingraph.Edge) error {
	current, err := r.Edges(ctx, domaingraph.EdgeQuery{
		Labels:   []domaingraph.Label{e.Label},
		Src:      e.Src,
		Dst:      e.Dst,
		Branches: []string{e.Props.Branch},
		OpenOnly: true,
	})
	if err != nil {
		return err
	}
	for _, c := range current {
		if c.ID == e.ID {
			return nil
		}
	}
	return ConflictError("edge " + e.ID + " is no longer open")
}

// RequireCASSuccess converts a failed compare-and-set into a typed conflict error.
func RequireCASSuccess(ok bool, message string) error {
	if ok {
		return nil
	}
	return ConflictError(strings.TrimSpace(message))
}
