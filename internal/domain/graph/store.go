package graph

import (
	"context"

	"github.com/google/uuid"

	"github.com/yungbote/branchgraph/internal/domain/timestamp"
)

// EdgeQuery selects edges. Empty fields do not constrain the result. Scope
// keeps only edges valid on the resolution set; Window keeps only edges
// opened or closed inside the window.
type EdgeQuery struct {
	Labels   []Label
	Src      string
	Dst      string
	Scope    *Scope
	Window   *ChangeWindow
	Branches []string
	OpenOnly bool
}

// Matches evaluates the query against one edge in memory.
func (q EdgeQuery) Matches(e Edge) bool {
	if len(q.Labels) > 0 {
		found := false
		for _, l := range q.Labels {
			if l == e.Label {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if q.Src != "" && q.Src != e.Src {
		return false
	}
	if q.Dst != "" && q.Dst != e.Dst {
		return false
	}
	if len(q.Branches) > 0 {
		found := false
		for _, b := range q.Branches {
			if b == e.Props.Branch {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if q.OpenOnly && !e.Open() {
		return false
	}
	if q.Scope != nil && !q.Scope.Matches(e) {
		return false
	}
	if q.Window != nil && !q.Window.Matches(e) {
		return false
	}
	return true
}

// Reader is the read side of a graph store.
type Reader interface {
	Vertex(ctx context.Context, id string) (Vertex, bool, error)
	Edges(ctx context.Context, q EdgeQuery) ([]Edge, error)
}

// Writer appends vertices and edges and closes edges. There is no update or
// delete: CloseEdge on an edge that is already closed is an invariant
// violation.
type Writer interface {
	CreateVertex(ctx context.Context, v Vertex) error
	CreateEdge(ctx context.Context, e Edge) error
	CloseEdge(ctx context.Context, id string, at timestamp.Timestamp) error
}

// Tx is one explicit store transaction. Reads observe the transaction's own
// writes.
type Tx interface {
	Reader
	Writer
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Store is a transactional temporal graph store.
type Store interface {
	Reader
	Begin(ctx context.Context) (Tx, error)
	Close(ctx context.Context) error
}

// NewVertexID returns a fresh vertex id.
func NewVertexID() string { return uuid.NewString() }

// Supersede is the only mutation the append-only discipline allows: close the
// previous version when it belongs to the same branch and is still open, then
// append next. A previous version owned by another branch stays untouched; the
// deeper branch level of next shadows it during resolution.
func Supersede(ctx context.Context, w Writer, prev *Edge, next Edge) error {
	if next.ID == "" {
		next.ID = uuid.NewString()
	}
	if prev != nil && prev.Open() && prev.Props.Branch == next.Props.Branch {
		if err := w.CloseEdge(ctx, prev.ID, next.Props.From); err != nil {
			return err
		}
	}
	return w.CreateEdge(ctx, next)
}
