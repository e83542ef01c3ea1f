package aggregates

import (
	"context"
	"strings"

	domainagg "github.com/yungbote/branchgraph/internal/domain/aggregates"
	domainbranch "github.com/yungbote/branchgraph/internal/domain/branch"
	domaingraph "github.com/yungbote/branchgraph/internal/domain/graph"
	"github.com/yungbote/branchgraph/internal/domain/timestamp"
)

// BranchLookup resolves a branch name to the registry's current view.
type BranchLookup interface {
	Branch(ctx context.Context, name string) (domainbranch.Branch, error)
}

// WriteFlag records value for the flag label of src as a fresh Boolean vertex.
func WriteFlag(ctx context.Context, tx domaingraph.Tx, b domainbranch.Branch, at timestamp.Timestamp, src string, label domaingraph.Label, value bool, prev *domaingraph.Edge) error {
	v := domaingraph.Vertex{ID: domaingraph.NewVertexID(), Kind: domaingraph.VertexBoolean, Value: value}
	if err := tx.CreateVertex(ctx, v); err != nil {
		return err
	}
	return supersede(ctx, tx, prev, newEdge(b, at, label, src, v.ID, domaingraph.StatusActive))
}

// WriteValue records value as the HAS_VALUE of an attribute vertex.
func WriteValue(ctx context.Context, tx domaingraph.Tx, b domainbranch.Branch, at timestamp.Timestamp, attrID string, value any, prev *domaingraph.Edge) error {
	v := domaingraph.Vertex{ID: domaingraph.NewVertexID(), Kind: domaingraph.VertexAttributeValue, Value: value}
	if err := tx.CreateVertex(ctx, v); err != nil {
		return err
	}
	return supersede(ctx, tx, prev, newEdge(b, at, domaingraph.LabelHasValue, attrID, v.ID, domaingraph.StatusActive))
}

// WriteNodeRef points the source/owner label of src at nodeID. An empty
// nodeID records the removal as a deleted edge towards the previous target.
func WriteNodeRef(ctx context.Context, tx domaingraph.Tx, b domainbranch.Branch, at timestamp.Timestamp, src string, label domaingraph.Label, nodeID string, prev *domaingraph.Edge) error {
	nodeID = strings.TrimSpace(nodeID)
	if nodeID == "" {
		if prev == nil || !prev.Active() {
			return nil
		}
		return supersede(ctx, tx, prev, newEdge(b, at, label, src, prev.Dst, domaingraph.StatusDeleted))
	}
	if _, err := RequireVertex(ctx, tx, nodeID, domaingraph.VertexNode); err != nil {
		return err
	}
	return supersede(ctx, tx, prev, newEdge(b, at, label, src, nodeID, domaingraph.StatusActive))
}

// Tombstone closes e when the branch owns it and records a deleted version.
func Tombstone(ctx context.Context, tx domaingraph.Tx, b domainbranch.Branch, at timestamp.Timestamp, e domaingraph.Edge) error {
	return supersede(ctx, tx, &e, newEdge(b, at, e.Label, e.Src, e.Dst, domaingraph.StatusDeleted))
}

// supersede replaces prev by next. A previous version the branch owns is
// re-read first: when another writer closed it since it was resolved, the
// write fails with a conflict instead of closing it twice.
func supersede(ctx context.Context, tx domaingraph.Tx, prev *domaingraph.Edge, next domaingraph.Edge) error {
	if prev != nil && prev.Open() && prev.Props.Branch == next.Props.Branch {
		if err := RequireOpenEdge(ctx, tx, *prev); err != nil {
			return err
		}
	}
	return domaingraph.Supersede(ctx, tx, prev, next)
}

func newEdge(b domainbranch.Branch, at timestamp.Timestamp, label domaingraph.Label, src, dst string, status domaingraph.Status) domaingraph.Edge {
	return domaingraph.NewEdge(label, src, dst, b.Name, b.HierarchyLevel, at, status)
}

// ReadFlag returns the value behind an effective flag edge, or def when the
// flag was never set or resolves to deleted.
func ReadFlag(ctx context.Context, r domaingraph.Reader, e domaingraph.Edge, ok bool, def bool) (bool, error) {
	if !ok || !e.Active() {
		return def, nil
	}
	v, found, err := r.Vertex(ctx, e.Dst)
	if err != nil {
		return def, err
	}
	if !found {
		return def, nil
	}
	switch val := v.Value.(type) {
	case bool:
		return val, nil
	case string:
		return strings.EqualFold(val, "true"), nil
	default:
		return def, nil
	}
}

// ReadPeerProperties decodes the effective property edges of a relationship
// vertex.
func ReadPeerProperties(ctx context.Context, r domaingraph.Reader, props map[domaingraph.Label]domaingraph.Edge) (domainagg.PeerProperties, error) {
	out := domainagg.DefaultPeerProperties()
	var err error
	e, ok := props[domaingraph.LabelIsVisible]
	if out.IsVisible, err = ReadFlag(ctx, r, e, ok, true); err != nil {
		return out, err
	}
	e, ok = props[domaingraph.LabelIsProtected]
	if out.IsProtected, err = ReadFlag(ctx, r, e, ok, false); err != nil {
		return out, err
	}
	if e, ok := props[domaingraph.LabelHasSource]; ok && e.Active() {
		out.Source = e.Dst
	}
	if e, ok := props[domaingraph.LabelHasOwner]; ok && e.Active() {
		out.Owner = e.Dst
	}
	return out, nil
}

// PropertyEdge returns a pointer to the effective edge of label, nil if none.
func PropertyEdge(props map[domaingraph.Label]domaingraph.Edge, label domaingraph.Label) *domaingraph.Edge {
	e, ok := props[label]
	if !ok {
		return nil
	}
	return &e
}
