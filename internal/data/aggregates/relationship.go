package aggregates

import (
	"context"
	"fmt"
	"sort"
	"strings"

	domainagg "github.com/yungbote/branchgraph/internal/domain/aggregates"
	domainbranch "github.com/yungbote/branchgraph/internal/domain/branch"
	domaingraph "github.com/yungbote/branchgraph/internal/domain/graph"
	"github.com/yungbote/branchgraph/internal/domain/schema"
	"github.com/yungbote/branchgraph/internal/domain/timestamp"
)

type RelationshipAggregateDeps struct {
	Base BaseDeps

	Branches BranchLookup
	Schemas  *schema.Cache
}

type relationshipAggregate struct {
	deps RelationshipAggregateDeps
}

func NewRelationshipAggregate(deps RelationshipAggregateDeps) domainagg.RelationshipAggregate {
	deps.Base = deps.Base.withDefaults()
	return &relationshipAggregate{deps: deps}
}

func (a *relationshipAggregate) Contract() domainagg.Contract {
	return domainagg.RelationshipAggregateContract
}

func (a *relationshipAggregate) Reconcile(ctx context.Context, in domainagg.ReconcileInput) (domainagg.ReconcileResult, error) {
	const op = "Nodes.Relationship.Reconcile"
	var out domainagg.ReconcileResult

	nodeID := strings.TrimSpace(in.NodeID)
	field := strings.TrimSpace(in.Field)
	if nodeID == "" {
		return out, domainagg.NewError(domainagg.CodeValidation, op, "missing node_id", nil)
	}
	if field == "" {
		return out, domainagg.NewError(domainagg.CodeValidation, op, "missing field", nil)
	}
	if a.deps.Branches == nil || a.deps.Schemas == nil {
		return out, domainagg.NewError(domainagg.CodeInternal, op, "relationship aggregate dependencies not configured", nil)
	}
	b, err := a.deps.Branches.Branch(ctx, in.Branch)
	if err != nil {
		return out, MapError(op, err)
	}
	at := in.At
	if at.IsZero() {
		at = timestamp.Now()
	}

	desired, order, err := dedupePeers(in.Peers)
	if err != nil {
		return out, domainagg.NewError(domainagg.CodeValidation, op, err.Error(), nil)
	}

	err = executeWrite(ctx, a.deps.Base, op, func(tx domaingraph.Tx) error {
		out = domainagg.ReconcileResult{}
		node, err := RequireVertex(ctx, tx, nodeID, domaingraph.VertexNode)
		if err != nil {
			return err
		}
		rel, ok := a.deps.Schemas.Relationship(b.Name, node.NodeKind, field)
		if !ok {
			return ValidationError(fmt.Sprintf("%s has no relationship %q", node.NodeKind, field))
		}
		if rel.Cardinality == schema.CardinalityOne && len(desired) > 1 {
			return ValidationError(fmt.Sprintf("%s.%s accepts at most one peer, got %d", node.NodeKind, field, len(desired)))
		}

		resolver := domaingraph.NewResolver(tx, b.ResolutionSet(at))
		active, err := resolver.NodeActive(ctx, nodeID)
		if err != nil {
			return err
		}
		if !active {
			return NotFoundError(fmt.Sprintf("node %s on %s", nodeID, b.Name))
		}
		current, err := resolver.Peers(ctx, nodeID, rel.Identifier, false)
		if err != nil {
			return err
		}

		kept := map[string]domaingraph.PeerPath{}
		var removed []domaingraph.PeerPath
		for _, p := range current {
			_, wanted := desired[p.PeerID]
			_, seen := kept[p.PeerID]
			if !wanted || seen {
				removed = append(removed, p)
				continue
			}
			kept[p.PeerID] = p
		}

		for _, p := range removed {
			for _, e := range p.Path {
				if err := Tombstone(ctx, tx, b, at, e); err != nil {
					return err
				}
			}
			out.Removed = append(out.Removed, p.PeerID)
		}

		for _, peerID := range order {
			want := desired[peerID]
			if p, ok := kept[peerID]; ok {
				changed, err := a.syncProperties(ctx, tx, resolver, b, at, p.RelationshipID, want)
				if err != nil {
					return err
				}
				if changed {
					out.Updated = append(out.Updated, peerID)
				} else {
					out.Unchanged = append(out.Unchanged, peerID)
				}
				continue
			}
			peer, err := RequireVertex(ctx, tx, peerID, domaingraph.VertexNode)
			if err != nil {
				return err
			}
			if peer.NodeKind != rel.Peer {
				return ValidationError(fmt.Sprintf("peer %s is a %s, %s.%s expects %s", peerID, peer.NodeKind, node.NodeKind, field, rel.Peer))
			}
			if err := a.createRelationship(ctx, tx, b, at, nodeID, peerID, rel.Identifier, want); err != nil {
				return err
			}
			out.Created = append(out.Created, peerID)
		}
		sort.Strings(out.Removed)
		return nil
	})
	if err != nil {
		return domainagg.ReconcileResult{}, err
	}
	if a.deps.Base.Log != nil && out.Changed() {
		a.deps.Base.Log.Info("relationship reconciled",
			"branch", b.Name,
			"node_id", nodeID,
			"field", field,
			"created", len(out.Created),
			"removed", len(out.Removed),
			"updated", len(out.Updated),
		)
	}
	return out, nil
}

// createRelationship writes the Relationship vertex, one IS_RELATED edge per
// side and its property edges.
func (a *relationshipAggregate) createRelationship(ctx context.Context, tx domaingraph.Tx, b domainbranch.Branch, at timestamp.Timestamp, nodeID, peerID, identifier string, props domainagg.PeerProperties) error {
	relV := domaingraph.Vertex{ID: domaingraph.NewVertexID(), Kind: domaingraph.VertexRelationship, Name: identifier}
	if err := tx.CreateVertex(ctx, relV); err != nil {
		return err
	}
	for _, src := range []string{nodeID, peerID} {
		if err := tx.CreateEdge(ctx, newEdge(b, at, domaingraph.LabelIsRelated, src, relV.ID, domaingraph.StatusActive)); err != nil {
			return err
		}
	}
	if err := WriteFlag(ctx, tx, b, at, relV.ID, domaingraph.LabelIsVisible, props.IsVisible, nil); err != nil {
		return err
	}
	if err := WriteFlag(ctx, tx, b, at, relV.ID, domaingraph.LabelIsProtected, props.IsProtected, nil); err != nil {
		return err
	}
	if err := WriteNodeRef(ctx, tx, b, at, relV.ID, domaingraph.LabelHasSource, props.Source, nil); err != nil {
		return err
	}
	return WriteNodeRef(ctx, tx, b, at, relV.ID, domaingraph.LabelHasOwner, props.Owner, nil)
}

// syncProperties rewrites only the property edges whose value differs. The
// IS_RELATED edges are left alone.
func (a *relationshipAggregate) syncProperties(ctx context.Context, tx domaingraph.Tx, resolver domaingraph.Resolver, b domainbranch.Branch, at timestamp.Timestamp, relID string, want domainagg.PeerProperties) (bool, error) {
	props, err := resolver.Properties(ctx, relID)
	if err != nil {
		return false, err
	}
	have, err := ReadPeerProperties(ctx, tx, props)
	if err != nil {
		return false, err
	}
	changed := false
	if have.IsVisible != want.IsVisible {
		if err := WriteFlag(ctx, tx, b, at, relID, domaingraph.LabelIsVisible, want.IsVisible, PropertyEdge(props, domaingraph.LabelIsVisible)); err != nil {
			return false, err
		}
		changed = true
	}
	if have.IsProtected != want.IsProtected {
		if err := WriteFlag(ctx, tx, b, at, relID, domaingraph.LabelIsProtected, want.IsProtected, PropertyEdge(props, domaingraph.LabelIsProtected)); err != nil {
			return false, err
		}
		changed = true
	}
	if have.Source != strings.TrimSpace(want.Source) {
		if err := WriteNodeRef(ctx, tx, b, at, relID, domaingraph.LabelHasSource, want.Source, PropertyEdge(props, domaingraph.LabelHasSource)); err != nil {
			return false, err
		}
		changed = true
	}
	if have.Owner != strings.TrimSpace(want.Owner) {
		if err := WriteNodeRef(ctx, tx, b, at, relID, domaingraph.LabelHasOwner, want.Owner, PropertyEdge(props, domaingraph.LabelHasOwner)); err != nil {
			return false, err
		}
		changed = true
	}
	return changed, nil
}

// dedupePeers indexes the wanted properties of each desired peer by id,
// keeping input order. Omitted properties are the defaults. A peer listed
// twice with different properties is ambiguous.
func dedupePeers(in []domainagg.DesiredPeer) (map[string]domainagg.PeerProperties, []string, error) {
	out := make(map[string]domainagg.PeerProperties, len(in))
	order := make([]string, 0, len(in))
	for _, p := range in {
		id := strings.TrimSpace(p.PeerID)
		if id == "" {
			return nil, nil, fmt.Errorf("peer without id")
		}
		want := p.WantedProperties()
		want.Source = strings.TrimSpace(want.Source)
		want.Owner = strings.TrimSpace(want.Owner)
		if prev, dup := out[id]; dup {
			if prev != want {
				return nil, nil, fmt.Errorf("peer %s listed twice with different properties", id)
			}
			continue
		}
		out[id] = want
		order = append(order, id)
	}
	return out, order, nil
}
