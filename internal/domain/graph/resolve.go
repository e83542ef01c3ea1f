package graph

import (
	"context"
	"sort"
)

// Resolver answers "what is effective" questions for one resolution set.
type Resolver struct {
	R     Reader
	Scope Scope
}

func NewResolver(r Reader, scope Scope) Resolver {
	return Resolver{R: r, Scope: scope}
}

// SlotKey is the key of the slot an edge version belongs to.
func SlotKey(e Edge) string {
	if e.Label.SingleValued() {
		return e.Src + "|" + string(e.Label)
	}
	return e.Src + "|" + string(e.Label) + "|" + e.Dst
}

// Effective fetches the candidates matching q on the scope and keeps the
// effective version per slot.
func (r Resolver) Effective(ctx context.Context, q EdgeQuery) (map[string]Edge, error) {
	scope := r.Scope
	q.Scope = &scope
	candidates, err := r.R.Edges(ctx, q)
	if err != nil {
		return nil, err
	}
	return SelectPerKey(candidates, SlotKey), nil
}

// NodeActive reports whether the node is part of the graph on the scope.
func (r Resolver) NodeActive(ctx context.Context, nodeID string) (bool, error) {
	slots, err := r.Effective(ctx, EdgeQuery{Labels: []Label{LabelIsPartOf}, Src: nodeID, Dst: RootID})
	if err != nil {
		return false, err
	}
	e, ok := slots[SlotKey(Edge{Src: nodeID, Label: LabelIsPartOf, Dst: RootID})]
	return ok && e.Active(), nil
}

// ActiveNodes lists the ids of every node active on the scope, sorted.
func (r Resolver) ActiveNodes(ctx context.Context) ([]string, error) {
	slots, err := r.Effective(ctx, EdgeQuery{Labels: []Label{LabelIsPartOf}, Dst: RootID})
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(slots))
	for _, e := range slots {
		if e.Active() {
			out = append(out, e.Src)
		}
	}
	sort.Strings(out)
	return out, nil
}

// Attributes maps attribute name to its effective HAS_ATTRIBUTE edge. Edges
// resolving to deleted are left out.
func (r Resolver) Attributes(ctx context.Context, nodeID string) (map[string]Edge, error) {
	slots, err := r.Effective(ctx, EdgeQuery{Labels: []Label{LabelHasAttribute}, Src: nodeID})
	if err != nil {
		return nil, err
	}
	out := make(map[string]Edge, len(slots))
	for _, e := range slots {
		if !e.Active() {
			continue
		}
		v, ok, err := r.R.Vertex(ctx, e.Dst)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		out[v.Name] = e
	}
	return out, nil
}

// Properties maps each property label of src to its effective edge. Deleted
// winners are kept so callers can tell "never set" from "removed".
func (r Resolver) Properties(ctx context.Context, src string) (map[Label]Edge, error) {
	slots, err := r.Effective(ctx, EdgeQuery{Labels: PropertyLabels, Src: src})
	if err != nil {
		return nil, err
	}
	out := make(map[Label]Edge, len(slots))
	for _, e := range slots {
		out[e.Label] = e
	}
	return out, nil
}

// PeerPath is the effective two-hop path node -> relationship <- peer.
type PeerPath struct {
	RelationshipID string
	PeerID         string
	Path           Path
}

// Peers returns the effective paths between nodeID and its peers through
// relationship vertices named identifier. Inactive paths are dropped unless
// withInactive is set.
func (r Resolver) Peers(ctx context.Context, nodeID, identifier string, withInactive bool) ([]PeerPath, error) {
	scope := r.Scope
	near, err := r.R.Edges(ctx, EdgeQuery{Labels: []Label{LabelIsRelated}, Src: nodeID, Scope: &scope})
	if err != nil {
		return nil, err
	}
	byRel := map[string][]Edge{}
	for _, e := range near {
		byRel[e.Dst] = append(byRel[e.Dst], e)
	}
	relIDs := make([]string, 0, len(byRel))
	for id := range byRel {
		relIDs = append(relIDs, id)
	}
	sort.Strings(relIDs)

	var out []PeerPath
	for _, relID := range relIDs {
		if identifier != "" {
			v, ok, err := r.R.Vertex(ctx, relID)
			if err != nil {
				return nil, err
			}
			if !ok || v.Name != identifier {
				continue
			}
		}
		far, err := r.R.Edges(ctx, EdgeQuery{Labels: []Label{LabelIsRelated}, Dst: relID, Scope: &scope})
		if err != nil {
			return nil, err
		}
		var paths []Path
		for _, first := range byRel[relID] {
			for _, second := range far {
				if second.Src == nodeID {
					continue
				}
				paths = append(paths, Path{first, second})
			}
		}
		best, ok := SelectPath(paths)
		if !ok {
			continue
		}
		if !withInactive && !best.Active() {
			continue
		}
		out = append(out, PeerPath{RelationshipID: relID, PeerID: best[1].Src, Path: best})
	}
	return out, nil
}
