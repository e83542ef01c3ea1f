package aggregates

import (
	"context"
	"sort"
	"testing"

	"github.com/yungbote/branchgraph/internal/data/graph/memgraph"
	domainbranch "github.com/yungbote/branchgraph/internal/domain/branch"
	domaingraph "github.com/yungbote/branchgraph/internal/domain/graph"
	"github.com/yungbote/branchgraph/internal/domain/schema"
	"github.com/yungbote/branchgraph/internal/domain/timestamp"
)

func ts(raw string) timestamp.Timestamp { return timestamp.MustParse(raw) }

type mapBranches map[string]domainbranch.Branch

func (m mapBranches) Branch(_ context.Context, name string) (domainbranch.Branch, error) {
	b, ok := m[name]
	if !ok {
		return domainbranch.Branch{}, NotFoundError("branch " + name)
	}
	return b, nil
}

type fixedConflicts []string

func (f fixedConflicts) ConflictMessages(context.Context, domaingraph.Reader, domainbranch.Branch, timestamp.Timestamp) ([]string, error) {
	return f, nil
}

func testSchemas(t *testing.T) *schema.Cache {
	t.Helper()
	sb, err := schema.NewSchemaBranch([]schema.NodeSchema{
		{
			Kind:       "Person",
			Attributes: []schema.AttributeSchema{{Name: "name"}},
			Relationships: []schema.RelationshipSchema{
				{Name: "tags", Peer: "Tag", Cardinality: schema.CardinalityMany},
				{Name: "manager", Peer: "Person", Cardinality: schema.CardinalityOne},
			},
		},
		{Kind: "Tag", Attributes: []schema.AttributeSchema{{Name: "name"}}},
	})
	if err != nil {
		t.Fatalf("schema: %v", err)
	}
	c := schema.NewCache("main")
	c.Set("main", sb)
	return c
}

type world struct {
	store *memgraph.Store
	main  domainbranch.Branch
	br1   domainbranch.Branch
}

func newWorld(t *testing.T) world {
	t.Helper()
	main := domainbranch.NewDefault("main", ts("2024-01-01T00:00:00.000000Z"))
	return world{
		store: memgraph.New(),
		main:  main,
		br1:   domainbranch.NewChild("br1", main, ts("2024-01-01T00:00:10.000000Z")),
	}
}

func (w world) branches() mapBranches {
	return mapBranches{w.main.Name: w.main, w.br1.Name: w.br1}
}

// addNode writes a node vertex and its IS_PART_OF edge on b at at.
func (w world) addNode(t *testing.T, id, kind string, b domainbranch.Branch, at timestamp.Timestamp) {
	t.Helper()
	ctx := context.Background()
	err := NewGraphTxRunner(w.store).InTx(ctx, func(tx domaingraph.Tx) error {
		if err := tx.CreateVertex(ctx, domaingraph.Vertex{ID: id, Kind: domaingraph.VertexNode, NodeKind: kind}); err != nil {
			return err
		}
		return tx.CreateEdge(ctx, newEdge(b, at, domaingraph.LabelIsPartOf, id, domaingraph.RootID, domaingraph.StatusActive))
	})
	if err != nil {
		t.Fatalf("add node %s: %v", id, err)
	}
}

// addAttribute writes an attribute vertex with its first value.
func (w world) addAttribute(t *testing.T, nodeID, name string, value any, b domainbranch.Branch, at timestamp.Timestamp) string {
	t.Helper()
	ctx := context.Background()
	attrID := nodeID + ":" + name
	err := NewGraphTxRunner(w.store).InTx(ctx, func(tx domaingraph.Tx) error {
		if err := tx.CreateVertex(ctx, domaingraph.Vertex{ID: attrID, Kind: domaingraph.VertexAttribute, Name: name, NodeID: nodeID}); err != nil {
			return err
		}
		if err := tx.CreateEdge(ctx, newEdge(b, at, domaingraph.LabelHasAttribute, nodeID, attrID, domaingraph.StatusActive)); err != nil {
			return err
		}
		return WriteValue(ctx, tx, b, at, attrID, value, nil)
	})
	if err != nil {
		t.Fatalf("add attribute %s.%s: %v", nodeID, name, err)
	}
	return attrID
}

// setValue supersedes the effective value of attrID on b.
func (w world) setValue(t *testing.T, attrID string, value any, b domainbranch.Branch, at timestamp.Timestamp) {
	t.Helper()
	ctx := context.Background()
	err := NewGraphTxRunner(w.store).InTx(ctx, func(tx domaingraph.Tx) error {
		props, err := domaingraph.NewResolver(tx, b.ResolutionSet(at)).Properties(ctx, attrID)
		if err != nil {
			return err
		}
		return WriteValue(ctx, tx, b, at, attrID, value, PropertyEdge(props, domaingraph.LabelHasValue))
	})
	if err != nil {
		t.Fatalf("set value %s: %v", attrID, err)
	}
}

func (w world) value(t *testing.T, attrID string, b domainbranch.Branch, at timestamp.Timestamp) any {
	t.Helper()
	ctx := context.Background()
	props, err := domaingraph.NewResolver(w.store, b.ResolutionSet(at)).Properties(ctx, attrID)
	if err != nil {
		t.Fatalf("properties: %v", err)
	}
	e, ok := props[domaingraph.LabelHasValue]
	if !ok || !e.Active() {
		return nil
	}
	v, _, err := w.store.Vertex(ctx, e.Dst)
	if err != nil {
		t.Fatalf("vertex: %v", err)
	}
	return v.Value
}

func (w world) peers(t *testing.T, nodeID, identifier string, b domainbranch.Branch, at timestamp.Timestamp) []string {
	t.Helper()
	paths, err := domaingraph.NewResolver(w.store, b.ResolutionSet(at)).Peers(context.Background(), nodeID, identifier, false)
	if err != nil {
		t.Fatalf("peers: %v", err)
	}
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		out = append(out, p.PeerID)
	}
	sort.Strings(out)
	return out
}
