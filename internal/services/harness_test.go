package services

import (
	"context"
	"strings"
	"testing"

	"github.com/yungbote/branchgraph/internal/data/aggregates"
	"github.com/yungbote/branchgraph/internal/data/graph/memgraph"
	branchrepo "github.com/yungbote/branchgraph/internal/data/repos/branch"
	"github.com/yungbote/branchgraph/internal/data/repos/testutil"
	domainagg "github.com/yungbote/branchgraph/internal/domain/aggregates"
	"github.com/yungbote/branchgraph/internal/domain/schema"
	"github.com/yungbote/branchgraph/internal/domain/timestamp"
	"github.com/yungbote/branchgraph/internal/realtime/bus"
)

const testSchemaYAML = `
nodes:
  - kind: Person
    attributes:
      - name: name
      - name: nickname
        optional: true
      - name: external_id
        optional: true
        branch_agnostic: true
    relationships:
      - name: tags
        peer: Tag
      - name: manager
        peer: Person
        cardinality: one
  - kind: Tag
    attributes:
      - name: name
`

func ts(raw string) timestamp.Timestamp { return timestamp.MustParse(raw) }

type harness struct {
	store    *memgraph.Store
	graph    aggregates.BaseDeps
	mergeAgg domainagg.MergeAggregate
	bus      *bus.MemoryBus
	registry BranchRegistry
	diff     DiffService
	merge    MergeService
	nodes    NodeService
	rels     RelationshipService
}

func newHarness(t *testing.T) harness {
	t.Helper()
	ctx := context.Background()
	log := testutil.Logger(t)
	tx := testutil.Tx(t, testutil.DB(t))

	sb, err := schema.Load(strings.NewReader(testSchemaYAML))
	if err != nil {
		t.Fatalf("schema: %v", err)
	}
	schemas := schema.NewCache("main")
	schemas.Set("main", sb)

	store := memgraph.New()
	graph := aggregates.BaseDeps{Store: store, Log: log}
	b := bus.NewMemoryBus()
	registry := NewBranchRegistry(BranchRegistryDeps{
		DB:            tx,
		Log:           log,
		Repo:          branchrepo.NewBranchRepo(tx, log),
		Graph:         graph,
		Schemas:       schemas,
		Bus:           b,
		DefaultBranch: "main",
	})
	if err := registry.Load(ctx); err != nil {
		t.Fatalf("load registry: %v", err)
	}
	diff := NewDiffService(log, store, registry, schemas, nil)
	mergeAgg := aggregates.NewMergeAggregate(aggregates.MergeAggregateDeps{Base: graph, Branches: registry, Conflicts: diff})
	relAgg := aggregates.NewRelationshipAggregate(aggregates.RelationshipAggregateDeps{Base: graph, Branches: registry, Schemas: schemas})
	return harness{
		store:    store,
		graph:    graph,
		mergeAgg: mergeAgg,
		bus:      b,
		registry: registry,
		diff:     diff,
		merge:    NewMergeService(MergeServiceDeps{Log: log, Graph: graph, Registry: registry, Diff: diff, Merge: mergeAgg}),
		nodes:    NewNodeService(log, graph, registry),
		rels:     NewRelationshipService(log, store, registry, relAgg, nil),
	}
}

func (h harness) createNode(t *testing.T, branch, id, kind, name string, at timestamp.Timestamp) {
	t.Helper()
	_, err := h.nodes.Create(context.Background(), CreateNodeInput{
		Branch:     branch,
		At:         at,
		ID:         id,
		Kind:       kind,
		Attributes: map[string]AttributeInput{"name": {Value: name}},
	})
	if err != nil {
		t.Fatalf("create %s: %v", id, err)
	}
}

func (h harness) setName(t *testing.T, branch, id, name string, at timestamp.Timestamp) {
	t.Helper()
	changed, err := h.nodes.UpdateAttribute(context.Background(), UpdateAttributeInput{
		Branch: branch, At: at, NodeID: id, Name: "name", SetValue: true, Input: AttributeInput{Value: name},
	})
	if err != nil {
		t.Fatalf("set %s.name on %s: %v", id, branch, err)
	}
	if !changed {
		t.Fatalf("set %s.name on %s: nothing written", id, branch)
	}
}

func (h harness) name(t *testing.T, branch, id string, at timestamp.Timestamp) any {
	t.Helper()
	n, ok, err := h.nodes.Get(context.Background(), branch, at, id)
	if err != nil {
		t.Fatalf("get %s: %v", id, err)
	}
	if !ok {
		return nil
	}
	return n.Attributes["name"].Value
}

func (h harness) createBranch(t *testing.T, name string, at timestamp.Timestamp) {
	t.Helper()
	if _, err := h.registry.Create(context.Background(), CreateBranchInput{Name: name, At: at}); err != nil {
		t.Fatalf("create branch %s: %v", name, err)
	}
}
