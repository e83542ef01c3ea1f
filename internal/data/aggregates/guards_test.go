package aggregates

import (
	"context"
	"testing"
	"time"

	"github.com/yungbote/branchgraph/internal/data/graph/memgraph"
	domainagg "github.com/yungbote/branchgraph/internal/domain/aggregates"
	domainbranch "github.com/yungbote/branchgraph/internal/domain/branch"
	domaingraph "github.com/yungbote/branchgraph/internal/domain/graph"
	"github.com/yungbote/branchgraph/internal/domain/timestamp"
)

func TestRequireVertex(t *testing.T) {
	ctx := context.Background()
	s := memgraph.New()
	if _, err := RequireVertex(ctx, s, domaingraph.RootID, domaingraph.VertexRoot); err != nil {
		t.Fatalf("root: %v", err)
	}
	_, err := RequireVertex(ctx, s, domaingraph.RootID, domaingraph.VertexNode)
	if !domainagg.IsCode(MapError("op", err), domainagg.CodeNotFound) {
		t.Fatalf("kind mismatch: want not_found got=%v", err)
	}
	_, err = RequireVertex(ctx, s, " ", "")
	if !domainagg.IsCode(MapError("op", err), domainagg.CodeValidation) {
		t.Fatalf("empty id: want validation got=%v", err)
	}
}

func TestRequireOpenEdge(t *testing.T) {
	ctx := context.Background()
	s := memgraph.New()
	at := timestamp.MustParse("2024-01-01T00:00:00.000000Z")
	e := domaingraph.NewEdge(domaingraph.LabelIsPartOf, "n1", domaingraph.RootID, "main", 1, at, domaingraph.StatusActive)
	err := NewGraphTxRunner(s).InTx(ctx, func(tx domaingraph.Tx) error {
		if err := tx.CreateVertex(ctx, domaingraph.Vertex{ID: "n1", Kind: domaingraph.VertexNode}); err != nil {
			return err
		}
		return tx.CreateEdge(ctx, e)
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := RequireOpenEdge(ctx, s, e); err != nil {
		t.Fatalf("open edge: %v", err)
	}
	err = NewGraphTxRunner(s).InTx(ctx, func(tx domaingraph.Tx) error {
		return tx.CloseEdge(ctx, e.ID, at)
	})
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := RequireOpenEdge(ctx, s, e); !domainagg.IsCode(MapError("op", err), domainagg.CodeConflict) {
		t.Fatalf("closed edge: want conflict got=%v", err)
	}
}

func TestRequireCASSuccess(t *testing.T) {
	if err := RequireCASSuccess(true, "x"); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if err := RequireCASSuccess(false, "stale"); !domainagg.IsCode(MapError("op", err), domainagg.CodeConflict) {
		t.Fatalf("expected conflict, got=%v", err)
	}
}

func TestTombstoneRefusesVersionClosedByAnotherWriter(t *testing.T) {
	ctx := context.Background()
	s := memgraph.New()
	b := domainbranch.Branch{Name: "main", HierarchyLevel: 1}
	at := timestamp.MustParse("2024-01-01T00:00:00.000000Z")
	stale := domaingraph.NewEdge(domaingraph.LabelIsPartOf, "n1", domaingraph.RootID, "main", 1, at, domaingraph.StatusActive)
	runner := NewGraphTxRunner(s)
	err := runner.InTx(ctx, func(tx domaingraph.Tx) error {
		if err := tx.CreateVertex(ctx, domaingraph.Vertex{ID: "n1", Kind: domaingraph.VertexNode}); err != nil {
			return err
		}
		return tx.CreateEdge(ctx, stale)
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	err = runner.InTx(ctx, func(tx domaingraph.Tx) error {
		return Tombstone(ctx, tx, b, at.Add(time.Second), stale)
	})
	if err != nil {
		t.Fatalf("first tombstone: %v", err)
	}
	before := s.Len()

	err = runner.InTx(ctx, func(tx domaingraph.Tx) error {
		return Tombstone(ctx, tx, b, at.Add(2*time.Second), stale)
	})
	if !domainagg.IsCode(MapError("op", err), domainagg.CodeConflict) {
		t.Fatalf("second tombstone: want conflict got=%v", err)
	}
	if s.Len() != before {
		t.Fatalf("refused tombstone wrote edges: before=%d after=%d", before, s.Len())
	}
}
