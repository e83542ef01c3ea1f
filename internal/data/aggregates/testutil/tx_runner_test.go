package testutil

import (
	"context"
	"errors"
	"testing"

	"github.com/yungbote/branchgraph/internal/data/graph/memgraph"
	domaingraph "github.com/yungbote/branchgraph/internal/domain/graph"
)

func TestInjectedTxRunner_CommitsOnSuccess(t *testing.T) {
	r := &InjectedTxRunner{Store: memgraph.New()}
	called := false
	err := r.InTx(context.Background(), func(_ domaingraph.Tx) error {
		called = true
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if !called {
		t.Fatalf("expected callback to run")
	}
	if r.BeginCalls != 1 || r.CommitCalls != 1 || r.RollbackCalls != 0 {
		t.Fatalf("unexpected counters begin=%d commit=%d rollback=%d", r.BeginCalls, r.CommitCalls, r.RollbackCalls)
	}
}

func TestInjectedTxRunner_RollbackOnBodyError(t *testing.T) {
	r := &InjectedTxRunner{Store: memgraph.New()}
	bodyErr := errors.New("boom")
	err := r.InTx(context.Background(), func(_ domaingraph.Tx) error {
		return bodyErr
	})
	if !errors.Is(err, bodyErr) {
		t.Fatalf("expected body err, got %v", err)
	}
	if r.BeginCalls != 1 || r.CommitCalls != 0 || r.RollbackCalls != 1 {
		t.Fatalf("unexpected counters begin=%d commit=%d rollback=%d", r.BeginCalls, r.CommitCalls, r.RollbackCalls)
	}
}

func TestInjectedTxRunner_FailCommitDiscardsWrites(t *testing.T) {
	ctx := context.Background()
	store := memgraph.New()
	commitErr := errors.New("commit failed")
	r := &InjectedTxRunner{Store: store, FailCommit: commitErr, FailCommitTimes: 1}
	body := func(tx domaingraph.Tx) error {
		return tx.CreateVertex(ctx, domaingraph.Vertex{ID: "n1", Kind: domaingraph.VertexNode})
	}
	if err := r.InTx(ctx, body); !errors.Is(err, commitErr) {
		t.Fatalf("expected commit err, got %v", err)
	}
	if _, ok, _ := store.Vertex(ctx, "n1"); ok {
		t.Fatalf("failed commit must discard writes")
	}
	if err := r.InTx(ctx, body); err != nil {
		t.Fatalf("second attempt: %v", err)
	}
	if r.BeginCalls != 2 || r.CommitCalls != 1 || r.RollbackCalls != 1 {
		t.Fatalf("unexpected counters begin=%d commit=%d rollback=%d", r.BeginCalls, r.CommitCalls, r.RollbackCalls)
	}
}
