package aggregates

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/yungbote/branchgraph/internal/data/graph/memgraph"
	domainagg "github.com/yungbote/branchgraph/internal/domain/aggregates"
	domaingraph "github.com/yungbote/branchgraph/internal/domain/graph"
	"github.com/yungbote/branchgraph/internal/domain/timestamp"
)

func noSleep(context.Context, time.Duration) error { return nil }

func TestExecuteWriteObservesSuccessStatus(t *testing.T) {
	hooks := &spyHooks{}
	runner := &spyTxRunner{}

	err := executeWrite(context.Background(), BaseDeps{
		Runner: runner,
		Hooks:  hooks,
	}, "aggregate.test.success", func(_ domaingraph.Tx) error { return nil })
	if err != nil {
		t.Fatalf("executeWrite success: %v", err)
	}
	if len(hooks.Operations) != 1 {
		t.Fatalf("operations count: want=1 got=%d", len(hooks.Operations))
	}
	if hooks.Operations[0].Status != "success" {
		t.Fatalf("operation status: want=success got=%s", hooks.Operations[0].Status)
	}
}

func TestExecuteWriteObservesInvariantViolationStatus(t *testing.T) {
	hooks := &spyHooks{}
	runner := &spyTxRunner{}

	err := executeWrite(context.Background(), BaseDeps{
		Runner: runner,
		Hooks:  hooks,
		Retry:  RetryPolicy{MaxAttempts: 3, Sleep: noSleep},
	}, "aggregate.test.invariant", func(_ domaingraph.Tx) error {
		return InvariantError("invariant broken")
	})
	if !domainagg.IsCode(err, domainagg.CodeInvariantViolation) {
		t.Fatalf("expected invariant violation code, got=%v", err)
	}
	if runner.Calls != 1 {
		t.Fatalf("invariant violations must not be retried: calls=%d", runner.Calls)
	}
	if hooks.Operations[0].Status != string(domainagg.CodeInvariantViolation) {
		t.Fatalf("operation status: want=%s got=%s", domainagg.CodeInvariantViolation, hooks.Operations[0].Status)
	}
}

func TestExecuteWriteTracksConflictAndRetryCounters(t *testing.T) {
	t.Run("conflict", func(t *testing.T) {
		hooks := &spyHooks{}
		err := executeWrite(context.Background(), BaseDeps{
			Runner: &spyTxRunner{},
			Hooks:  hooks,
		}, "aggregate.test.conflict", func(_ domaingraph.Tx) error {
			return ConflictError("stale version")
		})
		if !domainagg.IsCode(err, domainagg.CodeConflict) {
			t.Fatalf("expected conflict code, got=%v", err)
		}
		if len(hooks.Operations) != 1 || hooks.Operations[0].Status != string(domainagg.CodeConflict) || hooks.Operations[0].Attempts != 1 {
			t.Fatalf("conflict outcome: %+v", hooks.Operations)
		}
		if len(hooks.Retries) != 0 {
			t.Fatalf("retry hooks should be empty, got=%+v", hooks.Retries)
		}
	})

	t.Run("retries exhausted", func(t *testing.T) {
		hooks := &spyHooks{}
		runner := &spyTxRunner{}
		err := executeWrite(context.Background(), BaseDeps{
			Runner: runner,
			Hooks:  hooks,
			Retry:  RetryPolicy{MaxAttempts: 3, Sleep: noSleep},
		}, "aggregate.test.retry", func(_ domaingraph.Tx) error {
			return RetryableError("temporary lock timeout")
		})
		if !domainagg.IsCode(err, domainagg.CodeDatabase) {
			t.Fatalf("expected database code, got=%v", err)
		}
		if runner.Calls != 3 {
			t.Fatalf("attempts: want=3 got=%d", runner.Calls)
		}
		if len(hooks.Retries) != 2 || hooks.Retries[0] != domainagg.CodeRetryable {
			t.Fatalf("retry hooks: want=2 retryable got=%+v", hooks.Retries)
		}
		if hooks.Operations[0].Status != string(domainagg.CodeDatabase) || hooks.Operations[0].Attempts != 3 {
			t.Fatalf("unexpected op status: %+v", hooks.Operations)
		}
	})

	t.Run("recovers", func(t *testing.T) {
		runner := &spyTxRunner{}
		err := executeWrite(context.Background(), BaseDeps{
			Runner: runner,
			Retry:  RetryPolicy{MaxAttempts: 3, Sleep: noSleep},
		}, "aggregate.test.recover", func(_ domaingraph.Tx) error {
			if runner.Calls < 2 {
				return RetryableError("deadlock")
			}
			return nil
		})
		if err != nil {
			t.Fatalf("expected success on second attempt, got=%v", err)
		}
		if runner.Calls != 2 {
			t.Fatalf("attempts: want=2 got=%d", runner.Calls)
		}
	})
}

func TestExecuteWriteStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	runner := &spyTxRunner{}
	err := executeWrite(ctx, BaseDeps{
		Runner: runner,
		Retry:  RetryPolicy{MaxAttempts: 5, Sleep: noSleep},
	}, "aggregate.test.cancel", func(_ domaingraph.Tx) error {
		cancel()
		return RetryableError("timeout")
	})
	if !domainagg.IsCode(err, domainagg.CodeRetryable) {
		t.Fatalf("expected retryable code, got=%v", err)
	}
	if runner.Calls != 1 {
		t.Fatalf("cancelled write must not retry: calls=%d", runner.Calls)
	}
}

func TestGraphTxRunnerRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	s := memgraph.New()
	boom := errors.New("boom")
	err := NewGraphTxRunner(s).InTx(ctx, func(tx domaingraph.Tx) error {
		if err := tx.CreateVertex(ctx, domaingraph.Vertex{ID: "n1", Kind: domaingraph.VertexNode}); err != nil {
			return err
		}
		if err := tx.CreateEdge(ctx, domaingraph.NewEdge(domaingraph.LabelIsPartOf, "n1", domaingraph.RootID, "main", 1, timestamp.Now(), domaingraph.StatusActive)); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected body error, got=%v", err)
	}
	if s.Len() != 0 {
		t.Fatalf("rolled back tx must leave no edges, got=%d", s.Len())
	}
}

func TestGraphTxRunnerRollsBackWhenCancelled(t *testing.T) {
	s := memgraph.New()
	ctx, cancel := context.WithCancel(context.Background())
	err := NewGraphTxRunner(s).InTx(ctx, func(tx domaingraph.Tx) error {
		if err := tx.CreateVertex(ctx, domaingraph.Vertex{ID: "n1", Kind: domaingraph.VertexNode}); err != nil {
			return err
		}
		cancel()
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got=%v", err)
	}
	if _, ok, _ := s.Vertex(context.Background(), "n1"); ok {
		t.Fatalf("cancelled tx must not commit")
	}
}

func TestComputeBackoffBounds(t *testing.T) {
	r := RetryPolicy{MinBackoff: 100 * time.Millisecond, MaxBackoff: 400 * time.Millisecond, JitterFrac: 0.1}
	for attempt, want := range map[int]time.Duration{1: 100 * time.Millisecond, 2: 200 * time.Millisecond, 5: 400 * time.Millisecond} {
		got := computeBackoff(r, attempt)
		if got < want*9/10 || got > want*11/10 {
			t.Fatalf("attempt %d: want ~%s got=%s", attempt, want, got)
		}
	}
}

func TestAggregateErrorStatus(t *testing.T) {
	if got := aggregateErrorStatus(nil); got != "success" {
		t.Fatalf("nil status: want=success got=%s", got)
	}
	if got := aggregateErrorStatus(InvariantError("x")); got != string(domainagg.CodeInvariantViolation) {
		t.Fatalf("invariant status: got=%s", got)
	}
	if got := aggregateErrorStatus(context.DeadlineExceeded); got != string(domainagg.CodeRetryable) {
		t.Fatalf("deadline status: got=%s", got)
	}
}

type spyTxRunner struct {
	Calls int
}

func (r *spyTxRunner) InTx(_ context.Context, fn func(tx domaingraph.Tx) error) error {
	r.Calls++
	if fn == nil {
		return nil
	}
	return fn(nil)
}

type spyHooks struct {
	Operations []spyOperation
	Retries    []domainagg.ErrorCode
}

type spyOperation struct {
	Name string
	WriteOutcome
}

func (h *spyHooks) ObserveWrite(name string, out WriteOutcome) {
	h.Operations = append(h.Operations, spyOperation{Name: name, WriteOutcome: out})
}

func (h *spyHooks) IncRetry(_ string, code domainagg.ErrorCode) {
	h.Retries = append(h.Retries, code)
}
