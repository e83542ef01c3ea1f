package testutil

import (
	"context"
	"sync"

	"github.com/yungbote/branchgraph/internal/data/aggregates"
	domaingraph "github.com/yungbote/branchgraph/internal/domain/graph"
)

// InjectedTxRunner is a test helper for aggregate integration tests.
// It runs bodies against Store and supports failure injection around them.
type InjectedTxRunner struct {
	mu sync.Mutex

	Store domaingraph.Store

	FailBegin      error
	FailBeforeBody error
	// FailCommitTimes makes the first N commits fail with FailCommit.
	FailCommit      error
	FailCommitTimes int

	BeginCalls    int
	CommitCalls   int
	RollbackCalls int
}

var _ aggregates.TxRunner = (*InjectedTxRunner)(nil)

func (r *InjectedTxRunner) InTx(ctx context.Context, fn func(tx domaingraph.Tx) error) error {
	r.mu.Lock()
	r.BeginCalls++
	failBegin := r.FailBegin
	failBeforeBody := r.FailBeforeBody
	var failCommit error
	if r.FailCommit != nil && r.FailCommitTimes > 0 {
		failCommit = r.FailCommit
		r.FailCommitTimes--
	}
	r.mu.Unlock()

	if failBegin != nil {
		return failBegin
	}
	tx, err := r.Store.Begin(ctx)
	if err != nil {
		return err
	}
	rollback := func(cause error) error {
		r.mu.Lock()
		r.RollbackCalls++
		r.mu.Unlock()
		_ = tx.Rollback(ctx)
		return cause
	}
	if failBeforeBody != nil {
		return rollback(failBeforeBody)
	}
	if fn != nil {
		if err := fn(tx); err != nil {
			return rollback(err)
		}
	}
	if failCommit != nil {
		return rollback(failCommit)
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}
	r.mu.Lock()
	r.CommitCalls++
	r.mu.Unlock()
	return nil
}
