package aggregates

import (
	"context"
	"errors"

	domainagg "github.com/yungbote/branchgraph/internal/domain/aggregates"
	domaingraph "github.com/yungbote/branchgraph/internal/domain/graph"
)

// TxRunner provides a shared transaction boundary primitive for aggregate writes.
type TxRunner interface {
	InTx(ctx context.Context, fn func(tx domaingraph.Tx) error) error
}

type graphTxRunner struct {
	store domaingraph.Store
}

// NewGraphTxRunner returns a transaction runner backed by graph store transactions.
func NewGraphTxRunner(store domaingraph.Store) TxRunner {
	return &graphTxRunner{store: store}
}

func (r *graphTxRunner) InTx(ctx context.Context, fn func(tx domaingraph.Tx) error) (err error) {
	if fn == nil {
		return nil
	}
	if r == nil || r.store == nil {
		return domainagg.NewError(domainagg.CodeInternal, "aggregate.tx", "transaction runner has nil store", nil)
	}
	tx, err := r.store.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(context.WithoutCancel(ctx))
			panic(p)
		}
	}()
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(context.WithoutCancel(ctx)); rbErr != nil {
			return errors.Join(err, rbErr)
		}
		return err
	}
	// A cancelled caller must not observe a half-applied write.
	if err := ctx.Err(); err != nil {
		_ = tx.Rollback(context.WithoutCancel(ctx))
		return err
	}
	return tx.Commit(ctx)
}
