package dbctx_test

import (
	"context"
	"errors"
	"testing"

	"github.com/yungbote/branchgraph/internal/data/repos/testutil"
	domainbranch "github.com/yungbote/branchgraph/internal/domain/branch"
	"github.com/yungbote/branchgraph/internal/domain/timestamp"
	"github.com/yungbote/branchgraph/internal/pkg/dbctx"
)

func TestTransactionRollsBackOnError(t *testing.T) {
	db := testutil.DB(t)
	outer := dbctx.New(context.Background(), testutil.Tx(t, db))
	boom := errors.New("boom")

	rec := domainbranch.RecordFrom(domainbranch.NewChild("rolled-back", domainbranch.NewDefault("main", timestamp.MustParse("2024-01-01T00:00:00Z")), timestamp.MustParse("2024-01-02T00:00:00Z")))
	err := dbctx.Transaction(outer, nil, func(dbc dbctx.Context) error {
		if dbc.Tx == outer.Tx {
			t.Fatalf("inner context must carry its own transaction")
		}
		if err := dbc.DB(nil).Create(rec).Error; err != nil {
			t.Fatalf("create: %v", err)
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("transaction error: want=%v got=%v", boom, err)
	}
	var n int64
	if err := outer.DB(nil).Model(&domainbranch.BranchRecord{}).Where("name = ?", "rolled-back").Count(&n).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 0 {
		t.Fatalf("rows after rollback: want=0 got=%d", n)
	}
}

func TestTransactionWithoutHandleRunsInline(t *testing.T) {
	calls := 0
	err := dbctx.Transaction(dbctx.Context{}, nil, func(dbc dbctx.Context) error {
		calls++
		if dbc.Context() == nil {
			t.Fatalf("context: want background got nil")
		}
		return nil
	})
	if err != nil || calls != 1 {
		t.Fatalf("inline run: want=1 call got=%d err=%v", calls, err)
	}
}

func TestDBFallsBackToPool(t *testing.T) {
	db := testutil.DB(t)
	got := dbctx.New(context.Background(), nil).DB(db)
	if got.Statement.Context == nil {
		t.Fatalf("fallback handle must carry the request context")
	}
}
