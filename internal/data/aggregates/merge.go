package aggregates

import (
	"context"
	"fmt"
	"sort"
	"strings"

	domainagg "github.com/yungbote/branchgraph/internal/domain/aggregates"
	domainbranch "github.com/yungbote/branchgraph/internal/domain/branch"
	domaingraph "github.com/yungbote/branchgraph/internal/domain/graph"
	"github.com/yungbote/branchgraph/internal/domain/timestamp"
)

// ConflictChecker lists the conflicts between a branch and its origin as
// seen through r.
type ConflictChecker interface {
	ConflictMessages(ctx context.Context, r domaingraph.Reader, b domainbranch.Branch, at timestamp.Timestamp) ([]string, error)
}

type MergeAggregateDeps struct {
	Base BaseDeps

	Branches  BranchLookup
	Conflicts ConflictChecker
}

type mergeAggregate struct {
	deps MergeAggregateDeps
}

func NewMergeAggregate(deps MergeAggregateDeps) domainagg.MergeAggregate {
	deps.Base = deps.Base.withDefaults()
	return &mergeAggregate{deps: deps}
}

func (a *mergeAggregate) Contract() domainagg.Contract {
	return domainagg.MergeAggregateContract
}

func (a *mergeAggregate) MergeGraph(ctx context.Context, in domainagg.MergeGraphInput) (domainagg.MergeGraphResult, error) {
	const op = "Branches.Merge.MergeGraph"
	var out domainagg.MergeGraphResult

	name := strings.TrimSpace(in.Branch)
	if name == "" {
		return out, domainagg.NewError(domainagg.CodeValidation, op, "missing branch", nil)
	}
	if a.deps.Branches == nil || a.deps.Conflicts == nil {
		return out, domainagg.NewError(domainagg.CodeInternal, op, "merge aggregate dependencies not configured", nil)
	}
	b, err := a.deps.Branches.Branch(ctx, name)
	if err != nil {
		return out, MapError(op, err)
	}
	if b.IsDefault || b.IsGlobal {
		return out, domainagg.NewError(domainagg.CodeValidation, op, fmt.Sprintf("branch %s cannot be merged", b.Name), nil)
	}
	into, err := a.deps.Branches.Branch(ctx, b.OriginBranch)
	if err != nil {
		return out, MapError(op, err)
	}
	at := in.At
	if at.IsZero() {
		at = timestamp.Now()
	}
	if at.Before(b.BranchedFrom) {
		return out, domainagg.NewError(domainagg.CodeValidation, op, "merge time precedes branched_from", nil)
	}

	err = executeWrite(ctx, a.deps.Base, op, func(tx domaingraph.Tx) error {
		out = domainagg.MergeGraphResult{Branch: b.Name, Into: into.Name, MergedAt: at}

		messages, err := a.deps.Conflicts.ConflictMessages(ctx, tx, b, at)
		if err != nil {
			return err
		}
		if len(messages) > 0 {
			return domainagg.NewError(domainagg.CodeValidation, op,
				fmt.Sprintf("%d conflict(s) with %s", len(messages), into.Name),
				&domainagg.MergeConflictError{Branch: b.Name, Messages: messages})
		}

		window := b.ChangeWindow(b.BranchedFrom, at)
		changed, err := tx.Edges(ctx, domaingraph.EdgeQuery{Window: &window, OpenOnly: true})
		if err != nil {
			return err
		}
		sort.Slice(changed, func(i, j int) bool {
			if c := changed[i].Props.From.Compare(changed[j].Props.From); c != 0 {
				return c < 0
			}
			return changed[i].ID < changed[j].ID
		})

		for _, e := range changed {
			created, closed, err := promote(ctx, tx, into, at, e)
			if err != nil {
				return err
			}
			out.EdgesClosed += closed
			if created {
				out.EdgesCreated++
			} else {
				out.Skipped++
			}
		}
		return nil
	})
	if err != nil {
		return domainagg.MergeGraphResult{}, err
	}
	if a.deps.Base.Log != nil {
		a.deps.Base.Log.Info("branch merged",
			"branch", out.Branch,
			"into", out.Into,
			"edges_created", out.EdgesCreated,
			"edges_closed", out.EdgesClosed,
			"skipped", out.Skipped,
		)
	}
	return out, nil
}

// promote copies one branch edge onto the target branch. Open target edges of
// the same slot are closed at the merge time; the copy keeps the branch
// edge's from and status. A slot already holding an identical open edge is
// left as is.
func promote(ctx context.Context, tx domaingraph.Tx, into domainbranch.Branch, at timestamp.Timestamp, e domaingraph.Edge) (bool, int, error) {
	q := domaingraph.EdgeQuery{
		Labels:   []domaingraph.Label{e.Label},
		Src:      e.Src,
		Branches: []string{into.Name},
		OpenOnly: true,
	}
	if !e.Label.SingleValued() {
		q.Dst = e.Dst
	}
	open, err := tx.Edges(ctx, q)
	if err != nil {
		return false, 0, err
	}
	for _, o := range open {
		if o.Dst == e.Dst && o.Props.Status == e.Props.Status && !o.Props.From.Before(e.Props.From) {
			return false, 0, nil
		}
	}
	closed := 0
	for _, o := range open {
		if err := tx.CloseEdge(ctx, o.ID, timestamp.Max(at, o.Props.From)); err != nil {
			return false, closed, err
		}
		closed++
	}
	next := domaingraph.NewEdge(e.Label, e.Src, e.Dst, into.Name, into.HierarchyLevel, e.Props.From, e.Props.Status)
	if err := tx.CreateEdge(ctx, next); err != nil {
		return false, closed, err
	}
	return true, closed, nil
}
