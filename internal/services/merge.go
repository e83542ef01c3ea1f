package services

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/yungbote/branchgraph/internal/data/aggregates"
	domainagg "github.com/yungbote/branchgraph/internal/domain/aggregates"
	domainbranch "github.com/yungbote/branchgraph/internal/domain/branch"
	domaingraph "github.com/yungbote/branchgraph/internal/domain/graph"
	"github.com/yungbote/branchgraph/internal/domain/timestamp"
	"github.com/yungbote/branchgraph/internal/observability"
	"github.com/yungbote/branchgraph/internal/platform/logger"
	"github.com/yungbote/branchgraph/internal/realtime/bus"
)

type MergeService interface {
	// Merge promotes every change of branch into its origin and rebases the
	// branch on the merge time, so a second merge without new changes writes
	// nothing.
	Merge(ctx context.Context, branch string) (domainagg.MergeGraphResult, error)
	// Rebase moves branched_from to now. Changes not merged yet are
	// re-recorded at the rebase time so they stay inside the merge window. It
	// is refused while the branch conflicts with its origin.
	Rebase(ctx context.Context, branch string) (domainbranch.Branch, error)
}

type MergeServiceDeps struct {
	Log      *logger.Logger
	Graph    aggregates.BaseDeps
	Registry BranchRegistry
	Diff     DiffService
	Merge    domainagg.MergeAggregate
	Metrics  *observability.Metrics
}

type mergeService struct {
	log      *logger.Logger
	graph    aggregates.BaseDeps
	registry BranchRegistry
	diff     DiffService
	agg      domainagg.MergeAggregate
	metrics  *observability.Metrics
}

func NewMergeService(deps MergeServiceDeps) MergeService {
	return &mergeService{
		log:      deps.Log.With("service", "MergeService"),
		graph:    deps.Graph,
		registry: deps.Registry,
		diff:     deps.Diff,
		agg:      deps.Merge,
		metrics:  deps.Metrics,
	}
}

func (s *mergeService) Merge(ctx context.Context, branch string) (out domainagg.MergeGraphResult, err error) {
	const op = "Branches.Merge"
	ctx, span := observability.StartSpan(ctx, op, attribute.String("branch", branch))
	defer func() { observability.EndSpan(span, err) }()
	start := time.Now()

	b, err := s.registry.Branch(ctx, branch)
	if err != nil {
		return out, err
	}
	out, err = s.agg.MergeGraph(ctx, domainagg.MergeGraphInput{Branch: b.Name, At: timestamp.Now()})
	if err != nil {
		if msgs, ok := domainagg.ConflictMessages(err); ok {
			s.log.Warn("merge refused", "branch", b.Name, "conflicts", len(msgs))
		}
		return domainagg.MergeGraphResult{}, err
	}
	s.metrics.AddMergeEdges(out.EdgesCreated, out.EdgesClosed, out.Skipped)

	if _, err := s.registry.MoveBranchedFrom(ctx, b.Name, b.BranchedFrom, out.MergedAt, bus.EventBranchMerged); err != nil {
		s.log.Error("merged branch could not be rebased", "branch", b.Name, "error", err)
		return out, err
	}
	s.log.Info("merge complete",
		"branch", b.Name,
		"into", out.Into,
		"edges_created", out.EdgesCreated,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return out, nil
}

func (s *mergeService) Rebase(ctx context.Context, branch string) (out domainbranch.Branch, err error) {
	const op = "Branches.Rebase"
	ctx, span := observability.StartSpan(ctx, op, attribute.String("branch", branch))
	defer func() { observability.EndSpan(span, err) }()

	b, err := s.registry.Branch(ctx, branch)
	if err != nil {
		return out, err
	}
	res, err := s.diff.ValidateGraph(ctx, b.Name)
	if err != nil {
		return out, err
	}
	if !res.Passed {
		return out, domainagg.NewError(domainagg.CodeValidation, op,
			fmt.Sprintf("%d conflict(s) with %s", len(res.Messages), b.OriginBranch),
			&domainagg.MergeConflictError{Branch: b.Name, Messages: res.Messages})
	}
	at := timestamp.Now()
	// re-recorded versions start just after the new branched_from so the
	// merge window, which excludes its lower bound, still sees them
	restampAt := at.Add(time.Microsecond)
	restamped := 0
	err = aggregates.ExecuteWrite(ctx, s.graph, op, func(tx domaingraph.Tx) error {
		restamped = 0
		window := b.ChangeWindow(b.BranchedFrom, at)
		open, err := tx.Edges(ctx, domaingraph.EdgeQuery{Window: &window, OpenOnly: true})
		if err != nil {
			return err
		}
		for _, e := range open {
			next := domaingraph.NewEdge(e.Label, e.Src, e.Dst, b.Name, b.HierarchyLevel, restampAt, e.Props.Status)
			if err := domaingraph.Supersede(ctx, tx, &e, next); err != nil {
				return err
			}
			restamped++
		}
		return nil
	})
	if err != nil {
		return out, err
	}
	out, err = s.registry.MoveBranchedFrom(ctx, b.Name, b.BranchedFrom, at, bus.EventBranchRebased)
	if err != nil {
		return out, err
	}
	s.log.Info("branch rebase complete", "branch", b.Name, "edges_restamped", restamped)
	return out, nil
}
