package mergerun

import (
	"context"
	"fmt"
	"strings"

	enumspb "go.temporal.io/api/enums/v1"
	temporalsdkclient "go.temporal.io/sdk/client"

	domainagg "github.com/yungbote/branchgraph/internal/domain/aggregates"
	"github.com/yungbote/branchgraph/internal/platform/logger"
)

// Starter runs merges as workflows and waits for their outcome. A second
// request for a branch already merging joins the running workflow.
type Starter struct {
	log       *logger.Logger
	tc        temporalsdkclient.Client
	taskQueue string
}

func NewStarter(log *logger.Logger, tc temporalsdkclient.Client, taskQueue string) (*Starter, error) {
	if tc == nil {
		return nil, fmt.Errorf("temporal client is not configured")
	}
	if strings.TrimSpace(taskQueue) == "" {
		return nil, fmt.Errorf("temporal task queue is required")
	}
	return &Starter{log: log.With("component", "MergeStarter"), tc: tc, taskQueue: taskQueue}, nil
}

func (s *Starter) Merge(ctx context.Context, branch string) (domainagg.MergeGraphResult, error) {
	const op = "Branches.Merge.Durable"
	branch = strings.TrimSpace(branch)
	run, err := s.tc.ExecuteWorkflow(ctx, temporalsdkclient.StartWorkflowOptions{
		ID:                       WorkflowID(branch),
		TaskQueue:                s.taskQueue,
		WorkflowIDConflictPolicy: enumspb.WORKFLOW_ID_CONFLICT_POLICY_USE_EXISTING,
	}, WorkflowName, Request{Branch: branch})
	if err != nil {
		return domainagg.MergeGraphResult{}, domainagg.NewError(domainagg.CodeRetryable, op, "start merge workflow", err)
	}
	s.log.Debug("merge workflow started", "branch", branch, "workflow_id", run.GetID(), "run_id", run.GetRunID())

	var out Outcome
	if err := run.Get(ctx, &out); err != nil {
		return domainagg.MergeGraphResult{}, domainagg.NewError(codeFromFailure(err), op, "merge workflow failed", err)
	}
	if len(out.Conflicts) > 0 {
		return domainagg.MergeGraphResult{}, domainagg.NewError(domainagg.CodeValidation, op,
			fmt.Sprintf("%d conflict(s)", len(out.Conflicts)),
			&domainagg.MergeConflictError{Branch: branch, Messages: out.Conflicts})
	}
	return out.Result, nil
}
