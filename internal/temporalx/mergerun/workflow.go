package mergerun

import (
	"strings"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	domainagg "github.com/yungbote/branchgraph/internal/domain/aggregates"
)

// nonRetryable lists the error codes a retry cannot fix.
var nonRetryable = []string{
	string(domainagg.CodeValidation),
	string(domainagg.CodeNotFound),
	string(domainagg.CodeConflict),
	string(domainagg.CodeInvariantViolation),
	string(domainagg.CodeInternal),
}

// Workflow validates the branch and, when it is free of conflicts, merges it.
// Conflicts end the workflow successfully with an Outcome listing them.
func Workflow(ctx workflow.Context, req Request) (Outcome, error) {
	branch := strings.TrimSpace(req.Branch)
	if branch == "" {
		return Outcome{}, temporal.NewNonRetryableApplicationError("mergerun: missing branch", string(domainagg.CodeValidation), nil)
	}
	log := workflow.GetLogger(ctx)

	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 5 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:        time.Second,
			BackoffCoefficient:     2,
			MaximumInterval:        30 * time.Second,
			MaximumAttempts:        5,
			NonRetryableErrorTypes: nonRetryable,
		},
	})

	var conflicts []string
	if err := workflow.ExecuteActivity(ctx, ActivityValidate, branch).Get(ctx, &conflicts); err != nil {
		return Outcome{}, err
	}
	if len(conflicts) > 0 {
		log.Warn("merge refused", "branch", branch, "conflicts", len(conflicts))
		return Outcome{Conflicts: conflicts}, nil
	}

	var out Outcome
	if err := workflow.ExecuteActivity(ctx, ActivityApply, branch).Get(ctx, &out); err != nil {
		// returned as is: a wrapped error would surface as its own
		// application error type and hide the activity's code
		log.Error("merge failed", "branch", branch, "error", err)
		return Outcome{}, err
	}
	log.Info("merge applied", "branch", branch, "edges_created", out.Result.EdgesCreated)
	return out, nil
}
