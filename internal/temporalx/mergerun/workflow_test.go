package mergerun

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/testsuite"

	domainagg "github.com/yungbote/branchgraph/internal/domain/aggregates"
)

func newEnv(t *testing.T, validate func(context.Context, string) ([]string, error), apply func(context.Context, string) (Outcome, error)) *testsuite.TestWorkflowEnvironment {
	t.Helper()
	var suite testsuite.WorkflowTestSuite
	env := suite.NewTestWorkflowEnvironment()
	env.RegisterActivityWithOptions(validate, activity.RegisterOptions{Name: ActivityValidate})
	env.RegisterActivityWithOptions(apply, activity.RegisterOptions{Name: ActivityApply})
	return env
}

func TestWorkflowMergesCleanBranch(t *testing.T) {
	applied := 0
	env := newEnv(t,
		func(context.Context, string) ([]string, error) { return nil, nil },
		func(_ context.Context, branch string) (Outcome, error) {
			applied++
			return Outcome{Result: domainagg.MergeGraphResult{Branch: branch, Into: "main", EdgesCreated: 3}}, nil
		},
	)
	env.ExecuteWorkflow(Workflow, Request{Branch: "br1"})

	if !env.IsWorkflowCompleted() {
		t.Fatalf("workflow did not complete")
	}
	if err := env.GetWorkflowError(); err != nil {
		t.Fatalf("workflow error: %v", err)
	}
	var out Outcome
	if err := env.GetWorkflowResult(&out); err != nil {
		t.Fatalf("result: %v", err)
	}
	if out.Result.EdgesCreated != 3 || out.Result.Branch != "br1" || applied != 1 {
		t.Fatalf("outcome: want=3 edges on br1 got=%+v applied=%d", out, applied)
	}
}

func TestWorkflowStopsOnConflicts(t *testing.T) {
	applied := 0
	env := newEnv(t,
		func(context.Context, string) ([]string, error) {
			return []string{"Conflict detected at node/c1/name/HAS_VALUE"}, nil
		},
		func(context.Context, string) (Outcome, error) {
			applied++
			return Outcome{}, nil
		},
	)
	env.ExecuteWorkflow(Workflow, Request{Branch: "br1"})

	if err := env.GetWorkflowError(); err != nil {
		t.Fatalf("workflow error: %v", err)
	}
	var out Outcome
	if err := env.GetWorkflowResult(&out); err != nil {
		t.Fatalf("result: %v", err)
	}
	want := []string{"Conflict detected at node/c1/name/HAS_VALUE"}
	if !reflect.DeepEqual(out.Conflicts, want) {
		t.Fatalf("conflicts: want=%v got=%v", want, out.Conflicts)
	}
	if applied != 0 {
		t.Fatalf("apply ran despite conflicts: got=%d", applied)
	}
}

func TestWorkflowRetriesTransientFailures(t *testing.T) {
	calls := 0
	env := newEnv(t,
		func(context.Context, string) ([]string, error) { return nil, nil },
		func(_ context.Context, branch string) (Outcome, error) {
			calls++
			if calls < 3 {
				return Outcome{}, applicationError(domainagg.NewError(domainagg.CodeRetryable, "test", "store busy", nil))
			}
			return Outcome{Result: domainagg.MergeGraphResult{Branch: branch}}, nil
		},
	)
	env.ExecuteWorkflow(Workflow, Request{Branch: "br1"})

	if err := env.GetWorkflowError(); err != nil {
		t.Fatalf("workflow error: %v", err)
	}
	if calls != 3 {
		t.Fatalf("apply attempts: want=3 got=%d", calls)
	}
}

func TestWorkflowDoesNotRetryValidationFailures(t *testing.T) {
	calls := 0
	env := newEnv(t,
		func(context.Context, string) ([]string, error) { return nil, nil },
		func(context.Context, string) (Outcome, error) {
			calls++
			return Outcome{}, applicationError(domainagg.Validation("test", "branch main cannot be merged"))
		},
	)
	env.ExecuteWorkflow(Workflow, Request{Branch: "main"})

	err := env.GetWorkflowError()
	if err == nil {
		t.Fatalf("expected workflow error")
	}
	if calls != 1 {
		t.Fatalf("apply attempts: want=1 got=%d", calls)
	}
	var appErr *temporal.ApplicationError
	if !errors.As(err, &appErr) || appErr.Type() != string(domainagg.CodeValidation) {
		t.Fatalf("error type: want=validation got=%v", err)
	}
	if codeFromFailure(err) != domainagg.CodeValidation {
		t.Fatalf("codeFromFailure: want=validation got=%s", codeFromFailure(err))
	}
}

func TestWorkflowRejectsMissingBranch(t *testing.T) {
	env := newEnv(t,
		func(context.Context, string) ([]string, error) { return nil, nil },
		func(context.Context, string) (Outcome, error) { return Outcome{}, nil },
	)
	env.ExecuteWorkflow(Workflow, Request{Branch: "  "})
	if env.GetWorkflowError() == nil {
		t.Fatalf("expected workflow error for empty branch")
	}
}

func TestCodeFromFailureSkipsOuterErrorTypes(t *testing.T) {
	inner := temporal.NewNonRetryableApplicationError("refused", string(domainagg.CodeNotFound), nil)
	outer := temporal.NewApplicationErrorWithCause("merge br1", "wrapError", inner)
	if got := codeFromFailure(outer); got != domainagg.CodeNotFound {
		t.Fatalf("codeFromFailure: want=%s got=%s", domainagg.CodeNotFound, got)
	}
	if got := codeFromFailure(errors.New("plain")); got != domainagg.CodeInternal {
		t.Fatalf("plain error: want=%s got=%s", domainagg.CodeInternal, got)
	}
}
