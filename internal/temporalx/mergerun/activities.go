package mergerun

import (
	"context"
	"errors"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"

	domainagg "github.com/yungbote/branchgraph/internal/domain/aggregates"
	"github.com/yungbote/branchgraph/internal/platform/logger"
	"github.com/yungbote/branchgraph/internal/services"
)

type Activities struct {
	Log   *logger.Logger
	Diff  services.DiffService
	Merge services.MergeService
}

// Validate returns the conflict messages of branch against its origin.
func (a *Activities) Validate(ctx context.Context, branch string) ([]string, error) {
	res, err := a.Diff.ValidateGraph(ctx, branch)
	if err != nil {
		return nil, applicationError(err)
	}
	return res.Messages, nil
}

// Apply merges branch. Conflicts that appeared after validation are reported
// in the Outcome rather than as a failure.
func (a *Activities) Apply(ctx context.Context, branch string) (Outcome, error) {
	info := activity.GetInfo(ctx)
	res, err := a.Merge.Merge(ctx, branch)
	if err != nil {
		if msgs, ok := domainagg.ConflictMessages(err); ok {
			return Outcome{Conflicts: msgs}, nil
		}
		a.Log.Warn("merge activity failed", "branch", branch, "attempt", info.Attempt, "error", err)
		return Outcome{}, applicationError(err)
	}
	return Outcome{Result: res}, nil
}

// applicationError carries the error code as the Temporal error type so the
// retry policy and the starter can both see it.
func applicationError(err error) error {
	code := domainagg.CodeOf(err)
	if code == "" {
		code = domainagg.CodeRetryable
	}
	for _, t := range nonRetryable {
		if string(code) == t {
			return temporal.NewNonRetryableApplicationError(err.Error(), string(code), err)
		}
	}
	return temporal.NewApplicationErrorWithCause(err.Error(), string(code), err)
}

// codeFromFailure recovers the error code from a failed workflow run. Outer
// application errors may carry Go type names, so the chain is walked until a
// known code turns up.
func codeFromFailure(err error) domainagg.ErrorCode {
	for err != nil {
		var appErr *temporal.ApplicationError
		if !errors.As(err, &appErr) {
			break
		}
		if code := domainagg.ErrorCode(appErr.Type()); knownCode(code) {
			return code
		}
		err = appErr.Unwrap()
	}
	return domainagg.CodeInternal
}

func knownCode(code domainagg.ErrorCode) bool {
	switch code {
	case domainagg.CodeValidation,
		domainagg.CodeNotFound,
		domainagg.CodeConflict,
		domainagg.CodeInvariantViolation,
		domainagg.CodePreconditionFailed,
		domainagg.CodeRetryable,
		domainagg.CodeDatabase,
		domainagg.CodeInternal:
		return true
	}
	return false
}
