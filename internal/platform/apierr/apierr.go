package apierr

import (
	"errors"
	"fmt"
	"net/http"

	domainagg "github.com/yungbote/branchgraph/internal/domain/aggregates"
)

type Error struct {
	Status int
	Code   string
	Err    error
	// Details carries per-item messages, e.g. one per merge conflict.
	Details []string
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	if e.Code != "" {
		return e.Code
	}
	if e.Status != 0 {
		return fmt.Sprintf("api error (%d)", e.Status)
	}
	return "api error"
}

func (e *Error) Unwrap() error { return e.Err }

func New(status int, code string, err error) *Error {
	return &Error{Status: status, Code: code, Err: err}
}

// FromError maps an aggregate error code onto an HTTP status. Errors without
// a code are internal.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr
	}
	code := domainagg.CodeOf(err)
	status := http.StatusInternalServerError
	switch code {
	case domainagg.CodeValidation:
		status = http.StatusUnprocessableEntity
	case domainagg.CodeNotFound:
		status = http.StatusNotFound
	case domainagg.CodeConflict:
		status = http.StatusConflict
	case domainagg.CodePreconditionFailed:
		status = http.StatusPreconditionFailed
	case domainagg.CodeRetryable, domainagg.CodeDatabase:
		status = http.StatusServiceUnavailable
	case "":
		code = domainagg.CodeInternal
	}
	out := New(status, string(code), err)
	if msgs, ok := domainagg.ConflictMessages(err); ok {
		out.Details = msgs
	}
	return out
}
