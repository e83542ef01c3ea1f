package apierr

import (
	"errors"
	"net/http"
	"testing"

	domainagg "github.com/yungbote/branchgraph/internal/domain/aggregates"
)

func TestFromErrorMapsCodes(t *testing.T) {
	cases := map[domainagg.ErrorCode]int{
		domainagg.CodeValidation:         http.StatusUnprocessableEntity,
		domainagg.CodeNotFound:           http.StatusNotFound,
		domainagg.CodeConflict:           http.StatusConflict,
		domainagg.CodeInvariantViolation: http.StatusInternalServerError,
		domainagg.CodeDatabase:           http.StatusServiceUnavailable,
	}
	for code, want := range cases {
		got := FromError(domainagg.NewError(code, "op", "msg", nil))
		if got.Status != want || got.Code != string(code) {
			t.Fatalf("%s: want=%d got=%d (%s)", code, want, got.Status, got.Code)
		}
	}
	plain := FromError(errors.New("boom"))
	if plain.Status != http.StatusInternalServerError || plain.Code != string(domainagg.CodeInternal) {
		t.Fatalf("plain error: got=%+v", plain)
	}
	if FromError(nil) != nil {
		t.Fatalf("nil must map to nil")
	}
	pre := New(http.StatusBadRequest, "bad_request", errors.New("x"))
	if FromError(pre) != pre {
		t.Fatalf("api errors pass through")
	}
}

func TestFromErrorCarriesConflictMessages(t *testing.T) {
	err := domainagg.NewError(domainagg.CodeValidation, "merge", "1 conflict(s)",
		&domainagg.MergeConflictError{Branch: "br1", Messages: []string{"Conflict detected at node/c1/name/HAS_VALUE"}})
	got := FromError(err)
	if got.Status != http.StatusUnprocessableEntity {
		t.Fatalf("status: want=422 got=%d", got.Status)
	}
	if len(got.Details) != 1 || got.Details[0] != "Conflict detected at node/c1/name/HAS_VALUE" {
		t.Fatalf("details: got=%v", got.Details)
	}
}
