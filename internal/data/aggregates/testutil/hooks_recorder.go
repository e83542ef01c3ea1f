package testutil

import (
	"sync"

	"github.com/yungbote/branchgraph/internal/data/aggregates"
	domainagg "github.com/yungbote/branchgraph/internal/domain/aggregates"
)

// HooksRecorder keeps the write signals of an aggregate per operation.
type HooksRecorder struct {
	mu       sync.Mutex
	writes   map[string][]aggregates.WriteOutcome
	retries  map[string][]domainagg.ErrorCode
	opsOrder []string
}

var _ aggregates.Hooks = (*HooksRecorder)(nil)

func (h *HooksRecorder) ObserveWrite(op string, out aggregates.WriteOutcome) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.writes == nil {
		h.writes = map[string][]aggregates.WriteOutcome{}
	}
	h.writes[op] = append(h.writes[op], out)
	h.opsOrder = append(h.opsOrder, op)
}

func (h *HooksRecorder) IncRetry(op string, code domainagg.ErrorCode) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.retries == nil {
		h.retries = map[string][]domainagg.ErrorCode{}
	}
	h.retries[op] = append(h.retries[op], code)
}

// Writes returns the outcomes recorded for op, oldest first.
func (h *HooksRecorder) Writes(op string) []aggregates.WriteOutcome {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]aggregates.WriteOutcome(nil), h.writes[op]...)
}

// Retries returns the codes that caused each retry of op.
func (h *HooksRecorder) Retries(op string) []domainagg.ErrorCode {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]domainagg.ErrorCode(nil), h.retries[op]...)
}

// Ops lists the operations in the order their writes finished.
func (h *HooksRecorder) Ops() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.opsOrder...)
}
