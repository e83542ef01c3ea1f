package aggregates

import (
	"time"

	domainagg "github.com/yungbote/branchgraph/internal/domain/aggregates"
	"github.com/yungbote/branchgraph/internal/observability"
)

// WriteOutcome summarizes one ExecuteWrite call.
type WriteOutcome struct {
	// Status is "success" or the error code the write ended with.
	Status   string
	Attempts int
	Duration time.Duration
}

// Hooks receives the signals of the graph write boundary.
type Hooks interface {
	// ObserveWrite is called once per write, after the last attempt.
	ObserveWrite(op string, out WriteOutcome)
	// IncRetry is called before each repeated transaction with the code of
	// the failure that caused it.
	IncRetry(op string, code domainagg.ErrorCode)
}

type noopHooks struct{}

func (noopHooks) ObserveWrite(string, WriteOutcome)    {}
func (noopHooks) IncRetry(string, domainagg.ErrorCode) {}

type metricsHooks struct {
	metrics *observability.Metrics
}

// NewObservabilityHooks reports write signals to the prometheus metrics.
// Writes ending in a conflict also count towards the conflict counter.
func NewObservabilityHooks(metrics *observability.Metrics) Hooks {
	if metrics == nil {
		return noopHooks{}
	}
	return metricsHooks{metrics: metrics}
}

func (h metricsHooks) ObserveWrite(op string, out WriteOutcome) {
	h.metrics.ObserveAggregateOperation(op, out.Status, out.Duration)
	h.metrics.ObserveAggregateAttempts(op, out.Attempts)
	if out.Status == string(domainagg.CodeConflict) {
		h.metrics.IncAggregateConflict(op)
	}
}

func (h metricsHooks) IncRetry(op string, code domainagg.ErrorCode) {
	h.metrics.IncAggregateRetry(op, string(code))
}
