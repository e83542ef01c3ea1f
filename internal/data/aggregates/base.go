package aggregates

import (
	"context"
	"math"
	"math/rand"
	"strings"
	"time"

	domainagg "github.com/yungbote/branchgraph/internal/domain/aggregates"
	domaingraph "github.com/yungbote/branchgraph/internal/domain/graph"
	"github.com/yungbote/branchgraph/internal/platform/logger"
)

// RetryPolicy bounds how often a write is retried on retryable store errors.
type RetryPolicy struct {
	MaxAttempts int
	MinBackoff  time.Duration // default 50ms
	MaxBackoff  time.Duration // default 2s
	JitterFrac  float64       // default 0.20

	// Sleep waits between attempts; tests replace it.
	Sleep func(ctx context.Context, d time.Duration) error
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, MinBackoff: 50 * time.Millisecond, MaxBackoff: 2 * time.Second, JitterFrac: 0.20}
}

type BaseDeps struct {
	Store  domaingraph.Store
	Log    *logger.Logger
	Runner TxRunner
	Hooks  Hooks
	Retry  RetryPolicy
}

func (d BaseDeps) withDefaults() BaseDeps {
	if d.Runner == nil {
		d.Runner = NewGraphTxRunner(d.Store)
	}
	if d.Hooks == nil {
		d.Hooks = noopHooks{}
	}
	if d.Retry.MaxAttempts <= 0 {
		d.Retry.MaxAttempts = 1
	}
	if d.Retry.Sleep == nil {
		d.Retry.Sleep = sleepCtx
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// ExecuteWrite runs fn inside one store transaction, retrying the whole
// transaction on retryable failures. Exhausted retries surface as
// CodeDatabase.
func ExecuteWrite(ctx context.Context, deps BaseDeps, op string, fn func(tx domaingraph.Tx) error) error {
	return executeWrite(ctx, deps, op, fn)
}

func executeWrite(ctx context.Context, deps BaseDeps, op string, fn func(tx domaingraph.Tx) error) error {
	start := time.Now()
	deps = deps.withDefaults()
	op = strings.TrimSpace(op)
	if op == "" {
		op = "aggregate.write"
	}

	var mapped error
	attempts := 0
	for {
		attempts++
		mapped = MapError(op, deps.Runner.InTx(ctx, fn))
		if mapped == nil || !domainagg.IsCode(mapped, domainagg.CodeRetryable) || ctx.Err() != nil {
			break
		}
		if attempts >= deps.Retry.MaxAttempts {
			if deps.Retry.MaxAttempts > 1 {
				mapped = domainagg.NewError(domainagg.CodeDatabase, op, "retries exhausted", mapped)
			}
			break
		}
		deps.Hooks.IncRetry(op, domainagg.CodeOf(mapped))
		wait := computeBackoff(deps.Retry, attempts)
		if deps.Log != nil {
			deps.Log.Warn("retrying graph write", "op", op, "attempt", attempts, "backoff_ms", wait.Milliseconds(), "error", mapped)
		}
		if err := deps.Retry.Sleep(ctx, wait); err != nil {
			mapped = MapError(op, err)
			break
		}
	}

	out := WriteOutcome{Status: "success", Attempts: attempts, Duration: time.Since(start)}
	if mapped != nil {
		out.Status = aggregateErrorStatus(mapped)
	}
	deps.Hooks.ObserveWrite(op, out)
	return mapped
}

func computeBackoff(r RetryPolicy, attempts int) time.Duration {
	minB := r.MinBackoff
	maxB := r.MaxBackoff
	j := r.JitterFrac
	if minB <= 0 {
		minB = 50 * time.Millisecond
	}
	if maxB <= 0 {
		maxB = 2 * time.Second
	}
	if j <= 0 {
		j = 0.20
	}
	if attempts < 1 {
		attempts = 1
	}
	d := time.Duration(float64(minB) * math.Pow(2, float64(attempts-1)))
	if d > maxB {
		d = maxB
	}
	delta := float64(d) * j
	low := float64(d) - delta
	high := float64(d) + delta
	if low < 0 {
		low = 0
	}
	return time.Duration(low + rand.Float64()*(high-low))
}

func aggregateErrorStatus(err error) string {
	if err == nil {
		return "success"
	}
	code := strings.TrimSpace(string(domainagg.CodeOf(err)))
	if code == "" {
		code = strings.TrimSpace(string(domainagg.CodeOf(MapError("aggregate.status", err))))
	}
	if code == "" {
		return "failure"
	}
	return code
}
