package temporalx

import (
	"testing"
	"time"
)

func TestBackoffDoublesUpToMax(t *testing.T) {
	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 250 * time.Millisecond},
		{2, 500 * time.Millisecond},
		{3, time.Second},
		{6, 5 * time.Second},
	}
	for _, tc := range cases {
		if got := Backoff(250*time.Millisecond, 5*time.Second, tc.attempt); got != tc.want {
			t.Fatalf("attempt %d: want=%v got=%v", tc.attempt, tc.want, got)
		}
	}
	if got := Backoff(0, 0, 1); got != 250*time.Millisecond {
		t.Fatalf("zero base: want=250ms got=%v", got)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("TEMPORAL_ADDRESS", "")
	t.Setenv("TEMPORAL_TASK_QUEUE", "")
	t.Setenv("TEMPORAL_NAMESPACE", "")
	cfg := LoadConfig()
	if cfg.Enabled() {
		t.Fatalf("Enabled without address: want=false")
	}
	if cfg.TaskQueue != "branchgraph-merge" || cfg.Namespace != "branchgraph" {
		t.Fatalf("defaults: got=%+v", cfg)
	}
	t.Setenv("TEMPORAL_ADDRESS", "localhost:7233")
	if !LoadConfig().Enabled() {
		t.Fatalf("Enabled with address: want=true")
	}
}
