package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/congo-pay/fxledger/internal/logging"
)

func TestRunnerRunsOnStartAndOnTick(t *testing.T) {
	var runs atomic.Int64
	r := NewRunner(logging.Discard())
	r.Add(Job{
		Name:       "count",
		Interval:   10 * time.Millisecond,
		RunOnStart: true,
		Run: func(context.Context) error {
			runs.Add(1)
			return nil
		},
	})

	stop := r.Start(context.Background())
	deadline := time.Now().Add(2 * time.Second)
	for runs.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	stop()

	if runs.Load() < 3 {
		t.Fatalf("expected at least 3 runs, got %d", runs.Load())
	}
	after := runs.Load()
	time.Sleep(30 * time.Millisecond)
	if runs.Load() != after {
		t.Fatalf("job kept running after stop")
	}
}

func TestRunnerSkipsDisabledJobsAndSurvivesErrors(t *testing.T) {
	var disabled, failing atomic.Int64
	r := NewRunner(logging.Discard())
	r.Add(
		Job{Name: "disabled", Interval: 0, RunOnStart: true, Run: func(context.Context) error {
			disabled.Add(1)
			return nil
		}},
		Job{Name: "failing", Interval: 5 * time.Millisecond, Run: func(context.Context) error {
			failing.Add(1)
			return errors.New("boom")
		}},
	)

	stop := r.Start(context.Background())
	deadline := time.Now().Add(2 * time.Second)
	for failing.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	stop()

	if disabled.Load() != 0 {
		t.Fatalf("disabled job must not run")
	}
	if failing.Load() < 2 {
		t.Fatalf("failing job must keep being scheduled, ran %d times", failing.Load())
	}
}
