package jobs

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Job is a periodic task. Jobs with a non-positive interval are skipped.
type Job struct {
	Name       string
	Interval   time.Duration
	RunOnStart bool
	Run        func(ctx context.Context) error
}

// Runner drives jobs on their own tickers.
type Runner struct {
	logger *slog.Logger
	jobs   []Job
}

// NewRunner builds an empty runner.
func NewRunner(logger *slog.Logger) *Runner {
	return &Runner{logger: logger}
}

// Add registers jobs. Call before Start.
func (r *Runner) Add(jobs ...Job) {
	r.jobs = append(r.jobs, jobs...)
}

// Start launches every job and returns a function that stops them and waits
// for in-flight runs to return.
func (r *Runner) Start(ctx context.Context) func() {
	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup

	for _, job := range r.jobs {
		if job.Interval <= 0 || job.Run == nil {
			continue
		}
		wg.Add(1)
		go func(job Job) {
			defer wg.Done()
			r.loop(ctx, job)
		}(job)
	}

	return func() {
		cancel()
		wg.Wait()
	}
}

func (r *Runner) loop(ctx context.Context, job Job) {
	if job.RunOnStart {
		r.runOnce(ctx, job)
	}
	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.runOnce(ctx, job)
		}
	}
}

func (r *Runner) runOnce(ctx context.Context, job Job) {
	start := time.Now()
	err := job.Run(ctx)
	if r.logger == nil {
		return
	}
	if err != nil && ctx.Err() == nil {
		r.logger.Error("job failed", "job", job.Name, "error", err)
		return
	}
	r.logger.Debug("job completed", "job", job.Name, "duration", time.Since(start))
}
