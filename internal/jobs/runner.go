// Package jobs runs periodic maintenance tasks on a cron schedule.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	mapset "github.com/deckarep/golang-set/v2"
	cron "github.com/robfig/cron"
)

// Job is a named periodic task.
type Job struct {
	Name     string
	Schedule string
	Run      func(ctx context.Context) error
}

// Runner executes jobs on their schedules. A job whose previous run is
// still in progress is skipped rather than started twice.
type Runner struct {
	cron    *cron.Cron
	logger  *slog.Logger
	mu      sync.Mutex
	running mapset.Set[string]
}

// NewRunner creates a Runner that logs through logger.
func NewRunner(logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		cron:    cron.New(),
		logger:  logger,
		running: mapset.NewThreadUnsafeSet[string](),
	}
}

// Add registers job. ctx is passed to every run of it.
func (r *Runner) Add(ctx context.Context, job Job) error {
	if err := r.cron.AddFunc(job.Schedule, func() { r.run(ctx, job) }); err != nil {
		return fmt.Errorf("jobs: schedule %s: %w", job.Name, err)
	}
	return nil
}

func (r *Runner) run(ctx context.Context, job Job) {
	r.mu.Lock()
	if !r.running.Add(job.Name) {
		r.mu.Unlock()
		r.logger.Warn("job still running, skipping", slog.String("job", job.Name))
		return
	}
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.running.Remove(job.Name)
		r.mu.Unlock()
	}()

	if err := job.Run(ctx); err != nil {
		r.logger.Error("job failed", slog.String("job", job.Name), slog.String("error", err.Error()))
	}
}

// Run starts the scheduler and blocks until ctx is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	r.cron.Start()
	<-ctx.Done()
	r.cron.Stop()
	r.logger.Info("jobs: stopped")
	return nil
}
