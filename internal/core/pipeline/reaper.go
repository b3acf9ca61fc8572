package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/markdave123-py/Procura/internal/core"
	"github.com/markdave123-py/Procura/internal/logger"
	"github.com/markdave123-py/Procura/internal/models"
)

// Reaper recovers tasks wedged in processing past a threshold. It is the
// sole recovery path for orchestrator crashes and hung external calls
// that outlived their own timeout, and the only place retry_count is
// incremented. Sweeps are idempotent and safe to run concurrently with
// the orchestrator: the age guard means the owning run is no longer
// alive.
type Reaper struct {
	store     core.TaskStore
	threshold time.Duration
	interval  time.Duration
}

func NewReaper(store core.TaskStore, threshold, interval time.Duration) *Reaper {
	if threshold <= 0 {
		threshold = 20 * time.Minute
	}
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Reaper{store: store, threshold: threshold, interval: interval}
}

// SweepResult reports one sweep's recoveries.
type SweepResult struct {
	TasksReset int `json:"tasks_reset"`
	JobsClosed int `json:"jobs_closed"`
}

// Sweep requeues stuck tasks and closes stale batch jobs.
func (r *Reaper) Sweep(ctx context.Context) (*SweepResult, error) {
	result := &SweepResult{}

	stuck, err := r.store.FindStuckTasks(ctx, r.threshold)
	if err != nil {
		return nil, fmt.Errorf("find stuck tasks: %w", err)
	}
	for i := range stuck {
		t := &stuck[i]
		reason := fmt.Sprintf("auto-reset after exceeding %s in processing (attempt %d)",
			r.threshold, t.RetryCount+1)
		if err := r.store.ResetStuckTask(ctx, t.ID, reason); err != nil {
			logger.Error(ctx, "failed to reset stuck task", "task_id", t.ID, "error", err)
			continue
		}
		result.TasksReset++
		logger.Warn(ctx, "reset stuck task", "task_id", t.ID, "filename", t.Filename,
			"retry_count", t.RetryCount+1)
	}

	// Stale running jobs are closed defensively so operational indicators
	// stop spinning after the underlying documents finished or were reaped.
	stale, err := r.store.FindStaleBatchJobs(ctx, r.threshold)
	if err != nil {
		return nil, fmt.Errorf("find stale batch jobs: %w", err)
	}
	for i := range stale {
		j := &stale[i]
		if err := r.store.CompleteBatchJob(ctx, j.ID, models.BatchCompleted, j.RecordsProcessed, j.ErrorsCount); err != nil {
			logger.Error(ctx, "failed to close stale batch job", "job_id", j.ID, "error", err)
			continue
		}
		result.JobsClosed++
		logger.Warn(ctx, "closed stale batch job", "job_id", j.ID)
	}

	return result, nil
}

// Run sweeps on a fixed interval until the context is cancelled.
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info(ctx, "reaper shutting down")
			return
		case <-ticker.C:
			res, err := r.Sweep(ctx)
			if err != nil {
				logger.Error(ctx, "reaper sweep failed", "error", err)
				continue
			}
			if res.TasksReset > 0 || res.JobsClosed > 0 {
				logger.Info(ctx, "reaper sweep finished",
					"tasks_reset", res.TasksReset, "jobs_closed", res.JobsClosed)
			}
		}
	}
}
