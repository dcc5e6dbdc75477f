package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pixelboost-ai/billing-service/pkg/db/models"
	"github.com/pixelboost-ai/billing-service/pkg/enums"
	pkgerrors "github.com/pixelboost-ai/billing-service/pkg/errors"
	"github.com/pixelboost-ai/billing-service/pkg/logger"
	"github.com/pixelboost-ai/billing-service/pkg/metrics"
)

// Runner executes one job invocation: it opens a sync run, shields the
// caller from panics, and completes the run exactly once with the job's
// counters.
type Runner struct {
	runs    RunRepository
	logg    *logger.Logger
	metrics *metrics.CronJobMetrics
}

// NewRunner wires the job runner.
func NewRunner(runs RunRepository, logg *logger.Logger, cronMetrics *metrics.CronJobMetrics) (*Runner, error) {
	if runs == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "run repository required")
	}
	return &Runner{runs: runs, logg: logg, metrics: cronMetrics}, nil
}

// Execute runs the job and returns the completed sync run id with the
// sweep counters. Partial counters are preserved on failure.
func (r *Runner) Execute(ctx context.Context, job Job) (uuid.UUID, Result, error) {
	if job == nil {
		return uuid.Nil, Result{}, pkgerrors.New(pkgerrors.CodeInternal, "job required")
	}
	if r.logg != nil {
		ctx = r.logg.WithField(ctx, "job", job.Name())
	}

	run := &models.SyncRun{Type: job.Type(), StartedAt: time.Now().UTC()}
	if err := r.runs.CreateRun(ctx, run); err != nil {
		return uuid.Nil, Result{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create sync run")
	}
	syncRun := run.ID
	if r.logg != nil {
		ctx = r.logg.WithSyncRunID(ctx, syncRun.String())
		r.logg.Info(ctx, "job start")
	}

	start := time.Now()
	result, jobErr := r.runGuarded(ctx, job)
	duration := time.Since(start)
	if r.metrics != nil {
		r.metrics.ObserveDuration(job.Name(), duration)
	}

	status := enums.SyncRunStatusCompleted
	var errMsg *string
	if jobErr != nil {
		status = enums.SyncRunStatusFailed
		msg := jobErr.Error()
		errMsg = &msg
	}
	if completeErr := r.runs.CompleteRun(ctx, syncRun, status, result.Processed, result.Fixed, errMsg); completeErr != nil {
		if r.logg != nil {
			r.logg.Error(ctx, "complete sync run", completeErr)
		}
		if jobErr == nil {
			jobErr = pkgerrors.Wrap(pkgerrors.CodeDependency, completeErr, "complete sync run")
		}
	}

	if r.logg != nil {
		ctx = r.logg.WithFields(ctx, map[string]any{
			"processed":   result.Processed,
			"fixed":       result.Fixed,
			"duration_ms": duration.Milliseconds(),
		})
	}
	if jobErr != nil {
		if r.metrics != nil {
			r.metrics.IncFailure(job.Name())
		}
		if r.logg != nil {
			r.logg.Error(ctx, "job failed", jobErr)
		}
		return syncRun, result, jobErr
	}
	if r.metrics != nil {
		r.metrics.IncSuccess(job.Name())
	}
	if r.logg != nil {
		r.logg.Info(ctx, "job completed")
	}
	return syncRun, result, nil
}

// runGuarded converts a panic inside the job into an error so the run is
// still completed on the failure path.
func (r *Runner) runGuarded(ctx context.Context, job Job) (result Result, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = pkgerrors.New(pkgerrors.CodeInternal, fmt.Sprintf("job panic: %v", rec))
		}
	}()
	return job.Run(ctx)
}
