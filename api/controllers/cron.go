package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/pixelboost-ai/billing-service/api/responses"
	"github.com/pixelboost-ai/billing-service/internal/reconcile"
	pkgerrors "github.com/pixelboost-ai/billing-service/pkg/errors"
	"github.com/pixelboost-ai/billing-service/pkg/logger"
)

type cronResult struct {
	Success   bool   `json:"success"`
	Processed int    `json:"processed"`
	Fixed     int    `json:"fixed"`
	SyncRunID string `json:"syncRunId,omitempty"`
	Error     string `json:"error,omitempty"`
}

// CronTrigger runs the named drift-correction job synchronously. The
// response body is a wire contract with the external scheduler, so it
// skips the standard envelope; a job-level failure still reports the
// partial counters and the sync run id.
func CronTrigger(registry *reconcile.Registry, runner *reconcile.Runner, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if registry == nil || runner == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cron runner unavailable"))
			return
		}

		name := chi.URLParam(r, "jobName")
		job, ok := registry.Get(name)
		if !ok {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "unknown cron job"))
			return
		}

		runID, result, err := runner.Execute(ctx, job)
		payload := cronResult{
			Success:   err == nil,
			Processed: result.Processed,
			Fixed:     result.Fixed,
		}
		if runID != uuid.Nil {
			payload.SyncRunID = runID.String()
		}
		if err != nil {
			payload.Error = err.Error()
			responses.WriteJSON(w, http.StatusInternalServerError, payload)
			return
		}
		responses.WriteJSON(w, http.StatusOK, payload)
	}
}
