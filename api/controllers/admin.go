package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/pixelboost-ai/billing-service/api/responses"
	"github.com/pixelboost-ai/billing-service/api/validators"
	"github.com/pixelboost-ai/billing-service/internal/credits"
	"github.com/pixelboost-ai/billing-service/internal/events"
	"github.com/pixelboost-ai/billing-service/internal/profiles"
	"github.com/pixelboost-ai/billing-service/internal/reconcile"
	"github.com/pixelboost-ai/billing-service/pkg/db/models"
	"github.com/pixelboost-ai/billing-service/pkg/enums"
	pkgerrors "github.com/pixelboost-ai/billing-service/pkg/errors"
	"github.com/pixelboost-ai/billing-service/pkg/logger"
)

// Free-text descriptions land in the ledger verbatim; cap them.
const maxDescriptionLen = 500

// EventReplayer re-dispatches a stored webhook payload.
type EventReplayer interface {
	Replay(ctx context.Context, record *models.WebhookEvent) error
}

type adminAdjustRequest struct {
	UserID      uuid.UUID `json:"userId" validate:"required"`
	Amount      int       `json:"amount" validate:"required"`
	Bucket      string    `json:"bucket" validate:"required"`
	Description string    `json:"description" validate:"required"`
	ReferenceID *string   `json:"referenceId,omitempty"`
}

type adminSetBalanceRequest struct {
	UserID      uuid.UUID `json:"userId" validate:"required"`
	Bucket      string    `json:"bucket" validate:"required"`
	Target      int       `json:"target" validate:"min=0"`
	Description string    `json:"description" validate:"required"`
}

// AdminAdjustCredits applies a signed admin adjustment to one bucket of
// any user's balance.
func AdminAdjustCredits(svc credits.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload adminAdjustRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		bucket, err := enums.ParseCreditBucket(payload.Bucket)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid bucket"))
			return
		}

		txn, err := svc.Adjust(r.Context(), credits.AdjustInput{
			UserID:      payload.UserID,
			Amount:      payload.Amount,
			Bucket:      bucket,
			Type:        enums.CreditTransactionTypeAdminAdjustment,
			Description: validators.SanitizeString(payload.Description, maxDescriptionLen),
			ReferenceID: payload.ReferenceID,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newTransactionResponses([]models.CreditTransaction{*txn})[0])
	}
}

// AdminSetBalance forces one bucket of a user's balance to an absolute
// value, recording the delta as an admin adjustment.
func AdminSetBalance(svc credits.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload adminSetBalanceRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		bucket, err := enums.ParseCreditBucket(payload.Bucket)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid bucket"))
			return
		}

		txn, err := svc.SetBalance(r.Context(), payload.UserID, bucket, payload.Target,
			validators.SanitizeString(payload.Description, maxDescriptionLen))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if txn == nil {
			// Balance already at target; nothing was written.
			responses.WriteSuccess(w, map[string]any{"changed": false})
			return
		}

		responses.WriteSuccess(w, newTransactionResponses([]models.CreditTransaction{*txn})[0])
	}
}

type adminUserCreditsResponse struct {
	Balances     balanceResponse       `json:"balances"`
	Transactions []transactionResponse `json:"transactions"`
	Total        int64                 `json:"total"`
}

// AdminUserCredits returns any user's balances with their recent ledger.
func AdminUserCredits(profileRepo profiles.Repository, svc credits.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := uuid.Parse(chi.URLParam(r, "userID"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid user id"))
			return
		}

		profile, err := profileRepo.FindByID(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if profile == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "profile not found"))
			return
		}

		rows, total, err := svc.ListTransactions(r.Context(), userID, 20, 0)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, adminUserCreditsResponse{
			Balances: balanceResponse{
				SubscriptionCredits: profile.SubscriptionCreditsBalance,
				PurchasedCredits:    profile.PurchasedCreditsBalance,
				SubscriptionTier:    profile.SubscriptionTier,
				SubscriptionStatus:  string(profile.SubscriptionStatus),
			},
			Transactions: newTransactionResponses(rows),
			Total:        total,
		})
	}
}

type syncRunResponse struct {
	ID               uuid.UUID  `json:"id"`
	Type             string     `json:"type"`
	Status           string     `json:"status"`
	RecordsProcessed int        `json:"recordsProcessed"`
	RecordsFixed     int        `json:"recordsFixed"`
	ErrorMessage     *string    `json:"errorMessage,omitempty"`
	StartedAt        time.Time  `json:"startedAt"`
	CompletedAt      *time.Time `json:"completedAt,omitempty"`
}

// AdminSyncRuns lists recent drift-correction runs, optionally filtered
// by job type.
func AdminSyncRuns(repo reconcile.RunRepository, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, err := validators.ParseQueryInt(r, "limit", 50, 1, 200)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var runType *enums.SyncRunType
		if raw := r.URL.Query().Get("type"); raw != "" {
			parsed, parseErr := enums.ParseSyncRunType(raw)
			if parseErr != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, parseErr, "invalid run type"))
				return
			}
			runType = &parsed
		}

		runs, err := repo.ListRecent(r.Context(), runType, limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		out := make([]syncRunResponse, 0, len(runs))
		for _, run := range runs {
			out = append(out, syncRunResponse{
				ID:               run.ID,
				Type:             string(run.Type),
				Status:           string(run.Status),
				RecordsProcessed: run.RecordsProcessed,
				RecordsFixed:     run.RecordsFixed,
				ErrorMessage:     run.ErrorMessage,
				StartedAt:        run.StartedAt,
				CompletedAt:      run.CompletedAt,
			})
		}
		responses.WriteSuccess(w, out)
	}
}

type webhookEventResponse struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Status    string    `json:"status"`
	Attempts  int       `json:"attempts"`
	LastError *string   `json:"lastError,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func newWebhookEventResponse(record *models.WebhookEvent) webhookEventResponse {
	return webhookEventResponse{
		ID:        record.ID,
		Type:      record.Type,
		Status:    string(record.Status),
		Attempts:  record.Attempts,
		LastError: record.LastError,
		CreatedAt: record.CreatedAt,
		UpdatedAt: record.UpdatedAt,
	}
}

// AdminWebhookEvents lists recent webhook deliveries, optionally filtered
// by status.
func AdminWebhookEvents(repo events.Repository, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, err := validators.ParseQueryInt(r, "limit", 50, 1, 200)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var status *enums.WebhookEventStatus
		if raw := r.URL.Query().Get("status"); raw != "" {
			parsed, parseErr := enums.ParseWebhookEventStatus(raw)
			if parseErr != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, parseErr, "invalid status"))
				return
			}
			status = &parsed
		}

		records, err := repo.ListRecent(r.Context(), status, limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		out := make([]webhookEventResponse, 0, len(records))
		for i := range records {
			out = append(out, newWebhookEventResponse(&records[i]))
		}
		responses.WriteSuccess(w, out)
	}
}

// AdminReplayWebhookEvent re-dispatches a stored payload through the
// webhook service. Manual follow-up for events the recovery sweep gave
// up on.
func AdminReplayWebhookEvent(repo events.Repository, replayer EventReplayer, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		eventID := chi.URLParam(r, "eventID")
		record, err := repo.FindByID(r.Context(), eventID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if record == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "webhook event not found"))
			return
		}

		if err := replayer.Replay(r.Context(), record); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		refreshed, err := repo.FindByID(r.Context(), eventID)
		if err != nil || refreshed == nil {
			refreshed = record
		}
		responses.WriteSuccess(w, newWebhookEventResponse(refreshed))
	}
}
