package controllers

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/pixelboost-ai/billing-service/api/middleware"
	"github.com/pixelboost-ai/billing-service/api/responses"
	"github.com/pixelboost-ai/billing-service/api/validators"
	"github.com/pixelboost-ai/billing-service/internal/credits"
	"github.com/pixelboost-ai/billing-service/internal/profiles"
	"github.com/pixelboost-ai/billing-service/pkg/db/models"
	pkgerrors "github.com/pixelboost-ai/billing-service/pkg/errors"
	"github.com/pixelboost-ai/billing-service/pkg/logger"
)

type balanceResponse struct {
	SubscriptionCredits int    `json:"subscriptionCredits"`
	PurchasedCredits    int    `json:"purchasedCredits"`
	SubscriptionTier    string `json:"subscriptionTier"`
	SubscriptionStatus  string `json:"subscriptionStatus"`
}

type transactionResponse struct {
	ID          uuid.UUID `json:"id"`
	Amount      int       `json:"amount"`
	Type        string    `json:"type"`
	Bucket      string    `json:"bucket"`
	ReferenceID *string   `json:"referenceId,omitempty"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"createdAt"`
}

type transactionPage struct {
	Transactions []transactionResponse `json:"transactions"`
	Total        int64                 `json:"total"`
	Limit        int                   `json:"limit"`
	Offset       int                   `json:"offset"`
}

func newTransactionResponses(rows []models.CreditTransaction) []transactionResponse {
	out := make([]transactionResponse, 0, len(rows))
	for _, row := range rows {
		out = append(out, transactionResponse{
			ID:          row.ID,
			Amount:      row.Amount,
			Type:        string(row.Type),
			Bucket:      string(row.Bucket),
			ReferenceID: row.ReferenceID,
			Description: row.Description,
			CreatedAt:   row.CreatedAt,
		})
	}
	return out
}

// CreditsBalance returns the caller's balances alongside the profile's
// tier and subscription status.
func CreditsBalance(profileRepo profiles.Repository, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := middleware.UserIDFromContext(r.Context())
		if userID == uuid.Nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
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

		responses.WriteSuccess(w, balanceResponse{
			SubscriptionCredits: profile.SubscriptionCreditsBalance,
			PurchasedCredits:    profile.PurchasedCreditsBalance,
			SubscriptionTier:    profile.SubscriptionTier,
			SubscriptionStatus:  string(profile.SubscriptionStatus),
		})
	}
}

// CreditsTransactions returns a limit/offset page of the caller's ledger,
// newest first.
func CreditsTransactions(svc credits.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := middleware.UserIDFromContext(r.Context())
		if userID == uuid.Nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", 25, 1, 100)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		offset, err := validators.ParseQueryInt(r, "offset", 0, 0, 1_000_000)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		rows, total, err := svc.ListTransactions(r.Context(), userID, limit, offset)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, transactionPage{
			Transactions: newTransactionResponses(rows),
			Total:        total,
			Limit:        limit,
			Offset:       offset,
		})
	}
}
