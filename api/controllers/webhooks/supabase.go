package webhooks

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/pixelboost-ai/billing-service/api/responses"
	supabasewebhook "github.com/pixelboost-ai/billing-service/internal/webhooks/supabase"
	pkgerrors "github.com/pixelboost-ai/billing-service/pkg/errors"
	"github.com/pixelboost-ai/billing-service/pkg/logger"
)

const supabaseSignatureHeader = "x-supabase-signature"

type SupabaseWebhookService interface {
	HandleUserCreated(ctx context.Context, input supabasewebhook.UserCreatedInput) (skipped bool, err error)
}

// supabaseHookPayload is the database-webhook envelope Supabase sends for
// INSERT on auth.users. Only the record fields this service reads are typed.
type supabaseHookPayload struct {
	Type   string `json:"type"`
	Table  string `json:"table"`
	Record struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	} `json:"record"`
}

type supabaseReceipt struct {
	Received bool `json:"received"`
	Skipped  bool `json:"skipped,omitempty"`
}

// SupabaseWebhook provisions the billing profile for a freshly created auth
// user. Guarded by the shared hook secret; replays are acknowledged as
// skipped.
func SupabaseWebhook(svc SupabaseWebhookService, hookSecret string, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}

		provided := strings.TrimSpace(r.Header.Get(supabaseSignatureHeader))
		if hookSecret == "" || subtle.ConstantTimeCompare([]byte(provided), []byte(hookSecret)) != 1 {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid hook signature"))
			return
		}

		// The hook envelope carries fields this service does not read
		// (schema, old_record), so strict decoding would reject real
		// deliveries.
		var payload supabaseHookPayload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid request body"))
			return
		}

		if !strings.EqualFold(payload.Type, "INSERT") || payload.Table != "users" {
			responses.WriteJSON(w, http.StatusOK, supabaseReceipt{Received: true, Skipped: true})
			return
		}

		userID, err := uuid.Parse(payload.Record.ID)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid user id"))
			return
		}

		skipped, err := svc.HandleUserCreated(ctx, supabasewebhook.UserCreatedInput{
			ID:    userID,
			Email: payload.Record.Email,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteJSON(w, http.StatusOK, supabaseReceipt{Received: true, Skipped: skipped})
	}
}
