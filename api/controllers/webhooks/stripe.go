package webhooks

import (
	"context"
	"io"
	"net/http"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/pixelboost-ai/billing-service/api/responses"
	pkgerrors "github.com/pixelboost-ai/billing-service/pkg/errors"
	"github.com/pixelboost-ai/billing-service/pkg/logger"
)

// maxStripeBodyBytes caps the raw webhook payload. Stripe events are small;
// anything larger is not a legitimate delivery.
const maxStripeBodyBytes = 64 << 10

type StripeWebhookService interface {
	ProcessEvent(ctx context.Context, event *stripe.Event, payload []byte) (skipped bool, err error)
}

type stripeReceipt struct {
	Received bool `json:"received"`
	Skipped  bool `json:"skipped,omitempty"`
}

// StripeWebhook verifies and dispatches Stripe billing events. Signature
// failures fail closed with 401. Once the delivery is claimed the response
// is always 200: a handler failure is recorded on the event row and picked
// up by the recovery sweep, and a 5xx here would only make Stripe redeliver
// an event we already own.
func StripeWebhook(svc StripeWebhookService, signingSecret string, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxStripeBodyBytes)
		payload, err := io.ReadAll(r.Body)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
			return
		}

		sigHeader := r.Header.Get("Stripe-Signature")
		if sigHeader == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "stripe signature missing"))
			return
		}

		event, err := webhook.ConstructEvent(payload, sigHeader, signingSecret)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "verify signature"))
			return
		}

		skipped, err := svc.ProcessEvent(ctx, &event, payload)
		if err != nil {
			// Recorded as failed on the event row; acknowledged so Stripe
			// does not redeliver what the recovery sweep will replay.
			if logg != nil {
				logg.Error(ctx, "process stripe event", err)
			}
			responses.WriteJSON(w, http.StatusOK, stripeReceipt{Received: true})
			return
		}

		responses.WriteJSON(w, http.StatusOK, stripeReceipt{Received: true, Skipped: skipped})
	}
}
