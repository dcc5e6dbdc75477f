package stripewebhook

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v82"

	"github.com/pixelboost-ai/billing-service/internal/events"
	"github.com/pixelboost-ai/billing-service/internal/sync"
	"github.com/pixelboost-ai/billing-service/pkg/db/models"
	pkgerrors "github.com/pixelboost-ai/billing-service/pkg/errors"
	"github.com/pixelboost-ai/billing-service/pkg/logger"
	"github.com/pixelboost-ai/billing-service/pkg/metrics"
)

// ServiceParams collects the webhook processor's dependencies.
type ServiceParams struct {
	EventRepo    events.Repository
	Synchronizer sync.Service
	StripeClient sync.StripeSubscriptionClient
	Metrics      *metrics.WebhookMetrics
	Logger       *logger.Logger
}

// Service processes verified Stripe events exactly once: claim the event
// id in the event store, dispatch to the synchronizer, and record the
// outcome. Handler failures are absorbed by the caller; the drift
// scheduler re-runs failed records.
type Service struct {
	eventRepo events.Repository
	sync      sync.Service
	stripe    sync.StripeSubscriptionClient
	metrics   *metrics.WebhookMetrics
	logg      *logger.Logger
}

// NewService wires the webhook processing service.
func NewService(params ServiceParams) (*Service, error) {
	if params.EventRepo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "event repo required")
	}
	if params.Synchronizer == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "synchronizer required")
	}
	if params.StripeClient == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "stripe client required")
	}
	return &Service{
		eventRepo: params.EventRepo,
		sync:      params.Synchronizer,
		stripe:    params.StripeClient,
		metrics:   params.Metrics,
		logg:      params.Logger,
	}, nil
}

// ProcessEvent handles one verified delivery. Returns skipped=true when the
// event id was already claimed by an earlier delivery.
func (s *Service) ProcessEvent(ctx context.Context, event *stripe.Event, payload []byte) (skipped bool, err error) {
	if event == nil || event.ID == "" {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "stripe event id required")
	}
	ctx = s.logCtx(ctx, event.ID)

	claimed, err := s.eventRepo.Claim(ctx, &models.WebhookEvent{
		ID:      event.ID,
		Type:    string(event.Type),
		Payload: json.RawMessage(payload),
	})
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim webhook event")
	}
	if !claimed {
		s.metrics.IncSkipped(string(event.Type))
		if s.logg != nil {
			s.logg.Info(ctx, "duplicate webhook event skipped")
		}
		return true, nil
	}
	s.metrics.IncReceived(string(event.Type))

	err = s.runDispatch(ctx, event)
	if err != nil {
		s.metrics.IncFailed(string(event.Type))
		if markErr := s.eventRepo.MarkFailed(ctx, event.ID, err); markErr != nil && s.logg != nil {
			s.logg.Error(ctx, "mark webhook event failed", markErr)
		}
		return false, err
	}
	if markErr := s.eventRepo.MarkCompleted(ctx, event.ID); markErr != nil && s.logg != nil {
		// The record stays "processing"; the recovery sweep will re-run
		// the payload, which is safe because dispatch is idempotent.
		s.logg.Error(ctx, "mark webhook event completed", markErr)
	}
	return false, nil
}

// Replay re-runs a stored payload through the same dispatch path and
// updates the record's status. Used by the recovery job and the admin
// replay endpoint.
func (s *Service) Replay(ctx context.Context, record *models.WebhookEvent) error {
	if record == nil || record.ID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "webhook event record required")
	}
	ctx = s.logCtx(ctx, record.ID)

	var event stripe.Event
	if err := json.Unmarshal(record.Payload, &event); err != nil {
		parseErr := pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode stored webhook payload")
		if markErr := s.eventRepo.MarkFailed(ctx, record.ID, parseErr); markErr != nil && s.logg != nil {
			s.logg.Error(ctx, "mark webhook event failed", markErr)
		}
		return parseErr
	}
	if event.ID == "" {
		event.ID = record.ID
	}

	err := s.runDispatch(ctx, &event)
	if err != nil {
		if markErr := s.eventRepo.MarkFailed(ctx, record.ID, err); markErr != nil && s.logg != nil {
			s.logg.Error(ctx, "mark webhook event failed", markErr)
		}
		return err
	}
	return s.eventRepo.MarkCompleted(ctx, record.ID)
}

// runDispatch shields the caller from panics inside handlers so a
// malformed payload can never leave the record stuck in "processing".
func (s *Service) runDispatch(ctx context.Context, event *stripe.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = pkgerrors.New(pkgerrors.CodeInternal, fmt.Sprintf("webhook dispatch panic: %v", r))
		}
	}()
	return s.dispatch(ctx, event)
}

func (s *Service) dispatch(ctx context.Context, event *stripe.Event) error {
	switch event.Type {
	case stripe.EventTypeCustomerSubscriptionCreated,
		stripe.EventTypeCustomerSubscriptionUpdated:
		stripeSub, err := decodeSubscription(event)
		if err != nil {
			return err
		}
		return s.syncForCustomer(ctx, stripeSub)

	case stripe.EventTypeCustomerSubscriptionDeleted:
		stripeSub, err := decodeSubscription(event)
		if err != nil {
			return err
		}
		userID, err := s.sync.GetUserIDFromCustomerID(ctx, customerID(stripeSub))
		if err != nil {
			return err
		}
		_, err = s.sync.MarkSubscriptionCanceled(ctx, userID, stripeSub.ID)
		return err

	case stripe.EventTypeInvoicePaid, stripe.EventTypeInvoicePaymentSucceeded:
		return s.refreshFromInvoice(ctx, event, false)

	case stripe.EventTypeInvoicePaymentFailed:
		return s.refreshFromInvoice(ctx, event, true)

	default:
		return nil
	}
}

// syncForCustomer resolves the local user and applies the subscription
// snapshot. Orphan customers are skipped as success; the profile may not
// exist yet when provider and provisioning race.
func (s *Service) syncForCustomer(ctx context.Context, stripeSub *stripe.Subscription) error {
	userID, err := s.sync.GetUserIDFromCustomerID(ctx, customerID(stripeSub))
	if err != nil {
		return err
	}
	if userID == uuid.Nil {
		if s.logg != nil {
			s.logg.Warn(s.logg.WithField(ctx, "customer_id", customerID(stripeSub)),
				"no profile for stripe customer, skipping event")
		}
		return nil
	}
	_, err = s.sync.SyncSubscriptionFromStripe(ctx, userID, stripeSub)
	return err
}

func (s *Service) refreshFromInvoice(ctx context.Context, event *stripe.Event, fullSync bool) error {
	if event.Data == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "stripe event data required")
	}
	subscriptionID := event.GetObjectValue("subscription")
	if subscriptionID == "" {
		// One-off invoices carry no subscription; nothing to reconcile.
		return nil
	}

	remote, err := s.stripe.Get(ctx, subscriptionID, nil)
	if err != nil {
		if sync.IsNotFound(err) {
			_, cancelErr := s.sync.MarkSubscriptionCanceled(ctx, uuid.Nil, subscriptionID)
			return cancelErr
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "fetch stripe subscription")
	}

	if fullSync {
		return s.syncForCustomer(ctx, remote)
	}

	// Renewal path: refresh period boundaries; the once-per-period grant
	// rides on the same update. Unknown local rows fall back to a full sync.
	_, err = s.sync.UpdateSubscriptionPeriod(ctx, subscriptionID, remote)
	if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		return s.syncForCustomer(ctx, remote)
	}
	return err
}

func (s *Service) logCtx(ctx context.Context, eventID string) context.Context {
	if s.logg == nil {
		return ctx
	}
	return s.logg.WithEventID(ctx, eventID)
}

func decodeSubscription(event *stripe.Event) (*stripe.Subscription, error) {
	if event.Data == nil || len(event.Data.Raw) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "stripe event data required")
	}
	var stripeSub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &stripeSub); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode subscription event")
	}
	if stripeSub.ID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "subscription id missing from event data")
	}
	return &stripeSub, nil
}

func customerID(sub *stripe.Subscription) string {
	if sub == nil || sub.Customer == nil {
		return ""
	}
	return sub.Customer.ID
}
