package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v82"
	"gorm.io/gorm"

	"github.com/pixelboost-ai/billing-service/internal/billing"
	"github.com/pixelboost-ai/billing-service/internal/credits"
	"github.com/pixelboost-ai/billing-service/internal/profiles"
	"github.com/pixelboost-ai/billing-service/pkg/db/models"
	"github.com/pixelboost-ai/billing-service/pkg/enums"
	pkgerrors "github.com/pixelboost-ai/billing-service/pkg/errors"
	"github.com/pixelboost-ai/billing-service/pkg/logger"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service translates provider subscription snapshots into local state. The
// webhook path and the drift jobs go through the same methods, so both
// produce identical end states for the same provider input.
type Service interface {
	// SyncSubscriptionFromStripe upserts the subscription row, updates the
	// profile's status/tier, and applies the once-per-period credit grant.
	// Returns true when local state changed.
	SyncSubscriptionFromStripe(ctx context.Context, userID uuid.UUID, stripeSub *stripe.Subscription) (bool, error)
	// MarkSubscriptionCanceled records cancellation, resets the profile to
	// the default tier, and zeroes the subscription credit bucket. Safe to
	// re-apply.
	MarkSubscriptionCanceled(ctx context.Context, userID uuid.UUID, stripeSubscriptionID string) (bool, error)
	// UpdateSubscriptionPeriod refreshes only the period boundaries and
	// cancel-at-period-end flag; period-advance grants still apply.
	UpdateSubscriptionPeriod(ctx context.Context, stripeSubscriptionID string, stripeSub *stripe.Subscription) (bool, error)
	// GetUserIDFromCustomerID reverse-maps a provider customer to a local
	// user. Returns uuid.Nil with no error when no profile matches; the
	// caller treats that as an orphan event and skips it.
	GetUserIDFromCustomerID(ctx context.Context, customerID string) (uuid.UUID, error)
	// RefreshFromProvider re-fetches a stored subscription from Stripe and
	// reconciles local state against it. Provider not-found maps to
	// cancellation. Returns true when drift was corrected.
	RefreshFromProvider(ctx context.Context, sub *models.Subscription) (bool, error)
}

// ServiceParams collects the synchronizer's dependencies.
type ServiceParams struct {
	BillingRepo       billing.Repository
	ProfileRepo       profiles.Repository
	Credits           credits.Service
	Catalog           *billing.Catalog
	StripeClient      StripeSubscriptionClient
	TransactionRunner txRunner
	Logger            *logger.Logger
	Now               func() time.Time
}

type service struct {
	billingRepo billing.Repository
	profileRepo profiles.Repository
	credits     credits.Service
	catalog     *billing.Catalog
	stripe      StripeSubscriptionClient
	txRunner    txRunner
	logg        *logger.Logger
	now         func() time.Time
}

// NewService wires the state synchronizer.
func NewService(params ServiceParams) (Service, error) {
	if params.BillingRepo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "billing repo required")
	}
	if params.ProfileRepo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "profile repo required")
	}
	if params.Credits == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "credits service required")
	}
	if params.Catalog == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "plan catalog required")
	}
	if params.TransactionRunner == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		billingRepo: params.BillingRepo,
		profileRepo: params.ProfileRepo,
		credits:     params.Credits,
		catalog:     params.Catalog,
		stripe:      params.StripeClient,
		txRunner:    params.TransactionRunner,
		logg:        params.Logger,
		now:         now,
	}, nil
}

// grantReference is the once-per-period ledger key.
func grantReference(stripeSubscriptionID string, periodStart time.Time) string {
	return fmt.Sprintf("sub:%s:%d", stripeSubscriptionID, periodStart.Unix())
}

func (s *service) SyncSubscriptionFromStripe(ctx context.Context, userID uuid.UUID, stripeSub *stripe.Subscription) (bool, error) {
	if userID == uuid.Nil {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	if stripeSub == nil || stripeSub.ID == "" {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "stripe subscription is required")
	}

	status := mapStripeStatus(stripeSub.Status)
	priceID := priceIDFrom(stripeSub)
	periodStart, periodEnd := periodFrom(stripeSub)
	cancels := status == enums.SubscriptionStatusCanceled ||
		status == enums.SubscriptionStatusIncompleteExpired

	changed := false
	var grantRef string
	var grantPlan *models.Plan

	err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.billingRepo.WithTx(tx)
		profileRepo := s.profileRepo.WithTx(tx)

		stored, err := repo.FindSubscriptionByStripeID(ctx, stripeSub.ID)
		if err != nil {
			return err
		}

		// A stale delivery must not roll the period backwards. Cancel
		// events are exempt: the terminal state always lands.
		if stored != nil && !periodEnd.IsZero() &&
			periodEnd.Before(stored.CurrentPeriodEnd) && !cancels {
			if s.logg != nil {
				s.logg.Warn(s.logg.WithField(ctx, "subscription_id", stripeSub.ID),
					"ignoring stale subscription update with earlier period end")
			}
			return nil
		}

		plan := s.catalog.ByPriceID(priceID)
		tier := ""
		switch {
		case plan != nil:
			tier = plan.Name
		case stored != nil:
			tier = stored.TierName
			if s.logg != nil && priceID != "" {
				s.logg.Warn(s.logg.WithField(ctx, "price_id", priceID),
					"unknown price id, keeping existing tier")
			}
		default:
			if def := s.catalog.Default(); def != nil {
				tier = def.Name
			}
		}

		var pricePtr *string
		if priceID != "" {
			p := priceID
			pricePtr = &p
		}

		if stored == nil {
			sub := &models.Subscription{
				UserID:               userID,
				StripeSubscriptionID: stripeSub.ID,
				Status:               status,
				PriceID:              pricePtr,
				TierName:             tier,
				CurrentPeriodStart:   periodStart,
				CurrentPeriodEnd:     periodEnd,
				TrialEnd:             toTimePtr(stripeSub.TrialEnd),
				CancelAtPeriodEnd:    stripeSub.CancelAtPeriodEnd,
				CanceledAt:           toTimePtr(stripeSub.CanceledAt),
			}
			if err := repo.CreateSubscription(ctx, sub); err != nil {
				return err
			}
			stored = sub
			changed = true
		} else {
			before := *stored
			stored.Status = status
			if pricePtr != nil {
				stored.PriceID = pricePtr
			}
			stored.TierName = tier
			if periodStart != nil {
				stored.CurrentPeriodStart = periodStart
			}
			if !periodEnd.IsZero() {
				stored.CurrentPeriodEnd = periodEnd
			}
			stored.TrialEnd = toTimePtr(stripeSub.TrialEnd)
			stored.CancelAtPeriodEnd = stripeSub.CancelAtPeriodEnd
			stored.CanceledAt = toTimePtr(stripeSub.CanceledAt)

			// A scheduled downgrade takes effect once the period rolls
			// past its effective date.
			if stored.ScheduledPriceID != nil && stored.ScheduledChangeAt != nil &&
				periodStart != nil && !periodStart.Before(*stored.ScheduledChangeAt) {
				stored.PriceID = stored.ScheduledPriceID
				if downgrade := s.catalog.ByPriceID(*stored.ScheduledPriceID); downgrade != nil {
					stored.TierName = downgrade.Name
					tier = downgrade.Name
				}
				stored.ScheduledPriceID = nil
				stored.ScheduledChangeAt = nil
			}

			if err := repo.UpdateSubscription(ctx, stored); err != nil {
				return err
			}
			changed = subscriptionChanged(&before, stored)
		}

		profileStatus := status
		profileTier := stored.TierName
		if cancels {
			if def := s.catalog.Default(); def != nil {
				profileTier = def.Name
			}
		}
		if err := profileRepo.SetBillingState(ctx, userID, profileStatus, profileTier); err != nil {
			return err
		}

		// The grant is attempted on every entitled sync, not only when the
		// period advanced: the stored row already carries the new period
		// when a failed delivery is replayed, so gating on advancement
		// would lose the grant for good. The per-period reference dedups
		// the attempts that already landed.
		if status.IsEntitled() && stored.CurrentPeriodStart != nil {
			if grantPlan = s.catalog.ByPriceID(valueOf(stored.PriceID)); grantPlan != nil {
				grantRef = grantReference(stripeSub.ID, *stored.CurrentPeriodStart)
			}
		}
		return nil
	})
	if err != nil {
		return false, err
	}

	// The grant runs outside the sync transaction; the per-period
	// reference makes a replay after a crash a no-op.
	if grantRef != "" && grantPlan != nil && grantPlan.MonthlyCredits > 0 {
		granted, err := s.credits.GrantSubscriptionCredits(ctx, userID, grantPlan.MonthlyCredits, grantPlan.RolloverCap, grantRef)
		if err != nil {
			return changed, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "apply period credit grant")
		}
		if granted > 0 {
			changed = true
		}
	}
	return changed, nil
}

func (s *service) MarkSubscriptionCanceled(ctx context.Context, userID uuid.UUID, stripeSubscriptionID string) (bool, error) {
	if stripeSubscriptionID == "" {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "subscription id is required")
	}

	changed := false
	err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.billingRepo.WithTx(tx)
		profileRepo := s.profileRepo.WithTx(tx)

		stored, err := repo.FindSubscriptionByStripeID(ctx, stripeSubscriptionID)
		if err != nil {
			return err
		}
		if stored != nil {
			if userID == uuid.Nil {
				userID = stored.UserID
			}
			if stored.Status != enums.SubscriptionStatusCanceled {
				stored.Status = enums.SubscriptionStatusCanceled
				if stored.CanceledAt == nil {
					now := s.now().UTC()
					stored.CanceledAt = &now
				}
				if err := repo.UpdateSubscription(ctx, stored); err != nil {
					return err
				}
				changed = true
			}
		}
		if userID == uuid.Nil {
			return nil
		}

		tier := ""
		if def := s.catalog.Default(); def != nil {
			tier = def.Name
		}
		return profileRepo.SetBillingState(ctx, userID, enums.SubscriptionStatusCanceled, tier)
	})
	if err != nil {
		return false, err
	}
	if userID == uuid.Nil {
		return changed, nil
	}

	expired, err := s.credits.ExpireSubscriptionCredits(ctx, userID, "")
	if err != nil {
		return changed, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "expire subscription credits")
	}
	if expired > 0 {
		changed = true
	}
	return changed, nil
}

func (s *service) UpdateSubscriptionPeriod(ctx context.Context, stripeSubscriptionID string, stripeSub *stripe.Subscription) (bool, error) {
	if stripeSubscriptionID == "" || stripeSub == nil {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "subscription is required")
	}

	periodStart, periodEnd := periodFrom(stripeSub)
	changed := false
	var grantRef string
	var grantPlan *models.Plan
	var userID uuid.UUID

	err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.billingRepo.WithTx(tx)

		stored, err := repo.FindSubscriptionByStripeID(ctx, stripeSubscriptionID)
		if err != nil {
			return err
		}
		if stored == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "subscription not found")
		}
		userID = stored.UserID

		if !periodEnd.IsZero() && periodEnd.Before(stored.CurrentPeriodEnd) {
			return nil
		}

		newPeriod := false
		if periodStart != nil &&
			(stored.CurrentPeriodStart == nil || periodStart.After(*stored.CurrentPeriodStart)) {
			newPeriod = true
			stored.CurrentPeriodStart = periodStart
		}
		if !periodEnd.IsZero() && !periodEnd.Equal(stored.CurrentPeriodEnd) {
			stored.CurrentPeriodEnd = periodEnd
			changed = true
		}
		if stored.CancelAtPeriodEnd != stripeSub.CancelAtPeriodEnd {
			stored.CancelAtPeriodEnd = stripeSub.CancelAtPeriodEnd
			changed = true
		}
		if newPeriod {
			changed = true
		}

		// Attempted even on a no-change replay; a grant whose first try
		// failed after the period landed is only recoverable here.
		if stored.Status.IsEntitled() && stored.CurrentPeriodStart != nil {
			if grantPlan = s.catalog.ByPriceID(valueOf(stored.PriceID)); grantPlan != nil {
				grantRef = grantReference(stripeSubscriptionID, *stored.CurrentPeriodStart)
			}
		}
		if !changed {
			return nil
		}
		return repo.UpdateSubscription(ctx, stored)
	})
	if err != nil {
		return false, err
	}

	if grantRef != "" && grantPlan != nil && grantPlan.MonthlyCredits > 0 {
		if _, err := s.credits.GrantSubscriptionCredits(ctx, userID, grantPlan.MonthlyCredits, grantPlan.RolloverCap, grantRef); err != nil {
			return changed, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "apply period credit grant")
		}
	}
	return changed, nil
}

func (s *service) GetUserIDFromCustomerID(ctx context.Context, customerID string) (uuid.UUID, error) {
	profile, err := s.profileRepo.FindByStripeCustomerID(ctx, customerID)
	if err != nil {
		return uuid.Nil, err
	}
	if profile == nil {
		return uuid.Nil, nil
	}
	return profile.ID, nil
}

func (s *service) RefreshFromProvider(ctx context.Context, sub *models.Subscription) (bool, error) {
	if sub == nil {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "subscription is required")
	}
	if s.stripe == nil {
		return false, pkgerrors.New(pkgerrors.CodeInternal, "stripe client not configured")
	}

	remote, err := s.stripe.Get(ctx, sub.StripeSubscriptionID, nil)
	if err != nil {
		if IsNotFound(err) {
			return s.MarkSubscriptionCanceled(ctx, sub.UserID, sub.StripeSubscriptionID)
		}
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "fetch stripe subscription")
	}
	return s.SyncSubscriptionFromStripe(ctx, sub.UserID, remote)
}

func subscriptionChanged(before, after *models.Subscription) bool {
	if before.Status != after.Status ||
		before.TierName != after.TierName ||
		before.CancelAtPeriodEnd != after.CancelAtPeriodEnd ||
		!before.CurrentPeriodEnd.Equal(after.CurrentPeriodEnd) {
		return true
	}
	if valueOf(before.PriceID) != valueOf(after.PriceID) {
		return true
	}
	if (before.CurrentPeriodStart == nil) != (after.CurrentPeriodStart == nil) {
		return true
	}
	if before.CurrentPeriodStart != nil && !before.CurrentPeriodStart.Equal(*after.CurrentPeriodStart) {
		return true
	}
	if (before.CanceledAt == nil) != (after.CanceledAt == nil) {
		return true
	}
	return false
}

func valueOf(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
