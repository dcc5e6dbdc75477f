package reconcile

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/pixelboost-ai/billing-service/internal/billing"
	"github.com/pixelboost-ai/billing-service/internal/profiles"
	"github.com/pixelboost-ai/billing-service/internal/sync"
	"github.com/pixelboost-ai/billing-service/pkg/db/models"
	"github.com/pixelboost-ai/billing-service/pkg/enums"
	"github.com/pixelboost-ai/billing-service/pkg/logger"
)

const defaultReconcileLookback = 30 * 24 * time.Hour

// FullReconciliationJobParams configures the nightly superset sweep.
type FullReconciliationJobParams struct {
	Logger       *logger.Logger
	BillingRepo  billing.Repository
	ProfileRepo  profiles.Repository
	Synchronizer sync.Service
	Catalog      *billing.Catalog
	Limit        int
	Lookback     time.Duration
	Now          func() time.Time
}

// NewFullReconciliationJob builds the nightly sweep: every non-canceled
// subscription plus anything updated within the lookback window, oldest
// update first. Alongside the provider refresh it repairs profile
// status/tier drift against the subscription row.
func NewFullReconciliationJob(params FullReconciliationJobParams) (Job, error) {
	if params.BillingRepo == nil {
		return nil, fmt.Errorf("billing repository required")
	}
	if params.ProfileRepo == nil {
		return nil, fmt.Errorf("profile repository required")
	}
	if params.Synchronizer == nil {
		return nil, fmt.Errorf("synchronizer required")
	}
	if params.Catalog == nil {
		return nil, fmt.Errorf("plan catalog required")
	}
	limit := params.Limit
	if limit <= 0 {
		limit = defaultBatchLimit
	}
	lookback := params.Lookback
	if lookback <= 0 {
		lookback = defaultReconcileLookback
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &fullReconciliationJob{
		logg:        params.Logger,
		billingRepo: params.BillingRepo,
		profileRepo: params.ProfileRepo,
		sync:        params.Synchronizer,
		catalog:     params.Catalog,
		limit:       limit,
		lookback:    lookback,
		now:         now,
	}, nil
}

type fullReconciliationJob struct {
	logg        *logger.Logger
	billingRepo billing.Repository
	profileRepo profiles.Repository
	sync        sync.Service
	catalog     *billing.Catalog
	limit       int
	lookback    time.Duration
	now         func() time.Time
}

func (j *fullReconciliationJob) Name() string { return "full-reconciliation" }

func (j *fullReconciliationJob) Type() enums.SyncRunType {
	return enums.SyncRunTypeFullReconciliation
}

func (j *fullReconciliationJob) Run(ctx context.Context) (Result, error) {
	candidates, err := j.billingRepo.ListSubscriptionsForReconciliation(ctx, j.now().UTC(), j.limit, j.lookback)
	if err != nil {
		return Result{}, fmt.Errorf("list subscriptions for reconciliation: %w", err)
	}

	result := Result{}
	var errs error
	for i := range candidates {
		sub := &candidates[i]
		result.Processed++
		itemCtx := ctx
		if j.logg != nil {
			itemCtx = j.logg.WithField(ctx, "subscription_id", sub.StripeSubscriptionID)
		}

		fixed, itemErr := j.sync.RefreshFromProvider(itemCtx, sub)
		if itemErr != nil {
			if j.logg != nil {
				j.logg.Error(itemCtx, "reconcile subscription", itemErr)
			}
			errs = multierr.Append(errs, itemErr)
			continue
		}

		profileFixed, profileErr := j.repairProfileDrift(itemCtx, sub)
		if profileErr != nil {
			if j.logg != nil {
				j.logg.Error(itemCtx, "repair profile drift", profileErr)
			}
			errs = multierr.Append(errs, profileErr)
			continue
		}
		if fixed || profileFixed {
			result.Fixed++
		}
	}
	return result, errs
}

// repairProfileDrift re-reads the subscription row after the provider
// refresh and forces the profile's status/tier to match it.
func (j *fullReconciliationJob) repairProfileDrift(ctx context.Context, sub *models.Subscription) (bool, error) {
	current, err := j.billingRepo.FindSubscriptionByStripeID(ctx, sub.StripeSubscriptionID)
	if err != nil {
		return false, err
	}
	if current == nil {
		return false, nil
	}

	profile, err := j.profileRepo.FindByID(ctx, current.UserID)
	if err != nil {
		return false, err
	}
	if profile == nil {
		return false, nil
	}

	wantTier := current.TierName
	if !current.Status.IsEntitled() {
		if def := j.catalog.Default(); def != nil {
			wantTier = def.Name
		}
	}
	if profile.SubscriptionStatus == current.Status && profile.SubscriptionTier == wantTier {
		return false, nil
	}
	if err := j.profileRepo.SetBillingState(ctx, profile.ID, current.Status, wantTier); err != nil {
		return false, err
	}
	return true, nil
}
