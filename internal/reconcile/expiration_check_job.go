package reconcile

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/pixelboost-ai/billing-service/internal/billing"
	"github.com/pixelboost-ai/billing-service/internal/sync"
	"github.com/pixelboost-ai/billing-service/pkg/enums"
	"github.com/pixelboost-ai/billing-service/pkg/logger"
)

const defaultBatchLimit = 100

// ExpirationCheckJobParams configures the hourly expiration sweep.
type ExpirationCheckJobParams struct {
	Logger       *logger.Logger
	BillingRepo  billing.Repository
	Synchronizer sync.Service
	Limit        int
	Now          func() time.Time
}

// NewExpirationCheckJob builds the sweep over locally entitled
// subscriptions whose period already ended.
func NewExpirationCheckJob(params ExpirationCheckJobParams) (Job, error) {
	if params.BillingRepo == nil {
		return nil, fmt.Errorf("billing repository required")
	}
	if params.Synchronizer == nil {
		return nil, fmt.Errorf("synchronizer required")
	}
	limit := params.Limit
	if limit <= 0 {
		limit = defaultBatchLimit
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &expirationCheckJob{
		logg:        params.Logger,
		billingRepo: params.BillingRepo,
		sync:        params.Synchronizer,
		limit:       limit,
		now:         now,
	}, nil
}

type expirationCheckJob struct {
	logg        *logger.Logger
	billingRepo billing.Repository
	sync        sync.Service
	limit       int
	now         func() time.Time
}

func (j *expirationCheckJob) Name() string { return "expiration-check" }

func (j *expirationCheckJob) Type() enums.SyncRunType { return enums.SyncRunTypeExpirationCheck }

func (j *expirationCheckJob) Run(ctx context.Context) (Result, error) {
	candidates, err := j.billingRepo.ListExpiredEntitled(ctx, j.now().UTC(), j.limit)
	if err != nil {
		return Result{}, fmt.Errorf("list expired subscriptions: %w", err)
	}

	result := Result{}
	var errs error
	for i := range candidates {
		sub := &candidates[i]
		result.Processed++

		fixed, itemErr := j.sync.RefreshFromProvider(ctx, sub)
		if itemErr != nil {
			if j.logg != nil {
				itemCtx := j.logg.WithField(ctx, "subscription_id", sub.StripeSubscriptionID)
				j.logg.Error(itemCtx, "refresh expired subscription", itemErr)
			}
			errs = multierr.Append(errs, itemErr)
			continue
		}
		if fixed {
			result.Fixed++
		}
	}
	return result, errs
}
