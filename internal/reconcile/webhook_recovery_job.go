package reconcile

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/pixelboost-ai/billing-service/internal/events"
	"github.com/pixelboost-ai/billing-service/pkg/db/models"
	"github.com/pixelboost-ai/billing-service/pkg/enums"
	"github.com/pixelboost-ai/billing-service/pkg/logger"
)

// EventReplayer re-runs a stored webhook payload through the dispatch path.
type EventReplayer interface {
	Replay(ctx context.Context, record *models.WebhookEvent) error
}

const (
	defaultStaleProcessingAfter = 30 * time.Minute
	defaultMaxAttempts          = 5
)

// WebhookRecoveryJobParams configures the failed-event replay sweep.
type WebhookRecoveryJobParams struct {
	Logger               *logger.Logger
	EventRepo            events.Repository
	Webhooks             EventReplayer
	Limit                int
	StaleProcessingAfter time.Duration
	MaxAttempts          int
	Now                  func() time.Time
}

// NewWebhookRecoveryJob builds the sweep over failed webhook events and
// deliveries stuck in processing.
func NewWebhookRecoveryJob(params WebhookRecoveryJobParams) (Job, error) {
	if params.EventRepo == nil {
		return nil, fmt.Errorf("event repository required")
	}
	if params.Webhooks == nil {
		return nil, fmt.Errorf("webhook service required")
	}
	limit := params.Limit
	if limit <= 0 {
		limit = defaultBatchLimit
	}
	staleAfter := params.StaleProcessingAfter
	if staleAfter <= 0 {
		staleAfter = defaultStaleProcessingAfter
	}
	maxAttempts := params.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &webhookRecoveryJob{
		logg:        params.Logger,
		eventRepo:   params.EventRepo,
		webhooks:    params.Webhooks,
		limit:       limit,
		staleAfter:  staleAfter,
		maxAttempts: maxAttempts,
		now:         now,
	}, nil
}

type webhookRecoveryJob struct {
	logg        *logger.Logger
	eventRepo   events.Repository
	webhooks    EventReplayer
	limit       int
	staleAfter  time.Duration
	maxAttempts int
	now         func() time.Time
}

func (j *webhookRecoveryJob) Name() string { return "webhook-recovery" }

func (j *webhookRecoveryJob) Type() enums.SyncRunType { return enums.SyncRunTypeWebhookRecovery }

func (j *webhookRecoveryJob) Run(ctx context.Context) (Result, error) {
	staleBefore := j.now().UTC().Add(-j.staleAfter)
	records, err := j.eventRepo.ListForRecovery(ctx, staleBefore, j.maxAttempts, j.limit)
	if err != nil {
		return Result{}, fmt.Errorf("list webhook events for recovery: %w", err)
	}

	result := Result{}
	var errs error
	for i := range records {
		record := &records[i]
		result.Processed++
		itemCtx := ctx
		if j.logg != nil {
			itemCtx = j.logg.WithEventID(ctx, record.ID)
		}

		if err := j.webhooks.Replay(itemCtx, record); err != nil {
			if j.logg != nil {
				j.logg.Error(itemCtx, "replay webhook event", err)
			}
			errs = multierr.Append(errs, err)
			continue
		}
		result.Fixed++
	}
	return result, errs
}
