package billing

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/pixelboost-ai/billing-service/pkg/db/models"
	"github.com/pixelboost-ai/billing-service/pkg/enums"
)

// Repository handles billing persistence: subscriptions and the plan catalog.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateSubscription(ctx context.Context, subscription *models.Subscription) error
	UpdateSubscription(ctx context.Context, subscription *models.Subscription) error
	FindSubscriptionByStripeID(ctx context.Context, stripeSubscriptionID string) (*models.Subscription, error)
	ListExpiredEntitled(ctx context.Context, now time.Time, limit int) ([]models.Subscription, error)
	ListSubscriptionsForReconciliation(ctx context.Context, now time.Time, limit int, lookback time.Duration) ([]models.Subscription, error)
	ListPlans(ctx context.Context, activeOnly bool) ([]models.Plan, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a billing repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreateSubscription(ctx context.Context, subscription *models.Subscription) error {
	return r.db.WithContext(ctx).Create(subscription).Error
}

func (r *repository) UpdateSubscription(ctx context.Context, subscription *models.Subscription) error {
	return r.db.WithContext(ctx).Save(subscription).Error
}

func (r *repository) FindSubscriptionByStripeID(ctx context.Context, stripeSubscriptionID string) (*models.Subscription, error) {
	if stripeSubscriptionID == "" {
		return nil, gorm.ErrRecordNotFound
	}
	var sub models.Subscription
	if err := r.db.WithContext(ctx).
		Where("stripe_subscription_id = ?", stripeSubscriptionID).
		First(&sub).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &sub, nil
}

// ListExpiredEntitled returns subscriptions the local store still believes are
// entitled but whose billing period already ended. These are the candidates
// for the hourly expiration check: either the provider canceled them and the
// webhook was lost, or the provider already extended the period.
func (r *repository) ListExpiredEntitled(ctx context.Context, now time.Time, limit int) ([]models.Subscription, error) {
	if limit <= 0 {
		limit = 100
	}
	statuses := []enums.SubscriptionStatus{
		enums.SubscriptionStatusActive,
		enums.SubscriptionStatusTrialing,
	}
	var subs []models.Subscription
	if err := r.db.WithContext(ctx).
		Where("status IN (?)", statuses).
		Where("current_period_end < ?", now.UTC()).
		Order("current_period_end ASC").
		Limit(limit).
		Find(&subs).Error; err != nil {
		return nil, err
	}
	return subs, nil
}

// ListSubscriptionsForReconciliation is the nightly superset sweep: every
// subscription that is not canceled, plus recently-updated canceled rows
// inside the lookback window, oldest update first.
func (r *repository) ListSubscriptionsForReconciliation(ctx context.Context, now time.Time, limit int, lookback time.Duration) ([]models.Subscription, error) {
	if limit <= 0 {
		limit = 100
	}
	if lookback <= 0 {
		lookback = 30 * 24 * time.Hour
	}
	cutoff := now.UTC().Add(-lookback)
	var subs []models.Subscription
	if err := r.db.WithContext(ctx).
		Where("status <> ? OR updated_at >= ?", enums.SubscriptionStatusCanceled, cutoff).
		Order("updated_at ASC").
		Limit(limit).
		Find(&subs).Error; err != nil {
		return nil, err
	}
	return subs, nil
}

func (r *repository) ListPlans(ctx context.Context, activeOnly bool) ([]models.Plan, error) {
	query := r.db.WithContext(ctx).Model(&models.Plan{})
	if activeOnly {
		query = query.Where("active = ?", true)
	}
	var plans []models.Plan
	if err := query.Order("monthly_price ASC, name ASC").Find(&plans).Error; err != nil {
		return nil, err
	}
	return plans, nil
}
