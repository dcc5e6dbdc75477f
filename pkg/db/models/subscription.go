package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/pixelboost-ai/billing-service/pkg/enums"
)

// Subscription persists Stripe subscription state, one row per provider
// subscription id. Rows are never deleted; canceled subscriptions stay as
// history.
type Subscription struct {
	ID                   uuid.UUID                `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	UserID               uuid.UUID                `gorm:"column:user_id;type:uuid;not null;index"`
	StripeSubscriptionID string                   `gorm:"column:stripe_subscription_id;not null;unique"`
	Status               enums.SubscriptionStatus `gorm:"column:status;type:subscription_status_enum;not null;default:'active'"`
	PriceID              *string                  `gorm:"column:price_id"`
	TierName             string                   `gorm:"column:tier_name;not null;default:'Free'"`
	CurrentPeriodStart   *time.Time               `gorm:"column:current_period_start"`
	CurrentPeriodEnd     time.Time                `gorm:"column:current_period_end;not null"`
	TrialEnd             *time.Time               `gorm:"column:trial_end"`
	CancelAtPeriodEnd    bool                     `gorm:"column:cancel_at_period_end;not null;default:false"`
	CanceledAt           *time.Time               `gorm:"column:canceled_at"`
	ScheduledPriceID     *string                  `gorm:"column:scheduled_price_id"`
	ScheduledChangeAt    *time.Time               `gorm:"column:scheduled_change_at"`
	CreatedAt            time.Time                `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt            time.Time                `gorm:"column:updated_at;autoUpdateTime"`
}
