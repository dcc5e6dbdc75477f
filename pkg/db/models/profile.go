package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/pixelboost-ai/billing-service/pkg/enums"
)

// Profile is the per-user billing state. The id equals the Supabase auth
// user id; rows are created at registration with free-tier defaults and
// mutated only through the credit ledger or the state synchronizer.
type Profile struct {
	ID                         uuid.UUID                `gorm:"type:uuid;primaryKey"`
	Email                      string                   `gorm:"type:text;not null;uniqueIndex"`
	StripeCustomerID           *string                  `gorm:"column:stripe_customer_id;uniqueIndex"`
	SubscriptionStatus         enums.SubscriptionStatus `gorm:"column:subscription_status;type:subscription_status_enum;not null;default:'none'"`
	SubscriptionTier           string                   `gorm:"column:subscription_tier;not null;default:'Free'"`
	SubscriptionCreditsBalance int                      `gorm:"column:subscription_credits_balance;not null;default:0"`
	PurchasedCreditsBalance    int                      `gorm:"column:purchased_credits_balance;not null;default:0"`
	Role                       enums.ProfileRole        `gorm:"column:role;type:profile_role_enum;not null;default:'user'"`
	CreatedAt                  time.Time                `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt                  time.Time                `gorm:"column:updated_at;autoUpdateTime"`
}
