package models

import (
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// Plan captures the local metadata for a subscription tier: the Stripe
// price it maps to, the monthly credit grant, and the rollover cap.
type Plan struct {
	ID             string          `gorm:"column:id;primaryKey"`
	Name           string          `gorm:"column:name;not null;uniqueIndex"`
	StripePriceID  string          `gorm:"column:stripe_price_id;not null;uniqueIndex"`
	MonthlyPrice   decimal.Decimal `gorm:"column:monthly_price;type:numeric(12,2);not null"`
	MonthlyCredits int             `gorm:"column:monthly_credits;not null;default:0"`
	RolloverCap    int             `gorm:"column:rollover_cap;not null;default:0"`
	Features       pq.StringArray  `gorm:"column:features;type:text[];default:ARRAY[]::text[]"`
	IsDefault      bool            `gorm:"column:is_default;not null;default:false"`
	Active         bool            `gorm:"column:active;not null;default:true"`
	CreatedAt      time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}
