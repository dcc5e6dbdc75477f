package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/pixelboost-ai/billing-service/pkg/enums"
)

// CreditTransaction is an append-only ledger entry. Rows are never mutated
// or deleted; per user, the sum of amounts per bucket reconciles with the
// profile's balances.
type CreditTransaction struct {
	ID          uuid.UUID                   `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	UserID      uuid.UUID                   `gorm:"column:user_id;type:uuid;not null;index"`
	Amount      int                         `gorm:"column:amount;not null"`
	Type        enums.CreditTransactionType `gorm:"column:type;type:credit_transaction_type_enum;not null"`
	Bucket      enums.CreditBucket          `gorm:"column:bucket;type:credit_bucket_enum;not null"`
	ReferenceID *string                     `gorm:"column:reference_id;index"`
	Description string                      `gorm:"column:description;not null"`
	CreatedAt   time.Time                   `gorm:"column:created_at;autoCreateTime"`
}
