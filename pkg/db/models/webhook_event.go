package models

import (
	"encoding/json"
	"time"

	"github.com/pixelboost-ai/billing-service/pkg/enums"
)

// WebhookEvent is the durable idempotency record for an inbound provider
// event, keyed by the provider event id. The unique primary key makes the
// initial insert the sole mutual-exclusion primitive: at most one delivery
// claims a given event id.
type WebhookEvent struct {
	ID        string                   `gorm:"column:id;primaryKey"`
	Type      string                   `gorm:"column:type;not null"`
	Status    enums.WebhookEventStatus `gorm:"column:status;type:webhook_event_status_enum;not null;default:'processing'"`
	Attempts  int                      `gorm:"column:attempts;not null;default:0"`
	LastError *string                  `gorm:"column:last_error"`
	Payload   json.RawMessage          `gorm:"column:payload;type:jsonb"`
	CreatedAt time.Time                `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time                `gorm:"column:updated_at;autoUpdateTime"`
}
