package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/pixelboost-ai/billing-service/pkg/enums"
)

// SyncRun audits one drift-correction job execution. Created in processing
// state when the job starts and completed exactly once.
type SyncRun struct {
	ID               uuid.UUID           `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Type             enums.SyncRunType   `gorm:"column:type;type:sync_run_type_enum;not null;index"`
	Status           enums.SyncRunStatus `gorm:"column:status;type:sync_run_status_enum;not null;default:'processing'"`
	RecordsProcessed int                 `gorm:"column:records_processed;not null;default:0"`
	RecordsFixed     int                 `gorm:"column:records_fixed;not null;default:0"`
	ErrorMessage     *string             `gorm:"column:error_message"`
	StartedAt        time.Time           `gorm:"column:started_at;not null"`
	CompletedAt      *time.Time          `gorm:"column:completed_at"`
}
