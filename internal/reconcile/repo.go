package reconcile

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/pixelboost-ai/billing-service/pkg/db/models"
	"github.com/pixelboost-ai/billing-service/pkg/enums"
)

// RunRepository persists the sync run audit trail.
type RunRepository interface {
	CreateRun(ctx context.Context, run *models.SyncRun) error
	CompleteRun(ctx context.Context, runID uuid.UUID, status enums.SyncRunStatus, processed, fixed int, errMsg *string) error
	ListRecent(ctx context.Context, runType *enums.SyncRunType, limit int) ([]models.SyncRun, error)
}

type runRepository struct {
	db *gorm.DB
}

// NewRunRepository returns a sync run repository bound to the database.
func NewRunRepository(db *gorm.DB) RunRepository {
	return &runRepository{db: db}
}

func (r *runRepository) CreateRun(ctx context.Context, run *models.SyncRun) error {
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}
	if run.Status == "" {
		run.Status = enums.SyncRunStatusProcessing
	}
	return r.db.WithContext(ctx).Create(run).Error
}

func (r *runRepository) CompleteRun(ctx context.Context, runID uuid.UUID, status enums.SyncRunStatus, processed, fixed int, errMsg *string) error {
	now := time.Now().UTC()
	return r.db.WithContext(ctx).
		Model(&models.SyncRun{}).
		Where("id = ?", runID).
		Updates(map[string]any{
			"status":            status,
			"records_processed": processed,
			"records_fixed":     fixed,
			"error_message":     errMsg,
			"completed_at":      &now,
		}).Error
}

func (r *runRepository) ListRecent(ctx context.Context, runType *enums.SyncRunType, limit int) ([]models.SyncRun, error) {
	if limit <= 0 {
		limit = 50
	}
	query := r.db.WithContext(ctx).Model(&models.SyncRun{})
	if runType != nil {
		query = query.Where("type = ?", *runType)
	}
	var runs []models.SyncRun
	if err := query.Order("started_at DESC").Limit(limit).Find(&runs).Error; err != nil {
		return nil, err
	}
	return runs, nil
}
