package events

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/pixelboost-ai/billing-service/pkg/db/models"
	"github.com/pixelboost-ai/billing-service/pkg/enums"
	pkgerrors "github.com/pixelboost-ai/billing-service/pkg/errors"
)

// Repository is the durable event store backing webhook idempotency and the
// recovery sweep.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	// Claim atomically inserts a processing record for the event id.
	// Returns false when a record already exists in any status, which is
	// the signal to short-circuit the delivery.
	Claim(ctx context.Context, event *models.WebhookEvent) (bool, error)
	MarkCompleted(ctx context.Context, eventID string) error
	MarkFailed(ctx context.Context, eventID string, cause error) error
	FindByID(ctx context.Context, eventID string) (*models.WebhookEvent, error)
	// ListForRecovery returns failed events plus processing rows older than
	// the staleness cutoff, capped at limit and maxAttempts.
	ListForRecovery(ctx context.Context, staleBefore time.Time, maxAttempts, limit int) ([]models.WebhookEvent, error)
	ListRecent(ctx context.Context, status *enums.WebhookEventStatus, limit int) ([]models.WebhookEvent, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns an event store bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Claim(ctx context.Context, event *models.WebhookEvent) (bool, error) {
	if event == nil || strings.TrimSpace(event.ID) == "" {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "event id is required")
	}
	if event.Status == "" {
		event.Status = enums.WebhookEventStatusProcessing
	}
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(event)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repository) MarkCompleted(ctx context.Context, eventID string) error {
	return r.setStatus(ctx, eventID, enums.WebhookEventStatusCompleted, nil)
}

func (r *repository) MarkFailed(ctx context.Context, eventID string, cause error) error {
	var lastError *string
	if cause != nil {
		msg := cause.Error()
		lastError = &msg
	}
	return r.setStatus(ctx, eventID, enums.WebhookEventStatusFailed, lastError)
}

func (r *repository) setStatus(ctx context.Context, eventID string, status enums.WebhookEventStatus, lastError *string) error {
	if strings.TrimSpace(eventID) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "event id is required")
	}
	updates := map[string]any{
		"status":     status,
		"updated_at": time.Now().UTC(),
	}
	if status == enums.WebhookEventStatusFailed {
		updates["attempts"] = gorm.Expr("attempts + 1")
		updates["last_error"] = lastError
	}
	return r.db.WithContext(ctx).
		Model(&models.WebhookEvent{}).
		Where("id = ?", eventID).
		Updates(updates).Error
}

func (r *repository) FindByID(ctx context.Context, eventID string) (*models.WebhookEvent, error) {
	if strings.TrimSpace(eventID) == "" {
		return nil, nil
	}
	var event models.WebhookEvent
	if err := r.db.WithContext(ctx).
		Where("id = ?", eventID).
		First(&event).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &event, nil
}

func (r *repository) ListForRecovery(ctx context.Context, staleBefore time.Time, maxAttempts, limit int) ([]models.WebhookEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	var events []models.WebhookEvent
	if err := r.db.WithContext(ctx).
		Where("attempts < ?", maxAttempts).
		Where("status = ? OR (status = ? AND updated_at < ?)",
			enums.WebhookEventStatusFailed,
			enums.WebhookEventStatusProcessing,
			staleBefore.UTC()).
		Order("updated_at ASC").
		Limit(limit).
		Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}

func (r *repository) ListRecent(ctx context.Context, status *enums.WebhookEventStatus, limit int) ([]models.WebhookEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	query := r.db.WithContext(ctx).Model(&models.WebhookEvent{})
	if status != nil {
		query = query.Where("status = ?", *status)
	}
	var events []models.WebhookEvent
	if err := query.Order("created_at DESC").Limit(limit).Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}
