package credits

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/pixelboost-ai/billing-service/pkg/db/models"
	"github.com/pixelboost-ai/billing-service/pkg/enums"
	"github.com/pixelboost-ai/billing-service/pkg/pagination"
)

// Repository persists ledger entries and the cached profile balances they
// roll up into.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Insert(ctx context.Context, txn *models.CreditTransaction) error
	// ExistsByReference reports whether the user already has a ledger entry
	// carrying the reference id. Replays check this inside the same
	// transaction as the insert.
	ExistsByReference(ctx context.Context, userID uuid.UUID, referenceID string) (bool, error)
	// ListByUser returns a page of ledger entries, newest first, plus the
	// total row count for the user.
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.CreditTransaction, int64, error)
	FindProfile(ctx context.Context, userID uuid.UUID) (*models.Profile, error)
	// CompareAndSetBalance moves one bucket from expected to next. Returns
	// false when the stored balance no longer equals expected, in which
	// case the enclosing transaction must roll back.
	CompareAndSetBalance(ctx context.Context, userID uuid.UUID, bucket enums.CreditBucket, expected, next int) (bool, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a ledger repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Insert(ctx context.Context, txn *models.CreditTransaction) error {
	if txn.ID == uuid.Nil {
		txn.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(txn).Error
}

func (r *repository) ExistsByReference(ctx context.Context, userID uuid.UUID, referenceID string) (bool, error) {
	if strings.TrimSpace(referenceID) == "" {
		return false, nil
	}
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.CreditTransaction{}).
		Where("user_id = ? AND reference_id = ?", userID, referenceID).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *repository) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.CreditTransaction, int64, error) {
	offset = pagination.NormalizeOffset(offset)

	query := r.db.WithContext(ctx).
		Model(&models.CreditTransaction{}).
		Where("user_id = ?", userID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var txns []models.CreditTransaction
	if err := query.
		Order("created_at DESC, id DESC").
		Limit(pagination.NormalizeLimit(limit)).
		Offset(offset).
		Find(&txns).Error; err != nil {
		return nil, 0, err
	}
	return txns, total, nil
}

func (r *repository) FindProfile(ctx context.Context, userID uuid.UUID) (*models.Profile, error) {
	var profile models.Profile
	if err := r.db.WithContext(ctx).
		Where("id = ?", userID).
		First(&profile).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &profile, nil
}

func (r *repository) CompareAndSetBalance(ctx context.Context, userID uuid.UUID, bucket enums.CreditBucket, expected, next int) (bool, error) {
	column := balanceColumn(bucket)
	result := r.db.WithContext(ctx).
		Model(&models.Profile{}).
		Where("id = ? AND "+column+" = ?", userID, expected).
		Update(column, next)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func balanceColumn(bucket enums.CreditBucket) string {
	if bucket == enums.CreditBucketPurchased {
		return "purchased_credits_balance"
	}
	return "subscription_credits_balance"
}
