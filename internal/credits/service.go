package credits

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/pixelboost-ai/billing-service/pkg/config"
	"github.com/pixelboost-ai/billing-service/pkg/db/models"
	"github.com/pixelboost-ai/billing-service/pkg/enums"
	pkgerrors "github.com/pixelboost-ai/billing-service/pkg/errors"
	"github.com/pixelboost-ai/billing-service/pkg/logger"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// maxBalanceRetries bounds the optimistic-concurrency loop. Each retry
// re-reads the profile and replays the whole transaction.
const maxBalanceRetries = 3

// Balances is the point-in-time view of both buckets.
type Balances struct {
	Subscription int `json:"subscriptionCredits"`
	Purchased    int `json:"purchasedCredits"`
}

// AdjustInput captures a single-bucket ledger movement.
type AdjustInput struct {
	UserID      uuid.UUID
	Amount      int
	Bucket      enums.CreditBucket
	Type        enums.CreditTransactionType
	Description string
	// ReferenceID, when set, makes the adjustment idempotent: a second
	// call with the same reference is a no-op.
	ReferenceID *string
}

// Service owns every mutation of credit balances. Balances change only
// through a ledger insert plus a guarded balance update in one transaction.
type Service interface {
	Adjust(ctx context.Context, input AdjustInput) (*models.CreditTransaction, error)
	Consume(ctx context.Context, userID uuid.UUID, amount int, description string, referenceID *string) (*Balances, error)
	// GrantSubscriptionCredits applies the per-period grant with the plan's
	// rollover cap. Returns the credited delta; zero means the reference
	// was already applied.
	GrantSubscriptionCredits(ctx context.Context, userID uuid.UUID, grant, rolloverCap int, referenceID string) (int, error)
	// ExpireSubscriptionCredits zeroes the subscription bucket. Returns the
	// number of credits removed.
	ExpireSubscriptionCredits(ctx context.Context, userID uuid.UUID, referenceID string) (int, error)
	SetBalance(ctx context.Context, userID uuid.UUID, bucket enums.CreditBucket, target int, description string) (*models.CreditTransaction, error)
	Balances(ctx context.Context, userID uuid.UUID) (*Balances, error)
	ListTransactions(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.CreditTransaction, int64, error)
}

type service struct {
	repo Repository
	tx   txRunner
	logg *logger.Logger
	cfg  config.CreditsConfig
}

// NewService wires the credit ledger service.
func NewService(repo Repository, tx txRunner, logg *logger.Logger, cfg config.CreditsConfig) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("credits repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	return &service{repo: repo, tx: tx, logg: logg, cfg: cfg}, nil
}

func (s *service) Adjust(ctx context.Context, input AdjustInput) (*models.CreditTransaction, error) {
	if input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	if input.Amount == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be non-zero")
	}
	if !input.Bucket.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid credit bucket")
	}
	if !input.Type.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid transaction type")
	}

	var txn *models.CreditTransaction
	err := s.withBalanceRetry(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		if input.ReferenceID != nil {
			applied, err := repo.ExistsByReference(ctx, input.UserID, *input.ReferenceID)
			if err != nil {
				return err
			}
			if applied {
				txn = nil
				return nil
			}
		}

		profile, err := repo.FindProfile(ctx, input.UserID)
		if err != nil {
			return err
		}
		if profile == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "profile not found")
		}

		current := bucketBalance(profile, input.Bucket)
		next := current + input.Amount
		if next < 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "adjustment would drive balance negative")
		}

		txn = &models.CreditTransaction{
			UserID:      input.UserID,
			Amount:      input.Amount,
			Type:        input.Type,
			Bucket:      input.Bucket,
			ReferenceID: input.ReferenceID,
			Description: input.Description,
		}
		if err := repo.Insert(ctx, txn); err != nil {
			return err
		}
		return s.applyBalance(ctx, repo, input.UserID, input.Bucket, current, next)
	})
	if err != nil {
		return nil, err
	}
	return txn, nil
}

func (s *service) Consume(ctx context.Context, userID uuid.UUID, amount int, description string, referenceID *string) (*Balances, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	if amount <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}

	var balances Balances
	err := s.withBalanceRetry(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		if referenceID != nil {
			applied, err := repo.ExistsByReference(ctx, userID, *referenceID)
			if err != nil {
				return err
			}
			if applied {
				profile, err := repo.FindProfile(ctx, userID)
				if err != nil {
					return err
				}
				if profile == nil {
					return pkgerrors.New(pkgerrors.CodeNotFound, "profile not found")
				}
				balances = Balances{
					Subscription: profile.SubscriptionCreditsBalance,
					Purchased:    profile.PurchasedCreditsBalance,
				}
				return nil
			}
		}

		profile, err := repo.FindProfile(ctx, userID)
		if err != nil {
			return err
		}
		if profile == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "profile not found")
		}

		total := profile.SubscriptionCreditsBalance + profile.PurchasedCreditsBalance
		if total < amount {
			return pkgerrors.New(pkgerrors.CodeInsufficientCredits, "insufficient credits")
		}

		// Subscription credits drain first; they expire, purchased do not.
		fromSubscription := min(amount, profile.SubscriptionCreditsBalance)
		fromPurchased := amount - fromSubscription

		if fromSubscription > 0 {
			txn := &models.CreditTransaction{
				UserID:      userID,
				Amount:      -fromSubscription,
				Type:        enums.CreditTransactionTypeUsage,
				Bucket:      enums.CreditBucketSubscription,
				ReferenceID: referenceID,
				Description: description,
			}
			if err := repo.Insert(ctx, txn); err != nil {
				return err
			}
			current := profile.SubscriptionCreditsBalance
			if err := s.applyBalance(ctx, repo, userID, enums.CreditBucketSubscription, current, current-fromSubscription); err != nil {
				return err
			}
		}
		if fromPurchased > 0 {
			txn := &models.CreditTransaction{
				UserID:      userID,
				Amount:      -fromPurchased,
				Type:        enums.CreditTransactionTypeUsage,
				Bucket:      enums.CreditBucketPurchased,
				ReferenceID: referenceID,
				Description: description,
			}
			if err := repo.Insert(ctx, txn); err != nil {
				return err
			}
			current := profile.PurchasedCreditsBalance
			if err := s.applyBalance(ctx, repo, userID, enums.CreditBucketPurchased, current, current-fromPurchased); err != nil {
				return err
			}
		}

		balances = Balances{
			Subscription: profile.SubscriptionCreditsBalance - fromSubscription,
			Purchased:    profile.PurchasedCreditsBalance - fromPurchased,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &balances, nil
}

func (s *service) GrantSubscriptionCredits(ctx context.Context, userID uuid.UUID, grant, rolloverCap int, referenceID string) (int, error) {
	if userID == uuid.Nil {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	if grant < 0 {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "grant must be non-negative")
	}
	if referenceID == "" {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "reference id is required")
	}

	granted := 0
	err := s.withBalanceRetry(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		applied, err := repo.ExistsByReference(ctx, userID, referenceID)
		if err != nil {
			return err
		}
		if applied {
			granted = 0
			return nil
		}

		profile, err := repo.FindProfile(ctx, userID)
		if err != nil {
			return err
		}
		if profile == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "profile not found")
		}

		current := profile.SubscriptionCreditsBalance
		next := current + grant
		overflow := 0
		if rolloverCap > 0 && next > rolloverCap {
			overflow = next - rolloverCap
			next = rolloverCap
		}
		granted = next - current
		if granted < 0 {
			granted = 0
		}

		refID := referenceID
		if overflow > 0 && s.cfg.LogOverflow {
			// Audit mode: record the full grant plus a negative overflow
			// entry so the dropped amount is visible. Net equals the
			// effective delta, keeping the ledger-sum invariant.
			full := &models.CreditTransaction{
				UserID:      userID,
				Amount:      grant,
				Type:        enums.CreditTransactionTypeSubscription,
				Bucket:      enums.CreditBucketSubscription,
				ReferenceID: &refID,
				Description: "subscription period credit grant",
			}
			if err := repo.Insert(ctx, full); err != nil {
				return err
			}
			trim := &models.CreditTransaction{
				UserID:      userID,
				Amount:      -overflow,
				Type:        enums.CreditTransactionTypeRolloverAdjustment,
				Bucket:      enums.CreditBucketSubscription,
				Description: "rollover cap overflow",
			}
			if err := repo.Insert(ctx, trim); err != nil {
				return err
			}
		} else {
			// A zero-delta grant still writes the ledger row so replays
			// and drift sweeps see the period as applied.
			txn := &models.CreditTransaction{
				UserID:      userID,
				Amount:      granted,
				Type:        enums.CreditTransactionTypeSubscription,
				Bucket:      enums.CreditBucketSubscription,
				ReferenceID: &refID,
				Description: "subscription period credit grant",
			}
			if err := repo.Insert(ctx, txn); err != nil {
				return err
			}
		}
		if granted == 0 {
			return nil
		}
		return s.applyBalance(ctx, repo, userID, enums.CreditBucketSubscription, current, next)
	})
	if err != nil {
		return 0, err
	}
	return granted, nil
}

func (s *service) ExpireSubscriptionCredits(ctx context.Context, userID uuid.UUID, referenceID string) (int, error) {
	if userID == uuid.Nil {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}

	expired := 0
	err := s.withBalanceRetry(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		if referenceID != "" {
			applied, err := repo.ExistsByReference(ctx, userID, referenceID)
			if err != nil {
				return err
			}
			if applied {
				expired = 0
				return nil
			}
		}

		profile, err := repo.FindProfile(ctx, userID)
		if err != nil {
			return err
		}
		if profile == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "profile not found")
		}

		current := profile.SubscriptionCreditsBalance
		if current == 0 {
			expired = 0
			return nil
		}

		var refID *string
		if referenceID != "" {
			refID = &referenceID
		}
		txn := &models.CreditTransaction{
			UserID:      userID,
			Amount:      -current,
			Type:        enums.CreditTransactionTypeRolloverAdjustment,
			Bucket:      enums.CreditBucketSubscription,
			ReferenceID: refID,
			Description: "subscription credits expired",
		}
		if err := repo.Insert(ctx, txn); err != nil {
			return err
		}
		if err := s.applyBalance(ctx, repo, userID, enums.CreditBucketSubscription, current, 0); err != nil {
			return err
		}
		expired = current
		return nil
	})
	if err != nil {
		return 0, err
	}
	return expired, nil
}

func (s *service) SetBalance(ctx context.Context, userID uuid.UUID, bucket enums.CreditBucket, target int, description string) (*models.CreditTransaction, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	if !bucket.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid credit bucket")
	}
	if target < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "target balance must be non-negative")
	}

	var txn *models.CreditTransaction
	err := s.withBalanceRetry(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		profile, err := repo.FindProfile(ctx, userID)
		if err != nil {
			return err
		}
		if profile == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "profile not found")
		}

		current := bucketBalance(profile, bucket)
		if current == target {
			txn = nil
			return nil
		}

		txn = &models.CreditTransaction{
			UserID:      userID,
			Amount:      target - current,
			Type:        enums.CreditTransactionTypeAdminAdjustment,
			Bucket:      bucket,
			Description: description,
		}
		if err := repo.Insert(ctx, txn); err != nil {
			return err
		}
		return s.applyBalance(ctx, repo, userID, bucket, current, target)
	})
	if err != nil {
		return nil, err
	}
	return txn, nil
}

func (s *service) Balances(ctx context.Context, userID uuid.UUID) (*Balances, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	profile, err := s.repo.FindProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	if profile == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "profile not found")
	}
	return &Balances{
		Subscription: profile.SubscriptionCreditsBalance,
		Purchased:    profile.PurchasedCreditsBalance,
	}, nil
}

func (s *service) ListTransactions(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.CreditTransaction, int64, error) {
	if userID == uuid.Nil {
		return nil, 0, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	return s.repo.ListByUser(ctx, userID, limit, offset)
}

// withBalanceRetry replays fn in fresh transactions until the guarded
// balance update lands or the retry budget runs out.
func (s *service) withBalanceRetry(ctx context.Context, fn func(tx *gorm.DB) error) error {
	var lastErr error
	for attempt := 0; attempt < maxBalanceRetries; attempt++ {
		lastErr = s.tx.WithTx(ctx, fn)
		if lastErr == nil {
			return nil
		}
		if !isBalanceConflict(lastErr) {
			return lastErr
		}
	}
	return lastErr
}

// errBalanceConflict signals a lost compare-and-set race; the enclosing
// transaction rolls back and the operation retries.
var errBalanceConflict = pkgerrors.New(pkgerrors.CodeStateConflict, "balance changed concurrently")

func isBalanceConflict(err error) bool {
	return pkgerrors.IsCode(err, pkgerrors.CodeStateConflict)
}

func (s *service) applyBalance(ctx context.Context, repo Repository, userID uuid.UUID, bucket enums.CreditBucket, current, next int) error {
	ok, err := repo.CompareAndSetBalance(ctx, userID, bucket, current, next)
	if err != nil {
		return err
	}
	if !ok {
		return errBalanceConflict
	}
	return nil
}

func bucketBalance(profile *models.Profile, bucket enums.CreditBucket) int {
	if bucket == enums.CreditBucketPurchased {
		return profile.PurchasedCreditsBalance
	}
	return profile.SubscriptionCreditsBalance
}
