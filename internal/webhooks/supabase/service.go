package supabasewebhook

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/pixelboost-ai/billing-service/internal/billing"
	"github.com/pixelboost-ai/billing-service/internal/credits"
	"github.com/pixelboost-ai/billing-service/internal/profiles"
	"github.com/pixelboost-ai/billing-service/pkg/db"
	"github.com/pixelboost-ai/billing-service/pkg/db/models"
	"github.com/pixelboost-ai/billing-service/pkg/enums"
	pkgerrors "github.com/pixelboost-ai/billing-service/pkg/errors"
	"github.com/pixelboost-ai/billing-service/pkg/logger"
)

// UserCreatedInput is the subset of the Supabase auth INSERT payload the
// provisioning flow needs.
type UserCreatedInput struct {
	ID    uuid.UUID
	Email string
}

// Service provisions billing state for new Supabase users: a free-tier
// profile plus the signup credit grant.
type Service struct {
	profileRepo profiles.Repository
	credits     credits.Service
	catalog     *billing.Catalog
	logg        *logger.Logger
}

// NewService wires the provisioning service.
func NewService(profileRepo profiles.Repository, creditsSvc credits.Service, catalog *billing.Catalog, logg *logger.Logger) (*Service, error) {
	if profileRepo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "profile repo required")
	}
	if creditsSvc == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "credits service required")
	}
	if catalog == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "plan catalog required")
	}
	return &Service{
		profileRepo: profileRepo,
		credits:     creditsSvc,
		catalog:     catalog,
		logg:        logg,
	}, nil
}

// HandleUserCreated creates the profile and applies the free plan's signup
// grant. Replays short-circuit on the existing profile; the grant reference
// makes the credit side idempotent on its own.
func (s *Service) HandleUserCreated(ctx context.Context, input UserCreatedInput) (skipped bool, err error) {
	if input.ID == uuid.Nil {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	email := strings.TrimSpace(strings.ToLower(input.Email))
	if email == "" {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "email is required")
	}

	existing, err := s.profileRepo.FindByID(ctx, input.ID)
	if err != nil {
		return false, err
	}
	if existing != nil {
		return true, nil
	}

	def := s.catalog.Default()
	if def == nil {
		return false, pkgerrors.New(pkgerrors.CodeInternal, "no default plan configured")
	}

	profile := &models.Profile{
		ID:                 input.ID,
		Email:              email,
		SubscriptionStatus: enums.SubscriptionStatusNone,
		SubscriptionTier:   def.Name,
		Role:               enums.ProfileRoleUser,
	}
	if err := s.profileRepo.Create(ctx, profile); err != nil {
		// A concurrent replay won the insert; same outcome.
		if db.IsUniqueViolation(err, "") {
			return true, nil
		}
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create profile")
	}

	if def.MonthlyCredits > 0 {
		refID := fmt.Sprintf("signup:%s", input.ID)
		_, err := s.credits.Adjust(ctx, credits.AdjustInput{
			UserID:      input.ID,
			Amount:      def.MonthlyCredits,
			Bucket:      enums.CreditBucketSubscription,
			Type:        enums.CreditTransactionTypeBonus,
			Description: "signup credit grant",
			ReferenceID: &refID,
		})
		if err != nil {
			return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "apply signup credit grant")
		}
	}

	if s.logg != nil {
		s.logg.Info(s.logg.WithUserID(ctx, input.ID.String()), "provisioned billing profile")
	}
	return false, nil
}
