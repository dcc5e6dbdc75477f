package profiles

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/pixelboost-ai/billing-service/pkg/db/models"
	"github.com/pixelboost-ai/billing-service/pkg/enums"
)

func setupProfilesTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	schema := `
CREATE TABLE IF NOT EXISTS profiles (
  id TEXT PRIMARY KEY,
  email TEXT NOT NULL UNIQUE,
  stripe_customer_id TEXT,
  subscription_status TEXT NOT NULL DEFAULT 'none',
  subscription_tier TEXT NOT NULL DEFAULT 'Free',
  subscription_credits_balance INTEGER NOT NULL DEFAULT 0,
  purchased_credits_balance INTEGER NOT NULL DEFAULT 0,
  role TEXT NOT NULL DEFAULT 'user',
  created_at DATETIME,
  updated_at DATETIME
);`
	require.NoError(t, db.Exec(schema).Error)
	return db
}

func seedProfile(t *testing.T, repo Repository) *models.Profile {
	t.Helper()
	profile := &models.Profile{
		ID:                 uuid.New(),
		Email:              uuid.NewString() + "@example.com",
		SubscriptionStatus: enums.SubscriptionStatusNone,
		SubscriptionTier:   "Free",
		Role:               enums.ProfileRoleUser,
	}
	require.NoError(t, repo.Create(context.Background(), profile))
	return profile
}

func TestFindByIDReturnsNilOnMissing(t *testing.T) {
	repo := NewRepository(setupProfilesTestDB(t))

	found, err := repo.FindByID(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestSetBillingStateUpdatesStatusAndTier(t *testing.T) {
	repo := NewRepository(setupProfilesTestDB(t))
	ctx := context.Background()
	profile := seedProfile(t, repo)

	require.NoError(t, repo.SetBillingState(ctx, profile.ID, enums.SubscriptionStatusActive, "Pro"))

	found, err := repo.FindByID(ctx, profile.ID)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, enums.SubscriptionStatusActive, found.SubscriptionStatus)
	assert.Equal(t, "Pro", found.SubscriptionTier)
}

func TestSetStripeCustomerIDIsWriteOnce(t *testing.T) {
	repo := NewRepository(setupProfilesTestDB(t))
	ctx := context.Background()
	profile := seedProfile(t, repo)

	require.NoError(t, repo.SetStripeCustomerID(ctx, profile.ID, "cus_first"))
	require.NoError(t, repo.SetStripeCustomerID(ctx, profile.ID, "cus_second"))

	found, err := repo.FindByID(ctx, profile.ID)
	require.NoError(t, err)
	require.NotNil(t, found)
	require.NotNil(t, found.StripeCustomerID)
	assert.Equal(t, "cus_first", *found.StripeCustomerID, "an existing customer id must not be overwritten")
}

func TestFindByStripeCustomerID(t *testing.T) {
	repo := NewRepository(setupProfilesTestDB(t))
	ctx := context.Background()
	profile := seedProfile(t, repo)
	require.NoError(t, repo.SetStripeCustomerID(ctx, profile.ID, "cus_lookup_"+profile.ID.String()))

	found, err := repo.FindByStripeCustomerID(ctx, "cus_lookup_"+profile.ID.String())
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, profile.ID, found.ID)

	missing, err := repo.FindByStripeCustomerID(ctx, "cus_nobody")
	require.NoError(t, err)
	assert.Nil(t, missing)

	blank, err := repo.FindByStripeCustomerID(ctx, "  ")
	require.NoError(t, err)
	assert.Nil(t, blank)
}
