package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/pixelboost-ai/billing-service/pkg/db/models"
	"github.com/pixelboost-ai/billing-service/pkg/enums"
)

func setupEventsTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	schema := `
CREATE TABLE IF NOT EXISTS webhook_events (
  id TEXT PRIMARY KEY,
  type TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'processing',
  attempts INTEGER NOT NULL DEFAULT 0,
  last_error TEXT,
  payload TEXT,
  created_at DATETIME,
  updated_at DATETIME
);`
	require.NoError(t, db.Exec(schema).Error)
	return db
}

func newEvent(id string) *models.WebhookEvent {
	return &models.WebhookEvent{
		ID:      id,
		Type:    "customer.subscription.updated",
		Payload: json.RawMessage(`{"id":"` + id + `"}`),
	}
}

func TestClaimIsFirstWriterWins(t *testing.T) {
	db := setupEventsTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	id := "evt_" + uuid.NewString()

	claimed, err := repo.Claim(ctx, newEvent(id))
	require.NoError(t, err)
	assert.True(t, claimed)

	again, err := repo.Claim(ctx, newEvent(id))
	require.NoError(t, err)
	assert.False(t, again, "second delivery must not claim the event")

	record, err := repo.FindByID(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, enums.WebhookEventStatusProcessing, record.Status)
}

func TestClaimRejectsEmptyID(t *testing.T) {
	db := setupEventsTestDB(t)
	repo := NewRepository(db)

	_, err := repo.Claim(context.Background(), newEvent(" "))
	require.Error(t, err)
}

func TestMarkFailedIncrementsAttempts(t *testing.T) {
	db := setupEventsTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	id := "evt_" + uuid.NewString()

	_, err := repo.Claim(ctx, newEvent(id))
	require.NoError(t, err)

	require.NoError(t, repo.MarkFailed(ctx, id, errors.New("boom")))
	require.NoError(t, repo.MarkFailed(ctx, id, errors.New("boom again")))

	record, err := repo.FindByID(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, enums.WebhookEventStatusFailed, record.Status)
	assert.Equal(t, 2, record.Attempts)
	require.NotNil(t, record.LastError)
	assert.Equal(t, "boom again", *record.LastError)
}

func TestListForRecoveryPicksFailedAndStaleProcessing(t *testing.T) {
	db := setupEventsTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	failed := "evt_" + uuid.NewString()
	stale := "evt_" + uuid.NewString()
	fresh := "evt_" + uuid.NewString()
	exhausted := "evt_" + uuid.NewString()

	for _, id := range []string{failed, stale, fresh, exhausted} {
		_, err := repo.Claim(ctx, newEvent(id))
		require.NoError(t, err)
	}

	require.NoError(t, repo.MarkFailed(ctx, failed, errors.New("boom")))

	staleTime := time.Now().UTC().Add(-2 * time.Hour)
	require.NoError(t, db.Model(&models.WebhookEvent{}).
		Where("id = ?", stale).
		Update("updated_at", staleTime).Error)
	require.NoError(t, db.Model(&models.WebhookEvent{}).
		Where("id = ?", exhausted).
		Updates(map[string]any{"status": "failed", "attempts": 5, "updated_at": staleTime}).Error)

	records, err := repo.ListForRecovery(ctx, time.Now().UTC().Add(-30*time.Minute), 5, 100)
	require.NoError(t, err)

	ids := map[string]bool{}
	for _, record := range records {
		ids[record.ID] = true
	}
	assert.True(t, ids[failed], "failed event should be recovered")
	assert.True(t, ids[stale], "stale processing event should be recovered")
	assert.False(t, ids[fresh], "fresh processing event must be left alone")
	assert.False(t, ids[exhausted], "events past max attempts are abandoned")
}

func TestListRecentFiltersByStatus(t *testing.T) {
	db := setupEventsTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	done := "evt_" + uuid.NewString()
	open := "evt_" + uuid.NewString()
	for _, id := range []string{done, open} {
		_, err := repo.Claim(ctx, newEvent(id))
		require.NoError(t, err)
	}
	require.NoError(t, repo.MarkCompleted(ctx, done))

	status := enums.WebhookEventStatusCompleted
	records, err := repo.ListRecent(ctx, &status, 10)
	require.NoError(t, err)

	for _, record := range records {
		assert.Equal(t, enums.WebhookEventStatusCompleted, record.Status)
	}
	found := false
	for _, record := range records {
		if record.ID == done {
			found = true
		}
	}
	assert.True(t, found)
}
