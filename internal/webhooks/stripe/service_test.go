package stripewebhook

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82"
	"gorm.io/gorm"

	"github.com/pixelboost-ai/billing-service/internal/events"
	"github.com/pixelboost-ai/billing-service/pkg/db/models"
	"github.com/pixelboost-ai/billing-service/pkg/enums"
)

type stubEventRepo struct {
	records map[string]*models.WebhookEvent
}

func newStubEventRepo() *stubEventRepo {
	return &stubEventRepo{records: map[string]*models.WebhookEvent{}}
}

func (r *stubEventRepo) WithTx(tx *gorm.DB) events.Repository { return r }

func (r *stubEventRepo) Claim(ctx context.Context, event *models.WebhookEvent) (bool, error) {
	if _, ok := r.records[event.ID]; ok {
		return false, nil
	}
	event.Status = enums.WebhookEventStatusProcessing
	copied := *event
	r.records[event.ID] = &copied
	return true, nil
}

func (r *stubEventRepo) MarkCompleted(ctx context.Context, eventID string) error {
	if record, ok := r.records[eventID]; ok {
		record.Status = enums.WebhookEventStatusCompleted
	}
	return nil
}

func (r *stubEventRepo) MarkFailed(ctx context.Context, eventID string, cause error) error {
	if record, ok := r.records[eventID]; ok {
		record.Status = enums.WebhookEventStatusFailed
		record.Attempts++
		if cause != nil {
			msg := cause.Error()
			record.LastError = &msg
		}
	}
	return nil
}

func (r *stubEventRepo) FindByID(ctx context.Context, eventID string) (*models.WebhookEvent, error) {
	if record, ok := r.records[eventID]; ok {
		copied := *record
		return &copied, nil
	}
	return nil, nil
}

func (r *stubEventRepo) ListForRecovery(ctx context.Context, staleBefore time.Time, maxAttempts, limit int) ([]models.WebhookEvent, error) {
	return nil, nil
}

func (r *stubEventRepo) ListRecent(ctx context.Context, status *enums.WebhookEventStatus, limit int) ([]models.WebhookEvent, error) {
	return nil, nil
}

type syncCall struct {
	method string
	subID  string
	userID uuid.UUID
}

type stubSynchronizer struct {
	users map[string]uuid.UUID
	calls []syncCall
}

func newStubSynchronizer() *stubSynchronizer {
	return &stubSynchronizer{users: map[string]uuid.UUID{}}
}

func (s *stubSynchronizer) SyncSubscriptionFromStripe(ctx context.Context, userID uuid.UUID, sub *stripe.Subscription) (bool, error) {
	s.calls = append(s.calls, syncCall{method: "sync", subID: sub.ID, userID: userID})
	return true, nil
}

func (s *stubSynchronizer) MarkSubscriptionCanceled(ctx context.Context, userID uuid.UUID, subID string) (bool, error) {
	s.calls = append(s.calls, syncCall{method: "cancel", subID: subID, userID: userID})
	return true, nil
}

func (s *stubSynchronizer) UpdateSubscriptionPeriod(ctx context.Context, subID string, sub *stripe.Subscription) (bool, error) {
	s.calls = append(s.calls, syncCall{method: "period", subID: subID})
	return true, nil
}

func (s *stubSynchronizer) GetUserIDFromCustomerID(ctx context.Context, customerID string) (uuid.UUID, error) {
	return s.users[customerID], nil
}

func (s *stubSynchronizer) RefreshFromProvider(ctx context.Context, sub *models.Subscription) (bool, error) {
	s.calls = append(s.calls, syncCall{method: "refresh", subID: sub.StripeSubscriptionID})
	return false, nil
}

type stubStripeClient struct {
	sub *stripe.Subscription
	err error
}

func (c *stubStripeClient) Get(ctx context.Context, id string, params *stripe.SubscriptionParams) (*stripe.Subscription, error) {
	if c.err != nil {
		return nil, c.err
	}
	return c.sub, nil
}

type webhookFixture struct {
	svc    *Service
	repo   *stubEventRepo
	sync   *stubSynchronizer
	stripe *stubStripeClient
}

func newWebhookFixture(t *testing.T) *webhookFixture {
	t.Helper()
	f := &webhookFixture{
		repo:   newStubEventRepo(),
		sync:   newStubSynchronizer(),
		stripe: &stubStripeClient{},
	}
	svc, err := NewService(ServiceParams{
		EventRepo:    f.repo,
		Synchronizer: f.sync,
		StripeClient: f.stripe,
	})
	require.NoError(t, err)
	f.svc = svc
	return f
}

func subscriptionEvent(t *testing.T, id string, eventType stripe.EventType, sub map[string]any) (*stripe.Event, []byte) {
	t.Helper()
	raw, err := json.Marshal(sub)
	require.NoError(t, err)
	event := &stripe.Event{
		ID:   id,
		Type: eventType,
		Data: &stripe.EventData{Raw: raw},
	}
	payload, err := json.Marshal(map[string]any{
		"id":   id,
		"type": eventType,
		"data": map[string]any{"object": sub},
	})
	require.NoError(t, err)
	return event, payload
}

func TestProcessEventSyncsSubscriptionForKnownCustomer(t *testing.T) {
	f := newWebhookFixture(t)
	userID := uuid.New()
	f.sync.users["cus_123"] = userID

	event, payload := subscriptionEvent(t, "evt_1", stripe.EventTypeCustomerSubscriptionCreated,
		map[string]any{"id": "sub_1", "customer": "cus_123"})

	skipped, err := f.svc.ProcessEvent(context.Background(), event, payload)
	require.NoError(t, err)
	assert.False(t, skipped)

	require.Len(t, f.sync.calls, 1)
	assert.Equal(t, "sync", f.sync.calls[0].method)
	assert.Equal(t, "sub_1", f.sync.calls[0].subID)
	assert.Equal(t, userID, f.sync.calls[0].userID)
	assert.Equal(t, enums.WebhookEventStatusCompleted, f.repo.records["evt_1"].Status)
}

func TestProcessEventDuplicateIsSkipped(t *testing.T) {
	f := newWebhookFixture(t)
	f.sync.users["cus_123"] = uuid.New()

	event, payload := subscriptionEvent(t, "evt_dup_1", stripe.EventTypeCustomerSubscriptionCreated,
		map[string]any{"id": "sub_1", "customer": "cus_123"})

	skipped, err := f.svc.ProcessEvent(context.Background(), event, payload)
	require.NoError(t, err)
	assert.False(t, skipped)

	skipped, err = f.svc.ProcessEvent(context.Background(), event, payload)
	require.NoError(t, err)
	assert.True(t, skipped)

	assert.Len(t, f.sync.calls, 1)
}

func TestProcessEventOrphanCustomerIsSuccess(t *testing.T) {
	f := newWebhookFixture(t)

	event, payload := subscriptionEvent(t, "evt_orphan", stripe.EventTypeCustomerSubscriptionCreated,
		map[string]any{"id": "sub_1", "customer": "cus_unknown"})

	skipped, err := f.svc.ProcessEvent(context.Background(), event, payload)
	require.NoError(t, err)
	assert.False(t, skipped)
	assert.Empty(t, f.sync.calls)
	assert.Equal(t, enums.WebhookEventStatusCompleted, f.repo.records["evt_orphan"].Status)
}

func TestProcessEventNullDataNeverStuckProcessing(t *testing.T) {
	f := newWebhookFixture(t)

	event := &stripe.Event{
		ID:   "evt_x",
		Type: stripe.EventTypeCustomerSubscriptionCreated,
		Data: nil,
	}
	payload := []byte(`{"id": "evt_x", "type": "customer.subscription.created", "data": null}`)

	skipped, err := f.svc.ProcessEvent(context.Background(), event, payload)
	require.Error(t, err)
	assert.False(t, skipped)
	assert.Equal(t, enums.WebhookEventStatusFailed, f.repo.records["evt_x"].Status)
	assert.Equal(t, 1, f.repo.records["evt_x"].Attempts)
}

func TestProcessEventUnknownTypeAcknowledged(t *testing.T) {
	f := newWebhookFixture(t)

	event, payload := subscriptionEvent(t, "evt_other", "charge.refunded",
		map[string]any{"id": "ch_1"})

	skipped, err := f.svc.ProcessEvent(context.Background(), event, payload)
	require.NoError(t, err)
	assert.False(t, skipped)
	assert.Empty(t, f.sync.calls)
	assert.Equal(t, enums.WebhookEventStatusCompleted, f.repo.records["evt_other"].Status)
}

func TestProcessEventDeletedMarksCanceled(t *testing.T) {
	f := newWebhookFixture(t)
	userID := uuid.New()
	f.sync.users["cus_123"] = userID

	event, payload := subscriptionEvent(t, "evt_del", stripe.EventTypeCustomerSubscriptionDeleted,
		map[string]any{"id": "sub_1", "customer": "cus_123"})

	_, err := f.svc.ProcessEvent(context.Background(), event, payload)
	require.NoError(t, err)

	require.Len(t, f.sync.calls, 1)
	assert.Equal(t, "cancel", f.sync.calls[0].method)
	assert.Equal(t, userID, f.sync.calls[0].userID)
}

func TestProcessEventInvoicePaidRefreshesPeriod(t *testing.T) {
	f := newWebhookFixture(t)
	f.stripe.sub = &stripe.Subscription{
		ID:       "sub_1",
		Status:   stripe.SubscriptionStatusActive,
		Customer: &stripe.Customer{ID: "cus_123"},
	}

	raw, err := json.Marshal(map[string]any{"id": "in_1", "subscription": "sub_1"})
	require.NoError(t, err)
	event := &stripe.Event{
		ID:   "evt_inv",
		Type: stripe.EventTypeInvoicePaid,
		Data: &stripe.EventData{Raw: raw, Object: map[string]any{"subscription": "sub_1"}},
	}

	_, err = f.svc.ProcessEvent(context.Background(), event, []byte(`{}`))
	require.NoError(t, err)

	require.Len(t, f.sync.calls, 1)
	assert.Equal(t, "period", f.sync.calls[0].method)
	assert.Equal(t, "sub_1", f.sync.calls[0].subID)
}

func TestReplayRerunsStoredPayload(t *testing.T) {
	f := newWebhookFixture(t)
	userID := uuid.New()
	f.sync.users["cus_123"] = userID

	event, payload := subscriptionEvent(t, "evt_retry", stripe.EventTypeCustomerSubscriptionCreated,
		map[string]any{"id": "sub_1", "customer": "cus_123"})
	_ = event

	record := &models.WebhookEvent{
		ID:      "evt_retry",
		Type:    string(stripe.EventTypeCustomerSubscriptionCreated),
		Status:  enums.WebhookEventStatusFailed,
		Payload: payload,
	}
	f.repo.records["evt_retry"] = record

	require.NoError(t, f.svc.Replay(context.Background(), record))
	require.Len(t, f.sync.calls, 1)
	assert.Equal(t, "sync", f.sync.calls[0].method)
	assert.Equal(t, enums.WebhookEventStatusCompleted, f.repo.records["evt_retry"].Status)
}
