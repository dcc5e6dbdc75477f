package webhooks

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/pixelboost-ai/billing-service/pkg/logger"
)

const testSigningSecret = "whsec_test"

type stubStripeService struct {
	skipped bool
	err     error
	events  []string
}

func (s *stubStripeService) ProcessEvent(_ context.Context, event *stripe.Event, _ []byte) (bool, error) {
	s.events = append(s.events, event.ID)
	return s.skipped, s.err
}

func signedRequest(t *testing.T, payload string) *http.Request {
	t.Helper()
	now := time.Now()
	sig := webhook.ComputeSignature(now, []byte(payload), testSigningSecret)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/stripe", strings.NewReader(payload))
	req.Header.Set("Stripe-Signature", fmt.Sprintf("t=%d,v1=%s", now.Unix(), hex.EncodeToString(sig)))
	return req
}

func TestStripeWebhookProcessesSignedEvent(t *testing.T) {
	svc := &stubStripeService{}
	handler := StripeWebhook(svc, testSigningSecret, logger.New(logger.Options{ServiceName: "test"}))

	payload := `{"id":"evt_1","type":"customer.subscription.updated","data":{"object":{}}}`
	rec := httptest.NewRecorder()
	handler(rec, signedRequest(t, payload))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"received":true`) {
		t.Fatalf("unexpected body %s", rec.Body.String())
	}
	if strings.Contains(rec.Body.String(), `"skipped"`) {
		t.Fatalf("skipped should be omitted: %s", rec.Body.String())
	}
	if len(svc.events) != 1 || svc.events[0] != "evt_1" {
		t.Fatalf("unexpected dispatches %v", svc.events)
	}
}

func TestStripeWebhookReportsSkippedDuplicate(t *testing.T) {
	svc := &stubStripeService{skipped: true}
	handler := StripeWebhook(svc, testSigningSecret, nil)

	payload := `{"id":"evt_1","type":"customer.subscription.updated","data":{"object":{}}}`
	rec := httptest.NewRecorder()
	handler(rec, signedRequest(t, payload))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"skipped":true`) {
		t.Fatalf("unexpected body %s", rec.Body.String())
	}
}

func TestStripeWebhookRejectsBadSignature(t *testing.T) {
	svc := &stubStripeService{}
	handler := StripeWebhook(svc, testSigningSecret, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/stripe", strings.NewReader(`{"id":"evt_1"}`))
	req.Header.Set("Stripe-Signature", "t=1,v1=deadbeef")
	rec := httptest.NewRecorder()
	handler(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if len(svc.events) != 0 {
		t.Fatalf("service must not run on bad signature")
	}
}

func TestStripeWebhookAcknowledgesHandlerFailure(t *testing.T) {
	svc := &stubStripeService{err: errors.New("boom")}
	handler := StripeWebhook(svc, testSigningSecret, logger.New(logger.Options{ServiceName: "test"}))

	payload := `{"id":"evt_1","type":"customer.subscription.updated","data":{"object":{}}}`
	rec := httptest.NewRecorder()
	handler(rec, signedRequest(t, payload))

	if rec.Code != http.StatusOK {
		t.Fatalf("claimed events are acknowledged even on failure, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"received":true`) {
		t.Fatalf("unexpected body %s", rec.Body.String())
	}
}
