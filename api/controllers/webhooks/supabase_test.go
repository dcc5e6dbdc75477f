package webhooks

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	supabasewebhook "github.com/pixelboost-ai/billing-service/internal/webhooks/supabase"
)

type stubSupabaseService struct {
	skipped bool
	inputs  []supabasewebhook.UserCreatedInput
}

func (s *stubSupabaseService) HandleUserCreated(_ context.Context, input supabasewebhook.UserCreatedInput) (bool, error) {
	s.inputs = append(s.inputs, input)
	return s.skipped, nil
}

func TestSupabaseWebhookProvisionsUser(t *testing.T) {
	svc := &stubSupabaseService{}
	handler := SupabaseWebhook(svc, "hook-secret", nil)

	userID := uuid.New()
	body := `{"type":"INSERT","table":"users","schema":"auth","record":{"id":"` + userID.String() + `","email":"New@Example.com"}}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/supabase", strings.NewReader(body))
	req.Header.Set("x-supabase-signature", "hook-secret")
	rec := httptest.NewRecorder()
	handler(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(svc.inputs) != 1 {
		t.Fatalf("expected one provisioning call, got %d", len(svc.inputs))
	}
	if svc.inputs[0].ID != userID {
		t.Fatalf("unexpected user id %s", svc.inputs[0].ID)
	}
}

func TestSupabaseWebhookRejectsBadSecret(t *testing.T) {
	svc := &stubSupabaseService{}
	handler := SupabaseWebhook(svc, "hook-secret", nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/supabase", strings.NewReader(`{}`))
	req.Header.Set("x-supabase-signature", "wrong")
	rec := httptest.NewRecorder()
	handler(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if len(svc.inputs) != 0 {
		t.Fatal("service must not run on bad secret")
	}
}

func TestSupabaseWebhookIgnoresOtherChanges(t *testing.T) {
	svc := &stubSupabaseService{}
	handler := SupabaseWebhook(svc, "hook-secret", nil)

	body := `{"type":"UPDATE","table":"users","record":{"id":"` + uuid.NewString() + `"}}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/supabase", strings.NewReader(body))
	req.Header.Set("x-supabase-signature", "hook-secret")
	rec := httptest.NewRecorder()
	handler(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"skipped":true`) {
		t.Fatalf("unexpected body %s", rec.Body.String())
	}
	if len(svc.inputs) != 0 {
		t.Fatal("service must not run for non-insert events")
	}
}
