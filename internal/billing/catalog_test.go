package billing

import (
	"context"
	"errors"
	"testing"

	"github.com/pixelboost-ai/billing-service/pkg/db/models"
)

// stubPlanRepo satisfies Repository for catalog loading; only ListPlans is
// exercised, the embedded interface panics on anything else.
type stubPlanRepo struct {
	Repository
	plans []models.Plan
	err   error
}

func (s stubPlanRepo) ListPlans(ctx context.Context, activeOnly bool) ([]models.Plan, error) {
	return s.plans, s.err
}

func testPlans() []models.Plan {
	return []models.Plan{
		{ID: "free", Name: "Free", StripePriceID: "price_free", MonthlyCredits: 10, RolloverCap: 20, IsDefault: true, Active: true},
		{ID: "basic", Name: "Basic", StripePriceID: "price_basic", MonthlyCredits: 100, RolloverCap: 200, Active: true},
		{ID: "pro", Name: "Pro", StripePriceID: "price_pro", MonthlyCredits: 500, RolloverCap: 1000, Active: true},
	}
}

func TestCatalogLookups(t *testing.T) {
	catalog := NewCatalog(testPlans())

	plan := catalog.ByPriceID("price_basic")
	if plan == nil || plan.Name != "Basic" {
		t.Fatalf("ByPriceID(price_basic) = %+v, want Basic", plan)
	}
	if got := catalog.ByPriceID("price_unknown"); got != nil {
		t.Fatalf("unknown price resolved to %+v", got)
	}
	if got := catalog.ByPriceID(""); got != nil {
		t.Fatalf("empty price resolved to %+v", got)
	}

	plan = catalog.ByName("  PRO ")
	if plan == nil || plan.ID != "pro" {
		t.Fatalf("ByName should be case and whitespace insensitive, got %+v", plan)
	}
	if got := catalog.ByName("enterprise"); got != nil {
		t.Fatalf("unknown name resolved to %+v", got)
	}

	def := catalog.Default()
	if def == nil || def.ID != "free" {
		t.Fatalf("Default() = %+v, want free", def)
	}
}

func TestCatalogReturnsCopies(t *testing.T) {
	catalog := NewCatalog(testPlans())

	first := catalog.ByPriceID("price_pro")
	first.MonthlyCredits = 0

	second := catalog.ByPriceID("price_pro")
	if second.MonthlyCredits != 500 {
		t.Fatalf("mutating a lookup result leaked into the catalog: %+v", second)
	}
}

func TestLoadCatalogRequiresDefaultPlan(t *testing.T) {
	plans := testPlans()
	plans[0].IsDefault = false

	_, err := LoadCatalog(context.Background(), stubPlanRepo{plans: plans})
	if err == nil {
		t.Fatal("expected error when no default plan exists")
	}
}

func TestLoadCatalogWrapsRepositoryErrors(t *testing.T) {
	_, err := LoadCatalog(context.Background(), stubPlanRepo{err: errors.New("connection refused")})
	if err == nil {
		t.Fatal("expected error to propagate")
	}
}

func TestLoadCatalog(t *testing.T) {
	catalog, err := LoadCatalog(context.Background(), stubPlanRepo{plans: testPlans()})
	if err != nil {
		t.Fatalf("LoadCatalog: %v", err)
	}
	if catalog.Default() == nil || catalog.Default().Name != "Free" {
		t.Fatalf("default plan = %+v, want Free", catalog.Default())
	}
	if catalog.ByPriceID("price_pro") == nil {
		t.Fatal("loaded catalog missing pro plan")
	}
}
