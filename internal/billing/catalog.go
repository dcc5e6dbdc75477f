package billing

import (
	"context"
	"strings"

	pkgerrors "github.com/pixelboost-ai/billing-service/pkg/errors"

	"github.com/pixelboost-ai/billing-service/pkg/db/models"
)

// Catalog is an explicit, read-only view of the plan table, constructed once
// at process start and passed by reference to whatever needs tier/price
// mapping. No package-level singleton.
type Catalog struct {
	byPriceID map[string]models.Plan
	byName    map[string]models.Plan
	def       *models.Plan
}

// LoadCatalog reads all active plans and builds the lookup maps.
func LoadCatalog(ctx context.Context, repo Repository) (*Catalog, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "billing repository required")
	}
	plans, err := repo.ListPlans(ctx, true)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load plan catalog")
	}
	catalog := &Catalog{
		byPriceID: make(map[string]models.Plan, len(plans)),
		byName:    make(map[string]models.Plan, len(plans)),
	}
	for i := range plans {
		plan := plans[i]
		catalog.byPriceID[plan.StripePriceID] = plan
		catalog.byName[strings.ToLower(plan.Name)] = plan
		if plan.IsDefault && catalog.def == nil {
			catalog.def = &plan
		}
	}
	if catalog.def == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "no default plan configured")
	}
	return catalog, nil
}

// NewCatalog builds a catalog from in-memory plans. Used by tests and by
// callers that already hold the plan rows.
func NewCatalog(plans []models.Plan) *Catalog {
	catalog := &Catalog{
		byPriceID: make(map[string]models.Plan, len(plans)),
		byName:    make(map[string]models.Plan, len(plans)),
	}
	for i := range plans {
		plan := plans[i]
		catalog.byPriceID[plan.StripePriceID] = plan
		catalog.byName[strings.ToLower(plan.Name)] = plan
		if plan.IsDefault && catalog.def == nil {
			catalog.def = &plan
		}
	}
	return catalog
}

// ByPriceID resolves a plan from a Stripe price id. Returns nil when the
// price is unknown; callers keep the existing tier in that case.
func (c *Catalog) ByPriceID(priceID string) *models.Plan {
	if c == nil || strings.TrimSpace(priceID) == "" {
		return nil
	}
	if plan, ok := c.byPriceID[priceID]; ok {
		return &plan
	}
	return nil
}

// ByName resolves a plan by tier name (case-insensitive).
func (c *Catalog) ByName(name string) *models.Plan {
	if c == nil {
		return nil
	}
	if plan, ok := c.byName[strings.ToLower(strings.TrimSpace(name))]; ok {
		return &plan
	}
	return nil
}

// Default returns the fallback plan for new and canceled profiles.
func (c *Catalog) Default() *models.Plan {
	if c == nil {
		return nil
	}
	return c.def
}
