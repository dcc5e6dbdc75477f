package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pixelboost-ai/billing-service/api/controllers"
	webhookcontrollers "github.com/pixelboost-ai/billing-service/api/controllers/webhooks"
	"github.com/pixelboost-ai/billing-service/api/middleware"
	"github.com/pixelboost-ai/billing-service/internal/credits"
	"github.com/pixelboost-ai/billing-service/internal/events"
	"github.com/pixelboost-ai/billing-service/internal/profiles"
	"github.com/pixelboost-ai/billing-service/internal/reconcile"
	"github.com/pixelboost-ai/billing-service/pkg/config"
	"github.com/pixelboost-ai/billing-service/pkg/logger"
	pkgredis "github.com/pixelboost-ai/billing-service/pkg/redis"
)

// Deps carries everything the router wires into handlers.
type Deps struct {
	Config *config.Config
	Logger *logger.Logger
	DB     controllers.Pinger
	Redis  *pkgredis.Client

	ProfileRepo profiles.Repository
	EventRepo   events.Repository
	RunRepo     reconcile.RunRepository
	Credits     credits.Service

	StripeWebhooks   webhookcontrollers.StripeWebhookService
	SupabaseWebhooks webhookcontrollers.SupabaseWebhookService
	Replayer         controllers.EventReplayer

	Registry *reconcile.Registry
	Runner   *reconcile.Runner

	PromRegistry *prometheus.Registry
}

func NewRouter(deps Deps) http.Handler {
	cfg := deps.Config
	logg := deps.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, deps.DB, deps.Redis, logg))
	})

	if deps.PromRegistry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(deps.PromRegistry, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/stripe", webhookcontrollers.StripeWebhook(deps.StripeWebhooks, cfg.Stripe.WebhookSecret, logg))
		r.Post("/supabase", webhookcontrollers.SupabaseWebhook(deps.SupabaseWebhooks, cfg.Supabase.HookSecret, logg))
	})

	r.Route("/api/v1/cron", func(r chi.Router) {
		r.Use(middleware.CronSecret(cfg.Cron.Secret, logg))
		r.Post("/{jobName}", controllers.CronTrigger(deps.Registry, deps.Runner, logg))
	})

	r.Route("/api/v1/credits", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.Supabase, deps.ProfileRepo, logg))
		r.Get("/balance", controllers.CreditsBalance(deps.ProfileRepo, logg))
		r.Get("/transactions", controllers.CreditsTransactions(deps.Credits, logg))
	})

	r.Route("/api/v1/admin", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.Supabase, deps.ProfileRepo, logg))
		r.Use(middleware.RequireAdmin(logg))
		r.Use(middleware.Idempotency(deps.Redis, logg))

		r.Post("/credits/adjust", controllers.AdminAdjustCredits(deps.Credits, logg))
		r.Post("/credits/set-balance", controllers.AdminSetBalance(deps.Credits, logg))
		r.Get("/users/{userID}/credits", controllers.AdminUserCredits(deps.ProfileRepo, deps.Credits, logg))
		r.Get("/sync-runs", controllers.AdminSyncRuns(deps.RunRepo, logg))
		r.Get("/webhook-events", controllers.AdminWebhookEvents(deps.EventRepo, logg))
		r.Post("/webhook-events/{eventID}/replay", controllers.AdminReplayWebhookEvent(deps.EventRepo, deps.Replayer, logg))
	})

	return r
}
