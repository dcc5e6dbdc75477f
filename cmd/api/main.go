package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/pixelboost-ai/billing-service/api/routes"
	"github.com/pixelboost-ai/billing-service/internal/billing"
	"github.com/pixelboost-ai/billing-service/internal/credits"
	"github.com/pixelboost-ai/billing-service/internal/events"
	"github.com/pixelboost-ai/billing-service/internal/profiles"
	"github.com/pixelboost-ai/billing-service/internal/reconcile"
	syncsvc "github.com/pixelboost-ai/billing-service/internal/sync"
	stripewebhook "github.com/pixelboost-ai/billing-service/internal/webhooks/stripe"
	supabasewebhook "github.com/pixelboost-ai/billing-service/internal/webhooks/supabase"
	"github.com/pixelboost-ai/billing-service/pkg/config"
	"github.com/pixelboost-ai/billing-service/pkg/db"
	"github.com/pixelboost-ai/billing-service/pkg/logger"
	"github.com/pixelboost-ai/billing-service/pkg/metrics"
	"github.com/pixelboost-ai/billing-service/pkg/migrate"
	pkgredis "github.com/pixelboost-ai/billing-service/pkg/redis"
	pkgstripe "github.com/pixelboost-ai/billing-service/pkg/stripe"
)

const shutdownGrace = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := pkgredis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	stripeClient, err := pkgstripe.NewClient(context.Background(), cfg.Stripe, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap stripe", err)
		os.Exit(1)
	}
	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	webhookMetrics := metrics.NewWebhookMetrics(promRegistry)
	cronMetrics := metrics.NewCronJobMetrics(promRegistry)

	gormDB := dbClient.DB()
	profileRepo := profiles.NewRepository(gormDB)
	billingRepo := billing.NewRepository(gormDB)
	eventRepo := events.NewRepository(gormDB)
	creditRepo := credits.NewRepository(gormDB)
	runRepo := reconcile.NewRunRepository(gormDB)

	catalog, err := billing.LoadCatalog(context.Background(), billingRepo)
	if err != nil {
		logg.Error(context.Background(), "failed to load plan catalog", err)
		os.Exit(1)
	}

	creditsService, err := credits.NewService(creditRepo, dbClient, logg, cfg.Credits)
	if err != nil {
		logg.Error(context.Background(), "failed to create credits service", err)
		os.Exit(1)
	}

	stripeSubscriptions := syncsvc.NewStripeClient(stripeClient)
	synchronizer, err := syncsvc.NewService(syncsvc.ServiceParams{
		BillingRepo:       billingRepo,
		ProfileRepo:       profileRepo,
		Credits:           creditsService,
		Catalog:           catalog,
		StripeClient:      stripeSubscriptions,
		TransactionRunner: dbClient,
		Logger:            logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create synchronizer", err)
		os.Exit(1)
	}

	stripeWebhooks, err := stripewebhook.NewService(stripewebhook.ServiceParams{
		EventRepo:    eventRepo,
		Synchronizer: synchronizer,
		StripeClient: stripeSubscriptions,
		Metrics:      webhookMetrics,
		Logger:       logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create stripe webhook service", err)
		os.Exit(1)
	}

	supabaseWebhooks, err := supabasewebhook.NewService(profileRepo, creditsService, catalog, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create supabase webhook service", err)
		os.Exit(1)
	}

	expirationJob, err := reconcile.NewExpirationCheckJob(reconcile.ExpirationCheckJobParams{
		Logger:       logg,
		BillingRepo:  billingRepo,
		Synchronizer: synchronizer,
		Limit:        cfg.Cron.BatchLimit,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create expiration job", err)
		os.Exit(1)
	}
	reconciliationJob, err := reconcile.NewFullReconciliationJob(reconcile.FullReconciliationJobParams{
		Logger:       logg,
		BillingRepo:  billingRepo,
		ProfileRepo:  profileRepo,
		Synchronizer: synchronizer,
		Catalog:      catalog,
		Limit:        cfg.Cron.BatchLimit,
		Lookback:     cfg.Cron.ReconcileLookback,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create reconciliation job", err)
		os.Exit(1)
	}
	recoveryJob, err := reconcile.NewWebhookRecoveryJob(reconcile.WebhookRecoveryJobParams{
		Logger:               logg,
		EventRepo:            eventRepo,
		Webhooks:             stripeWebhooks,
		Limit:                cfg.Cron.BatchLimit,
		StaleProcessingAfter: cfg.Cron.StaleProcessingAfter,
		MaxAttempts:          cfg.Cron.MaxAttempts,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create recovery job", err)
		os.Exit(1)
	}

	registry := reconcile.NewRegistry(expirationJob, reconciliationJob, recoveryJob)
	runner, err := reconcile.NewRunner(runRepo, logg, cronMetrics)
	if err != nil {
		logg.Error(context.Background(), "failed to create job runner", err)
		os.Exit(1)
	}

	router := routes.NewRouter(routes.Deps{
		Config:           cfg,
		Logger:           logg,
		DB:               dbClient,
		Redis:            redisClient,
		ProfileRepo:      profileRepo,
		EventRepo:        eventRepo,
		RunRepo:          runRepo,
		Credits:          creditsService,
		StripeWebhooks:   stripeWebhooks,
		SupabaseWebhooks: supabaseWebhooks,
		Replayer:         stripeWebhooks,
		Registry:         registry,
		Runner:           runner,
		PromRegistry:     promRegistry,
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "api server shutdown failed", err)
			os.Exit(1)
		}
	}

	logg.Info(ctx, "api server shut down gracefully")
}
