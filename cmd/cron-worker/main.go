package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/pixelboost-ai/billing-service/pkg/config"
	"github.com/pixelboost-ai/billing-service/pkg/logger"
)

// schedule maps a job trigger path to its interval. The worker owns no
// state and touches no datastore: it only fires the API's cron endpoints,
// which do the work and record the sync run.
type schedule struct {
	name     string
	interval time.Duration
}

func main() {
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	schedules := []schedule{
		{name: "expiration-check", interval: cfg.Cron.ExpirationInterval},
		{name: "full-reconciliation", interval: cfg.Cron.ReconcileInterval},
		{name: "webhook-recovery", interval: cfg.Cron.RecoveryInterval},
	}

	client := &http.Client{Timeout: cfg.Cron.TriggerTimeout}
	baseURL := strings.TrimRight(cfg.Cron.TriggerBaseURL, "/")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"base_url": baseURL,
	})
	logg.Info(ctx, "starting cron worker")

	var wg sync.WaitGroup
	for _, sched := range schedules {
		wg.Add(1)
		go func(sched schedule) {
			defer wg.Done()
			runSchedule(ctx, logg, client, baseURL, cfg.Cron.Secret, sched)
		}(sched)
	}
	wg.Wait()

	logg.Info(ctx, "cron worker shutting down gracefully")
}

func runSchedule(ctx context.Context, logg *logger.Logger, client *http.Client, baseURL, secret string, sched schedule) {
	ctx = logg.WithField(ctx, "job", sched.name)
	ticker := time.NewTicker(sched.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			trigger(ctx, logg, client, baseURL, secret, sched.name)
		}
	}
}

func trigger(ctx context.Context, logg *logger.Logger, client *http.Client, baseURL, secret, name string) {
	url := fmt.Sprintf("%s/api/v1/cron/%s", baseURL, name)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		logg.Error(ctx, "build cron trigger request", err)
		return
	}
	req.Header.Set("x-cron-secret", secret)

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		logg.Error(ctx, "trigger cron job", err)
		return
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	ctx = logg.WithFields(ctx, map[string]any{
		"status":      resp.StatusCode,
		"duration_ms": time.Since(start).Milliseconds(),
		"response":    string(body),
	})
	if resp.StatusCode != http.StatusOK {
		logg.Error(ctx, "cron job reported failure", fmt.Errorf("status %d", resp.StatusCode))
		return
	}
	logg.Info(ctx, "cron job triggered")
}
