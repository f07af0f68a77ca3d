// File: cmd/app/main.go
package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/Le-Sourcier/servcraft-sub004/internal/config"
	"github.com/Le-Sourcier/servcraft-sub004/internal/domain/ports/adapter"
	"github.com/Le-Sourcier/servcraft-sub004/internal/infra/adapters/provider"
	pg "github.com/Le-Sourcier/servcraft-sub004/internal/infra/db/postgres"
	"github.com/Le-Sourcier/servcraft-sub004/internal/infra/logging"
	"github.com/Le-Sourcier/servcraft-sub004/internal/infra/metrics"
	red "github.com/Le-Sourcier/servcraft-sub004/internal/infra/redis"
	"github.com/Le-Sourcier/servcraft-sub004/internal/infra/sched"
	"github.com/Le-Sourcier/servcraft-sub004/internal/infra/web"
	"github.com/Le-Sourcier/servcraft-sub004/internal/infra/worker"
	"github.com/Le-Sourcier/servcraft-sub004/internal/usecase"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (console logs, relaxed checks)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Warn().Msg("developer mode enabled")
	}

	metrics.MustRegister()

	// ---- Postgres ----
	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres connect")
	}
	defer pool.Close()
	go pg.ReportPoolStats(ctx, pool, 15*time.Second)

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis connect")
	}
	defer redisClient.Close()
	locker := red.NewLocker(redisClient)
	idemStore := red.NewIdempotencyStore(redisClient, cfg.Payment.IdempotencyTTL)

	// ---- Provider adapters ----
	var gateways []adapter.PaymentProvider
	if cfg.Payment.CardNet.Enabled {
		gw, err := provider.NewCardNetGateway(cfg.Payment.CardNet.APIKey, cfg.Payment.CardNet.APIBase, cfg.Payment.CardNet.WebhookSecret, cfg.Payment.WebhookTolerance)
		if err != nil {
			logger.Fatal().Err(err).Msg("cardnet gateway")
		}
		gateways = append(gateways, gw)
	}
	if cfg.Payment.SwiftWallet.Enabled {
		gw, err := provider.NewSwiftWalletGateway(cfg.Payment.SwiftWallet.APIKey, cfg.Payment.SwiftWallet.APIBase, cfg.Payment.SwiftWallet.WebhookSecret, cfg.Payment.WebhookTolerance)
		if err != nil {
			logger.Fatal().Err(err).Msg("swiftwallet gateway")
		}
		gateways = append(gateways, gw)
	}
	if cfg.Payment.MomoCash.Enabled {
		gw, err := provider.NewMomoCashGateway(cfg.Payment.MomoCash.APIKey, cfg.Payment.MomoCash.APIBase, cfg.Payment.MomoCash.WebhookSecret, cfg.Payment.WebhookTolerance)
		if err != nil {
			logger.Fatal().Err(err).Msg("momocash gateway")
		}
		gateways = append(gateways, gw)
	}
	registry, err := provider.NewRegistry(cfg.Payment.DefaultProvider, gateways...)
	if err != nil {
		logger.Fatal().Err(err).Msg("provider registry")
	}

	// ---- Repositories ----
	payRepo := pg.NewPostgresPaymentRepo(pool)
	intentRepo := pg.NewPostgresIntentRepo(pool)
	subRepo := pg.NewPostgresSubscriptionRepo(pool)
	planRepo := pg.NewPostgresPlanRepo(pool)
	eventRepo := pg.NewPostgresWebhookEventRepo(pool)

	// ---- Worker pool ----
	workers := worker.NewPool(cfg.Reconciler.Workers, logger)
	workers.Start(ctx)
	defer workers.Stop()

	// ---- Use cases ----
	settings := usecase.Settings{
		DefaultProvider:     cfg.Payment.DefaultProvider,
		SupportedCurrencies: cfg.Payment.SupportedCurrencies,
		IntentTTL:           cfg.Payment.IntentTTL,
		ProviderTimeout:     cfg.Payment.ProviderTimeout,
	}
	paymentUC := usecase.NewPaymentUseCase(payRepo, intentRepo, idemStore, locker, registry, settings, logger)
	subUC := usecase.NewSubscriptionUseCase(subRepo, planRepo, locker, registry, settings, logger)
	webhookUC := usecase.NewWebhookUseCase(eventRepo, payRepo, intentRepo, subRepo, planRepo, locker, registry, workers, settings, logger)

	// ---- Reconciler ----
	reconciler := sched.NewPaymentReconciler(cfg.Reconciler.Interval, cfg.Reconciler.StaleAfter, payRepo, eventRepo, webhookUC, logger)
	go func() {
		if err := reconciler.Run(ctx); err != nil && err != context.Canceled {
			logger.Error().Err(err).Msg("reconciler stopped")
		}
	}()

	// ---- HTTP ----
	auth := web.NewAuthManager(cfg.HTTP.JWTSecret)
	server := web.NewServer(paymentUC, subUC, webhookUC, auth, logger)
	errCh := make(chan error, 1)
	go func() { errCh <- server.Start(cfg.HTTP.Port) }()

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			logger.Error().Err(err).Msg("http server failed")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
	}
	logger.Info().Msg("bye")
}
