package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/fullmeo/aimastery-billing/internal/config"
	"github.com/fullmeo/aimastery-billing/internal/infrastructure/database"
	grpcServer "github.com/fullmeo/aimastery-billing/internal/infrastructure/grpc"
	httpServer "github.com/fullmeo/aimastery-billing/internal/infrastructure/http"
	providerFactory "github.com/fullmeo/aimastery-billing/internal/infrastructure/provider"
	stripeProvider "github.com/fullmeo/aimastery-billing/internal/infrastructure/provider/stripe"
	"github.com/fullmeo/aimastery-billing/internal/usecase"
	"github.com/fullmeo/aimastery-billing/pkg/logger"
	"github.com/fullmeo/aimastery-billing/pkg/messaging"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Refusing to start: %v", err)
	}

	zapLogger, err := logger.NewZapLogger(logger.Config{
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		Output:      cfg.Log.Output,
		FilePath:    cfg.Log.FilePath,
		Development: cfg.Log.Development,
	})
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	zapLogger = zapLogger.With(
		zap.String("service", cfg.Service.Name),
		zap.String("env", cfg.Service.Environment))
	defer zapLogger.Sync()

	store, closeStore, err := database.NewStore(&cfg.Database, zapLogger)
	if err != nil {
		zapLogger.Fatal("Failed to open store", zap.Error(err))
	}
	defer func() {
		if err := closeStore(); err != nil {
			zapLogger.Error("Failed to close store", zap.Error(err))
		}
	}()

	stripe, err := providerFactory.NewFactory(cfg, zapLogger).Stripe()
	if err != nil {
		zapLogger.Fatal("Failed to initialize payment provider", zap.Error(err))
	}

	var publisher messaging.Publisher = messaging.NopPublisher{}
	if cfg.Redis.Addr != "" {
		client, err := messaging.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			zapLogger.Fatal("Failed to connect to redis", zap.Error(err))
		}
		defer client.Close()
		publisher = client
	} else {
		zapLogger.Info("redis.addr not set; billing notifications are disabled")
	}

	entitlements := usecase.NewEntitlementService(store, zapLogger)
	ledger := usecase.NewRevenueLedger(store, zapLogger)
	services := httpServer.Services{
		Checkout:     usecase.NewCheckoutService(stripe, cfg.Service.ClientURL, cfg.Checkout.Timeout, zapLogger),
		Entitlements: entitlements,
		Ledger:       ledger,
		Webhooks: usecase.NewWebhookProcessor(
			stripe,
			stripeProvider.NewClassifier(),
			store,
			entitlements,
			ledger,
			publisher,
			usecase.WebhookProcessorConfig{
				MaxAttempts: cfg.Webhook.MaxApplyAttempts,
				Backoff:     cfg.Webhook.RetryBackoff,
				Channel:     cfg.Redis.Channel,
			},
			zapLogger,
		),
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	grpcSrv := grpcServer.NewServer(cfg, zapLogger)
	httpSrv := httpServer.NewServer(cfg, zapLogger, services, registry)

	go func() {
		if err := grpcSrv.Start(); err != nil {
			zapLogger.Fatal("Failed to start gRPC server", zap.Error(err))
		}
	}()

	go func() {
		if err := httpSrv.Start(); err != nil {
			zapLogger.Fatal("Failed to start HTTP server", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	zapLogger.Info("Shutting down servers...")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpSrv.Shutdown(ctx); err != nil {
		zapLogger.Error("Failed to shutdown HTTP server", zap.Error(err))
	}
	if err := grpcSrv.Shutdown(ctx); err != nil {
		zapLogger.Error("Failed to shutdown gRPC server", zap.Error(err))
	}

	zapLogger.Info("Servers shut down successfully")
}
