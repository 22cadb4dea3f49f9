package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Vinguyen-32/cmpe273-comm-models-lab/internal/cache"
	"github.com/Vinguyen-32/cmpe273-comm-models-lab/internal/config"
	"github.com/Vinguyen-32/cmpe273-comm-models-lab/internal/consumer"
	"github.com/Vinguyen-32/cmpe273-comm-models-lab/internal/discovery"
	"github.com/Vinguyen-32/cmpe273-comm-models-lab/internal/handlers"
	"github.com/Vinguyen-32/cmpe273-comm-models-lab/internal/inventory"
	applog "github.com/Vinguyen-32/cmpe273-comm-models-lab/internal/logger"
	"github.com/Vinguyen-32/cmpe273-comm-models-lab/internal/messaging"
	"github.com/Vinguyen-32/cmpe273-comm-models-lab/internal/observability"
	"github.com/Vinguyen-32/cmpe273-comm-models-lab/internal/publisher"
	"github.com/Vinguyen-32/cmpe273-comm-models-lab/internal/server"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("❌ inventory-service: %v", err)
	}
}

func run() error {
	cfg, err := config.Load(config.InventoryService, 5002)
	if err != nil {
		return err
	}

	logger, err := applog.New(cfg.Env, cfg.ServiceName)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.SetupTracing(ctx, cfg.ServiceName, cfg.OtelEndpoint)
	if err != nil {
		return err
	}
	defer shutdownTracing(context.Background())

	seed := cfg.InventorySeed
	if seed == nil {
		seed = inventory.DefaultCatalog()
	}

	var (
		ledger    inventory.Ledger
		processed inventory.ProcessedSet
	)
	switch cfg.StateBackend {
	case config.BackendRedis:
		redisClient, err := cache.NewRedisClient(ctx, cfg.RedisAddr, logger)
		if err != nil {
			return err
		}
		defer redisClient.Close()

		redisLedger, err := inventory.NewRedisLedger(ctx, redisClient, seed)
		if err != nil {
			return err
		}
		ledger = redisLedger
		processed = inventory.NewRedisProcessedSet(redisClient, cfg.ProcessedTTL, cfg.ClaimTTL)
	default:
		ledger = inventory.NewMemoryLedger(seed)
		processed = inventory.NewMemoryProcessedSet(cfg.ProcessedCapacity, cfg.ProcessedTTL)
	}
	logger.Info("📦 Inventory ready",
		zap.String("backend", cfg.StateBackend),
		zap.Int("items", len(seed)),
	)

	// Connect to RabbitMQ
	rabbitMQ, err := messaging.NewRabbitMQ(messaging.Options{
		URL:             cfg.RabbitURL(),
		ConnectAttempts: cfg.ConnectAttempts,
		ConnectDelay:    cfg.ConnectDelay,
	}, logger)
	if err != nil {
		return err
	}
	defer rabbitMQ.Close()

	if err := rabbitMQ.DeclareTopology(); err != nil {
		return err
	}
	if err := rabbitMQ.SetPrefetch(1); err != nil {
		return err
	}

	svc := inventory.NewService(ledger, processed, logger)
	inventoryConsumer := consumer.NewInventoryConsumer(svc, publisher.NewEventPublisher(rabbitMQ), logger, cfg.PublishRetries)

	deliveries, err := rabbitMQ.Consume(messaging.QueueOrderPlaced, cfg.ServiceName)
	if err != nil {
		return err
	}

	router := server.NewRouter(cfg.Env, logger)
	handlers.NewInventoryHandler(svc, rabbitMQ, messaging.QueueOrderPlaced, logger).RegisterRoutes(router)

	if consul := discovery.Connect(cfg.ConsulAddr, logger); consul != nil {
		serviceID := discovery.ServiceID(cfg.ServiceName)
		err := consul.Register(discovery.ServiceConfig{
			Name: cfg.ServiceName,
			ID:   serviceID,
			Port: cfg.HTTPPort,
			Tags: []string{"inventory"},
		})
		if err != nil {
			logger.Warn("⚠️ Failed to register with Consul", zap.Error(err))
		} else {
			defer consul.Deregister(serviceID)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return inventoryConsumer.Run(gctx, deliveries) })
	g.Go(func() error { return server.Run(gctx, cfg.HTTPPort, router, logger) })

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("👋 Inventory service stopped")
	return nil
}
