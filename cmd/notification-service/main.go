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

	"github.com/Vinguyen-32/cmpe273-comm-models-lab/internal/config"
	"github.com/Vinguyen-32/cmpe273-comm-models-lab/internal/consumer"
	"github.com/Vinguyen-32/cmpe273-comm-models-lab/internal/discovery"
	"github.com/Vinguyen-32/cmpe273-comm-models-lab/internal/handlers"
	applog "github.com/Vinguyen-32/cmpe273-comm-models-lab/internal/logger"
	"github.com/Vinguyen-32/cmpe273-comm-models-lab/internal/messaging"
	"github.com/Vinguyen-32/cmpe273-comm-models-lab/internal/notification"
	"github.com/Vinguyen-32/cmpe273-comm-models-lab/internal/observability"
	"github.com/Vinguyen-32/cmpe273-comm-models-lab/internal/server"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("❌ notification-service: %v", err)
	}
}

func run() error {
	cfg, err := config.Load(config.NotificationService, 5003)
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

	store := notification.NewStore()
	notificationConsumer := consumer.NewNotificationConsumer(store, logger)

	deliveries, err := rabbitMQ.Consume(messaging.QueueInventoryReserved, cfg.ServiceName)
	if err != nil {
		return err
	}

	router := server.NewRouter(cfg.Env, logger)
	handlers.NewNotificationHandler(store).RegisterRoutes(router)

	if consul := discovery.Connect(cfg.ConsulAddr, logger); consul != nil {
		serviceID := discovery.ServiceID(cfg.ServiceName)
		err := consul.Register(discovery.ServiceConfig{
			Name: cfg.ServiceName,
			ID:   serviceID,
			Port: cfg.HTTPPort,
			Tags: []string{"notifications"},
		})
		if err != nil {
			logger.Warn("⚠️ Failed to register with Consul", zap.Error(err))
		} else {
			defer consul.Deregister(serviceID)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return notificationConsumer.Run(gctx, deliveries) })
	g.Go(func() error { return server.Run(gctx, cfg.HTTPPort, router, logger) })

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("👋 Notification service stopped")
	return nil
}
