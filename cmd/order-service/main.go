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

	"github.com/Vinguyen-32/cmpe273-comm-models-lab/internal/client"
	"github.com/Vinguyen-32/cmpe273-comm-models-lab/internal/config"
	"github.com/Vinguyen-32/cmpe273-comm-models-lab/internal/consumer"
	"github.com/Vinguyen-32/cmpe273-comm-models-lab/internal/db"
	"github.com/Vinguyen-32/cmpe273-comm-models-lab/internal/discovery"
	"github.com/Vinguyen-32/cmpe273-comm-models-lab/internal/handlers"
	applog "github.com/Vinguyen-32/cmpe273-comm-models-lab/internal/logger"
	"github.com/Vinguyen-32/cmpe273-comm-models-lab/internal/messaging"
	"github.com/Vinguyen-32/cmpe273-comm-models-lab/internal/observability"
	"github.com/Vinguyen-32/cmpe273-comm-models-lab/internal/publisher"
	"github.com/Vinguyen-32/cmpe273-comm-models-lab/internal/server"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("❌ order-service: %v", err)
	}
}

func run() error {
	cfg, err := config.Load(config.OrderService, 5001)
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

	consul := discovery.Connect(cfg.ConsulAddr, logger)

	// Order store and producer
	orderRepo := db.NewOrderRepository()
	eventPublisher := publisher.NewEventPublisher(rabbitMQ)
	orderHandler := handlers.NewOrderHandler(orderRepo, eventPublisher, logger)

	// Status reconciliation listener
	orderClient := client.NewOrderClient(
		discovery.Resolver(consul, config.OrderService, cfg.OrderServiceURL),
		cfg.StatusUpdateTimeout,
	)
	listener := consumer.NewCallbackListener(orderClient, logger.Named("callback"), cfg.ReconcileRetries)

	reserved, err := rabbitMQ.Consume(messaging.QueueCallbackReserved, cfg.ServiceName+"-reserved")
	if err != nil {
		return err
	}
	failed, err := rabbitMQ.Consume(messaging.QueueCallbackFailed, cfg.ServiceName+"-failed")
	if err != nil {
		return err
	}

	router := server.NewRouter(cfg.Env, logger)
	orderHandler.RegisterRoutes(router)

	if consul != nil {
		serviceID := discovery.ServiceID(cfg.ServiceName)
		err := consul.Register(discovery.ServiceConfig{
			Name: cfg.ServiceName,
			ID:   serviceID,
			Port: cfg.HTTPPort,
			Tags: []string{"api", "orders"},
		})
		if err != nil {
			logger.Warn("⚠️ Failed to register with Consul", zap.Error(err))
		} else {
			defer consul.Deregister(serviceID)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return listener.Run(gctx, reserved, failed) })
	g.Go(func() error { return server.Run(gctx, cfg.HTTPPort, router, logger) })

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("👋 Order service stopped")
	return nil
}
