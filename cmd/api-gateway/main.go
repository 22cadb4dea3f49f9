package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Vinguyen-32/cmpe273-comm-models-lab/internal/config"
	"github.com/Vinguyen-32/cmpe273-comm-models-lab/internal/discovery"
	"github.com/Vinguyen-32/cmpe273-comm-models-lab/internal/gateway"
	applog "github.com/Vinguyen-32/cmpe273-comm-models-lab/internal/logger"
	"github.com/Vinguyen-32/cmpe273-comm-models-lab/internal/server"
)

const rediscoverInterval = 10 * time.Second

func main() {
	if err := run(); err != nil {
		log.Fatalf("❌ api-gateway: %v", err)
	}
}

func run() error {
	cfg, err := config.Load(config.APIGateway, 8080)
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

	consul := discovery.Connect(cfg.ConsulAddr, logger)
	resolve := func(service, fallback string) string {
		return discovery.Resolver(consul, service, fallback)()
	}

	gw := gateway.New([]gateway.Route{
		{Service: config.OrderService, Fallback: cfg.OrderServiceURL},
		{Service: config.InventoryService, Fallback: cfg.InventoryServiceURL},
		{Service: config.NotificationService, Fallback: cfg.NotificationServiceURL},
	}, resolve, logger)
	if consul != nil {
		go gw.Watch(ctx, rediscoverInterval)
	}

	router := server.NewRouter(cfg.Env, logger)
	gw.RegisterRoutes(router, config.OrderService, config.InventoryService, config.NotificationService)

	return server.Run(ctx, cfg.HTTPPort, router, logger)
}
