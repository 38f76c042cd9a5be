package main

import (
	"context"
	"github.com/ariefcatur/go-order-reconciler/internal/config"
	kafkax "github.com/ariefcatur/go-order-reconciler/internal/kafka"
	"github.com/ariefcatur/go-order-reconciler/internal/logging"
	"github.com/ariefcatur/go-order-reconciler/internal/orders"
	"github.com/ariefcatur/go-order-reconciler/internal/projector"
	"github.com/ariefcatur/go-order-reconciler/internal/redisx"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := logging.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()
	if err := redisx.Ping(ctx, rdb); err != nil {
		logger.Fatal("redis", zap.Error(err))
	}

	svc := &projector.Service{
		Cache:       redisx.NewStatusCache(rdb),
		ServiceName: cfg.ServiceName + "-projector",
		Log:         logger,
	}

	// satu consumer per topic, group yang sama
	var wg sync.WaitGroup
	for _, topic := range []string{orders.TopicOrderCreated, orders.TopicOrderStatusChanged} {
		cons := kafkax.NewConsumer(cfg.KafkaBrokers(), cfg.Projector.Group, topic, cfg.Projector.Workers, logger)
		wg.Add(1)
		go func(topic string) {
			defer wg.Done()
			logger.Info("projector consumer started",
				zap.String("group", cfg.Projector.Group),
				zap.String("topic", topic),
				zap.Int("workers", cfg.Projector.Workers),
			)
			if err := cons.Start(ctx, svc.Handle); err != nil {
				logger.Error("consumer exit", zap.String("topic", topic), zap.Error(err))
				stop()
			}
		}(topic)
	}

	<-ctx.Done()
	logger.Info("shutting down consumers")
	wg.Wait()
}
