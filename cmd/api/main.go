package main

import (
	"context"
	"errors"
	"github.com/ariefcatur/go-order-reconciler/internal/auth"
	"github.com/ariefcatur/go-order-reconciler/internal/cart"
	"github.com/ariefcatur/go-order-reconciler/internal/config"
	"github.com/ariefcatur/go-order-reconciler/internal/httpx"
	"github.com/ariefcatur/go-order-reconciler/internal/idempotency"
	kafkax "github.com/ariefcatur/go-order-reconciler/internal/kafka"
	"github.com/ariefcatur/go-order-reconciler/internal/logging"
	"github.com/ariefcatur/go-order-reconciler/internal/orders"
	"github.com/ariefcatur/go-order-reconciler/internal/payment"
	"github.com/ariefcatur/go-order-reconciler/internal/postgres"
	"github.com/ariefcatur/go-order-reconciler/internal/redisx"
	"github.com/ariefcatur/go-order-reconciler/internal/sweeper"
	"github.com/ariefcatur/go-order-reconciler/internal/telemetry"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
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

	tp, err := telemetry.InitTracer(ctx, cfg.ServiceName, cfg.OTELEndpoint, cfg.Env)
	if err != nil {
		logger.Fatal("tracer", zap.Error(err))
	}

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Fatal("db connect", zap.Error(err))
	}
	defer db.Close()

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()
	if err := redisx.Ping(ctx, rdb); err != nil {
		// cache & lock cuma optimasi, API tetap jalan
		logger.Warn("redis unavailable", zap.Error(err))
	}

	// Kafka producers, satu per topic
	brokers := cfg.KafkaBrokers()
	created := kafkax.NewProducer(brokers, orders.TopicOrderCreated, 1024, logger)
	created.Start()
	changed := kafkax.NewProducer(brokers, orders.TopicOrderStatusChanged, 1024, logger)
	changed.Start()
	events := &orders.EventBus{Created: created, StatusChanged: changed, Producer: cfg.ServiceName}

	gateway := payment.NewClient(payment.Config{
		ServerKey:  cfg.Gateway.ServerKey,
		Production: cfg.Gateway.Production,
		SnapURL:    cfg.Gateway.SnapURL,
		APIURL:     cfg.Gateway.APIURL,
		Timeout:    cfg.Gateway.Timeout,
	}, logger)

	repo := &orders.Repo{DB: db}
	builder := orders.NewBuilder(repo, gateway, events, logger, cfg.Orders.MaxCartLines)
	reconciler := orders.NewReconciler(repo, gateway, events, logger, cfg.Gateway.ServerKey, cfg.Gateway.Timeout)
	lifecycle := orders.NewLifecycle(repo, events, logger)
	idemStore := &idempotency.PostgresStore{DB: db, TTL: cfg.Orders.IdempotencyTTL}

	router := httpx.NewRouter(httpx.Deps{
		Logger:   logger,
		Verifier: auth.NewVerifier(cfg.JWTSecret),
		Orders: &httpx.OrdersHandler{
			Checkout:      builder,
			Notifications: reconciler,
			Lifecycle:     lifecycle,
			Cache:         redisx.NewStatusCache(rdb),
			Log:           logger,
		},
		Cart:   &httpx.CartHandler{Cart: cart.NewService(&cart.Repo{DB: db}, logger), Log: logger},
		Idem:    idemStore,
		Locker:  &idempotency.RedisLocker{Redis: rdb},
		IdemTTL: cfg.Orders.IdempotencyTTL,
	})

	sw := &sweeper.Sweeper{
		Idem:           idemStore,
		Orders:         lifecycle,
		Interval:       cfg.Sweeper.Interval,
		IdemTTL:        cfg.Orders.IdempotencyTTL,
		AbandonedAfter: cfg.Sweeper.AbandonedAfter,
		BatchSize:      cfg.Sweeper.BatchSize,
		Log:            logger.Named("sweeper"),
	}
	go sw.Run(ctx)

	// HTTP server
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Info("http listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("listen", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	// handler sudah selesai, sisa event di-flush
	created.Close()
	changed.Close()
	_ = tp.Shutdown(ctx2)
}
