package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/ariefcatur/go-course-checkout/internal/catalog"
	"github.com/ariefcatur/go-course-checkout/internal/checkout"
	"github.com/ariefcatur/go-course-checkout/internal/config"
	"github.com/ariefcatur/go-course-checkout/internal/fulfillment"
	"github.com/ariefcatur/go-course-checkout/internal/httpx"
	kafkax "github.com/ariefcatur/go-course-checkout/internal/kafka"
	"github.com/ariefcatur/go-course-checkout/internal/lms"
	"github.com/ariefcatur/go-course-checkout/internal/metrics"
	"github.com/ariefcatur/go-course-checkout/internal/orders"
	"github.com/ariefcatur/go-course-checkout/internal/postgres"
	"github.com/ariefcatur/go-course-checkout/internal/progress"
	"github.com/ariefcatur/go-course-checkout/internal/redisx"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil)).With(slog.String("service", cfg.ServiceName))
	slog.SetDefault(log)

	metrics.Register()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Error("db connect failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// Kafka producers utk email dispatch (dua topic)
	pConfirmed := kafkax.NewProducer(cfg.KafkaBrokers, fulfillment.TopicOrderConfirmed, 1024, log)
	pConfirmed.Start(ctx)
	pReady := kafkax.NewProducer(cfg.KafkaBrokers, fulfillment.TopicEnrollmentsReady, 1024, log)
	pReady.Start(ctx)

	// Repos
	catalogRepo := &catalog.Repo{DB: db}
	orderRepo := &orders.Repo{DB: db}
	progressRepo := &progress.Repo{DB: db}
	eventLog := &fulfillment.EventLog{DB: db}

	// Validator (pre-payment, advisory)
	validator := &checkout.Validator{
		Catalog:      catalogRepo,
		Entitlements: &orders.CachedEntitlementSource{Repo: orderRepo, Redis: rdb},
		Tiers:        checkout.DefaultTiers,
	}

	// Saga (post-payment)
	saga := &fulfillment.Saga{
		Store:             orderRepo,
		LMS:               lms.NewClient(cfg.LMS.BaseURL, cfg.LMS.APIKey, cfg.LMS.Timeout),
		ConfirmedProducer: pConfirmed,
		ReadyProducer:     pReady,
		Log:               log,
		Service:           cfg.ServiceName,
		Pace:              cfg.Saga.PaceDelay,
		RetryAttempts:     cfg.Saga.RetryAttempts,
		RetryDelay:        cfg.Saga.RetryDelay,
	}

	// Router & handlers
	router := httpx.NewRouter()
	(&httpx.CheckoutHandler{Validator: validator}).Register(router)
	(&httpx.WebhookHandler{
		Secret: cfg.GatewaySecret,
		Dedup:  &httpx.GatewayDedup{Redis: rdb},
		Saga:   saga,
		Events: eventLog,
		Log:    log,
	}).Register(router)
	(&httpx.OrdersHandler{Repo: orderRepo}).Register(router)
	(&httpx.ProgressHandler{Repo: progressRepo, Redis: rdb}).Register(router)

	// HTTP server
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	go func() {
		log.Info("HTTP listening", slog.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("listen failed", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	// wait signal
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info("shutting down...")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	pConfirmed.Close() // tutup inbox -> flush & close writer
	pReady.Close()
	cancel() // stop producer loop
	pConfirmed.WaitClosed()
	pReady.WaitClosed()
}
