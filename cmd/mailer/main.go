package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/ariefcatur/go-course-checkout/internal/config"
	"github.com/ariefcatur/go-course-checkout/internal/fulfillment"
	kafkax "github.com/ariefcatur/go-course-checkout/internal/kafka"
	"github.com/ariefcatur/go-course-checkout/internal/mailer"
	"github.com/ariefcatur/go-course-checkout/internal/redisx"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil)).With(slog.String("service", cfg.ServiceName+"-mailer"))
	slog.SetDefault(log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Redis (dedup event)
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	svc := &mailer.Service{
		Sender: &mailer.SMTPSender{Addr: cfg.Mailer.SMTPAddr, From: cfg.Mailer.From},
		Redis:  rdb,
		Log:    log,
	}

	// Dua consumer, satu per topic; email ringan, satu worker cukup.
	cConfirmed := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.Mailer.Group, fulfillment.TopicOrderConfirmed, 1, log)
	cReady := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.Mailer.Group, fulfillment.TopicEnrollmentsReady, 1, log)

	go func() {
		log.Info("mailer consumer started", slog.String("topic", fulfillment.TopicOrderConfirmed))
		if err := cConfirmed.Start(ctx, svc.HandleOrderConfirmed); err != nil {
			log.Error("consumer exit", slog.Any("error", err))
			cancel()
		}
	}()
	go func() {
		log.Info("mailer consumer started", slog.String("topic", fulfillment.TopicEnrollmentsReady))
		if err := cReady.Start(ctx, svc.HandleEnrollmentsReady); err != nil {
			log.Error("consumer exit", slog.Any("error", err))
			cancel()
		}
	}()

	// graceful shutdown
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
	case <-ctx.Done():
	}
	log.Info("shutting down mailer...")
	cancel()
	time.Sleep(500 * time.Millisecond)
}
