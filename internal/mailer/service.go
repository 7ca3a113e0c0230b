package mailer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/ariefcatur/go-course-checkout/internal/fulfillment"
	kafkax "github.com/ariefcatur/go-course-checkout/internal/kafka"
	"github.com/ariefcatur/go-course-checkout/internal/redisx"
)

// Service mengubah event fulfillment jadi email transaksional.
// Email fire-and-forget: gagal kirim di-log, offset tetap di-commit —
// jangan redeliver email selamanya.
type Service struct {
	Sender Sender
	Redis  *redis.Client
	Log    *slog.Logger
}

func (s *Service) HandleOrderConfirmed(ctx context.Context, m kafkago.Message) error {
	var env fulfillment.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		return err
	}
	if env.EventType != fulfillment.EventOrderConfirmed {
		return nil
	} // ignore
	if s.seen(ctx, env.EventID) {
		return nil
	}

	p, err := kafkax.UnwrapPayload[fulfillment.OrderConfirmedPayload](env.Payload)
	if err != nil {
		return err
	}

	subject := fmt.Sprintf("Order %s confirmed", p.OrderNumber)
	s.send(ctx, p.CustomerEmail, subject, confirmationBody(p))
	return nil
}

func (s *Service) HandleEnrollmentsReady(ctx context.Context, m kafkago.Message) error {
	var env fulfillment.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		return err
	}
	if env.EventType != fulfillment.EventEnrollmentsReady {
		return nil
	}
	if s.seen(ctx, env.EventID) {
		return nil
	}

	p, err := kafkax.UnwrapPayload[fulfillment.EnrollmentsReadyPayload](env.Payload)
	if err != nil {
		return err
	}

	subject := fmt.Sprintf("Your courses are ready (order %s)", p.OrderNumber)
	body := fmt.Sprintf(
		"Hi,\n\n%d item(s) from order %s are now available in your learning dashboard.\n\nHappy learning!\n",
		p.ItemCount, p.OrderNumber)
	s.send(ctx, p.CustomerEmail, subject, body)
	return nil
}

func (s *Service) seen(ctx context.Context, eventID string) bool {
	dkey := fmt.Sprintf(redisx.KeyMailerDedup, eventID)
	exists, _ := redisx.Exists(ctx, s.Redis, dkey)
	if exists {
		return true
	}
	_ = s.Redis.Set(ctx, dkey, "1", redisx.TTLDedup).Err()
	return false
}

func (s *Service) send(ctx context.Context, to, subject, body string) {
	if err := s.Sender.Send(ctx, to, subject, body); err != nil {
		s.Log.Error("email send failed",
			slog.String("to", to),
			slog.String("subject", subject),
			slog.Any("error", err))
	}
}

func confirmationBody(p fulfillment.OrderConfirmedPayload) string {
	var b strings.Builder
	name := p.CustomerName
	if name == "" {
		name = "there"
	}
	fmt.Fprintf(&b, "Hi %s,\n\nThanks for your purchase! Order %s:\n\n", name, p.OrderNumber)
	for _, it := range p.Items {
		fmt.Fprintf(&b, "  - %s — %d\n", it.Title, it.Price)
	}
	fmt.Fprintf(&b, "\nSubtotal: %d\n", p.Subtotal)
	if p.Discount > 0 {
		tier := p.DiscountTier
		if tier == "" {
			tier = "Discount"
		}
		fmt.Fprintf(&b, "%s: -%d\n", tier, p.Discount)
	}
	fmt.Fprintf(&b, "Total: %d\n\nYour enrollments are being set up and will arrive shortly.\n", p.Total)
	return b.String()
}
