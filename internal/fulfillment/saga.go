package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/avast/retry-go"
	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"

	kafkax "github.com/ariefcatur/go-course-checkout/internal/kafka"
	"github.com/ariefcatur/go-course-checkout/internal/lms"
	"github.com/ariefcatur/go-course-checkout/internal/metrics"
	"github.com/ariefcatur/go-course-checkout/internal/orders"
)

// Step saga, urut. Hanya order-create yang hard gate: buyer sudah terlanjur
// bayar, jadi kegagalan step lain di-log lalu saga jalan terus. Tidak ada
// rollback — forward-only by business decision, bukan kelalaian.
type Step string

const (
	StepItemsExtracted     Step = "items_extracted"
	StepOrderCreated       Step = "order_created"
	StepCartCleared        Step = "cart_cleared"
	StepCustomerRefUpdated Step = "customer_ref_updated"
	StepConfirmationEmail  Step = "confirmation_email"
	StepIdentityProvision  Step = "lms_identity_provisioned"
	StepEnrolling          Step = "enrolling"
	StepEnrollmentEmail    Step = "enrollment_email"
)

var ErrNoLineItems = errors.New("payment event has no line items")

type OrderStore interface {
	CreateOrder(ctx context.Context, o *orders.Order) error
	ClearCart(ctx context.Context, buyerID string) error
	UpdateCustomerRef(ctx context.Context, buyerID, customerRef string) error
	GetIdentityMapping(ctx context.Context, buyerID string) (string, bool, error)
	SaveIdentityMapping(ctx context.Context, buyerID, lmsUserID string) error
	InsertEnrollment(ctx context.Context, e *orders.Enrollment) error
}

type LMSClient interface {
	FindUserByEmail(ctx context.Context, email string) (*lms.User, error)
	CreateUser(ctx context.Context, email, displayName string) (*lms.User, error)
	Enroll(ctx context.Context, r lms.EnrollRequest) error
}

type Publisher interface {
	Publish(key, value []byte, headers ...kafkago.Header)
}

type Saga struct {
	Store             OrderStore
	LMS               LMSClient
	ConfirmedProducer Publisher
	ReadyProducer     Publisher
	Log               *slog.Logger
	Service           string

	// jeda tetap sebelum tiap call LMS (identity lookup & per-item enroll),
	// semata-mata utk hormati rate limit eksternal
	Pace time.Duration
	// retry 429/503: percobaan tambahan dgn delay tetap
	RetryAttempts uint
	RetryDelay    time.Duration

	// injeksi utk test tanpa timer beneran; nil = pakai timer asli
	Sleep func(ctx context.Context, d time.Duration)
	Now   func() time.Time
}

// Fulfill menjalankan saga utk satu payment event terverifikasi.
// Sequential per event, tanpa paralelisme internal: API enrollment LMS
// rate-limited per buyer.
func (s *Saga) Fulfill(ctx context.Context, ev *PaymentEvent) error {
	log := s.Log.With(
		slog.String("event_id", ev.EventID),
		slog.String("buyer_id", ev.BuyerID),
		slog.String("payment_reference", ev.PaymentReference),
	)

	if len(ev.LineItems) == 0 {
		log.Warn("payment event without line items, aborting before any side effect")
		return ErrNoLineItems
	}

	o := orderFromEvent(ev)
	if err := s.Store.CreateOrder(ctx, o); err != nil {
		if errors.Is(err, orders.ErrAlreadyExists) {
			// replay webhook: order sudah ada, sudah difulfill sebelumnya
			log.Info("order already exists for payment reference, skipping saga")
			return nil
		}
		// hard gate: tanpa order record, tidak ada proses lanjut
		return fmt.Errorf("create order: %w", err)
	}
	log = log.With(slog.String("order_id", o.ID), slog.String("order_number", o.OrderNumber))
	log.Info("order created", slog.Int("items", len(o.Items)), slog.Int64("total", o.Total))

	if err := s.Store.ClearCart(ctx, ev.BuyerID); err != nil {
		s.stepFailed(log, StepCartCleared, err)
	}

	if ev.CustomerRef != "" {
		if err := s.Store.UpdateCustomerRef(ctx, ev.BuyerID, ev.CustomerRef); err != nil {
			s.stepFailed(log, StepCustomerRefUpdated, err)
		}
	}

	s.publishConfirmed(o)

	s.provisionIdentity(ctx, log, ev)

	for _, item := range o.Items {
		s.pause(ctx, s.Pace)
		s.enrollItem(ctx, log, o, item)
	}

	s.publishReady(o)

	log.Info("fulfillment complete")
	return nil
}

func orderFromEvent(ev *PaymentEvent) *orders.Order {
	items := make([]orders.PurchasedItem, 0, len(ev.LineItems))
	for _, li := range ev.LineItems {
		items = append(items, orders.PurchasedItem{
			ProductID:        li.ProductID,
			EnrollKey:        li.EnrollKey,
			ProductType:      li.ProductType,
			LMSProductType:   li.LMSProductType,
			Title:            li.Title,
			Price:            li.Price,
			ValidityDuration: li.ValidityDuration,
			ValidityUnit:     li.ValidityUnit,
		})
	}
	return &orders.Order{
		BuyerID:          ev.BuyerID,
		PaymentReference: ev.PaymentReference,
		PaymentStatus:    orders.PaymentCompleted,
		Subtotal:         ev.Subtotal,
		Discount:         ev.Discount,
		DiscountTier:     ev.DiscountTier,
		Total:            ev.Total,
		CustomerEmail:    ev.CustomerEmail,
		CustomerName:     ev.CustomerName,
		Country:          ev.Country,
		Items:            items,
		PaidAt:           ev.PaidAt,
	}
}

// provisionIdentity: reuse mapping kalau ada; kalau tidak, cari user by email
// di LMS, terakhir create user baru. Mapping existing tidak pernah
// di-overwrite. Gagal di sini tidak fatal — enrollment per item nanti gagal
// sendiri-sendiri.
func (s *Saga) provisionIdentity(ctx context.Context, log *slog.Logger, ev *PaymentEvent) {
	_, ok, err := s.Store.GetIdentityMapping(ctx, ev.BuyerID)
	if err != nil {
		s.stepFailed(log, StepIdentityProvision, err)
		return
	}
	if ok {
		return
	}

	s.pause(ctx, s.Pace)

	user, err := s.LMS.FindUserByEmail(ctx, ev.CustomerEmail)
	if errors.Is(err, lms.ErrUserNotFound) {
		user, err = s.LMS.CreateUser(ctx, ev.CustomerEmail, ev.CustomerName)
	}
	if err != nil {
		s.stepFailed(log, StepIdentityProvision, err)
		return
	}

	if err := s.Store.SaveIdentityMapping(ctx, ev.BuyerID, user.ID); err != nil {
		s.stepFailed(log, StepIdentityProvision, err)
	}
}

// enrollItem memanggil enroll LMS utk satu item dan SELALU menulis tepat satu
// row Enrollment terminal. Gagalnya satu item tidak memblokir item lain.
func (s *Saga) enrollItem(ctx context.Context, log *slog.Logger, o *orders.Order, item orders.PurchasedItem) {
	req := lms.EnrollRequest{
		UserEmail:     o.CustomerEmail,
		ProductID:     item.ProductID,
		ProductType:   item.ProductType,
		Price:         item.Price,
		Justification: "order " + o.OrderNumber,
		SendEmail:     false,
	}
	if item.LMSProductType == "subscription" {
		req.Duration = item.ValidityDuration
		req.DurationUnit = item.ValidityUnit
	}

	attempts := 0
	err := retry.Do(
		func() error {
			attempts++
			if attempts > 1 {
				metrics.EnrollmentRetries.Inc()
			}
			return s.LMS.Enroll(ctx, req)
		},
		retry.Context(ctx),
		retry.Attempts(s.RetryAttempts+1),
		retry.Delay(s.RetryDelay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(lms.IsRetryable),
	)

	e := &orders.Enrollment{
		BuyerID:          o.BuyerID,
		OrderID:          o.ID,
		ProductID:        item.ProductID,
		ProductType:      item.ProductType,
		LMSProductType:   item.LMSProductType,
		EnrollKey:        item.EnrollKey,
		Title:            item.Title,
		ValidityDuration: item.ValidityDuration,
		ValidityUnit:     item.ValidityUnit,
		RetryCount:       attempts - 1,
	}

	switch {
	case err == nil:
		now := s.now()
		expires := addValidity(now, item.ValidityDuration, item.ValidityUnit)
		e.Outcome = orders.OutcomeSuccess
		e.Status = orders.StatusActive
		e.EnrolledAt = &now
		e.ExpiresAt = &expires
	case errors.Is(err, lms.ErrRateLimited):
		e.Outcome = orders.OutcomeFailed
		e.Status = orders.StatusPending
		e.ErrorMessage = fmt.Sprintf("rate limit exceeded after %d retries", attempts-1)
	default:
		e.Outcome = orders.OutcomeFailed
		e.Status = orders.StatusPending
		// penolakan terminal selalu retry_count 0, percobaan rate-limit
		// sebelum penolakan tidak dihitung
		e.RetryCount = 0
		e.ErrorMessage = err.Error()
	}

	metrics.EnrollmentOutcomes.WithLabelValues(string(e.Outcome)).Inc()
	if e.Outcome == orders.OutcomeFailed {
		log.Warn("enrollment failed",
			slog.String("product_id", item.ProductID),
			slog.Int("retry_count", e.RetryCount),
			slog.String("error", e.ErrorMessage))
	}

	if err := s.Store.InsertEnrollment(ctx, e); err != nil {
		s.stepFailed(log.With(slog.String("product_id", item.ProductID)), StepEnrolling, err)
	}
}

// addValidity: penambahan calendar-aware. Unit tidak dikenal = bulan.
func addValidity(t time.Time, d int, unit string) time.Time {
	switch unit {
	case "days":
		return t.AddDate(0, 0, d)
	case "years":
		return t.AddDate(d, 0, 0)
	default: // "months" dan unit asing
		return t.AddDate(0, d, 0)
	}
}

func (s *Saga) publishConfirmed(o *orders.Order) {
	items := make([]LineItem, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, LineItem{
			ProductID:        it.ProductID,
			EnrollKey:        it.EnrollKey,
			ProductType:      it.ProductType,
			LMSProductType:   it.LMSProductType,
			Title:            it.Title,
			Price:            it.Price,
			ValidityDuration: it.ValidityDuration,
			ValidityUnit:     it.ValidityUnit,
		})
	}
	s.publish(s.ConfirmedProducer, EventOrderConfirmed, o.ID, OrderConfirmedPayload{
		OrderID:       o.ID,
		OrderNumber:   o.OrderNumber,
		BuyerID:       o.BuyerID,
		CustomerEmail: o.CustomerEmail,
		CustomerName:  o.CustomerName,
		Items:         items,
		Subtotal:      o.Subtotal,
		Discount:      o.Discount,
		DiscountTier:  o.DiscountTier,
		Total:         o.Total,
	})
}

func (s *Saga) publishReady(o *orders.Order) {
	s.publish(s.ReadyProducer, EventEnrollmentsReady, o.ID, EnrollmentsReadyPayload{
		OrderID:       o.ID,
		OrderNumber:   o.OrderNumber,
		BuyerID:       o.BuyerID,
		CustomerEmail: o.CustomerEmail,
		ItemCount:     len(o.Items),
	})
}

func (s *Saga) publish(p Publisher, eventType, orderID string, payload any) {
	ev := Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      s.Service,
		CorrelationID: orderID,
		Payload:       kafkax.MustMarshal(payload),
	}
	p.Publish(PartitionKey(orderID), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(eventType)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}

func (s *Saga) stepFailed(log *slog.Logger, step Step, err error) {
	metrics.SagaStepFailures.WithLabelValues(string(step)).Inc()
	log.Error("saga step failed, continuing",
		slog.String("step", string(step)),
		slog.Any("error", err))
}

// pause: blocking sleep, bukan spin-wait. Cuma buat rate-limit courtesy,
// bukan ordering.
func (s *Saga) pause(ctx context.Context, d time.Duration) {
	if s.Sleep != nil {
		s.Sleep(ctx, d)
		return
	}
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func (s *Saga) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}
