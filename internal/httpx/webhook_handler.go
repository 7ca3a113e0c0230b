package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"github.com/ariefcatur/go-course-checkout/internal/fulfillment"
	"github.com/ariefcatur/go-course-checkout/internal/metrics"
	"github.com/ariefcatur/go-course-checkout/internal/redisx"
)

const signatureHeader = "X-Gateway-Signature"

// Fulfiller menjalankan saga utk satu payment event terverifikasi.
type Fulfiller interface {
	Fulfill(ctx context.Context, ev *fulfillment.PaymentEvent) error
}

// EventRecorder mencatat audit trail webhook yang masuk.
type EventRecorder interface {
	Record(ctx context.Context, eventID, eventType, paymentRef string, payload []byte) error
	MarkProcessed(ctx context.Context, eventID string) error
	MarkFailed(ctx context.Context, eventID, errMsg string) error
}

// Deduper adalah fast path utk redelivery gateway.
type Deduper interface {
	Seen(ctx context.Context, eventID string) bool
	Remember(ctx context.Context, eventID string)
}

// GatewayDedup: Deduper di atas Redis. Best-effort: error Redis dibaca
// sebagai belum-pernah-lihat, unique payment_reference di DB yang pegang
// kebenaran terakhir.
type GatewayDedup struct{ Redis *redis.Client }

func (d *GatewayDedup) Seen(ctx context.Context, eventID string) bool {
	exists, _ := redisx.Exists(ctx, d.Redis, fmt.Sprintf(redisx.KeyGatewayDedup, eventID))
	return exists
}

func (d *GatewayDedup) Remember(ctx context.Context, eventID string) {
	_ = d.Redis.Set(ctx, fmt.Sprintf(redisx.KeyGatewayDedup, eventID), "1", redisx.TTLDedup).Err()
}

type WebhookHandler struct {
	Secret string
	Dedup  Deduper
	Saga   Fulfiller
	Events EventRecorder
	Log    *slog.Logger
}

func (h *WebhookHandler) Register(r *chi.Mux) {
	r.Post("/webhooks/payment", h.handlePayment)
}

// handlePayment: verifikasi signature -> decode -> dedup -> catat event ->
// jalankan saga sequential di request ini.
func (h *WebhookHandler) handlePayment(w http.ResponseWriter, r *http.Request) {
	metrics.WebhookEventsReceived.Inc()

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "cannot read body"})
		return
	}

	if !fulfillment.VerifySignature(h.Secret, body, r.Header.Get(signatureHeader)) {
		metrics.WebhookEventsRejected.WithLabelValues("bad_signature").Inc()
		h.Log.Warn("webhook signature mismatch")
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid signature"})
		return
	}

	var ev fulfillment.PaymentEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		metrics.WebhookEventsRejected.WithLabelValues("bad_payload").Inc()
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}
	if ev.EventID == "" || ev.PaymentReference == "" || ev.BuyerID == "" {
		metrics.WebhookEventsRejected.WithLabelValues("missing_fields").Inc()
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing fields"})
		return
	}

	// saga lepas dari lifecycle request: sekali mulai tidak ada jalur
	// pembatalan, selesai atau process-crash. Gateway menutup koneksi
	// tidak boleh membatalkan enrollment yang sedang jalan.
	ctx := context.WithoutCancel(r.Context())
	log := h.Log.With(slog.String("event_id", ev.EventID))

	if h.Dedup.Seen(ctx, ev.EventID) {
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "duplicate"})
		return
	}

	if err := h.Events.Record(ctx, ev.EventID, ev.EventType, ev.PaymentReference, body); err != nil {
		// event log cuma audit; jangan blokir fulfillment
		log.Error("failed to record gateway event", slog.Any("error", err))
	}

	if err := h.Saga.Fulfill(ctx, &ev); err != nil {
		if errors.Is(err, fulfillment.ErrNoLineItems) {
			// abort tanpa side effect; redeliver tidak akan menolong
			h.Dedup.Remember(ctx, ev.EventID)
			_ = h.Events.MarkFailed(ctx, ev.EventID, err.Error())
			writeJSON(w, http.StatusAccepted, map[string]string{"status": "ignored"})
			return
		}
		// order insert gagal: buyer sudah bayar, biarkan gateway redeliver.
		// Dedup key sengaja TIDAK di-set supaya redelivery masuk lagi ke saga;
		// replay aman berkat unique payment_reference.
		log.Error("fulfillment aborted", slog.Any("error", err))
		_ = h.Events.MarkFailed(ctx, ev.EventID, err.Error())
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "fulfillment failed"})
		return
	}

	// dedup key baru di-set setelah saga tuntas; delivery paralel dgn event
	// yang sama berhenti di unique payment_reference
	h.Dedup.Remember(ctx, ev.EventID)
	_ = h.Events.MarkProcessed(ctx, ev.EventID)
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "processed"})
}
