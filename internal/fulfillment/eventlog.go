package fulfillment

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

type EventStatus string

const (
	EventReceived  EventStatus = "received"
	EventProcessed EventStatus = "processed"
	EventFailed    EventStatus = "failed"
)

// EventLog mencatat tiap webhook yang masuk sebelum diproses, buat audit
// dan rekonsiliasi manual kalau saga gagal di tengah.
type EventLog struct{ DB *pgxpool.Pool }

func (l *EventLog) Record(ctx context.Context, eventID, eventType, paymentRef string, payload []byte) error {
	_, err := l.DB.Exec(ctx, `
		INSERT INTO gateway_events(event_id, event_type, payment_reference, payload, status, received_at)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (event_id) DO NOTHING
	`, eventID, eventType, paymentRef, payload, EventReceived, time.Now().UTC())
	return err
}

func (l *EventLog) MarkProcessed(ctx context.Context, eventID string) error {
	_, err := l.DB.Exec(ctx, `
		UPDATE gateway_events SET status=$2, processed_at=now() WHERE event_id=$1
	`, eventID, EventProcessed)
	return err
}

func (l *EventLog) MarkFailed(ctx context.Context, eventID, errMsg string) error {
	_, err := l.DB.Exec(ctx, `
		UPDATE gateway_events SET status=$2, error=$3, processed_at=now() WHERE event_id=$1
	`, eventID, EventFailed, errMsg)
	return err
}
