package fulfillment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"
)

// PaymentEvent adalah payload webhook payment-confirmation yang sudah
// diverifikasi. Setelah pembayaran, HANYA line item di event ini yang
// dipercaya — bukan hasil validasi pre-payment.
type PaymentEvent struct {
	EventID          string     `json:"event_id"`
	EventType        string     `json:"event_type"` // "checkout.completed"
	BuyerID          string     `json:"buyer_id"`
	PaymentReference string     `json:"payment_reference"`
	CustomerRef      string     `json:"customer_ref,omitempty"` // id customer di payment gateway
	CustomerEmail    string     `json:"customer_email"`
	CustomerName     string     `json:"customer_name,omitempty"`
	Country          string     `json:"country,omitempty"`
	Subtotal         int64      `json:"subtotal"`
	Discount         int64      `json:"discount"`
	DiscountTier     string     `json:"discount_tier,omitempty"`
	Total            int64      `json:"total"`
	LineItems        []LineItem `json:"line_items"`
	PaidAt           time.Time  `json:"paid_at"`
}

// LineItem membawa metadata produk yang di-tag saat sesi payment dibuat.
// Price di sini sudah harga diskon final yang dibayar.
type LineItem struct {
	ProductID        string `json:"product_id"`
	EnrollKey        string `json:"enroll_key"`
	ProductType      string `json:"product_type"`
	LMSProductType   string `json:"lms_product_type"`
	Title            string `json:"title"`
	Price            int64  `json:"discounted_price"`
	ValidityDuration int    `json:"validity_duration"`
	ValidityUnit     string `json:"validity_unit"`
}

// VerifySignature: HMAC-SHA256 hex atas raw body dgn shared secret.
// Constant-time compare.
func VerifySignature(secret string, body []byte, signature string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

// ---- Event internal (Kafka) utk email dispatch ----

const (
	TopicOrderConfirmed   = "checkout.order.confirmed"
	TopicEnrollmentsReady = "checkout.enrollments.ready"

	EventOrderConfirmed   = "OrderConfirmed"
	EventEnrollmentsReady = "EnrollmentsReady"
)

// Partition key = order_id, supaya event 1 order maintain urutan.
func PartitionKey(orderID string) []byte { return []byte(orderID) }

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order_id
	Payload       json.RawMessage `json:"payload"`
}

type OrderConfirmedPayload struct {
	OrderID       string     `json:"order_id"`
	OrderNumber   string     `json:"order_number"`
	BuyerID       string     `json:"buyer_id"`
	CustomerEmail string     `json:"customer_email"`
	CustomerName  string     `json:"customer_name,omitempty"`
	Items         []LineItem `json:"items"`
	Subtotal      int64      `json:"subtotal"`
	Discount      int64      `json:"discount"`
	DiscountTier  string     `json:"discount_tier,omitempty"`
	Total         int64      `json:"total"`
}

type EnrollmentsReadyPayload struct {
	OrderID       string `json:"order_id"`
	OrderNumber   string `json:"order_number"`
	BuyerID       string `json:"buyer_id"`
	CustomerEmail string `json:"customer_email"`
	ItemCount     int    `json:"item_count"`
}
