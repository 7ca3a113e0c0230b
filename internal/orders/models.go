package orders

import "time"

type PaymentStatus string

const (
	PaymentCompleted         PaymentStatus = "completed"
	PaymentPartiallyRefunded PaymentStatus = "partially_refunded"
	PaymentRefunded          PaymentStatus = "refunded"
	PaymentPending           PaymentStatus = "pending"
)

// Order dibuat sekali per pembayaran sukses. PurchasedItems adalah snapshot
// denormalized: perubahan harga katalog belakangan tidak pernah mengubah
// order yang sudah ada.
type Order struct {
	ID               string          `json:"id"`
	OrderNumber      string          `json:"order_number"`
	BuyerID          string          `json:"buyer_id"`
	PaymentReference string          `json:"payment_reference"`
	PaymentStatus    PaymentStatus   `json:"payment_status"`
	Subtotal         int64           `json:"subtotal"`
	Discount         int64           `json:"discount"`
	DiscountTier     string          `json:"discount_tier,omitempty"`
	Total            int64           `json:"total"`
	CustomerEmail    string          `json:"customer_email"`
	CustomerName     string          `json:"customer_name,omitempty"`
	Country          string          `json:"country,omitempty"`
	Items            []PurchasedItem `json:"purchased_items"`
	PaidAt           time.Time       `json:"paid_at"`
	CreatedAt        time.Time       `json:"created_at"`
}

// PurchasedItem di-embed sebagai JSONB di row order, bukan tabel sendiri.
type PurchasedItem struct {
	ProductID        string `json:"product_id"`
	EnrollKey        string `json:"enroll_key"`
	ProductType      string `json:"product_type"`
	LMSProductType   string `json:"lms_product_type"`
	Title            string `json:"title"`
	Price            int64  `json:"price"`
	ValidityDuration int    `json:"validity_duration"`
	ValidityUnit     string `json:"validity_unit"`
}

type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailed  Outcome = "failed"
)

type LifecycleStatus string

const (
	StatusActive  LifecycleStatus = "active"
	StatusPending LifecycleStatus = "pending"
)

// Enrollment: satu row terminal per (order, purchased item).
// Invariant: ExpiresAt hanya terisi saat Outcome=success; ErrorMessage hanya
// saat failed. Outcome tidak pernah dibuka ulang otomatis.
type Enrollment struct {
	ID               string          `json:"id"`
	BuyerID          string          `json:"buyer_id"`
	OrderID          string          `json:"order_id"`
	ProductID        string          `json:"product_id"`
	ProductType      string          `json:"product_type"`
	LMSProductType   string          `json:"lms_product_type"`
	EnrollKey        string          `json:"enroll_key"`
	Title            string          `json:"title"`
	ValidityDuration int             `json:"validity_duration"`
	ValidityUnit     string          `json:"validity_unit"`
	EnrolledAt       *time.Time      `json:"enrolled_at,omitempty"`
	ExpiresAt        *time.Time      `json:"expires_at,omitempty"`
	Outcome          Outcome         `json:"outcome"`
	Status           LifecycleStatus `json:"status"`
	ErrorMessage     string          `json:"error_message,omitempty"`
	RetryCount       int             `json:"retry_count"`
	CreatedAt        time.Time       `json:"created_at"`
}

// IdentityMapping: buyer internal <-> user LMS eksternal. Dibuat lazy saat
// pembelian pertama, tidak pernah di-overwrite.
type IdentityMapping struct {
	BuyerID   string    `json:"buyer_id"`
	LMSUserID string    `json:"lms_user_id"`
	CreatedAt time.Time `json:"created_at"`
}
