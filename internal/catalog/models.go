package catalog

import "time"

type ProductType string

const (
	TypeCourse ProductType = "course"
	TypeBundle ProductType = "bundle"
)

// Satuan masa berlaku enrollment.
const (
	UnitDays   = "days"
	UnitMonths = "months"
	UnitYears  = "years"
)

type Product struct {
	ID        string
	Slug      string
	Title     string
	Type      ProductType
	LMSType   string // jenis enrollment di LMS, mis. "subscription" | "bundle"
	Thumbnail string
	Options   []Option
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Option adalah varian harga sebuah produk. Immutable setelah dibaca:
// resolver tidak pernah memodifikasi katalog.
type Option struct {
	EnrollKey        string `json:"enroll_key"`
	VariantCode      string `json:"variant_code"`
	Price            int64  `json:"price"`
	OriginalPrice    int64  `json:"original_price"`
	Currency         string `json:"currency"`
	ValidityDuration int    `json:"validity_duration"`
	ValidityUnit     string `json:"validity_unit"`
}
