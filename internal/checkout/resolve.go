package checkout

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ariefcatur/go-course-checkout/internal/catalog"
)

var (
	ErrUnknownProduct   = errors.New("product not found in catalog")
	ErrNoPricingOption  = errors.New("product has no pricing options")
	ErrMissingEnrollKey = errors.New("no enrollment key for selected option")
	ErrInvalidPrice     = errors.New("resolved price must be positive")
)

const defaultVariant = "Standard"

// SelectionRequest adalah input mentah dari cart. Field display (Title/Slug/
// Thumbnail) cuma fallback tampilan, tidak pernah dipakai sebagai sumber harga.
type SelectionRequest struct {
	ItemID               string `json:"item_id"`
	PreferredEnrollKey   string `json:"enroll_key,omitempty"`
	PreferredVariantCode string `json:"variant,omitempty"`
	Title                string `json:"title,omitempty"`
	Slug                 string `json:"slug,omitempty"`
	Thumbnail            string `json:"thumbnail,omitempty"`
}

type ValidatedItem struct {
	ItemID           string              `json:"item_id"`
	Slug             string              `json:"slug"`
	Title            string              `json:"title"`
	EnrollKey        string              `json:"enroll_key"`
	VariantCode      string              `json:"variant"`
	Price            int64               `json:"price"`
	OriginalPrice    int64               `json:"original_price"`
	Currency         string              `json:"currency"`
	ProductType      catalog.ProductType `json:"product_type"`
	LMSType          string              `json:"lms_product_type"`
	ValidityDuration int                 `json:"validity_duration"`
	ValidityUnit     string              `json:"validity_unit"`
}

// Resolve memetakan satu selection ke option katalog. Pure function:
// tidak ada side effect, katalog tidak dimodifikasi.
//
// Prioritas pemilihan option:
//  1. enroll key persis sama dgn PreferredEnrollKey
//  2. variant code sama (case-insensitive, default "Standard")
//  3. option dgn masa berlaku 12 bulan
//  4. masa berlaku terpanjang, tie-break urutan katalog
func Resolve(p *catalog.Product, req SelectionRequest) (ValidatedItem, error) {
	if len(p.Options) == 0 {
		return ValidatedItem{}, fmt.Errorf("%w: product %s", ErrNoPricingOption, req.ItemID)
	}

	opt := pickOption(p.Options, req)

	enrollKey := opt.EnrollKey
	if enrollKey == "" {
		enrollKey = req.PreferredEnrollKey
	}
	if enrollKey == "" {
		return ValidatedItem{}, fmt.Errorf("%w: product %s", ErrMissingEnrollKey, req.ItemID)
	}
	if opt.Price <= 0 {
		return ValidatedItem{}, fmt.Errorf("%w: product %s", ErrInvalidPrice, req.ItemID)
	}

	// proteksi data terbalik: original tidak boleh di bawah harga jual
	original := opt.OriginalPrice
	if original < opt.Price {
		original = opt.Price
	}

	currency := strings.ToUpper(strings.TrimSpace(opt.Currency))
	if currency == "" {
		currency = "USD"
	}

	title := p.Title
	if title == "" {
		title = req.Title
	}
	slug := p.Slug
	if slug == "" {
		slug = req.Slug
	}

	return ValidatedItem{
		ItemID:           p.ID,
		Slug:             slug,
		Title:            title,
		EnrollKey:        enrollKey,
		VariantCode:      opt.VariantCode,
		Price:            opt.Price,
		OriginalPrice:    original,
		Currency:         currency,
		ProductType:      p.Type,
		LMSType:          p.LMSType,
		ValidityDuration: opt.ValidityDuration,
		ValidityUnit:     opt.ValidityUnit,
	}, nil
}

func pickOption(options []catalog.Option, req SelectionRequest) catalog.Option {
	if req.PreferredEnrollKey != "" {
		for _, o := range options {
			if o.EnrollKey == req.PreferredEnrollKey {
				return o
			}
		}
	}

	variant := req.PreferredVariantCode
	if variant == "" {
		variant = defaultVariant
	}
	for _, o := range options {
		if strings.EqualFold(o.VariantCode, variant) {
			return o
		}
	}

	for _, o := range options {
		if isTwelveMonths(o) {
			return o
		}
	}

	// fallback terakhir: durasi terpanjang, first match menang kalau seri
	best := options[0]
	for _, o := range options[1:] {
		if o.ValidityDuration > best.ValidityDuration {
			best = o
		}
	}
	return best
}

func isTwelveMonths(o catalog.Option) bool {
	switch o.ValidityUnit {
	case catalog.UnitMonths:
		return o.ValidityDuration == 12
	case catalog.UnitYears:
		return o.ValidityDuration == 1
	case catalog.UnitDays:
		return o.ValidityDuration == 365
	}
	return false
}
