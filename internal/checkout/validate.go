package checkout

import (
	"context"
	"fmt"

	"github.com/ariefcatur/go-course-checkout/internal/catalog"
)

type CatalogSource interface {
	GetProducts(ctx context.Context, ids []string) (map[string]catalog.Product, error)
}

type EntitlementSource interface {
	ActiveEntitlements(ctx context.Context, buyerID string) ([]Entitlement, error)
}

// Result bersifat advisory: dipakai membangun line item payment gateway dan
// memblokir checkout di sisi client. Setelah pembayaran sukses, saga
// menurunkan ulang item dari payment record, bukan dari struct ini.
type Result struct {
	Items              []ValidatedItem `json:"items"`
	Purchasable        []ValidatedItem `json:"purchasable"`
	Duplicates         []ValidatedItem `json:"duplicates"`
	TierName           string          `json:"tier_name,omitempty"`
	DiscountPercent    int             `json:"discount_percent"`
	Subtotal           int64           `json:"subtotal"`
	DiscountedSubtotal int64           `json:"discounted_subtotal"`
}

type Validator struct {
	Catalog      CatalogSource
	Entitlements EntitlementSource
	Tiers        []Tier
}

// Validate menjalankan resolve -> duplicate filter -> tier utk satu batch.
// Fail fast: satu item gagal resolve = seluruh batch gagal dgn error item itu.
// Cart yang cuma sebagian ter-harga lebih buruk daripada tidak sama sekali.
func (v *Validator) Validate(ctx context.Context, buyerID string, sels []SelectionRequest) (*Result, error) {
	ids := make([]string, 0, len(sels))
	for _, s := range sels {
		ids = append(ids, s.ItemID)
	}

	products, err := v.Catalog.GetProducts(ctx, ids)
	if err != nil {
		return nil, err
	}

	items := make([]ValidatedItem, 0, len(sels))
	for _, s := range sels {
		p, ok := products[s.ItemID]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownProduct, s.ItemID)
		}
		it, err := Resolve(&p, s)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}

	owned, err := v.Entitlements.ActiveEntitlements(ctx, buyerID)
	if err != nil {
		return nil, err
	}
	purchasable, duplicates := SplitOwned(items, owned)

	// duplicates keluar dari hitungan tier DAN dari total
	tierName, pct := ApplyTier(v.Tiers, len(purchasable))

	var subtotal, discounted int64
	for _, it := range purchasable {
		subtotal += it.Price
		discounted += DiscountedPrice(it.Price, pct)
	}

	return &Result{
		Items:              items,
		Purchasable:        purchasable,
		Duplicates:         duplicates,
		TierName:           tierName,
		DiscountPercent:    pct,
		Subtotal:           subtotal,
		DiscountedSubtotal: discounted,
	}, nil
}
