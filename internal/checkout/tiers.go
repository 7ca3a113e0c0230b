package checkout

import "github.com/shopspring/decimal"

// Tier adalah bracket diskon berdasarkan jumlah item qualifying
// (purchasable, non-duplicate) dalam satu checkout.
type Tier struct {
	Name               string `json:"name"`
	MinQualifyingCount int    `json:"min_qualifying_count"`
	DiscountPercent    int    `json:"discount_percent"`
}

var DefaultTiers = []Tier{
	{Name: "Faculty", MinQualifyingCount: 12, DiscountPercent: 15},
	{Name: "Scholar", MinQualifyingCount: 8, DiscountPercent: 10},
	{Name: "Foundation", MinQualifyingCount: 5, DiscountPercent: 6},
}

// ApplyTier mengembalikan tier dgn threshold tertinggi yang <= n.
// Di bawah threshold terendah: tanpa tier, 0%.
func ApplyTier(tiers []Tier, n int) (name string, pct int) {
	best := -1
	for _, t := range tiers {
		if t.MinQualifyingCount <= n && t.MinQualifyingCount > best {
			best = t.MinQualifyingCount
			name, pct = t.Name, t.DiscountPercent
		}
	}
	return name, pct
}

// DiscountedPrice: round-half-up di granularitas satuan mata uang.
// Diskon dihitung per item, bukan atas subtotal, supaya tidak ada
// rounding drift antar item.
func DiscountedPrice(price int64, pct int) int64 {
	if pct <= 0 {
		return price
	}
	return decimal.NewFromInt(price).
		Mul(decimal.NewFromInt(int64(100 - pct))).
		Div(decimal.NewFromInt(100)).
		Round(0).
		IntPart()
}
