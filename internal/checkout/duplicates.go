package checkout

// Entitlement adalah akses aktif yg sudah dimiliki buyer.
type Entitlement struct {
	ProductID string `json:"product_id"`
	EnrollKey string `json:"enroll_key"`
}

// SplitOwned memisahkan item yang sudah dimiliki buyer. Duplicate hanya jika
// product ID DAN enroll key dua-duanya cocok: punya opsi 3 bulan tidak
// memblokir beli opsi 12 bulan utk course yang sama.
// Duplicates tidak pernah di-drop diam-diam; caller wajib menampilkan dan
// memblokir checkout.
func SplitOwned(items []ValidatedItem, owned []Entitlement) (purchasable, duplicates []ValidatedItem) {
	type pair struct{ id, key string }
	ownedSet := make(map[pair]struct{}, len(owned))
	for _, e := range owned {
		ownedSet[pair{e.ProductID, e.EnrollKey}] = struct{}{}
	}

	for _, it := range items {
		if _, ok := ownedSet[pair{it.ItemID, it.EnrollKey}]; ok {
			duplicates = append(duplicates, it)
			continue
		}
		purchasable = append(purchasable, it)
	}
	return purchasable, duplicates
}
