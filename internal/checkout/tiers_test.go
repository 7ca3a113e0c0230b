package checkout

import "testing"

func TestApplyTier(t *testing.T) {
	tiers := []Tier{
		{Name: "Faculty", MinQualifyingCount: 12, DiscountPercent: 15},
		{Name: "Scholar", MinQualifyingCount: 8, DiscountPercent: 10},
		{Name: "Foundation", MinQualifyingCount: 5, DiscountPercent: 6},
	}

	cases := []struct {
		n        int
		wantName string
		wantPct  int
	}{
		{0, "", 0},
		{4, "", 0}, // di bawah threshold terendah: tanpa diskon
		{5, "Foundation", 6},
		{7, "Foundation", 6},
		{8, "Scholar", 10},
		{11, "Scholar", 10},
		{12, "Faculty", 15},
		{100, "Faculty", 15},
	}

	for _, tc := range cases {
		name, pct := ApplyTier(tiers, tc.n)
		if name != tc.wantName || pct != tc.wantPct {
			t.Errorf("n=%d: got (%q, %d), want (%q, %d)", tc.n, name, pct, tc.wantName, tc.wantPct)
		}
	}
}

func TestApplyTierOrderIndependent(t *testing.T) {
	// tabel tidak terurut tetap harus memilih threshold tertinggi yg cocok
	tiers := []Tier{
		{Name: "Foundation", MinQualifyingCount: 5, DiscountPercent: 6},
		{Name: "Faculty", MinQualifyingCount: 12, DiscountPercent: 15},
		{Name: "Scholar", MinQualifyingCount: 8, DiscountPercent: 10},
	}
	name, pct := ApplyTier(tiers, 9)
	if name != "Scholar" || pct != 10 {
		t.Fatalf("got (%q, %d), want (Scholar, 10)", name, pct)
	}
}

func TestDiscountedPrice(t *testing.T) {
	cases := []struct {
		price int64
		pct   int
		want  int64
	}{
		{299, 6, 281},  // 281.06 -> 281
		{299, 0, 299},  // tanpa diskon
		{100, 10, 90},  // pas
		{99, 6, 93},    // 93.06 -> 93
		{25, 6, 24},    // 23.5 -> 24 (half-up)
		{75, 10, 68},   // 67.5 -> 68 (half-up)
		{1, 15, 1},     // 0.85 -> 1
		{1000, 15, 850},
	}

	for _, tc := range cases {
		if got := DiscountedPrice(tc.price, tc.pct); got != tc.want {
			t.Errorf("DiscountedPrice(%d, %d) = %d, want %d", tc.price, tc.pct, got, tc.want)
		}
	}
}
